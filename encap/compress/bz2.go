package compress

import (
	"bytes"
	"io"

	"github.com/dsnet/compress/bzip2"
)

// Bz2 is the "bz2" compressor. Stdlib compress/bzip2 is read-only, so
// this uses dsnet/compress/bzip2, which additionally implements a writer.
type Bz2 struct{}

func (Bz2) Tag() string { return "bz2" }

func (Bz2) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := bzip2.NewWriter(&buf, nil)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (Bz2) Decompress(data []byte) ([]byte, error) {
	r, err := bzip2.NewReader(bytes.NewReader(data), nil)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
