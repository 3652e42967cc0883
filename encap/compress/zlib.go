package compress

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Zlib is the "zlib" compressor, backed by klauspost/compress rather
// than stdlib compress/zlib.
type Zlib struct{}

func (Zlib) Tag() string { return "zlib" }

func (Zlib) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (Zlib) Decompress(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
