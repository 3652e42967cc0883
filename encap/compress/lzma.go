package compress

import (
	"bytes"
	"io"

	"github.com/ulikunitz/xz/lzma"
)

// Lzma is the "lzma" compressor.
type Lzma struct{}

func (Lzma) Tag() string { return "lzma" }

func (Lzma) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
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

func (Lzma) Decompress(data []byte) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}
