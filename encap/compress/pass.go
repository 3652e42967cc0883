package compress

// PassThrough is the "pass" identity compressor.
type PassThrough struct{}

func (PassThrough) Tag() string { return "pass" }

func (PassThrough) Compress(data []byte) ([]byte, error) { return data, nil }

func (PassThrough) Decompress(data []byte) ([]byte, error) { return data, nil }
