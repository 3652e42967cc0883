package wrap

// PassThrough is the "pass" identity wrapper.
type PassThrough struct{}

func (PassThrough) Tag() string { return "pass" }

func (PassThrough) Wrap(data []byte) ([]byte, error) { return data, nil }

func (PassThrough) Unwrap(data []byte) ([]byte, error) { return data, nil }
