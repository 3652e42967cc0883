package wrap

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

const minSizePrefix = "ms"

// MinimumSize is the "ms<N>" wrapper: prefix a 4-byte big-endian length
// and pad with random bytes so the total is at least N bytes. Useful
// against backends (e.g. photo-hosting APIs) that reject or mangle
// payloads below some size. Grounded in
// ImageSaverLib4/Encapsulation/Wrappers/Types/MinimumSizeWrapper.py.
type MinimumSize struct {
	N int
}

func (m MinimumSize) Tag() string { return minSizePrefix + strconv.Itoa(m.N) }

func (m MinimumSize) Wrap(data []byte) ([]byte, error) {
	if m.N < 4 {
		return data, nil
	}
	fill := m.N - len(data) - 4
	if fill < 0 {
		fill = 0
	}
	out := make([]byte, 4+len(data)+fill)
	binary.BigEndian.PutUint32(out[:4], uint32(len(data)))
	copy(out[4:], data)
	if fill > 0 {
		if _, err := rand.Read(out[4+len(data):]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (m MinimumSize) Unwrap(data []byte) ([]byte, error) {
	if m.N < 4 {
		return data, nil
	}
	if len(data) < m.N {
		return nil, fmt.Errorf("wrap/%s: chunk too small (%d bytes)", m.Tag(), len(data))
	}
	if len(data) < 4 {
		return data, nil
	}
	chunkLen := binary.BigEndian.Uint32(data[:4])
	if uint32(len(data))-4 < chunkLen {
		return nil, fmt.Errorf("wrap/%s: payload shorter than expected length", m.Tag())
	}
	return data[4 : 4+chunkLen], nil
}

// minSizeFactory recognizes tags of the form "ms<N>" not already present
// in the fixed registry.
func minSizeFactory(tag string) (Wrapper, error) {
	if !strings.HasPrefix(tag, minSizePrefix) {
		return nil, fmt.Errorf("not a minsize tag: %q", tag)
	}
	nStr := strings.TrimPrefix(tag, minSizePrefix)
	n, err := strconv.Atoi(nStr)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("wrap: invalid minsize tag %q", tag)
	}
	return MinimumSize{N: n}, nil
}
