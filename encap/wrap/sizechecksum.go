package wrap

import (
	"encoding/binary"
	"fmt"

	"github.com/FlorianSauer/fragstore/cmn/cos"
)

// SizeChecksum is the "sc" wrapper: prefix a 4-byte big-endian length,
// append a SHA-256 of the payload. Unwrap verifies both, and is the
// recommended innermost wrap when a backend may corrupt or truncate
// uploads. Grounded in
// ImageSaverLib4/Encapsulation/Wrappers/Types/SizeChecksumWrapper.py.
type SizeChecksum struct{}

func (SizeChecksum) Tag() string { return "sc" }

func (SizeChecksum) Wrap(data []byte) ([]byte, error) {
	out := make([]byte, 4+len(data)+cos.SizeofSHA256)
	binary.BigEndian.PutUint32(out[:4], uint32(len(data)))
	copy(out[4:], data)
	cksum := cos.SHA256(data)
	copy(out[4+len(data):], cksum.Bytes())
	return out, nil
}

func (SizeChecksum) Unwrap(data []byte) ([]byte, error) {
	if len(data) < 4+cos.SizeofSHA256 {
		return nil, fmt.Errorf("wrap/sc: chunk too small (%d bytes)", len(data))
	}
	wantLen := binary.BigEndian.Uint32(data[:4])
	trailer := data[len(data)-cos.SizeofSHA256:]
	payload := data[4 : len(data)-cos.SizeofSHA256]
	if uint32(len(payload)) != wantLen {
		return nil, fmt.Errorf("wrap/sc: payload length %d != expected %d", len(payload), wantLen)
	}
	var want cos.Cksum
	copy(want[:], trailer)
	actual := cos.SHA256(payload)
	if !actual.Equal(want) {
		return nil, fmt.Errorf("wrap/sc: checksum mismatch")
	}
	return payload, nil
}
