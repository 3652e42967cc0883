package wrap

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5" //nolint:gosec // used only to derive a CTR nonce, not for authentication
	"crypto/rand"
	"fmt"
)

const aesTag = "aes256"

// AES256CTR is the "aes256" wrapper: AES-256 in CTR mode.
//
// By default (RandomNonce == false) it reproduces the original's
// documented footgun verbatim: the 128-bit CTR nonce is derived
// deterministically from the key (MD5(key)), so encrypting two different
// resources under the same key reuses the same keystream prefix. This is
// a known weakness under key reuse, kept here for behavioral parity, not
// because it's good practice.
//
// Setting RandomNonce draws a fresh 16-byte nonce per call to Wrap and
// prepends it to the ciphertext; Unwrap reads it back off the front. This
// is the recommended setting for new deployments.
type AES256CTR struct {
	Key         [32]byte
	RandomNonce bool
}

func (a *AES256CTR) Tag() string { return aesTag }

func (a *AES256CTR) block() (cipher.Block, error) {
	return aes.NewCipher(a.Key[:])
}

func (a *AES256CTR) deterministicNonce() []byte {
	sum := md5.Sum(a.Key[:]) //nolint:gosec
	return sum[:]
}

func (a *AES256CTR) Wrap(data []byte) ([]byte, error) {
	block, err := a.block()
	if err != nil {
		return nil, err
	}
	if !a.RandomNonce {
		stream := cipher.NewCTR(block, a.deterministicNonce())
		out := make([]byte, len(data))
		stream.XORKeyStream(out, data)
		return out, nil
	}
	nonce := make([]byte, aes.BlockSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	stream := cipher.NewCTR(block, nonce)
	out := make([]byte, aes.BlockSize+len(data))
	copy(out, nonce)
	stream.XORKeyStream(out[aes.BlockSize:], data)
	return out, nil
}

func (a *AES256CTR) Unwrap(data []byte) ([]byte, error) {
	block, err := a.block()
	if err != nil {
		return nil, err
	}
	if !a.RandomNonce {
		stream := cipher.NewCTR(block, a.deterministicNonce())
		out := make([]byte, len(data))
		stream.XORKeyStream(out, data)
		return out, nil
	}
	if len(data) < aes.BlockSize {
		return nil, fmt.Errorf("wrap/%s: chunk too small for nonce", aesTag)
	}
	nonce := data[:aes.BlockSize]
	stream := cipher.NewCTR(block, nonce)
	out := make([]byte, len(data)-aes.BlockSize)
	stream.XORKeyStream(out, data[aes.BlockSize:])
	return out, nil
}
