package checkpoint

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

// ErrChecksumMismatch is returned when a stored snapshot fails its
// integrity check.
var ErrChecksumMismatch = errors.New("checkpoint: checksum mismatch, snapshot may be corrupted")

// checksumSize is the length of the SHA-256 trailer on stored snapshots.
const checksumSize = sha256.Size

// seal appends the SHA-256 checksum of payload.
func seal(payload []byte) []byte {
	sum := sha256.Sum256(payload)
	return append(payload, sum[:]...)
}

// unseal verifies and strips the checksum trailer.
func unseal(data []byte) ([]byte, error) {
	if len(data) < checksumSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the checksum", ErrChecksumMismatch, len(data))
	}
	payload := data[:len(data)-checksumSize]
	var stored [checksumSize]byte
	copy(stored[:], data[len(payload):])
	if sha256.Sum256(payload) != stored {
		return nil, ErrChecksumMismatch
	}
	return payload, nil
}
