package source

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint hashes content for cache-key identity and change
// detection. It is fast and non-cryptographic; callers must not rely on
// it to resist adversarial input.
func Fingerprint(b []byte) uint64 {
	return xxhash.Sum64(b)
}

// FingerprintString hashes s without copying it to a byte slice.
func FingerprintString(s string) uint64 {
	return xxhash.Sum64String(s)
}

// Combine folds several fingerprints into one, order-sensitively.
// Used for context fingerprints covering multiple inputs.
func Combine(fps ...uint64) uint64 {
	d := xxhash.New()
	var buf [8]byte
	for _, fp := range fps {
		binary.LittleEndian.PutUint64(buf[:], fp)
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}
