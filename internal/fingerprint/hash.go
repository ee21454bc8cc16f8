package fingerprint

import "strconv"

const hashSeed uint32 = 5381

// Hash is a 32-bit rolling multiplicative hash (hash*33 + c, seed 5381)
// rendered as lowercase hex. It is shared by header fingerprints and
// transaction dedup hashes.
func Hash(s string) string {
	h := hashSeed
	for _, r := range s {
		h = h*33 + uint32(r)
	}
	return strconv.FormatUint(uint64(h), 16)
}
