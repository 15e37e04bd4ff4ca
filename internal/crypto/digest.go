package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const digestPrefix = "sha256:"

// DigestBytes returns the raw SHA-256 digest bytes.
func DigestBytes(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// DigestHex returns the SHA-256 digest as lowercase hex.
func DigestHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DigestWithPrefix returns the SHA-256 digest with the "sha256:" prefix.
func DigestWithPrefix(data []byte) string {
	return digestPrefix + DigestHex(data)
}

// DigestCanonical canonicalizes v and returns its prefixed digest together with
// the canonical bytes that were hashed.
func DigestCanonical(v any) (string, []byte, error) {
	canonical, err := Canonicalize(v)
	if err != nil {
		return "", nil, err
	}
	return DigestWithPrefix(canonical), canonical, nil
}

// DigestBytesFromPrefixed decodes a "sha256:<hex>" string back to raw bytes.
func DigestBytesFromPrefixed(digest string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(digest, digestPrefix))
	if err != nil {
		return nil, err
	}
	if len(raw) != sha256.Size {
		return nil, ErrInvalidDigestLen
	}
	return raw, nil
}
