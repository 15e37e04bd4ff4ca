package crypto

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// LoadSigner reads an Ed25519 key file for the governance trail. The file holds
// either a 64-byte private key or a 32-byte seed, raw or as "hex:"/"base64:"
// prefixed (or bare) text.
func LoadSigner(keyID string, path string) (*Ed25519Signer, error) {
	// #nosec G304 -- path is operator-configured.
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data, err := decodeKeyBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("signing key %s: %w", path, err)
	}

	switch len(data) {
	case ed25519.PrivateKeySize:
		return NewEd25519Signer(keyID, ed25519.PrivateKey(data)), nil
	case ed25519.SeedSize:
		return NewEd25519SignerFromSeed(keyID, data)
	default:
		return nil, fmt.Errorf("signing key %s: unsupported length %d", path, len(data))
	}
}

func decodeKeyBytes(raw []byte) ([]byte, error) {
	trim := strings.TrimSpace(string(raw))
	switch {
	case trim == "":
		return nil, fmt.Errorf("empty key file")
	case strings.HasPrefix(trim, "base64:"):
		return base64.StdEncoding.DecodeString(strings.TrimPrefix(trim, "base64:"))
	case strings.HasPrefix(trim, "hex:"):
		return hex.DecodeString(strings.TrimPrefix(trim, "hex:"))
	}

	if out, err := hex.DecodeString(trim); err == nil {
		return out, nil
	}
	if out, err := base64.StdEncoding.DecodeString(trim); err == nil {
		return out, nil
	}
	if len(raw) == ed25519.PrivateKeySize || len(raw) == ed25519.SeedSize {
		return raw, nil
	}
	return nil, fmt.Errorf("unrecognized key encoding")
}
