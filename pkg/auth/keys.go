package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// MinSecretLength is the minimum length of the configured credential secret.
const MinSecretLength = 32

const keyLen = 32

// Keys holds the subkeys derived from the deployment secret. The credential
// key signs QR payloads; the manual key seeds per-member manual entry codes.
type Keys struct {
	Credential []byte
	Manual     []byte
}

// DeriveKeys expands secret into independent subkeys with HKDF-SHA256.
func DeriveKeys(secret string) (Keys, error) {
	if len(secret) < MinSecretLength {
		return Keys{}, fmt.Errorf("credential secret must be at least %d characters", MinSecretLength)
	}

	credential, err := expand(secret, "gymkeeper/credential/v1")
	if err != nil {
		return Keys{}, err
	}
	manual, err := expand(secret, "gymkeeper/manual-code/v1")
	if err != nil {
		return Keys{}, err
	}
	return Keys{Credential: credential, Manual: manual}, nil
}

func expand(secret, info string) ([]byte, error) {
	key := make([]byte, keyLen)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(info))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, errors.Join(errors.New("failed to derive key"), err)
	}
	return key, nil
}
