package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tendant/gymkeeper/pkg/domain"
)

const (
	nonceLen      = 20
	minNonceLen   = 16
	maxNonceLen   = 64
	nonceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// maxIssuedAt is 9999-12-31T23:59:59Z. Anything later is not a real
	// issue time and would overflow duration arithmetic.
	maxIssuedAt = 253402300799
)

// Signer issues signed credentials for members.
type Signer struct {
	key   []byte
	clock domain.Clock
}

// NewSigner creates a signer. A nil clock uses the system clock.
func NewSigner(key []byte, clock domain.Clock) *Signer {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Signer{key: key, clock: clock}
}

// Issue builds a fresh credential for memberID stamped with the current time.
func (s *Signer) Issue(memberID string) (domain.Credential, error) {
	if memberID == "" {
		return domain.Credential{}, fmt.Errorf("%w: member id", domain.ErrMissingField)
	}
	nonce, err := generateNonce()
	if err != nil {
		return domain.Credential{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	c := domain.Credential{
		MemberID: memberID,
		IssuedAt: s.clock.Now().Unix(),
		Nonce:    nonce,
	}
	c.Signature = sign(s.key, c)
	return c, nil
}

// IssueEncoded issues a credential and returns its transport encoding.
func (s *Signer) IssueEncoded(memberID string) (string, domain.Credential, error) {
	c, err := s.Issue(memberID)
	if err != nil {
		return "", domain.Credential{}, err
	}
	encoded, err := Encode(c)
	if err != nil {
		return "", domain.Credential{}, err
	}
	return encoded, c, nil
}

// Encode serializes a credential as unpadded base64url JSON, the string
// rendered into the QR code.
func Encode(c domain.Credential) (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to encode credential: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Decode parses a credential produced by Encode. Plain JSON is accepted too so
// older scanners that skip the base64 step keep working.
func Decode(raw string) (domain.Credential, error) {
	var c domain.Credential
	data := []byte(raw)
	if len(raw) == 0 || raw[0] != '{' {
		decoded, err := base64.RawURLEncoding.DecodeString(raw)
		if err != nil {
			return c, domain.ErrCredentialMalformed
		}
		data = decoded
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, domain.ErrCredentialMalformed
	}
	return c, nil
}

// signingInput frames every field as <len>:<bytes> so a member id or nonce
// containing separators cannot shift bytes into a neighbouring field.
func signingInput(c domain.Credential) []byte {
	var buf bytes.Buffer
	for _, field := range []string{c.MemberID, strconv.FormatInt(c.IssuedAt, 10), c.Nonce} {
		buf.WriteString(strconv.Itoa(len(field)))
		buf.WriteByte(':')
		buf.WriteString(field)
	}
	return buf.Bytes()
}

func sign(key []byte, c domain.Credential) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(signingInput(c))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// validNonce reports whether nonce has an acceptable length and only
// alphanumeric characters.
func validNonce(nonce string) bool {
	if len(nonce) < minNonceLen || len(nonce) > maxNonceLen {
		return false
	}
	for i := 0; i < len(nonce); i++ {
		if strings.IndexByte(nonceAlphabet, nonce[i]) < 0 {
			return false
		}
	}
	return true
}

// generateNonce returns a random alphanumeric string of nonceLen characters.
func generateNonce() (string, error) {
	b := make([]byte, nonceLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = nonceAlphabet[int(b[i])%len(nonceAlphabet)]
	}
	return string(b), nil
}
