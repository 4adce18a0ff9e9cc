package domain

import "time"

// Credential is the signed, short-lived access payload rendered as a 2-D code.
// It is never persisted.
type Credential struct {
	MemberID  string `json:"memberId"`
	IssuedAt  int64  `json:"issuedAt"`
	Nonce     string `json:"nonce"`
	Signature string `json:"signature"`
}

// IssuedTime returns IssuedAt as a time.Time.
func (c Credential) IssuedTime() time.Time {
	return time.Unix(c.IssuedAt, 0)
}

// VerifyStatus is the verdict of a credential check.
type VerifyStatus string

const (
	VerifyValid   VerifyStatus = "valid"
	VerifyInvalid VerifyStatus = "invalid"
	VerifyExpired VerifyStatus = "expired"
)

// Verification reasons.
const (
	ReasonMalformed    = "malformed"
	ReasonBadSignature = "bad signature"
	ReasonStale        = "stale code"
	ReasonReplayed     = "replayed"
)

// VerifyResult is returned by the verifier. MemberID is set only when valid.
type VerifyResult struct {
	Status   VerifyStatus
	MemberID string
	Reason   string
	// Err is the sentinel matching Reason, nil when valid.
	Err error
}

// Valid reports whether the credential passed every check.
func (r VerifyResult) Valid() bool {
	return r.Status == VerifyValid
}

// Clock supplies wall-clock time. Services take a Clock so tests can pin time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the real clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }
