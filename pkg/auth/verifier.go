package auth

import (
	"crypto/hmac"
	"log/slog"
	"time"

	"github.com/tendant/gymkeeper/pkg/domain"
)

// DefaultTolerance is how far a credential's issue time may drift from the
// verifier's clock in either direction.
const DefaultTolerance = 60 * time.Second

// VerifierConfig holds verifier configuration.
type VerifierConfig struct {
	Key       []byte
	Tolerance time.Duration
	// Guard rejects a second presentation of the same credential inside the
	// tolerance window. Nil disables replay tracking.
	Guard *ReplayGuard
}

// Verifier checks scanned credentials. Verification is pure computation and
// never touches the store.
type Verifier struct {
	config VerifierConfig
	logger *slog.Logger
}

// NewVerifier creates a verifier.
func NewVerifier(config VerifierConfig, logger *slog.Logger) *Verifier {
	if config.Tolerance <= 0 {
		config.Tolerance = DefaultTolerance
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{config: config, logger: logger}
}

// Tolerance returns the configured freshness window.
func (v *Verifier) Tolerance() time.Duration {
	return v.config.Tolerance
}

// Verify decodes raw and checks signature then freshness against now.
func (v *Verifier) Verify(raw string, now time.Time) domain.VerifyResult {
	c, err := Decode(raw)
	if err != nil || c.MemberID == "" || !validNonce(c.Nonce) || c.Signature == "" ||
		c.IssuedAt < 0 || c.IssuedAt > maxIssuedAt {
		return invalid(domain.ReasonMalformed, domain.ErrCredentialMalformed)
	}

	expected := sign(v.config.Key, c)
	if !hmac.Equal([]byte(expected), []byte(c.Signature)) {
		// Operators see the same message as for malformed codes.
		v.logger.Warn("credential signature mismatch",
			"member_id", c.MemberID,
			"issued_at", c.IssuedAt,
		)
		return invalid(domain.ReasonBadSignature, domain.ErrCredentialBadSignature)
	}

	// IssuedAt is range-checked above, so whole-second math cannot overflow.
	skew := now.Unix() - c.IssuedAt
	tolerance := int64(v.config.Tolerance / time.Second)
	if skew > tolerance || skew < -tolerance {
		return domain.VerifyResult{
			Status: domain.VerifyExpired,
			Reason: domain.ReasonStale,
			Err:    domain.ErrCredentialStale,
		}
	}

	if v.config.Guard != nil && !v.config.Guard.Consume(c, now, v.config.Tolerance) {
		v.logger.Warn("credential replayed", "member_id", c.MemberID, "issued_at", c.IssuedAt)
		return invalid(domain.ReasonReplayed, domain.ErrCredentialReplayed)
	}

	return domain.VerifyResult{Status: domain.VerifyValid, MemberID: c.MemberID}
}

func invalid(reason string, err error) domain.VerifyResult {
	return domain.VerifyResult{Status: domain.VerifyInvalid, Reason: reason, Err: err}
}
