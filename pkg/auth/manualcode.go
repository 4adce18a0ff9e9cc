package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"sync"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/time/rate"

	"github.com/tendant/gymkeeper/pkg/domain"
)

const (
	manualCodeDigits = otp.DigitsSix
	manualCodeSkew   = 1

	defaultManualAttempts = 5
	defaultManualWindow   = time.Minute
)

// ManualCodeConfig holds manual entry code configuration.
type ManualCodeConfig struct {
	Key    []byte
	Period time.Duration
	// Attempts verification attempts are allowed per member per Window.
	Attempts int
	Window   time.Duration
}

type attemptLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ManualCodeService issues the six-digit fallback code shown under the QR
// code, for scanners that cannot read it. Codes rotate with the credential.
type ManualCodeService struct {
	config ManualCodeConfig
	clock  domain.Clock

	mu       sync.Mutex
	limiters map[string]*attemptLimiter
}

// NewManualCodeService creates a manual code service.
func NewManualCodeService(config ManualCodeConfig, clock domain.Clock) *ManualCodeService {
	if config.Period <= 0 {
		config.Period = DefaultRotationInterval
	}
	if config.Attempts <= 0 {
		config.Attempts = defaultManualAttempts
	}
	if config.Window <= 0 {
		config.Window = defaultManualWindow
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &ManualCodeService{
		config:   config,
		clock:    clock,
		limiters: make(map[string]*attemptLimiter),
	}
}

// Generate returns the member's current code.
func (s *ManualCodeService) Generate(memberID string) (string, error) {
	code, err := totp.GenerateCodeCustom(s.secret(memberID), s.clock.Now(), s.opts())
	if err != nil {
		return "", fmt.Errorf("failed to generate manual code: %w", err)
	}
	return code, nil
}

// Verify checks a code typed in by staff for memberID. Attempts are rate
// limited per member.
func (s *ManualCodeService) Verify(memberID, code string) error {
	if memberID == "" || code == "" {
		return domain.ErrInvalidManualCode
	}
	now := s.clock.Now()
	if !s.allow(memberID, now) {
		return domain.ErrTooManyAttempts
	}

	valid, err := totp.ValidateCustom(code, s.secret(memberID), now, s.opts())
	if err != nil || !valid {
		return domain.ErrInvalidManualCode
	}
	return nil
}

// Prune drops limiters idle for longer than olderThan and returns how many
// were removed.
func (s *ManualCodeService) Prune(olderThan time.Duration) int {
	cutoff := s.clock.Now().Add(-olderThan)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, l := range s.limiters {
		if l.lastSeen.Before(cutoff) {
			delete(s.limiters, id)
			removed++
		}
	}
	return removed
}

func (s *ManualCodeService) allow(memberID string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[memberID]
	if !ok {
		every := rate.Every(s.config.Window / time.Duration(s.config.Attempts))
		l = &attemptLimiter{limiter: rate.NewLimiter(every, s.config.Attempts)}
		s.limiters[memberID] = l
	}
	l.lastSeen = now
	return l.limiter.AllowN(now, 1)
}

func (s *ManualCodeService) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    uint(s.config.Period / time.Second),
		Skew:      manualCodeSkew,
		Digits:    manualCodeDigits,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// secret derives a stable per-member TOTP secret so nothing is stored.
func (s *ManualCodeService) secret(memberID string) string {
	mac := hmac.New(sha256.New, s.config.Key)
	mac.Write([]byte(memberID))
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(mac.Sum(nil)[:20])
}
