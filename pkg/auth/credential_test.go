package auth

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/tendant/gymkeeper/pkg/domain"
)

const testSecret = "0123456789abcdef0123456789abcdef-test"

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time { return c.t }

func testKeys(t testing.TB) Keys {
	keys, err := DeriveKeys(testSecret)
	if err != nil {
		t.Fatalf("DeriveKeys() error = %v", err)
	}
	return keys
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDeriveKeys(t *testing.T) {
	keys := testKeys(t)
	assert.Len(t, keys.Credential, 32)
	assert.Len(t, keys.Manual, 32)
	assert.NotEqual(t, keys.Credential, keys.Manual)

	again := testKeys(t)
	assert.Equal(t, keys, again, "derivation must be deterministic")

	_, err := DeriveKeys("too-short")
	assert.Error(t, err)
}

func TestSigner_Issue(t *testing.T) {
	clock := &fixedClock{t: time.Unix(1_700_000_000, 0)}
	signer := NewSigner(testKeys(t).Credential, clock)

	c, err := signer.Issue("member-1")
	require.NoError(t, err)

	assert.Equal(t, "member-1", c.MemberID)
	assert.Equal(t, int64(1_700_000_000), c.IssuedAt)
	assert.GreaterOrEqual(t, len(c.Nonce), 16)
	for _, r := range c.Nonce {
		assert.True(t, strings.ContainsRune(nonceAlphabet, r), "nonce char %q not alphanumeric", r)
	}
	assert.NotEmpty(t, c.Signature)

	other, err := signer.Issue("member-1")
	require.NoError(t, err)
	assert.NotEqual(t, c.Nonce, other.Nonce, "two issues in the same second must differ")
	assert.NotEqual(t, c.Signature, other.Signature)

	_, err = signer.Issue("")
	assert.ErrorIs(t, err, domain.ErrMissingField)
}

func TestEncode_URLSafe(t *testing.T) {
	signer := NewSigner(testKeys(t).Credential, nil)
	encoded, _, err := signer.IssueEncoded("member/with+chars")
	require.NoError(t, err)
	assert.NotContains(t, encoded, "+")
	assert.NotContains(t, encoded, "/")
	assert.NotContains(t, encoded, "=")

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, "member/with+chars", decoded.MemberID)
}

func TestVerifier_Verify(t *testing.T) {
	keys := testKeys(t)
	issuedAt := time.Unix(1_700_000_000, 0)
	signer := NewSigner(keys.Credential, &fixedClock{t: issuedAt})
	verifier := NewVerifier(VerifierConfig{Key: keys.Credential, Tolerance: 60 * time.Second}, discardLogger())

	encoded, _, err := signer.IssueEncoded("member-1")
	require.NoError(t, err)

	otherKeys, err := DeriveKeys(strings.Repeat("z", 40))
	require.NoError(t, err)
	foreign, _, err := NewSigner(otherKeys.Credential, &fixedClock{t: issuedAt}).IssueEncoded("member-1")
	require.NoError(t, err)

	tests := []struct {
		name       string
		raw        string
		now        time.Time
		wantStatus domain.VerifyStatus
		wantReason string
	}{
		{name: "fresh", raw: encoded, now: issuedAt, wantStatus: domain.VerifyValid},
		{name: "ten seconds old", raw: encoded, now: issuedAt.Add(10 * time.Second), wantStatus: domain.VerifyValid},
		{name: "59 seconds old", raw: encoded, now: issuedAt.Add(59 * time.Second), wantStatus: domain.VerifyValid},
		{name: "exactly at tolerance", raw: encoded, now: issuedAt.Add(60 * time.Second), wantStatus: domain.VerifyValid},
		{
			name: "61 seconds old", raw: encoded, now: issuedAt.Add(61 * time.Second),
			wantStatus: domain.VerifyExpired, wantReason: domain.ReasonStale,
		},
		{
			name: "issued in the future beyond skew", raw: encoded, now: issuedAt.Add(-61 * time.Second),
			wantStatus: domain.VerifyExpired, wantReason: domain.ReasonStale,
		},
		{
			name: "not base64", raw: "%%%not-a-credential", now: issuedAt,
			wantStatus: domain.VerifyInvalid, wantReason: domain.ReasonMalformed,
		},
		{
			name: "empty", raw: "", now: issuedAt,
			wantStatus: domain.VerifyInvalid, wantReason: domain.ReasonMalformed,
		},
		{
			name: "signed with another secret", raw: foreign, now: issuedAt,
			wantStatus: domain.VerifyInvalid, wantReason: domain.ReasonBadSignature,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := verifier.Verify(tt.raw, tt.now)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantReason, got.Reason)
			if tt.wantStatus == domain.VerifyValid {
				assert.Equal(t, "member-1", got.MemberID)
				assert.NoError(t, got.Err)
			} else {
				assert.Empty(t, got.MemberID)
				assert.Error(t, got.Err)
			}
		})
	}
}

func TestVerifier_MissingFieldsAreMalformed(t *testing.T) {
	keys := testKeys(t)
	verifier := NewVerifier(VerifierConfig{Key: keys.Credential}, discardLogger())

	raw, _ := json.Marshal(map[string]any{"memberId": "m1", "issuedAt": time.Now().Unix(), "nonce": "short"})
	got := verifier.Verify(base64.RawURLEncoding.EncodeToString(raw), time.Now())
	assert.Equal(t, domain.ReasonMalformed, got.Reason)
	assert.ErrorIs(t, got.Err, domain.ErrCredentialMalformed)
}

func TestVerifier_ReplayGuard(t *testing.T) {
	keys := testKeys(t)
	now := time.Unix(1_700_000_000, 0)
	signer := NewSigner(keys.Credential, &fixedClock{t: now})
	verifier := NewVerifier(VerifierConfig{
		Key:       keys.Credential,
		Tolerance: 60 * time.Second,
		Guard:     NewReplayGuard(),
	}, discardLogger())

	encoded, _, err := signer.IssueEncoded("member-1")
	require.NoError(t, err)

	first := verifier.Verify(encoded, now.Add(time.Second))
	assert.True(t, first.Valid())

	second := verifier.Verify(encoded, now.Add(2*time.Second))
	assert.Equal(t, domain.VerifyInvalid, second.Status)
	assert.Equal(t, domain.ReasonReplayed, second.Reason)

	fresh, _, err := signer.IssueEncoded("member-1")
	require.NoError(t, err)
	assert.True(t, verifier.Verify(fresh, now.Add(3*time.Second)).Valid())
}

func TestReplayGuard_Prune(t *testing.T) {
	g := NewReplayGuard()
	now := time.Unix(1_700_000_000, 0)
	c := domain.Credential{MemberID: "m", IssuedAt: now.Unix(), Signature: "sig"}

	require.True(t, g.Consume(c, now, time.Minute))
	assert.Equal(t, 1, g.Prune(now.Add(30*time.Second)))
	assert.Equal(t, 0, g.Prune(now.Add(61*time.Second)))
	assert.True(t, g.Consume(c, now.Add(61*time.Second), time.Minute), "expired entries are forgotten")
}

func TestVerify_RoundTripProperty(t *testing.T) {
	keys := testKeys(t)
	verifier := NewVerifier(VerifierConfig{Key: keys.Credential, Tolerance: DefaultTolerance}, discardLogger())

	rapid.Check(t, func(t *rapid.T) {
		memberID := rapid.StringMatching(`[A-Za-z0-9_\-]{1,40}`).Draw(t, "memberID")
		issuedAt := time.Unix(rapid.Int64Range(0, 4_000_000_000).Draw(t, "issuedAt"), 0)

		encoded, _, err := NewSigner(keys.Credential, &fixedClock{t: issuedAt}).IssueEncoded(memberID)
		if err != nil {
			t.Fatalf("IssueEncoded() error = %v", err)
		}
		got := verifier.Verify(encoded, issuedAt)
		if !got.Valid() || got.MemberID != memberID {
			t.Fatalf("Verify() = %+v, want valid(%s)", got, memberID)
		}
	})
}

func TestVerify_TamperProperty(t *testing.T) {
	keys := testKeys(t)
	verifier := NewVerifier(VerifierConfig{Key: keys.Credential, Tolerance: DefaultTolerance}, discardLogger())

	rapid.Check(t, func(t *rapid.T) {
		memberID := rapid.StringMatching(`[A-Za-z0-9.:|]{2,24}`).Draw(t, "memberID")
		issuedAt := time.Unix(rapid.Int64Range(1_000_000, 4_000_000_000).Draw(t, "issuedAt"), 0)

		c, err := NewSigner(keys.Credential, &fixedClock{t: issuedAt}).Issue(memberID)
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}

		switch rapid.SampledFrom([]string{"memberId", "issuedAt", "nonce", "shift"}).Draw(t, "field") {
		case "memberId":
			c.MemberID += rapid.StringMatching(`[A-Za-z0-9]{1,4}`).Draw(t, "suffix")
		case "issuedAt":
			// Stay inside the tolerance window so only the signature can reject it.
			delta := rapid.Int64Range(1, 30).Draw(t, "delta")
			if rapid.Bool().Draw(t, "negative") {
				delta = -delta
			}
			c.IssuedAt += delta
		case "nonce":
			c.Nonce = flipChar(c.Nonce, rapid.IntRange(0, len(c.Nonce)-1).Draw(t, "pos"))
		case "shift":
			// Move the member id's last byte into the nonce; the concatenation
			// of all fields is unchanged.
			last := len(c.MemberID) - 1
			c.Nonce = c.MemberID[last:] + c.Nonce
			c.MemberID = c.MemberID[:last]
		}

		encoded, err := Encode(c)
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		got := verifier.Verify(encoded, issuedAt)
		if got.Status != domain.VerifyInvalid {
			t.Fatalf("Verify(tampered) = %+v, want invalid", got)
		}
	})
}

func TestVerifier_FieldBoundariesAreSigned(t *testing.T) {
	keys := testKeys(t)
	verifier := NewVerifier(VerifierConfig{Key: keys.Credential, Tolerance: DefaultTolerance}, discardLogger())

	target := int64(1_800_000_000)
	signedAt := time.Unix(target-3600, 0)

	// A member whose id embeds another member's id and a chosen issue time.
	c, err := NewSigner(keys.Credential, &fixedClock{t: signedAt}).Issue("alice." + strconv.FormatInt(target, 10))
	require.NoError(t, err)

	forged := domain.Credential{
		MemberID:  "alice",
		IssuedAt:  target,
		Nonce:     strconv.FormatInt(signedAt.Unix(), 10) + "." + c.Nonce,
		Signature: c.Signature,
	}
	encoded, err := Encode(forged)
	require.NoError(t, err)

	got := verifier.Verify(encoded, time.Unix(target, 0))
	assert.Equal(t, domain.VerifyInvalid, got.Status)
	assert.Empty(t, got.MemberID)

	// Same shift with an alphanumeric nonce still fails on the signature.
	forged.Nonce = strconv.FormatInt(signedAt.Unix(), 10) + c.Nonce
	encoded, err = Encode(forged)
	require.NoError(t, err)

	got = verifier.Verify(encoded, time.Unix(target, 0))
	assert.Equal(t, domain.VerifyInvalid, got.Status)
	assert.Equal(t, domain.ReasonBadSignature, got.Reason)
}

func TestVerifier_IssuedAtOutOfRange(t *testing.T) {
	keys := testKeys(t)
	verifier := NewVerifier(VerifierConfig{Key: keys.Credential, Tolerance: DefaultTolerance}, discardLogger())
	now := time.Unix(1_800_000_000, 0)

	tests := []struct {
		name       string
		issuedAt   time.Time
		wantStatus domain.VerifyStatus
		wantReason string
	}{
		{name: "far future", issuedAt: time.Unix(9_000_000_000_000_000, 0), wantStatus: domain.VerifyInvalid, wantReason: domain.ReasonMalformed},
		{name: "negative", issuedAt: time.Unix(-5, 0), wantStatus: domain.VerifyInvalid, wantReason: domain.ReasonMalformed},
		{name: "year 9999", issuedAt: time.Unix(maxIssuedAt, 0), wantStatus: domain.VerifyExpired, wantReason: domain.ReasonStale},
		{name: "one hour ahead", issuedAt: now.Add(time.Hour), wantStatus: domain.VerifyExpired, wantReason: domain.ReasonStale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, _, err := NewSigner(keys.Credential, &fixedClock{t: tt.issuedAt}).IssueEncoded("member-1")
			require.NoError(t, err)

			got := verifier.Verify(encoded, now)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantReason, got.Reason)
		})
	}
}

func TestVerifier_NonceAlphabet(t *testing.T) {
	keys := testKeys(t)
	verifier := NewVerifier(VerifierConfig{Key: keys.Credential, Tolerance: DefaultTolerance}, discardLogger())
	now := time.Unix(1_700_000_000, 0)

	for _, nonce := range []string{
		"abcdefgh.ijklmnop",
		"abcdefghijklmnop-",
		strings.Repeat("a", maxNonceLen+1),
	} {
		c := domain.Credential{MemberID: "member-1", IssuedAt: now.Unix(), Nonce: nonce}
		c.Signature = sign(keys.Credential, c)
		encoded, err := Encode(c)
		require.NoError(t, err)

		got := verifier.Verify(encoded, now)
		assert.Equal(t, domain.ReasonMalformed, got.Reason, "nonce %q", nonce)
	}
}

func flipChar(s string, i int) string {
	b := []byte(s)
	if b[i] == 'A' {
		b[i] = 'B'
	} else {
		b[i] = 'A'
	}
	return string(b)
}
