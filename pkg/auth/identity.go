package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tendant/gymkeeper/pkg/domain"
)

// DefaultIdentityTokenTTL is the lifetime of tokens minted by IssueToken.
const DefaultIdentityTokenTTL = 12 * time.Hour

// IdentityConfig holds identity bridge configuration.
type IdentityConfig struct {
	JWTSecret []byte
	Issuer    string
	TokenTTL  time.Duration
}

// IdentityClaims are the claims carried by bridge tokens. Subject is the
// member id.
type IdentityClaims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

// Identity is the authenticated caller.
type Identity struct {
	MemberID string
	Roles    []domain.Role
}

// HasRole reports whether the identity holds any of roles.
func (i *Identity) HasRole(roles ...domain.Role) bool {
	for _, have := range i.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// IdentityService validates tokens from the external authentication bridge.
// It never talks to an identity provider itself.
type IdentityService struct {
	config IdentityConfig
}

// NewIdentityService creates a new identity service.
func NewIdentityService(config IdentityConfig) *IdentityService {
	if config.TokenTTL == 0 {
		config.TokenTTL = DefaultIdentityTokenTTL
	}
	return &IdentityService{config: config}
}

// IssueToken mints a bridge token. Used by the bridge's development stub and
// by tests.
func (s *IdentityService) IssueToken(memberID string, roles []domain.Role) (string, error) {
	now := time.Now()
	raw := make([]string, len(roles))
	for i, r := range roles {
		raw[i] = string(r)
	}
	claims := IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   memberID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TokenTTL)),
			Issuer:    s.config.Issuer,
			ID:        uuid.NewString(),
		},
		Roles: raw,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.config.JWTSecret)
}

// ValidateToken validates a bridge token and returns the caller's identity.
// A token without roles gets the default member role.
func (s *IdentityService) ValidateToken(tokenString string) (*Identity, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &IdentityClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrInvalidToken
		}
		return s.config.JWTSecret, nil
	}, opts...)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	claims, ok := token.Claims.(*IdentityClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, domain.ErrInvalidToken
	}

	return &Identity{
		MemberID: claims.Subject,
		Roles:    domain.ParseRoles(claims.Roles),
	}, nil
}
