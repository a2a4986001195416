package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aldoetobex/legal-advocate-backend/pkg/apperr"
	"github.com/aldoetobex/legal-advocate-backend/pkg/models"
)

/* ============================== JWT Claims ============================== */

// Claims represents the JWT payload we issue and expect.
// Subject carries the identity id.
type Claims struct {
	Role string `json:"role"` // "client" | "advocate" | "admin"
	jwt.RegisteredClaims
}

// Identity is what a verified token resolves to.
type Identity struct {
	SubjectID string
	Role      models.Role
}

/* ============================== Token Issuer ============================ */

// Tokens issues and verifies bearer tokens. Admin tokens are signed with a
// separate key; a token is only honoured when its role matches the key that signed it.
type Tokens struct {
	userKey  []byte
	adminKey []byte
	ttl      time.Duration
	now      func() time.Time
}

func NewTokens(userSecret, adminSecret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Tokens{userKey: []byte(userSecret), adminKey: []byte(adminSecret), ttl: ttl, now: time.Now}
}

// Issue signs a token for the given subject and role.
func (t *Tokens) Issue(subjectID string, role models.Role) (string, error) {
	now := t.now()
	claims := &Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.keyFor(role))
}

// Verify accepts a token signed by either key, then requires the role claim
// to agree with the key that verified it.
func (t *Tokens) Verify(tokenStr string) (Identity, error) {
	for _, signer := range []struct {
		key   []byte
		admin bool
	}{{t.userKey, false}, {t.adminKey, true}} {
		claims, err := t.parse(tokenStr, signer.key)
		if err != nil {
			continue
		}
		isAdmin := models.Role(claims.Role) == models.RoleAdmin
		if isAdmin != signer.admin {
			continue
		}
		if claims.Subject == "" {
			return Identity{}, apperr.ErrInvalidToken
		}
		switch models.Role(claims.Role) {
		case models.RoleClient, models.RoleAdvocate, models.RoleAdmin:
		default:
			return Identity{}, apperr.ErrInvalidToken
		}
		return Identity{SubjectID: claims.Subject, Role: models.Role(claims.Role)}, nil
	}
	return Identity{}, apperr.ErrInvalidToken
}

func (t *Tokens) parse(tokenStr string, key []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid claims")
	}
	return claims, nil
}

func (t *Tokens) keyFor(role models.Role) []byte {
	if role == models.RoleAdmin {
		return t.adminKey
	}
	return t.userKey
}
