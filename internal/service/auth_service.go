package service

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Freeeeeet/mentorbook/internal/model"
)

const purposeTelegramLink = "tg-link"

// Claims is the JWT payload. Subject holds the user id.
type Claims struct {
	Role    model.Role `json:"role,omitempty"`
	Purpose string     `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 tokens. Access tokens are issued by the identity
// service; this side only verifies them, and issues short-lived link tokens.
type Tokens struct {
	secret []byte
	now    func() time.Time
}

// NewTokens returns Tokens keyed by the shared HS256 secret.
func NewTokens(secret string) *Tokens {
	return &Tokens{secret: []byte(secret), now: time.Now}
}

// Issue signs an access token for the principal.
func (t *Tokens) Issue(principal model.Principal, ttl time.Duration) (string, error) {
	return t.sign(Claims{Role: principal.Role}, principal.ID, ttl)
}

func (t *Tokens) sign(claims Claims, userID int64, ttl time.Duration) (string, error) {
	now := t.now()
	claims.Subject = strconv.FormatInt(userID, 10)
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (t *Tokens) parse(tokenStr string) (*Claims, int64, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, 0, model.Wrap(model.ErrUnauthorized, err)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return nil, 0, model.Errorf(model.ErrUnauthorized, "invalid subject")
	}
	return claims, id, nil
}

// Verify returns the principal of a valid access token.
func (t *Tokens) Verify(tokenStr string) (model.Principal, error) {
	claims, id, err := t.parse(tokenStr)
	if err != nil {
		return model.Principal{}, err
	}
	if claims.Purpose != "" {
		return model.Principal{}, model.Errorf(model.ErrUnauthorized, "not an access token")
	}
	switch claims.Role {
	case model.RoleLearner, model.RoleHost, model.RoleAdmin:
	default:
		return model.Principal{}, model.Errorf(model.ErrUnauthorized, "unknown role %q", claims.Role)
	}
	return model.Principal{ID: id, Role: claims.Role}, nil
}
