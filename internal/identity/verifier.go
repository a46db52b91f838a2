package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/form3tech-oss/jwt-go"
)

// ErrInvalidToken is returned when a bearer token cannot be verified.
var ErrInvalidToken = errors.New("invalid token")

// Claims is what a verified token tells us about its bearer.
type Claims struct {
	Identity Identity
	Email    string
}

// Verifier resolves a bearer token to a registered identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

// GuestOnly rejects every token. It is used when no signing secret is
// configured, so every connection plays as a guest.
type GuestOnly struct{}

func (GuestOnly) Verify(context.Context, string) (Claims, error) {
	return Claims{}, ErrInvalidToken
}

// JWTVerifier verifies HS256 tokens whose "sub" claim is the user id.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier for tokens signed with secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(ctx context.Context, token string) (Claims, error) {
	if token == "" {
		return Claims{}, ErrInvalidToken
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	sub, _ := mc["sub"].(string)
	if sub == "" {
		return Claims{}, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}
	email, _ := mc["email"].(string)
	return Claims{Identity: Registered(sub), Email: email}, nil
}

// Issue signs a token for userID. The identity service normally does this;
// it lives here for tests and local tooling.
func (v *JWTVerifier) Issue(userID, email string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
