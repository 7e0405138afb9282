package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers every validation failure: bad signature,
// unparseable structure, wrong signing method, expired.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the decoded payload of a bearer token.
type Claims struct {
	Subject string
	Scopes  []string
}

// Service issues and validates self-contained HS256 bearer tokens.
// There is no revocation: a token stays valid for its full TTL even if
// the account's password changes afterwards.
type Service struct {
	secret     []byte
	defaultTTL time.Duration
}

func New(secret string, defaultTTL time.Duration) *Service {
	if defaultTTL <= 0 {
		defaultTTL = 7 * 24 * time.Hour
	}

	return &Service{
		secret:     []byte(secret),
		defaultTTL: defaultTTL,
	}
}

// Issue signs a token for the subject with the granted scopes. A zero ttl
// falls back to the service default; a negative ttl produces an already
// expired token.
func (s *Service) Issue(subject string, scopes []string, ttl time.Duration) (string, error) {
	const op = "tokens.Issue"

	if ttl == 0 {
		ttl = s.defaultTTL
	}

	claims := jwt.MapClaims{
		"sub":    subject,
		"scopes": scopes,
		"exp":    time.Now().Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// Validate verifies the signature and expiration and returns the decoded
// claims. Any failure maps to ErrInvalidToken; the absence of a token is
// the caller's concern, not an error here.
func (s *Service) Validate(raw string) (Claims, error) {
	const op = "tokens.Validate"

	claims := jwt.MapClaims{}

	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%s: unexpected signing method", op)
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}

	exp, ok := claims["exp"].(float64)
	if !ok || time.Now().Unix() > int64(exp) {
		return Claims{}, ErrInvalidToken
	}

	subject, ok := claims["sub"].(string)
	if !ok || subject == "" {
		return Claims{}, ErrInvalidToken
	}

	// a nil scope slice marshals to a null claim; both mean the empty set
	var scopes []string
	if raw := claims["scopes"]; raw != nil {
		list, ok := raw.([]interface{})
		if !ok {
			return Claims{}, ErrInvalidToken
		}

		scopes = make([]string, 0, len(list))
		for _, s := range list {
			scope, ok := s.(string)
			if !ok {
				return Claims{}, ErrInvalidToken
			}
			scopes = append(scopes, scope)
		}
	}

	return Claims{Subject: subject, Scopes: scopes}, nil
}
