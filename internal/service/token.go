package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sumire/fleetdesk/internal/domain"
)

// TokenService decodes the bearer tokens issued by the access-control
// collaborator into actors. It trusts the role claim as given.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a new TokenService.
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs an access token for actor.
func (s *TokenService) Issue(actor domain.Actor) (string, error) {
	if actor.ID == "" || !actor.Role.Valid() {
		return "", &domain.ValidationError{Field: "actor", Message: "id and a known role are required"}
	}
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  actor.ID,
		"role": string(actor.Role),
		"type": "access",
		"iat":  now.Unix(),
		"exp":  now.Add(s.ttl).Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Resolve validates an access token and returns the actor it names.
func (s *TokenService) Resolve(tokenString string) (domain.Actor, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return domain.Actor{}, fmt.Errorf("%w: parse token: %v", domain.ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return domain.Actor{}, domain.ErrUnauthorized
	}

	tokenType, _ := claims["type"].(string)
	if tokenType != "access" {
		return domain.Actor{}, domain.ErrUnauthorized
	}

	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	actor := domain.Actor{ID: sub, Role: domain.Role(role)}
	if actor.ID == "" || !actor.Role.Valid() {
		return domain.Actor{}, domain.ErrUnauthorized
	}
	return actor, nil
}
