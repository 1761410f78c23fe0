package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrMissingSubject = errors.New("token carries no user id")

// TokenService verifies session tokens issued by the identity service and
// mints equivalent tokens for local tooling.
type TokenService struct {
	secret    []byte
	expiresIn time.Duration
}

func NewTokenService(secret string, expiresIn time.Duration) *TokenService {
	return &TokenService{
		secret:    []byte(secret),
		expiresIn: expiresIn,
	}
}

// CreateForUser creates a JWT for the given user id using the default TTL.
func (t *TokenService) CreateForUser(userID string) (string, error) {
	return t.CreateWithTTL(userID, t.expiresIn)
}

// CreateWithTTL creates a JWT for the given user id with an explicit TTL.
func (t *TokenService) CreateWithTTL(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"id":  userID,
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Parse validates a token and returns its claims.
func (t *TokenService) Parse(tokenStr string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok {
		return claims, nil
	}
	return nil, jwt.ErrTokenMalformed
}

// UserID validates the token and extracts the user id. The identity service
// puts it in "id"; "sub" is accepted as a fallback.
func (t *TokenService) UserID(tokenStr string) (string, error) {
	claims, err := t.Parse(tokenStr)
	if err != nil {
		return "", err
	}
	if id, _ := claims["id"].(string); id != "" {
		return id, nil
	}
	if sub, _ := claims["sub"].(string); sub != "" {
		return sub, nil
	}
	return "", ErrMissingSubject
}
