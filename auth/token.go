package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v4"
)

// Verifier validates bearer tokens issued by the upstream auth service.
// This service never issues tokens; it only checks signatures and extracts
// the subject so requests can be attributed and forwarded.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	if secret == "" {
		return &Verifier{}
	}
	return &Verifier{secret: []byte(secret)}
}

// ParseAndValidate parses a JWT token string and returns its claims.
func (v *Verifier) ParseAndValidate(tokenStr string) (jwt.MapClaims, error) {
	if v.secret == nil {
		return nil, fmt.Errorf("JWT secret not configured")
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})

	if err != nil || token == nil || !token.Valid {
		return nil, fmt.Errorf("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// Subject returns the user id carried by the token, trying the claim
// names the upstream has used over time.
func Subject(claims jwt.MapClaims) (string, error) {
	for _, key := range []string{"sub", "user_id", "id"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("token has no subject claim")
}
