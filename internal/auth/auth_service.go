package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTypeAccess is the only token type accepted by the API.
const TokenTypeAccess = "access"

// TokenClaims carries the fields read by the middleware. Tokens are issued by the school
// management service; this service only verifies them.
type TokenClaims struct {
	TokenType string `json:"token_type"`
	Role      string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates RS256 bearer tokens against a public key.
type Verifier struct {
	publicKey *rsa.PublicKey
}

// NewVerifier parses a PEM encoded RSA public key.
func NewVerifier(publicKeyPEM []byte) (*Verifier, error) {
	if len(publicKeyPEM) == 0 {
		return nil, errors.New("public key pem is required")
	}
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse rsa public key: %w", err)
	}
	return &Verifier{publicKey: publicKey}, nil
}

// LoadVerifier reads the public key from path.
func LoadVerifier(path string) (*Verifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	return NewVerifier(data)
}

// ValidateToken parses and verifies a token. Expiry is enforced.
func (v *Verifier) ValidateToken(tokenString string) (*TokenClaims, error) {
	if tokenString == "" {
		return nil, errors.New("token string is empty")
	}

	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return v.publicKey, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.Subject == "" {
		return nil, errors.New("token subject is empty")
	}
	return claims, nil
}
