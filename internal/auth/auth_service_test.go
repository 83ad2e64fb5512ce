package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newKeyPair(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	return key, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
}

func sign(t *testing.T, key *rsa.PrivateKey, claims TokenClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func TestVerifier_ValidateToken(t *testing.T) {
	key, pub := newKeyPair(t)
	path := filepath.Join(t.TempDir(), "jwt.pub")
	if err := os.WriteFile(path, pub, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	v, err := LoadVerifier(path)
	if err != nil {
		t.Fatalf("load verifier: %v", err)
	}

	now := time.Now()
	valid := TokenClaims{
		TokenType: TokenTypeAccess,
		Role:      "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "staff-7",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	claims, err := v.ValidateToken(sign(t, key, valid))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Subject != "staff-7" || claims.TokenType != TokenTypeAccess || claims.Role != "admin" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))
	if _, err := v.ValidateToken(sign(t, key, expired)); err == nil {
		t.Fatalf("expired token must be rejected")
	}

	noExpiry := valid
	noExpiry.ExpiresAt = nil
	if _, err := v.ValidateToken(sign(t, key, noExpiry)); err == nil {
		t.Fatalf("token without expiry must be rejected")
	}

	other, _ := newKeyPair(t)
	if _, err := v.ValidateToken(sign(t, other, valid)); err == nil {
		t.Fatalf("token signed by another key must be rejected")
	}

	hs, err := jwt.NewWithClaims(jwt.SigningMethodHS256, valid).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign hs256: %v", err)
	}
	if _, err := v.ValidateToken(hs); err == nil {
		t.Fatalf("hs256 token must be rejected")
	}
}

func TestNewVerifier_RejectsBadKeys(t *testing.T) {
	if _, err := NewVerifier(nil); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if _, err := NewVerifier([]byte("not a key")); err == nil {
		t.Fatalf("expected error for malformed key")
	}
}
