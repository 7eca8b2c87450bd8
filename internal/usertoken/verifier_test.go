package usertoken

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func TestNewVerifierRequiresJWKSURL(t *testing.T) {
	if _, err := NewVerifier(Config{}); err == nil {
		t.Fatalf("expected missing jwks url to fail")
	}
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid, subject string, iat time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    "caretalk-idp",
		Audience:  jwt.ClaimStrings{"caretalk-api"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  jwt.NewNumericDate(iat),
		NotBefore: jwt.NewNumericDate(iat),
	})
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func jwkEntry(kid string, key rsa.PublicKey) map[string]string {
	return map[string]string{
		"kty": "RSA",
		"kid": kid,
		"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}
}

func TestVerifySubjectAndRefreshOnRotatedKey(t *testing.T) {
	key1, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key1: %v", err)
	}
	key2, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key2: %v", err)
	}

	activeKid := "kid-1"
	jwksServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		key := key1.PublicKey
		if activeKid == "kid-2" {
			key = key2.PublicKey
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{jwkEntry(activeKid, key)}})
	}))
	defer jwksServer.Close()

	v, err := NewVerifier(Config{JWKSURL: jwksServer.URL})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	if sub, err := v.VerifySubject(signToken(t, key1, "kid-1", "7", time.Now())); err != nil || sub != "7" {
		t.Fatalf("verify with kid-1: sub=%q err=%v", sub, err)
	}

	// Rotate keys; the unknown kid triggers a refresh and the retry succeeds.
	activeKid = "kid-2"
	if sub, err := v.VerifySubject(signToken(t, key2, "kid-2", "8", time.Now())); err != nil || sub != "8" {
		t.Fatalf("verify with kid-2: sub=%q err=%v", sub, err)
	}
}

func TestVerifyRejectsBadClaims(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	jwksServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{jwkEntry("kid-1", key.PublicKey)}})
	}))
	defer jwksServer.Close()

	v, err := NewVerifier(Config{JWKSURL: jwksServer.URL, Leeway: 5 * time.Second})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	if _, err := v.VerifySubject(signToken(t, key, "kid-1", "7", time.Now().Add(2*time.Minute))); err == nil {
		t.Fatalf("expected future iat token to fail")
	}

	wrongKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate wrong key: %v", err)
	}
	if _, err := v.VerifySubject(signToken(t, wrongKey, "kid-1", "7", time.Now())); err == nil {
		t.Fatalf("expected wrong signature to fail")
	}

	if _, err := v.VerifySubject(signToken(t, key, "kid-1", "", time.Now())); err == nil {
		t.Fatalf("expected empty subject to fail")
	}
}
