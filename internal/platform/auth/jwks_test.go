package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func jwksServer(t *testing.T, key *rsa.PrivateKey, kid string) *httptest.Server {
	t.Helper()
	resp := jwkSet{Keys: []jwk{{
		Kty: "RSA",
		Kid: kid,
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
	}}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func signIDToken(t *testing.T, key *rsa.PrivateKey, kid string, claims googleClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func validGoogleClaims() googleClaims {
	return googleClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://accounts.google.com",
			Audience:  jwt.ClaimStrings{"client-123"},
			Subject:   "g-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email:         "ana@example.com",
		EmailVerified: true,
		Name:          "Ana Souza",
		GivenName:     "Ana",
		FamilyName:    "Souza",
		Picture:       "https://example.com/a.png",
	}
}

func TestGoogleVerifier_Valid(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	srv := jwksServer(t, key, "k1")
	v := NewGoogleVerifier("client-123", srv.URL)

	id, err := v.Verify(context.Background(), signIDToken(t, key, "k1", validGoogleClaims()))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.Email != "ana@example.com" || id.GivenName != "Ana" || id.FamilyName != "Souza" {
		t.Errorf("unexpected identity: %+v", id)
	}
}

func TestGoogleVerifier_Rejects(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	srv := jwksServer(t, key, "k1")

	tests := []struct {
		name   string
		mutate func(*googleClaims)
		kid    string
	}{
		{"wrong audience", func(c *googleClaims) { c.Audience = jwt.ClaimStrings{"other"} }, "k1"},
		{"wrong issuer", func(c *googleClaims) { c.Issuer = "https://evil.example.com" }, "k1"},
		{"expired", func(c *googleClaims) { c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour)) }, "k1"},
		{"no email", func(c *googleClaims) { c.Email = "" }, "k1"},
		{"unknown kid", func(c *googleClaims) {}, "k2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := validGoogleClaims()
			tt.mutate(&claims)
			v := NewGoogleVerifier("client-123", srv.URL)
			_, err := v.Verify(context.Background(), signIDToken(t, key, tt.kid, claims))
			if !errors.Is(err, ErrInvalidIDToken) {
				t.Errorf("expected ErrInvalidIDToken, got %v", err)
			}
		})
	}
}

func TestGoogleVerifier_NoClientID(t *testing.T) {
	v := NewGoogleVerifier("", "http://127.0.0.1:0")
	if _, err := v.Verify(context.Background(), "x"); !errors.Is(err, ErrInvalidIDToken) {
		t.Errorf("expected ErrInvalidIDToken, got %v", err)
	}
}

func TestJWKSCache_SkipsNonRSA(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(jwkSet{Keys: []jwk{{Kty: "EC", Kid: "ec"}}})
	}))
	defer srv.Close()

	c := NewJWKSCache(srv.URL, time.Minute)
	if _, err := c.GetKey(context.Background(), "ec"); err == nil {
		t.Error("expected EC key to be skipped")
	}
}

func countingJWKS(t *testing.T, key *rsa.PrivateKey, kid, cacheControl string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	hits := new(atomic.Int32)
	set := jwkSet{Keys: []jwk{{
		Kty: "RSA",
		Kid: kid,
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
	}}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if cacheControl != "" {
			w.Header().Set("Cache-Control", cacheControl)
		}
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(srv.Close)
	return srv, hits
}

func TestJWKSCache_MaxAgeAndMissCooldown(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	srv, hits := countingJWKS(t, key, "k1", "public, max-age=600, must-revalidate")
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	c := NewJWKSCache(srv.URL, time.Minute)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	if _, err := c.GetKey(ctx, "k1"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetKey(ctx, "bogus"); err == nil {
		t.Error("unknown kid must fail")
	}
	if hits.Load() != 1 {
		t.Errorf("unknown kid inside the cooldown refetched: hits=%d", hits.Load())
	}

	now = now.Add(5 * time.Minute) // past the fallback TTL, inside max-age
	if _, err := c.GetKey(ctx, "k1"); err != nil || hits.Load() != 1 {
		t.Fatalf("expected cached key, hits=%d err=%v", hits.Load(), err)
	}
	c.GetKey(ctx, "bogus")
	if hits.Load() != 2 {
		t.Errorf("unknown kid after the cooldown must refetch: hits=%d", hits.Load())
	}

	now = now.Add(11 * time.Minute)
	if _, err := c.GetKey(ctx, "k1"); err != nil || hits.Load() != 3 {
		t.Errorf("expired set must refetch: hits=%d err=%v", hits.Load(), err)
	}
}

func TestJWKSCache_StaleKeyOnOutage(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	srv, _ := countingJWKS(t, key, "k1", "")
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	c := NewJWKSCache(srv.URL, time.Minute)
	c.now = func() time.Time { return now }

	if _, err := c.GetKey(context.Background(), "k1"); err != nil {
		t.Fatal(err)
	}
	srv.Close()
	now = now.Add(time.Hour)
	if got, err := c.GetKey(context.Background(), "k1"); err != nil || got == nil {
		t.Errorf("expected stale key during outage, got %v", err)
	}
}

func TestMaxAge(t *testing.T) {
	cases := map[string]time.Duration{
		"public, max-age=21042, must-revalidate": 21042 * time.Second,
		"max-age=\"60\"":                         time.Minute,
		"no-cache":                               0,
		"max-age=0":                              0,
		"":                                       0,
	}
	for header, want := range cases {
		got, ok := maxAge(header)
		if got != want || ok != (want > 0) {
			t.Errorf("maxAge(%q) = %v %v", header, got, ok)
		}
	}
}
