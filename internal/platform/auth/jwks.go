package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// jwk is one key of a JSON Web Key Set. Only RSA signing keys are used.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

// missCooldown stops tokens with made-up kids from hammering the key
// endpoint.
const missCooldown = 30 * time.Second

// JWKSCache keeps the RSA keys of a remote key set. The set is refreshed
// when its lifetime ends, taken from Cache-Control max-age when the endpoint
// sends one and from the fallback TTL otherwise, or when an unknown kid shows
// up. Concurrent refreshes collapse into one request.
type JWKSCache struct {
	url    string
	ttl    time.Duration
	client *http.Client
	now    func() time.Time

	refresh sync.Mutex

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
	expires   time.Time
}

func NewJWKSCache(url string, ttl time.Duration) *JWKSCache {
	return &JWKSCache{
		url:    url,
		ttl:    ttl,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
		keys:   map[string]*rsa.PublicKey{},
	}
}

func (c *JWKSCache) lookup(kid string) (key *rsa.PublicKey, fresh bool, fetchedAt time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.keys[kid], c.now().Before(c.expires), c.fetchedAt
}

// GetKey returns the public key for kid.
func (c *JWKSCache) GetKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	key, fresh, _ := c.lookup(kid)
	if key != nil && fresh {
		return key, nil
	}

	c.refresh.Lock()
	defer c.refresh.Unlock()

	// Another caller may have refreshed while we waited.
	key, fresh, fetchedAt := c.lookup(kid)
	switch {
	case key != nil && fresh:
		return key, nil
	case key == nil && fresh && c.now().Sub(fetchedAt) < missCooldown:
		return nil, fmt.Errorf("unknown signing key %q", kid)
	}

	if err := c.fetch(ctx); err != nil {
		if key != nil {
			// Serve the stale key rather than fail every login.
			return key, nil
		}
		return nil, fmt.Errorf("fetch key set: %w", err)
	}
	if key, _, _ = c.lookup(kid); key == nil {
		return nil, fmt.Errorf("unknown signing key %q", kid)
	}
	return key, nil
}

func (c *JWKSCache) fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("key endpoint answered %s", resp.Status)
	}

	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("decode key set: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		if pub, err := k.rsaKey(); err == nil {
			keys[k.Kid] = pub
		}
	}

	now := c.now()
	lifetime := c.ttl
	if age, ok := maxAge(resp.Header.Get("Cache-Control")); ok {
		lifetime = age
	}
	c.mu.Lock()
	c.keys = keys
	c.fetchedAt = now
	c.expires = now.Add(lifetime)
	c.mu.Unlock()
	return nil
}

// maxAge extracts max-age from a Cache-Control header.
func maxAge(header string) (time.Duration, bool) {
	for _, directive := range strings.Split(header, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(directive), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		secs, err := strconv.Atoi(strings.Trim(value, `"`))
		if err != nil || secs <= 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	return 0, false
}

func (k jwk) rsaKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	exp := new(big.Int).SetBytes(e)
	if len(n) == 0 || !exp.IsInt64() || exp.Int64() < 3 {
		return nil, errors.New("degenerate rsa key")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}

// GoogleIdentity is the subset of a verified Google ID token the login flow
// uses.
type GoogleIdentity struct {
	Email         string
	EmailVerified bool
	Name          string
	GivenName     string
	FamilyName    string
	Picture       string
}

type googleClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

var googleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

// ErrInvalidIDToken is returned for any ID token that fails verification.
var ErrInvalidIDToken = errors.New("invalid ID token")

// GoogleVerifier checks Google ID tokens against Google's published keys.
type GoogleVerifier struct {
	clientID string
	keys     *JWKSCache
}

func NewGoogleVerifier(clientID, jwksURL string) *GoogleVerifier {
	return &GoogleVerifier{clientID: clientID, keys: NewJWKSCache(jwksURL, time.Hour)}
}

func (v *GoogleVerifier) Verify(ctx context.Context, idToken string) (*GoogleIdentity, error) {
	if v.clientID == "" {
		return nil, fmt.Errorf("%w: google client id not configured", ErrInvalidIDToken)
	}
	claims := &googleClaims{}
	_, err := jwt.ParseWithClaims(idToken, claims, func(t *jwt.Token) (interface{}, error) {
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("token has no kid header")
		}
		return v.keys.GetKey(ctx, kid)
	}, jwt.WithValidMethods([]string{"RS256"}), jwt.WithAudience(v.clientID), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
	}
	issuerOK := false
	for _, iss := range googleIssuers {
		if claims.Issuer == iss {
			issuerOK = true
		}
	}
	if !issuerOK {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidIDToken, claims.Issuer)
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("%w: no email claim", ErrInvalidIDToken)
	}
	return &GoogleIdentity{
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		GivenName:     claims.GivenName,
		FamilyName:    claims.FamilyName,
		Picture:       claims.Picture,
	}, nil
}
