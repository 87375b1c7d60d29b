package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func accessClaims(sub string, roles ...string) Claims {
	now := time.Now()
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti-" + sub,
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Roles:     roles,
		TokenType: TokenAccess,
	}
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func runWithHeader(t *testing.T, mw echo.MiddlewareFunc, header string, h echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/persons/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return rec, mw(h)(c)
}

func assertHTTPCode(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with status %d", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, err := runWithHeader(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "", okHandler)
	assertHTTPCode(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runWithHeader(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), tt.header, okHandler)
			assertHTTPCode(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	tok := createTestToken(t, accessClaims("acct-1", RolePerson), testSigningKey)

	var gotUser string
	var gotRoles []string
	h := func(c echo.Context) error {
		gotUser = UserIDFromContext(c.Request().Context())
		gotRoles = RolesFromContext(c.Request().Context())
		return c.String(http.StatusOK, "ok")
	}
	rec, err := runWithHeader(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+tok, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if gotUser != "acct-1" {
		t.Errorf("expected user acct-1, got %q", gotUser)
	}
	if len(gotRoles) != 1 || gotRoles[0] != RolePerson {
		t.Errorf("expected [person], got %v", gotRoles)
	}
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	claims := accessClaims("acct-1")
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	tok := createTestToken(t, claims, testSigningKey)

	_, err := runWithHeader(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+tok, okHandler)
	assertHTTPCode(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	tok := createTestToken(t, accessClaims("acct-1"), []byte("another-key"))
	_, err := runWithHeader(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+tok, okHandler)
	assertHTTPCode(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_RejectsRefreshToken(t *testing.T) {
	claims := accessClaims("acct-1")
	claims.TokenType = TokenRefresh
	tok := createTestToken(t, claims, testSigningKey)

	_, err := runWithHeader(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+tok, okHandler)
	assertHTTPCode(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_RevokedToken(t *testing.T) {
	store := NewMemoryRevocationStore()
	defer store.Close()

	claims := accessClaims("acct-1")
	tok := createTestToken(t, claims, testSigningKey)
	if err := store.Revoke(context.Background(), claims.ID, "acct-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	_, err := runWithHeader(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Revocations: store}), "Bearer "+tok, okHandler)
	assertHTTPCode(t, err, http.StatusUnauthorized)
}

func TestDevAuthMiddleware_AccountHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/persons/me", nil)
	req.Header.Set("X-Account-ID", "dev-account")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var gotUser string
	h := func(c echo.Context) error {
		gotUser = UserIDFromContext(c.Request().Context())
		return c.String(http.StatusOK, "ok")
	}
	if err := DevAuthMiddleware(JWTConfig{SigningKey: testSigningKey})(h)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotUser != "dev-account" {
		t.Errorf("expected dev-account, got %q", gotUser)
	}
}

func TestDevAuthMiddleware_NoIdentity(t *testing.T) {
	_, err := runWithHeader(t, DevAuthMiddleware(JWTConfig{SigningKey: testSigningKey}), "", okHandler)
	assertHTTPCode(t, err, http.StatusUnauthorized)
}

func TestDevAuthMiddleware_ValidatesBearer(t *testing.T) {
	_, err := runWithHeader(t, DevAuthMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer garbage", okHandler)
	assertHTTPCode(t, err, http.StatusUnauthorized)

	tok := createTestToken(t, accessClaims("acct-2"), testSigningKey)
	rec, err := runWithHeader(t, DevAuthMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+tok, okHandler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestContextHelpers_Empty(t *testing.T) {
	ctx := context.Background()
	if UserIDFromContext(ctx) != "" {
		t.Error("expected empty user id")
	}
	if RolesFromContext(ctx) != nil {
		t.Error("expected nil roles")
	}
	if TokenIDFromContext(ctx) != "" {
		t.Error("expected empty token id")
	}
}

func TestJWTMiddleware_WebsocketQueryToken(t *testing.T) {
	tok := createTestToken(t, accessClaims("acct-ws"), testSigningKey)
	mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, WebsocketPath+"?access_token="+tok, nil)
	c := e.NewContext(req, httptest.NewRecorder())
	var got string
	err := mw(func(c echo.Context) error {
		got = UserIDFromContext(c.Request().Context())
		return nil
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "acct-ws" {
		t.Errorf("expected acct-ws, got %q", got)
	}

	// Other routes never read the query parameter.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/account?access_token="+tok, nil)
	c = e.NewContext(req, httptest.NewRecorder())
	assertHTTPCode(t, mw(okHandler)(c), http.StatusUnauthorized)
}

func TestAccountIDFromContext(t *testing.T) {
	id := uuid.New()
	got, err := AccountIDFromContext(WithIdentity(context.Background(), id.String(), nil))
	if err != nil || got != id {
		t.Fatalf("expected %s, got %s (%v)", id, got, err)
	}
	if _, err := AccountIDFromContext(WithIdentity(context.Background(), "not-a-uuid", nil)); err != ErrNoAccount {
		t.Errorf("expected ErrNoAccount, got %v", err)
	}
	if _, err := AccountIDFromContext(context.Background()); err != ErrNoAccount {
		t.Errorf("expected ErrNoAccount, got %v", err)
	}
}
