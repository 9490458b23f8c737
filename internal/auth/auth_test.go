package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "unit-test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func baseClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":       "user-1",
		"tenant_id": "tenant-1",
		"iss":       "pomopro.identity",
		"scopes":    []string{ScopeSessionsRead, ScopeSessionsWrite},
		"exp":       time.Now().Add(time.Hour).Unix(),
	}
}

func TestParseValidToken(t *testing.T) {
	cfg := Config{Secret: testSecret, Issuer: "pomopro.identity"}
	token := signToken(t, baseClaims())

	claims, err := Parse(token, cfg)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "user-1" || claims.TenantID != "tenant-1" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if !claims.HasScope(ScopeSessionsWrite) {
		t.Fatal("expected write scope")
	}
	if claims.HasScope("admin") {
		t.Fatal("unexpected admin scope")
	}
}

func TestParseSpaceSeparatedScopes(t *testing.T) {
	cfg := Config{Secret: testSecret, Issuer: "pomopro.identity"}
	mc := baseClaims()
	mc["scopes"] = ScopeSessionsRead + " " + ScopeSessionsWrite

	claims, err := Parse(signToken(t, mc), cfg)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !claims.HasScope(ScopeSessionsRead) || !claims.HasScope(ScopeSessionsWrite) {
		t.Fatalf("scope string not normalised: %v", claims.Scopes)
	}
}

func TestParseRejectsBadTokens(t *testing.T) {
	cfg := Config{Secret: testSecret, Issuer: "pomopro.identity"}

	expired := baseClaims()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()

	wrongIssuer := baseClaims()
	wrongIssuer["iss"] = "someone-else"

	noTenant := baseClaims()
	delete(noTenant, "tenant_id")

	cases := []struct {
		name  string
		token string
	}{
		{"expired", signToken(t, expired)},
		{"wrong issuer", signToken(t, wrongIssuer)},
		{"missing tenant", signToken(t, noTenant)},
		{"garbage", "not-a-jwt"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(tc.token, cfg); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}

	if _, err := Parse("", cfg); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token := signToken(t, baseClaims())
	if _, err := Parse(token, Config{Secret: "other-secret", Issuer: "pomopro.identity"}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestMiddlewareInjectsClaims(t *testing.T) {
	cfg := Config{Secret: testSecret, Issuer: "pomopro.identity"}
	mw := NewMiddleware(cfg, nil)

	var got *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, baseClaims()))

	rr := httptest.NewRecorder()
	mw.Wrap(next).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	if got == nil || got.TenantID != "tenant-1" {
		t.Fatalf("claims not injected: %+v", got)
	}
}

func TestMiddlewareRejectsMissingHeader(t *testing.T) {
	mw := NewMiddleware(Config{Secret: testSecret, Issuer: "pomopro.identity"}, nil)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	rr := httptest.NewRecorder()
	mw.Wrap(next).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}

func TestMiddlewareSkipper(t *testing.T) {
	mw := NewMiddleware(Config{Secret: testSecret, Issuer: "pomopro.identity"}, func(r *http.Request) bool {
		return r.URL.Path == "/healthz"
	})

	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	mw.Wrap(next).ServeHTTP(rr, req)

	if !called || rr.Code != http.StatusOK {
		t.Fatalf("skipper should bypass auth: called=%v code=%d", called, rr.Code)
	}
}
