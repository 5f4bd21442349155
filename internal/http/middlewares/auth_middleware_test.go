package middlewares_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mosegray/recordvault/internal/auth"
	"github.com/mosegray/recordvault/internal/http/middlewares"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fake verifier so these tests never touch real signing

type fakeVerifier struct {
	claims *auth.Claims
	err    error
}

func (f *fakeVerifier) VerifyAccessToken(token string) (*auth.Claims, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.claims, nil
}

func protectedRouter(v middlewares.TokenVerifier, extra ...gin.HandlerFunc) *gin.Engine {
	mw := middlewares.NewAuthMiddleware(v)

	r := gin.New()

	chain := append([]gin.HandlerFunc{mw.RequireAuth()}, extra...)
	chain = append(chain, func(c *gin.Context) {
		claims, ok := middlewares.ClaimsFromContext(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "claims missing"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": claims.UserID, "role": claims.Role})
	})

	r.GET("/protected", chain...)

	return r
}

func get(router http.Handler, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)

	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w
}

func TestRequireAuth(t *testing.T) {
	valid := &auth.Claims{UserID: "user-1", Username: "alice", Role: "user"}

	tests := []struct {
		name       string
		verifier   middlewares.TokenVerifier
		authHeader string
		wantStatus int
	}{
		{
			name:       "missing header",
			verifier:   &fakeVerifier{claims: valid},
			authHeader: "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "not a bearer scheme",
			verifier:   &fakeVerifier{claims: valid},
			authHeader: "Basic dXNlcjpwYXNz",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "bearer with empty token",
			verifier:   &fakeVerifier{claims: valid},
			authHeader: "Bearer ",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "verifier rejects token",
			verifier:   &fakeVerifier{err: errors.New("expired")},
			authHeader: "Bearer some-token",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "valid token",
			verifier:   &fakeVerifier{claims: valid},
			authHeader: "Bearer some-token",
			wantStatus: http.StatusOK,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := get(protectedRouter(tc.verifier), tc.authHeader)

			if w.Code != tc.wantStatus {
				t.Fatalf("got %d, want %d, body=%s", w.Code, tc.wantStatus, w.Body.String())
			}
		})
	}
}

func TestRequireAuthAttachesClaims(t *testing.T) {
	claims := &auth.Claims{UserID: "user-42", Username: "alice", Role: "admin"}

	w := get(protectedRouter(&fakeVerifier{claims: claims}), "Bearer token")

	if w.Code != http.StatusOK {
		t.Fatalf("got %d, body=%s", w.Code, w.Body.String())
	}

	body := w.Body.String()

	if !strings.Contains(body, "user-42") || !strings.Contains(body, "admin") {
		t.Fatalf("expected claims in handler output, got %s", body)
	}
}

func TestRequireRole(t *testing.T) {
	adminClaims := &auth.Claims{UserID: "user-1", Username: "root", Role: "admin"}
	userClaims := &auth.Claims{UserID: "user-2", Username: "alice", Role: "user"}

	tests := []struct {
		name       string
		claims     *auth.Claims
		wantStatus int
	}{
		{"admin passes", adminClaims, http.StatusOK},
		{"plain user forbidden", userClaims, http.StatusForbidden},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mw := middlewares.NewAuthMiddleware(&fakeVerifier{claims: tc.claims})

			r := protectedRouter(&fakeVerifier{claims: tc.claims}, mw.RequireRole("admin"))

			w := get(r, "Bearer token")

			if w.Code != tc.wantStatus {
				t.Fatalf("got %d, want %d, body=%s", w.Code, tc.wantStatus, w.Body.String())
			}
		})
	}
}

func TestRequireRoleWithoutIdentity(t *testing.T) {
	// RequireRole mounted without RequireAuth in front: defensive 401
	mw := middlewares.NewAuthMiddleware(&fakeVerifier{})

	r := gin.New()
	r.GET("/admin", mw.RequireRole("admin"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
