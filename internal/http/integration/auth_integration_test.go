package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mosegray/recordvault/internal/config"
	apphttp "github.com/mosegray/recordvault/internal/http"
	"github.com/mosegray/recordvault/internal/redisclient"
)

func testConfigAuth() config.Config {
	return config.Config{
		Env:              "test",
		Port:             0,
		JWTAccessSecret:  "test-access-secret",
		JWTRefreshSecret: "test-refresh-secret",
		AccessTTL:        15 * time.Minute,
		RefreshTTL:       7 * 24 * time.Hour,
		CORSOrigins:      []string{"http://localhost:5173"},
	}
}

// Requires a Postgres with the users table; set TEST_DB_DSN to run.

func setupAuthTestRouter(t *testing.T) (*gin.Engine, *pgxpool.Pool) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := os.Getenv("TEST_DB_DSN")

	if dsn == "" {
		t.Skip("TEST_DB_DSN not set, skipping integration test")
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)

	if err != nil {
		t.Fatalf("Failed to create pgx pool: %v", err)
	}

	t.Cleanup(pool.Close)

	mr, err := miniredis.Run()

	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}

	t.Cleanup(mr.Close)

	rds := redisclient.New(redisclient.Config{Addr: mr.Addr()})

	t.Cleanup(func() { _ = rds.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))

	router := apphttp.NewRouter(logger, pool, rds, testConfigAuth())

	return router, pool
}

func resetAuthDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	_, err := pool.Exec(context.Background(), `TRUNCATE users RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
}

func extractRefreshCookie(t *testing.T, response *http.Response) *http.Cookie {
	t.Helper()

	for _, c := range response.Cookies() {
		if c.Name == "refresh_token" {
			return c
		}
	}

	t.Fatalf("refresh_token cookie not found in response")

	return nil
}

func doRequest(router http.Handler, method, path string, body string, mutate ...func(*http.Request)) (*httptest.ResponseRecorder, *http.Response) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))

	if method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch {
		req.Header.Set("Content-Type", "application/json")
	}

	for _, fn := range mutate {
		fn(req)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w, w.Result()
}

func mustReadJSON[T any](t *testing.T, w *httptest.ResponseRecorder, out *T) {
	t.Helper()
	err := json.Unmarshal(w.Body.Bytes(), out)
	if err != nil {
		t.Fatalf("failed to unmarshal json: %v, body=%s", err, w.Body.String())
	}
}

func TestAuthIntegration_Register_Login_Refresh_Me(t *testing.T) {
	router, pool := setupAuthTestRouter(t)
	resetAuthDB(t, pool)

	defer resetAuthDB(t, pool)

	// register

	registerBody := `{"username":"alice","email":"alice@example.com","password":"password123"}`

	w, response := doRequest(router, http.MethodPost, "/auth/register", registerBody)

	if w.Code != http.StatusCreated {
		t.Fatalf("register got status %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
	}

	var registered tokenResponse

	mustReadJSON(t, w, &registered)

	if strings.TrimSpace(registered.AccessToken) == "" {
		t.Fatalf("register expected accessToken, got empty")
	}

	refreshCookie := extractRefreshCookie(t, response)

	// duplicate registration conflicts

	w2, _ := doRequest(router, http.MethodPost, "/auth/register", registerBody)

	if w2.Code != http.StatusConflict {
		t.Fatalf("duplicate register got %d, want %d, body=%s", w2.Code, http.StatusConflict, w2.Body.String())
	}

	// refresh (happy path)

	w3, _ := doRequest(router, http.MethodGet, "/auth/refresh", "", func(req *http.Request) {
		req.AddCookie(refreshCookie)
	})

	if w3.Code != http.StatusOK {
		t.Fatalf("refresh got status %d, want %d, body=%s", w3.Code, http.StatusOK, w3.Body.String())
	}

	var refreshed tokenResponse
	mustReadJSON(t, w3, &refreshed)

	if strings.TrimSpace(refreshed.AccessToken) == "" {
		t.Fatalf("refresh expected access token, got empty")
	}

	// refresh is stateless: the same cookie keeps working until expiry

	w4, _ := doRequest(router, http.MethodGet, "/auth/refresh", "", func(req *http.Request) {
		req.AddCookie(refreshCookie)
	})

	if w4.Code != http.StatusOK {
		t.Fatalf("second refresh got status %d, want %d, body=%s", w4.Code, http.StatusOK, w4.Body.String())
	}

	// /auth/me with the refreshed access token

	w5, _ := doRequest(router, http.MethodGet, "/auth/me", "", func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+refreshed.AccessToken)
	})

	if w5.Code != http.StatusOK {
		t.Fatalf("me got status %d, want %d, body=%s", w5.Code, http.StatusOK, w5.Body.String())
	}

	if strings.Contains(w5.Body.String(), "password") {
		t.Fatalf("profile payload must not mention passwords: %s", w5.Body.String())
	}

	// admin surface is closed to plain users

	w6, _ := doRequest(router, http.MethodGet, "/auth/all-users", "", func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+refreshed.AccessToken)
	})

	if w6.Code != http.StatusForbidden {
		t.Fatalf("all-users as plain user got %d, want %d, body=%s", w6.Code, http.StatusForbidden, w6.Body.String())
	}

	// logout clears the cookie

	w7, response7 := doRequest(router, http.MethodPost, "/auth/logout", "", func(req *http.Request) {
		req.AddCookie(refreshCookie)
	})

	if w7.Code != http.StatusOK {
		t.Fatalf("logout got status %d, want %d, body=%s", w7.Code, http.StatusOK, w7.Body.String())
	}

	cleared := false

	for _, c := range response7.Cookies() {
		if c.Name == "refresh_token" && (c.MaxAge < 0 || c.Value == "") {
			cleared = true
		}
	}

	if !cleared {
		t.Fatalf("expected logout to clear refresh_token cookie")
	}
}

func TestAuthIntegration_ProtectedEndpointWithoutToken(t *testing.T) {
	router, pool := setupAuthTestRouter(t)
	resetAuthDB(t, pool)

	defer resetAuthDB(t, pool)

	w, _ := doRequest(router, http.MethodGet, "/auth/me", "")

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("me without token got %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
