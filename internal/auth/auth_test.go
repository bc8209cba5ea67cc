package auth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func newTestHandler() *Handler {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewHandler(Config{
		GitHubClientID:     "client-id",
		GitHubClientSecret: "client-secret", // pragma: allowlist secret
		BaseURL:            "https://console.example.com",
		AllowedUsers:       []string{"Octocat"},
	}, logger)
}

func newTestEngine(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/protected", h.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return engine
}

func TestMiddlewareRejectsMissingCookie(t *testing.T) {
	h := newTestHandler()
	engine := newTestEngine(h)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestMiddlewareRejectsUserNotInAllowlist(t *testing.T) {
	h := newTestHandler()
	engine := newTestEngine(h)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: "auth_session", Value: "someone-else"})
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestMiddlewareAllowsAllowlistedUserCaseInsensitive(t *testing.T) {
	h := newTestHandler()
	engine := newTestEngine(h)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: "auth_session", Value: "octocat"})
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestLoginSetsStateCookieAndRedirectsToGitHub(t *testing.T) {
	h := newTestHandler()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/auth/login", h.Login)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307", rec.Code)
	}
	location := rec.Header().Get("Location")
	if location == "" {
		t.Fatal("missing Location header")
	}

	found := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == "oauth_state" && c.Value != "" {
			found = true
		}
	}
	if !found {
		t.Error("expected oauth_state cookie to be set")
	}
}

func TestMeReportsUnauthorizedWithoutCookie(t *testing.T) {
	h := newTestHandler()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/auth/me", h.Me)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
