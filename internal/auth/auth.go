// Package auth implements the optional GitHub OAuth2 gate on ticket
// issuance described in SPEC_FULL.md's supplemental features: when
// enabled, POST /ws-ticket requires a logged-in, allowlisted GitHub user
// instead of being open to any caller.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// Config holds the operator-auth knobs from the effective config's
// Auth section.
type Config struct {
	GitHubClientID     string
	GitHubClientSecret string // pragma: allowlist secret
	BaseURL            string
	AllowedUsers       []string
}

// Handler manages the GitHub OAuth2 login flow and the session cookie
// it produces.
type Handler struct {
	oauthConfig  *oauth2.Config
	allowedUsers map[string]bool
	logger       *logrus.Logger
	cookieName   string
	baseURL      string
}

// User is the subset of GitHub's user profile the gateway cares about.
type User struct {
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

const (
	stateCookieName = "oauth_state"
	authCookieName  = "auth_session"
)

// NewHandler builds a Handler from the effective config's Auth section.
func NewHandler(cfg Config, logger *logrus.Logger) *Handler {
	allowed := make(map[string]bool, len(cfg.AllowedUsers))
	for _, user := range cfg.AllowedUsers {
		allowed[strings.ToLower(user)] = true
	}

	return &Handler{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret, // pragma: allowlist secret
			RedirectURL:  cfg.BaseURL + "/auth/callback",
			Scopes:       []string{"read:user"},
			Endpoint:     github.Endpoint,
		},
		allowedUsers: allowed,
		logger:       logger,
		cookieName:   authCookieName,
		baseURL:      cfg.BaseURL,
	}
}

// Login redirects the browser into GitHub's OAuth2 consent screen.
func (h *Handler) Login(c *gin.Context) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		h.logger.WithError(err).Error("failed to generate oauth state")
		c.Redirect(http.StatusTemporaryRedirect, h.baseURL)
		return
	}
	state := base64.URLEncoding.EncodeToString(b)

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookieName, state, 600, "/auth", "", false, true)

	c.Redirect(http.StatusTemporaryRedirect, h.oauthConfig.AuthCodeURL(state))
}

// Callback exchanges the OAuth2 code, fetches the GitHub profile, checks
// the allowlist, and sets the session cookie.
func (h *Handler) Callback(c *gin.Context) {
	stateCookie, err := c.Cookie(stateCookieName)
	if err != nil {
		h.logger.Warn("missing oauth state cookie in callback")
		c.Redirect(http.StatusTemporaryRedirect, h.baseURL)
		return
	}

	if c.Query("state") != stateCookie {
		h.logger.Warn("oauth state mismatch in callback")
		c.Redirect(http.StatusTemporaryRedirect, h.baseURL)
		return
	}
	c.SetCookie(stateCookieName, "", -1, "/auth", "", false, true)

	authCtx := c.Request.Context()
	token, err := h.oauthConfig.Exchange(authCtx, c.Query("code"))
	if err != nil {
		h.logger.WithError(err).Error("failed to exchange oauth code")
		c.Redirect(http.StatusTemporaryRedirect, h.baseURL)
		return
	}

	req, err := http.NewRequestWithContext(authCtx, http.MethodGet, "https://api.github.com/user", http.NoBody)
	if err != nil {
		h.logger.WithError(err).Error("failed to build github profile request")
		c.Redirect(http.StatusTemporaryRedirect, h.baseURL)
		return
	}

	resp, err := h.oauthConfig.Client(authCtx, token).Do(req)
	if err != nil {
		h.logger.WithError(err).Error("failed to fetch github profile")
		c.Redirect(http.StatusTemporaryRedirect, h.baseURL)
		return
	}
	defer resp.Body.Close()

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		h.logger.WithError(err).Error("failed to decode github profile")
		c.Redirect(http.StatusTemporaryRedirect, h.baseURL)
		return
	}

	if !h.allowedUsers[strings.ToLower(user.Login)] {
		h.logger.WithField("user", user.Login).Warn("unauthorized user attempted login")
		c.Redirect(http.StatusTemporaryRedirect, h.baseURL)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, user.Login, 86400*7, "/", "", false, true)

	h.logger.WithField("user", user.Login).Info("user logged in")
	c.Redirect(http.StatusTemporaryRedirect, h.baseURL)
}

// Me reports the currently authenticated user. It reads the session
// cookie directly rather than relying on Middleware having run first,
// since it is registered as a standalone route.
func (h *Handler) Me(c *gin.Context) {
	user, err := c.Cookie(h.cookieName)
	if err != nil || user == "" || !h.allowedUsers[strings.ToLower(user)] {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"login":      user,
		"avatar_url": fmt.Sprintf("https://github.com/%s.png", user),
	})
}

// Middleware gates a route on a valid, allowlisted session cookie.
func (h *Handler) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := c.Cookie(h.cookieName)
		if err != nil || user == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "unauthorized"})
			return
		}
		if !h.allowedUsers[strings.ToLower(user)] {
			c.SetCookie(h.cookieName, "", -1, "/", "", false, true)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "unauthorized"})
			return
		}
		c.Set("user", user)
		c.Next()
	}
}

// Logout clears the session cookie.
func (h *Handler) Logout(c *gin.Context) {
	c.SetCookie(h.cookieName, "", -1, "/", "", false, true)
	c.Redirect(http.StatusTemporaryRedirect, h.baseURL)
}
