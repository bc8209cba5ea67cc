// Package httpapi implements HttpSurface (spec.md §4.6): the ticket
// issuance endpoint, the health probe, and CORS.
package httpapi

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/sealos/tty-agent/internal/auth"
	"github.com/sealos/tty-agent/internal/ticket"
)

const corsMaxAge = "600"

// Surface wires the HTTP endpoints onto a gin engine.
type Surface struct {
	tickets               *ticket.Store
	logger                *logrus.Logger
	ticketTTLEnvelopeByte int64 // wsTicketMaxKubeconfigBytes, the field's own cap
	maxBodyBytes          int64 // wsTicketMaxKubeconfigBytes + 16KiB envelope
	activeSessions        func() int
	authHandler           *auth.Handler
}

// New builds a Surface. maxKubeconfigBytes is wsTicketMaxKubeconfigBytes;
// the request body cap is that plus a 16KiB envelope margin for the rest
// of the JSON payload (spec.md §4.6). activeSessions, if non-nil, is
// surfaced on the health probe as an operator convenience. authHandler,
// if non-nil, gates POST /ws-ticket behind a logged-in, allowlisted
// GitHub user (SPEC_FULL.md's optional operator-auth supplement).
func New(tickets *ticket.Store, logger *logrus.Logger, maxKubeconfigBytes int64, activeSessions func() int, authHandler *auth.Handler) *Surface {
	const envelopeMargin = 16 * 1024
	return &Surface{
		tickets:               tickets,
		logger:                logger,
		ticketTTLEnvelopeByte: maxKubeconfigBytes,
		maxBodyBytes:          maxKubeconfigBytes + envelopeMargin,
		activeSessions:        activeSessions,
		authHandler:           authHandler,
	}
}

// Register attaches HttpSurface's routes to engine.
func (s *Surface) Register(engine *gin.Engine) {
	engine.Use(s.cors())

	engine.GET("/", s.handleHealth)

	ticketRoute := engine.Group("/ws-ticket")
	if s.authHandler != nil {
		ticketRoute.Use(s.authHandler.Middleware())
	}
	ticketRoute.POST("", s.handleIssueTicket)

	if s.authHandler != nil {
		authGroup := engine.Group("/auth")
		authGroup.GET("/login", s.authHandler.Login)
		authGroup.GET("/callback", s.authHandler.Callback)
		authGroup.GET("/me", s.authHandler.Me)
		authGroup.POST("/logout", s.authHandler.Logout)
	}

	engine.NoRoute(func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "not found"})
	})
}

func (s *Surface) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "content-type")
		c.Header("Access-Control-Max-Age", corsMaxAge)
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Surface) handleHealth(c *gin.Context) {
	body := gin.H{"name": "sealos-tty-agent", "ok": true}
	if s.activeSessions != nil {
		body["activeSessions"] = s.activeSessions()
	}
	c.JSON(http.StatusOK, body)
}

// ticketRequest mirrors the POST /ws-ticket body (spec.md §4.6).
type ticketRequest struct {
	Kubeconfig string   `json:"kubeconfig"`
	Namespace  string   `json:"namespace"`
	Pod        string   `json:"pod"`
	Container  string   `json:"container"`
	Command    []string `json:"command"`
}

func (s *Surface) handleIssueTicket(c *gin.Context) {
	limited := http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"ok": false, "error": "Payload too large."})
		return
	}
	if int64(len(body)) > s.maxBodyBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"ok": false, "error": "Payload too large."})
		return
	}

	fields, err := decodeStrict(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}

	req, err := fields.bind()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}

	if int64(len(req.Kubeconfig)) > s.ticketTTLEnvelopeByte {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"ok": false, "error": "kubeconfig too large."})
		return
	}

	target := ticket.ExecTarget{
		Namespace: req.Namespace,
		Pod:       req.Pod,
		Container: req.Container,
		Command:   req.Command,
	}
	issuedBy := ticket.IssuerMeta{
		RemoteAddr: c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	}

	id, expiresAt := s.tickets.Issue(req.Kubeconfig, target, issuedBy)

	s.logger.WithFields(logrus.Fields{
		"namespace": target.Namespace,
		"pod":       target.Pod,
	}).Info("ticket issued")

	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"ticket":    id,
		"expiresAt": expiresAt.UnixMilli(),
	})
}

func trimmedNonEmpty(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != ""
}
