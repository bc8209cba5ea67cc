// Package gateway implements WsGateway (spec.md §4.5): WebSocket
// acceptance, origin enforcement, heartbeat liveness, and dispatch of
// inbound frames to a per-connection session.Session.
package gateway

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/sealos/tty-agent/internal/execbridge"
	"github.com/sealos/tty-agent/internal/protocol"
	"github.com/sealos/tty-agent/internal/session"
	"github.com/sealos/tty-agent/internal/ticket"
)

// Config carries the WsGateway knobs from the effective Config (spec.md §3).
type Config struct {
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	AuthTimeout       time.Duration
	MaxPayloadBytes   int64
}

// Gateway accepts and supervises terminal WebSocket connections.
type Gateway struct {
	cfg     Config
	tickets *ticket.Store
	bridge  *execbridge.Bridge
	logger  *logrus.Logger

	upgrader websocket.Upgrader
	conns    *registry
}

// ActiveSessions reports the number of connections currently tracked by
// this gateway, for the operator health surface.
func (g *Gateway) ActiveSessions() int {
	return g.conns.len()
}

// New builds a Gateway. bridge and tickets are shared across connections;
// the gateway creates no per-connection state until a socket is accepted.
func New(cfg Config, tickets *ticket.Store, bridge *execbridge.Bridge, logger *logrus.Logger) *Gateway {
	g := &Gateway{cfg: cfg, tickets: tickets, bridge: bridge, logger: logger, conns: newRegistry()}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     g.originAllowed,
		// perMessageDeflate disabled (spec.md §4.5): EnableCompression
		// left at its zero value, false.
	}
	return g
}

// originAllowed implements spec.md §4.5's exact-match allowlist: empty
// set means allow all; a missing Origin header against a non-empty
// allowlist is rejected.
func (g *Gateway) originAllowed(r *http.Request) bool {
	if len(g.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	for _, allowed := range g.cfg.AllowedOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}

// HandleExec is the gin handler for GET /exec. The caller must register
// it only on that exact path; spec.md §4.5 requires any other path to
// never reach WsGateway at all.
func (g *Gateway) HandleExec(c *gin.Context) {
	if !g.originAllowed(c.Request) {
		// Origin rejected: destroy the TCP connection without an HTTP
		// response beyond the upgrade rejection (spec.md §7).
		if netConn, _, err := c.Writer.Hijack(); err == nil {
			netConn.Close()
		}
		c.Abort()
		return
	}

	ws, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.WithError(err).Debug("websocket upgrade failed")
		return
	}

	ws.SetReadLimit(g.cfg.MaxPayloadBytes)

	id := newConnID()
	peer := ticket.IssuerMeta{
		RemoteAddr: c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	}

	conn := newConnWrapper(id, ws)
	defer conn.terminate()

	sess := session.New(id, session.Deps{
		Tickets:     g.tickets,
		Bridge:      g.bridge,
		Logger:      g.logger,
		AuthTimeout: g.cfg.AuthTimeout,
	}, session.Transport{
		SendFrame:  conn.sendFrame,
		SendBinary: conn.sendBinary,
		Close:      conn.closeWithCode,
	}, peer)

	g.conns.add(id, sess)
	defer g.conns.remove(id)

	g.runHeartbeat(conn)

	queryTicket := c.Query("ticket")
	sess.Start(queryTicket)

	g.readPump(conn, sess)
	sess.Close()
}

func (g *Gateway) readPump(conn *connWrapper, sess *session.Session) {
	for {
		messageType, data, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}
		switch messageType {
		case websocket.TextMessage:
			sess.HandleText(data)
		case websocket.BinaryMessage:
			sess.HandleBinary(data)
		}
	}
}

func (g *Gateway) runHeartbeat(conn *connWrapper) {
	if g.cfg.HeartbeatInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(g.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for range ticker.C {
			if conn.terminated() {
				return
			}
			if !conn.checkAndClearAlive() {
				g.logger.WithField("conn", conn.id).Debug("heartbeat miss, terminating connection")
				conn.terminate()
				return
			}
			if err := conn.ping(); err != nil {
				conn.terminate()
				return
			}
		}
	}()
}

// connWrapper serializes writes to one WebSocket connection — every
// outbound path (control frames, binary exec output, heartbeat pings,
// and the close handshake) funnels through it so writes stay ordered
// and non-concurrent (spec.md §5).
type connWrapper struct {
	id string
	ws *websocket.Conn

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    bool

	aliveMu sync.Mutex
	alive   bool
}

func newConnWrapper(id string, ws *websocket.Conn) *connWrapper {
	c := &connWrapper{id: id, ws: ws, alive: true}
	ws.SetPongHandler(func(string) error {
		c.aliveMu.Lock()
		c.alive = true
		c.aliveMu.Unlock()
		return nil
	})
	return c
}

func (c *connWrapper) checkAndClearAlive() bool {
	c.aliveMu.Lock()
	defer c.aliveMu.Unlock()
	was := c.alive
	c.alive = false
	return was
}

func (c *connWrapper) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

func (c *connWrapper) sendFrame(frame protocol.ServerFrame) error {
	encoded, err := protocol.Encode(frame)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, encoded)
}

func (c *connWrapper) sendBinary(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

func (c *connWrapper) closeWithCode(code int, reason string) {
	c.writeMu.Lock()
	c.ws.SetWriteDeadline(time.Now().Add(2 * time.Second))
	c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	c.writeMu.Unlock()
	c.terminate()
}

func (c *connWrapper) terminate() {
	c.closeOnce.Do(func() {
		c.closed = true
		c.ws.Close()
	})
}

func (c *connWrapper) terminated() bool {
	return c.closed
}

func newConnID() string {
	return uuid.New().String()
}
