// Package signal is the WebSocket command/delta transport. Each connection
// carries one authenticated participant; commands are dispatched by
// envelope type and every accepted mutation comes back as a sequenced delta
// through the session's dispatcher.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/koinonia/liveworkshop/internal/core"
	"github.com/koinonia/liveworkshop/internal/domain"
	"github.com/koinonia/liveworkshop/internal/session"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Sessions *session.Manager
	Limiter  *CommandRateLimiter

	readLimit  int64
	pingPeriod time.Duration
}

func NewController(sessions *session.Manager, readLimit int64, pingPeriod time.Duration) *Controller {
	if readLimit <= 0 {
		readLimit = 32 << 10
	}
	if pingPeriod <= 0 {
		pingPeriod = 54 * time.Second
	}
	return &Controller{
		Sessions:   sessions,
		Limiter:    NewCommandRateLimiter(20, time.Second),
		readLimit:  readLimit,
		pingPeriod: pingPeriod,
	}
}

// wsConn adapts a websocket to core.SignalConnection. Writes go through a
// buffered channel; a full buffer drops the frame (the client recovers via
// resync) rather than blocking the session writer.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// client is the per-connection state: the authenticated user and, once a
// join succeeded, the session the connection is subscribed to.
type client struct {
	userID domain.UserID
	conn   *wsConn

	mu   sync.Mutex
	sess *session.Session
}

func (cl *client) session() *session.Session {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.sess
}

func (cl *client) setSession(s *session.Session) {
	cl.mu.Lock()
	cl.sess = s
	cl.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWS upgrades the connection and runs the read/write pumps. The actor
// id comes from the authenticated client token, never from payloads.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	userID := domain.UserID(c.GetString("client_token"))
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing client token"})
		return
	}
	log.Info().Str("module", "signal").Str("user", string(userID)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	cl := &client{
		userID: userID,
		conn: &wsConn{
			conn: ws,
			send: make(chan core.Frame, 64),
		},
	}

	connCtx, cancel := context.WithCancel(ctx)
	go ctl.writePump(connCtx, cl.conn)
	go func() {
		defer cancel()
		ctl.readPump(connCtx, cl)
	}()
}
