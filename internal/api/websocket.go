package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/kalambet/callcoach/internal/protocol"
	"github.com/kalambet/callcoach/internal/session"
)

const maxSessionIDLen = 128

// WSConfig tunes the WebSocket transport. Zero values select the defaults.
type WSConfig struct {
	ReadLimit    int64
	PingInterval time.Duration
	PongWait     time.Duration
	WriteTimeout time.Duration
}

func (c WSConfig) withDefaults() WSConfig {
	if c.ReadLimit <= 0 {
		c.ReadLimit = 64 << 10
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	return c
}

type wsHandler struct {
	sessions *session.Registry
	upgrader websocket.Upgrader
	cfg      WSConfig
	logger   *slog.Logger
}

func newWSHandler(deps Deps) *wsHandler {
	return &wsHandler{
		sessions: deps.Sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(deps.AllowedOrigins),
		},
		cfg:    deps.WS.withDefaults(),
		logger: deps.Logger,
	}
}

// originChecker allows requests without an Origin header, any origin when
// the list contains "*", and otherwise exact scheme://host matches.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	allowAll := len(allowed) == 0
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			allowAll = true
		}
		if o != "" {
			set[strings.ToLower(o)] = true
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			return false
		}
		return set[strings.ToLower(u.Scheme+"://"+u.Host)]
	}
}

func (h *wsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	if strings.TrimSpace(id) == "" || len(id) > maxSessionIDLen {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "session id must be 1-%d characters", maxSessionIDLen)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn("websocket upgrade failed", "session_id", id, "error", err)
		return
	}

	ch := &wsChannel{conn: conn, writeTimeout: h.cfg.WriteTimeout}
	binding := h.sessions.Bind(id, ch)
	defer func() {
		binding.Unbind()
		ch.Close()
		h.logger.Info("websocket closed", "session_id", id)
	}()

	stop := make(chan struct{})
	defer close(stop)
	go ch.keepalive(h.cfg.PingInterval, stop)

	// Replies outlive the request so a disconnect never cancels a run.
	ctx := context.WithoutCancel(r.Context())
	h.readLoop(ctx, id, conn, binding)
}

// readLoop ends when the connection fails or is closed, which includes the
// registry closing it after another connection took over the session id.
func (h *wsHandler) readLoop(ctx context.Context, id string, conn *websocket.Conn, binding *session.Binding) {
	conn.SetReadLimit(h.cfg.ReadLimit)
	conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				h.logger.Warn("websocket read failed", "session_id", id, "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))

		if msgType != websocket.TextMessage {
			h.logger.Debug("ignoring non-text frame", "session_id", id, "message_type", msgType)
			continue
		}
		ev, err := protocol.Decode(data)
		if err != nil {
			h.logger.Warn("ignoring malformed frame", "session_id", id, "error", err)
			continue
		}
		binding.Dispatch(ctx, ev)
	}
}

// wsChannel adapts a gorilla connection to session.Channel. gorilla allows
// one concurrent writer, so data frames are serialized by mu. Pings go
// through WriteControl, which is safe alongside them.
type wsChannel struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func (c *wsChannel) Send(_ context.Context, frame any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return session.ErrChannelClosed
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.conn.WriteJSON(frame); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return session.ErrChannelClosed
		}
		return err
	}
	return nil
}

func (c *wsChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
	return c.conn.Close()
}

func (c *wsChannel) keepalive(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
		}
	}
}
