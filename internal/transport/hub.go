// Package transport terminates WebSocket connections and bridges them to
// internal/signaling's Dispatcher. Every application-level concern (auth,
// room membership, media orchestration) lives in the dispatcher; this
// package only owns the wire: upgrading HTTP to WebSocket, framing JSON
// envelopes, and running the read/write pumps.
package transport

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/brightloop-video/sfu-core/internal/logging"
	"github.com/brightloop-video/sfu-core/internal/metrics"
	"github.com/brightloop-video/sfu-core/internal/ratelimit"
	"github.com/brightloop-video/sfu-core/internal/signaling"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub owns the single WebSocket endpoint ("/ws") this core exposes. It has
// no per-room state of its own — internal/room and internal/peer own that —
// so unlike the teacher's Hub it tracks nothing beyond active connections.
type Hub struct {
	d              *signaling.Dispatcher
	limiter        *ratelimit.Limiter
	allowedOrigins []string
}

func NewHub(d *signaling.Dispatcher, limiter *ratelimit.Limiter, allowedOrigins []string) *Hub {
	return &Hub{d: d, limiter: limiter, allowedOrigins: allowedOrigins}
}

// ServeWs upgrades the request to a WebSocket connection and starts its
// read/write pumps. Authentication happens one level down, inside the
// dispatcher's joinRoom handler — the socket itself is anonymous until the
// client sends a joinRoom message carrying a token (§4.3).
func (h *Hub) ServeWs(c *gin.Context) {
	if !h.limiter.AllowIP(c.Request.Context(), c.ClientIP()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many connection attempts"})
		return
	}

	if err := validateOrigin(c.Request, h.allowedOrigins); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return validateOrigin(r, h.allowedOrigins) == nil },
		WriteBufferPool: &sync.Pool{
			New: func() any { return make([]byte, 4096) },
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}

	metrics.ConnectionsActive.Inc()
	client := newClient(conn, h.d)

	go client.writePump()
	go client.readPump(func(peerID string) {
		metrics.ConnectionsActive.Dec()
		if peerID != "" {
			h.d.Dispatch(context.Background(), client, peerID, signaling.Envelope{Type: "disconnect"})
		}
	})
}

func validateOrigin(r *http.Request, allowedOrigins []string) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return nil // non-browser clients (e.g. load tests) carry no Origin header
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return err
	}

	for _, allowed := range allowedOrigins {
		allowedURL, err := url.Parse(strings.TrimSpace(allowed))
		if err != nil {
			continue
		}
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			return nil
		}
	}

	return &originNotAllowedError{origin: origin}
}

type originNotAllowedError struct{ origin string }

func (e *originNotAllowedError) Error() string { return "origin not allowed: " + e.origin }
