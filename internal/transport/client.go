package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/brightloop-video/sfu-core/internal/logging"
	"github.com/brightloop-video/sfu-core/internal/signaling"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	sendBufferSize = 64
)

// wsConn is the subset of *websocket.Conn the client depends on.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

// inboundEnvelope is the wire shape of a client->server message: a
// correlation id the ack is echoed under, the message type, and its payload.
type inboundEnvelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// outboundEnvelope is the wire shape of every server->client message,
// whether it's an ack (ID set) or an unsolicited event (ID empty).
type outboundEnvelope struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Client bridges one WebSocket connection to the signaling dispatcher. It
// has no notion of rooms or peers itself, beyond the peer id the dispatcher
// hands back from a successful joinRoom.
type Client struct {
	conn     wsConn
	d        *signaling.Dispatcher
	send     chan []byte
	mu       sync.Mutex
	peerID   string
	socketID string
	once     sync.Once
}

func newClient(conn wsConn, d *signaling.Dispatcher) *Client {
	return &Client{conn: conn, d: d, send: make(chan []byte, sendBufferSize), socketID: uuid.NewString()}
}

// Send implements peer.Sender: it is the channel the dispatcher and its
// fanout/hooks use to push unsolicited events to this connection.
func (c *Client) Send(data []byte) {
	select {
	case c.send <- data:
	default:
		logging.Warn(nil, "client send buffer full, dropping message", zap.String("peer_id", c.currentPeerID()))
	}
}

// SocketID implements peer.Sender: a connection-level id distinct from the
// logical peer id, stable for this WebSocket connection's lifetime — unlike
// peerID, it is set once at connect time and never reassigned.
func (c *Client) SocketID() string { return c.socketID }

func (c *Client) currentPeerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerID
}

func (c *Client) setPeerID(id string) {
	c.mu.Lock()
	c.peerID = id
	c.mu.Unlock()
}

func (c *Client) writeAck(id string, result any, errCode string) {
	env := outboundEnvelope{ID: id, Error: errCode}
	if errCode == "" {
		env.Payload = result
	}
	data, err := json.Marshal(env)
	if err != nil {
		logging.Error(nil, "failed to encode ack", zap.Error(err))
		return
	}
	c.Send(data)
}

// readPump decodes inbound envelopes and hands them to the dispatcher. Exits
// (and triggers onClose) when the connection errors or closes.
func (c *Client) readPump(onClose func(peerID string)) {
	defer func() {
		c.once.Do(func() { close(c.send) })
		c.conn.Close()
		onClose(c.currentPeerID())
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var in inboundEnvelope
		if err := json.Unmarshal(data, &in); err != nil {
			logging.Warn(nil, "failed to decode inbound envelope", zap.Error(err))
			continue
		}

		ackID := in.ID
		newPeerID := c.d.Dispatch(context.Background(), c, c.currentPeerID(), signaling.Envelope{
			Type:    in.Type,
			Payload: in.Payload,
			Ack: signaling.NewAck(func(result any, errCode string) {
				if ackID != "" {
					c.writeAck(ackID, result, errCode)
				}
			}),
		})
		c.setPeerID(newPeerID)
	}
}

// writePump drains the send channel to the socket and keeps the connection
// alive with periodic pings, mirroring the teacher's dual-loop pump shape.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
