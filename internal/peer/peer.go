// Package peer owns per-connection state: transports, producers, consumers,
// and the flags a participant's public view exposes (§3 Peer, §4.3).
package peer

import (
	"sync"
	"time"

	"github.com/brightloop-video/sfu-core/internal/logging"
	"github.com/brightloop-video/sfu-core/internal/mediaengine"
	"go.uber.org/zap"
)

const eventBuffer = 64

// Sender is the minimal outbound surface a peer needs from its transport
// connection; internal/transport's websocket client satisfies this.
type Sender interface {
	Send(data []byte)
	// SocketID identifies the underlying connection, distinct from the
	// logical peer id: the peer id survives a joinRoom, the socket id is
	// fixed for the lifetime of one WebSocket connection.
	SocketID() string
}

// Peer is one connected client (§3).
type Peer struct {
	ID          string
	SocketID    string
	UserID      string
	DisplayName string
	RoomID      string
	Conn        Sender

	mu              sync.RWMutex
	sendTransports  map[string]mediaengine.Transport
	recvTransports  map[string]mediaengine.Transport
	producers       map[string]mediaengine.Producer
	consumers       map[string]mediaengine.Consumer
	audioEnabled    bool
	videoEnabled    bool
	screenSharing   bool
	handRaised      bool
	isOwner         bool
	lastRecvTransID string // last-created-wins resolution, SPEC_FULL open question 3

	JoinedAt time.Time

	events chan mediaengine.Event
	done   chan struct{}
	once   sync.Once
}

// New constructs a Peer and starts its event-draining goroutine.
func New(id, userID, displayName, roomID string, conn Sender) *Peer {
	p := &Peer{
		ID:             id,
		SocketID:       conn.SocketID(),
		UserID:         userID,
		DisplayName:    displayName,
		RoomID:         roomID,
		Conn:           conn,
		sendTransports: make(map[string]mediaengine.Transport),
		recvTransports: make(map[string]mediaengine.Transport),
		producers:      make(map[string]mediaengine.Producer),
		consumers:      make(map[string]mediaengine.Consumer),
		JoinedAt:       time.Now(),
		events:         make(chan mediaengine.Event, eventBuffer),
		done:           make(chan struct{}),
	}
	go p.drainEvents()
	return p
}

// Events returns the send side of this peer's event fan-in channel; Notify
// is the non-blocking way to enqueue on it. The signaling hooks do not
// forward here: they read each transport/producer/consumer's own Events
// channel directly.
func (p *Peer) Events() chan<- mediaengine.Event { return p.events }

// Notify is a non-blocking enqueue of an engine event, matching the core's
// drop-and-log broadcast posture rather than ever blocking a media-engine
// callback.
func (p *Peer) Notify(ev mediaengine.Event) {
	select {
	case p.events <- ev:
	default:
		logging.Warn(nil, "peer event channel full, dropping event", zap.String("peer_id", p.ID))
	}
}

func (p *Peer) drainEvents() {
	defer close(p.done)
	for range p.events {
		// Transport/producer/consumer close hooks installed by the dispatcher
		// already perform the map bookkeeping and broadcasts; this loop's
		// sole job is to keep the channel drained so Notify never blocks.
	}
}

// Stop closes the event channel and waits for the drain goroutine to exit.
// Idempotent.
func (p *Peer) Stop() {
	p.once.Do(func() {
		close(p.events)
	})
	<-p.done
}

// --- transport maps ---

func (p *Peer) AddSendTransport(t mediaengine.Transport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sendTransports[t.ID()] = t
}

func (p *Peer) AddRecvTransport(t mediaengine.Transport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recvTransports[t.ID()] = t
	p.lastRecvTransID = t.ID()
}

// LastRecvTransport resolves "consume" with no explicit transport id,
// per open question 3: last-created wins.
func (p *Peer) LastRecvTransport() (mediaengine.Transport, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.recvTransports[p.lastRecvTransID]
	return t, ok
}

// FindTransport looks in either direction's map.
func (p *Peer) FindTransport(id string) (mediaengine.Transport, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if t, ok := p.sendTransports[id]; ok {
		return t, true
	}
	t, ok := p.recvTransports[id]
	return t, ok
}

// SendTransport looks up a transport in the send direction only.
func (p *Peer) SendTransport(id string) (mediaengine.Transport, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.sendTransports[id]
	return t, ok
}

func (p *Peer) RemoveTransport(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sendTransports, id)
	delete(p.recvTransports, id)
}

// AllTransports returns every send and recv transport, for cascading close.
func (p *Peer) AllTransports() []mediaengine.Transport {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]mediaengine.Transport, 0, len(p.sendTransports)+len(p.recvTransports))
	for _, t := range p.sendTransports {
		out = append(out, t)
	}
	for _, t := range p.recvTransports {
		out = append(out, t)
	}
	return out
}

// --- producers ---

func (p *Peer) AddProducer(prod mediaengine.Producer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.producers[prod.ID()] = prod
}

func (p *Peer) Producer(id string) (mediaengine.Producer, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	prod, ok := p.producers[id]
	return prod, ok
}

func (p *Peer) RemoveProducer(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.producers, id)
}

func (p *Peer) Producers() []mediaengine.Producer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]mediaengine.Producer, 0, len(p.producers))
	for _, prod := range p.producers {
		out = append(out, prod)
	}
	return out
}

// --- consumers ---

func (p *Peer) AddConsumer(c mediaengine.Consumer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consumers[c.ID()] = c
}

func (p *Peer) Consumer(id string) (mediaengine.Consumer, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.consumers[id]
	return c, ok
}

func (p *Peer) RemoveConsumer(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.consumers, id)
}

func (p *Peer) Consumers() []mediaengine.Consumer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]mediaengine.Consumer, 0, len(p.consumers))
	for _, c := range p.consumers {
		out = append(out, c)
	}
	return out
}

// --- flags ---

func (p *Peer) SetAudioEnabled(v bool) { p.mu.Lock(); p.audioEnabled = v; p.mu.Unlock() }
func (p *Peer) SetVideoEnabled(v bool) { p.mu.Lock(); p.videoEnabled = v; p.mu.Unlock() }
func (p *Peer) SetScreenSharing(v bool) { p.mu.Lock(); p.screenSharing = v; p.mu.Unlock() }

// ToggleHandRaise flips handRaised and returns the new value.
func (p *Peer) ToggleHandRaise() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handRaised = !p.handRaised
	return p.handRaised
}

func (p *Peer) SetOwner(v bool) { p.mu.Lock(); p.isOwner = v; p.mu.Unlock() }
func (p *Peer) IsOwner() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.isOwner
}

// View is the participant public view of §4.3: never the transport,
// producer, or consumer maps, never the connection handle.
type View struct {
	SocketID      string    `json:"socketId"`
	PeerID        string    `json:"peerId"`
	UserID        string    `json:"userId"`
	UserName      string    `json:"userName"`
	AudioEnabled  bool      `json:"audioEnabled"`
	VideoEnabled  bool      `json:"videoEnabled"`
	ScreenSharing bool      `json:"screenSharing"`
	HandRaised    bool      `json:"handRaised"`
	JoinedAt      time.Time `json:"joinedAt"`
	IsOwner       bool      `json:"isOwner"`
}

func (p *Peer) View() View {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return View{
		SocketID:      p.SocketID,
		PeerID:        p.ID,
		UserID:        p.UserID,
		UserName:      p.DisplayName,
		AudioEnabled:  p.audioEnabled,
		VideoEnabled:  p.videoEnabled,
		ScreenSharing: p.screenSharing,
		HandRaised:    p.handRaised,
		JoinedAt:      p.JoinedAt,
		IsOwner:       p.isOwner,
	}
}
