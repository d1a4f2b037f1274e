// Package fake provides a complete in-memory implementation of the
// mediaengine capability surface, with no subprocess and no real RTP. It lets
// the orchestration layer — the actual product of this repository — be
// tested deterministically, the way the teacher tests its room/session
// packages against mock validators and mock buses rather than a real SFU.
package fake

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/brightloop-video/sfu-core/internal/mediaengine"
	"github.com/google/uuid"
)

const eventBuffer = 64

func emit(ch chan mediaengine.Event, ev mediaengine.Event) {
	select {
	case ch <- ev:
	default:
		// Best-effort, matching the core's non-blocking broadcast posture;
		// a full buffer means nobody is draining, which only happens after
		// Close has already torn the consumer down.
	}
}

// Worker is a fake media-engine worker process.
type Worker struct {
	pid      string
	min, max int
	died     chan struct{}
	diedOnce sync.Once

	mu      sync.Mutex
	routers []*Router
}

func NewWorker(pid string, minPort, maxPort int) *Worker {
	return &Worker{pid: pid, min: minPort, max: maxPort, died: make(chan struct{})}
}

func (w *Worker) PID() string                { return w.pid }
func (w *Worker) PortRange() (int, int)      { return w.min, w.max }
func (w *Worker) Died() <-chan struct{}      { return w.died }

// Kill simulates the worker process dying.
func (w *Worker) Kill() {
	w.diedOnce.Do(func() { close(w.died) })
}

func (w *Worker) CreateRouter(_ context.Context, codecs []mediaengine.Codec) (mediaengine.Router, error) {
	r := &Router{
		id:     uuid.NewString(),
		codecs: codecs,
		events: make(chan mediaengine.Event, eventBuffer),
	}
	w.mu.Lock()
	w.routers = append(w.routers, r)
	w.mu.Unlock()
	return r, nil
}

func (w *Worker) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range w.routers {
		r.Close()
	}
	w.routers = nil
}

// Router is a fake media router.
type Router struct {
	id     string
	codecs []mediaengine.Codec
	events chan mediaengine.Event

	mu         sync.Mutex
	transports map[string]*Transport
	producers  map[string]*Producer // producerID -> producer, for CanConsume/lookup
	closed     bool
}

func (r *Router) RTPCapabilities() mediaengine.RTPCapabilities {
	kinds := make([]string, 0, len(r.codecs))
	for _, c := range r.codecs {
		kinds = append(kinds, string(c.Kind)+":"+c.MimeType)
	}
	return mediaengine.RTPCapabilities{"codecs": kinds}
}

func (r *Router) CreateWebRTCTransport(_ context.Context, opts mediaengine.TransportOptions) (mediaengine.Transport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("router closed")
	}
	if r.transports == nil {
		r.transports = make(map[string]*Transport)
	}
	t := &Transport{
		id:     uuid.NewString(),
		opts:   opts,
		router: r,
		events: make(chan mediaengine.Event, eventBuffer),
	}
	r.transports[t.id] = t
	return t, nil
}

func (r *Router) CanConsume(producerID string, _ mediaengine.RTPCapabilities) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.producers[producerID]
	return ok
}

func (r *Router) Events() <-chan mediaengine.Event { return r.events }

func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	transports := make([]*Transport, 0, len(r.transports))
	for _, t := range r.transports {
		transports = append(transports, t)
	}
	r.mu.Unlock()

	for _, t := range transports {
		t.Close()
	}
	emit(r.events, mediaengine.Event{Kind: mediaengine.EventRouterClosed})
}

func (r *Router) registerProducer(p *Producer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.producers == nil {
		r.producers = make(map[string]*Producer)
	}
	r.producers[p.id] = p
}

func (r *Router) unregisterProducer(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.producers, id)
}

func (r *Router) onTransportClosed(t *Transport) {
	r.mu.Lock()
	delete(r.transports, t.id)
	r.mu.Unlock()
	emit(r.events, mediaengine.Event{Kind: mediaengine.EventTransportClosed, TransportID: t.id})
}

// Transport is a fake WebRTC transport.
type Transport struct {
	id     string
	opts   mediaengine.TransportOptions
	router *Router
	events chan mediaengine.Event

	mu        sync.Mutex
	closed    bool
	producers map[string]*Producer
	consumers map[string]*Consumer
}

func (t *Transport) ID() string { return t.id }
func (t *Transport) ICEParameters() mediaengine.ICEParameters {
	return mediaengine.ICEParameters{"usernameFragment": t.id[:8]}
}
func (t *Transport) ICECandidates() []mediaengine.ICECandidate {
	return []mediaengine.ICECandidate{{"ip": t.opts.AnnouncedIP, "protocol": "udp"}}
}
func (t *Transport) DTLSParameters() mediaengine.DTLSParameters {
	return mediaengine.DTLSParameters{"role": "auto"}
}
func (t *Transport) SCTPParameters() mediaengine.SCTPParameters {
	return mediaengine.SCTPParameters{"maxMessageSize": mediaengine.MaxSCTPMessageSize}
}

func (t *Transport) Connect(_ context.Context, _ mediaengine.DTLSParameters) error {
	return nil
}

func (t *Transport) Produce(_ context.Context, kind mediaengine.Kind, params mediaengine.RTPParameters, appData mediaengine.AppData) (mediaengine.Producer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, fmt.Errorf("transport closed")
	}
	p := &Producer{
		id:      uuid.NewString(),
		kind:    kind,
		params:  params,
		appData: appData,
		events:  make(chan mediaengine.Event, eventBuffer),
		owner:   t,
	}
	if t.producers == nil {
		t.producers = make(map[string]*Producer)
	}
	t.producers[p.id] = p
	t.router.registerProducer(p)
	return p, nil
}

func (t *Transport) Consume(_ context.Context, producerID string, caps mediaengine.RTPCapabilities, paused bool) (mediaengine.Consumer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, fmt.Errorf("transport closed")
	}
	t.router.mu.Lock()
	producer, ok := t.router.producers[producerID]
	t.router.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("producer %s not found", producerID)
	}

	c := &Consumer{
		id:         uuid.NewString(),
		producerID: producerID,
		kind:       producer.Kind(),
		params:     producer.RTPParameters(),
		paused:     paused,
		events:     make(chan mediaengine.Event, eventBuffer),
		owner:      t,
	}
	c.producerPaused.Store(producer.Paused())

	// Subscribe to the producer's lifecycle so the consumer can surface
	// producerclose / producerpause / producerresume (§4.3 consume hooks).
	producer.addConsumer(c)

	if t.consumers == nil {
		t.consumers = make(map[string]*Consumer)
	}
	t.consumers[c.id] = c
	return c, nil
}

func (t *Transport) SetMaxIncomingBitrate(_ context.Context, _ int) error { return nil }

func (t *Transport) Events() <-chan mediaengine.Event { return t.events }

func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	producers := make([]*Producer, 0, len(t.producers))
	for _, p := range t.producers {
		producers = append(producers, p)
	}
	consumers := make([]*Consumer, 0, len(t.consumers))
	for _, c := range t.consumers {
		consumers = append(consumers, c)
	}
	t.mu.Unlock()

	for _, p := range producers {
		p.Close()
	}
	for _, c := range consumers {
		c.Close()
	}
	emit(t.events, mediaengine.Event{Kind: mediaengine.EventTransportClosed, TransportID: t.id})
	t.router.onTransportClosed(t)
}

// Producer is a fake server-side handle for uploaded media.
type Producer struct {
	id      string
	kind    mediaengine.Kind
	params  mediaengine.RTPParameters
	appData mediaengine.AppData
	events  chan mediaengine.Event
	owner   *Transport

	mu        sync.Mutex
	paused    bool
	closed    bool
	consumers []*Consumer
}

func (p *Producer) ID() string                             { return p.id }
func (p *Producer) Kind() mediaengine.Kind                 { return p.kind }
func (p *Producer) RTPParameters() mediaengine.RTPParameters { return p.params }
func (p *Producer) AppData() mediaengine.AppData           { return p.appData }
func (p *Producer) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Producer) Pause(_ context.Context) error {
	p.mu.Lock()
	p.paused = true
	consumers := append([]*Consumer(nil), p.consumers...)
	p.mu.Unlock()
	emit(p.events, mediaengine.Event{Kind: mediaengine.EventProducerPaused, ProducerID: p.id})
	for _, c := range consumers {
		c.onProducerPaused()
	}
	return nil
}

func (p *Producer) Resume(_ context.Context) error {
	p.mu.Lock()
	p.paused = false
	consumers := append([]*Consumer(nil), p.consumers...)
	p.mu.Unlock()
	emit(p.events, mediaengine.Event{Kind: mediaengine.EventProducerResumed, ProducerID: p.id})
	for _, c := range consumers {
		c.onProducerResumed()
	}
	return nil
}

func (p *Producer) Events() <-chan mediaengine.Event { return p.events }

func (p *Producer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	consumers := append([]*Consumer(nil), p.consumers...)
	p.mu.Unlock()

	p.owner.router.unregisterProducer(p.id)
	emit(p.events, mediaengine.Event{Kind: mediaengine.EventProducerClosed, ProducerID: p.id})
	for _, c := range consumers {
		c.onProducerClosed()
	}
}

func (p *Producer) addConsumer(c *Consumer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consumers = append(p.consumers, c)
}

// Consumer is a fake server-side handle for forwarded media.
type Consumer struct {
	id         string
	producerID string
	kind       mediaengine.Kind
	params     mediaengine.RTPParameters
	events     chan mediaengine.Event
	owner      *Transport

	mu             sync.Mutex
	paused         bool
	closed         bool
	producerPaused atomic.Bool
}

func (c *Consumer) ID() string                             { return c.id }
func (c *Consumer) Kind() mediaengine.Kind                 { return c.kind }
func (c *Consumer) ProducerID() string                     { return c.producerID }
func (c *Consumer) RTPParameters() mediaengine.RTPParameters { return c.params }
func (c *Consumer) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}
func (c *Consumer) ProducerPaused() bool { return c.producerPaused.Load() }

func (c *Consumer) Pause(_ context.Context) error {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
	emit(c.events, mediaengine.Event{Kind: mediaengine.EventConsumerPaused, ConsumerID: c.id})
	return nil
}

func (c *Consumer) Resume(_ context.Context) error {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
	emit(c.events, mediaengine.Event{Kind: mediaengine.EventConsumerResumed, ConsumerID: c.id})
	return nil
}

func (c *Consumer) SetPreferredLayers(_ context.Context, _ int, _ int) error { return nil }

func (c *Consumer) Events() <-chan mediaengine.Event { return c.events }

func (c *Consumer) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	emit(c.events, mediaengine.Event{Kind: mediaengine.EventConsumerClosed, ConsumerID: c.id})
}

func (c *Consumer) onProducerClosed() {
	c.producerPaused.Store(true)
	emit(c.events, mediaengine.Event{Kind: mediaengine.EventConsumerClosed, ConsumerID: c.id})
}

func (c *Consumer) onProducerPaused() {
	c.producerPaused.Store(true)
	emit(c.events, mediaengine.Event{Kind: mediaengine.EventConsumerPaused, ConsumerID: c.id})
}

func (c *Consumer) onProducerResumed() {
	c.producerPaused.Store(false)
	emit(c.events, mediaengine.Event{Kind: mediaengine.EventConsumerResumed, ConsumerID: c.id})
}
