// Package router owns the per-room media router and its producer index
// (§4.2).
package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brightloop-video/sfu-core/internal/bus"
	"github.com/brightloop-video/sfu-core/internal/mediaengine"
	"github.com/brightloop-video/sfu-core/internal/metrics"
	"github.com/brightloop-video/sfu-core/internal/workerpool"
)

// ErrRouterNotFound is the *RouterNotFound* error of §7.
var ErrRouterNotFound = fmt.Errorf("router not found")

// ProducerInfo is one entry of a room's producer index (§4.2).
type ProducerInfo struct {
	ProducerID string
	PeerID     string
	Kind       mediaengine.Kind
	UserName   string
}

// Stats is the read-only room summary returned by Stats (§4.2).
type Stats struct {
	PeerCount     int
	ProducerCount int
	CreatedAt     time.Time
	Uptime        time.Duration
}

type entry struct {
	router        mediaengine.Router
	workerPID     string
	createdAt     time.Time
	peerCount     int
	producerIndex map[string]ProducerInfo
	subCancel     context.CancelFunc // cancels this room's bus subscription, if any
}

// WorkerPool is the subset of workerpool.Pool the registry depends on.
type WorkerPool interface {
	GetLeastLoaded() (string, error)
	Worker(pid string) (mediaengine.Worker, bool)
	UpdateLoad(pid string, counter workerpool.CounterName, delta int)
}

// Bus is the optional cross-instance channel a newly created room
// subscribes to, so events published by another instance reach this
// instance's local peers too; internal/bus.Service satisfies it. Left unset
// (nil), the registry runs single-instance and subscribes to nothing.
type Bus interface {
	Subscribe(ctx context.Context, roomID string, wg *sync.WaitGroup, handler func(bus.Message))
	InstanceID() string
}

// Registry maps room id -> router + workerPid + live producer index.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	pool    WorkerPool
	bus     Bus
	relay   func(roomID, event string, payload any)
}

func NewRegistry(pool WorkerPool) *Registry {
	return &Registry{entries: make(map[string]*entry), pool: pool}
}

// SetBus wires in the cross-instance subscription: every room created after
// this call subscribes to its bus channel for the room's lifetime, relaying
// messages from other instances into relay (fanout.Broadcaster.LocalBroadcast,
// so the relayed event doesn't get republished back onto the bus). Called
// once at startup when REDIS_ADDR is configured; a nil bus is a no-op.
func (r *Registry) SetBus(b Bus, relay func(roomID, event string, payload any)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bus = b
	r.relay = relay
}

// GetOrCreate is idempotent: concurrent calls with the same roomID yield the
// same router (the single-instance invariant, §4.2 and §8 invariant 1-3).
func (r *Registry) GetOrCreate(ctx context.Context, roomID string) (mediaengine.Router, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[roomID]; ok {
		return e.router, nil
	}

	pid, err := r.pool.GetLeastLoaded()
	if err != nil {
		return nil, err
	}
	w, ok := r.pool.Worker(pid)
	if !ok {
		return nil, workerpool.ErrNoWorkersAvailable
	}

	rt, err := w.CreateRouter(ctx, mediaengine.MediaCodecs)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}
	r.pool.UpdateLoad(pid, workerpool.CounterRouters, 1)

	e := &entry{
		router:        rt,
		workerPID:     pid,
		createdAt:     time.Now(),
		producerIndex: make(map[string]ProducerInfo),
	}
	r.entries[roomID] = e
	r.wireObservers(roomID, e)
	r.wireBus(roomID, e)

	metrics.RoomsActive.Set(float64(len(r.entries)))
	return rt, nil
}

// wireBus subscribes the room to its bus channel for the room's lifetime, if
// a Bus was configured via SetBus. Messages this same instance published are
// dropped (SenderID match) to avoid echoing a broadcast back to its own
// peers a second time; everything else is relayed through r.relay.
func (r *Registry) wireBus(roomID string, e *entry) {
	if r.bus == nil {
		return
	}
	subCtx, cancel := context.WithCancel(context.Background())
	e.subCancel = cancel
	instanceID := r.bus.InstanceID()
	r.bus.Subscribe(subCtx, roomID, nil, func(msg bus.Message) {
		if msg.SenderID == instanceID {
			return
		}
		if r.relay != nil {
			r.relay(msg.RoomID, msg.Event, msg.Payload)
		}
	})
}

// wireObservers attaches the close-side hooks: on router close, decrement
// the worker's router counter; on each transport's close, decrement the
// transport counter. The matching increment is NoteTransportCreated.
func (r *Registry) wireObservers(roomID string, e *entry) {
	go func() {
		for ev := range e.router.Events() {
			switch ev.Kind {
			case mediaengine.EventTransportClosed:
				r.pool.UpdateLoad(e.workerPID, workerpool.CounterTransports, -1)
			case mediaengine.EventRouterClosed:
				r.pool.UpdateLoad(e.workerPID, workerpool.CounterRouters, -1)
				return
			}
		}
	}()
}

// NoteTransportCreated increments the owning worker's transport counter.
// Called by the signaling dispatcher right after CreateWebRTCTransport
// succeeds, since the fake/real engine only signals the *close* side of a
// transport's life through Router.Events.
func (r *Registry) NoteTransportCreated(roomID string) {
	r.mu.Lock()
	e, ok := r.entries[roomID]
	r.mu.Unlock()
	if ok {
		r.pool.UpdateLoad(e.workerPID, workerpool.CounterTransports, 1)
	}
}

// Get is a pure lookup.
func (r *Registry) Get(roomID string) (mediaengine.Router, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[roomID]
	if !ok {
		return nil, false
	}
	return e.router, true
}

// Cleanup closes the router (cascading in the media engine), clears the
// producer index, and removes the room entry.
func (r *Registry) Cleanup(roomID string) {
	r.mu.Lock()
	e, ok := r.entries[roomID]
	if ok {
		delete(r.entries, roomID)
	}
	n := len(r.entries)
	r.mu.Unlock()

	if !ok {
		return
	}
	if e.subCancel != nil {
		e.subCancel()
	}
	e.router.Close()
	metrics.RoomsActive.Set(float64(n))
	metrics.RoomProducersActive.DeleteLabelValues(roomID)
}

// Register adds a producer index entry (§4.2).
func (r *Registry) Register(roomID, producerID, peerID string, kind mediaengine.Kind, userName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[roomID]
	if !ok {
		return
	}
	e.producerIndex[producerID] = ProducerInfo{ProducerID: producerID, PeerID: peerID, Kind: kind, UserName: userName}
	metrics.RoomProducersActive.WithLabelValues(roomID).Set(float64(len(e.producerIndex)))
}

// Unregister removes a producer index entry (§4.2).
func (r *Registry) Unregister(roomID, producerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[roomID]
	if !ok {
		return
	}
	delete(e.producerIndex, producerID)
	metrics.RoomProducersActive.WithLabelValues(roomID).Set(float64(len(e.producerIndex)))
}

// OthersOf yields every producer index entry whose peerID != excludePeerID,
// order unspecified.
func (r *Registry) OthersOf(roomID, excludePeerID string) []ProducerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[roomID]
	if !ok {
		return nil
	}
	out := make([]ProducerInfo, 0, len(e.producerIndex))
	for _, info := range e.producerIndex {
		if info.PeerID != excludePeerID {
			out = append(out, info)
		}
	}
	return out
}

// SetPeerCount records the current peer count for Stats/IsFull. room.Registry
// is the authority on membership; this copy is set by the signaling
// dispatcher after a join and by the cleanup coordinator after a leave.
func (r *Registry) SetPeerCount(roomID string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[roomID]; ok {
		e.peerCount = count
	}
}

// Stats returns {peerCount, producerCount, createdAt, uptime} (§4.2).
func (r *Registry) Stats(roomID string) (Stats, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[roomID]
	if !ok {
		return Stats{}, false
	}
	return Stats{
		PeerCount:     e.peerCount,
		ProducerCount: len(e.producerIndex),
		CreatedAt:     e.createdAt,
		Uptime:        time.Since(e.createdAt),
	}, true
}

// IsFull reports whether the room has reached maxPeers (default 150).
func (r *Registry) IsFull(roomID string, maxPeers int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[roomID]
	if !ok {
		return false
	}
	return e.peerCount >= maxPeers
}
