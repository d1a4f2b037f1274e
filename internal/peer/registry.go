package peer

import (
	"fmt"
	"sync"

	"github.com/brightloop-video/sfu-core/internal/metrics"
)

// ErrPeerNotFound is the *PeerNotFound* error of §7.
var ErrPeerNotFound = fmt.Errorf("peer not found")

// Registry maps peer id -> *Peer. One instance per process.
type Registry struct {
	mu    sync.RWMutex
	peers map[string]*Peer
}

func NewRegistry() *Registry {
	return &Registry{peers: make(map[string]*Peer)}
}

func (r *Registry) Add(p *Peer) {
	r.mu.Lock()
	r.peers[p.ID] = p
	n := len(r.peers)
	r.mu.Unlock()
	metrics.PeersActive.Set(float64(n))
}

func (r *Registry) Get(id string) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	return p, ok
}

// Remove deletes the peer from the registry, if present, and returns it so
// the caller can run cleanup against it. Idempotent: a second call for the
// same id returns (nil, false).
func (r *Registry) Remove(id string) (*Peer, bool) {
	r.mu.Lock()
	p, ok := r.peers[id]
	if ok {
		delete(r.peers, id)
	}
	n := len(r.peers)
	r.mu.Unlock()
	if ok {
		metrics.PeersActive.Set(float64(n))
	}
	return p, ok
}

func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
