// Package room tracks room membership and ownership (§3 Room, §4.3
// ownership assignment). It does not own media state — that lives in
// internal/router's producer index and each internal/peer.Peer.
package room

import (
	"sync"
	"time"

	"github.com/brightloop-video/sfu-core/internal/metrics"
)

const defaultMaxPeers = 150

// Room is the membership record for one conference (§3).
type Room struct {
	ID        string
	CreatedAt time.Time
	MaxPeers  int

	mu      sync.Mutex
	peerIDs map[string]struct{}
	ownerID string // empty until first join; never reassigned thereafter
}

func newRoom(id string) *Room {
	return &Room{
		ID:        id,
		CreatedAt: time.Now(),
		MaxPeers:  defaultMaxPeers,
		peerIDs:   make(map[string]struct{}),
	}
}

// OwnerID returns the room's immutable owner, and whether one has been set.
func (r *Room) OwnerID() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ownerID, r.ownerID != ""
}

// PeerCount returns the current membership size.
func (r *Room) PeerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peerIDs)
}

// PeerIDs returns a snapshot of the membership set.
func (r *Room) PeerIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.peerIDs))
	for id := range r.peerIDs {
		out = append(out, id)
	}
	return out
}

// Registry maps room id -> *Room, with total-order join semantics: the
// entire check-empty/assign-owner/insert sequence runs under the registry's
// single lock so two concurrent first-joins for the same room can never both
// become owner (SPEC_FULL open question 2).
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// JoinResult reports what Join observed and decided.
type JoinResult struct {
	Room    *Room
	IsOwner bool
	// Created is true if this call created the room (first joiner).
	Created bool
}

// ErrRoomFull is the *RoomFull* error of §7.
type ErrRoomFull struct{ RoomID string }

func (e *ErrRoomFull) Error() string { return "room full: " + e.RoomID }

// Join adds peerID to roomId, creating the room and assigning ownership if
// this is the first joiner, atomically. Rejects with ErrRoomFull if the room
// is already at capacity.
func (reg *Registry) Join(roomID, peerID string) (JoinResult, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, existed := reg.rooms[roomID]
	if !existed {
		r = newRoom(roomID)
		reg.rooms[roomID] = r
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.peerIDs) >= r.MaxPeers {
		return JoinResult{}, &ErrRoomFull{RoomID: roomID}
	}

	isOwner := false
	if r.ownerID == "" {
		r.ownerID = peerID
		isOwner = true
	}
	r.peerIDs[peerID] = struct{}{}

	metrics.RoomParticipants.WithLabelValues(roomID).Set(float64(len(r.peerIDs)))

	return JoinResult{Room: r, IsOwner: isOwner, Created: !existed}, nil
}

// Get is a pure lookup.
func (reg *Registry) Get(roomID string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rooms[roomID]
	return r, ok
}

// Leave removes peerID from the room's membership. Returns the resulting
// peer count and whether the room is now empty (caller drives router
// cleanup and drops the record via Delete).
func (reg *Registry) Leave(roomID, peerID string) (remaining int, empty bool) {
	reg.mu.Lock()
	r, ok := reg.rooms[roomID]
	reg.mu.Unlock()
	if !ok {
		return 0, true
	}

	r.mu.Lock()
	delete(r.peerIDs, peerID)
	remaining = len(r.peerIDs)
	r.mu.Unlock()

	metrics.RoomParticipants.WithLabelValues(roomID).Set(float64(remaining))
	return remaining, remaining == 0
}

// Delete drops the room record entirely (called once the room is empty).
// Idempotent.
func (reg *Registry) Delete(roomID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.rooms[roomID]; ok {
		delete(reg.rooms, roomID)
		metrics.RoomParticipants.DeleteLabelValues(roomID)
	}
}

// IsOwner reports whether peerID is the room's owner. False for any room
// that does not exist or has no owner (never reassigned, per open question 1).
func (reg *Registry) IsOwner(roomID, peerID string) bool {
	r, ok := reg.Get(roomID)
	if !ok {
		return false
	}
	owner, has := r.OwnerID()
	return has && owner == peerID
}
