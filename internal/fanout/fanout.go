// Package fanout broadcasts room events to connected peers (§4.4 Event
// Fan-out).
package fanout

import (
	"encoding/json"

	"github.com/brightloop-video/sfu-core/internal/logging"
	"github.com/brightloop-video/sfu-core/internal/peer"
	"github.com/brightloop-video/sfu-core/internal/room"
	"go.uber.org/zap"
)

// Publisher is the optional cross-instance channel: when configured (Redis
// present), the same event that goes out over local peer connections is
// also published so a second process's peers receive it. internal/bus
// implements this.
type Publisher interface {
	Publish(roomID, event string, payload any)
}

// envelope is the JSON shape every broadcast event is wrapped in on the wire.
type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Broadcaster sends room events to peers over their own buffered send
// channel, non-blocking, matching the teacher's drop-and-log posture.
type Broadcaster struct {
	rooms     *room.Registry
	peers     *peer.Registry
	publisher Publisher // nil unless REDIS_ADDR is configured
}

func NewBroadcaster(rooms *room.Registry, peers *peer.Registry, publisher Publisher) *Broadcaster {
	return &Broadcaster{rooms: rooms, peers: peers, publisher: publisher}
}

func (b *Broadcaster) encode(event string, payload any) []byte {
	data, err := json.Marshal(envelope{Type: event, Payload: payload})
	if err != nil {
		logging.Error(nil, "failed to encode broadcast event", zap.String("event", event), zap.Error(err))
		return nil
	}
	return data
}

func (b *Broadcaster) sendTo(peerID string, data []byte) {
	p, ok := b.peers.Get(peerID)
	if !ok || p.Conn == nil {
		return
	}
	p.Conn.Send(data)
}

// ToRoomExceptSender broadcasts to every peer in roomId other than
// senderPeerId.
func (b *Broadcaster) ToRoomExceptSender(roomID, senderPeerID, event string, payload any) {
	r, ok := b.rooms.Get(roomID)
	if !ok {
		return
	}
	data := b.encode(event, payload)
	if data == nil {
		return
	}
	for _, id := range r.PeerIDs() {
		if id == senderPeerID {
			continue
		}
		b.sendTo(id, data)
	}
	if b.publisher != nil {
		b.publisher.Publish(roomID, event, payload)
	}
}

// ToRoomIncludingSender broadcasts to every peer in roomId, sender included.
// Only chatMessage uses this (§4.4).
func (b *Broadcaster) ToRoomIncludingSender(roomID, event string, payload any) {
	r, ok := b.rooms.Get(roomID)
	if !ok {
		return
	}
	data := b.encode(event, payload)
	if data == nil {
		return
	}
	for _, id := range r.PeerIDs() {
		b.sendTo(id, data)
	}
	if b.publisher != nil {
		b.publisher.Publish(roomID, event, payload)
	}
}

// LocalBroadcast delivers an event to every local peer in roomID without
// touching the publisher. It is the relay target for messages arriving from
// another instance over internal/bus: those events already went out over
// Redis once, so rebroadcasting them through ToRoomExceptSender/
// ToRoomIncludingSender would republish them right back and loop forever.
func (b *Broadcaster) LocalBroadcast(roomID, event string, payload any) {
	r, ok := b.rooms.Get(roomID)
	if !ok {
		return
	}
	data := b.encode(event, payload)
	if data == nil {
		return
	}
	for _, id := range r.PeerIDs() {
		b.sendTo(id, data)
	}
}
