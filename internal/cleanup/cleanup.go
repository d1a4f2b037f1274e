// Package cleanup cascades the closure of a peer's media-engine handles and
// collapses empty rooms (§4.4 Cleanup Coordinator).
package cleanup

import (
	"context"

	"github.com/brightloop-video/sfu-core/internal/fanout"
	"github.com/brightloop-video/sfu-core/internal/logging"
	"github.com/brightloop-video/sfu-core/internal/peer"
	"github.com/brightloop-video/sfu-core/internal/room"
	"github.com/brightloop-video/sfu-core/internal/router"
	"go.uber.org/zap"
)

// Coordinator runs the six-step cascading cleanup of §4.4.
type Coordinator struct {
	peers   *peer.Registry
	rooms   *room.Registry
	routers *router.Registry
	bc      *fanout.Broadcaster
}

func NewCoordinator(peers *peer.Registry, rooms *room.Registry, routers *router.Registry, bc *fanout.Broadcaster) *Coordinator {
	return &Coordinator{peers: peers, rooms: rooms, routers: routers, bc: bc}
}

// CleanupPeer runs the six numbered steps of §4.4, each close error logged
// and skipped. Idempotent: a second call for the same peerID finds nothing
// in the peer registry and returns immediately (testable property 8).
func (c *Coordinator) CleanupPeer(ctx context.Context, peerID string) {
	p, ok := c.peers.Remove(peerID)
	if !ok {
		return
	}
	defer p.Stop()

	roomID := p.RoomID

	// 1. consumers
	for _, cons := range p.Consumers() {
		closeAndLog(ctx, "consumer", cons.ID(), cons.Close)
	}

	// 2. producers: unregister from room producer index, then close
	for _, prod := range p.Producers() {
		c.routers.Unregister(roomID, prod.ID())
		closeAndLog(ctx, "producer", prod.ID(), prod.Close)
	}

	// 3. transports (send + recv), via Peer.AllTransports
	closeAllTransports(ctx, p)

	// 4. remove from room membership; emit participantLeft to the remainder
	remaining, empty := c.rooms.Leave(roomID, peerID)
	c.routers.SetPeerCount(roomID, remaining)
	if c.bc != nil {
		c.bc.ToRoomExceptSender(roomID, peerID, "participantLeft", map[string]string{
			"peerId": peerID,
			"userId": p.UserID,
		})
	}

	// 5. collapse empty rooms
	if empty {
		c.routers.Cleanup(roomID)
		c.rooms.Delete(roomID)
	}

	logging.Info(ctx, "peer cleaned up",
		zap.String("peer_id", peerID),
		zap.String("room_id", roomID),
		zap.Int("room_remaining", remaining),
		zap.Bool("room_emptied", empty),
	)

	// 6. peer already removed from registry at step 0 above (Remove is the
	// idempotence guard per §4.4's numbered step 6).
}

func closeAndLog(ctx context.Context, kind, id string, closeFn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error(ctx, "panic closing media handle, swallowed",
				zap.String("kind", kind), zap.String("id", id), zap.Any("recover", r))
		}
	}()
	closeFn()
}

func closeAllTransports(ctx context.Context, p *peer.Peer) {
	for _, t := range p.AllTransports() {
		closeAndLog(ctx, "transport", t.ID(), t.Close)
	}
}
