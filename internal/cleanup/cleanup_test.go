package cleanup

import (
	"context"
	"testing"

	"github.com/brightloop-video/sfu-core/internal/fanout"
	"github.com/brightloop-video/sfu-core/internal/mediaengine"
	"github.com/brightloop-video/sfu-core/internal/mediaengine/fake"
	"github.com/brightloop-video/sfu-core/internal/peer"
	"github.com/brightloop-video/sfu-core/internal/room"
	"github.com/brightloop-video/sfu-core/internal/router"
	"github.com/brightloop-video/sfu-core/internal/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type noopSender struct{}

func (noopSender) Send([]byte)       {}
func (noopSender) SocketID() string { return "socket-1" }

func fakeFactory(pid string, minPort, maxPort int) mediaengine.Worker {
	return fake.NewWorker(pid, minPort, maxPort)
}

type harness struct {
	peers   *peer.Registry
	rooms   *room.Registry
	routers *router.Registry
	bc      *fanout.Broadcaster
	coord   *Coordinator
	cancel  context.CancelFunc
}

func newHarness() *harness {
	ctx, cancel := context.WithCancel(context.Background())
	pool := workerpool.New(ctx, 1, fakeFactory)
	routers := router.NewRegistry(pool)
	peers := peer.NewRegistry()
	rooms := room.NewRegistry()
	bc := fanout.NewBroadcaster(rooms, peers, nil)
	return &harness{
		peers: peers, rooms: rooms, routers: routers, bc: bc,
		coord: NewCoordinator(peers, rooms, routers, bc), cancel: cancel,
	}
}

func TestCleanupPeer_CascadesAndCollapsesEmptyRoom(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness()
	defer h.cancel()

	_, err := h.rooms.Join("room-1", "peer-1")
	require.NoError(t, err)
	rt, err := h.routers.GetOrCreate(context.Background(), "room-1")
	require.NoError(t, err)

	p := peer.New("peer-1", "user-1", "Alice", "room-1", noopSender{})
	h.peers.Add(p)

	sendT, err := rt.CreateWebRTCTransport(context.Background(), mediaengine.TransportOptions{Direction: mediaengine.DirectionSend})
	require.NoError(t, err)
	p.AddSendTransport(sendT)

	prod, err := sendT.Produce(context.Background(), mediaengine.KindAudio, nil, nil)
	require.NoError(t, err)
	p.AddProducer(prod)
	h.routers.Register("room-1", prod.ID(), "peer-1", mediaengine.KindAudio, "Alice")

	h.coord.CleanupPeer(context.Background(), "peer-1")

	_, ok := h.peers.Get("peer-1")
	assert.False(t, ok)
	_, ok = h.rooms.Get("room-1")
	assert.False(t, ok, "room should collapse once empty")
	_, ok = h.routers.Get("room-1")
	assert.False(t, ok, "router should be cleaned up with the empty room")
}

func TestCleanupPeer_LeavesRoomAliveIfOthersRemain(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness()
	defer h.cancel()

	_, err := h.rooms.Join("room-1", "peer-1")
	require.NoError(t, err)
	_, err = h.rooms.Join("room-1", "peer-2")
	require.NoError(t, err)
	_, err = h.routers.GetOrCreate(context.Background(), "room-1")
	require.NoError(t, err)

	p1 := peer.New("peer-1", "user-1", "Alice", "room-1", noopSender{})
	h.peers.Add(p1)

	h.coord.CleanupPeer(context.Background(), "peer-1")

	_, ok := h.rooms.Get("room-1")
	assert.True(t, ok)
	r, _ := h.rooms.Get("room-1")
	assert.Equal(t, 1, r.PeerCount())

	// The room's router stays open above; close it so its observer
	// goroutine exits before goleak checks.
	h.routers.Cleanup("room-1")
}

func TestCleanupPeer_IdempotentSecondCallIsNoop(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness()
	defer h.cancel()

	_, err := h.rooms.Join("room-1", "peer-1")
	require.NoError(t, err)
	p := peer.New("peer-1", "user-1", "Alice", "room-1", noopSender{})
	h.peers.Add(p)

	h.coord.CleanupPeer(context.Background(), "peer-1")
	h.coord.CleanupPeer(context.Background(), "peer-1") // must not panic or double-decrement
}

func TestCleanupPeer_UnknownPeerIsNoop(t *testing.T) {
	h := newHarness()
	h.coord.CleanupPeer(context.Background(), "does-not-exist")
}
