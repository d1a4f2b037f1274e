package peer

import (
	"testing"

	"github.com/brightloop-video/sfu-core/internal/mediaengine"
	"github.com/brightloop-video/sfu-core/internal/mediaengine/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type noopSender struct{}

func (noopSender) Send([]byte)       {}
func (noopSender) SocketID() string { return "socket-1" }

func TestNew_StartsAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := New("peer-1", "user-1", "Alice", "room-1", noopSender{})
	p.Stop()
}

func TestLastRecvTransport_LastCreatedWins(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := New("peer-1", "user-1", "Alice", "room-1", noopSender{})
	defer p.Stop()

	w := fake.NewWorker("worker-0", 20000, 20999)
	rt, err := w.CreateRouter(nil, mediaengine.MediaCodecs)
	require.NoError(t, err)

	t1, err := rt.CreateWebRTCTransport(nil, mediaengine.TransportOptions{Direction: mediaengine.DirectionRecv})
	require.NoError(t, err)
	p.AddRecvTransport(t1)

	t2, err := rt.CreateWebRTCTransport(nil, mediaengine.TransportOptions{Direction: mediaengine.DirectionRecv})
	require.NoError(t, err)
	p.AddRecvTransport(t2)

	last, ok := p.LastRecvTransport()
	require.True(t, ok)
	assert.Equal(t, t2.ID(), last.ID())
}

func TestToggleHandRaise(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := New("peer-1", "user-1", "Alice", "room-1", noopSender{})
	defer p.Stop()

	assert.True(t, p.ToggleHandRaise())
	assert.False(t, p.ToggleHandRaise())
}

func TestView_NeverExposesInternalMaps(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := New("peer-1", "user-1", "Alice", "room-1", noopSender{})
	defer p.Stop()
	p.SetOwner(true)

	v := p.View()
	assert.Equal(t, "peer-1", v.PeerID)
	assert.True(t, v.IsOwner)
}

func TestRegistry_AddGetRemoveIdempotent(t *testing.T) {
	reg := NewRegistry()
	p := New("peer-1", "user-1", "Alice", "room-1", noopSender{})
	defer p.Stop()

	reg.Add(p)
	got, ok := reg.Get("peer-1")
	require.True(t, ok)
	assert.Same(t, p, got)

	removed, ok := reg.Remove("peer-1")
	require.True(t, ok)
	assert.Same(t, p, removed)

	_, ok = reg.Remove("peer-1")
	assert.False(t, ok)
}
