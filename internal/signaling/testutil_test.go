package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/brightloop-video/sfu-core/internal/auth"
	"github.com/brightloop-video/sfu-core/internal/cleanup"
	"github.com/brightloop-video/sfu-core/internal/fanout"
	"github.com/brightloop-video/sfu-core/internal/mediaengine"
	"github.com/brightloop-video/sfu-core/internal/mediaengine/fake"
	"github.com/brightloop-video/sfu-core/internal/peer"
	"github.com/brightloop-video/sfu-core/internal/room"
	"github.com/brightloop-video/sfu-core/internal/router"
	"github.com/brightloop-video/sfu-core/internal/workerpool"
	"github.com/golang-jwt/jwt/v5"
)

var fakeConnCounter atomic.Int64

type fakeConn struct {
	mu       sync.Mutex
	out      []map[string]any
	socketID string
}

func (c *fakeConn) Send(data []byte) {
	var env map[string]any
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out = append(c.out, env)
}

// SocketID lazily assigns a unique id per connection the first time it's
// needed, mirroring the real transport.Client's id-per-connection lifetime.
func (c *fakeConn) SocketID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.socketID == "" {
		c.socketID = fmt.Sprintf("socket-%d", fakeConnCounter.Add(1))
	}
	return c.socketID
}

func (c *fakeConn) messages() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[string]any(nil), c.out...)
}

func fakeWorkerFactory(pid string, minPort, maxPort int) mediaengine.Worker {
	return fake.NewWorker(pid, minPort, maxPort)
}

type testHarness struct {
	d      *Dispatcher
	pool   *workerpool.Pool
	cancel context.CancelFunc
}

func newTestHarness(secret string) *testHarness {
	ctx, cancel := context.WithCancel(context.Background())
	pool := workerpool.New(ctx, 2, fakeWorkerFactory)
	routers := router.NewRegistry(pool)
	peers := peer.NewRegistry()
	rooms := room.NewRegistry()
	bc := fanout.NewBroadcaster(rooms, peers, nil)
	coord := cleanup.NewCoordinator(peers, rooms, routers, bc)
	validator := auth.NewHMACValidator(secret)
	d := NewDispatcher(peers, rooms, routers, validator, bc, coord, TransportOptions{AnnouncedIP: "127.0.0.1"})
	return &testHarness{d: d, pool: pool, cancel: cancel}
}

const testSecret = "integration-test-secret-value-0123456789"

func signTestToken(userID, name string) string {
	claims := &auth.Claims{UserID: userID, UserName: name}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, _ := tok.SignedString([]byte(testSecret))
	return s
}

// call invokes Dispatch synchronously, blocking on the ack.
func call(d *Dispatcher, conn *fakeConn, peerID, msgType string, payload any) (any, string, string) {
	data, _ := json.Marshal(payload)
	resultCh := make(chan struct {
		result  any
		errCode string
	}, 1)
	newPeerID := d.Dispatch(context.Background(), conn, peerID, Envelope{
		Type:    msgType,
		Payload: data,
		Ack: func(result any, errCode string) {
			resultCh <- struct {
				result  any
				errCode string
			}{result, errCode}
		},
	})
	r := <-resultCh
	return r.result, r.errCode, newPeerID
}
