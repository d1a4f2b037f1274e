package signaling

import (
	"context"
	"testing"
	"time"

	"github.com/brightloop-video/sfu-core/internal/mediaengine/fake"
	"github.com/stretchr/testify/require"
)

func waitForMessage(t *testing.T, conn *fakeConn, msgType string, timeout time.Duration) map[string]any {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, m := range conn.messages() {
			if m["type"] == msgType {
				return m
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for message type %q, got %+v", msgType, conn.messages())
	return nil
}

// S1: first joiner is owner.
func TestScenario_FirstJoinerIsOwner(t *testing.T) {
	h := newTestHarness(testSecret)
	defer h.cancel()

	conn := &fakeConn{}
	result, errCode, _ := call(h.d, conn, "", "joinRoom", JoinRoomInput{Token: signTestToken("u1", "Alice"), RoomID: "s1"})
	require.Empty(t, errCode)
	require.True(t, result.(JoinRoomResult).IsOwner)
}

// S2: a late joiner discovers streams already being produced.
func TestScenario_LateJoinDiscoversExistingStreams(t *testing.T) {
	h := newTestHarness(testSecret)
	defer h.cancel()

	connA := &fakeConn{}
	resultA, _, _ := call(h.d, connA, "", "joinRoom", JoinRoomInput{Token: signTestToken("uA", "Alice"), RoomID: "s2"})
	peerA := resultA.(JoinRoomResult).PeerID
	sendResult, _, _ := call(h.d, connA, peerA, "createTransport", CreateTransportInput{RoomID: "s2", Type: "send"})
	sendParams := sendResult.(TransportParams)
	_, errCode, _ := call(h.d, connA, peerA, "produce", ProduceInput{TransportID: sendParams.ID, Kind: "video"})
	require.Empty(t, errCode)

	connB := &fakeConn{}
	resultB, errCode2, _ := call(h.d, connB, "", "joinRoom", JoinRoomInput{Token: signTestToken("uB", "Bob"), RoomID: "s2"})
	require.Empty(t, errCode2)
	jrB := resultB.(JoinRoomResult)
	require.Len(t, jrB.ExistingProducers, 1)
}

// S3: a mute (pause producer) propagates to the rest of the room.
func TestScenario_MutePropagatesToRoom(t *testing.T) {
	h := newTestHarness(testSecret)
	defer h.cancel()

	connA := &fakeConn{}
	resultA, _, _ := call(h.d, connA, "", "joinRoom", JoinRoomInput{Token: signTestToken("uA", "Alice"), RoomID: "s3"})
	peerA := resultA.(JoinRoomResult).PeerID
	sendResult, _, _ := call(h.d, connA, peerA, "createTransport", CreateTransportInput{RoomID: "s3", Type: "send"})
	sendParams := sendResult.(TransportParams)
	produceResult, _, _ := call(h.d, connA, peerA, "produce", ProduceInput{TransportID: sendParams.ID, Kind: "audio"})
	producerID := produceResult.(map[string]string)["id"]

	connB := &fakeConn{}
	_, _, _ = call(h.d, connB, "", "joinRoom", JoinRoomInput{Token: signTestToken("uB", "Bob"), RoomID: "s3"})

	_, errCode, _ := call(h.d, connA, peerA, "pauseProducer", IDInput{ID: producerID})
	require.Empty(t, errCode)

	waitForMessage(t, connB, "producerPaused", time.Second)
}

// S4: a disconnect cascades cleanup and notifies the remaining room.
func TestScenario_DisconnectCascades(t *testing.T) {
	h := newTestHarness(testSecret)
	defer h.cancel()

	connA := &fakeConn{}
	resultA, _, _ := call(h.d, connA, "", "joinRoom", JoinRoomInput{Token: signTestToken("uA", "Alice"), RoomID: "s4"})
	peerA := resultA.(JoinRoomResult).PeerID

	connB := &fakeConn{}
	_, _, _ = call(h.d, connB, "", "joinRoom", JoinRoomInput{Token: signTestToken("uB", "Bob"), RoomID: "s4"})

	// disconnect is fire-and-forget (no ack), so it is dispatched directly
	// rather than through call(), which blocks on the ack.
	h.d.Dispatch(context.Background(), connA, peerA, Envelope{Type: "disconnect"})

	waitForMessage(t, connB, "participantLeft", time.Second)

	_, exists := h.d.peers.Get(peerA)
	require.False(t, exists)
}

// S5: only the owner may end the meeting.
func TestScenario_OnlyOwnerMayEndMeeting(t *testing.T) {
	h := newTestHarness(testSecret)
	defer h.cancel()

	connOwner := &fakeConn{}
	resultOwner, _, _ := call(h.d, connOwner, "", "joinRoom", JoinRoomInput{Token: signTestToken("u1", "Alice"), RoomID: "s5"})
	peerOwner := resultOwner.(JoinRoomResult).PeerID

	connGuest := &fakeConn{}
	resultGuest, _, _ := call(h.d, connGuest, "", "joinRoom", JoinRoomInput{Token: signTestToken("u2", "Bob"), RoomID: "s5"})
	peerGuest := resultGuest.(JoinRoomResult).PeerID

	_, errCode, _ := call(h.d, connGuest, peerGuest, "endMeeting", RoomIDInput{RoomID: "s5"})
	require.Equal(t, string(CodeNotOwner), errCode)

	_, errCode2, _ := call(h.d, connOwner, peerOwner, "endMeeting", RoomIDInput{RoomID: "s5"})
	require.Empty(t, errCode2)

	_, stillExists := h.d.rooms.Get("s5")
	require.False(t, stillExists)
}

// S6: worker restart keeps the assigned port range (exercised at the pool
// level; here we assert the router registry survives a worker crash/restart
// cycle by continuing to serve the room it already created). The room's
// router is placed on worker-0, the first least-loaded worker; worker-1 is
// the one crashed and restarted.
func TestScenario_RouterSurvivesWorkerRestart(t *testing.T) {
	h := newTestHarness(testSecret)
	defer h.cancel()

	conn := &fakeConn{}
	result, errCode, _ := call(h.d, conn, "", "joinRoom", JoinRoomInput{Token: signTestToken("u1", "Alice"), RoomID: "s6"})
	require.Empty(t, errCode)
	peerID := result.(JoinRoomResult).PeerID

	w, ok := h.pool.Worker("worker-1")
	require.True(t, ok)
	w.(*fake.Worker).Kill()
	require.Eventually(t, func() bool { return h.pool.Size() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return h.pool.Size() == 2 }, 5*time.Second, 20*time.Millisecond)

	_, errCode2, _ := call(h.d, conn, peerID, "createTransport", CreateTransportInput{RoomID: "s6", Type: "send"})
	require.Empty(t, errCode2)
}

// S7: a room at capacity rejects further joins with RoomFull.
func TestScenario_CapacityGateRejectsJoinAtCapacity(t *testing.T) {
	h := newTestHarness(testSecret)
	defer h.cancel()

	r, err := h.d.rooms.Join("s7", "seed-peer")
	require.NoError(t, err)
	r.Room.MaxPeers = 1

	conn := &fakeConn{}
	_, errCode, _ := call(h.d, conn, "", "joinRoom", JoinRoomInput{Token: signTestToken("u2", "Bob"), RoomID: "s7"})
	require.Equal(t, string(CodeRoomFull), errCode)
}
