package signaling

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDispatch_JoinRoomRequiresValidToken(t *testing.T) {
	h := newTestHarness(testSecret)
	defer h.cancel()

	conn := &fakeConn{}
	_, errCode, _ := call(h.d, conn, "", "joinRoom", JoinRoomInput{Token: "not-a-jwt", RoomID: "room-1"})
	require.Equal(t, string(CodeUnauthenticated), errCode)
}

func TestDispatch_NonJoinMessageRequiresExistingPeer(t *testing.T) {
	h := newTestHarness(testSecret)
	defer h.cancel()

	conn := &fakeConn{}
	_, errCode, _ := call(h.d, conn, "some-unknown-peer", "toggleHandRaise", nil)
	require.Equal(t, string(CodePeerNotFound), errCode)
}

func TestDispatch_UnknownMessageTypeIsEngineError(t *testing.T) {
	h := newTestHarness(testSecret)
	defer h.cancel()

	conn := &fakeConn{}
	token := signTestToken("user-1", "Alice")
	result, errCode, peerID := call(h.d, conn, "", "joinRoom", JoinRoomInput{Token: token, RoomID: "room-1"})
	require.Empty(t, errCode)
	jr := result.(JoinRoomResult)
	require.Equal(t, peerID, jr.PeerID)

	_, errCode, _ = call(h.d, conn, peerID, "notARealMessageType", nil)
	require.Equal(t, string(CodeEngineError), errCode)
}

func TestDispatch_JoinRoomAssignsOwnerToFirstPeerOnly(t *testing.T) {
	h := newTestHarness(testSecret)
	defer h.cancel()

	conn1 := &fakeConn{}
	result1, _, _ := call(h.d, conn1, "", "joinRoom", JoinRoomInput{Token: signTestToken("u1", "Alice"), RoomID: "room-owner"})
	jr1 := result1.(JoinRoomResult)
	require.True(t, jr1.IsOwner)

	conn2 := &fakeConn{}
	result2, _, _ := call(h.d, conn2, "", "joinRoom", JoinRoomInput{Token: signTestToken("u2", "Bob"), RoomID: "room-owner"})
	jr2 := result2.(JoinRoomResult)
	require.False(t, jr2.IsOwner)
	require.Len(t, jr2.Participants, 1)
}

func TestDispatch_CreateTransportRequiresKnownDirection(t *testing.T) {
	h := newTestHarness(testSecret)
	defer h.cancel()

	conn := &fakeConn{}
	result, _, _ := call(h.d, conn, "", "joinRoom", JoinRoomInput{Token: signTestToken("u1", "Alice"), RoomID: "room-1"})
	peerID := result.(JoinRoomResult).PeerID

	_, errCode, _ := call(h.d, conn, peerID, "createTransport", CreateTransportInput{RoomID: "room-1", Type: "sideways"})
	require.Equal(t, string(CodeEngineError), errCode)

	result2, errCode2, _ := call(h.d, conn, peerID, "createTransport", CreateTransportInput{RoomID: "room-1", Type: "send"})
	require.Empty(t, errCode2)
	params := result2.(TransportParams)
	require.NotEmpty(t, params.ID)
}

func TestDispatch_ConsumeWithoutRecvTransportFails(t *testing.T) {
	h := newTestHarness(testSecret)
	defer h.cancel()

	connA := &fakeConn{}
	resultA, _, _ := call(h.d, connA, "", "joinRoom", JoinRoomInput{Token: signTestToken("uA", "Alice"), RoomID: "room-x"})
	peerA := resultA.(JoinRoomResult).PeerID
	sendResult, _, _ := call(h.d, connA, peerA, "createTransport", CreateTransportInput{RoomID: "room-x", Type: "send"})
	sendParams := sendResult.(TransportParams)
	produceResult, errCode, _ := call(h.d, connA, peerA, "produce", ProduceInput{TransportID: sendParams.ID, Kind: "audio"})
	require.Empty(t, errCode)
	producerID := produceResult.(map[string]string)["id"]

	connB := &fakeConn{}
	resultB, _, _ := call(h.d, connB, "", "joinRoom", JoinRoomInput{Token: signTestToken("uB", "Bob"), RoomID: "room-x"})
	peerB := resultB.(JoinRoomResult).PeerID

	_, errCode, _ = call(h.d, connB, peerB, "consume", ConsumeInput{ProducerID: producerID})
	require.Equal(t, string(CodeNoRecvTransport), errCode)
}

func TestDispatch_EndMeetingRequiresOwner(t *testing.T) {
	h := newTestHarness(testSecret)
	defer h.cancel()

	connOwner := &fakeConn{}
	resultOwner, _, _ := call(h.d, connOwner, "", "joinRoom", JoinRoomInput{Token: signTestToken("u1", "Alice"), RoomID: "room-end"})
	peerOwner := resultOwner.(JoinRoomResult).PeerID

	connGuest := &fakeConn{}
	resultGuest, _, _ := call(h.d, connGuest, "", "joinRoom", JoinRoomInput{Token: signTestToken("u2", "Bob"), RoomID: "room-end"})
	peerGuest := resultGuest.(JoinRoomResult).PeerID

	_, errCode, _ := call(h.d, connGuest, peerGuest, "endMeeting", RoomIDInput{RoomID: "room-end"})
	require.Equal(t, string(CodeNotOwner), errCode)

	_, errCode2, _ := call(h.d, connOwner, peerOwner, "endMeeting", RoomIDInput{RoomID: "room-end"})
	require.Empty(t, errCode2)
}
