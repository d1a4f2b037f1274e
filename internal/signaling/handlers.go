package signaling

import (
	"context"
	"time"

	"github.com/brightloop-video/sfu-core/internal/logging"
	"github.com/brightloop-video/sfu-core/internal/mediaengine"
	"github.com/brightloop-video/sfu-core/internal/peer"
	"github.com/brightloop-video/sfu-core/internal/room"
	"github.com/brightloop-video/sfu-core/internal/router"
	"go.uber.org/zap"
)

func (d *Dispatcher) handleJoinRoom(ctx context.Context, conn peer.Sender, in JoinRoomInput) (JoinRoomResult, string, error) {
	claims, err := d.validator.ValidateToken(in.Token)
	if err != nil {
		return JoinRoomResult{}, "", newError(CodeUnauthenticated, "invalid token")
	}

	peerID := newID()
	joinResult, err := d.rooms.Join(in.RoomID, peerID)
	if err != nil {
		if _, ok := err.(*room.ErrRoomFull); ok {
			return JoinRoomResult{}, "", newError(CodeRoomFull, "room is at capacity")
		}
		return JoinRoomResult{}, "", newError(CodeEngineError, err.Error())
	}

	rt, err := d.routers.GetOrCreate(ctx, in.RoomID)
	if err != nil {
		d.rooms.Leave(in.RoomID, peerID)
		return JoinRoomResult{}, "", newError(CodeEngineError, err.Error())
	}

	userName := in.UserName
	if userName == "" {
		userName = claims.UserName
	}

	p := peer.New(peerID, claims.UserID, userName, in.RoomID, conn)
	p.SetOwner(joinResult.IsOwner)
	d.peers.Add(p)
	d.routers.SetPeerCount(in.RoomID, joinResult.Room.PeerCount())

	participants := make([]any, 0)
	for _, id := range joinResult.Room.PeerIDs() {
		if id == peerID {
			continue
		}
		if other, ok := d.peers.Get(id); ok {
			participants = append(participants, other.View())
		}
	}

	existingProducers := make([]any, 0)
	for _, info := range d.routers.OthersOf(in.RoomID, peerID) {
		existingProducers = append(existingProducers, producerInfoView(info))
	}

	d.bc.ToRoomExceptSender(in.RoomID, peerID, "participantJoined", p.View())

	return JoinRoomResult{
		RouterRTPCapabilities: rt.RTPCapabilities(),
		Participants:          participants,
		ExistingProducers:     existingProducers,
		PeerID:                peerID,
		IsOwner:               joinResult.IsOwner,
	}, peerID, nil
}

func producerInfoView(info router.ProducerInfo) map[string]any {
	return map[string]any{
		"producerId": info.ProducerID,
		"peerId":     info.PeerID,
		"kind":       info.Kind,
		"userName":   info.UserName,
	}
}

func (d *Dispatcher) handleCreateTransport(ctx context.Context, p *peer.Peer, in CreateTransportInput) (TransportParams, error) {
	rt, ok := d.routers.Get(p.RoomID)
	if !ok {
		return TransportParams{}, newError(CodeRouterNotFound, "router not found for room")
	}

	var direction mediaengine.TransportDirection
	switch in.Type {
	case "send":
		direction = mediaengine.DirectionSend
	case "recv":
		direction = mediaengine.DirectionRecv
	default:
		return TransportParams{}, newError(CodeEngineError, "invalid transport type: "+in.Type)
	}

	t, err := rt.CreateWebRTCTransport(ctx, d.transportOptionsFor(direction))
	if err != nil {
		return TransportParams{}, newError(CodeEngineError, err.Error())
	}

	if direction == mediaengine.DirectionSend {
		p.AddSendTransport(t)
	} else {
		p.AddRecvTransport(t)
		if err := t.SetMaxIncomingBitrate(ctx, mediaengine.MaxIncomingBitrateRecv); err != nil {
			// Non-fatal per §6: "warn on failure".
			logging.Warn(ctx, "failed to set max incoming bitrate on recv transport",
				zap.String("transport_id", t.ID()), zap.Error(err))
		}
	}
	d.routers.NoteTransportCreated(p.RoomID)
	d.wireTransportHooks(p, t)

	return TransportParams{
		ID:             t.ID(),
		ICEParameters:  t.ICEParameters(),
		ICECandidates:  t.ICECandidates(),
		DTLSParameters: t.DTLSParameters(),
		SCTPParameters: t.SCTPParameters(),
	}, nil
}

func (d *Dispatcher) handleConnectTransport(ctx context.Context, p *peer.Peer, in ConnectTransportInput) (map[string]bool, error) {
	t, ok := p.FindTransport(in.TransportID)
	if !ok {
		return nil, newError(CodeTransportNotFound, "transport not found")
	}
	dtls, _ := in.DTLSParameters.(map[string]any)
	if err := t.Connect(ctx, dtls); err != nil {
		return nil, newError(CodeEngineError, err.Error())
	}
	return map[string]bool{"connected": true}, nil
}

func (d *Dispatcher) handleProduce(ctx context.Context, p *peer.Peer, in ProduceInput) (map[string]string, error) {
	t, ok := p.SendTransport(in.TransportID)
	if !ok {
		return nil, newError(CodeTransportNotFound, "send transport not found")
	}

	kind := mediaengine.Kind(in.Kind)
	appData, _ := in.AppData.(map[string]any)
	if appData == nil {
		appData = make(map[string]any)
	}
	appData["peerId"] = p.ID

	rtpParams, _ := in.RTPParameters.(map[string]any)

	prod, err := t.Produce(ctx, kind, rtpParams, appData)
	if err != nil {
		return nil, newError(CodeEngineError, err.Error())
	}

	switch kind {
	case mediaengine.KindAudio:
		p.SetAudioEnabled(true)
	case mediaengine.KindVideo:
		if src, _ := appData["source"].(string); src == "screen" {
			p.SetScreenSharing(true)
		} else {
			p.SetVideoEnabled(true)
		}
	}

	p.AddProducer(prod)
	d.routers.Register(p.RoomID, prod.ID(), p.ID, kind, p.DisplayName)
	d.wireProducerHooks(p, p.RoomID, prod)

	d.bc.ToRoomExceptSender(p.RoomID, p.ID, "newProducer", map[string]any{
		"producerId": prod.ID(),
		"peerId":     p.ID,
		"kind":       kind,
		"userName":   p.DisplayName,
	})

	return map[string]string{"id": prod.ID()}, nil
}

func (d *Dispatcher) handleConsume(ctx context.Context, p *peer.Peer, in ConsumeInput) (ConsumeResult, error) {
	rt, ok := d.routers.Get(p.RoomID)
	if !ok {
		return ConsumeResult{}, newError(CodeRouterNotFound, "router not found for room")
	}

	caps, _ := in.RTPCapabilities.(map[string]any)
	if !rt.CanConsume(in.ProducerID, caps) {
		return ConsumeResult{}, newError(CodeCodecMismatch, "incompatible rtp capabilities")
	}

	recvT, ok := p.LastRecvTransport()
	if !ok {
		return ConsumeResult{}, newError(CodeNoRecvTransport, "no recv transport available")
	}

	// Consumers start paused: media must not flow before the client has
	// bound the remote track to its rendering surface.
	c, err := recvT.Consume(ctx, in.ProducerID, caps, true)
	if err != nil {
		return ConsumeResult{}, newError(CodeEngineError, err.Error())
	}

	p.AddConsumer(c)
	d.wireConsumerHooks(p, c)

	return ConsumeResult{
		ID:             c.ID(),
		ProducerID:     c.ProducerID(),
		Kind:           string(c.Kind()),
		RTPParameters:  c.RTPParameters(),
		ProducerPaused: c.ProducerPaused(),
	}, nil
}

func (d *Dispatcher) handleResumeConsumer(ctx context.Context, p *peer.Peer, in IDInput) (map[string]bool, error) {
	c, ok := p.Consumer(in.ID)
	if !ok {
		return nil, newError(CodeConsumerNotFound, "consumer not found")
	}
	if err := c.Resume(ctx); err != nil {
		return nil, newError(CodeEngineError, err.Error())
	}
	return map[string]bool{"resumed": true}, nil
}

func (d *Dispatcher) handlePauseConsumer(ctx context.Context, p *peer.Peer, in IDInput) (map[string]bool, error) {
	c, ok := p.Consumer(in.ID)
	if !ok {
		return nil, newError(CodeConsumerNotFound, "consumer not found")
	}
	if err := c.Pause(ctx); err != nil {
		return nil, newError(CodeEngineError, err.Error())
	}
	return map[string]bool{"paused": true}, nil
}

func (d *Dispatcher) handlePauseProducer(ctx context.Context, p *peer.Peer, in IDInput) (map[string]bool, error) {
	prod, ok := p.Producer(in.ID)
	if !ok {
		return nil, newError(CodeProducerNotFound, "producer not found")
	}
	if err := prod.Pause(ctx); err != nil {
		return nil, newError(CodeEngineError, err.Error())
	}
	setFlagForKind(p, prod.Kind(), false)
	d.bc.ToRoomExceptSender(p.RoomID, p.ID, "producerPaused", map[string]string{"producerId": prod.ID()})
	return map[string]bool{"paused": true}, nil
}

func (d *Dispatcher) handleResumeProducer(ctx context.Context, p *peer.Peer, in IDInput) (map[string]bool, error) {
	prod, ok := p.Producer(in.ID)
	if !ok {
		return nil, newError(CodeProducerNotFound, "producer not found")
	}
	if err := prod.Resume(ctx); err != nil {
		return nil, newError(CodeEngineError, err.Error())
	}
	setFlagForKind(p, prod.Kind(), true)
	d.bc.ToRoomExceptSender(p.RoomID, p.ID, "producerResumed", map[string]string{"producerId": prod.ID()})
	return map[string]bool{"resumed": true}, nil
}

func (d *Dispatcher) handleCloseProducer(ctx context.Context, p *peer.Peer, in IDInput) (map[string]bool, error) {
	prod, ok := p.Producer(in.ID)
	if !ok {
		return nil, newError(CodeProducerNotFound, "producer not found")
	}
	if src, _ := prod.AppData()["source"].(string); prod.Kind() == mediaengine.KindVideo && src == "screen" {
		p.SetScreenSharing(false)
	} else {
		setFlagForKind(p, prod.Kind(), false)
	}
	prod.Close() // the wired close hook unregisters, drops, and broadcasts producerClosed
	return map[string]bool{"closed": true}, nil
}

func setFlagForKind(p *peer.Peer, kind mediaengine.Kind, on bool) {
	switch kind {
	case mediaengine.KindAudio:
		p.SetAudioEnabled(on)
	case mediaengine.KindVideo:
		p.SetVideoEnabled(on)
	}
}

func (d *Dispatcher) handleToggleHandRaise(p *peer.Peer) (map[string]bool, error) {
	v := p.ToggleHandRaise()
	d.bc.ToRoomExceptSender(p.RoomID, p.ID, "handRaiseChanged", map[string]bool{"isHandRaised": v})
	return map[string]bool{"isHandRaised": v}, nil
}

func (d *Dispatcher) handleChatMessage(p *peer.Peer, in ChatMessageInput) (map[string]bool, error) {
	now := time.Now().UTC()
	msg := map[string]any{
		"id":        now.UnixMilli(),
		"peerId":    p.ID,
		"userName":  p.DisplayName,
		"message":   in.Message,
		"timestamp": now,
	}
	d.bc.ToRoomIncludingSender(p.RoomID, "newChatMessage", msg)
	return map[string]bool{"sent": true}, nil
}

func (d *Dispatcher) handleGetExistingProducers(p *peer.Peer) (map[string]any, error) {
	infos := d.routers.OthersOf(p.RoomID, p.ID)
	out := make([]any, 0, len(infos))
	for _, info := range infos {
		out = append(out, producerInfoView(info))
	}
	return map[string]any{"producers": out}, nil
}

func (d *Dispatcher) handleGetRoomStats(in RoomIDInput) (map[string]any, error) {
	stats, ok := d.routers.Stats(in.RoomID)
	if !ok {
		return nil, newError(CodeRouterNotFound, "room not found")
	}
	r, ok := d.rooms.Get(in.RoomID)
	if !ok {
		return nil, newError(CodeRouterNotFound, "room not found")
	}
	participants := make([]any, 0)
	for _, id := range r.PeerIDs() {
		if other, ok := d.peers.Get(id); ok {
			participants = append(participants, other.View())
		}
	}
	return map[string]any{"stats": stats, "participants": participants}, nil
}

func (d *Dispatcher) handleSetPreferredLayers(ctx context.Context, p *peer.Peer, in SetPreferredLayersInput) (map[string]bool, error) {
	c, ok := p.Consumer(in.ConsumerID)
	if !ok {
		return nil, newError(CodeConsumerNotFound, "consumer not found")
	}
	if err := c.SetPreferredLayers(ctx, in.SpatialLayer, in.TemporalLayer); err != nil {
		return nil, newError(CodeEngineError, err.Error())
	}
	return map[string]bool{"success": true}, nil
}

func (d *Dispatcher) handleEndMeeting(ctx context.Context, p *peer.Peer, in RoomIDInput) (map[string]bool, error) {
	if !d.rooms.IsOwner(in.RoomID, p.ID) {
		return nil, newError(CodeNotOwner, "only the room owner may end the meeting")
	}
	r, ok := d.rooms.Get(in.RoomID)
	if !ok {
		return nil, newError(CodeRouterNotFound, "room not found")
	}

	memberIDs := r.PeerIDs()
	d.bc.ToRoomExceptSender(in.RoomID, p.ID, "meetingEnded", map[string]string{"reason": "owner ended the meeting"})

	for _, id := range memberIDs {
		d.coord.CleanupPeer(ctx, id)
	}
	return map[string]bool{"ended": true}, nil
}

func (d *Dispatcher) handleLeaveRoom(ctx context.Context, p *peer.Peer) (map[string]bool, error) {
	d.coord.CleanupPeer(ctx, p.ID)
	return map[string]bool{"left": true}, nil
}
