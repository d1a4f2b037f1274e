package signaling

import (
	"context"
	"time"

	"github.com/brightloop-video/sfu-core/internal/auth"
	"github.com/brightloop-video/sfu-core/internal/cleanup"
	"github.com/brightloop-video/sfu-core/internal/fanout"
	"github.com/brightloop-video/sfu-core/internal/logging"
	"github.com/brightloop-video/sfu-core/internal/mediaengine"
	"github.com/brightloop-video/sfu-core/internal/metrics"
	"github.com/brightloop-video/sfu-core/internal/peer"
	"github.com/brightloop-video/sfu-core/internal/room"
	"github.com/brightloop-video/sfu-core/internal/router"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TransportOptions configures every WebRTC transport this dispatcher asks
// the media engine to create (§6).
type TransportOptions struct {
	ListenIP    string
	AnnouncedIP string // may be empty, SPEC_FULL open question 4
}

// Dispatcher routes inbound envelopes to the handler table of §4.3.
type Dispatcher struct {
	peers     *peer.Registry
	rooms     *room.Registry
	routers   *router.Registry
	validator auth.Validator
	bc        *fanout.Broadcaster
	coord     *cleanup.Coordinator
	opts      TransportOptions
}

func NewDispatcher(
	peers *peer.Registry,
	rooms *room.Registry,
	routers *router.Registry,
	validator auth.Validator,
	bc *fanout.Broadcaster,
	coord *cleanup.Coordinator,
	opts TransportOptions,
) *Dispatcher {
	if opts.AnnouncedIP == "" {
		logging.Warn(nil, "ANNOUNCED_IP not set; WebRTC transports will carry no announced IP (SPEC_FULL open question 4: permitted for local/dev use)")
	}
	if opts.ListenIP == "" {
		opts.ListenIP = "0.0.0.0"
	}
	return &Dispatcher{peers: peers, rooms: rooms, routers: routers, validator: validator, bc: bc, coord: coord, opts: opts}
}

// Dispatch routes one envelope and returns the peer id this connection
// should be associated with from now on: for a successful joinRoom this is
// the newly assigned id (internal/transport must remember it for subsequent
// calls), otherwise it echoes the peerID argument unchanged. Every message
// type except joinRoom requires the peer to already exist in the registry
// (§4.3: "all require the peer to exist in the registry, else
// {error: PeerNotFound}").
func (d *Dispatcher) Dispatch(ctx context.Context, conn peer.Sender, peerID string, env Envelope) string {
	start := time.Now()
	outcome := "ok"
	defer func() {
		metrics.HandlerDuration.WithLabelValues(env.Type).Observe(time.Since(start).Seconds())
		metrics.MessagesTotal.WithLabelValues(env.Type, outcome).Inc()
	}()

	ack := func(result any, errCode string) {
		if errCode != "" {
			outcome = "error"
		}
		if env.Ack != nil {
			env.Ack(result, errCode)
		}
	}

	if env.Type == "joinRoom" {
		var in JoinRoomInput
		if err := decode(env.Payload, &in); err != nil {
			ack(nil, string(CodeEngineError))
			return peerID
		}
		result, newPeerID, err := d.handleJoinRoom(ctx, conn, in)
		if err != nil {
			ack(nil, toAckError(err))
			return peerID
		}
		ack(result, "")
		return newPeerID
	}

	p, ok := d.peers.Get(peerID)
	if !ok {
		ack(nil, string(CodePeerNotFound))
		return peerID
	}

	var (
		result any
		err    error
	)

	switch env.Type {
	case "createTransport":
		var in CreateTransportInput
		err = decode(env.Payload, &in)
		if err == nil {
			result, err = d.handleCreateTransport(ctx, p, in)
		}
	case "connectTransport":
		var in ConnectTransportInput
		err = decode(env.Payload, &in)
		if err == nil {
			result, err = d.handleConnectTransport(ctx, p, in)
		}
	case "produce":
		var in ProduceInput
		err = decode(env.Payload, &in)
		if err == nil {
			result, err = d.handleProduce(ctx, p, in)
		}
	case "consume":
		var in ConsumeInput
		err = decode(env.Payload, &in)
		if err == nil {
			result, err = d.handleConsume(ctx, p, in)
		}
	case "resumeConsumer":
		var in IDInput
		err = decode(env.Payload, &in)
		if err == nil {
			result, err = d.handleResumeConsumer(ctx, p, in)
		}
	case "pauseConsumer":
		var in IDInput
		err = decode(env.Payload, &in)
		if err == nil {
			result, err = d.handlePauseConsumer(ctx, p, in)
		}
	case "pauseProducer":
		var in IDInput
		err = decode(env.Payload, &in)
		if err == nil {
			result, err = d.handlePauseProducer(ctx, p, in)
		}
	case "resumeProducer":
		var in IDInput
		err = decode(env.Payload, &in)
		if err == nil {
			result, err = d.handleResumeProducer(ctx, p, in)
		}
	case "closeProducer":
		var in IDInput
		err = decode(env.Payload, &in)
		if err == nil {
			result, err = d.handleCloseProducer(ctx, p, in)
		}
	case "toggleHandRaise":
		result, err = d.handleToggleHandRaise(p)
	case "chatMessage":
		var in ChatMessageInput
		err = decode(env.Payload, &in)
		if err == nil {
			result, err = d.handleChatMessage(p, in)
		}
	case "getExistingProducers":
		result, err = d.handleGetExistingProducers(p)
	case "getRoomStats":
		var in RoomIDInput
		err = decode(env.Payload, &in)
		if err == nil {
			result, err = d.handleGetRoomStats(in)
		}
	case "setConsumerPreferredLayers":
		var in SetPreferredLayersInput
		err = decode(env.Payload, &in)
		if err == nil {
			result, err = d.handleSetPreferredLayers(ctx, p, in)
		}
	case "endMeeting":
		var in RoomIDInput
		err = decode(env.Payload, &in)
		if err == nil {
			result, err = d.handleEndMeeting(ctx, p, in)
		}
	case "leaveRoom":
		result, err = d.handleLeaveRoom(ctx, p)
	case "disconnect":
		d.coord.CleanupPeer(ctx, p.ID)
		return peerID
	default:
		err = newError(CodeEngineError, "unknown message type: "+env.Type)
	}

	if err != nil {
		logging.Warn(ctx, "handler returned error", zap.String("type", env.Type), zap.Error(err))
		ack(nil, toAckError(err))
		return peerID
	}
	ack(result, "")
	return peerID
}

func (d *Dispatcher) transportOptionsFor(direction mediaengine.TransportDirection) mediaengine.TransportOptions {
	return mediaengine.TransportOptions{
		Direction:   direction,
		ListenIP:    d.opts.ListenIP,
		AnnouncedIP: d.opts.AnnouncedIP,
	}
}

func newID() string { return uuid.NewString() }
