package signaling

import (
	"encoding/json"

	"github.com/brightloop-video/sfu-core/internal/logging"
	"github.com/brightloop-video/sfu-core/internal/mediaengine"
	"github.com/brightloop-video/sfu-core/internal/peer"
	"go.uber.org/zap"
)

// notifyPeer sends a single-recipient event over the peer's own connection,
// for engine signals that only concern one peer (consumer close/pause/resume),
// as distinct from fanout.Broadcaster's room-wide broadcasts.
func (d *Dispatcher) notifyPeer(p *peer.Peer, event string, payload any) {
	if p.Conn == nil {
		return
	}
	data, err := json.Marshal(struct {
		Type    string `json:"type"`
		Payload any    `json:"payload"`
	}{Type: event, Payload: payload})
	if err != nil {
		logging.Error(nil, "failed to encode peer notification", zap.String("event", event), zap.Error(err))
		return
	}
	p.Conn.Send(data)
}

// wireTransportHooks installs the close/DTLS/ICE hooks §4.3's createTransport
// row requires: close drops the transport from the peer's maps; DTLS failure
// closes the transport; ICE disconnects are logged only.
func (d *Dispatcher) wireTransportHooks(p *peer.Peer, t mediaengine.Transport) {
	go func() {
		for ev := range t.Events() {
			switch ev.Kind {
			case mediaengine.EventTransportClosed:
				p.RemoveTransport(t.ID())
				return
			case mediaengine.EventTransportDTLSFailed:
				logging.Warn(nil, "transport DTLS failed, closing", zap.String("transport_id", t.ID()))
				t.Close()
			case mediaengine.EventTransportICEDisconnected:
				logging.Warn(nil, "transport ICE disconnected", zap.String("transport_id", t.ID()))
			}
		}
	}()
}

// wireProducerHooks installs the transportclose/close hooks §4.3's produce
// row requires: on close, unregister from the room producer index, drop from
// the peer's map, and broadcast producerClosed to the room.
func (d *Dispatcher) wireProducerHooks(p *peer.Peer, roomID string, prod mediaengine.Producer) {
	go func() {
		for ev := range prod.Events() {
			switch ev.Kind {
			case mediaengine.EventProducerClosed:
				d.routers.Unregister(roomID, prod.ID())
				p.RemoveProducer(prod.ID())
				d.bc.ToRoomExceptSender(roomID, p.ID, "producerClosed", map[string]string{"producerId": prod.ID()})
				return
			}
		}
	}()
}

// wireConsumerHooks installs the transportclose/producerclose/pause/resume
// hooks §4.3's consume row requires, all surfaced only to the owning peer.
func (d *Dispatcher) wireConsumerHooks(p *peer.Peer, c mediaengine.Consumer) {
	go func() {
		for ev := range c.Events() {
			switch ev.Kind {
			case mediaengine.EventConsumerClosed:
				p.RemoveConsumer(c.ID())
				d.notifyPeer(p, "consumerClosed", map[string]string{"id": c.ID()})
				return
			case mediaengine.EventConsumerPaused:
				d.notifyPeer(p, "consumerPaused", map[string]string{"id": c.ID()})
			case mediaengine.EventConsumerResumed:
				d.notifyPeer(p, "consumerResumed", map[string]string{"id": c.ID()})
			}
		}
	}()
}
