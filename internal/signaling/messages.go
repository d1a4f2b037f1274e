package signaling

import (
	"encoding/json"
	"sync"

	"github.com/brightloop-video/sfu-core/internal/logging"
)

// Envelope is one inbound message: a type, a raw JSON payload, and an
// optional acknowledgment callback (§6 message channel contract).
type Envelope struct {
	Type    string
	Payload json.RawMessage
	Ack     AckFunc
}

// AckFunc is invoked by a handler exactly once, with a success payload or an
// error code. nil for fire-and-forget messages (disconnect).
type AckFunc func(result any, errCode string)

// NewAck builds a one-shot AckFunc wrapping writeFn, guarded by sync.Once so
// a second invocation is a logged no-op rather than a panic or a duplicate
// reply on the wire (§9: "acknowledgment callbacks ... a one-shot reply
// handle").
func NewAck(writeFn func(result any, errCode string)) AckFunc {
	var once sync.Once
	return func(result any, errCode string) {
		first := false
		once.Do(func() {
			first = true
			writeFn(result, errCode)
		})
		if !first {
			logging.Warn(nil, "ack invoked more than once; extra reply dropped")
		}
	}
}

// --- Handler input/output payload shapes (§4.3 handler table) ---

type JoinRoomInput struct {
	Token    string `json:"token"`
	RoomID   string `json:"roomId"`
	UserName string `json:"userName,omitempty"`
}

type JoinRoomResult struct {
	RouterRTPCapabilities any    `json:"routerRtpCapabilities"`
	Participants          []any  `json:"participants"`
	ExistingProducers     []any  `json:"existingProducers"`
	PeerID                string `json:"peerId"`
	IsOwner               bool   `json:"isOwner"`
}

type CreateTransportInput struct {
	RoomID string `json:"roomId"`
	Type   string `json:"type"` // "send" | "recv"
}

type TransportParams struct {
	ID             string `json:"id"`
	ICEParameters  any    `json:"iceParameters"`
	ICECandidates  any    `json:"iceCandidates"`
	DTLSParameters any    `json:"dtlsParameters"`
	SCTPParameters any    `json:"sctpParameters"`
}

type ConnectTransportInput struct {
	TransportID    string `json:"transportId"`
	DTLSParameters any    `json:"dtlsParameters"`
}

type ProduceInput struct {
	TransportID   string `json:"transportId"`
	Kind          string `json:"kind"`
	RTPParameters any    `json:"rtpParameters"`
	AppData       any    `json:"appData"`
}

type ConsumeInput struct {
	ProducerID      string `json:"producerId"`
	RTPCapabilities any    `json:"rtpCapabilities"`
}

type ConsumeResult struct {
	ID             string `json:"id"`
	ProducerID     string `json:"producerId"`
	Kind           string `json:"kind"`
	RTPParameters  any    `json:"rtpParameters"`
	ProducerPaused bool   `json:"producerPaused"`
}

type IDInput struct {
	ID string `json:"id"`
}

type ChatMessageInput struct {
	Message string `json:"message"`
}

type SetPreferredLayersInput struct {
	ConsumerID   string `json:"consumerId"`
	SpatialLayer int    `json:"spatialLayer"`
	TemporalLayer int   `json:"temporalLayer"`
}

type RoomIDInput struct {
	RoomID string `json:"roomId"`
}
