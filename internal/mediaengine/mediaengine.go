// Package mediaengine defines the capability surface the orchestration core
// requires from an underlying SFU media engine (§6). It does not implement
// RTP/DTLS/ICE itself — see the fake subpackage for an in-memory
// implementation used by every test, and a real binding (e.g. a mediasoup
// worker subprocess) would satisfy the same interfaces.
package mediaengine

import "context"

// Kind distinguishes audio and video media.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// LogLevel mirrors the media engine's fixed warn-level verbosity (§4.1).
type LogLevel string

const (
	LogLevelWarn LogLevel = "warn"
)

// LogTags enumerates the fixed set of debug tags a worker logs under (§4.1).
var LogTags = []string{"info", "ice", "dtls", "rtp", "srtp", "rtcp"}

// Codec describes one entry of the fixed codec set (§3 Router).
type Codec struct {
	Kind       Kind
	MimeType   string
	ClockRate  int
	Channels   int // 0 when not applicable (video codecs)
	Parameters map[string]string
}

// MediaCodecs is the fixed, immutable codec set every router is created with.
var MediaCodecs = []Codec{
	{Kind: KindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
	{Kind: KindVideo, MimeType: "video/VP8", ClockRate: 90000},
	{Kind: KindVideo, MimeType: "video/VP9", ClockRate: 90000},
	{Kind: KindVideo, MimeType: "video/H264", ClockRate: 90000, Parameters: map[string]string{"profile-level-id": "42e01f"}},
	{Kind: KindVideo, MimeType: "video/H264", ClockRate: 90000, Parameters: map[string]string{"profile-level-id": "4d0032"}},
}

// TransportDirection partitions a peer's transport maps (§3 Peer).
type TransportDirection string

const (
	DirectionSend TransportDirection = "send"
	DirectionRecv TransportDirection = "recv"
)

// WebRTC transport option constants (§6).
const (
	InitialAvailableOutgoingBitrate = 1_000_000
	MinimumAvailableOutgoingBitrate = 600_000
	MaxIncomingBitrateRecv          = 1_500_000
	MaxSCTPMessageSize              = 262_144
	ICEConsentTimeoutSeconds        = 20
)

// EventKind enumerates every engine-originated signal the core reacts to.
// Realizes the §9 design note "express these as a single enum of events
// delivered on a channel consumed by the dispatcher" — one level down, at
// the owning peer, so one peer's backlog can never block another's.
type EventKind int

const (
	EventWorkerDied EventKind = iota
	EventRouterClosed
	EventTransportClosed
	EventTransportDTLSFailed
	EventTransportICEDisconnected
	EventProducerClosed
	EventProducerPaused
	EventProducerResumed
	EventConsumerClosed
	EventConsumerPaused
	EventConsumerResumed
)

// Event is the payload carried on a peer's event fan-in channel.
type Event struct {
	Kind         EventKind
	WorkerPID    string
	TransportID  string
	ProducerID   string
	ConsumerID   string
}

// RTPCapabilities and RTPParameters are opaque, engine-defined blobs the core
// forwards between client and engine without interpreting; represented as
// JSON-friendly maps since their shape is owned by the media engine, not this
// package.
type RTPCapabilities map[string]any
type RTPParameters map[string]any
type DTLSParameters map[string]any
type SCTPParameters map[string]any
type ICEParameters map[string]any
type ICECandidate map[string]any
type AppData map[string]any

// Worker is a handle to a media-engine worker process (§3 Worker).
type Worker interface {
	PID() string
	PortRange() (min, max int)
	CreateRouter(ctx context.Context, codecs []Codec) (Router, error)
	// Died returns a channel that is closed exactly once, when the worker
	// process has died.
	Died() <-chan struct{}
	Close()
}

// Router is bound to exactly one Worker, scoped to one room (§3 Router).
type Router interface {
	RTPCapabilities() RTPCapabilities
	CreateWebRTCTransport(ctx context.Context, opts TransportOptions) (Transport, error)
	CanConsume(producerID string, caps RTPCapabilities) bool
	// Events fires EventTransportClosed for every transport created by this
	// router as it closes, and exactly one EventRouterClosed for itself.
	Events() <-chan Event
	Close()
}

// TransportOptions configures a WebRTC transport (§6).
type TransportOptions struct {
	Direction   TransportDirection
	ListenIP    string
	AnnouncedIP string // may be empty, SPEC_FULL §9 open question 4
}

// Transport is an encrypted bidirectional media channel (§3).
type Transport interface {
	ID() string
	ICEParameters() ICEParameters
	ICECandidates() []ICECandidate
	DTLSParameters() DTLSParameters
	SCTPParameters() SCTPParameters
	Connect(ctx context.Context, dtls DTLSParameters) error
	Produce(ctx context.Context, kind Kind, params RTPParameters, appData AppData) (Producer, error)
	Consume(ctx context.Context, producerID string, caps RTPCapabilities, paused bool) (Consumer, error)
	SetMaxIncomingBitrate(ctx context.Context, bps int) error
	Events() <-chan Event
	Close()
}

// Producer is a server-side handle for media a client is uploading (§3).
type Producer interface {
	ID() string
	Kind() Kind
	RTPParameters() RTPParameters
	AppData() AppData
	Paused() bool
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Events() <-chan Event
	Close()
}

// Consumer is a server-side handle for media forwarded from a Producer (§3).
type Consumer interface {
	ID() string
	Kind() Kind
	ProducerID() string
	RTPParameters() RTPParameters
	Paused() bool
	ProducerPaused() bool
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	SetPreferredLayers(ctx context.Context, spatial, temporal int) error
	Events() <-chan Event
	Close()
}
