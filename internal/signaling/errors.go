// Package signaling hosts the message dispatcher and the full handler table
// of §4.3, and the error taxonomy of §7.
package signaling

// Code is the §7 error taxonomy.
type Code string

const (
	CodeUnauthenticated    Code = "Unauthenticated"
	CodeRoomFull           Code = "RoomFull"
	CodePeerNotFound       Code = "PeerNotFound"
	CodeTransportNotFound  Code = "TransportNotFound"
	CodeProducerNotFound   Code = "ProducerNotFound"
	CodeConsumerNotFound   Code = "ConsumerNotFound"
	CodeNoRecvTransport    Code = "NoRecvTransport"
	CodeCodecMismatch      Code = "CodecMismatch"
	CodeRouterNotFound     Code = "RouterNotFound"
	CodeNotOwner           Code = "NotOwner"
	CodeEngineError        Code = "EngineError"
	CodeNoWorkersAvailable Code = "NoWorkersAvailable"
)

// Error is a typed, message-bearing error, used to build explicit
// {error: "..."} responses rather than scattering bare errors.New calls.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// toAckError converts any error into the string an Ack response carries:
// a *Error yields its taxonomy code, anything else is EngineError.
func toAckError(err error) string {
	if err == nil {
		return ""
	}
	if se, ok := err.(*Error); ok {
		return string(se.Code)
	}
	return string(CodeEngineError)
}
