package broker

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// Support types for dealing with ZeroMQ multi-frame messages.
// This is supposed to put an end to endless inconsistencies and bugs when dealing with the framing of
// frontend and backend messages. Nothing in here looks at payloads or identities; they are only relayed.

// Prefix of the third frame of a worker's handshake: "READY," followed by the decimal capability.
const READY_PREFIX = "READY,"

const (
	clientRequestFrames = 3 // [client][""][payload]
	handshakeFrames     = 3 // [worker][""][READY,k]
	workerReplyFrames   = 7 // [worker][""][client][""][k][""][payload]
)

var (
	ErrFrameCount = errors.New("unexpected number of frames")
	ErrDelimiter  = errors.New("delimiter frame is not empty")
	ErrIdentity   = errors.New("empty identity frame")
	ErrHandshake  = errors.New("malformed READY handshake")
	ErrCapability = errors.New("capability is not a decimal integer")
)

// A ProtocolError describes a message that doesn't match any of the shapes the broker understands.
// Such a message is dropped, it never stops the broker.
type ProtocolError struct {
	// "frontend" or "backend"
	Endpoint string
	// Number of frames in the offending message
	Frames int
	// Index of the offending frame, -1 if the message as a whole is wrong
	Frame int
	Err   error
}

func (e *ProtocolError) Error() string {
	if e.Frame < 0 {
		return fmt.Sprintf("%s: %d-frame message: %s", e.Endpoint, e.Frames, e.Err.Error())
	}
	return fmt.Sprintf("%s: frame %d of %d: %s", e.Endpoint, e.Frame, e.Frames, e.Err.Error())
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func protocolError(endpoint string, msg [][]byte, frame int, err error) *ProtocolError {
	return &ProtocolError{Endpoint: endpoint, Frames: len(msg), Frame: frame, Err: err}
}

// A request from a client, as received on the frontend and forwarded to the backend.
type clientMessage struct {
	clientId []byte
	payload  []byte
}

func newClientMessage(clientId, payload []byte) clientMessage {
	return clientMessage{clientId: clientId, payload: payload}
}

// [client identity, "", payload]
func parseClientMessage(msg [][]byte) (clientMessage, error) {
	if len(msg) != clientRequestFrames {
		return clientMessage{}, protocolError("frontend", msg, -1, ErrFrameCount)
	}
	if len(msg[0]) == 0 {
		return clientMessage{}, protocolError("frontend", msg, 0, ErrIdentity)
	}
	if len(msg[1]) != 0 {
		return clientMessage{}, protocolError("frontend", msg, 1, ErrDelimiter)
	}
	return clientMessage{clientId: msg[0], payload: msg[2]}, nil
}

// Message to the frontend: [client identity, "", payload]
func (msg clientMessage) serializeClientMessage() [][]byte {
	frames := make([][]byte, 3)
	frames[0] = msg.clientId
	frames[1] = []byte{}
	frames[2] = msg.payload
	return frames
}

// An assignment sent to a worker: [worker identity, "", client identity, "", payload]
type backendMessage struct {
	workerId []byte
	message  clientMessage
}

func newBackendMessage(workerId []byte, msg clientMessage) backendMessage {
	return backendMessage{workerId: workerId, message: msg}
}

func (msg backendMessage) serializeBackendMessage() [][]byte {
	frames := make([][]byte, 2, 5)
	frames[0] = msg.workerId
	frames[1] = []byte{}
	return append(frames, msg.message.serializeClientMessage()...)
}

type workerMessageKind int

const (
	workerHandshake workerMessageKind = iota
	workerReply
)

func (k workerMessageKind) String() string {
	switch k {
	case workerHandshake:
		return "READY"
	case workerReply:
		return "reply"
	default:
		return ""
	}
}

// Anything a worker sends to the backend. For a handshake, message is empty.
type workerMessage struct {
	kind       workerMessageKind
	workerId   []byte
	capability int64
	message    clientMessage
}

// Parses either a handshake ([worker, "", "READY,k"]) or a reply
// ([worker, "", client, "", k, "", payload]); the number of frames decides which one it is.
func parseWorkerMessage(msg [][]byte) (workerMessage, error) {
	switch len(msg) {
	case handshakeFrames:
		return parseHandshake(msg)
	case workerReplyFrames:
		return parseWorkerReply(msg)
	default:
		return workerMessage{}, protocolError("backend", msg, -1, ErrFrameCount)
	}
}

func parseHandshake(msg [][]byte) (workerMessage, error) {
	if len(msg[0]) == 0 {
		return workerMessage{}, protocolError("backend", msg, 0, ErrIdentity)
	}
	if len(msg[1]) != 0 {
		return workerMessage{}, protocolError("backend", msg, 1, ErrDelimiter)
	}
	if !bytes.HasPrefix(msg[2], []byte(READY_PREFIX)) {
		return workerMessage{}, protocolError("backend", msg, 2, ErrHandshake)
	}

	capability, err := ParseCapability(msg[2][len(READY_PREFIX):])

	if err != nil {
		return workerMessage{}, protocolError("backend", msg, 2, err)
	}

	return workerMessage{kind: workerHandshake, workerId: msg[0], capability: capability}, nil
}

func parseWorkerReply(msg [][]byte) (workerMessage, error) {
	for _, i := range []int{0, 2} {
		if len(msg[i]) == 0 {
			return workerMessage{}, protocolError("backend", msg, i, ErrIdentity)
		}
	}
	for _, i := range []int{1, 3, 5} {
		if len(msg[i]) != 0 {
			return workerMessage{}, protocolError("backend", msg, i, ErrDelimiter)
		}
	}

	capability, err := ParseCapability(msg[4])

	if err != nil {
		return workerMessage{}, protocolError("backend", msg, 4, err)
	}

	return workerMessage{
		kind:       workerReply,
		workerId:   msg[0],
		capability: capability,
		message:    newClientMessage(msg[2], msg[6]),
	}, nil
}

// ParseCapability parses a capability frame: a base-10, optionally signed 64 bit integer
// without surrounding whitespace.
func ParseCapability(frame []byte) (int64, error) {
	k, err := strconv.ParseInt(string(frame), 10, 64)

	if err != nil {
		return 0, ErrCapability
	}
	return k, nil
}

// FormatCapability returns the frame a worker sends as capability in its replies.
func FormatCapability(capability int64) []byte {
	return strconv.AppendInt(nil, capability, 10)
}

// FormatHandshake returns the frame a worker sends to announce itself: "READY,<capability>".
func FormatHandshake(capability int64) []byte {
	return strconv.AppendInt([]byte(READY_PREFIX), capability, 10)
}
