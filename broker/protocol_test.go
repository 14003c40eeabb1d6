package broker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frames(parts ...string) [][]byte {
	msg := make([][]byte, len(parts))
	for i, p := range parts {
		msg[i] = []byte(p)
	}
	return msg
}

func TestParseClientMessage(t *testing.T) {
	payload := []byte{0x00, 0xff, 'R', '1', 0x00}
	msg := [][]byte{[]byte("client-1"), {}, payload}

	message, err := parseClientMessage(msg)
	require.NoError(t, err)

	assert.Equal(t, []byte("client-1"), message.clientId)
	assert.Equal(t, payload, message.payload)
}

func TestParseClientMessageViolations(t *testing.T) {
	cases := []struct {
		name  string
		msg   [][]byte
		err   error
		frame int
	}{
		{"too few frames", frames("c", ""), ErrFrameCount, -1},
		{"too many frames", frames("c", "", "x", "y"), ErrFrameCount, -1},
		{"delimiter not empty", frames("c", "x", "payload"), ErrDelimiter, 1},
		{"empty identity", frames("", "", "payload"), ErrIdentity, 0},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := parseClientMessage(c.msg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, c.err), err.Error())

			var perr *ProtocolError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, "frontend", perr.Endpoint)
			assert.Equal(t, c.frame, perr.Frame)
			assert.Equal(t, len(c.msg), perr.Frames)
		})
	}
}

func TestClientMessageAllowsEmptyPayload(t *testing.T) {
	message, err := parseClientMessage(frames("c", "", ""))
	require.NoError(t, err)
	assert.Empty(t, message.payload)
}

func TestParseHandshake(t *testing.T) {
	cases := []struct {
		frame      string
		capability int64
	}{
		{"READY,5", 5},
		{"READY,0", 0},
		{"READY,-3", -3},
		{"READY,+12", 12},
		{"READY,9223372036854775807", 9223372036854775807},
	}

	for _, c := range cases {
		message, err := parseWorkerMessage(frames("w", "", c.frame))
		require.NoError(t, err, c.frame)
		assert.Equal(t, workerHandshake, message.kind)
		assert.Equal(t, []byte("w"), message.workerId)
		assert.Equal(t, c.capability, message.capability)
	}
}

func TestParseHandshakeViolations(t *testing.T) {
	cases := []struct {
		name string
		msg  [][]byte
		err  error
	}{
		{"no capability suffix", frames("w", "", "READY"), ErrHandshake},
		{"empty capability", frames("w", "", "READY,"), ErrCapability},
		{"not a number", frames("w", "", "READY,fast"), ErrCapability},
		{"float", frames("w", "", "READY,1.5"), ErrCapability},
		{"whitespace", frames("w", "", "READY, 5"), ErrCapability},
		{"overflow", frames("w", "", "READY,9223372036854775808"), ErrCapability},
		{"lowercase", frames("w", "", "ready,5"), ErrHandshake},
		{"delimiter", frames("w", "x", "READY,5"), ErrDelimiter},
		{"empty identity", frames("", "", "READY,5"), ErrIdentity},
		{"four frames", frames("w", "", "READY,5", ""), ErrFrameCount},
		{"two frames", frames("w", "READY,5"), ErrFrameCount},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := parseWorkerMessage(c.msg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, c.err), err.Error())

			var perr *ProtocolError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, "backend", perr.Endpoint)
		})
	}
}

func TestParseWorkerReply(t *testing.T) {
	payload := []byte{'O', 'K', 0x00, 0x01}
	msg := [][]byte{[]byte("w"), {}, []byte("client-1"), {}, []byte("7"), {}, payload}

	message, err := parseWorkerMessage(msg)
	require.NoError(t, err)

	assert.Equal(t, workerReply, message.kind)
	assert.Equal(t, []byte("w"), message.workerId)
	assert.Equal(t, int64(7), message.capability)
	assert.Equal(t, []byte("client-1"), message.message.clientId)
	assert.Equal(t, payload, message.message.payload)
}

// A reply is recognized by its shape, even if the client identity looks like a handshake.
func TestReplyFromClientNamedReady(t *testing.T) {
	message, err := parseWorkerMessage(frames("w", "", "READY,1", "", "4", "", "x"))
	require.NoError(t, err)
	assert.Equal(t, workerReply, message.kind)
	assert.Equal(t, int64(4), message.capability)
}

func TestParseWorkerReplyViolations(t *testing.T) {
	cases := []struct {
		name  string
		msg   [][]byte
		err   error
		frame int
	}{
		{"bad capability", frames("w", "", "c", "", "seven", "", "x"), ErrCapability, 4},
		{"empty capability", frames("w", "", "c", "", "", "", "x"), ErrCapability, 4},
		{"first delimiter", frames("w", "?", "c", "", "7", "", "x"), ErrDelimiter, 1},
		{"second delimiter", frames("w", "", "c", "?", "7", "", "x"), ErrDelimiter, 3},
		{"third delimiter", frames("w", "", "c", "", "7", "?", "x"), ErrDelimiter, 5},
		{"empty client", frames("w", "", "", "", "7", "", "x"), ErrIdentity, 2},
		{"five frames", frames("w", "", "c", "", "x"), ErrFrameCount, -1},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := parseWorkerMessage(c.msg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, c.err), err.Error())

			var perr *ProtocolError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, c.frame, perr.Frame)
		})
	}
}

func TestSerializeBackendMessage(t *testing.T) {
	payload := []byte{1, 2, 3}
	frames := newBackendMessage([]byte("w"), newClientMessage([]byte("c"), payload)).serializeBackendMessage()

	require.Len(t, frames, 5)
	assert.Equal(t, []byte("w"), frames[0])
	assert.Empty(t, frames[1])
	assert.Equal(t, []byte("c"), frames[2])
	assert.Empty(t, frames[3])
	assert.Equal(t, payload, frames[4])
}

// What a worker gets is exactly what the client sent, and what the client gets is exactly
// what the worker sent.
func TestEnvelopeRoundTrip(t *testing.T) {
	request := []byte{0, 1, 2, 254, 255}
	reply := []byte("\x00reply\xff")

	in, err := parseClientMessage([][]byte{[]byte("C"), {}, request})
	require.NoError(t, err)

	out := newBackendMessage([]byte("W"), in).serializeBackendMessage()
	// the worker's REQ socket strips the first two frames
	assert.Equal(t, request, out[4])
	assert.Equal(t, []byte("C"), out[2])

	back, err := parseWorkerMessage([][]byte{[]byte("W"), {}, out[2], {}, FormatCapability(9), {}, reply})
	require.NoError(t, err)

	toClient := back.message.serializeClientMessage()
	assert.Equal(t, [][]byte{[]byte("C"), {}, reply}, toClient)
}

func TestFormatHandshake(t *testing.T) {
	assert.Equal(t, "READY,42", string(FormatHandshake(42)))
	assert.Equal(t, "READY,-1", string(FormatHandshake(-1)))
	assert.Equal(t, "17", string(FormatCapability(17)))

	message, err := parseWorkerMessage([][]byte{[]byte("w"), {}, FormatHandshake(-8)})
	require.NoError(t, err)
	assert.Equal(t, int64(-8), message.capability)
}
