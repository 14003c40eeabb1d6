package worker

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/dermesser/lbbroker/broker"

	"github.com/google/uuid"
	zmq "github.com/pebbe/zmq4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A bare ROUTER standing in for the broker backend.
func newBackend(t *testing.T) (*zmq.Socket, string) {
	t.Helper()

	sock, err := zmq.NewSocket(zmq.ROUTER)
	require.NoError(t, err)
	require.NoError(t, sock.SetLinger(0))
	require.NoError(t, sock.SetRcvtimeo(2*time.Second))

	url := "inproc://lbbroker-worker-test-" + uuid.NewString()
	require.NoError(t, sock.Bind(url))

	t.Cleanup(func() { sock.Close() })
	return sock, url
}

func startWorker(t *testing.T, w *Worker, handler Handler) func() error {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, handler) }()

	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("worker didn't stop")
			return nil
		}
	}
}

func recv(t *testing.T, sock *zmq.Socket) []string {
	t.Helper()
	msg, err := sock.RecvMessage(0)
	require.NoError(t, err)
	return msg
}

func upper(request []byte) []byte {
	return bytes.ToUpper(request)
}

func TestWorkerHandshakeAndReply(t *testing.T) {
	backend, url := newBackend(t)

	w, err := NewWorker(url, 5)
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.SetIdentity("W"))
	w.SetPollInterval(10 * time.Millisecond)

	stop := startWorker(t, w, upper)

	assert.Equal(t, []string{"W", "", "READY,5"}, recv(t, backend))

	_, err = backend.SendMessage("W", "", "C", "", "ping")
	require.NoError(t, err)
	assert.Equal(t, []string{"W", "", "C", "", "5", "", "PING"}, recv(t, backend))

	// the next reply carries the new capability
	w.SetCapability(-2)
	_, err = backend.SendMessage("W", "", "D", "", "pong")
	require.NoError(t, err)
	assert.Equal(t, []string{"W", "", "D", "", "-2", "", "PONG"}, recv(t, backend))

	assert.NoError(t, stop())
	assert.Equal(t, uint64(2), w.Handled())
}

func TestWorkerNilReplyIsEmptyPayload(t *testing.T) {
	backend, url := newBackend(t)

	w, err := NewWorker(url, 1)
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.SetIdentity("W"))

	stop := startWorker(t, w, func([]byte) []byte { return nil })
	recv(t, backend)

	_, err = backend.SendMessage("W", "", "C", "", "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"W", "", "C", "", "1", "", ""}, recv(t, backend))

	assert.NoError(t, stop())
}

func TestWorkerAnnouncesAgainOnMalformedAssignment(t *testing.T) {
	backend, url := newBackend(t)

	w, err := NewWorker(url, 3)
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.SetIdentity("W"))

	called := make(chan struct{}, 1)
	stop := startWorker(t, w, func(r []byte) []byte {
		called <- struct{}{}
		return r
	})
	recv(t, backend)

	_, err = backend.SendMessage("W", "", "C", "not empty", "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"W", "", "READY,3"}, recv(t, backend))

	assert.NoError(t, stop())
	assert.Empty(t, called)
	assert.Equal(t, uint64(0), w.Handled())
}

func TestWorkerIdentity(t *testing.T) {
	_, url := newBackend(t)

	w, err := NewWorker(url, 1)
	require.NoError(t, err)
	defer w.Close()

	assert.Contains(t, w.Identity(), "worker-")
	assert.Error(t, w.SetIdentity(""))

	require.NoError(t, w.Connect())
	assert.ErrorIs(t, w.SetIdentity("late"), ErrConnected)
	assert.ErrorIs(t, w.Connect(), ErrConnected)
}

func TestParseAssignment(t *testing.T) {
	asg, err := parseAssignment([][]byte{[]byte("C"), {}, []byte("R")})
	require.NoError(t, err)
	assert.Equal(t, []byte("C"), asg.clientId)
	assert.Equal(t, []byte("R"), asg.request)

	_, err = parseAssignment([][]byte{[]byte("C"), []byte("R")})
	assert.ErrorIs(t, err, broker.ErrFrameCount)
	_, err = parseAssignment([][]byte{{}, {}, []byte("R")})
	assert.ErrorIs(t, err, broker.ErrIdentity)
	_, err = parseAssignment([][]byte{[]byte("C"), []byte("?"), []byte("R")})
	assert.ErrorIs(t, err, broker.ErrDelimiter)
}

// A worker behind a real broker answers a client.
func TestWorkerBehindBroker(t *testing.T) {
	id := uuid.NewString()
	b, err := broker.NewBroker("inproc://lbbroker-frontend-"+id, "inproc://lbbroker-backend-"+id)
	require.NoError(t, err)
	defer b.Close()
	b.SetPollInterval(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	brokerDone := make(chan error, 1)
	go func() { brokerDone <- b.Run(ctx) }()

	w, err := NewWorker(b.BackendEndpoint(), 4)
	require.NoError(t, err)
	defer w.Close()
	stop := startWorker(t, w, upper)

	client, err := zmq.NewSocket(zmq.REQ)
	require.NoError(t, err)
	defer client.Close()
	client.SetLinger(0)
	client.SetRcvtimeo(2 * time.Second)
	require.NoError(t, client.Connect(b.FrontendEndpoint()))

	_, err = client.SendBytes([]byte("hello"), 0)
	require.NoError(t, err)
	reply, err := client.RecvBytes(0)
	require.NoError(t, err)
	assert.Equal(t, []byte("HELLO"), reply)

	assert.NoError(t, stop())
	cancel()
	assert.NoError(t, <-brokerDone)

	assert.Equal(t, uint64(1), b.Stats().Replies)
}
