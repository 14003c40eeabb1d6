package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dermesser/lbbroker/log"

	"github.com/google/uuid"
	zmq "github.com/pebbe/zmq4"
)

const (
	DEFAULT_POLL_INTERVAL = 250 * time.Millisecond
	DEFAULT_SEND_TIMEOUT  = 5 * time.Second
)

var (
	ErrConnected      = errors.New("worker is already connected")
	ErrAlreadyRunning = errors.New("worker is already running")
)

// Computes the reply for one request. A nil reply is sent as empty payload.
type Handler func(request []byte) []byte

/*
A worker connected to the backend of a broker. It announces itself with its capability score,
then answers one request at a time; with every reply it reports its current capability, which
may be changed at any time with SetCapability().

A Worker uses a single REQ socket, and must not be shared between goroutines (except for
SetCapability(), Capability() and Handled()).
*/
type Worker struct {
	sock        *zmq.Socket
	backend_url string
	identity    string
	connected   bool

	capability    atomic.Int64
	poll_interval time.Duration

	running atomic.Bool
	handled atomic.Uint64
}

/*
Create a worker for the broker backend at backendURL. It has a random identity, which can
be changed with SetIdentity() before the worker is connected (explicitly with Connect(), or
implicitly by Run()).
*/
func NewWorker(backendURL string, capability int64) (*Worker, error) {
	w := new(Worker)
	w.backend_url = backendURL
	w.poll_interval = DEFAULT_POLL_INTERVAL
	w.capability.Store(capability)

	var err error
	// Yes, we're using a REQ socket for the worker
	// see http://zguide.zeromq.org/page:all#toc72
	w.sock, err = zmq.NewSocket(zmq.REQ)

	if err != nil {
		log.LB_log(log.LOGLEVEL_ERRORS, "Worker could not create socket:", err.Error())
		return nil, err
	}

	w.sock.SetLinger(0)
	w.sock.SetSndtimeo(DEFAULT_SEND_TIMEOUT)

	err = w.SetIdentity("worker-" + uuid.NewString())

	if err != nil {
		w.sock.Close()
		return nil, err
	}

	return w, nil
}

// Set the identity the broker sees. Must be called before connecting.
func (w *Worker) SetIdentity(identity string) error {
	if w.connected {
		return ErrConnected
	}
	if identity == "" {
		return fmt.Errorf("empty worker identity")
	}

	err := w.sock.SetIdentity(identity)

	if err != nil {
		log.LB_log(log.LOGLEVEL_ERRORS, "Worker could not set identity:", err.Error())
		return err
	}

	w.identity = identity
	return nil
}

func (w *Worker) Identity() string {
	return w.identity
}

// Change the capability score. The broker learns about it with the next reply.
func (w *Worker) SetCapability(k int64) {
	w.capability.Store(k)
}

func (w *Worker) Capability() int64 {
	return w.capability.Load()
}

// Number of requests answered so far.
func (w *Worker) Handled() uint64 {
	return w.handled.Load()
}

// Set the maximum time between two checks whether Run() should return.
func (w *Worker) SetPollInterval(d time.Duration) {
	if d <= 0 {
		d = DEFAULT_POLL_INTERVAL
	}
	w.poll_interval = d
}

func (w *Worker) SetTimeout(d time.Duration) {
	w.sock.SetSndtimeo(d)
}

// Connect to the broker backend. Run() does this if it hasn't happened yet.
func (w *Worker) Connect() error {
	if w.connected {
		return ErrConnected
	}

	err := w.sock.Connect(w.backend_url)

	if err != nil {
		log.LB_log(log.LOGLEVEL_ERRORS, "Worker", w.identity, "could not connect to backend", w.backend_url, ":", err.Error())
		return err
	}

	w.connected = true
	return nil
}

/*
Announce the worker to the broker and serve requests with handler until ctx is cancelled
(returns nil) or the socket fails.

The request currently being handled when ctx is cancelled is answered before Run returns.
*/
func (w *Worker) Run(ctx context.Context, handler Handler) error {
	if !w.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer w.running.Store(false)

	if !w.connected {
		if err := w.Connect(); err != nil {
			return err
		}
	}

	return w.acceptRequests(ctx, handler)
}

// Close the socket. The worker may not be used afterwards.
func (w *Worker) Close() {
	w.sock.Close()
}
