package broker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dermesser/lbbroker/log"

	zmq "github.com/pebbe/zmq4"
	"golang.org/x/time/rate"
)

const (
	DEFAULT_POLL_INTERVAL = 250 * time.Millisecond
	DEFAULT_SEND_HWM      = 1000
	DEFAULT_BACKLOG_LIMIT = 50
)

var (
	ErrAlreadyRunning = errors.New("broker is already running")
	// Returned by Run() if a client request was read although no worker was available.
	// This is a bug in the broker, not a peer's fault.
	ErrEmptyRegistry = errors.New("selected worker from empty registry")
)

/*
Routes requests from clients connected to the frontend to the most capable worker connected to the
backend, and routes the workers' replies back to the clients.

Both endpoints are ROUTER sockets. Workers announce themselves with a READY handshake carrying their
capability score; a worker is eligible for a request until it is selected, and becomes eligible again when
it replies. The frontend is only read while at least one worker is eligible, so requests that can't be
served stay queued in ZeroMQ and not in the broker.
*/
type Broker struct {
	frontend_router, backend_router *zmq.Socket
	frontend_url, backend_url       string

	// Messages queued for one peer before it counts as unreachable
	send_hwm int
	// Maximum time between two checks of the stop condition
	poll_interval time.Duration
	// Requests accepted from clients that couldn't be placed on a worker yet
	backlog_limit int
	// 0 disables expiry of assignments
	assignment_timeout time.Duration
	expiry_policy      ExpiryPolicy

	violation_limit rate.Limit
	violation_burst int

	running atomic.Bool
	stats   counters
}

/*
Create a broker binding the frontend (for clients) to frontendURL and the backend (for workers) to
backendURL. Both are ZeroMQ endpoints, e.g. "tcp://*:5555" or "ipc:///tmp/lbbroker-backend".

Use the setter functions below before calling Run(), otherwise they might be ignored.
*/
func NewBroker(frontendURL, backendURL string) (*Broker, error) {
	b := new(Broker)
	b.send_hwm = DEFAULT_SEND_HWM
	b.poll_interval = DEFAULT_POLL_INTERVAL
	b.backlog_limit = DEFAULT_BACKLOG_LIMIT
	b.expiry_policy = EXPIRE_DROP
	b.violation_limit = rate.Every(time.Second)
	b.violation_burst = 10

	var err error

	b.frontend_router, err = newRouter(frontendURL, b.send_hwm)

	if err != nil {
		log.LB_log(log.LOGLEVEL_ERRORS, "Error when setting up frontend router socket:", err.Error())
		return nil, err
	}

	b.backend_router, err = newRouter(backendURL, b.send_hwm)

	if err != nil {
		log.LB_log(log.LOGLEVEL_ERRORS, "Error when setting up backend router socket:", err.Error())
		b.frontend_router.Close()
		return nil, err
	}

	b.frontend_url = lastEndpoint(b.frontend_router, frontendURL)
	b.backend_url = lastEndpoint(b.backend_router, backendURL)

	log.LB_log(log.LOGLEVEL_INFO, "Broker frontend bound to", b.frontend_url, "backend bound to", b.backend_url)

	return b, nil
}

func newRouter(url string, hwm int) (*zmq.Socket, error) {
	sock, err := zmq.NewSocket(zmq.ROUTER)

	if err != nil {
		return nil, err
	}

	// Fail with EHOSTUNREACH instead of silently dropping messages to peers that went away,
	// and with EAGAIN for peers that don't read.
	sock.SetRouterMandatory(1)
	sock.SetSndhwm(hwm)
	sock.SetLinger(0)

	err = sock.Bind(url)

	if err != nil {
		sock.Close()
		return nil, fmt.Errorf("binding %s: %w", url, err)
	}

	return sock, nil
}

// Resolves wildcard addresses such as tcp://127.0.0.1:* to the actually bound endpoint.
func lastEndpoint(sock *zmq.Socket, fallback string) string {
	ep, err := sock.GetLastEndpoint()

	if err != nil || ep == "" {
		return fallback
	}
	return ep
}

/*
Run the event loop until ctx is cancelled (returns nil) or a fatal error occurs: the poll call
failing, or an internal inconsistency (ErrEmptyRegistry). Requests that are being worked on when
Run returns are abandoned.

Run may only be called once at a time. Call Close() afterwards.
*/
func (b *Broker) Run(ctx context.Context) error {
	if !b.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer b.running.Store(false)

	return b.newBalancer().run(ctx)
}

// Close the frontend and backend sockets. The broker may not be used after calling Close().
func (b *Broker) Close() {
	b.frontend_router.Close()
	b.backend_router.Close()
}

// The endpoint clients connect to.
func (b *Broker) FrontendEndpoint() string {
	return b.frontend_url
}

// The endpoint workers connect to.
func (b *Broker) BackendEndpoint() string {
	return b.backend_url
}

/*
Set how many messages may be queued for a single peer. The broker never waits for a peer: when the
queue of a worker is full, the worker is treated as unreachable; when the queue of a client is full,
the reply is dropped. 0 means no limit. Only affects tcp and ipc peers connecting after the call;
for inproc endpoints the limit at the time the broker was created applies.
*/
func (b *Broker) SetSendHWM(n int) {
	if n < 0 {
		n = DEFAULT_SEND_HWM
	}
	b.send_hwm = n

	b.frontend_router.SetSndhwm(n)
	b.backend_router.SetSndhwm(n)
}

/*
Set the maximum time the broker blocks waiting for messages before checking whether it should stop.
This has nothing to do with request timeouts.
*/
func (b *Broker) SetPollInterval(d time.Duration) {
	if d <= 0 {
		d = DEFAULT_POLL_INTERVAL
	}
	b.poll_interval = d
}

// Set the maximum number of requests the broker holds itself (see SetAssignmentTimeout()).
func (b *Broker) SetBacklogLimit(n int) {
	if n < 1 {
		n = DEFAULT_BACKLOG_LIMIT
	}
	b.backlog_limit = n
}

/*
Give up on a worker that hasn't replied within d after being sent a request. What happens to the
request is decided by policy: EXPIRE_DROP abandons it, EXPIRE_REQUEUE sends it to the next worker
(which requires the broker to keep a copy of every request in flight).

A worker that answers after its deadline is admitted again. Its reply is forwarded with EXPIRE_DROP
and discarded with EXPIRE_REQUEUE (the client is already being served by someone else).

d == 0 (the default) disables expiry: a worker that never replies is never used again.
*/
func (b *Broker) SetAssignmentTimeout(d time.Duration, policy ExpiryPolicy) {
	if d < 0 {
		d = 0
	}
	b.assignment_timeout = d
	b.expiry_policy = policy
}

// Limit how often malformed messages are logged; all of them are counted in Stats() anyway.
func (b *Broker) SetViolationLogRate(r rate.Limit, burst int) {
	b.violation_limit = r
	b.violation_burst = burst
}

// Returns a snapshot of the broker's counters. Safe to call while Run() is active.
func (b *Broker) Stats() Stats {
	return b.stats.snapshot()
}
