package broker

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/dermesser/lbbroker/broker/queue"
	"github.com/dermesser/lbbroker/log"

	zmq "github.com/pebbe/zmq4"
)

/*
This file has the internal functions, the actual event loop; broker.go remains
uncluttered and with only public functions.
*/

// All state of one run of the event loop. Only the goroutine executing run() touches it,
// so nothing in here is locked.
type balancer struct {
	b *Broker

	policy   *dispatchPolicy
	inflight *assignments
	// Requests accepted from the frontend that have to be dispatched before any new one is read.
	backlog    *queue.Queue[clientMessage]
	violations *violationLog

	// The backend is always polled, the frontend only if there are available workers.
	backendOnly, both *zmq.Poller

	now func() time.Time
}

func (b *Broker) newBalancer() *balancer {
	lb := &balancer{
		b:          b,
		policy:     newDispatchPolicy(),
		inflight:   newAssignments(b.assignment_timeout, b.expiry_policy),
		backlog:    queue.NewQueue[clientMessage](b.backlog_limit),
		violations: newViolationLog(b.violation_limit, b.violation_burst),
		now:        time.Now,
	}

	lb.backendOnly = zmq.NewPoller()
	lb.backendOnly.Add(b.backend_router, zmq.POLLIN)

	lb.both = zmq.NewPoller()
	lb.both.Add(b.backend_router, zmq.POLLIN)
	lb.both.Add(b.frontend_router, zmq.POLLIN)

	return lb
}

func errnoOf(err error) zmq.Errno {
	switch e := err.(type) {
	case zmq.Errno:
		return e
	case syscall.Errno:
		return zmq.Errno(e)
	default:
		return 0
	}
}

func (lb *balancer) run(ctx context.Context) error {
	log.LB_log(log.LOGLEVEL_INFO, "Broker started")

	for {
		select {
		case <-ctx.Done():
			log.LB_log(log.LOGLEVEL_INFO, "Stopped broker;", lb.inflight.Len(), "requests in flight abandoned")
			return nil
		default:
		}

		if err := lb.step(lb.b.poll_interval); err != nil {
			return err
		}
	}
}

// One iteration of the event loop: wait up to timeout for messages and handle them.
func (lb *balancer) step(timeout time.Duration) error {
	lb.expireAssignments()
	lb.drainBacklog()

	poller := lb.backendOnly
	if lb.policy.available() > 0 {
		poller = lb.both
	}

	polled, err := poller.Poll(timeout)

	if err != nil {
		if errnoOf(err) == zmq.Errno(syscall.EINTR) {
			return nil
		}
		log.LB_log(log.LOGLEVEL_ERRORS, "Polling error in broker:", err.Error())
		return fmt.Errorf("polling: %w", err)
	}

	for _, sock := range polled {
		switch s := sock.Socket; s {
		case lb.b.backend_router:
			lb.handleWorkerMessage()
		case lb.b.frontend_router:
			if err := lb.handleClientRequest(); err != nil {
				return err
			}
		}
	}

	lb.publishGauges()
	return nil
}

func (lb *balancer) publishGauges() {
	lb.b.stats.available.Store(int64(lb.policy.available()))
	lb.b.stats.busy.Store(int64(lb.inflight.Len()))
	lb.b.stats.backlog.Store(int64(lb.backlog.Len()))
}

// Read one request from the frontend and send it to the best worker.
func (lb *balancer) handleClientRequest() error {
	// [client identity, "", payload]
	msgs, err := lb.b.frontend_router.RecvMessageBytes(0)

	if err != nil {
		log.LB_log(log.LOGLEVEL_ERRORS, "Error when receiving from frontend:", err.Error())
		return nil
	}

	message, err := parseClientMessage(msgs)

	if err != nil {
		lb.b.stats.violations.Add(1)
		lb.violations.report(err, msgs)
		return nil
	}

	lb.b.stats.requests.Add(1)

	// The frontend is only polled if a worker is available, and reading from the backend
	// only ever adds workers.
	if lb.policy.available() == 0 {
		log.LB_log(log.LOGLEVEL_ERRORS, "Received client request, but no worker is available. This is a bug!")
		return ErrEmptyRegistry
	}

	lb.dispatch(message)
	return nil
}

// Send message to the best available worker. Workers that can't be reached are forgotten and the
// next one is tried; if none is left, the request goes to the front of the backlog.
func (lb *balancer) dispatch(message clientMessage) {
	for {
		worker, ok := lb.policy.selectWorker()

		if !ok {
			if !lb.backlog.PushFront(message) {
				lb.b.stats.overflows.Add(1)
				log.LB_log(log.LOGLEVEL_WARNINGS, "Dropped request from", log.Printable(message.clientId), "; no reachable worker and backlog full")
			}
			return
		}

		// [worker identity, "", client identity, "", payload]
		_, err := lb.b.backend_router.SendMessageDontwait(newBackendMessage(worker.Identity, message).serializeBackendMessage())

		if err == nil {
			asg := lb.inflight.assign(worker.Identity, message, log.GetLogToken(), lb.now())
			lb.b.stats.dispatches.Add(1)

			if log.IsLoggingEnabled(log.LOGLEVEL_DEBUG) {
				log.LB_log(log.LOGLEVEL_DEBUG, fmt.Sprintf("[%s] Dispatched to worker with capability %d, %d B",
					asg.String(), worker.Capability, len(message.payload)))
			}
			return
		}

		lb.b.stats.unreachable.Add(1)

		switch errnoOf(err) {
		case zmq.EHOSTUNREACH:
			// routing is mandatory; fails when the worker has disconnected
			log.LB_log(log.LOGLEVEL_WARNINGS, "Could not route request to worker", log.Printable(worker.Identity), "; forgetting it")
		case zmq.Errno(syscall.EAGAIN):
			log.LB_log(log.LOGLEVEL_WARNINGS, "Send queue of worker", log.Printable(worker.Identity), "is full; forgetting it")
		default:
			log.LB_log(log.LOGLEVEL_WARNINGS, "Error when sending to worker", log.Printable(worker.Identity), ":", err.Error(), "; forgetting it")
		}
		lb.policy.discardWorker(worker.Identity)
	}
}

// Read one message from the backend: either a READY handshake or a reply for a client.
func (lb *balancer) handleWorkerMessage() {
	msgs, err := lb.b.backend_router.RecvMessageBytes(0)

	if err != nil {
		log.LB_log(log.LOGLEVEL_ERRORS, "Error when receiving from backend:", err.Error())
		return
	}

	message, err := parseWorkerMessage(msgs)

	if err != nil {
		lb.b.stats.violations.Add(1)
		lb.violations.report(err, msgs)
		return
	}

	switch message.kind {
	case workerHandshake:
		lb.b.stats.handshakes.Add(1)

		if asg := lb.inflight.cancel(message.workerId); asg != nil {
			log.LB_log(log.LOGLEVEL_WARNINGS, fmt.Sprintf("[%s] Worker announced itself again while holding a request", asg.String()))
			lb.abandon(asg)
		}

		if log.IsLoggingEnabled(log.LOGLEVEL_INFO) {
			log.LB_log(log.LOGLEVEL_INFO, fmt.Sprintf("Worker %s ready with capability %d", log.Printable(message.workerId), message.capability))
		}

		lb.policy.admitWorker(message.workerId, message.capability)

	case workerReply:
		lb.b.stats.replies.Add(1)

		asg, late := lb.inflight.complete(message.workerId)
		lb.policy.admitWorker(message.workerId, message.capability)

		if late {
			lb.b.stats.late.Add(1)

			if lb.b.expiry_policy == EXPIRE_REQUEUE {
				log.LB_log(log.LOGLEVEL_WARNINGS, "Discarded late reply of worker", log.Printable(message.workerId), "; request was requeued")
				return
			}
			log.LB_log(log.LOGLEVEL_WARNINGS, "Forwarding late reply of worker", log.Printable(message.workerId))
		}

		if log.IsLoggingEnabled(log.LOGLEVEL_DEBUG) && asg != nil {
			log.LB_log(log.LOGLEVEL_DEBUG, fmt.Sprintf("[%s] Reply after %s, %d B, new capability %d",
				asg.String(), lb.now().Sub(asg.sent), len(message.message.payload), message.capability))
		}

		lb.forwardReply(message.message)
	}
}

// [client identity, "", payload]
func (lb *balancer) forwardReply(message clientMessage) {
	_, err := lb.b.frontend_router.SendMessageDontwait(message.serializeClientMessage())

	if err != nil {
		lb.b.stats.undeliverable.Add(1)

		switch errnoOf(err) {
		case zmq.EHOSTUNREACH:
			// Fails when the client has already disconnected
			log.LB_log(log.LOGLEVEL_WARNINGS, "Could not route reply to client", log.Printable(message.clientId))
		case zmq.Errno(syscall.EAGAIN):
			log.LB_log(log.LOGLEVEL_WARNINGS, "Send queue of client", log.Printable(message.clientId), "is full; dropped reply")
		default:
			log.LB_log(log.LOGLEVEL_WARNINGS, "Error when sending to frontend:", err.Error())
		}
	}
}

func (lb *balancer) expireAssignments() {
	for _, asg := range lb.inflight.expire(lb.now()) {
		lb.b.stats.expired.Add(1)
		log.LB_log(log.LOGLEVEL_WARNINGS, fmt.Sprintf("[%s] Worker didn't reply within %s", asg.String(), lb.inflight.timeout))
		lb.abandon(asg)
	}
}

// A request whose worker won't answer: requeue it if the payload was kept, otherwise it is lost.
func (lb *balancer) abandon(asg *assignment) {
	if !lb.inflight.keepPayload {
		return
	}

	if lb.backlog.Push(asg.message) {
		lb.b.stats.requeued.Add(1)
		return
	}

	lb.b.stats.overflows.Add(1)
	log.LB_log(log.LOGLEVEL_WARNINGS, fmt.Sprintf("[%s] Could not requeue request, backlog full", asg.String()))
}

// Dispatch requests from the backlog as long as there are workers for them.
func (lb *balancer) drainBacklog() {
	for lb.backlog.Len() > 0 && lb.policy.available() > 0 {
		message, _ := lb.backlog.Pop()
		lb.dispatch(message)
	}
}
