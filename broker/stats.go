package broker

import "sync/atomic"

// Stats is a point-in-time snapshot of what the broker has done so far.
type Stats struct {
	// Gauges, updated once per loop iteration
	WorkersAvailable int
	WorkersBusy      int
	Backlog          int

	Handshakes uint64
	Requests   uint64
	Dispatches uint64
	Replies    uint64
	// Replies whose client had disconnected or was not reading
	RepliesUndeliverable uint64
	// Replies from workers whose assignment had expired (forwarded or not, depending on the policy)
	LateReplies uint64
	// Dispatches that failed because the worker was gone or its send queue was full
	WorkersUnreachable uint64
	Expired            uint64
	Requeued           uint64
	// Requests dropped because the backlog was full
	BacklogOverflows   uint64
	ProtocolViolations uint64
}

type counters struct {
	available, busy, backlog atomic.Int64

	handshakes, requests, dispatches, replies atomic.Uint64
	undeliverable, late, unreachable          atomic.Uint64
	expired, requeued, overflows, violations  atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		WorkersAvailable:     int(c.available.Load()),
		WorkersBusy:          int(c.busy.Load()),
		Backlog:              int(c.backlog.Load()),
		Handshakes:           c.handshakes.Load(),
		Requests:             c.requests.Load(),
		Dispatches:           c.dispatches.Load(),
		Replies:              c.replies.Load(),
		RepliesUndeliverable: c.undeliverable.Load(),
		LateReplies:          c.late.Load(),
		WorkersUnreachable:   c.unreachable.Load(),
		Expired:              c.expired.Load(),
		Requeued:             c.requeued.Load(),
		BacklogOverflows:     c.overflows.Load(),
		ProtocolViolations:   c.violations.Load(),
	}
}
