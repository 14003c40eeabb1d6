package broker

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dermesser/lbbroker/log"
)

// What happens to a request whose worker doesn't reply in time.
type ExpiryPolicy int

const (
	// Abandon the request; the client doesn't get a reply unless the worker answers late.
	EXPIRE_DROP ExpiryPolicy = iota
	// Send the request to another worker.
	EXPIRE_REQUEUE
)

func (p ExpiryPolicy) String() string {
	switch p {
	case EXPIRE_DROP:
		return "drop"
	case EXPIRE_REQUEUE:
		return "requeue"
	default:
		return fmt.Sprintf("ExpiryPolicy(%d)", int(p))
	}
}

func ParseExpiryPolicy(s string) (ExpiryPolicy, error) {
	switch strings.ToLower(s) {
	case "", "drop":
		return EXPIRE_DROP, nil
	case "requeue":
		return EXPIRE_REQUEUE, nil
	default:
		return EXPIRE_DROP, fmt.Errorf("unknown expiry policy %q", s)
	}
}

// An assignment is a request that has been sent to a worker which hasn't replied yet.
type assignment struct {
	worker   []byte
	message  clientMessage
	token    string
	sent     time.Time
	deadline time.Time
}

func (a *assignment) String() string {
	return fmt.Sprintf("%s %s->%s", a.token, log.Printable(a.message.clientId), log.Printable(a.worker))
}

// Lost workers are remembered this many timeouts long, to recognize late replies.
const lostRetentionFactor = 10

/*
Bookkeeping of workers that hold a request. Only worker and client identities are kept, unless
requests are requeued on expiry; then the request payload is kept, too.

Every known worker is either in the registry or in here (or, after its assignment expired, lost).
*/
type assignments struct {
	timeout     time.Duration
	keepPayload bool

	byWorker map[string]*assignment
	// worker -> time its assignment expired
	lost map[string]time.Time
}

func newAssignments(timeout time.Duration, policy ExpiryPolicy) *assignments {
	return &assignments{
		timeout:     timeout,
		keepPayload: timeout > 0 && policy == EXPIRE_REQUEUE,
		byWorker:    make(map[string]*assignment),
		lost:        make(map[string]time.Time),
	}
}

func (a *assignments) Len() int {
	return len(a.byWorker)
}

func (a *assignments) isAssigned(worker []byte) bool {
	_, ok := a.byWorker[string(worker)]
	return ok
}

// Record that msg was sent to worker.
func (a *assignments) assign(worker []byte, msg clientMessage, token string, now time.Time) *assignment {
	asg := &assignment{worker: worker, token: token, sent: now}
	asg.message.clientId = msg.clientId

	if a.keepPayload {
		asg.message.payload = msg.payload
	}
	if a.timeout > 0 {
		asg.deadline = now.Add(a.timeout)
	}

	a.byWorker[string(worker)] = asg
	delete(a.lost, string(worker))
	return asg
}

// A worker replied. Returns its assignment (nil if there was none), and whether
// the worker had been given up on before.
func (a *assignments) complete(worker []byte) (*assignment, bool) {
	key := string(worker)

	if asg, ok := a.byWorker[key]; ok {
		delete(a.byWorker, key)
		return asg, false
	}
	if _, ok := a.lost[key]; ok {
		delete(a.lost, key)
		return nil, true
	}
	return nil, false
}

// A worker announced itself again; whatever it was working on will never be answered.
func (a *assignments) cancel(worker []byte) *assignment {
	key := string(worker)
	delete(a.lost, key)

	if asg, ok := a.byWorker[key]; ok {
		delete(a.byWorker, key)
		return asg
	}
	return nil
}

// Remove and return all assignments whose deadline has passed, oldest first.
func (a *assignments) expire(now time.Time) []*assignment {
	if a.timeout <= 0 {
		return nil
	}

	var expired []*assignment

	for key, asg := range a.byWorker {
		if now.After(asg.deadline) {
			expired = append(expired, asg)
			delete(a.byWorker, key)
			a.lost[key] = now
		}
	}

	for key, when := range a.lost {
		if now.Sub(when) > lostRetentionFactor*a.timeout {
			delete(a.lost, key)
		}
	}

	sort.Slice(expired, func(i, j int) bool { return expired[i].deadline.Before(expired[j].deadline) })
	return expired
}
