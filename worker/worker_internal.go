package worker

import (
	"context"
	"fmt"
	"syscall"

	"github.com/dermesser/lbbroker/broker"
	"github.com/dermesser/lbbroker/log"

	zmq "github.com/pebbe/zmq4"
)

// An assignment as seen by the worker: [client identity, "", request]. The REQ socket has
// already removed the envelope delimiter in front of it.
type assignment struct {
	clientId, request []byte
}

func parseAssignment(msgs [][]byte) (assignment, error) {
	if len(msgs) != 3 {
		return assignment{}, fmt.Errorf("%w: assignment has %d frames, want 3", broker.ErrFrameCount, len(msgs))
	}
	if len(msgs[1]) != 0 {
		return assignment{}, broker.ErrDelimiter
	}
	if len(msgs[0]) == 0 {
		return assignment{}, broker.ErrIdentity
	}
	return assignment{clientId: msgs[0], request: msgs[2]}, nil
}

// [client identity, "", capability, "", reply]
func (a assignment) serializeReply(capability int64, reply []byte) [][]byte {
	if reply == nil {
		reply = []byte{}
	}
	return [][]byte{a.clientId, {}, broker.FormatCapability(capability), {}, reply}
}

func isInterrupted(err error) bool {
	switch e := err.(type) {
	case zmq.Errno:
		return e == zmq.Errno(syscall.EINTR)
	case syscall.Errno:
		return e == syscall.EINTR
	}
	return false
}

func (w *Worker) announce() error {
	_, err := w.sock.SendMessage(broker.FormatHandshake(w.Capability()))

	if err != nil {
		log.LB_log(log.LOGLEVEL_ERRORS, "Worker", w.identity, "could not send READY:", err.Error())
		return fmt.Errorf("sending handshake: %w", err)
	}

	if log.IsLoggingEnabled(log.LOGLEVEL_INFO) {
		log.LB_log(log.LOGLEVEL_INFO, fmt.Sprintf("Worker %s ready with capability %d", w.identity, w.Capability()))
	}
	return nil
}

func (w *Worker) acceptRequests(ctx context.Context, handler Handler) error {
	if err := w.announce(); err != nil {
		return err
	}

	poller := zmq.NewPoller()
	poller.Add(w.sock, zmq.POLLIN)

	for {
		select {
		case <-ctx.Done():
			log.LB_log(log.LOGLEVEL_INFO, "Worker", w.identity, "stopped after", w.Handled(), "requests")
			return nil
		default:
		}

		polled, err := poller.Poll(w.poll_interval)

		if err != nil {
			if isInterrupted(err) {
				continue
			}
			log.LB_log(log.LOGLEVEL_ERRORS, "Worker", w.identity, "polling error:", err.Error())
			return fmt.Errorf("polling: %w", err)
		}

		if len(polled) == 0 {
			continue
		}

		if err = w.handleAssignment(handler); err != nil {
			return err
		}
	}
}

func (w *Worker) handleAssignment(handler Handler) error {
	msgs, err := w.sock.RecvMessageBytes(0)

	if err != nil {
		log.LB_log(log.LOGLEVEL_WARNINGS, "Worker", w.identity, "skipped incoming message, error:", err.Error())
		return nil
	}

	asg, err := parseAssignment(msgs)

	if err != nil {
		// The REQ socket expects us to send something; announcing again makes the broker
		// treat us as an available worker.
		log.LB_log(log.LOGLEVEL_WARNINGS, "Worker", w.identity, "received malformed assignment:", err.Error())
		return w.announce()
	}

	if log.IsLoggingEnabled(log.LOGLEVEL_DEBUG) {
		log.LB_log(log.LOGLEVEL_DEBUG, fmt.Sprintf("Worker %s received %d B from %s", w.identity, len(asg.request), log.Printable(asg.clientId)))
	}

	reply := handler(asg.request)

	_, err = w.sock.SendMessage(asg.serializeReply(w.Capability(), reply))

	if err != nil {
		log.LB_log(log.LOGLEVEL_ERRORS, fmt.Sprintf("Worker %s could not send reply to %s: %s", w.identity, log.Printable(asg.clientId), err.Error()))
		return fmt.Errorf("sending reply: %w", err)
	}

	w.handled.Add(1)
	return nil
}
