package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/dermesser/lbbroker/log"
)

// A ClientFilter is a function that is called with a request and fulfills a certain task.
// Filters are stacked in Client.filters; filters[0] is called first, and calls in turn filters[1]
// until the last filter sends the message off to the network.
type ClientFilter (func(rq *Request, next_filter int) Response)

var default_filters = []ClientFilter{LogFilter, TimeoutFilter, RetryFilter, SendFilter}

// Logs requests and their outcome.
func LogFilter(rq *Request, next int) Response {
	before := time.Now()
	response := rq.callNextFilter(next)

	if response.err != nil {
		log.LB_log(log.LOGLEVEL_WARNINGS, fmt.Sprintf("[%s] Request failed after %s: %s", rq.logId(), time.Since(before), response.err.Error()))
	} else if log.IsLoggingEnabled(log.LOGLEVEL_DEBUG) {
		log.LB_log(log.LOGLEVEL_DEBUG, fmt.Sprintf("[%s] %d B -> %d B in %s, %d attempt(s)",
			rq.logId(), len(rq.payload), len(response.payload), time.Since(before), rq.attempt_count))
	}
	return response
}

// Sets appropriate timeouts on the socket, only for this request
func TimeoutFilter(rq *Request, next int) Response {
	old_timeout := rq.client.channel.Timeout()

	rq.client.channel.SetTimeout(rq.params.timeout)
	defer rq.client.channel.SetTimeout(old_timeout)

	return rq.callNextFilter(next)
}

// A filter that retries a request according to the request's parameters. The channel has
// been reconnected by SendFilter after every failure.
func RetryFilter(rq *Request, next int) Response {
	attempts := int(rq.params.retries + 1)

	last_response := Response{}
	for i := 0; i < attempts; i++ {
		response := rq.callNextFilter(next)

		if response.err == nil {
			return response
		}
		last_response = response

		if StatusOf(response.err) == STATUS_CLOSED {
			return response
		}
	}

	if attempts < 2 {
		return last_response
	}
	return Response{err: &RequestError{status: StatusOf(last_response.err),
		err: fmt.Errorf("retried %d times without success: %w", rq.params.retries, errors.Unwrap(last_response.err))}}
}

// Send a request and wait for it to complete. Must be the last filter in the stack
func SendFilter(rq *Request, next int) Response {
	// Enforce that this is the last filter.
	if len(rq.client.filters) != next {
		panic("Bad filter setup")
	}

	rq.attempt_count++

	err := rq.client.channel.sendMessage(rq.payload)

	if err != nil {
		log.LB_log(log.LOGLEVEL_WARNINGS, fmt.Sprintf("[%s] Could not send request to %s: %s", rq.logId(), rq.client.channel.Peer().String(), err.Error()))
		return rq.client.failure(err)
	}

	payload, err := rq.client.channel.receiveMessage()

	if err != nil {
		log.LB_log(log.LOGLEVEL_WARNINGS, fmt.Sprintf("[%s] Could not receive reply from %s: %s", rq.logId(), rq.client.channel.Peer().String(), err.Error()))
		return rq.client.failure(err)
	}

	return Response{payload: payload}
}
