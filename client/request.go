package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/dermesser/lbbroker/log"

	pb "github.com/gogo/protobuf/proto"
)

// Various parameters determining how a request is executed. There are builder methods to set the various parameters.
type RequestParams struct {
	retries uint
	timeout time.Duration
}

func NewParams() *RequestParams {
	return &RequestParams{retries: 0, timeout: DEFAULT_TIMEOUT}
}

// How often a request is to be retried after a timeout or network error. Default: 0
func (p *RequestParams) Retries(r uint) *RequestParams {
	p.retries = r
	return p
}

// Set the timeout of every single attempt.
func (p *RequestParams) Timeout(d time.Duration) *RequestParams {
	p.timeout = d
	return p
}

// A request that can be modified before it is sent.
type Request struct {
	client *Client

	params RequestParams

	rqid            string
	sequence_number uint64
	attempt_count   int

	// request payload
	payload []byte
}

func (r *Request) SetParameters(p *RequestParams) *Request {
	r.params = *p
	return r
}

func (r *Request) callNextFilter(index int) Response {
	if len(r.client.filters) < index+1 {
		panic("Bad filter setup: Not enough filters.")
	}
	return r.client.filters[index](r, index+1)
}

// [name/sequence number/request id]
func (r *Request) logId() string {
	return fmt.Sprintf("%s/%d/%s", r.client.name, r.sequence_number, r.rqid)
}

// Send a request with a serialized protocol buffer
func (r *Request) GoProto(msg pb.Message) Response {
	payload, err := pb.Marshal(msg)
	if err != nil {
		return Response{err: &RequestError{status: STATUS_ENCODING_ERROR, err: err}}
	}
	return r.Go(payload)
}

/*
Send a request and wait for the reply. If another request of the same client is active, wait for
it to finish first; the time spent waiting counts against the timeout.
*/
func (r *Request) Go(payload []byte) Response {
	r.rqid = log.GetLogToken()
	r.payload = payload

	before := time.Now()
	timer := time.NewTimer(r.params.timeout)
	defer timer.Stop()

	select {
	case <-r.client.request_active:
		defer func() { r.client.request_active <- true }()

		if r.client.closed {
			return Response{err: &RequestError{status: STATUS_CLOSED, err: ErrClosed}}
		}

		r.params.timeout = r.params.timeout - time.Now().Sub(before)

		if r.params.timeout <= 0 {
			return Response{err: &RequestError{status: STATUS_TIMEOUT, err: errors.New("deadline expired on client")}}
		}

		r.client.sequence_number++
		r.sequence_number = r.client.sequence_number

		rp := r.callNextFilter(0)
		r.client.last_used = time.Now()
		return rp
	case <-timer.C:
		return Response{err: &RequestError{status: STATUS_TIMEOUT, err: errors.New("deadline expired on client")}}
	}
}
