package client

import (
	"time"

	"github.com/dermesser/lbbroker/log"

	pb "github.com/gogo/protobuf/proto"
)

/*
Synchronous client of a broker frontend. It sends one request at a time and waits for the reply;
it is thread-safe, but concurrent requests wait for each other. For concurrency, use several
clients (see ConnectionCache) or an AsyncClient.

The default timeout is 10 seconds per attempt, with no retries.
*/
type Client struct {
	name    string
	channel *Channel
	filters []ClientFilter

	// Holds one token; whoever has it may use the channel.
	request_active chan bool
	closed         bool

	sequence_number uint64
	defaultParams   RequestParams

	last_used time.Time
}

/*
Create a new client that connects to the broker frontend at addr.
The name is used for logging purposes.
*/
func NewClient(name string, addr PeerAddress) (*Client, error) {
	channel, err := NewChannel(addr)

	if err != nil {
		return nil, &RequestError{status: STATUS_NETWORK_ERROR, err: err}
	}

	cl := &Client{name: name, channel: channel, filters: default_filters,
		request_active: make(chan bool, 1), defaultParams: *NewParams(), last_used: time.Now()}
	cl.request_active <- true

	return cl, nil
}

func (cl *Client) Name() string {
	return cl.name
}

func (cl *Client) Peer() PeerAddress {
	return cl.channel.Peer()
}

// Set the timeout of every attempt of a request (default 10s).
func (cl *Client) SetTimeout(d time.Duration) {
	<-cl.request_active
	defer func() { cl.request_active <- true }()

	cl.defaultParams.timeout = d
	cl.channel.SetTimeout(d)
}

// How often should the client retry after encountering a timeout or network error?
func (cl *Client) SetRetries(n uint) {
	<-cl.request_active
	defer func() { cl.request_active <- true }()

	cl.defaultParams.retries = n
}

// Create a Request with the client's default parameters.
func (cl *Client) NewRequest() *Request {
	<-cl.request_active
	defer func() { cl.request_active <- true }()

	return &Request{client: cl, params: cl.defaultParams}
}

/*
Send data to a worker and return its reply.

The error is a *RequestError; its Status() is STATUS_TIMEOUT if no reply arrived within the timeout
(after all retries). This happens when no worker is connected to the broker, the broker is down, or
the worker is slow.
*/
func (cl *Client) Request(data []byte) ([]byte, error) {
	rp := cl.NewRequest().Go(data)

	if !rp.Ok() {
		return nil, rp.Err()
	}
	return rp.Payload(), nil
}

/*
Use protobuf message objects instead of raw byte slices.

request is the request protocol buffer which is to be sent, reply (an output argument) will contain the
message the worker sent as reply. Usually, pb.Message is implemented by pointer types, so this works
without explicitly using pointer arguments.
*/
func (cl *Client) RequestProto(request, reply pb.Message) error {
	rp := cl.NewRequest().GoProto(request)
	return rp.GetResponseMessage(reply)
}

// Disable the client. Following requests fail with STATUS_CLOSED.
func (cl *Client) Close() {
	<-cl.request_active
	defer func() { cl.request_active <- true }()

	if cl.closed {
		return
	}

	log.LB_log(log.LOGLEVEL_DEBUG, "Closing client", cl.name)
	cl.channel.destroy()
	cl.closed = true
}
