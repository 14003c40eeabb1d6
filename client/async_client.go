package client

import (
	"sync"
	"time"

	"github.com/dermesser/lbbroker/log"
)

type Callback func([]byte, error)

type asyncRequest struct {
	callback Callback
	data     []byte
	// If this is set, terminate client and clean up
	terminate bool
}

type AsyncClient struct {
	request_queue chan *asyncRequest
	qlength       uint
	client        *Client

	mx     sync.Mutex
	closed bool
	done   chan struct{}
}

/*
Create an asynchronous client. An AsyncClient queues requests (in a buffered channel with the
length queue_length) and sends them one after another from a background goroutine, calling
the callback with each reply. Request() returns immediately unless the queue is full; higher
parallelism can simply be achieved by using multiple AsyncClients.
*/
func NewAsyncClient(name string, addr PeerAddress, queue_length uint) (*AsyncClient, error) {
	cl := new(AsyncClient)
	cl.qlength = queue_length

	var err error
	cl.client, err = NewClient(name, addr)

	if err != nil {
		log.LB_log(log.LOGLEVEL_ERRORS, "Synchronous client constructor returned error:", err.Error())
		return nil, err
	}

	cl.request_queue = make(chan *asyncRequest, queue_length)
	cl.done = make(chan struct{})
	go cl.startThread()

	return cl, nil
}

func (cl *AsyncClient) SetTimeout(d time.Duration) {
	cl.client.SetTimeout(d)
}

func (cl *AsyncClient) SetRetries(n uint) {
	cl.client.SetRetries(n)
}

// Wait for all queued requests to finish, then close the client.
func (cl *AsyncClient) Close() {
	cl.mx.Lock()
	if cl.closed {
		cl.mx.Unlock()
		return
	}
	cl.closed = true
	cl.request_queue <- &asyncRequest{terminate: true}
	cl.mx.Unlock()

	<-cl.done
}

func (cl *AsyncClient) startThread() {
	defer close(cl.done)

	for rq := range cl.request_queue {
		if rq.terminate {
			cl.client.Close()
			return
		}

		if log.IsLoggingEnabled(log.LOGLEVEL_WARNINGS) && float64(len(cl.request_queue)) > 0.7*float64(cl.qlength) {
			log.LB_log(log.LOGLEVEL_WARNINGS, "AsyncClient", cl.client.name, "Warning: Queue is fuller than 70% of its capacity!")
		}

		rsp, err := cl.client.Request(rq.data)

		rq.callback(rsp, err)
	}
}

// Queue a request. cb is called from the client's goroutine; after Close(), it is called
// immediately with a STATUS_CLOSED error.
func (cl *AsyncClient) Request(data []byte, cb Callback) {
	cl.mx.Lock()
	defer cl.mx.Unlock()

	if cl.closed {
		cb(nil, &RequestError{status: STATUS_CLOSED, err: ErrClosed})
		return
	}

	cl.request_queue <- &asyncRequest{callback: cb, data: data}
}
