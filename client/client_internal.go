package client

import (
	"errors"
	"syscall"

	"github.com/dermesser/lbbroker/log"

	zmq "github.com/pebbe/zmq4"
)

func isTimeout(err error) bool {
	switch e := err.(type) {
	case zmq.Errno:
		return e == zmq.Errno(syscall.EAGAIN)
	case syscall.Errno:
		return e == syscall.EAGAIN
	}
	return false
}

func (cl *Client) failure(err error) Response {
	if errors.Is(err, ErrClosed) {
		return Response{err: &RequestError{status: STATUS_CLOSED, err: err}}
	}

	// The REQ socket is stuck; start over with a new one.
	if rcerr := cl.channel.Reconnect(); rcerr != nil {
		log.LB_log(log.LOGLEVEL_ERRORS, "Could not reconnect to", cl.channel.Peer().String(), ":", rcerr.Error())
	}

	if isTimeout(err) {
		return Response{err: &RequestError{status: STATUS_TIMEOUT, err: err}}
	}
	return Response{err: &RequestError{status: STATUS_NETWORK_ERROR, err: err}}
}
