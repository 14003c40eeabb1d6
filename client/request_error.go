package client

import (
	"errors"
	"fmt"
)

type RequestStatus int

const (
	STATUS_OK RequestStatus = iota
	// Sending or receiving timed out; no reply arrived within the timeout.
	STATUS_TIMEOUT
	// The socket returned an error other than a timeout.
	STATUS_NETWORK_ERROR
	// The client was closed.
	STATUS_CLOSED
	// A message could not be (de)serialized.
	STATUS_ENCODING_ERROR
)

func (s RequestStatus) String() string {
	switch s {
	case STATUS_OK:
		return "STATUS_OK"
	case STATUS_TIMEOUT:
		return "STATUS_TIMEOUT"
	case STATUS_NETWORK_ERROR:
		return "STATUS_NETWORK_ERROR"
	case STATUS_CLOSED:
		return "STATUS_CLOSED"
	case STATUS_ENCODING_ERROR:
		return "STATUS_ENCODING_ERROR"
	default:
		return fmt.Sprintf("RequestStatus(%d)", int(s))
	}
}

var ErrClosed = errors.New("client is closed")

type RequestError struct {
	status RequestStatus
	err    error
}

func (e *RequestError) Error() string {
	if e.err != nil {
		return e.status.String() + ": " + e.err.Error()
	}
	return e.status.String()
}

/*
Returns one of

	STATUS_TIMEOUT (no reply within the timeout; after the retries set with SetRetries())
	STATUS_NETWORK_ERROR (the socket returned an unrecoverable error)
	STATUS_CLOSED (Close() has been called)
	STATUS_ENCODING_ERROR (a protocol buffer could not be (de)serialized)

Use errors.As() or StatusOf() to obtain it from an error.
*/
func (e *RequestError) Status() RequestStatus {
	return e.status
}

func (e *RequestError) Unwrap() error {
	return e.err
}

// Returns the status of a *RequestError in err's chain, STATUS_OK for nil, and
// STATUS_NETWORK_ERROR for any other error.
func StatusOf(err error) RequestStatus {
	if err == nil {
		return STATUS_OK
	}

	var rqerr *RequestError
	if errors.As(err, &rqerr) {
		return rqerr.status
	}
	return STATUS_NETWORK_ERROR
}
