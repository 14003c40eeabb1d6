package client

import (
	pb "github.com/gogo/protobuf/proto"
)

type Response struct {
	err     error
	payload []byte
}

// Check whether the request was successful.
func (rp *Response) Ok() bool {
	return rp.err == nil
}

// Returns the reply payload.
func (rp *Response) Payload() []byte {
	return rp.payload
}

// Unmarshals the reply into msg.
func (rp *Response) GetResponseMessage(msg pb.Message) error {
	if rp.err != nil {
		return rp.err
	}

	if err := pb.Unmarshal(rp.payload, msg); err != nil {
		return &RequestError{status: STATUS_ENCODING_ERROR, err: err}
	}
	return nil
}

// The error that has occurred, usually a *RequestError.
func (rp *Response) Err() error {
	return rp.err
}

// Get the error message, or "" if the request was successful.
func (rp *Response) Error() string {
	if rp.err != nil {
		return rp.err.Error()
	}
	return ""
}
