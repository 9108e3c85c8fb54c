package rpc

import (
	"fmt"

	"github.com/google/uuid"
)

// Request is a single RPC call envelope.
type Request struct {
	ID     string `json:"id" cbor:"id"`
	Method string `json:"method" cbor:"method"`
	Params []any  `json:"params,omitempty" cbor:"params,omitempty"`
}

// NewRequest builds a request with a fresh UUID for correlation.
func NewRequest(method string, params []any) Request {
	return Request{
		ID:     uuid.NewString(),
		Method: method,
		Params: params,
	}
}

// Response is the server's reply to a request. Frames with an empty ID
// are notifications pushed by the server, not replies.
type Response struct {
	ID     string `json:"id,omitempty" cbor:"id,omitempty"`
	Result any    `json:"result,omitempty" cbor:"result,omitempty"`
	Error  *Error `json:"error,omitempty" cbor:"error,omitempty"`
}

// Error is the error object carried inside a response.
type Error struct {
	Code    int64  `json:"code" cbor:"code"`
	Message string `json:"message" cbor:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}
