package ipc

import (
	"fmt"
	"io"
	"sync"
)

// Conn is one end of a worker's pipe pair: Out carries requests away from
// this side, In carries responses back. The supervisor holds one Conn per
// worker (spec §3); a worker process holds the mirror image.
type Conn struct {
	Out io.Writer
	In  io.Reader
	mu  sync.Mutex
}

// NewConn wraps an already-connected pair of pipe ends.
func NewConn(out io.Writer, in io.Reader) *Conn {
	return &Conn{Out: out, In: in}
}

// Call sends one request and blocks until the matching terminal response
// arrives, collecting any Status updates along the way. It mirrors the
// one-request-in-flight-at-a-time contract the worker protocol requires:
// a caller must not issue a second Call until the first has returned.
func (c *Conn) Call(kind Kind, req any, onStatus func(StatusMsg)) (Kind, any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := WriteFrame(c.Out, Encode(kind, req)); err != nil {
		return KindUnknown, nil, fmt.Errorf("ipc: call: write request: %w", err)
	}

	for {
		frame, err := ReadFrame(c.In)
		if err != nil {
			return KindUnknown, nil, fmt.Errorf("ipc: call: read response: %w", err)
		}
		respKind, v, err := Decode(frame)
		if err != nil {
			return KindUnknown, nil, fmt.Errorf("ipc: call: decode response: %w", err)
		}
		if respKind == KindRespStatus {
			if onStatus != nil {
				onStatus(v.(StatusMsg))
			}
			continue
		}
		if respKind == KindRespError {
			em := v.(ErrorMsg)
			return respKind, v, fmt.Errorf("ipc: worker error %s: %s", em.Code, em.Message)
		}
		return respKind, v, nil
	}
}

// Server is the worker side of a Conn: ReadRequest blocks for one request
// at a time, and the caller answers it with Reply or ReplyError. Sending
// Status updates mid-request is the handler's own responsibility via
// SendStatus, since only it knows the right cadence.
type Server struct {
	Out io.Writer
	In  io.Reader
}

func NewServer(out io.Writer, in io.Reader) *Server {
	return &Server{Out: out, In: in}
}

// SendStatus writes a progress update without ending the current request.
func (s *Server) SendStatus(msg StatusMsg) error {
	return WriteFrame(s.Out, Encode(KindRespStatus, msg))
}

// Reply writes the terminal response for the current request.
func (s *Server) Reply(kind Kind, msg any) error {
	return WriteFrame(s.Out, Encode(kind, msg))
}

// ReplyError writes a RespError frame carrying code and message.
func (s *Server) ReplyError(code, message string) error {
	return WriteFrame(s.Out, Encode(KindRespError, ErrorMsg{Code: code, Message: message}))
}

// ReadRequest blocks for the next request frame.
func (s *Server) ReadRequest() (Kind, any, error) {
	frame, err := ReadFrame(s.In)
	if err != nil {
		return KindUnknown, nil, err
	}
	return Decode(frame)
}
