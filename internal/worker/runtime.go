// Package worker implements the generic Init -> sandbox transition ->
// Serve -> End lifecycle every usbsas worker process runs (spec §3, §4.2).
// Each concrete worker (device_reader, fs_builder, block_writer, ...)
// supplies a Handler; Runtime drives the pipe protocol and the phase
// transitions around it.
package worker

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/usbsas/usbsas-core/internal/constants"
	"github.com/usbsas/usbsas-core/internal/interfaces"
	"github.com/usbsas/usbsas-core/internal/ipc"
)

// Phase is one state in a worker's lifetime. It only ever moves forward;
// there is no transition back to an earlier phase (spec §4.2).
type Phase int

const (
	PhaseInit Phase = iota
	PhaseSandboxed
	PhaseServing
	PhaseEnded
	PhaseErrored
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseSandboxed:
		return "sandboxed"
	case PhaseServing:
		return "serving"
	case PhaseEnded:
		return "ended"
	case PhaseErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Handler dispatches one decoded request for a specific worker kind. It
// replies via srv itself (Reply/ReplyError/SendStatus) and returns an
// error only when the worker cannot continue at all; a handled business
// error (bad path, filtered file, ...) should be sent as a RespError frame
// and the handler should return nil so the worker keeps serving the next
// request, since one bad request must not kill the whole transfer unless
// the spec says otherwise for that worker.
type Handler interface {
	Name() string
	HandleRequest(kind ipc.Kind, req any, srv *ipc.Server) error
}

// Config configures a Runtime.
type Config struct {
	Logger   interfaces.Logger
	Observer interfaces.Observer
	// Sandbox performs the one-time, irreversible transition out of Init
	// (seccomp filter install on Linux, a no-op stub elsewhere). It runs
	// exactly once per process, after InitMsg is received and before the
	// first worker-specific request is dispatched.
	Sandbox func() error
}

// Runtime drives one worker process's pipe pair through its lifecycle.
type Runtime struct {
	logger   interfaces.Logger
	observer interfaces.Observer
	sandbox  func() error

	mu    sync.Mutex
	phase Phase
}

func NewRuntime(cfg Config) *Runtime {
	sandbox := cfg.Sandbox
	if sandbox == nil {
		sandbox = func() error { return nil }
	}
	return &Runtime{logger: cfg.Logger, observer: cfg.Observer, sandbox: sandbox}
}

// Phase returns the runtime's current lifecycle phase.
func (rt *Runtime) Phase() Phase {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.phase
}

func (rt *Runtime) setPhase(p Phase) {
	rt.mu.Lock()
	rt.phase = p
	rt.mu.Unlock()
}

// Serve runs h against the given pipe pair until it receives a shutdown
// request (KindReqEnd), the context is canceled, or a fatal error occurs.
// It always replies exactly once per request (spec §4.2: "every response
// union includes four standard variants" — Status is not terminal, the
// other three are).
func (rt *Runtime) Serve(ctx context.Context, in io.Reader, out io.Writer, h Handler) error {
	if rt.phase != PhaseInit {
		return fmt.Errorf("worker: Serve called twice on the same runtime")
	}
	srv := ipc.NewServer(out, in)

	kind, req, err := srv.ReadRequest()
	if err != nil {
		rt.setPhase(PhaseErrored)
		return fmt.Errorf("worker: read init request: %w", err)
	}
	if kind != ipc.KindReqInit {
		rt.setPhase(PhaseErrored)
		_ = srv.ReplyError("protocol_violation", "first request must be Init")
		return fmt.Errorf("worker: expected Init, got kind %d", kind)
	}
	initMsg := req.(ipc.InitMsg)
	if rt.logger != nil {
		rt.logger.Debugf("worker %s: init for transfer %s", h.Name(), initMsg.TransferID)
	}

	if err := rt.sandbox(); err != nil {
		rt.setPhase(PhaseErrored)
		_ = srv.ReplyError("sandbox_failed", err.Error())
		return fmt.Errorf("worker: sandbox transition: %w", err)
	}
	rt.setPhase(PhaseSandboxed)

	// Serving is entered before the ack goes out, so a caller whose Init
	// call has returned already observes PhaseServing.
	rt.setPhase(PhaseServing)
	if err := srv.Reply(ipc.KindRespEnd, ipc.EndMsg{}); err != nil {
		return fmt.Errorf("worker: ack init: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			rt.setPhase(PhaseEnded)
			return ctx.Err()
		default:
		}

		kind, req, err := srv.ReadRequest()
		if err != nil {
			rt.setPhase(PhaseErrored)
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("worker: read request: %w", err)
		}

		if kind == ipc.KindReqEnd {
			if err := srv.Reply(ipc.KindRespEnd, ipc.EndMsg{}); err != nil {
				return fmt.Errorf("worker: ack end: %w", err)
			}
			rt.setPhase(PhaseEnded)
			return nil
		}

		if err := h.HandleRequest(kind, req, srv); err != nil {
			rt.setPhase(PhaseErrored)
			_ = srv.ReplyError("handler_failed", err.Error())
			return fmt.Errorf("worker %s: handle request kind %d: %w", h.Name(), kind, err)
		}

		if rt.observer != nil {
			rt.observer.ObserveStatus(h.Name(), 0, 0)
		}
	}
}

// MaxPayload re-exports the frame ceiling so callers assembling chunked
// requests (file content, bitmap, sectors) can size their chunks without
// importing internal/constants directly.
const MaxPayload = constants.MaxFramePayload

// Kind is an alias so Handler implementations outside this package don't
// need to import internal/ipc just to spell the parameter type.
type Kind = ipc.Kind
