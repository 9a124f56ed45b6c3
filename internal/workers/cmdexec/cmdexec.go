// Package cmdexec implements the command destination and post-copy
// command workers: it executes a configured binary against either the
// output tar or filesystem image (spec §4.4.1 Stage C "Command
// destination", Stage D "Post-copy command").
package cmdexec

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/usbsas/usbsas-core/internal/interfaces"
	"github.com/usbsas/usbsas-core/internal/ipc"
)

// Handler implements worker.Handler for cmd_exec.
type Handler struct {
	Logger interfaces.Logger

	Timeout time.Duration
}

func New(logger interfaces.Logger) *Handler {
	return &Handler{Logger: logger, Timeout: 2 * time.Minute}
}

func (h *Handler) Name() string { return "cmd_exec" }

func (h *Handler) HandleRequest(kind ipc.Kind, req any, srv *ipc.Server) error {
	switch kind {
	case ipc.KindReqExecCmd:
		return h.handleExecCmd(req.(ipc.ExecCmdReq), srv)
	default:
		return srv.ReplyError("unexpected_request", fmt.Sprintf("cmd_exec: unhandled kind %d", kind))
	}
}

// handleExecCmd runs Argv[0] with the remaining entries as arguments
// (%SOURCE_FILE%/%DEST_FILE% substitution is performed by the caller
// before building Argv, per spec §4.4.1 Stage C: "substituting
// %SOURCE_FILE% with the tar path"). Exit status != 0 is reported as a
// fatal RespError, matching spec §4.4.1 Stage C: "Exit status != 0 is a
// fatal transfer error."
func (h *Handler) handleExecCmd(req ipc.ExecCmdReq, srv *ipc.Server) error {
	if len(req.Argv) == 0 {
		return srv.ReplyError("empty_command", "")
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, req.Argv[0], req.Argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	exitCode := int32(0)
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = int32(exitErr.ExitCode())
		} else {
			return srv.ReplyError("command_exec_failed", runErr.Error())
		}
	}

	resp := ipc.ExecCmdResp{ExitCode: exitCode, Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if exitCode != 0 {
		return srv.ReplyError("command_exit_nonzero", fmt.Sprintf("%s exited %d: %s",
			strings.Join(req.Argv, " "), exitCode, stderr.String()))
	}
	return srv.Reply(ipc.KindRespExecCmd, resp)
}
