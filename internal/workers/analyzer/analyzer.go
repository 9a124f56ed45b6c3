// Package analyzer implements the antivirus upload/poll worker: it POSTs
// the tar produced by Stage A to the configured analyser URL, polls until
// the server reports a scanned status, and serves the resulting verdict
// map back to the supervisor (spec §4.4.1 Stage B, §6).
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/usbsas/usbsas-core/internal/interfaces"
	"github.com/usbsas/usbsas-core/internal/ipc"
	"github.com/usbsas/usbsas-core/internal/netclient"
)

// reportVersion is the AnalyzeReport schema version this build
// understands; any other value in a server response is a fatal error
// (spec §9 Open Question: "treat unknown versions as a recoverable error
// on the report consumer side and surface the transfer as fatal").
const reportVersion = 1

// wireReport is the JSON shape the analyser HTTP endpoint returns.
type wireReport struct {
	Version  uint32            `json:"version"`
	Status   string            `json:"status"`
	Verdicts map[string]string `json:"verdicts"` // path -> "CLEAN" | "DIRTY"
}

// Handler implements worker.Handler for the analyser worker.
type Handler struct {
	Logger interfaces.Logger
	Client *netclient.Client

	URL      string
	UserID   string
	Interval time.Duration

	bundlePath string
	jobID      string
}

func New(logger interfaces.Logger, client *netclient.Client, url, userID string) *Handler {
	return &Handler{Logger: logger, Client: client, URL: url, UserID: userID, Interval: 2 * time.Second}
}

func (h *Handler) Name() string { return "analyzer" }

func (h *Handler) HandleRequest(kind ipc.Kind, req any, srv *ipc.Server) error {
	switch kind {
	case ipc.KindReqUploadChunk:
		return h.handleUploadChunk(req.(ipc.UploadChunkReq), srv)
	case ipc.KindReqPollAnalyze:
		return h.handlePollAnalyze(srv)
	default:
		return srv.ReplyError("unexpected_request", fmt.Sprintf("analyzer: unhandled kind %d", kind))
	}
}

// handleUploadChunk buffers the bundle to a scratch file; the final chunk
// (Final=true) triggers the actual HTTP POST (spec §4.4.1 Stage B: "the tar
// writer's output path is POSTed to the analyser worker").
func (h *Handler) handleUploadChunk(req ipc.UploadChunkReq, srv *ipc.Server) error {
	if h.bundlePath == "" {
		f, err := os.CreateTemp("", "usbsas-analyze-*.tar")
		if err != nil {
			return srv.ReplyError("analyze_upload_failed", err.Error())
		}
		h.bundlePath = f.Name()
		f.Close()
	}
	f, err := os.OpenFile(h.bundlePath, os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return srv.ReplyError("analyze_upload_failed", err.Error())
	}
	_, werr := f.Write(req.Data)
	f.Close()
	if werr != nil {
		return srv.ReplyError("analyze_upload_failed", werr.Error())
	}
	if !req.Final {
		return srv.Reply(ipc.KindRespEnd, ipc.EndMsg{})
	}

	body, err := os.Open(h.bundlePath)
	if err != nil {
		return srv.ReplyError("analyze_upload_failed", err.Error())
	}
	defer body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	url := h.URL + "/" + h.UserID
	if err := h.Client.Upload(ctx, url, body); err != nil {
		return srv.ReplyError("analyze_upload_failed", err.Error())
	}
	h.jobID = h.UserID
	return srv.Reply(ipc.KindRespEnd, ipc.EndMsg{})
}

// handlePollAnalyze polls the analyser endpoint until it reports the bundle
// scanned, returning the verdict map (spec §6: "poll GET analyzer_url/
// {user_id}/{id} until status=scanned").
func (h *Handler) handlePollAnalyze(srv *ipc.Server) error {
	if h.jobID == "" {
		return srv.ReplyError("not_uploaded", "PollAnalyze received before a completed upload")
	}
	url := h.URL + "/" + h.UserID + "/" + h.jobID

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	var wr wireReport
	for {
		result, err := h.Client.Poll(ctx, url, h.Interval)
		if err != nil {
			return srv.ReplyError("analyze_poll_failed", err.Error())
		}
		wr = wireReport{}
		if err := json.Unmarshal(result.Body, &wr); err != nil {
			return srv.ReplyError("analyze_report_malformed", err.Error())
		}
		if wr.Version != reportVersion {
			return srv.ReplyError("analyze_report_unknown_version", fmt.Sprintf("got version %d, want %d", wr.Version, reportVersion))
		}
		if wr.Status == "scanned" {
			break
		}
		select {
		case <-ctx.Done():
			return srv.ReplyError("analyze_poll_failed", ctx.Err().Error())
		case <-time.After(h.Interval):
		}
	}

	resp := ipc.AnalyzeReportResp{Version: wr.Version, Done: wr.Status == "scanned"}
	for path, verdict := range wr.Verdicts {
		resp.Verdicts = append(resp.Verdicts, ipc.Verdict{
			Engine: "analyzer",
			Clean:  verdict == "CLEAN",
			Path:   path,
		})
	}
	return srv.Reply(ipc.KindRespAnalyzeReport, resp)
}
