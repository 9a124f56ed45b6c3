// Package netio implements the uploader/downloader worker: it POSTs a
// finished tar to a destination network, or GETs one from a source
// network for the Download->USB pipeline (spec §4.4.1 Stage C "Net
// destination", §4.4.2, §6).
package netio

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/usbsas/usbsas-core/internal/interfaces"
	"github.com/usbsas/usbsas-core/internal/ipc"
	"github.com/usbsas/usbsas-core/internal/netclient"
)

// Handler implements worker.Handler for the net worker, in either upload
// or download role depending on which method the pipeline drives.
type Handler struct {
	Logger interfaces.Logger
	Client *netclient.Client

	URL    string
	UserID string
	Pin    string

	uploadPath string

	downloadPath string
	downloadFile *os.File
	downloadDone bool
}

func New(logger interfaces.Logger, client *netclient.Client, url, userID string) *Handler {
	return &Handler{Logger: logger, Client: client, URL: url, UserID: userID}
}

func (h *Handler) Name() string { return "net_io" }

func (h *Handler) HandleRequest(kind ipc.Kind, req any, srv *ipc.Server) error {
	switch kind {
	case ipc.KindReqUploadChunk:
		return h.handleUploadChunk(req.(ipc.UploadChunkReq), srv)
	case ipc.KindReqDownloadChunk:
		return h.handleDownloadChunk(srv)
	default:
		return srv.ReplyError("unexpected_request", fmt.Sprintf("net_io: unhandled kind %d", kind))
	}
}

// handleUploadChunk buffers the tar and POSTs it on the final chunk (spec
// §6: "Upload: HTTP POST url/{user_id} with a tar body").
func (h *Handler) handleUploadChunk(req ipc.UploadChunkReq, srv *ipc.Server) error {
	if h.uploadPath == "" {
		f, err := os.CreateTemp("", "usbsas-upload-*.tar")
		if err != nil {
			return srv.ReplyError("upload_failed", err.Error())
		}
		h.uploadPath = f.Name()
		f.Close()
	}
	f, err := os.OpenFile(h.uploadPath, os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return srv.ReplyError("upload_failed", err.Error())
	}
	_, werr := f.Write(req.Data)
	f.Close()
	if werr != nil {
		return srv.ReplyError("upload_failed", werr.Error())
	}
	if !req.Final {
		return srv.Reply(ipc.KindRespEnd, ipc.EndMsg{})
	}

	body, err := os.Open(h.uploadPath)
	if err != nil {
		return srv.ReplyError("upload_failed", err.Error())
	}
	defer body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := h.Client.Upload(ctx, h.URL+"/"+h.UserID, body); err != nil {
		return srv.ReplyError("upload_failed", err.Error())
	}
	return srv.Reply(ipc.KindRespEnd, ipc.EndMsg{})
}

// PrepareDownload fetches the remote tar into a local scratch file ahead
// of the first DownloadChunk request, so chunking out to the caller is
// just a local file read (spec §6: "Download: HTTP GET url/{user_id}/
// {pin} yielding a tar", §4.4.2).
func (h *Handler) PrepareDownload(ctx context.Context) error {
	f, err := os.CreateTemp("", "usbsas-download-*.tar")
	if err != nil {
		return fmt.Errorf("netio: create download scratch file: %w", err)
	}
	url := h.URL + "/" + h.UserID + "/" + h.Pin
	if err := h.Client.Download(ctx, url, f); err != nil {
		f.Close()
		os.Remove(f.Name())
		return fmt.Errorf("netio: download %s: %w", url, err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		f.Close()
		return fmt.Errorf("netio: rewind download scratch file: %w", err)
	}
	h.downloadFile = f
	h.downloadPath = f.Name()
	return nil
}

const downloadChunkSize = 256 * 1024

func (h *Handler) handleDownloadChunk(srv *ipc.Server) error {
	if h.downloadFile == nil {
		return srv.ReplyError("not_prepared", "DownloadChunk received before PrepareDownload completed")
	}
	if h.downloadDone {
		return srv.Reply(ipc.KindRespDownloadChunk, ipc.DownloadChunkResp{Final: true})
	}
	buf := make([]byte, downloadChunkSize)
	n, err := h.downloadFile.Read(buf)
	if n > 0 {
		final := err != nil
		if final {
			h.downloadDone = true
		}
		return srv.Reply(ipc.KindRespDownloadChunk, ipc.DownloadChunkResp{Data: buf[:n], Final: final})
	}
	h.downloadDone = true
	return srv.Reply(ipc.KindRespDownloadChunk, ipc.DownloadChunkResp{Final: true})
}

// Cleanup removes scratch files created during upload/download.
func (h *Handler) Cleanup() {
	if h.downloadFile != nil {
		h.downloadFile.Close()
	}
	if h.downloadPath != "" {
		os.Remove(h.downloadPath)
	}
	if h.uploadPath != "" {
		os.Remove(h.uploadPath)
	}
}
