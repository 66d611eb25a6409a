package stream

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/Yudee-19/video-downloader/internal/errors"
	"github.com/Yudee-19/video-downloader/internal/logger"
)

// Handler serves GET /stream-download.
type Handler struct {
	pipeline *Pipeline
	log      *logger.Logger
}

// NewHandler creates a stream handler.
func NewHandler(p *Pipeline) *Handler {
	return &Handler{
		pipeline: p,
		log:      logger.Default().WithComponent("stream.handler"),
	}
}

// Download handles GET /stream-download?url=...
// Headers are only written once the media resolved and the transcoder
// started, so every failure before that is a regular JSON error.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := apperrors.GetRequestID(ctx)

	url := r.URL.Query().Get("url")
	if url == "" {
		apperrors.WriteError(w, requestID, apperrors.InvalidInput("url query parameter is required"))
		return
	}

	sess, err := h.pipeline.Open(ctx, url)
	if err != nil {
		h.log.Error(ctx, "failed to open stream", err, map[string]interface{}{"url": url})
		apperrors.WriteError(w, requestID, err)
		return
	}
	defer sess.Close()

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.mp4"`, SafeFilename(sess.Title)))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	for {
		chunk, err := sess.Next()
		if len(chunk) > 0 {
			if _, werr := w.Write(chunk); werr != nil {
				// client went away; Close cancels the session
				return
			}
			rc.Flush()
		}
		if err == nil {
			continue
		}
		if !errors.Is(err, io.EOF) && ctx.Err() == nil {
			// the status line is already out; all we can do is cut the body short
			h.log.Error(ctx, "stream aborted", err, map[string]interface{}{
				"url":   url,
				"bytes": sess.BytesSent(),
			})
		}
		return
	}
}
