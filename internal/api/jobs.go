package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/Yudee-19/video-downloader/internal/download"
	apperrors "github.com/Yudee-19/video-downloader/internal/errors"
)

const maxBodyBytes = 1 << 20

// JobHandlers serves job submission, status and artifact endpoints.
type JobHandlers struct {
	dispatcher *download.Dispatcher
	tracker    *download.Tracker
	service    *download.Service
}

// NewJobHandlers creates job handlers.
func NewJobHandlers(d *download.Dispatcher, t *download.Tracker, s *download.Service) *JobHandlers {
	return &JobHandlers{dispatcher: d, tracker: t, service: s}
}

// SubmitResponse is returned by POST /download.
type SubmitResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

// BatchSubmitResponse is returned by POST /batch-download.
type BatchSubmitResponse struct {
	BatchID string   `json:"batch_id"`
	JobIDs  []string `json:"job_ids"`
	Message string   `json:"message"`
}

// JobStatusResponse is the public projection of a job record.
type JobStatusResponse struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	Progress  string    `json:"progress"`
	Ready     bool      `json:"ready"`
	Filename  string    `json:"filename,omitempty"`
	Title     string    `json:"title,omitempty"`
	Error     string    `json:"error,omitempty"`
	RemoteURL string    `json:"remote_url,omitempty"`
	BatchID   string    `json:"batch_id,omitempty"`
	SourceURL string    `json:"source_url"`
	Platform  string    `json:"platform,omitempty"`
	StartTime string    `json:"start_time,omitempty"`
	EndTime   string    `json:"end_time,omitempty"`
	AudioOnly bool      `json:"audio_only"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BatchDownload is one member of a batch status response.
type BatchDownload struct {
	JobID     string `json:"job_id"`
	URL       string `json:"url"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
	Status    string `json:"status"`
	Progress  string `json:"progress"`
	Filename  string `json:"filename,omitempty"`
	Error     string `json:"error,omitempty"`
	Ready     bool   `json:"ready"`
	RemoteURL string `json:"remote_url,omitempty"`
}

// BatchStatusResponse aggregates the members of a batch.
type BatchStatusResponse struct {
	BatchID    string          `json:"batch_id"`
	Total      int             `json:"total"`
	Completed  int             `json:"completed"`
	Failed     int             `json:"failed"`
	InProgress int             `json:"in_progress"`
	CreatedAt  time.Time       `json:"created_at"`
	Downloads  []BatchDownload `json:"downloads"`
}

// MessageResponse acknowledges a cleanup.
type MessageResponse struct {
	Message string `json:"message"`
	Cleaned *int   `json:"cleaned,omitempty"`
}

func projectJob(job *download.JobRecord) JobStatusResponse {
	return JobStatusResponse{
		JobID:     job.ID,
		Status:    string(job.Status),
		Progress:  job.Progress,
		Ready:     job.Ready,
		Filename:  job.Filename,
		Title:     job.Title,
		Error:     job.Error,
		RemoteURL: job.RemoteURL,
		BatchID:   job.BatchID,
		SourceURL: job.SourceURL,
		Platform:  job.Platform,
		StartTime: job.StartTime,
		EndTime:   job.EndTime,
		AudioOnly: job.AudioOnly,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
}

// decodeBody reads a bounded JSON body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.InvalidInput("request body is required")
		}
		return apperrors.InvalidInput("invalid request body").WithCause(err)
	}
	return nil
}

// Submit handles POST /download
func (h *JobHandlers) Submit(w http.ResponseWriter, r *http.Request) error {
	var req download.SubmitRequest
	if err := decodeBody(w, r, &req); err != nil {
		return err
	}

	id, err := h.dispatcher.SubmitSingle(r.Context(), req)
	if err != nil {
		return err
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, SubmitResponse{
		JobID:   id,
		Message: "Download started",
	})
	return nil
}

// SubmitBatch handles POST /batch-download
func (h *JobHandlers) SubmitBatch(w http.ResponseWriter, r *http.Request) error {
	var req download.BatchRequest
	if err := decodeBody(w, r, &req); err != nil {
		return err
	}

	batch, err := h.dispatcher.SubmitBatch(r.Context(), req)
	if err != nil {
		return err
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, BatchSubmitResponse{
		BatchID: batch.ID,
		JobIDs:  batch.JobIDs,
		Message: fmt.Sprintf("Started batch download of %d videos", len(batch.JobIDs)),
	})
	return nil
}

// Status handles GET /status/{job_id}
func (h *JobHandlers) Status(w http.ResponseWriter, r *http.Request) error {
	job, err := h.service.Job(r.Context(), r.PathValue("job_id"))
	if err != nil {
		return err
	}
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, projectJob(job))
	return nil
}

// BatchStatus handles GET /batch-status/{batch_id}
func (h *JobHandlers) BatchStatus(w http.ResponseWriter, r *http.Request) error {
	status, err := h.tracker.Status(r.Context(), r.PathValue("batch_id"))
	if err != nil {
		return err
	}

	resp := BatchStatusResponse{
		BatchID:    status.BatchID,
		Total:      status.Total,
		Completed:  status.Completed,
		Failed:     status.Failed,
		InProgress: status.InProgress,
		CreatedAt:  status.CreatedAt,
		Downloads:  make([]BatchDownload, 0, len(status.Downloads)),
	}
	for _, job := range status.Downloads {
		resp.Downloads = append(resp.Downloads, BatchDownload{
			JobID:     job.ID,
			URL:       job.SourceURL,
			StartTime: job.StartTime,
			EndTime:   job.EndTime,
			Status:    string(job.Status),
			Progress:  job.Progress,
			Filename:  job.Filename,
			Error:     job.Error,
			Ready:     job.Ready,
			RemoteURL: job.RemoteURL,
		})
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, resp)
	return nil
}

// Video handles GET /video/{job_id}: the local file, or a redirect to the
// uploaded object.
func (h *JobHandlers) Video(w http.ResponseWriter, r *http.Request) error {
	art, err := h.service.Artifact(r.Context(), r.PathValue("job_id"))
	if err != nil {
		return err
	}

	if art.RemoteURL != "" {
		http.Redirect(w, r, art.RemoteURL, http.StatusTemporaryRedirect)
		return nil
	}

	f, err := os.Open(art.LocalPath)
	if err != nil {
		return apperrors.NotFound("file").WithCause(err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return apperrors.InternalError("failed to stat file").WithCause(err)
	}

	name := art.Filename
	if name == "" {
		name = filepath.Base(art.LocalPath)
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", contentDisposition(name))
	http.ServeContent(w, r, name, info.ModTime(), f)
	return nil
}

// Cleanup handles DELETE /cleanup/{job_id}
func (h *JobHandlers) Cleanup(w http.ResponseWriter, r *http.Request) error {
	if err := h.service.Cleanup(r.Context(), r.PathValue("job_id")); err != nil {
		return err
	}
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, MessageResponse{
		Message: "File cleaned up successfully",
	})
	return nil
}

// BatchCleanup handles DELETE /batch-cleanup/{batch_id}
func (h *JobHandlers) BatchCleanup(w http.ResponseWriter, r *http.Request) error {
	cleaned, err := h.service.BatchCleanup(r.Context(), r.PathValue("batch_id"))
	if err != nil {
		return err
	}
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, MessageResponse{
		Message: fmt.Sprintf("Cleaned up %d files from batch", cleaned),
		Cleaned: &cleaned,
	})
	return nil
}
