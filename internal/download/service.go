package download

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/Yudee-19/video-downloader/internal/errors"
	"github.com/Yudee-19/video-downloader/internal/logger"
)

// Artifact locates a finished job's output.
type Artifact struct {
	Filename  string
	LocalPath string
	RemoteURL string
}

// Service serves finished artifacts and cleans them up.
type Service struct {
	records    *Records
	scratchDir string
	log        *logger.Logger
}

// NewService creates a Service.
func NewService(records *Records, scratchDir string) *Service {
	return &Service{
		records:    records,
		scratchDir: scratchDir,
		log:        logger.Default().WithComponent("download"),
	}
}

// Job returns the job record.
func (s *Service) Job(ctx context.Context, jobID string) (*JobRecord, error) {
	return s.records.GetJob(ctx, jobID)
}

// Artifact returns where the job's output can be fetched from.
func (s *Service) Artifact(ctx context.Context, jobID string) (*Artifact, error) {
	job, err := s.records.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.Ready {
		return nil, apperrors.NotReady("File not ready yet").WithDetails(map[string]any{
			"job_id": jobID,
			"status": job.Status,
		})
	}

	if job.RemoteURL != "" {
		return &Artifact{Filename: job.Filename, RemoteURL: job.RemoteURL}, nil
	}
	if job.LocalPath == "" {
		return nil, apperrors.NotFound("file")
	}
	if _, err := os.Stat(job.LocalPath); err != nil {
		return nil, apperrors.NotFound("file").WithCause(err)
	}
	return &Artifact{Filename: job.Filename, LocalPath: job.LocalPath}, nil
}

// Cleanup deletes the job's local artifact and its record. A second call
// reports NOT_FOUND.
func (s *Service) Cleanup(ctx context.Context, jobID string) error {
	job, err := s.records.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	s.removeArtifact(ctx, job)
	return s.records.DeleteJob(ctx, jobID)
}

// BatchCleanup deletes every member's artifact and record plus the batch
// record, returning how many files were removed.
func (s *Service) BatchCleanup(ctx context.Context, batchID string) (int, error) {
	batch, err := s.records.GetBatch(ctx, batchID)
	if err != nil {
		return 0, err
	}

	cleaned := 0
	for _, id := range batch.JobIDs {
		job, err := s.records.GetJob(ctx, id)
		if err != nil {
			if apperrors.HasCode(err, apperrors.CodeNotFound) {
				s.removeArtifact(ctx, &JobRecord{ID: id})
				continue
			}
			return cleaned, err
		}
		if s.removeArtifact(ctx, job) {
			cleaned++
		}
		if err := s.records.DeleteJob(ctx, id); err != nil {
			s.log.Warn(ctx, "failed to delete job record", map[string]interface{}{"job_id": id, "error": err.Error()})
		}
	}

	if err := s.records.DeleteBatch(ctx, batchID); err != nil {
		return cleaned, err
	}
	return cleaned, nil
}

// removeArtifact deletes the local file and the job's scratch directory.
// Missing files are not an error.
func (s *Service) removeArtifact(ctx context.Context, job *JobRecord) bool {
	removed := false
	if job.LocalPath != "" {
		err := os.Remove(job.LocalPath)
		switch {
		case err == nil:
			removed = true
		case !errors.Is(err, os.ErrNotExist):
			s.log.Warn(ctx, "failed to delete artifact", map[string]interface{}{"path": job.LocalPath, "error": err.Error()})
		}
	}

	if s.scratchDir != "" && job.ID != "" && job.ID != "." && job.ID != ".." && !strings.ContainsAny(job.ID, `/\`) {
		if err := os.RemoveAll(filepath.Join(s.scratchDir, job.ID)); err != nil {
			s.log.Warn(ctx, "failed to delete job directory", map[string]interface{}{"job_id": job.ID, "error": err.Error()})
		}
	}
	return removed
}
