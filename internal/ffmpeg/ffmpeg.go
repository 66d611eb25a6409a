// Package ffmpeg drives the ffmpeg binary for stream-copy trimming and for
// remuxing resolved media URLs into a fragmented MP4 on stdout.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/Yudee-19/video-downloader/internal/errors"
	"github.com/Yudee-19/video-downloader/internal/logger"
)

// ErrFFmpegNotFound indicates ffmpeg is not installed
var ErrFFmpegNotFound = errors.New("ffmpeg not found in PATH")

// Config configures the transcoder.
type Config struct {
	BinaryPath string
	// StreamAudioCodec is the audio codec used when remuxing for streaming
	StreamAudioCodec string
	// KillGrace is how long a terminated process gets before SIGKILL
	KillGrace time.Duration
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() Config {
	return Config{
		BinaryPath:       "ffmpeg",
		StreamAudioCodec: "aac",
		KillGrace:        2 * time.Second,
	}
}

// Transcoder runs ffmpeg subprocesses.
type Transcoder struct {
	cfg Config
	log *logger.Logger
}

// New creates a transcoder after locating the binary.
func New(cfg Config) (*Transcoder, error) {
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = "ffmpeg"
	}
	if cfg.StreamAudioCodec == "" {
		cfg.StreamAudioCodec = "aac"
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = 2 * time.Second
	}
	path, err := exec.LookPath(cfg.BinaryPath)
	if err != nil {
		return nil, ErrFFmpegNotFound
	}
	cfg.BinaryPath = path

	return &Transcoder{
		cfg: cfg,
		log: logger.Default().WithComponent("ffmpeg"),
	}, nil
}

// BinaryPath returns the resolved executable, for health checks.
func (t *Transcoder) BinaryPath() string { return t.cfg.BinaryPath }

// TrimmedPath returns where Trim writes the trimmed copy of path.
func TrimmedPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_trimmed" + ext
}

// TrimCommand builds the stream-copy trim command for in.
func (t *Transcoder) TrimCommand(in, start, end string) *Command {
	return NewCommandBuilder(t.cfg.BinaryPath).
		HideBanner().
		Overwrite().
		Input(in).
		Seek(start, end).
		Codec("copy").
		Output(TrimmedPath(in)).
		Build()
}

// Trim writes a time-bounded stream copy of in next to it and returns its
// path. On failure the partial output is removed.
func (t *Transcoder) Trim(ctx context.Context, in, start, end string) (string, error) {
	if start == "" && end == "" {
		return "", apperrors.InvalidInput("trim requires a start or end time")
	}

	cmd := t.TrimCommand(in, start, end)
	out := TrimmedPath(in)

	var stderr bytes.Buffer
	proc := exec.CommandContext(ctx, cmd.Binary, cmd.Args...)
	proc.Stderr = &stderr

	t.log.Debug(ctx, "trimming", map[string]interface{}{"input": in, "start": start, "end": end})

	if err := proc.Run(); err != nil {
		os.Remove(out)
		msg := lastLine(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", apperrors.TranscodeError("trim failed: " + msg).WithCause(err)
	}

	if fi, err := os.Stat(out); err != nil || fi.Size() == 0 {
		os.Remove(out)
		return "", apperrors.TranscodeError("trim produced no output")
	}
	return out, nil
}

// StreamCommand builds the remux-to-stdout command. Two inputs are mapped
// to the output's video and audio tracks respectively.
func (t *Transcoder) StreamCommand(inputs []string, headers map[string]string) *Command {
	b := NewCommandBuilder(t.cfg.BinaryPath).HideBanner()
	for _, in := range inputs {
		b.Reconnect().Headers(headers).Input(in)
	}
	if len(inputs) == 2 {
		b.Map("0:v").Map("1:a")
	}
	return b.VideoCodec("copy").
		AudioCodec(t.cfg.StreamAudioCodec).
		FragmentedMP4().
		Output("-").
		Build()
}

// StartStream launches ffmpeg writing a fragmented MP4 to its stdout. The
// process is terminated when ctx is canceled or Terminate is called.
func (t *Transcoder) StartStream(ctx context.Context, inputs []string, headers map[string]string) (*Process, error) {
	if len(inputs) == 0 || len(inputs) > 2 {
		return nil, fmt.Errorf("ffmpeg: expected 1 or 2 inputs, got %d", len(inputs))
	}
	cmd := t.StreamCommand(inputs, headers)
	stderr := t.log.Writer(ctx, logger.LevelWarn, "ffmpeg stderr", map[string]interface{}{"inputs": len(inputs)})
	return start(ctx, cmd, stderr, t.cfg.KillGrace, t.log)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
