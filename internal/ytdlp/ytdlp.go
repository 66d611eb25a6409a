// Package ytdlp resolves source URLs into direct media URLs, or downloads
// them to disk, by driving the yt-dlp binary.
package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Yudee-19/video-downloader/internal/logger"
)

// Mode selects between metadata-only resolution and a full download.
type Mode string

const (
	ModeSimulate Mode = "simulate"
	ModeDownload Mode = "download"
)

// DefaultUserAgents is the rotation pool used when none is configured.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:118.0) Gecko/20100101 Firefox/118.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36 Edg/121.0.0.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// Config holds configuration for the resolver
type Config struct {
	// BinaryPath is the yt-dlp executable (default: "yt-dlp")
	BinaryPath string
	// VideoFormat is the -f selector for video downloads
	VideoFormat string
	// AudioFormat is the -f selector for audio-only downloads and streams
	AudioFormat string
	// StreamFormat is the -f selector used when resolving for streaming
	StreamFormat string
	// AudioCodec, AudioQuality and AudioSampleRate shape extracted audio
	AudioCodec      string
	AudioQuality    string
	AudioSampleRate int
	// MergeFormat is the container split video+audio downloads are merged into
	MergeFormat string
	// Retries and FragmentRetries bound yt-dlp's own network retries
	Retries         int
	FragmentRetries int
	// CookiesFile is a Netscape cookies.txt; ignored if missing
	CookiesFile string
	// UserAgents is the pool a User-Agent is drawn from for every call
	UserAgents []string
	// AcceptLanguage is sent with every request when set
	AcceptLanguage string
	// ExtractorArgs is passed through as --extractor-args when set
	ExtractorArgs string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() Config {
	return Config{
		BinaryPath:      "yt-dlp",
		VideoFormat:     "bestvideo+bestaudio/best",
		AudioFormat:     "bestaudio/best",
		StreamFormat:    "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best",
		AudioCodec:      "mp3",
		AudioQuality:    "192",
		AudioSampleRate: 44100,
		MergeFormat:     "mp4",
		Retries:         5,
		FragmentRetries: 5,
		UserAgents:      DefaultUserAgents,
		AcceptLanguage:  "en-US,en;q=0.9",
	}
}

// Validate checks the config for values yt-dlp would reject.
func (c *Config) Validate() error {
	if c.BinaryPath == "" {
		return errors.New("ytdlp: binary path is required")
	}
	if c.VideoFormat == "" || c.AudioFormat == "" || c.StreamFormat == "" {
		return errors.New("ytdlp: format selectors are required")
	}
	if c.Retries < 0 || c.FragmentRetries < 0 {
		return errors.New("ytdlp: retries must not be negative")
	}
	switch c.AudioCodec {
	case "mp3", "m4a", "aac", "opus", "vorbis", "flac", "wav":
	default:
		return fmt.Errorf("ytdlp: unsupported audio codec %q", c.AudioCodec)
	}
	if c.AudioSampleRate < 0 {
		return errors.New("ytdlp: audio sample rate must not be negative")
	}
	if c.MergeFormat == "" {
		return errors.New("ytdlp: merge format is required")
	}
	return nil
}

// Request describes one resolution.
type Request struct {
	URL       string
	Mode      Mode
	AudioOnly bool
	// OutputDir receives the file in ModeDownload
	OutputDir string
}

// Resolution is what a resolve call produced.
type Resolution struct {
	// StreamURLs holds one muxed URL or a video URL followed by an audio URL
	StreamURLs []string
	// Headers must accompany downstream fetches of StreamURLs
	Headers map[string]string
	Title   string
	// FilePath is the downloaded artifact in ModeDownload
	FilePath string
}

// runner executes the binary and returns its stdout and stderr.
type runner func(ctx context.Context, name string, args ...string) (stdout []byte, stderr string, err error)

// Resolver wraps yt-dlp
type Resolver struct {
	cfg Config
	run runner
	log *logger.Logger
	now func() time.Time
}

// New creates a resolver after validating cfg and locating the binary.
func New(cfg Config) (*Resolver, error) {
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = DefaultUserAgents
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := exec.LookPath(cfg.BinaryPath); err != nil {
		return nil, ErrYtdlpNotFound
	}
	return newResolver(cfg, execRunner), nil
}

func newResolver(cfg Config, run runner) *Resolver {
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = DefaultUserAgents
	}
	return &Resolver{
		cfg: cfg,
		run: run,
		log: logger.Default().WithComponent("ytdlp"),
		now: time.Now,
	}
}

// BinaryPath returns the configured executable, for health checks.
func (r *Resolver) BinaryPath() string { return r.cfg.BinaryPath }

func execRunner(ctx context.Context, name string, args ...string) ([]byte, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.String(), err
}

// Resolve runs yt-dlp for req. Failures are RESOLUTION_ERROR app errors
// wrapping a ResolveError.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Resolution, error) {
	if err := validateURL(req.URL); err != nil {
		return nil, err
	}

	headers, err := r.requestHeaders()
	if err != nil {
		return nil, resolutionError(req.URL, "failed to read cookies", err)
	}

	switch req.Mode {
	case ModeSimulate, "":
		return r.simulate(ctx, req, headers)
	case ModeDownload:
		return r.download(ctx, req, headers)
	default:
		return nil, fmt.Errorf("ytdlp: unknown mode %q", req.Mode)
	}
}

// requestHeaders picks a user agent and builds the identity headers shared
// by yt-dlp and downstream fetches.
func (r *Resolver) requestHeaders() (map[string]string, error) {
	headers := map[string]string{
		"User-Agent": r.cfg.UserAgents[rand.IntN(len(r.cfg.UserAgents))],
	}
	if r.cfg.AcceptLanguage != "" {
		headers["Accept-Language"] = r.cfg.AcceptLanguage
	}

	cookie, err := CookieHeader(r.cfg.CookiesFile, r.now())
	if err != nil {
		return nil, err
	}
	if cookie != "" {
		headers["Cookie"] = cookie
	}
	return headers, nil
}

func (r *Resolver) commonArgs(headers map[string]string) []string {
	args := []string{
		"--no-playlist",
		"--no-warnings",
		"--user-agent", headers["User-Agent"],
	}
	if lang := headers["Accept-Language"]; lang != "" {
		args = append(args, "--add-header", "Accept-Language:"+lang)
	}
	if r.cfg.CookiesFile != "" {
		if _, err := os.Stat(r.cfg.CookiesFile); err == nil {
			args = append(args, "--cookies", r.cfg.CookiesFile)
		}
	}
	if r.cfg.ExtractorArgs != "" {
		args = append(args, "--extractor-args", r.cfg.ExtractorArgs)
	}
	return args
}

func (r *Resolver) simulate(ctx context.Context, req Request, headers map[string]string) (*Resolution, error) {
	format := r.cfg.StreamFormat
	if req.AudioOnly {
		format = r.cfg.AudioFormat
	}

	args := append(r.commonArgs(headers),
		"--dump-single-json",
		"--no-download",
		"-f", format,
		req.URL,
	)

	stdout, stderr, err := r.run(ctx, r.cfg.BinaryPath, args...)
	if err != nil {
		return nil, r.categorizeError(req.URL, err, stderr)
	}

	var info Info
	if err := json.Unmarshal(stdout, &info); err != nil {
		return nil, resolutionError(req.URL, "failed to parse metadata", err)
	}

	merged := info.Headers()
	for k, v := range headers {
		merged[k] = v
	}

	return &Resolution{
		StreamURLs: info.StreamURLs(),
		Headers:    merged,
		Title:      CleanTitle(info.Title),
	}, nil
}

func (r *Resolver) download(ctx context.Context, req Request, headers map[string]string) (*Resolution, error) {
	if req.OutputDir == "" {
		return nil, errors.New("ytdlp: output dir is required for downloads")
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	args := append(r.commonArgs(headers),
		"--no-simulate",
		"--newline",
		"--retries", strconv.Itoa(r.cfg.Retries),
		"--fragment-retries", strconv.Itoa(r.cfg.FragmentRetries),
		"--output", filepath.Join(req.OutputDir, "%(title)s.%(ext)s"),
		"--print", "after_move:title",
		"--print", "after_move:filepath",
	)

	if req.AudioOnly {
		args = append(args,
			"-f", r.cfg.AudioFormat,
			"--extract-audio",
			"--audio-format", r.cfg.AudioCodec,
			"--audio-quality", audioQuality(r.cfg.AudioQuality),
		)
		if r.cfg.AudioSampleRate > 0 {
			args = append(args, "--postprocessor-args", "ExtractAudio:-ar "+strconv.Itoa(r.cfg.AudioSampleRate))
		}
	} else {
		args = append(args,
			"-f", r.cfg.VideoFormat,
			"--merge-output-format", r.cfg.MergeFormat,
		)
	}
	args = append(args, req.URL)

	r.log.Debug(ctx, "running yt-dlp download", map[string]interface{}{"url": req.URL, "audio_only": req.AudioOnly})

	stdout, stderr, err := r.run(ctx, r.cfg.BinaryPath, args...)
	if err != nil {
		return nil, r.categorizeError(req.URL, err, stderr)
	}

	title, path := parsePrinted(stdout)
	if path == "" {
		path, err = newestFile(req.OutputDir)
		if err != nil {
			return nil, resolutionError(req.URL, "output file not found", ErrDownloadFailed)
		}
	}
	if _, err := os.Stat(path); err != nil {
		return nil, resolutionError(req.URL, "output file not found", ErrDownloadFailed)
	}

	return &Resolution{
		Headers:  headers,
		Title:    CleanTitle(title),
		FilePath: path,
	}, nil
}

// audioQuality turns a bitrate like "192" into yt-dlp's "192K"; values up
// to 10 are yt-dlp's VBR scale and pass through.
func audioQuality(q string) string {
	if n, err := strconv.Atoi(q); err == nil && n > 10 {
		return q + "K"
	}
	return q
}

// parsePrinted reads the title and filepath lines produced by --print.
func parsePrinted(stdout []byte) (title, path string) {
	var lines []string
	for _, line := range strings.Split(string(stdout), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	switch len(lines) {
	case 0:
		return "", ""
	case 1:
		return "", lines[0]
	default:
		return lines[len(lines)-2], lines[len(lines)-1]
	}
}

func newestFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var newest string
	var newestMod time.Time
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".part") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = filepath.Join(dir, e.Name())
			newestMod = info.ModTime()
		}
	}
	if newest == "" {
		return "", os.ErrNotExist
	}
	return newest, nil
}

// validateURL checks the URL is absolute http(s)
func validateURL(sourceURL string) error {
	parsed, err := url.Parse(sourceURL)
	if err != nil || parsed.Host == "" {
		return resolutionError(sourceURL, "invalid url", ErrInvalidURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return resolutionError(sourceURL, "invalid url scheme", ErrInvalidURL)
	}
	return nil
}

// categorizeError converts yt-dlp failures into specific error types
func (r *Resolver) categorizeError(sourceURL string, err error, stderr string) error {
	if errors.Is(err, exec.ErrNotFound) {
		return resolutionError(sourceURL, "yt-dlp unavailable", ErrYtdlpNotFound)
	}

	stderrLower := strings.ToLower(stderr)

	switch {
	case strings.Contains(stderrLower, "video unavailable") ||
		strings.Contains(stderrLower, "this video is unavailable"):
		return resolutionError(sourceURL, "video unavailable", ErrVideoUnavailable)

	case strings.Contains(stderrLower, "private video") ||
		strings.Contains(stderrLower, "is private"):
		return resolutionError(sourceURL, "video is private", ErrVideoPrivate)

	case strings.Contains(stderrLower, "age-restricted") ||
		strings.Contains(stderrLower, "sign in to confirm your age"):
		return resolutionError(sourceURL, "content is age-restricted", ErrAgeRestricted)

	case strings.Contains(stderrLower, "not a bot"):
		return resolutionError(sourceURL, "upstream requested a bot check", ErrBotCheck)

	case strings.Contains(stderrLower, "unsupported url") ||
		strings.Contains(stderrLower, "no suitable extractor"):
		return resolutionError(sourceURL, "url not supported", ErrURLNotSupported)

	case strings.Contains(stderrLower, "unable to download") ||
		strings.Contains(stderrLower, "connection") ||
		strings.Contains(stderrLower, "network"):
		return resolutionError(sourceURL, "network error", ErrNetworkError)

	default:
		msg := lastLine(stderr)
		if msg == "" {
			msg = err.Error()
		}
		return resolutionError(sourceURL, "download failed", fmt.Errorf("%w: %s", ErrDownloadFailed, msg))
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
