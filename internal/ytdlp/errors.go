package ytdlp

import (
	"errors"

	apperrors "github.com/Yudee-19/video-downloader/internal/errors"
)

var (
	// ErrURLNotSupported indicates no extractor handles the URL
	ErrURLNotSupported = errors.New("url not supported")

	// ErrVideoUnavailable indicates the media is not available
	ErrVideoUnavailable = errors.New("video unavailable")

	// ErrVideoPrivate indicates the media is private
	ErrVideoPrivate = errors.New("video is private")

	// ErrAgeRestricted indicates the content is age-restricted
	ErrAgeRestricted = errors.New("content is age-restricted")

	// ErrBotCheck indicates the upstream asked to confirm we are not a bot
	ErrBotCheck = errors.New("upstream bot check")

	// ErrNetworkError indicates a network-related error
	ErrNetworkError = errors.New("network error")

	// ErrYtdlpNotFound indicates yt-dlp is not installed
	ErrYtdlpNotFound = errors.New("yt-dlp not found in PATH")

	// ErrDownloadFailed indicates the download failed
	ErrDownloadFailed = errors.New("download failed")

	// ErrInvalidURL indicates the URL format is invalid
	ErrInvalidURL = errors.New("invalid url format")
)

// ResolveError wraps a resolver failure with the URL it concerned
type ResolveError struct {
	URL     string
	Message string
	Err     error
}

func (e *ResolveError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// resolutionError reports a resolver failure as a RESOLUTION_ERROR app error.
func resolutionError(url, message string, err error) error {
	re := &ResolveError{URL: url, Message: message, Err: err}
	return apperrors.ResolutionError(re.Error()).WithCause(re)
}
