package validators

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// YouTubeValidator validates YouTube URLs
type YouTubeValidator struct {
	// videoIDPattern matches YouTube video IDs (11 characters, alphanumeric with - and _)
	videoIDPattern *regexp.Regexp
}

// NewYouTubeValidator creates a new YouTube URL validator
func NewYouTubeValidator() *YouTubeValidator {
	return &YouTubeValidator{
		videoIDPattern: regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`),
	}
}

func (v *YouTubeValidator) Platform() Platform {
	return PlatformYouTube
}

// CanHandle returns true if the URL appears to be a YouTube URL
func (v *YouTubeValidator) CanHandle(rawURL string) bool {
	switch hostOf(rawURL) {
	case "youtube.com", "youtu.be", "music.youtube.com":
		return true
	}
	return false
}

// Validate validates a YouTube URL and extracts the video ID
func (v *YouTubeValidator) Validate(rawURL string) ValidationResult {
	parsed, rawURL, reason := parseHTTP(rawURL)
	if reason != "" {
		return invalid(PlatformYouTube, rawURL, reason)
	}

	var videoID, mediaType string
	switch normalizeHost(parsed.Hostname()) {
	case "youtu.be":
		videoID, mediaType = firstSegment(parsed.Path, "/"), "video"
	case "youtube.com", "music.youtube.com":
		videoID, mediaType = v.extractFromYouTubeCom(parsed)
	default:
		return invalid(PlatformYouTube, rawURL, "not a YouTube URL")
	}

	if videoID == "" {
		return invalid(PlatformYouTube, rawURL, "could not extract video ID from URL")
	}
	if !v.videoIDPattern.MatchString(videoID) {
		res := invalid(PlatformYouTube, rawURL, "invalid video ID format")
		res.MediaID = videoID
		return res
	}

	return ValidationResult{
		Valid:     true,
		Platform:  PlatformYouTube,
		MediaID:   videoID,
		MediaType: mediaType,
		URL:       rawURL,
		Canonical: fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID),
	}
}

func (v *YouTubeValidator) extractFromYouTubeCom(parsed *url.URL) (videoID, mediaType string) {
	path := parsed.Path
	switch {
	case strings.HasPrefix(path, "/watch"):
		return parsed.Query().Get("v"), "video"
	case strings.HasPrefix(path, "/shorts/"):
		return firstSegment(path, "/shorts/"), "short"
	case strings.HasPrefix(path, "/embed/"):
		return firstSegment(path, "/embed/"), "video"
	case strings.HasPrefix(path, "/v/"):
		return firstSegment(path, "/v/"), "video"
	case strings.HasPrefix(path, "/live/"):
		return firstSegment(path, "/live/"), "live"
	}
	return "", ""
}
