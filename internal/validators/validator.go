// Package validators checks submitted source URLs and detects which
// platform they belong to.
package validators

import (
	"net/url"
	"strings"
)

// Platform identifies the site a URL belongs to
type Platform string

const (
	PlatformYouTube   Platform = "youtube"
	PlatformInstagram Platform = "instagram"
	PlatformGeneric   Platform = "generic"
	PlatformUnknown   Platform = "unknown"
)

// DisplayName is the human-readable platform name.
func (p Platform) DisplayName() string {
	switch p {
	case PlatformYouTube:
		return "YouTube"
	case PlatformInstagram:
		return "Instagram"
	case PlatformGeneric:
		return "Generic"
	}
	return "Unknown"
}

// ValidationResult contains the result of URL validation
type ValidationResult struct {
	Valid     bool     `json:"valid"`
	Platform  Platform `json:"platform"`
	MediaID   string   `json:"media_id,omitempty"`
	MediaType string   `json:"media_type,omitempty"` // video, short, live, post, reel
	URL       string   `json:"url"`
	Canonical string   `json:"canonical_url,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Validator defines the interface for URL validators
type Validator interface {
	// Platform returns the platform this validator handles
	Platform() Platform

	// CanHandle returns true if this validator can handle the given URL
	CanHandle(url string) bool

	// Validate validates the URL and extracts relevant information
	Validate(url string) ValidationResult
}

func invalid(p Platform, rawURL, reason string) ValidationResult {
	return ValidationResult{Platform: p, URL: rawURL, Error: reason}
}

// parseHTTP trims and parses rawURL, defaulting a missing scheme to https.
// The returned string is the normalized URL.
func parseHTTP(rawURL string) (*url.URL, string, string) {
	rawURL = strings.TrimSpace(rawURL)
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, rawURL, "invalid URL format"
	}
	if parsed.Scheme == "" {
		parsed, err = url.Parse("https://" + rawURL)
		if err != nil {
			return nil, rawURL, "invalid URL format"
		}
		rawURL = parsed.String()
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, rawURL, "invalid URL scheme"
	}
	if parsed.Host == "" {
		return nil, rawURL, "missing host"
	}
	return parsed, rawURL, ""
}

// hostOf lowercases the host and drops www. and m. prefixes. A missing
// scheme defaults to https, as in parseHTTP, but only when the first
// segment looks like a domain name.
func hostOf(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if parsed.Scheme == "" && parsed.Host == "" {
		parsed, err = url.Parse("https://" + rawURL)
		if err != nil || !strings.Contains(parsed.Hostname(), ".") {
			return ""
		}
	}
	return normalizeHost(parsed.Hostname())
}

func normalizeHost(host string) string {
	host = strings.ToLower(host)
	host = strings.TrimPrefix(host, "www.")
	return strings.TrimPrefix(host, "m.")
}

// firstSegment returns the first path segment after prefix.
func firstSegment(path, prefix string) string {
	id := strings.TrimPrefix(path, prefix)
	if idx := strings.Index(id, "/"); idx != -1 {
		id = id[:idx]
	}
	return id
}
