package validators

import (
	"fmt"
	"regexp"
	"strings"
)

// InstagramValidator validates Instagram post, reel and IGTV URLs
type InstagramValidator struct {
	shortcodePattern *regexp.Regexp
}

// NewInstagramValidator creates a new Instagram URL validator
func NewInstagramValidator() *InstagramValidator {
	return &InstagramValidator{
		shortcodePattern: regexp.MustCompile(`^[a-zA-Z0-9_-]{5,40}$`),
	}
}

func (v *InstagramValidator) Platform() Platform {
	return PlatformInstagram
}

// CanHandle returns true for instagram.com and instagr.am hosts
func (v *InstagramValidator) CanHandle(rawURL string) bool {
	switch hostOf(rawURL) {
	case "instagram.com", "instagr.am":
		return true
	}
	return false
}

// Validate extracts the media shortcode from an Instagram URL.
func (v *InstagramValidator) Validate(rawURL string) ValidationResult {
	parsed, rawURL, reason := parseHTTP(rawURL)
	if reason != "" {
		return invalid(PlatformInstagram, rawURL, reason)
	}

	// /p/<code>, /reel/<code>, /reels/<code>, /tv/<code>, optionally
	// preceded by a username segment
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	var kind, code string
scan:
	for i := 0; i+1 < len(segments); i++ {
		switch segments[i] {
		case "p":
			kind, code = "post", segments[i+1]
		case "reel", "reels":
			kind, code = "reel", segments[i+1]
		case "tv":
			kind, code = "tv", segments[i+1]
		default:
			continue
		}
		break scan
	}

	if code == "" {
		return invalid(PlatformInstagram, rawURL, "could not extract media shortcode from URL")
	}
	if !v.shortcodePattern.MatchString(code) {
		res := invalid(PlatformInstagram, rawURL, "invalid media shortcode")
		res.MediaID = code
		return res
	}

	canonicalPath := "p"
	if kind != "post" {
		canonicalPath = kind
	}

	return ValidationResult{
		Valid:     true,
		Platform:  PlatformInstagram,
		MediaID:   code,
		MediaType: kind,
		URL:       rawURL,
		Canonical: fmt.Sprintf("https://www.instagram.com/%s/%s/", canonicalPath, code),
	}
}
