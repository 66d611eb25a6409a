package validators

import "testing"

func TestYouTubeValidator_CanHandle(t *testing.T) {
	v := NewYouTubeValidator()

	handled := []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://YouTube.com/watch?v=dQw4w9WgXcQ",
		"https://m.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://music.youtube.com/watch?v=dQw4w9WgXcQ",
		"http://youtu.be/dQw4w9WgXcQ",
	}
	for _, u := range handled {
		if !v.CanHandle(u) {
			t.Errorf("CanHandle(%q) = false, want true", u)
		}
	}

	notHandled := []string{
		"https://www.instagram.com/reel/CxYz123AbC/",
		"https://youtube.com.evil.example/watch?v=dQw4w9WgXcQ",
		"https://vimeo.com/123",
		"",
	}
	for _, u := range notHandled {
		if v.CanHandle(u) {
			t.Errorf("CanHandle(%q) = true, want false", u)
		}
	}
}

func TestYouTubeValidator_ValidForms(t *testing.T) {
	v := NewYouTubeValidator()
	const canonical = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

	tests := []struct {
		url       string
		mediaType string
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "video"},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42&list=PLx", "video"},
		{"https://youtu.be/dQw4w9WgXcQ?si=share", "video"},
		{"https://www.youtube.com/shorts/dQw4w9WgXcQ", "short"},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ?autoplay=1", "video"},
		{"https://www.youtube.com/v/dQw4w9WgXcQ", "video"},
		{"https://www.youtube.com/live/dQw4w9WgXcQ", "live"},
		{"https://music.youtube.com/watch?v=dQw4w9WgXcQ", "video"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			res := v.Validate(tt.url)
			if !res.Valid {
				t.Fatalf("Validate(%q) invalid: %s", tt.url, res.Error)
			}
			if res.Platform != PlatformYouTube || res.MediaID != "dQw4w9WgXcQ" {
				t.Errorf("got platform %q id %q", res.Platform, res.MediaID)
			}
			if res.MediaType != tt.mediaType {
				t.Errorf("MediaType = %q, want %q", res.MediaType, tt.mediaType)
			}
			if res.Canonical != canonical {
				t.Errorf("Canonical = %q, want %q", res.Canonical, canonical)
			}
		})
	}
}

func TestYouTubeValidator_Rejects(t *testing.T) {
	v := NewYouTubeValidator()

	tests := []struct {
		url    string
		reason string
	}{
		{"https://www.youtube.com/", "could not extract video ID from URL"},
		{"https://www.youtube.com/watch?v=", "could not extract video ID from URL"},
		{"https://www.youtube.com/@channel/videos", "could not extract video ID from URL"},
		{"https://www.youtube.com/watch?v=short", "invalid video ID format"},
		{"https://youtu.be/has+plus+sign", "invalid video ID format"},
		{"ftp://www.youtube.com/watch?v=dQw4w9WgXcQ", "invalid URL scheme"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			res := v.Validate(tt.url)
			if res.Valid {
				t.Fatalf("Validate(%q) valid, want %q", tt.url, tt.reason)
			}
			if res.Error != tt.reason {
				t.Errorf("Error = %q, want %q", res.Error, tt.reason)
			}
		})
	}
}

func TestYouTubeValidator_AddsMissingScheme(t *testing.T) {
	res := NewYouTubeValidator().Validate("  youtu.be/dQw4w9WgXcQ ")
	if !res.Valid {
		t.Fatalf("invalid: %s", res.Error)
	}
	if res.URL != "https://youtu.be/dQw4w9WgXcQ" {
		t.Errorf("URL = %q", res.URL)
	}
}
