package validators

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRegistry_Validate(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name         string
		url          string
		wantValid    bool
		wantPlatform Platform
	}{
		{
			name:         "YouTube URL",
			url:          "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			wantValid:    true,
			wantPlatform: PlatformYouTube,
		},
		{
			name:         "Instagram reel",
			url:          "https://www.instagram.com/reel/Cabc123XYZ/",
			wantValid:    true,
			wantPlatform: PlatformInstagram,
		},
		{
			name:         "any other site",
			url:          "https://example.com/v1",
			wantValid:    true,
			wantPlatform: PlatformGeneric,
		},
		{
			name:         "broken YouTube URL is not rescued by generic",
			url:          "https://www.youtube.com/watch?v=abc",
			wantValid:    false,
			wantPlatform: PlatformYouTube,
		},
		{
			name:         "ftp scheme",
			url:          "ftp://example.com/file",
			wantValid:    false,
			wantPlatform: PlatformGeneric,
		},
		{
			name:         "YouTube URL without scheme",
			url:          "youtube.com/watch?v=dQw4w9WgXcQ",
			wantValid:    true,
			wantPlatform: PlatformYouTube,
		},
		{
			name:         "other site without scheme",
			url:          "example.com/v1",
			wantValid:    true,
			wantPlatform: PlatformGeneric,
		},
		{
			name:         "not a URL",
			url:          "badurl",
			wantValid:    false,
			wantPlatform: PlatformUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := r.Validate(tt.url)

			if result.Valid != tt.wantValid {
				t.Errorf("Validate(%q).Valid = %v, want %v (error: %s)", tt.url, result.Valid, tt.wantValid, result.Error)
			}
			if result.Platform != tt.wantPlatform {
				t.Errorf("Validate(%q).Platform = %q, want %q", tt.url, result.Platform, tt.wantPlatform)
			}
		})
	}
}

func TestRegistry_SupportedPlatforms(t *testing.T) {
	r := DefaultRegistry()
	platforms := r.SupportedPlatforms()

	if len(platforms) != 2 {
		t.Fatalf("SupportedPlatforms() returned %d platforms, want 2", len(platforms))
	}
	if platforms[0] != PlatformYouTube || platforms[1] != PlatformInstagram {
		t.Errorf("SupportedPlatforms() = %v", platforms)
	}
}

func TestHandlers_ValidateURL(t *testing.T) {
	h := NewHandlers(DefaultRegistry())

	tests := []struct {
		query      string
		wantStatus int
	}{
		{"?url=https://youtu.be/dQw4w9WgXcQ", http.StatusOK},
		{"?url=https://www.instagram.com/", http.StatusUnprocessableEntity},
		{"", http.StatusBadRequest},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/validate"+tt.query, nil)
		rec := httptest.NewRecorder()
		h.ValidateURL(rec, req)

		if rec.Code != tt.wantStatus {
			t.Errorf("GET /validate%s status = %d, want %d", tt.query, rec.Code, tt.wantStatus)
		}
	}
}

func TestHandlers_GetSupportedPlatforms(t *testing.T) {
	h := NewHandlers(DefaultRegistry())
	rec := httptest.NewRecorder()
	h.GetSupportedPlatforms(rec, httptest.NewRequest(http.MethodGet, "/validate/platforms", nil))

	var resp SupportedPlatformsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Platforms) != 2 {
		t.Errorf("platforms = %v", resp.Platforms)
	}
}
