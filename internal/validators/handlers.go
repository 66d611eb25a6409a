package validators

import (
	"net/http"

	apperrors "github.com/Yudee-19/video-downloader/internal/errors"
)

// Handlers provides HTTP handlers for URL validation
type Handlers struct {
	registry *Registry
}

// NewHandlers creates a new Handlers instance
func NewHandlers(registry *Registry) *Handlers {
	return &Handlers{
		registry: registry,
	}
}

// SupportedPlatformsResponse lists the recognised platforms
type SupportedPlatformsResponse struct {
	Platforms []Platform `json:"platforms"`
}

// ValidateURL handles GET /validate?url=...
func (h *Handlers) ValidateURL(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.GetRequestID(r.Context())

	url := r.URL.Query().Get("url")
	if url == "" {
		apperrors.WriteError(w, requestID, apperrors.InvalidInput("url query parameter is required"))
		return
	}

	result := h.registry.Validate(url)
	status := http.StatusOK
	if !result.Valid {
		status = http.StatusUnprocessableEntity
	}
	apperrors.WriteJSON(w, requestID, status, result)
}

// GetSupportedPlatforms handles GET /validate/platforms
func (h *Handlers) GetSupportedPlatforms(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK,
		SupportedPlatformsResponse{Platforms: h.registry.SupportedPlatforms()})
}
