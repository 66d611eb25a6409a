package validators

// GenericValidator accepts any absolute http(s) URL and leaves the final
// word to the media resolver. Register it last.
type GenericValidator struct{}

// NewGenericValidator creates a catch-all validator
func NewGenericValidator() *GenericValidator {
	return &GenericValidator{}
}

func (v *GenericValidator) Platform() Platform {
	return PlatformGeneric
}

func (v *GenericValidator) CanHandle(rawURL string) bool {
	return hostOf(rawURL) != ""
}

func (v *GenericValidator) Validate(rawURL string) ValidationResult {
	parsed, rawURL, reason := parseHTTP(rawURL)
	if reason != "" {
		return invalid(PlatformGeneric, rawURL, reason)
	}
	return ValidationResult{
		Valid:     true,
		Platform:  PlatformGeneric,
		URL:       rawURL,
		Canonical: parsed.String(),
	}
}
