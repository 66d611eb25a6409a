package validators

import "sync"

// Registry manages URL validators. The first validator whose CanHandle
// matches wins, so specific platforms go before the generic fallback.
type Registry struct {
	mu         sync.RWMutex
	validators []Validator
}

// NewRegistry creates a new validator registry
func NewRegistry() *Registry {
	return &Registry{
		validators: make([]Validator, 0),
	}
}

// Register adds a validator to the registry
func (r *Registry) Register(v Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators = append(r.validators, v)
}

// Validate finds the appropriate validator and validates the URL
func (r *Registry) Validate(url string) ValidationResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, v := range r.validators {
		if v.CanHandle(url) {
			return v.Validate(url)
		}
	}

	return invalid(PlatformUnknown, url, "unsupported URL format")
}

// SupportedPlatforms lists the named platforms, leaving out the generic
// fallback.
func (r *Registry) SupportedPlatforms() []Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()

	platforms := make([]Platform, 0, len(r.validators))
	for _, v := range r.validators {
		if p := v.Platform(); p != PlatformGeneric {
			platforms = append(platforms, p)
		}
	}
	return platforms
}

// DefaultRegistry creates a registry with all built-in validators
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewYouTubeValidator())
	r.Register(NewInstagramValidator())
	r.Register(NewGenericValidator())
	return r
}
