package errors

import (
	"net/http"
)

const (
	// RequestIDHeader is the HTTP header for request ID
	RequestIDHeader = "X-Request-ID"
)

// RequestIDMiddleware injects a request ID into the context and response headers
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = GenerateRequestID()
		}

		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), requestID)))
	})
}

// Handler is an http handler that reports failures as an error value
type Handler func(w http.ResponseWriter, r *http.Request) error

// HandleFunc converts a Handler to a standard http.HandlerFunc. Returned
// errors are rendered with WriteError; a handler that already started the
// response body must not return an error.
func HandleFunc(h Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			WriteError(w, GetRequestID(r.Context()), err)
		}
	}
}
