// Package shield holds the HTTP middleware stack of the clonepages
// service: security headers, request tracing, body limits, rate limiting
// and HEAD handling.
//
//	r := chi.NewRouter()
//	for _, mw := range shield.Stack(shield.DefaultHeaders(), 1<<20) {
//	    r.Use(mw)
//	}
package shield

import "net/http"

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// Stack returns the standard middleware in order: HeadToGet,
// SecurityHeaders, MaxBody, TraceID.
func Stack(headers HeaderConfig, maxBody int64) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(headers),
		MaxBody(maxBody),
		TraceID,
	}
}
