package leakix

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Validation failures. These surface before any network activity.
var (
	ErrMissingAPIKey      = errors.New("leakix: api key is required")
	ErrInvalidScope       = errors.New(`leakix: scope must be "leak" or "service"`)
	ErrBulkNeedsLeakScope = errors.New(`leakix: bulk export requires scope "leak"`)
	ErrInvalidIP          = errors.New("leakix: not an ip address")
	ErrInvalidDomain      = errors.New("leakix: not a domain")
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Status     string
	Endpoint   string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("leakix: %s: %s", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("leakix: %s: %s: %s", e.Endpoint, e.Status, e.Body)
}

// IsAuth reports whether err is a 401 or 403 answer. Retrying cannot
// help until the key changes.
func IsAuth(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && (ae.StatusCode == 401 || ae.StatusCode == 403)
}

// IsTransient reports whether err is worth retrying later: a 5xx
// answer or a transport failure.
func IsTransient(err error) bool {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.StatusCode >= 500
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// PluginError reports plugin names the API does not recognize.
type PluginError struct {
	Unknown []string
	Known   []string
}

func (e *PluginError) Error() string {
	return "leakix: unknown plugins: " + strings.Join(e.Unknown, ", ")
}

// rateLimitError carries the wait a 429 answer advertised. It never
// escapes the client: fetch sleeps it out and reissues the request.
type rateLimitError struct {
	Wait time.Duration
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("leakix: rate limited for %s", e.Wait)
}
