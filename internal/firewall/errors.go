package firewall

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/mskumargvd/arushi-cloud/pkg/utils"
)

// ErrRejected is returned when the appliance answers 200 but reports that
// the change was not applied
var ErrRejected = errors.New("request rejected by firewall")

// ErrResponseTooLarge is returned when a response exceeds its read limit
var ErrResponseTooLarge = errors.New("response too large")

// APIError is a non-200 answer from the firewall API
type APIError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface
func (e *APIError) Error() string {
	body := utils.TruncateString(e.Body, 200)
	if body == "" {
		body = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("API Error %d: %s", e.StatusCode, body)
}

// IsUnauthorized reports whether err is an authentication failure
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
	}
	return false
}

// StatusCode extracts the HTTP status from err, or 0 when err is not an
// APIError
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
