package utils

import (
	"net/http"
	"time"
)

// NewHTTPClient is the client used for service-to-service calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
