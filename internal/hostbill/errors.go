package hostbill

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var ErrNotFound = errors.New("hostbill: record not found")

// APIError is HostBill answering a call with success=false.
type APIError struct {
	Call     string
	Messages []string
}

func (e *APIError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("hostbill %s failed", e.Call)
	}
	return fmt.Sprintf("hostbill %s failed: %s", e.Call, strings.Join(e.Messages, "; "))
}

// Is lets errors.Is(err, ErrNotFound) match HostBill's "not found" style messages.
func (e *APIError) Is(target error) bool {
	if target != ErrNotFound {
		return false
	}
	for _, m := range e.Messages {
		lower := strings.ToLower(m)
		if strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist") || strings.Contains(lower, "invalid id") {
			return true
		}
	}
	return false
}

type httpStatusError struct {
	statusCode int
	status     string
	body       string
}

func (e *httpStatusError) Error() string {
	if strings.TrimSpace(e.body) == "" {
		return fmt.Sprintf("hostbill request failed: %s", e.status)
	}
	return fmt.Sprintf("hostbill request failed: %s: %s", e.status, e.body)
}

func newHTTPStatusError(statusCode int, status string, body []byte) error {
	b := strings.TrimSpace(string(body))
	if len(b) > 512 {
		b = b[:512] + "...(truncated)"
	}
	return &httpStatusError{statusCode: statusCode, status: status, body: b}
}

func isRetryableHTTPError(err error) bool {
	var httpErr *httpStatusError
	if errors.As(err, &httpErr) {
		switch httpErr.statusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}
