package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// APIError is a non-2xx provider response. It satisfies the keypool
// classifier through HTTPStatus and QuotaExceeded.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
	Code       string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// QuotaExceeded reports provider quota exhaustion, which some providers
// signal with 402/403 or an error code instead of 429.
func (e *APIError) QuotaExceeded() bool {
	if e.StatusCode == http.StatusPaymentRequired {
		return true
	}
	code := strings.ToLower(e.Code)
	if code == "insufficient_quota" || code == "quota_exceeded" {
		return true
	}
	if e.StatusCode == http.StatusForbidden || e.StatusCode == http.StatusBadRequest {
		msg := strings.ToLower(e.Message)
		return strings.Contains(msg, "quota") || strings.Contains(msg, "credits")
	}
	return false
}

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4 << 10

// newAPIError reads resp's body into an APIError. It understands
// {"error": {"message", "code"}}, {"error": "..."} and {"message": "..."}.
func newAPIError(provider string, resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	e := &APIError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}

	var nested struct {
		Error struct {
			Message string `json:"message"`
			Code    any    `json:"code"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	var flat struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Code    any    `json:"code"`
	}
	switch {
	case json.Unmarshal(body, &nested) == nil && nested.Error.Message != "":
		e.Message = nested.Error.Message
		e.Code = codeString(nested.Error.Code)
		if e.Code == "" {
			e.Code = nested.Error.Type
		}
	case json.Unmarshal(body, &flat) == nil && (flat.Error != "" || flat.Message != ""):
		e.Message = flat.Message
		if e.Message == "" {
			e.Message = flat.Error
		}
		e.Code = codeString(flat.Code)
	default:
		e.Message = strings.TrimSpace(string(body))
	}
	return e
}

func codeString(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case float64:
		return strconv.Itoa(int(c))
	default:
		return ""
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
