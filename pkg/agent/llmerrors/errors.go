// Package llmerrors provides structured error classification for LLM API interactions.
package llmerrors

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrorType represents different categories of LLM errors.
type ErrorType int8

const (
	// ErrorTypeRateLimit represents rate limiting errors (429, quota exceeded).
	ErrorTypeRateLimit ErrorType = iota
	// ErrorTypeTransient represents transient errors (5xx, EOF, connection reset, timeout).
	ErrorTypeTransient
	// ErrorTypeEmptyResponse represents HTTP 200 but no content errors.
	ErrorTypeEmptyResponse
	// ErrorTypeAuth represents authentication errors (401/403, bad API key).
	ErrorTypeAuth
	// ErrorTypeBadPrompt represents malformed request errors (too long, violates policy).
	ErrorTypeBadPrompt
	// ErrorTypeUnknown represents default for unclassified errors.
	ErrorTypeUnknown
)

// String returns the string representation of the error type.
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeEmptyResponse:
		return "empty_response"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeBadPrompt:
		return "bad_prompt"
	case ErrorTypeUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Error represents a classified LLM error.
type Error struct {
	Err        error     // Wrapped underlying error
	Message    string    // Human-readable error message
	Provider   string    // Provider that produced the error
	Type       ErrorType // Classified error type
	StatusCode int       // HTTP status code if applicable
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := "LLM error"
	if e.Provider != "" {
		prefix = e.Provider + " error"
	}
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s (%s): %s: %v", prefix, e.Type.String(), e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s (%s): %s", prefix, e.Type.String(), e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s (%s): %v", prefix, e.Type.String(), e.Err)
	}
	return fmt.Sprintf("%s (%s): status %d", prefix, e.Type.String(), e.StatusCode)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is checks if an error is of a specific type.
func Is(err error, errorType ErrorType) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == errorType
	}
	return false
}

// TypeOf returns the error type of an error, or ErrorTypeUnknown if not classified.
func TypeOf(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}

// NewError creates a new classified LLM error.
func NewError(errorType ErrorType, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
	}
}

// NewErrorWithStatus creates a new classified LLM error with HTTP status.
func NewErrorWithStatus(errorType ErrorType, statusCode int, message string) *Error {
	return &Error{
		Type:       errorType,
		StatusCode: statusCode,
		Message:    message,
	}
}

// NewErrorWithCause creates a new classified LLM error wrapping another error.
func NewErrorWithCause(errorType ErrorType, cause error, message string) *Error {
	return &Error{
		Type:    errorType,
		Err:     cause,
		Message: message,
	}
}

// TypeForStatus maps an HTTP status code to an error type. ok is false for
// codes that carry no classification.
func TypeForStatus(status int) (ErrorType, bool) {
	switch {
	case status == 401 || status == 403:
		return ErrorTypeAuth, true
	case status == 429:
		return ErrorTypeRateLimit, true
	case status == 400 || status == 404 || status == 413 || status == 422:
		return ErrorTypeBadPrompt, true
	case status >= 500 && status <= 599:
		return ErrorTypeTransient, true
	}
	return ErrorTypeUnknown, false
}

var statusPattern = regexp.MustCompile(`(?i)(?:status code:?|status:?|http)\s*"?(\d{3})\b`)

// ExtractStatusCode pulls an HTTP status code out of an SDK error message.
func ExtractStatusCode(errStr string) int {
	m := statusPattern.FindStringSubmatch(errStr)
	if m == nil {
		return 0
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return code
}

// Classify maps a provider error to a classified *Error. status may be 0 when
// the SDK does not expose it; the message is then inspected.
func Classify(provider string, err error, status int) *Error {
	if err == nil {
		return nil
	}

	var already *Error
	if errors.As(err, &already) {
		return already
	}

	classified := func(t ErrorType, msg string) *Error {
		return &Error{Type: t, Err: err, Message: msg, Provider: provider, StatusCode: status}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return classified(ErrorTypeTransient, "request timeout")
	}
	if errors.Is(err, context.Canceled) {
		return classified(ErrorTypeTransient, "request canceled")
	}

	errStr := err.Error()
	if status == 0 {
		status = ExtractStatusCode(errStr)
	}
	if t, ok := TypeForStatus(status); ok {
		return classified(t, fmt.Sprintf("HTTP %d", status))
	}

	lower := strings.ToLower(errStr)
	switch {
	case containsAny(lower, "timeout", "connection", "network", "temporary", "eof", "reset"):
		return classified(ErrorTypeTransient, "network or connection error")
	case containsAny(lower, "rate", "quota", "too many requests"):
		return classified(ErrorTypeRateLimit, "rate limiting detected")
	case containsAny(lower, "unauthorized", "api key", "auth", "forbidden"):
		return classified(ErrorTypeAuth, "authentication error")
	case containsAny(lower, "invalid", "malformed", "too large", "context length"):
		return classified(ErrorTypeBadPrompt, "prompt or request error")
	}
	return classified(ErrorTypeUnknown, "unclassified error")
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// SanitizePrompt creates a safe representation of a prompt for logging.
// For large prompts, it returns first/last portions plus a hash of the full content.
func SanitizePrompt(prompt string, maxChars int) string {
	if len(prompt) <= maxChars {
		return prompt
	}

	halfMax := maxChars / 2
	if halfMax < 100 {
		halfMax = 100
	}
	if 2*halfMax >= len(prompt) {
		return prompt
	}

	first := prompt[:halfMax]
	last := prompt[len(prompt)-halfMax:]

	hash := sha256.Sum256([]byte(prompt))
	hashStr := fmt.Sprintf("%x", hash)[:16]

	return fmt.Sprintf("%s...[%d chars, hash:%s]...%s", first, len(prompt), hashStr, last)
}
