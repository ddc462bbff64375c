package telegram

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the structured classification of a Bot API failure. The remote
// API only returns free-text descriptions, so known patterns are mapped here,
// at the adapter boundary, and everything unmapped stays Unknown.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindThreadNotFound means the target forum topic no longer resolves.
	KindThreadNotFound
	// KindContentRejected covers formatting and media rejections
	// (broken HTML entities, oversized captions, wrong file ids).
	KindContentRejected
	KindRateLimited
	// KindBadRequest is any other 400-class rejection.
	KindBadRequest
)

// APIError is a structured Bot API error response.
type APIError struct {
	Method      string
	Code        int
	Description string
	Kind        ErrorKind
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: %s failed: %s (%d)", e.Method, e.Description, e.Code)
}

func newAPIError(method string, code int, description string) *APIError {
	return &APIError{
		Method:      method,
		Code:        code,
		Description: description,
		Kind:        classify(code, description),
	}
}

func classify(code int, description string) ErrorKind {
	d := strings.ToLower(description)
	switch {
	case strings.Contains(d, "thread") || strings.Contains(d, "not found"):
		return KindThreadNotFound
	case strings.Contains(d, "parse") || strings.Contains(d, "media") ||
		strings.Contains(d, "caption is too long") || strings.Contains(d, "wrong file identifier"):
		return KindContentRejected
	case code == 429 || strings.Contains(d, "too many requests"):
		return KindRateLimited
	case code == 400:
		return KindBadRequest
	default:
		return KindUnknown
	}
}

func kindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

// IsThreadNotFound reports whether err is a missing-topic rejection.
func IsThreadNotFound(err error) bool {
	return kindOf(err) == KindThreadNotFound
}

// IsContentRejected reports whether err is a formatting or media rejection,
// recoverable by degrading to a simpler message shape.
func IsContentRejected(err error) bool {
	return kindOf(err) == KindContentRejected
}

func IsRateLimited(err error) bool {
	return kindOf(err) == KindRateLimited
}

// IsTopicInvalid reports whether err signals that the stored topic reference
// is stale. Thread-not-found and generic bad-request rejections on a
// thread-scoped call both mean the thread is gone.
func IsTopicInvalid(err error) bool {
	k := kindOf(err)
	return k == KindThreadNotFound || k == KindBadRequest
}
