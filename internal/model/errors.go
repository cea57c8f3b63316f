package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases.
// Use errors.Is() to check against these.
var (
	ErrNotFound       = errors.New("not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrRateLimited    = errors.New("rate limited")
	ErrUpstream       = errors.New("upstream error")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnhandledEvent = errors.New("unhandled event")
)

// maxBodyInError caps how much of a backend response body ends up in error strings.
const maxBodyInError = 512

// RemoteAPIError is returned for any non-2xx response from the commerce backend.
// Body holds the raw response so callers and logs can see what the backend said.
type RemoteAPIError struct {
	StatusCode int
	Body       string
	Err        error // sentinel classifying the status, for errors.Is
}

func (e *RemoteAPIError) Error() string {
	body := e.Body
	if len(body) > maxBodyInError {
		body = body[:maxBodyInError] + "..."
	}
	return fmt.Sprintf("remote API error: status %d: %s", e.StatusCode, body)
}

func (e *RemoteAPIError) Unwrap() error {
	return e.Err
}

// NewRemoteAPIError classifies a failed backend response by status code.
func NewRemoteAPIError(statusCode int, body []byte) *RemoteAPIError {
	var sentinel error
	switch statusCode {
	case 401, 403:
		sentinel = ErrUnauthorized
	case 404:
		sentinel = ErrNotFound
	case 429:
		sentinel = ErrRateLimited
	default:
		sentinel = ErrUpstream
	}
	return &RemoteAPIError{
		StatusCode: statusCode,
		Body:       string(body),
		Err:        sentinel,
	}
}

// AuthError means the token endpoint rejected the client credentials.
// There is no retry policy; the error is fatal for the event being handled.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("token endpoint rejected credentials: status %d: %s", e.StatusCode, e.Body)
}

func (e *AuthError) Unwrap() error {
	return ErrUnauthorized
}

// NewAuthError creates an AuthError from a token endpoint response.
func NewAuthError(statusCode int, body []byte) *AuthError {
	return &AuthError{StatusCode: statusCode, Body: string(body)}
}

// ValidationError reports user input that failed validation.
// It is the only error the conversation layer recovers from.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// NewUpstreamError wraps transport-level failures talking to a remote service.
func NewUpstreamError(service string, err error) error {
	return fmt.Errorf("%s request failed: %w: %v", service, ErrUpstream, err)
}
