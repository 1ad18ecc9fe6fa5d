package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/aws/smithy-go"
)

// Error classifies provider call failures as transient or permanent.
type Error struct {
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "provider error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTransient reports whether an error should be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var providerErr *Error
	if errors.As(err, &providerErr) {
		return providerErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// transientAPICodes are AWS API error codes worth a retry.
var transientAPICodes = map[string]struct{}{
	"ThrottlingException":         {},
	"TooManyRequestsException":    {},
	"ServiceUnavailable":          {},
	"ServiceUnavailableException": {},
	"InternalFailure":             {},
	"InternalServerException":     {},
	"RequestTimeout":              {},
}

// wrapAWSError converts an AWS SDK failure into a classified provider Error.
func wrapAWSError(err error, provider string) *Error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		_, transient := transientAPICodes[apiErr.ErrorCode()]
		return &Error{
			Message:   fmt.Sprintf("%s rejected send: %s", provider, apiErr.ErrorCode()),
			Transient: transient,
			Cause:     err,
		}
	}

	// No API error means the request never completed; timeouts and broken
	// connections are retryable, an aborted context is not.
	return &Error{
		Message:   fmt.Sprintf("%s request failed", provider),
		Transient: !errors.Is(err, context.Canceled),
		Cause:     err,
	}
}
