// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

// Upstream error codes as reported to clients.
const (
	CodeDeadlineExceeded  = "DEADLINE_EXCEEDED"
	CodeResourceExhausted = "RESOURCE_EXHAUSTED"
	CodeUnavailable       = "UNAVAILABLE"
	CodeServerError       = "SERVER_ERROR"
	CodeInvalidArgument   = "INVALID_ARGUMENT"
	CodePermissionDenied  = "PERMISSION_DENIED"
	CodeClientError       = "CLIENT_ERROR"
)

// UpstreamError describes a failure reported by the generation API.
// Transient errors are worth retrying; the rest indicate a problem with the
// request or the account.
type UpstreamError struct {
	Code      string
	Transient bool
	err       error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error %s: %v", e.Code, e.err)
}

func (e *UpstreamError) Unwrap() error {
	return e.err
}

// classifyError maps API and context errors to an UpstreamError. Errors
// that do not come from the upstream API are returned unchanged.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &UpstreamError{Code: CodeDeadlineExceeded, Transient: true, err: err}
	}

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	switch {
	case apiErr.Code == http.StatusGatewayTimeout:
		return &UpstreamError{Code: CodeDeadlineExceeded, Transient: true, err: err}
	case apiErr.Code == http.StatusTooManyRequests:
		return &UpstreamError{Code: CodeResourceExhausted, Transient: true, err: err}
	case apiErr.Code == http.StatusServiceUnavailable:
		return &UpstreamError{Code: CodeUnavailable, Transient: true, err: err}
	case apiErr.Code >= 500:
		return &UpstreamError{Code: CodeServerError, Transient: true, err: err}
	case apiErr.Code == http.StatusBadRequest:
		return &UpstreamError{Code: CodeInvalidArgument, Transient: false, err: err}
	case apiErr.Code == http.StatusForbidden:
		return &UpstreamError{Code: CodePermissionDenied, Transient: false, err: err}
	case apiErr.Code >= 400:
		return &UpstreamError{Code: CodeClientError, Transient: false, err: err}
	}
	return err
}
