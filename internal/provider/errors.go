// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error variables for common API failures.
var (
	// ErrNotConfigured indicates the API key is not set.
	ErrNotConfigured = errors.New("API key not configured")

	// ErrAuthFailed indicates the API key was rejected.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrOverloaded indicates the API is temporarily overloaded.
	ErrOverloaded = errors.New("API overloaded")

	// ErrModelNotFound indicates the requested model does not exist.
	ErrModelNotFound = errors.New("model not found")

	// ErrBadRequest indicates the API rejected the request body.
	ErrBadRequest = errors.New("invalid request")

	// ErrTimeout indicates the request did not finish in time.
	ErrTimeout = errors.New("request timed out")

	// ErrEmptyResponse indicates the API returned no text.
	ErrEmptyResponse = errors.New("empty response")
)

// statusOverloaded is the non-standard status the API uses when overloaded.
const statusOverloaded = 529

// APIError is an error response returned by the remote endpoint.
type APIError struct {
	Type    string
	Message string
	Status  int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("API error [%s] (HTTP %d): %s", e.Type, e.Status, e.Message)
	}
	return fmt.Sprintf("API error (HTTP %d): %s", e.Status, e.Message)
}

// Unwrap maps the status to the matching sentinel error.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuthFailed
	case http.StatusNotFound:
		return ErrModelNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case statusOverloaded:
		return ErrOverloaded
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return ErrBadRequest
	}
	return nil
}

// ProviderError is returned by Client.Complete for every failed call.
// Message is suitable for showing to the user.
type ProviderError struct {
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// wrapError converts any failure into a *ProviderError.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return &ProviderError{Message: err.Error(), Err: err}
}

// isRetryable determines if an error should trigger a retry.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrOverloaded) {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 && apiErr.Status < 600
	}

	var netErr *transportError
	return errors.As(err, &netErr)
}

// transportError marks a failure to reach the endpoint at all.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return "request failed: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }
