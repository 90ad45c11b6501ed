package client

import (
	"context"
	"errors"
	"strings"

	"github.com/kjstillabower/location-forecast-service/internal/circuitbreaker"
)

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

// Error category constants used as the forecastEntriesTotal outcome label.
const (
	ErrorCategoryTimeout          ErrorCategory = "timeout"
	ErrorCategoryCanceled         ErrorCategory = "canceled"
	ErrorCategoryNetwork          ErrorCategory = "network"
	ErrorCategoryInvalidAPIKey    ErrorCategory = "invalid_api_key"
	ErrorCategoryLocationNotFound ErrorCategory = "location_not_found"
	ErrorCategoryRateLimited      ErrorCategory = "rate_limited"
	ErrorCategoryUpstream5xx      ErrorCategory = "upstream_5xx"
	ErrorCategoryCircuitOpen      ErrorCategory = "circuit_open"
	ErrorCategoryParsing          ErrorCategory = "parsing"
	ErrorCategoryValidation       ErrorCategory = "validation"
	ErrorCategoryUnknown          ErrorCategory = "unknown"
)

// sentinelCategories is checked in order before any message heuristics.
var sentinelCategories = []struct {
	err      error
	category ErrorCategory
}{
	{context.DeadlineExceeded, ErrorCategoryTimeout},
	{context.Canceled, ErrorCategoryCanceled},
	{circuitbreaker.ErrOpen, ErrorCategoryCircuitOpen},
	{ErrInvalidAPIKey, ErrorCategoryInvalidAPIKey},
	{ErrLocationNotFound, ErrorCategoryLocationNotFound},
	{ErrRateLimited, ErrorCategoryRateLimited},
	{ErrUpstreamFailure, ErrorCategoryUpstream5xx},
	{ErrInvalidLocation, ErrorCategoryValidation},
}

// CategorizeError maps an error to a stable ErrorCategory for metrics.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}
	for _, sc := range sentinelCategories {
		if errors.Is(err, sc.err) {
			return sc.category
		}
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "timeout"):
		return ErrorCategoryTimeout
	case strings.Contains(errStr, "network"), strings.Contains(errStr, "connection"):
		return ErrorCategoryNetwork
	case strings.Contains(errStr, "parse"), strings.Contains(errStr, "unmarshal"):
		return ErrorCategoryParsing
	}
	return ErrorCategoryUnknown
}

// CountsAgainstUpstream reports whether a failure says something about the
// forecast API's health. Caller cancellation and local validation do not.
func CountsAgainstUpstream(category ErrorCategory) bool {
	return category != ErrorCategoryCanceled && category != ErrorCategoryValidation
}
