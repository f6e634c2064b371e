package blizzard

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ryanbastic/go-ladderwatch/internal/circuitbreaker"
	"github.com/ryanbastic/go-ladderwatch/internal/ladder"
)

// ErrInvalidLeague is returned for league keys the upstream never serves. No
// request is issued for them.
var ErrInvalidLeague = errors.New("invalid league combination")

// APIError is a non-2xx upstream response.
type APIError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("upstream %s: status %d: %s", e.URL, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsTransient reports whether err is worth retrying later: network failures,
// 5xx responses and an open breaker. Other 4xx responses and cancellation are
// not.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrInvalidLeague) {
		return false
	}
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}

// NoSeasonFoundError means not even the first season could be fetched, which
// signals the region's upstream is broken.
type NoSeasonFoundError struct {
	Region ladder.Region
	First  int
	Err    error
}

func (e *NoSeasonFoundError) Error() string {
	return fmt.Sprintf("no season found for region %s starting at %d: %v", e.Region, e.First, e.Err)
}

func (e *NoSeasonFoundError) Unwrap() error { return e.Err }
