package ai

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoProviders     = errors.New("no ai providers configured")
	ErrUnknownProvider = errors.New("unknown ai provider")
	ErrAnalysisTimeout = errors.New("ai analysis timed out")
)

// AllProvidersFailedError aggregates the per-provider failures of one
// fallback loop. Raised only after every candidate has been attempted.
type AllProvidersFailedError struct {
	Attempted []string
	Last      error
}

func (e *AllProvidersFailedError) Error() string {
	return fmt.Sprintf("all ai providers failed (attempted: %s): last error: %v",
		strings.Join(e.Attempted, ", "), e.Last)
}

func (e *AllProvidersFailedError) Unwrap() error { return e.Last }
