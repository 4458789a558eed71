package contextstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/run-bigpig/plan-context/pkg/interfaces"
)

var (
	// ErrInvalidKey is returned when a context key has an empty project ID
	ErrInvalidKey = errors.New("invalid context key")

	// ErrInvalidReference is returned when activating an empty reference ID
	ErrInvalidReference = errors.New("invalid reference ID")

	// ErrInvalidTimeout is returned for a zero or negative timeout
	ErrInvalidTimeout = errors.New("timeout must be positive")
)

func validateKey(key interfaces.ContextKey) error {
	if key.ProjectID == "" {
		return fmt.Errorf("%w: project ID is required", ErrInvalidKey)
	}
	return nil
}

func validateReference(referenceID string) error {
	if referenceID == "" {
		return fmt.Errorf("%w: reference ID is required", ErrInvalidReference)
	}
	return nil
}

func validateTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidTimeout, timeout)
	}
	return nil
}

// resolveTimeout picks the explicit timeout from options or falls back to def
func resolveTimeout(def time.Duration, options []interfaces.ContextOption) (time.Duration, error) {
	opts := interfaces.ApplyContextOptions(options...)
	if !opts.HasTimeout {
		return def, nil
	}
	if err := validateTimeout(opts.Timeout); err != nil {
		return 0, err
	}
	return opts.Timeout, nil
}
