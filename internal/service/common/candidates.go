//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

var (
	// ErrNoCandidates is returned when FirstSuccess gets an empty list.
	ErrNoCandidates = errors.New("no candidates to try")
	// ErrAllCandidatesFailed is returned when every candidate failed.
	ErrAllCandidatesFailed = errors.New("all candidates failed")
)

// AttemptFunc tries a single candidate.
type AttemptFunc[C, R any] func(ctx context.Context, candidate C) (R, error)

// FirstSuccess calls attempt for each candidate in order and returns the first
// successful result with its index. Later candidates are never tried after a
// success. When every attempt fails the returned error wraps
// ErrAllCandidatesFailed and each individual failure.
// A cancelled context stops the iteration before the next attempt.
func FirstSuccess[C, R any](ctx context.Context, candidates []C, attempt AttemptFunc[C, R]) (R, int, error) {
	var (
		zero R
		errs error
	)

	if len(candidates) == 0 {
		return zero, -1, ErrNoCandidates
	}

	for i, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return zero, -1, multierr.Append(errs, err)
		}

		result, err := attempt(ctx, candidate)
		if err == nil {
			return result, i, nil
		}

		errs = multierr.Append(errs, fmt.Errorf("candidate %d: %w", i, err))
	}

	return zero, -1, multierr.Append(ErrAllCandidatesFailed, errs)
}
