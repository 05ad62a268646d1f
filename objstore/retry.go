package objstore

import (
	"context"
	"time"

	"github.com/pathlake/slideagent/cmn"
)

// withRetry retries fn on a cmn.KindTransient error with exponential
// backoff starting at retryInitialBackoff, doubling each attempt, capped
// at retryMaxAttempts total tries (spec.md §4.3). A cmn.KindPermanent or
// cmn.KindConfigMiss error aborts immediately without retrying.
func withRetry(ctx context.Context, op string, fn func() error) error {
	backoff := retryInitialBackoff
	var lastErr error
	for attempt := 1; attempt <= retryMaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		switch cmn.KindOf(err) {
		case cmn.KindPermanent, cmn.KindConfigMiss:
			return err
		case cmn.KindTransient:
			if attempt == retryMaxAttempts {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		default:
			// unclassified error from a backend that didn't wrap it: treat
			// as permanent rather than retry something that might not be
			// safe to retry.
			return cmn.NewError(op, cmn.KindPermanent, "unclassified backend error", err)
		}
	}
	return lastErr
}
