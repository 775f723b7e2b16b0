package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/guilherme-santos/eventsync/internal"
)

func shouldRetry(err error) bool {
	return statusCode(err) == http.StatusTooManyRequests ||
		errIsReason(err, "rateLimitExceeded") ||
		errIsReason(err, "userRateLimitExceeded")
}

func alreadyDeleted(err error) bool {
	code := statusCode(err)
	return code == http.StatusNotFound || code == http.StatusGone || errIsReason(err, "deleted")
}

func cursorExpired(err error) bool {
	return statusCode(err) == http.StatusGone || errIsReason(err, "fullSyncRequired")
}

func errIsReason(err error, reason string) bool {
	var gErr *googleapi.Error
	if !errors.As(err, &gErr) {
		return false
	}

	for _, err := range gErr.Errors {
		switch err.Reason {
		case reason:
			return true
		}
	}
	return false
}

func statusCode(err error) int {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code
	}
	return 0
}

// classify wraps err with the matching provider sentinel so that callers
// can branch with errors.Is.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("google: %s: %w", op, err)
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("google: %s: %w: %w", op, internal.ErrAuthRejected, err)
	}

	if shouldRetry(err) {
		return fmt.Errorf("google: %s: %w: %w", op, internal.ErrRemoteUnavailable, err)
	}
	switch statusCode(err) {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("google: %s: %w: %w", op, internal.ErrAuthRejected, err)
	case http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("google: %s: %w: %w", op, internal.ErrRemoteNotFound, err)
	}
	return fmt.Errorf("google: %s: %w: %w", op, internal.ErrRemoteUnavailable, err)
}
