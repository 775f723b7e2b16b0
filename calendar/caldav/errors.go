package caldav

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/guilherme-santos/eventsync/internal"
)

// go-webdav reports HTTP failures as "<code> <status text>" without an
// exported error type.
var statusRe = regexp.MustCompile(`\b([1-5][0-9]{2}) [A-Z]`)

func statusCode(err error) int {
	m := statusRe.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	code, _ := strconv.Atoi(m[1])
	return code
}

func notFound(err error) bool {
	code := statusCode(err)
	return code == http.StatusNotFound || code == http.StatusGone
}

// classify maps a server error to the sentinel the engine branches on.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("caldav: %s: %w", op, err)
	}
	switch code := statusCode(err); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("caldav: %s: %w: %w", op, internal.ErrAuthRejected, err)
	case code == http.StatusNotFound || code == http.StatusGone:
		return fmt.Errorf("caldav: %s: %w: %w", op, internal.ErrRemoteNotFound, err)
	default:
		return fmt.Errorf("caldav: %s: %w: %w", op, internal.ErrRemoteUnavailable, err)
	}
}
