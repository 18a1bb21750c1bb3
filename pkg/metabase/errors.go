package metabase

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the client. Callers match them with errors.Is.
var (
	// ErrAuthentication means credentials are missing, were rejected, or the
	// login endpoint could not be reached.
	ErrAuthentication = errors.New("metabase authentication failed")

	// ErrDownstreamAuth means the engine kept rejecting the session after a
	// fresh login.
	ErrDownstreamAuth = errors.New("metabase rejected session after re-authentication")

	// ErrInvalidResponse means the engine answered with a body that is not a
	// usable query result.
	ErrInvalidResponse = errors.New("invalid metabase response")

	// ErrEngineUnavailable means the engine could not be reached or the
	// circuit breaker is open.
	ErrEngineUnavailable = errors.New("metabase unavailable")

	// ErrInvalidCard is returned for card identifiers that cannot exist.
	ErrInvalidCard = errors.New("invalid card id")
)

const maxErrorBody = 100

// QueryError is returned when the engine answers a card request with a
// non-success status.
type QueryError struct {
	CardID     int
	StatusCode int
	Body       string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("metabase card %d returned HTTP %d: %s", e.CardID, e.StatusCode, e.Body)
}

func truncate(body []byte) string {
	r := []rune(string(body))
	if len(r) <= maxErrorBody {
		return string(r)
	}
	return string(r[:maxErrorBody])
}
