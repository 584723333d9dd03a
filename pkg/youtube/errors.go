package youtube

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed search call.
type ErrorKind string

const (
	KindTransport ErrorKind = "transport"
	KindAuth      ErrorKind = "auth"
	KindQuota     ErrorKind = "quota"
	KindStatus    ErrorKind = "status"
	KindMalformed ErrorKind = "malformed"
)

var (
	// ErrEmptyQuery is returned when Search is called without a query.
	ErrEmptyQuery = errors.New("youtube: search query required")

	// ErrMissingAPIKey is returned when the client has no credential.
	ErrMissingAPIKey = errors.New("youtube: API key required (set YOUTUBE_API_KEY)")
)

// FetchError is returned by Search for any failure after the request was attempted.
type FetchError struct {
	Kind       ErrorKind
	StatusCode int
	Reason     string
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("youtube search %s", e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsKind reports whether err is a FetchError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == kind
}
