package upstream

import (
	"errors"
	"fmt"
)

// Kind classifies why a fetch failed. Every kind is terminal for a single attempt.
type Kind int

const (
	// KindTransport means the request could not be sent, the connection failed,
	// or it timed out.
	KindTransport Kind = iota + 1
	// KindHTTPStatus means the upstream answered with a status other than 200.
	KindHTTPStatus
	// KindParse means the body was not valid JSON.
	KindParse
	// KindSchema means the body was valid JSON but not an object or array.
	KindSchema
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport_error"
	case KindHTTPStatus:
		return "http_status_error"
	case KindParse:
		return "parse_error"
	case KindSchema:
		return "schema_error"
	default:
		return "unknown_error"
	}
}

// Error is a typed fetch failure. Message is short and safe to show to users;
// Err carries the underlying cause, if any, and only shows up in Error().
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so callers can write
// errors.Is(err, &upstream.Error{Kind: upstream.KindSchema}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return 0
}

func transportError(err error) *Error {
	return &Error{
		Kind:    KindTransport,
		Message: "Failed to fetch data from API",
		Err:     err,
	}
}

func statusError(code int) *Error {
	return &Error{
		Kind:       KindHTTPStatus,
		Message:    fmt.Sprintf("API returned invalid response code: %d", code),
		StatusCode: code,
	}
}

func parseError(err error) *Error {
	return &Error{
		Kind:    KindParse,
		Message: "Failed to parse API response",
		Err:     err,
	}
}

func schemaError() *Error {
	return &Error{
		Kind:    KindSchema,
		Message: "API returned invalid data structure",
	}
}
