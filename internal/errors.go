package router

import (
	"errors"
	"fmt"
)

// Kind classifies a router error for HTTP mapping and metrics.
type Kind int

const (
	KindBadRequest Kind = iota
	KindConfigRead
	KindConfigParse
	KindURL
	KindTLS
	KindUpstream
	KindIO
	KindJSON
)

// Error is the router's error type. Every failure that reaches the
// dispatcher carries a Kind; the dispatcher maps it to an HTTP response in
// exactly one place.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Msg != "" {
			return e.Msg + ": " + e.Err.Error()
		}
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf constructs an Error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapErr constructs an Error of the given kind wrapping err.
func WrapErr(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the Kind of err, or KindIO for foreign errors.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindIO
}

// HTTPStatus returns the status code an error of this kind maps to.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindBadRequest, KindJSON:
		return 400
	case KindURL, KindTLS, KindUpstream:
		return 502
	default:
		return 500
	}
}

// Reason returns the HTTP reason phrase for the mapped status.
func (k Kind) Reason() string {
	switch k.HTTPStatus() {
	case 400:
		return "BAD REQUEST"
	case 502:
		return "BAD GATEWAY"
	default:
		return "INTERNAL SERVER ERROR"
	}
}

// MetricLabel returns the error_type label used by upstream_errors_total.
func (k Kind) MetricLabel() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindConfigRead:
		return "config_read_error"
	case KindConfigParse:
		return "config_parse_error"
	case KindURL:
		return "url_error"
	case KindTLS:
		return "tls_error"
	case KindUpstream:
		return "upstream_error"
	case KindJSON:
		return "json_error"
	default:
		return "io_error"
	}
}
