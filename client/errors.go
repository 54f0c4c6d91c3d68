package client

import (
	"errors"
	"fmt"
	"net/http"

	cerrdefs "github.com/containerd/errdefs"
)

// errConnectionFailed implements an error returned when connection failed.
type errConnectionFailed struct {
	error
}

// Error returns a string representation of an errConnectionFailed
func (e errConnectionFailed) Error() string {
	return e.error.Error()
}

func (e errConnectionFailed) Unwrap() error {
	return e.error
}

// IsErrConnectionFailed returns true if the error is caused by connection failed.
func IsErrConnectionFailed(err error) bool {
	return errors.As(err, &errConnectionFailed{})
}

// connectionFailed returns an error with host in the error message when connection
// to docker daemon failed.
func connectionFailed(host string) error {
	var err error
	if host == "" {
		err = errors.New("Cannot connect to the Docker daemon. Is the docker daemon running on this host?")
	} else {
		err = fmt.Errorf("Cannot connect to the Docker daemon at %s. Is the docker daemon running?", host)
	}
	return errConnectionFailed{error: err}
}

// IsErrNotFound returns true if the error is a NotFound error, which is returned
// by the API when some object is not found. It is an alias for [cerrdefs.IsNotFound].
func IsErrNotFound(err error) bool {
	return cerrdefs.IsNotFound(err)
}

type objectNotFoundError struct {
	object string
	id     string
}

func (e objectNotFoundError) NotFound() {}

func (e objectNotFoundError) Error() string {
	return fmt.Sprintf("Error: No such %s: %s", e.object, e.id)
}

// The types below carry the classification of an API error response. Each
// implements the marker method that the matching cerrdefs.IsXXX helper looks
// for, and unwraps to the daemon's message.

type invalidParameterErr struct{ error }

func (invalidParameterErr) InvalidParameter() {}
func (e invalidParameterErr) Unwrap() error   { return e.error }

type unauthorizedErr struct{ error }

func (unauthorizedErr) Unauthorized()   {}
func (e unauthorizedErr) Unwrap() error { return e.error }

type forbiddenErr struct{ error }

func (forbiddenErr) Forbidden()      {}
func (e forbiddenErr) Unwrap() error { return e.error }

type notFoundErr struct{ error }

func (notFoundErr) NotFound()       {}
func (e notFoundErr) Unwrap() error { return e.error }

type conflictErr struct{ error }

func (conflictErr) Conflict()       {}
func (e conflictErr) Unwrap() error { return e.error }

type notImplementedErr struct{ error }

func (notImplementedErr) NotImplemented() {}
func (e notImplementedErr) Unwrap() error { return e.error }

type unavailableErr struct{ error }

func (unavailableErr) Unavailable()    {}
func (e unavailableErr) Unwrap() error { return e.error }

type systemErr struct{ error }

func (systemErr) System()         {}
func (e systemErr) Unwrap() error { return e.error }

type unknownErr struct{ error }

func (unknownErr) Unknown()        {}
func (e unknownErr) Unwrap() error { return e.error }

// httpErrorFromStatusCode creates an errdefs error, based on the provided HTTP status-code
func httpErrorFromStatusCode(err error, statusCode int) error {
	if err == nil {
		return nil
	}
	switch statusCode {
	case http.StatusBadRequest:
		return invalidParameterErr{err}
	case http.StatusUnauthorized:
		return unauthorizedErr{err}
	case http.StatusForbidden:
		return forbiddenErr{err}
	case http.StatusNotFound:
		return notFoundErr{err}
	case http.StatusConflict:
		return conflictErr{err}
	case http.StatusNotImplemented:
		return notImplementedErr{err}
	case http.StatusServiceUnavailable:
		return unavailableErr{err}
	default:
		if statusCode >= http.StatusInternalServerError {
			return systemErr{err}
		}
		return unknownErr{err}
	}
}
