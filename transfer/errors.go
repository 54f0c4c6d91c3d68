package transfer

import (
	"errors"
	"io"
	"io/fs"

	cerrdefs "github.com/containerd/errdefs"

	"github.com/moby/archivecopy/client"
)

// Reason classifies the failure of an execution.
type Reason int

const (
	// ReasonNone is the reason of a nil error.
	ReasonNone Reason = iota
	// ReasonNotFound means the container does not exist.
	ReasonNotFound
	// ReasonPermissionDenied means the engine refused the request.
	ReasonPermissionDenied
	// ReasonIO covers local archive failures and transport failures.
	ReasonIO
	// ReasonInvalid means the request was rejected as malformed, locally
	// or by the engine.
	ReasonInvalid
	// ReasonUnknown is anything else.
	ReasonUnknown
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonNotFound:
		return "not found"
	case ReasonPermissionDenied:
		return "permission denied"
	case ReasonIO:
		return "i/o"
	case ReasonInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Classify returns the reason err was returned by [Command.Exec].
//
// Local filesystem errors are checked first: a missing host resource is an
// I/O failure, not a missing container.
func Classify(err error) Reason {
	if err == nil {
		return ReasonNone
	}

	var pathErr *fs.PathError
	switch {
	case errors.As(err, &pathErr):
		return ReasonIO
	case errors.Is(err, ErrStreamConsumed):
		return ReasonInvalid
	case cerrdefs.IsNotFound(err):
		return ReasonNotFound
	case cerrdefs.IsPermissionDenied(err), cerrdefs.IsUnauthorized(err):
		return ReasonPermissionDenied
	case cerrdefs.IsInvalidArgument(err):
		return ReasonInvalid
	case client.IsErrConnectionFailed(err),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.ErrClosedPipe):
		return ReasonIO
	default:
		return ReasonUnknown
	}
}
