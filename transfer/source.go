package transfer

import (
	"context"
	"fmt"
	"io"
	"sync"

	cerrdefs "github.com/containerd/errdefs"

	"github.com/moby/archivecopy/pkg/archive"
)

// ErrStreamConsumed is returned when a command bound to a caller-supplied
// tar stream is executed after the stream was already sent.
var ErrStreamConsumed = cerrdefs.ErrConflict.WithMessage("tar stream has already been consumed by a previous execution")

// Source produces the tar archive sent to the container. Open is called
// once per execution, and the caller closes the returned stream.
type Source interface {
	Open(ctx context.Context, opts archive.TarOptions) (io.ReadCloser, error)
	// Kind names the source in logs.
	Kind() string
}

// PathSource archives a host file or directory. The archive is rebuilt on
// every Open, so a command using it can be executed any number of times.
type PathSource struct {
	Path string
}

// Open archives the host resource with the given options.
func (s *PathSource) Open(_ context.Context, opts archive.TarOptions) (io.ReadCloser, error) {
	rc, err := archive.TarResource(s.Path, &opts)
	if err != nil {
		return nil, fmt.Errorf("archiving %s: %w", s.Path, err)
	}
	return rc, nil
}

func (s *PathSource) Kind() string { return "path" }

// StreamSource hands a caller-supplied tar stream to the engine as-is. It is
// never recompressed or re-wrapped, and it can only be opened once.
type StreamSource struct {
	mu       sync.Mutex
	r        io.Reader
	consumed bool
}

// NewStreamSource returns a single-use source reading from r. If r is an
// [io.ReadCloser], it is closed once the execution using it finishes.
func NewStreamSource(r io.Reader) *StreamSource {
	return &StreamSource{r: r}
}

// Open returns the stream on the first call, and [ErrStreamConsumed] on
// every call after that. Archive options do not apply to a stream source.
func (s *StreamSource) Open(context.Context, archive.TarOptions) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consumed {
		return nil, ErrStreamConsumed
	}
	s.consumed = true
	if rc, ok := s.r.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(s.r), nil
}

func (s *StreamSource) Kind() string { return "stream" }

// Consumed reports whether the stream was handed out already.
func (s *StreamSource) Consumed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumed
}
