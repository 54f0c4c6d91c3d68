// Package transfer copies a host resource or a tar stream into the filesystem
// of a container.
//
// A [Command] is configured once and can be executed several times:
//
//	cmd, err := transfer.New(apiClient, containerID,
//		transfer.WithHostResource("/tmp/data"),
//		transfer.WithRemotePath("/srv"),
//	)
//	if err != nil {
//		return err
//	}
//	if err := cmd.Exec(ctx); err != nil {
//		return err
//	}
//
// Commands bound to a host resource rebuild their archive on every
// execution. Commands bound to a tar stream can run once; later executions
// fail with [ErrStreamConsumed].
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/containerd/log"
	"github.com/moby/go-archive/compression"

	"github.com/moby/archivecopy/client"
)

// ContainerCopier is the part of the API client a [Command] needs.
type ContainerCopier interface {
	CopyToContainer(ctx context.Context, containerID, dstPath string, content io.Reader, options client.CopyToContainerOptions) error
}

// Opt configures the [Request] of a [Command].
type Opt func(*Request) error

// WithHostResource sets the host file or directory to copy.
func WithHostResource(path string) Opt {
	return func(r *Request) error {
		if r.Source != nil {
			return errSourceAlreadySet(r.Source)
		}
		r.Source = &PathSource{Path: path}
		return nil
	}
}

// WithTarStream sets a tar stream to send as-is. The stream may be
// compressed; the engine detects the compression.
func WithTarStream(content io.Reader) Opt {
	return func(r *Request) error {
		if r.Source != nil {
			return errSourceAlreadySet(r.Source)
		}
		if content == nil {
			return cerrdefs.ErrInvalidArgument.WithMessage("tar stream must not be nil")
		}
		r.Source = NewStreamSource(content)
		return nil
	}
}

// WithSource sets a custom [Source].
func WithSource(src Source) Opt {
	return func(r *Request) error {
		if r.Source != nil {
			return errSourceAlreadySet(r.Source)
		}
		r.Source = src
		return nil
	}
}

// WithRemotePath sets the directory in the container to extract into.
func WithRemotePath(path string) Opt {
	return func(r *Request) error {
		r.RemotePath = path
		return nil
	}
}

// WithArchiveMode keeps host ownership on the archived entries.
func WithArchiveMode(enabled bool) Opt {
	return func(r *Request) error {
		r.ArchiveMode = enabled
		return nil
	}
}

// WithNoOverwriteDirNonDir controls whether the engine may replace a
// directory with a non-directory (and vice versa). It is enabled by default.
func WithNoOverwriteDirNonDir(enabled bool) Opt {
	return func(r *Request) error {
		r.NoOverwriteDirNonDir = enabled
		return nil
	}
}

// WithCopyUIDGID asks the engine to chown the content to the container user.
func WithCopyUIDGID(enabled bool) Opt {
	return func(r *Request) error {
		r.CopyUIDGID = enabled
		return nil
	}
}

// WithDirChildrenOnly copies the children of a host directory rather than
// the directory itself.
func WithDirChildrenOnly(enabled bool) Opt {
	return func(r *Request) error {
		r.DirChildrenOnly = enabled
		return nil
	}
}

// WithCompression sets the compression of archives built from a host
// resource. Host resources are gzip-compressed by default.
func WithCompression(c compression.Compression) Opt {
	return func(r *Request) error {
		switch c {
		case compression.None, compression.Gzip:
			r.Compression = c
			return nil
		default:
			return cerrdefs.ErrInvalidArgument.WithMessage(fmt.Sprintf("unsupported compression: %s", c.Extension()))
		}
	}
}

// WithExcludePatterns skips host paths matching any of the patterns.
func WithExcludePatterns(patterns ...string) Opt {
	return func(r *Request) error {
		r.ExcludePatterns = append(r.ExcludePatterns, patterns...)
		return nil
	}
}

func errSourceAlreadySet(src Source) error {
	return cerrdefs.ErrInvalidArgument.WithMessage(fmt.Sprintf("a %s source is already set; only one of host resource or tar stream can be used", src.Kind()))
}

// Command copies an archive into a container.
type Command struct {
	copier ContainerCopier
	req    Request
}

// New returns a command copying into containerID. Exactly one of
// [WithHostResource], [WithTarStream] or [WithSource] must be given.
func New(copier ContainerCopier, containerID string, opts ...Opt) (*Command, error) {
	if copier == nil {
		return nil, cerrdefs.ErrInvalidArgument.WithMessage("no API client")
	}
	c := &Command{
		copier: copier,
		req: Request{
			ContainerID:          containerID,
			RemotePath:           DefaultRemotePath,
			NoOverwriteDirNonDir: true,
			Compression:          compression.Gzip,
		},
	}
	for _, opt := range opts {
		if err := opt(&c.req); err != nil {
			return nil, err
		}
	}
	if err := c.req.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Request returns a copy of the command's configuration.
func (c *Command) Request() Request {
	return c.req
}

// Exec sends the archive to the container. The stream opened from the
// source is closed before Exec returns, whatever the outcome.
func (c *Command) Exec(ctx context.Context) (retErr error) {
	if err := c.req.Validate(); err != nil {
		return err
	}

	logger := log.G(ctx).WithFields(log.Fields{
		"container":   c.req.ContainerID,
		"path":        c.req.RemotePath,
		"source":      c.req.Source.Kind(),
		"archiveMode": c.req.ArchiveMode,
	})
	logger.Debug("copying archive to container")

	content, err := c.req.Source.Open(ctx, c.req.tarOptions())
	if err != nil {
		return err
	}
	body := &trackingReader{ReadCloser: content}
	defer func() {
		if err := body.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("closing archive: %w", err)
		}
	}()

	err = c.copier.CopyToContainer(ctx, c.req.ContainerID, c.req.RemotePath, body, client.CopyToContainerOptions{
		AllowOverwriteDirWithFile: !c.req.NoOverwriteDirNonDir,
		CopyUIDGID:                c.req.CopyUIDGID,
	})
	if err != nil {
		// A failure while producing the archive surfaces in the transport
		// as a generic request error; report the archive error instead.
		if readErr := body.Err(); readErr != nil {
			err = fmt.Errorf("reading archive: %w", readErr)
		}
		logger.WithError(err).Debug("copy to container failed")
		return err
	}
	logger.WithField("bytes", body.N()).Debug("copied archive to container")
	return nil
}

// trackingReader records the first read error and the number of bytes read.
// The HTTP transport closes the request body too, so Close is idempotent.
type trackingReader struct {
	io.ReadCloser

	mu  sync.Mutex
	n   int64
	err error

	closeOnce sync.Once
	closeErr  error
}

func (r *trackingReader) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.ReadCloser.Close()
	})
	return r.closeErr
}

func (r *trackingReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.mu.Lock()
	r.n += int64(n)
	if err != nil && !errors.Is(err, io.EOF) && r.err == nil {
		r.err = err
	}
	r.mu.Unlock()
	return n, err
}

func (r *trackingReader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *trackingReader) N() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}
