// Package environment describes the engine the integration suites run
// against.
package environment

import (
	"context"
	"io"

	"github.com/containerd/log"
	"github.com/pkg/errors"

	"github.com/moby/archivecopy/client"
)

// DefaultImage is the image copy targets are created from. It has a shell
// and the coreutils the suites inspect containers with.
const DefaultImage = "busybox:latest"

// Execution holds information about the engine under test.
type Execution struct {
	client     client.APIClient
	OSType     string
	APIVersion string
}

// New pings the engine configured through the DOCKER_* environment
// variables and returns its description.
func New(ctx context.Context) (*Execution, error) {
	c, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(err, "failed to create engine client")
	}
	ping, err := c.Ping(ctx)
	if err != nil {
		_ = c.Close()
		return nil, errors.Wrapf(err, "engine at %s is not reachable", c.DaemonHost())
	}
	c.NegotiateAPIVersion(ctx)
	return &Execution{
		client:     c,
		OSType:     ping.OSType,
		APIVersion: c.ClientVersion(),
	}, nil
}

// APIClient returns the client shared by the tests.
func (e *Execution) APIClient() client.APIClient {
	return e.client
}

// IsWindows reports whether the engine runs Windows containers.
func (e *Execution) IsWindows() bool {
	return e.OSType == "windows"
}

// EnsureImage pulls ref and waits for the pull to complete.
func (e *Execution) EnsureImage(ctx context.Context, ref string) error {
	rc, err := e.client.ImagePull(ctx, ref, client.ImagePullOptions{})
	if err != nil {
		return errors.Wrapf(err, "pulling %s", ref)
	}
	defer rc.Close()
	// The pull completes once the progress stream is drained.
	n, err := io.Copy(io.Discard, rc)
	if err != nil {
		return errors.Wrapf(err, "pulling %s", ref)
	}
	log.G(ctx).WithField("image", ref).Debugf("pulled image (%d bytes of progress)", n)
	return nil
}

// Close releases the shared client.
func (e *Execution) Close() error {
	return e.client.Close()
}
