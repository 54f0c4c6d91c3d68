package client

import (
	"context"
	"io"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/moby/archivecopy/api/types/container"
)

// APIClient is the subset of the engine API used by archivecopy and its
// integration tests. [Client] implements it.
type APIClient interface {
	ContainerAPIClient
	ImageAPIClient
	SystemAPIClient
	ClientVersion() string
	DaemonHost() string
	NegotiateAPIVersion(ctx context.Context)
	Close() error
}

// ContainerAPIClient covers container lifecycle and archive transfer.
type ContainerAPIClient interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerLogs(ctx context.Context, containerID string, options ContainerLogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options ContainerRemoveOptions) error
	ContainerStart(ctx context.Context, containerID string, options ContainerStartOptions) error
	ContainerStatPath(ctx context.Context, containerID, path string) (container.PathStat, error)
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	CopyFromContainer(ctx context.Context, containerID, srcPath string) (io.ReadCloser, container.PathStat, error)
	CopyToContainer(ctx context.Context, containerID, path string, content io.Reader, options CopyToContainerOptions) error
}

type ImageAPIClient interface {
	ImagePull(ctx context.Context, ref string, options ImagePullOptions) (io.ReadCloser, error)
}

type SystemAPIClient interface {
	Ping(ctx context.Context) (PingResult, error)
}
