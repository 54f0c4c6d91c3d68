package client

import (
	"context"
	"io"
	"net/url"
)

// ContainerLogsOptions holds parameters to filter logs with.
type ContainerLogsOptions struct {
	ShowStdout bool
	ShowStderr bool
	Timestamps bool
	Follow     bool
	Tail       string
}

// ContainerLogs returns the logs generated by a container in an [io.ReadCloser].
// It's up to the caller to close the stream.
//
// The stream format on the response will be in one of two formats:
//
// If the container is using a TTY, there is only a single stream (stdout), and
// data is copied directly from the container output stream, no extra
// multiplexing or headers.
//
// If the container is *not* using a TTY, streams for stdout and stderr are
// multiplexed. Use [stdcopy.StdCopy] to separate them.
//
// [stdcopy.StdCopy]: https://pkg.go.dev/github.com/moby/archivecopy/pkg/stdcopy#StdCopy
func (cli *Client) ContainerLogs(ctx context.Context, containerID string, options ContainerLogsOptions) (io.ReadCloser, error) {
	containerID, err := trimContainerID(containerID)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	if options.ShowStdout {
		query.Set("stdout", "1")
	}
	if options.ShowStderr {
		query.Set("stderr", "1")
	}
	if options.Timestamps {
		query.Set("timestamps", "1")
	}
	if options.Follow {
		query.Set("follow", "1")
	}
	if options.Tail != "" {
		query.Set("tail", options.Tail)
	}

	resp, err := cli.get(ctx, "/containers/"+containerID+"/logs", query, nil)
	if err != nil {
		ensureReaderClosed(resp)
		return nil, err
	}
	return resp.Body, nil
}
