package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/moby/archivecopy/api/types/container"
)

// containerPathStatHeader is the response header carrying the base64-encoded
// JSON [container.PathStat] of the resource an archive request refers to.
const containerPathStatHeader = "X-Docker-Container-Path-Stat"

// CopyToContainerOptions holds information
// about files to copy into a container
type CopyToContainerOptions struct {
	// AllowOverwriteDirWithFile permits an existing directory in the
	// container to be replaced by a non-directory from the archive, and
	// vice versa.
	AllowOverwriteDirWithFile bool

	// CopyUIDGID asks the daemon to chown the extracted content to the
	// user and group the container is configured to run as.
	CopyUIDGID bool
}

// ContainerStatPath returns stat information about a path inside the container filesystem.
func (cli *Client) ContainerStatPath(ctx context.Context, containerID, path string) (container.PathStat, error) {
	containerID, err := trimContainerID(containerID)
	if err != nil {
		return container.PathStat{}, err
	}

	query := url.Values{}
	query.Set("path", filepath.ToSlash(path)) // Normalize the paths used in the API.

	resp, err := cli.head(ctx, "/containers/"+containerID+"/archive", query, nil)
	defer ensureReaderClosed(resp)
	if err != nil {
		return container.PathStat{}, err
	}
	return getContainerPathStatFromHeader(resp.Header)
}

// CopyToContainer copies content into the container filesystem.
// Note that `content` must be a Reader for a TAR archive, which may be
// compressed; the daemon detects the compression.
//
// The target path must be an existing directory in the container. A container
// that does not exist results in an error for which [IsErrNotFound] is true.
func (cli *Client) CopyToContainer(ctx context.Context, containerID, dstPath string, content io.Reader, options CopyToContainerOptions) error {
	containerID, err := trimContainerID(containerID)
	if err != nil {
		return err
	}

	query := url.Values{}
	query.Set("path", filepath.ToSlash(dstPath)) // Normalize the paths used in the API.
	// Do not allow for an existing directory to be overwritten by a non-directory and vice versa.
	if !options.AllowOverwriteDirWithFile {
		query.Set("noOverwriteDirNonDir", "true")
	}

	if options.CopyUIDGID {
		query.Set("copyUIDGID", "true")
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/x-tar")

	resp, err := cli.putRaw(ctx, "/containers/"+containerID+"/archive", query, content, headers)
	defer ensureReaderClosed(resp)
	return err
}

// CopyFromContainer gets the content from the container and returns it as a Reader
// for a TAR archive to manipulate it in the host. It's up to the caller to close the reader.
func (cli *Client) CopyFromContainer(ctx context.Context, containerID, srcPath string) (io.ReadCloser, container.PathStat, error) {
	containerID, err := trimContainerID(containerID)
	if err != nil {
		return nil, container.PathStat{}, err
	}

	query := make(url.Values, 1)
	query.Set("path", filepath.ToSlash(srcPath)) // Normalize the paths used in the API.

	resp, err := cli.get(ctx, "/containers/"+containerID+"/archive", query, nil)
	if err != nil {
		ensureReaderClosed(resp)
		return nil, container.PathStat{}, err
	}

	// The stat of the source travels in a header, next to the archive.
	stat, err := getContainerPathStatFromHeader(resp.Header)
	if err != nil {
		ensureReaderClosed(resp)
		return nil, stat, fmt.Errorf("unable to get resource stat from response: %w", err)
	}
	return resp.Body, stat, nil
}

func getContainerPathStatFromHeader(header http.Header) (container.PathStat, error) {
	var stat container.PathStat

	encodedStat := header.Get(containerPathStatHeader)
	statDecoder := base64.NewDecoder(base64.StdEncoding, strings.NewReader(encodedStat))

	err := json.NewDecoder(statDecoder).Decode(&stat)
	if err != nil {
		err = fmt.Errorf("unable to decode container path stat header: %w", err)
	}

	return stat, err
}
