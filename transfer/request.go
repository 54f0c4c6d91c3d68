package transfer

import (
	"strings"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/moby/go-archive/compression"

	"github.com/moby/archivecopy/pkg/archive"
)

// DefaultRemotePath is the destination used when none is configured.
const DefaultRemotePath = "/"

// Request describes one copy of an archive into a container.
type Request struct {
	ContainerID string
	Source      Source

	// RemotePath is the directory in the container the archive is
	// extracted into. It must exist.
	RemotePath string

	// ArchiveMode keeps the host uid/gid (and user and group names) on
	// archived entries. Otherwise entries are owned by 0:0, the default
	// identity inside a container.
	ArchiveMode bool

	// NoOverwriteDirNonDir refuses to replace an existing directory with a
	// non-directory, and vice versa.
	NoOverwriteDirNonDir bool

	// CopyUIDGID asks the engine to chown extracted content to the user
	// the container is configured to run as.
	CopyUIDGID bool

	// DirChildrenOnly archives the children of a source directory instead
	// of the directory itself.
	DirChildrenOnly bool

	Compression     compression.Compression
	ExcludePatterns []string
}

// Validate checks the request locally, before anything is sent.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.ContainerID) == "" {
		return cerrdefs.ErrInvalidArgument.WithMessage("container ID must not be empty")
	}
	if r.Source == nil {
		return cerrdefs.ErrInvalidArgument.WithMessage("either a host resource or a tar stream must be set")
	}
	if p, ok := r.Source.(*PathSource); ok && p.Path == "" {
		return cerrdefs.ErrInvalidArgument.WithMessage("host resource path must not be empty")
	}
	if r.RemotePath == "" {
		return cerrdefs.ErrInvalidArgument.WithMessage("remote path must not be empty")
	}
	return nil
}

func (r *Request) tarOptions() archive.TarOptions {
	return archive.TarOptions{
		Compression:       r.Compression,
		ExcludePatterns:   r.ExcludePatterns,
		PreserveOwnership: r.ArchiveMode,
		DirChildrenOnly:   r.DirChildrenOnly,
	}
}
