// Package archive builds tar streams of host files and directories in the
// form the engine's archive endpoint expects. Walking, header construction,
// hard links and ownership overrides are done by [github.com/moby/go-archive].
package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/moby/go-archive"
	"github.com/moby/go-archive/compression"
)

// ChownOpts is the uid/gid pair written into every header when ownership
// is not preserved.
type ChownOpts = archive.ChownOpts

// TarOptions wraps the tar options.
type TarOptions struct {
	// IncludeFiles lists the paths, relative to the source directory, that
	// are archived. An empty list archives the whole directory.
	IncludeFiles []string
	// ExcludePatterns are patternmatcher patterns; matching paths and
	// everything below them are skipped.
	ExcludePatterns []string
	Compression     compression.Compression

	// PreserveOwnership keeps the host uid/gid of every entry and resolves
	// the matching user and group names. When unset, ownership is replaced
	// by ChownOpts (0:0 if nil).
	PreserveOwnership bool
	ChownOpts         *ChownOpts

	// IncludeSourceDir writes a header for the source directory itself
	// ("./") when archiving a whole directory.
	IncludeSourceDir bool

	// DirChildrenOnly makes TarResource archive the children of a source
	// directory rather than the directory itself. It has no effect on
	// TarWithOptions or when the source is not a directory.
	DirChildrenOnly bool
}

func toArchiveOpt(options *TarOptions) *archive.TarOptions {
	var chownOpts *archive.ChownOpts
	if !options.PreserveOwnership {
		chownOpts = &archive.ChownOpts{UID: 0, GID: 0}
		if options.ChownOpts != nil {
			chownOpts = &archive.ChownOpts{UID: options.ChownOpts.UID, GID: options.ChownOpts.GID}
		}
	}

	return &archive.TarOptions{
		IncludeFiles:     options.IncludeFiles,
		ExcludePatterns:  options.ExcludePatterns,
		ChownOpts:        chownOpts,
		IncludeSourceDir: options.IncludeSourceDir,
		// compressed by repack
		Compression: compression.None,
	}
}

// Tar creates an archive from the directory at `srcPath` with the given
// compression and returns it as a stream.
func Tar(srcPath string, comp compression.Compression) (io.ReadCloser, error) {
	return TarWithOptions(srcPath, &TarOptions{Compression: comp})
}

// TarWithOptions creates an archive of the directory at `srcPath`, only
// including files whose relative paths are included in `options.IncludeFiles`
// (if non-nil) or not matched by `options.ExcludePatterns`.
//
// A source file that cannot be read while the archive is produced leaves
// go-archive's stream truncated; the returned reader reports that as an
// error from Read instead of ending the archive early. Closing the reader
// stops the producer.
func TarWithOptions(srcPath string, options *TarOptions) (io.ReadCloser, error) {
	if options == nil {
		options = &TarOptions{}
	}

	fi, err := os.Stat(srcPath)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s: %w", srcPath, ErrNotDirectory)
	}

	rc, err := archive.TarWithOptions(srcPath, toArchiveOpt(options))
	if err != nil {
		return nil, err
	}
	return repack(rc, options), nil
}

// repack copies the uncompressed stream produced by go-archive entry by
// entry, fills in user and group names when ownership is preserved and
// applies the requested compression.
func repack(src io.ReadCloser, options *TarOptions) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		err := copyEntries(pw, src, options)
		src.Close()
		_ = pw.CloseWithError(err)
	}()
	return pr
}

func copyEntries(w io.Writer, src io.Reader, options *TarOptions) error {
	cw, err := compression.CompressStream(w, options.Compression)
	if err != nil {
		return err
	}

	var names *ownerNames
	if options.PreserveOwnership {
		names = newOwnerNames()
	}

	tr := tar.NewReader(src)
	tw := tar.NewWriter(cw)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("archive: %w", err)
		}
		if names != nil {
			hdr.Uname, hdr.Gname = names.lookup(hdr.Uid, hdr.Gid)
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if _, err := io.Copy(tw, tr); err != nil {
			return fmt.Errorf("archive: reading %s: %w", hdr.Name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return cw.Close()
}

// ownerNames caches uid and gid name lookups for one archive.
type ownerNames struct {
	users  map[int]string
	groups map[int]string
}

func newOwnerNames() *ownerNames {
	return &ownerNames{users: map[int]string{}, groups: map[int]string{}}
}

func (o *ownerNames) lookup(uid, gid int) (uname, gname string) {
	var ok bool
	if uname, ok = o.users[uid]; !ok {
		uname = lookupUserName(uid)
		o.users[uid] = uname
	}
	if gname, ok = o.groups[gid]; !ok {
		gname = lookupGroupName(gid)
		o.groups[gid] = gname
	}
	return uname, gname
}

// IsNotExist reports whether err reports a missing source path.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
