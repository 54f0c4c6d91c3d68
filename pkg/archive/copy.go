package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/containerd/log"
	"github.com/moby/go-archive"
	"github.com/moby/patternmatcher"
)

// ErrNotDirectory reports a source path that ends in a separator or "/."
// but names something other than a directory.
var ErrNotDirectory = archive.ErrNotDirectory

// AssertsDirectory reports whether path can only name a directory: it ends
// in a separator or its last element is ".".
func AssertsDirectory(path string) bool {
	return (path != "" && os.IsPathSeparator(path[len(path)-1])) || filepath.Base(path) == "."
}

// SplitPathDirEntry cleans path and returns its parent directory and last
// element. A trailing "." survives the cleaning so that "dir/." yields
// ("dir", ".").
func SplitPathDirEntry(path string) (dir, base string) {
	return archive.SplitPathDirEntry(path)
}

// TarResource streams sourcePath, a file or a directory, as a tar archive.
// Entries are named relative to the parent of sourcePath, so the archive
// holds a single top-level entry, unless options.DirChildrenOnly is set and
// sourcePath is a directory, in which case the archive holds its children.
// Exclude patterns are always relative to sourcePath.
//
// A missing or unreadable sourcePath, or one asserted to be a directory
// that is not, fails before any byte is produced.
func TarResource(sourcePath string, options *TarOptions) (io.ReadCloser, error) {
	fi, err := os.Lstat(sourcePath)
	if err != nil {
		return nil, err
	}
	if AssertsDirectory(sourcePath) && !fi.IsDir() {
		return nil, &os.PathError{Op: "archive", Path: sourcePath, Err: ErrNotDirectory}
	}
	if err := checkReadable(sourcePath, fi); err != nil {
		return nil, err
	}

	var opts TarOptions
	if options != nil {
		opts = *options
	}

	if opts.DirChildrenOnly && fi.IsDir() {
		opts.IncludeFiles = nil
		opts.IncludeSourceDir = false
		log.G(context.TODO()).Debugf("copying children of %q", sourcePath)
		return TarWithOptions(sourcePath, &opts)
	}

	sourceDir, sourceBase := SplitPathDirEntry(sourcePath)
	opts.IncludeFiles = []string{sourceBase}
	opts.IncludeSourceDir = false
	opts.ExcludePatterns, err = anchorPatterns(sourceBase, opts.ExcludePatterns)
	if err != nil {
		return nil, err
	}

	log.G(context.TODO()).Debugf("copying %q from %q", sourceBase, sourceDir)
	return TarWithOptions(sourceDir, &opts)
}

// anchorPatterns rewrites exclude patterns written relative to a source so
// that they match below base, the name the source is archived under.
func anchorPatterns(base string, patterns []string) ([]string, error) {
	pm, err := patternmatcher.New(patterns)
	if err != nil {
		return nil, err
	}
	anchored := make([]string, 0, len(pm.Patterns()))
	for _, p := range pm.Patterns() {
		pattern := filepath.Join(base, p.String())
		if p.Exclusion() {
			pattern = "!" + pattern
		}
		anchored = append(anchored, pattern)
	}
	return anchored, nil
}

// checkReadable opens the top of the source; go-archive only logs such
// failures.
func checkReadable(path string, fi os.FileInfo) error {
	if !fi.IsDir() && !fi.Mode().IsRegular() {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if fi.IsDir() {
		_, err = f.Readdirnames(1)
		if err == io.EOF {
			err = nil
		}
	}
	return err
}
