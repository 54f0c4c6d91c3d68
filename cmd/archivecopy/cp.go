package main

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/containerd/log"
	"github.com/docker/go-units"
	"github.com/moby/go-archive/compression"
	"github.com/moby/locker"
	"github.com/moby/term"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/moby/archivecopy/pkg/archive"
	"github.com/moby/archivecopy/transfer"
)

type copyOptions struct {
	archive            bool
	gzip               bool
	childrenOnly       bool
	copyUIDGID         bool
	overwriteDirNonDir bool
	exclude            []string
	verify             bool
	parallel           int
}

// copyTarget is one CONTAINER:DEST_PATH argument.
type copyTarget struct {
	container string
	path      string
}

func (t copyTarget) String() string {
	return t.container + ":" + t.path
}

func newCopyCommand(root *rootOptions) *cobra.Command {
	var opts copyOptions

	cmd := &cobra.Command{
		Use:   "cp [OPTIONS] SRC_PATH|- CONTAINER:DEST_PATH [CONTAINER:DEST_PATH...]",
		Short: "Copy a host file or directory, or a tar stream from STDIN, into containers",
		Long: `Copy a host file or directory into one or more containers.

Use '-' as the source to read a tar archive from STDIN; the archive is
extracted to each destination directory. A tar stream can only be sent to a
single destination.`,
		Args: invalidArgs(cobra.MinimumNArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.applyConfig(cmd, root.cfg.Copy)
			return runCopy(cmd.Context(), root, &opts, cmd.OutOrStdout(), args[0], args[1:])
		},
	}

	flags := cmd.Flags()
	flags.BoolVarP(&opts.archive, "archive", "a", false, "Archive mode (copy all uid/gid information)")
	flags.BoolVar(&opts.gzip, "gzip", true, "Compress the archive built from SRC_PATH")
	flags.BoolVar(&opts.childrenOnly, "children-only", false, "Copy the contents of a source directory rather than the directory itself")
	flags.BoolVar(&opts.copyUIDGID, "copy-uidgid", false, "Ask the engine to keep the uid/gid of the archive entries")
	flags.BoolVar(&opts.overwriteDirNonDir, "overwrite-dir-non-dir", false, "Allow replacing a directory with a non-directory and vice versa")
	flags.StringSliceVar(&opts.exclude, "exclude", nil, "Exclude files matching the pattern from SRC_PATH (repeatable)")
	flags.BoolVar(&opts.verify, "verify", false, "Stat the copied entry in each container after the copy")
	flags.IntVar(&opts.parallel, "parallel", 4, "Maximum number of containers copied to at the same time")
	return cmd
}

// invalidArgs marks argument count errors as invalid input.
func invalidArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return cerrdefs.ErrInvalidArgument.WithMessage(err.Error())
		}
		return nil
	}
}

// applyConfig fills every flag that was not set on the command line from
// the config file.
func (opts *copyOptions) applyConfig(cmd *cobra.Command, cfg CopyConfig) {
	flags := cmd.Flags()
	if !flags.Changed("archive") {
		opts.archive = cfg.Archive
	}
	if !flags.Changed("gzip") {
		opts.gzip = cfg.Gzip
	}
	if !flags.Changed("copy-uidgid") {
		opts.copyUIDGID = cfg.CopyUIDGID
	}
	if !flags.Changed("overwrite-dir-non-dir") {
		opts.overwriteDirNonDir = cfg.OverwriteDirNonDir
	}
	if !flags.Changed("exclude") {
		opts.exclude = cfg.Exclude
	}
	if !flags.Changed("parallel") {
		opts.parallel = cfg.Parallel
	}
}

// splitCpArg parses a CONTAINER:DEST_PATH argument.
func splitCpArg(arg string) (copyTarget, error) {
	ctr, p, ok := strings.Cut(arg, ":")
	if !ok || ctr == "" || p == "" {
		return copyTarget{}, cerrdefs.ErrInvalidArgument.WithMessage(fmt.Sprintf("invalid destination %q: must be CONTAINER:DEST_PATH", arg))
	}
	return copyTarget{container: ctr, path: p}, nil
}

func runCopy(ctx context.Context, root *rootOptions, opts *copyOptions, out io.Writer, srcArg string, destArgs []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.parallel < 1 {
		return cerrdefs.ErrInvalidArgument.WithMessage(fmt.Sprintf("--parallel must be at least 1, got %d", opts.parallel))
	}

	targets := make([]copyTarget, 0, len(destArgs))
	for _, arg := range destArgs {
		t, err := splitCpArg(arg)
		if err != nil {
			return err
		}
		targets = append(targets, t)
	}

	// Every target opens the same source. A host path is archived again for
	// each of them; STDIN can only be read once.
	var src transfer.Source
	if srcArg == "-" {
		if len(targets) > 1 {
			return cerrdefs.ErrInvalidArgument.WithMessage("a tar stream from STDIN can only be copied to a single destination")
		}
		if root.stdin == nil {
			return cerrdefs.ErrInvalidArgument.WithMessage("no STDIN available to read the tar stream from")
		}
		if _, isTerminal := term.GetFdInfo(root.stdin); isTerminal {
			return cerrdefs.ErrInvalidArgument.WithMessage("refusing to read a tar stream from a terminal; redirect STDIN from a file or a pipe")
		}
		src = transfer.NewStreamSource(root.stdin)
	} else {
		src = &transfer.PathSource{Path: srcArg}
	}

	comp := compression.None
	if opts.gzip {
		comp = compression.Gzip
	}

	apiClient, err := root.newClient(root)
	if err != nil {
		return errors.Wrap(err, "failed to create engine client")
	}
	defer apiClient.Close()

	var mu sync.Mutex
	// Copies into the same container run one at a time so that repeated
	// destinations in one invocation do not extract over each other.
	containerLocks := locker.New()
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.parallel)
	for _, target := range targets {
		g.Go(func() error {
			counter := &countingSource{Source: src}
			cmd, err := transfer.New(apiClient, target.container,
				transfer.WithSource(counter),
				transfer.WithRemotePath(target.path),
				transfer.WithArchiveMode(opts.archive),
				transfer.WithNoOverwriteDirNonDir(!opts.overwriteDirNonDir),
				transfer.WithCopyUIDGID(opts.copyUIDGID),
				transfer.WithDirChildrenOnly(opts.childrenOnly),
				transfer.WithCompression(comp),
				transfer.WithExcludePatterns(opts.exclude...),
			)
			if err != nil {
				return errors.Wrapf(err, "copying to %s", target)
			}
			containerLocks.Lock(target.container)
			err = cmd.Exec(ctx)
			_ = containerLocks.Unlock(target.container)
			if err != nil {
				return errors.Wrapf(err, "copying to %s", target)
			}

			msg := fmt.Sprintf("Successfully copied %s to %s", units.HumanSize(float64(counter.N())), target)
			if opts.verify {
				p := verifyPath(srcArg, target.path, opts.childrenOnly)
				stat, err := apiClient.ContainerStatPath(ctx, target.container, p)
				if err != nil {
					return errors.Wrapf(err, "verifying %s:%s", target.container, p)
				}
				msg += fmt.Sprintf(" (%s: %s %s)", stat.Name, stat.Mode, units.HumanSize(float64(stat.Size)))
			}

			mu.Lock()
			defer mu.Unlock()
			_, err = fmt.Fprintln(out, msg)
			return err
		})
	}
	return g.Wait()
}

// verifyPath returns the path in the container that the copy created or
// updated. Streams and directory children land in the destination itself.
func verifyPath(srcArg, destPath string, childrenOnly bool) string {
	if srcArg == "-" || childrenOnly {
		return destPath
	}
	_, base := archive.SplitPathDirEntry(srcArg)
	if base == "." || base == string(filepath.Separator) {
		return destPath
	}
	return path.Join(destPath, filepath.ToSlash(base))
}

// countingSource counts the archive bytes read from the wrapped source.
type countingSource struct {
	transfer.Source
	n atomic.Int64
}

func (s *countingSource) Open(ctx context.Context, opts archive.TarOptions) (io.ReadCloser, error) {
	rc, err := s.Source.Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	log.G(ctx).WithField("source", s.Kind()).Debug("archive opened")
	return &countingReader{ReadCloser: rc, n: &s.n}, nil
}

func (s *countingSource) N() int64 {
	return s.n.Load()
}

type countingReader struct {
	io.ReadCloser
	n *atomic.Int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.n.Add(int64(n))
	return n, err
}
