package main

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/moby/go-archive/compression"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
	"gotest.tools/v3/env"
	"gotest.tools/v3/fs"
	"gotest.tools/v3/skip"

	"github.com/moby/archivecopy/api/types/container"
	"github.com/moby/archivecopy/client"
)

type copyCall struct {
	path       string
	options    client.CopyToContainerOptions
	gzip       bool
	names      []string
	headers    map[string]*tar.Header
	rawContent []byte
}

// fakeClient records what every container received. Containers not in
// known answer with a not-found error.
type fakeClient struct {
	mu     sync.Mutex
	known  map[string]bool
	copies map[string][]copyCall
	stats  []string
	closed bool
}

func newFakeClient(containers ...string) *fakeClient {
	known := map[string]bool{}
	for _, c := range containers {
		known[c] = true
	}
	return &fakeClient{known: known, copies: map[string][]copyCall{}}
}

func (f *fakeClient) CopyToContainer(_ context.Context, containerID, path string, content io.Reader, options client.CopyToContainerOptions) error {
	raw, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	if !f.known[containerID] {
		return cerrdefs.ErrNotFound.WithMessage("No such container: " + containerID)
	}

	call := copyCall{
		path:       path,
		options:    options,
		gzip:       compression.Detect(raw) == compression.Gzip,
		headers:    map[string]*tar.Header{},
		rawContent: raw,
	}
	rc, err := compression.DecompressStream(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	defer rc.Close()
	tr := tar.NewReader(rc)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		call.names = append(call.names, hdr.Name)
		call.headers[hdr.Name] = hdr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.copies[containerID] = append(f.copies[containerID], call)
	return nil
}

func (f *fakeClient) ContainerStatPath(_ context.Context, containerID, path string) (container.PathStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.known[containerID] {
		return container.PathStat{}, cerrdefs.ErrNotFound.WithMessage("No such container: " + containerID)
	}
	f.stats = append(f.stats, containerID+":"+path)
	return container.PathStat{Name: filepath.Base(path), Size: 5, Mode: 0o644, Mtime: time.Unix(0, 0)}, nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

// runCLI runs the root command with args against fc, without a config file
// unless configFile is set.
func runCLI(t *testing.T, fc *fakeClient, stdin io.Reader, configFile string, args ...string) (string, error) {
	t.Helper()
	if configFile == "" {
		configFile = filepath.Join(t.TempDir(), "missing.toml")
	}
	env.Patch(t, envConfigFile, configFile)

	opts := newRootOptions()
	opts.stdin = stdin
	opts.newClient = func(*rootOptions) (apiClient, error) { return fc, nil }

	cmd := newRootCommand(opts)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func newSourceDir(t *testing.T) *fs.Dir {
	t.Helper()
	return fs.NewDir(t, "archivecopy-src",
		fs.WithFile("a.txt", "hello", fs.WithMode(0o644)),
		fs.WithFile("debug.log", "noise"),
		fs.WithDir("empty"),
	)
}

func TestCopyToSeveralContainers(t *testing.T) {
	src := newSourceDir(t)
	base := filepath.Base(src.Path())
	fc := newFakeClient("c1", "c2", "c3")

	out, err := runCLI(t, fc, nil, "", "cp", src.Path(), "c1:/tmp", "c2:/data", "c3:/tmp")
	assert.NilError(t, err)
	assert.Check(t, fc.closed)

	expected := []string{base + "/", base + "/a.txt", base + "/debug.log", base + "/empty/"}
	for ctr, dest := range map[string]string{"c1": "/tmp", "c2": "/data", "c3": "/tmp"} {
		calls := fc.copies[ctr]
		assert.Assert(t, is.Len(calls, 1), ctr)
		assert.Check(t, is.Equal(calls[0].path, dest))
		assert.Check(t, is.DeepEqual(calls[0].names, expected))
		assert.Check(t, calls[0].gzip)
		assert.Check(t, !calls[0].options.AllowOverwriteDirWithFile)
		assert.Check(t, is.Contains(out, "to "+ctr+":"+dest))
	}
	assert.Check(t, is.Equal(strings.Count(out, "Successfully copied"), 3))
}

func TestCopyFlags(t *testing.T) {
	src := newSourceDir(t)
	fc := newFakeClient("c1")

	_, err := runCLI(t, fc, nil, "",
		"cp", "--gzip=false", "--children-only", "--copy-uidgid", "--overwrite-dir-non-dir",
		"--exclude", "*.log", src.Path(), "c1:/srv")
	assert.NilError(t, err)

	calls := fc.copies["c1"]
	assert.Assert(t, is.Len(calls, 1))
	assert.Check(t, !calls[0].gzip)
	assert.Check(t, calls[0].options.AllowOverwriteDirWithFile)
	assert.Check(t, calls[0].options.CopyUIDGID)
	assert.Check(t, is.DeepEqual(calls[0].names, []string{"a.txt", "empty/"}))
}

func TestCopyArchiveMode(t *testing.T) {
	skip.If(t, runtime.GOOS == "windows", "ownership is not archived on Windows")
	src := newSourceDir(t)
	base := filepath.Base(src.Path())
	fc := newFakeClient("c1")

	_, err := runCLI(t, fc, nil, "", "cp", src.Path(), "c1:/tmp")
	assert.NilError(t, err)
	_, err = runCLI(t, fc, nil, "", "cp", "-a", src.Path(), "c1:/tmp")
	assert.NilError(t, err)

	calls := fc.copies["c1"]
	assert.Assert(t, is.Len(calls, 2))
	plain := calls[0].headers[base+"/a.txt"]
	archived := calls[1].headers[base+"/a.txt"]
	assert.Check(t, is.Equal(plain.Uid, 0))
	assert.Check(t, is.Equal(plain.Gid, 0))
	assert.Check(t, is.Equal(archived.Uid, os.Getuid()))
	assert.Check(t, is.Equal(archived.Gid, os.Getgid()))
}

func TestCopyFromStdin(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	assert.NilError(t, tw.WriteHeader(&tar.Header{Name: "from-stdin.txt", Mode: 0o600, Size: 3, Typeflag: tar.TypeReg}))
	_, err := tw.Write([]byte("abc"))
	assert.NilError(t, err)
	assert.NilError(t, tw.Close())
	payload := buf.Bytes()

	fc := newFakeClient("c1")
	out, err := runCLI(t, fc, bytes.NewReader(payload), "", "cp", "-", "c1:/in")
	assert.NilError(t, err)

	calls := fc.copies["c1"]
	assert.Assert(t, is.Len(calls, 1))
	assert.Check(t, is.DeepEqual(calls[0].rawContent, payload))
	assert.Check(t, is.DeepEqual(calls[0].names, []string{"from-stdin.txt"}))
	assert.Check(t, is.Contains(out, "to c1:/in"))
}

func TestCopyFromStdinToSeveralContainers(t *testing.T) {
	fc := newFakeClient("c1", "c2")
	_, err := runCLI(t, fc, strings.NewReader("whatever"), "", "cp", "-", "c1:/in", "c2:/in")
	assert.Check(t, is.ErrorContains(err, "single destination"))
	assert.Check(t, is.ErrorType(err, cerrdefs.IsInvalidArgument))
	assert.Check(t, is.Equal(exitCode(err), 2))
	assert.Check(t, is.Len(fc.copies, 0))
}

func TestCopyNotFoundContainer(t *testing.T) {
	src := newSourceDir(t)
	fc := newFakeClient("c1")

	_, err := runCLI(t, fc, nil, "", "cp", src.Path(), "c1:/tmp", "missing:/tmp")
	assert.Check(t, is.ErrorContains(err, "copying to missing:/tmp"))
	assert.Check(t, is.ErrorType(err, cerrdefs.IsNotFound))
	assert.Check(t, is.Equal(exitCode(err), 1))
}

func TestCopyMissingSource(t *testing.T) {
	fc := newFakeClient("c1")
	_, err := runCLI(t, fc, nil, "", "cp", filepath.Join(t.TempDir(), "nope"), "c1:/tmp")
	assert.Check(t, is.ErrorContains(err, "copying to c1:/tmp"))
	assert.Check(t, errors.Is(err, os.ErrNotExist))
	assert.Check(t, is.Len(fc.copies, 0))
}

func TestCopyVerify(t *testing.T) {
	src := newSourceDir(t)
	base := filepath.Base(src.Path())
	fc := newFakeClient("c1", "c2")

	out, err := runCLI(t, fc, nil, "", "cp", "--verify", src.Path(), "c1:/tmp", "c2:/data/")
	assert.NilError(t, err)

	sort.Strings(fc.stats)
	assert.Check(t, is.DeepEqual(fc.stats, []string{"c1:/tmp/" + base, "c2:/data/" + base}))
	assert.Check(t, is.Contains(out, "("+base+": -rw-r--r-- 5B)"))
}

func TestCopyConfigFile(t *testing.T) {
	src := newSourceDir(t)
	cfgFile := fs.NewFile(t, "archivecopy.toml", fs.WithContent(`
debug = true

[copy]
gzip = false
overwrite_dir_non_dir = true
exclude = ["*.log"]
parallel = 1
`))
	fc := newFakeClient("c1")

	// --gzip on the command line wins over the file.
	_, err := runCLI(t, fc, nil, cfgFile.Path(), "cp", src.Path(), "c1:/tmp")
	assert.NilError(t, err)
	_, err = runCLI(t, fc, nil, cfgFile.Path(), "cp", "--gzip", src.Path(), "c1:/tmp")
	assert.NilError(t, err)

	calls := fc.copies["c1"]
	assert.Assert(t, is.Len(calls, 2))
	base := filepath.Base(src.Path())
	for _, call := range calls {
		assert.Check(t, call.options.AllowOverwriteDirWithFile)
		assert.Check(t, is.DeepEqual(call.names, []string{base + "/", base + "/a.txt", base + "/empty/"}))
	}
	assert.Check(t, !calls[0].gzip)
	assert.Check(t, calls[1].gzip)
}

func TestCopyInvalidArgs(t *testing.T) {
	tests := []struct {
		doc           string
		args          []string
		expectedError string
	}{
		{doc: "missing destination", args: []string{"cp", "/tmp"}, expectedError: "requires at least 2 arg(s)"},
		{doc: "no container", args: []string{"cp", "/tmp", "/tmp"}, expectedError: `invalid destination "/tmp"`},
		{doc: "no path", args: []string{"cp", "/tmp", "c1:"}, expectedError: `invalid destination "c1:"`},
		{doc: "parallel", args: []string{"cp", "--parallel=0", "/tmp", "c1:/tmp"}, expectedError: "--parallel must be at least 1"},
	}
	for _, tc := range tests {
		t.Run(tc.doc, func(t *testing.T) {
			fc := newFakeClient("c1")
			_, err := runCLI(t, fc, nil, "", tc.args...)
			assert.Check(t, is.ErrorContains(err, tc.expectedError))
			assert.Check(t, is.ErrorType(err, cerrdefs.IsInvalidArgument))
			assert.Check(t, is.Equal(exitCode(err), 2))
			assert.Check(t, is.Len(fc.copies, 0))
		})
	}
}

func TestSplitCpArg(t *testing.T) {
	tests := []struct {
		arg      string
		expected copyTarget
		valid    bool
	}{
		{arg: "c1:/tmp", expected: copyTarget{container: "c1", path: "/tmp"}, valid: true},
		{arg: "c1:relative/dir", expected: copyTarget{container: "c1", path: "relative/dir"}, valid: true},
		{arg: "c1:/a:b", expected: copyTarget{container: "c1", path: "/a:b"}, valid: true},
		{arg: "c1"},
		{arg: ":/tmp"},
		{arg: "c1:"},
	}
	for _, tc := range tests {
		t.Run(tc.arg, func(t *testing.T) {
			target, err := splitCpArg(tc.arg)
			if !tc.valid {
				assert.Check(t, is.ErrorType(err, cerrdefs.IsInvalidArgument))
				return
			}
			assert.NilError(t, err)
			assert.Check(t, is.Equal(target, tc.expected))
		})
	}
}

func TestVerifyPath(t *testing.T) {
	skip.If(t, runtime.GOOS == "windows", "paths use '/' separators")

	tests := []struct {
		src          string
		dest         string
		childrenOnly bool
		expected     string
	}{
		{src: "/host/file.txt", dest: "/tmp", expected: "/tmp/file.txt"},
		{src: "/host/dir/", dest: "/tmp/", expected: "/tmp/dir"},
		{src: "/host/dir", dest: "/tmp", childrenOnly: true, expected: "/tmp"},
		{src: "/host/dir/.", dest: "/tmp", expected: "/tmp"},
		{src: "-", dest: "/in", expected: "/in"},
	}
	for _, tc := range tests {
		assert.Check(t, is.Equal(verifyPath(tc.src, tc.dest, tc.childrenOnly), tc.expected), tc.src)
	}
}

func TestCopySameContainerTwice(t *testing.T) {
	src := newSourceDir(t)
	fc := newFakeClient("c1")

	out, err := runCLI(t, fc, nil, "", "cp", "--parallel=2", src.Path(), "c1:/tmp", "c1:/data")
	assert.NilError(t, err)

	calls := fc.copies["c1"]
	assert.Assert(t, is.Len(calls, 2))
	paths := []string{calls[0].path, calls[1].path}
	sort.Strings(paths)
	assert.Check(t, is.DeepEqual(paths, []string{"/data", "/tmp"}))
	assert.Check(t, is.DeepEqual(calls[0].names, calls[1].names))
	assert.Check(t, is.Equal(strings.Count(out, "Successfully copied"), 2))
}
