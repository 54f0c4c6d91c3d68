package main

import (
	"path/filepath"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
	"gotest.tools/v3/env"
	"gotest.tools/v3/fs"
)

func TestLoadConfig(t *testing.T) {
	f := fs.NewFile(t, "archivecopy.toml", fs.WithContent(`
host = "tcp://127.0.0.1:2375"
api_version = "1.44"
timeout = "1m30s"
tlsverify = true
tlscacert = "/etc/archivecopy/ca.pem"

[copy]
archive = true
exclude = ["*.log", "!keep.log"]
`))

	cfg, err := loadConfig(f.Path())
	assert.NilError(t, err)
	assert.Check(t, is.DeepEqual(cfg, &Config{
		Host:       "tcp://127.0.0.1:2375",
		APIVersion: "1.44",
		Timeout:    duration(90 * time.Second),
		TLSVerify:  true,
		TLSCACert:  "/etc/archivecopy/ca.pem",
		Copy: CopyConfig{
			Archive:  true,
			Gzip:     true,
			Exclude:  []string{"*.log", "!keep.log"},
			Parallel: 4,
		},
	}))
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.NilError(t, err)
	assert.Check(t, is.DeepEqual(cfg, defaultConfig()))

	cfg, err = loadConfig("")
	assert.NilError(t, err)
	assert.Check(t, is.DeepEqual(cfg, defaultConfig()))
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		doc           string
		content       string
		expectedError string
	}{
		{doc: "unknown key", content: "hots = \"unix:///run/docker.sock\"\n", expectedError: "strict mode"},
		{doc: "wrong type", content: "[copy]\narchive = \"yes\"\n", expectedError: "failed to load config"},
		{doc: "parallel", content: "[copy]\nparallel = 0\n", expectedError: "copy.parallel must be at least 1"},
		{doc: "timeout", content: "timeout = \"soon\"\n", expectedError: "failed to load config"},
		{doc: "negative timeout", content: "timeout = \"-1s\"\n", expectedError: "timeout must not be negative"},
	}
	for _, tc := range tests {
		t.Run(tc.doc, func(t *testing.T) {
			f := fs.NewFile(t, "archivecopy.toml", fs.WithContent(tc.content))
			_, err := loadConfig(f.Path())
			assert.Check(t, is.ErrorContains(err, tc.expectedError))
		})
	}
}

func TestDefaultConfigFile(t *testing.T) {
	env.Patch(t, envConfigFile, "/etc/archivecopy.toml")
	assert.Check(t, is.Equal(defaultConfigFile(), "/etc/archivecopy.toml"))
}

func TestGlobalFlagsOverrideConfig(t *testing.T) {
	f := fs.NewFile(t, "archivecopy.toml", fs.WithContent("host = \"tcp://from-config:2375\"\napi_version = \"1.44\"\n"))

	opts := newRootOptions()
	opts.newClient = func(*rootOptions) (apiClient, error) { return newFakeClient(), nil }
	cmd := newRootCommand(opts)
	cmd.SetArgs([]string{"--config", f.Path(), "-H", "tcp://from-flag:2375", "cp", "-", "c1:/tmp"})
	// STDIN is unset, so the command fails after the global flags are resolved.
	err := cmd.Execute()
	assert.Check(t, is.ErrorContains(err, "no STDIN"))

	assert.Check(t, is.Equal(opts.host, "tcp://from-flag:2375"))
	assert.Check(t, is.Equal(opts.apiVersion, "1.44"))
}
