// Package container creates and inspects the containers the integration
// suites copy archives into.
package container

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/moby/archivecopy/api/types/container"
	"github.com/moby/archivecopy/client"
	"github.com/moby/archivecopy/pkg/stdcopy"
)

// TestContainerConfig holds container configuration struct that
// are used in api calls.
type TestContainerConfig struct {
	Name       string
	Config     *container.Config
	HostConfig *container.HostConfig
}

// Create creates a container with the specified options. The container is
// force-removed when the test ends.
func Create(ctx context.Context, t testing.TB, apiClient client.APIClient, ops ...func(*TestContainerConfig)) string {
	t.Helper()
	config := &TestContainerConfig{
		Config: &container.Config{
			Image: "busybox",
			Cmd:   []string{"top"},
		},
		HostConfig: &container.HostConfig{},
	}

	for _, op := range ops {
		op(config)
	}

	c, err := apiClient.ContainerCreate(ctx, config.Config, config.HostConfig, nil, config.Name)
	assert.NilError(t, err)

	t.Cleanup(func() {
		_ = apiClient.ContainerRemove(context.WithoutCancel(ctx), c.ID, client.ContainerRemoveOptions{Force: true})
	})
	return c.ID
}

// RunResult is the outcome of a container run to completion.
type RunResult struct {
	ContainerID string
	ExitCode    int64
	Stdout      *bytes.Buffer
	Stderr      *bytes.Buffer
}

// Start starts an existing container, waits for it to exit and collects its
// output.
func Start(ctx context.Context, apiClient client.APIClient, id string) (RunResult, error) {
	// Register the wait before starting so a short-lived process cannot
	// exit unnoticed.
	waitC, errC := apiClient.ContainerWait(ctx, id, container.WaitConditionNextExit)

	if err := apiClient.ContainerStart(ctx, id, client.ContainerStartOptions{}); err != nil {
		return RunResult{ContainerID: id}, err
	}

	res := RunResult{ContainerID: id}
	select {
	case err := <-errC:
		return res, err
	case resp := <-waitC:
		if resp.Error != nil {
			return res, errors.New(resp.Error.Message)
		}
		res.ExitCode = resp.StatusCode
	}

	rc, err := apiClient.ContainerLogs(ctx, id, client.ContainerLogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return res, err
	}
	defer rc.Close()

	res.Stdout, res.Stderr = &bytes.Buffer{}, &bytes.Buffer{}
	_, err = stdcopy.StdCopy(res.Stdout, res.Stderr, rc)
	return res, err
}
