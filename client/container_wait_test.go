package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/moby/archivecopy/api/types/container"
)

// If the HTTP connection is closed while waiting, the client reports an
// unexpected EOF instead of a bare io.EOF.
func TestContainerWaitConnectionClosed(t *testing.T) {
	client, err := NewClientWithOpts(WithHTTPClient(newMockClient(mockResponse(http.StatusOK, nil, ""))))
	assert.NilError(t, err)

	resultC, errC := client.ContainerWait(context.Background(), "container_id", "")
	select {
	case result := <-resultC:
		t.Fatalf("expected to not get a wait result, got %d", result.StatusCode)
	case err := <-errC:
		assert.Check(t, is.ErrorIs(err, io.ErrUnexpectedEOF))
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for the wait result")
	}
}

func TestContainerWaitErrorMessage(t *testing.T) {
	client, err := NewClientWithOpts(WithHTTPClient(newMockClient(mockResponse(http.StatusOK, nil,
		`{"StatusCode": 0, "Error": {"Message": "failed to remove container"}}`))))
	assert.NilError(t, err)

	_, errC := client.ContainerWait(context.Background(), "container_id", container.WaitConditionRemoved)
	err = <-errC
	assert.Check(t, is.Error(err, "failed to remove container"))
}

func TestContainerWait(t *testing.T) {
	const expectedURL = "/v1.47/containers/container_id/wait"
	client, err := NewClientWithOpts(WithHTTPClient(newMockClient(func(req *http.Request) (*http.Response, error) {
		if !strings.HasPrefix(req.URL.Path, expectedURL) {
			return nil, fmt.Errorf("expected URL '%s', got '%s'", expectedURL, req.URL)
		}
		if condition := req.URL.Query().Get("condition"); condition != string(container.WaitConditionNextExit) {
			return nil, fmt.Errorf("expected condition %q, got %q", container.WaitConditionNextExit, condition)
		}
		return mockResponse(http.StatusOK, nil, `{"StatusCode": 15}`)(req)
	})))
	assert.NilError(t, err)

	resultC, errC := client.ContainerWait(context.Background(), "container_id", container.WaitConditionNextExit)
	select {
	case err := <-errC:
		assert.NilError(t, err)
	case result := <-resultC:
		assert.Check(t, is.Equal(result.StatusCode, int64(15)))
	}
}
