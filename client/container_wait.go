package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/url"

	"github.com/moby/archivecopy/api/types/container"
)

// ContainerWait waits until the specified container is in a certain state
// indicated by the given condition, either "not-running" (default),
// "next-exit", or "removed".
//
// It returns two channels: one on which the exit status is delivered once
// the condition is met, and one on which an error is delivered if waiting
// (or the request itself) fails. Exactly one of the channels receives a value.
func (cli *Client) ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	resultC := make(chan container.WaitResponse, 1)
	errC := make(chan error, 1)

	containerID, err := trimContainerID(containerID)
	if err != nil {
		errC <- err
		return resultC, errC
	}

	query := url.Values{}
	if condition != "" {
		query.Set("condition", string(condition))
	}

	resp, err := cli.post(ctx, "/containers/"+containerID+"/wait", query, nil, nil)
	if err != nil {
		defer ensureReaderClosed(resp)
		errC <- err
		return resultC, errC
	}

	go func() {
		defer ensureReaderClosed(resp)

		var res container.WaitResponse
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			errC <- err
			return
		}
		if res.Error != nil && res.Error.Message != "" {
			errC <- errors.New(res.Error.Message)
			return
		}

		resultC <- res
	}()

	return resultC, errC
}
