package client

import (
	"context"
	"net/http"
	"path"
	"strings"
)

// PingResult holds the result of a [Client.Ping] API call.
type PingResult struct {
	APIVersion     string
	OSType         string
	Experimental   bool
	BuilderVersion string
}

// Ping pings the server and returns the value of the "Docker-Experimental",
// "Builder-Version", "OS-Type" & "API-Version" headers. It attempts to use
// a HEAD request on the endpoint, but falls back to GET if HEAD is not supported
// by the daemon. It ignores internal server errors returned by the API, which
// may be returned if the daemon is in an unhealthy state, but returns errors
// for other non-success status codes, failing to connect to the API, or failing
// to parse the API response.
func (cli *Client) Ping(ctx context.Context) (PingResult, error) {
	// Using cli.buildRequest() + cli.doRequest() instead of cli.sendRequest()
	// because ping requests are used during API version negotiation, so we want
	// to hit the non-versioned /_ping endpoint, not /v1.xx/_ping
	req, err := cli.buildRequest(ctx, http.MethodHead, path.Join(cli.basePath, "/_ping"), nil, nil)
	if err != nil {
		return PingResult{}, err
	}
	resp, err := cli.doRequest(req)
	defer ensureReaderClosed(resp)
	if err == nil && resp.StatusCode == http.StatusOK {
		return parsePingResponse(resp), nil
	}
	if err != nil {
		return PingResult{}, err
	}

	// HEAD failed or returned a non-OK status; fallback to GET.
	req.Method = http.MethodGet
	resp, err = cli.doRequest(req)
	defer ensureReaderClosed(resp)
	if err != nil {
		return PingResult{}, err
	}
	if resp.StatusCode >= http.StatusInternalServerError && resp.Header.Get("Api-Version") != "" {
		// The daemon is reachable but unhealthy; report what it told us.
		return parsePingResponse(resp), nil
	}
	return parsePingResponse(resp), checkResponseErr(resp)
}

func parsePingResponse(resp *http.Response) PingResult {
	if resp == nil || resp.Header == nil {
		return PingResult{}
	}
	return PingResult{
		APIVersion:     resp.Header.Get("Api-Version"),
		OSType:         resp.Header.Get("Ostype"),
		Experimental:   strings.EqualFold(resp.Header.Get("Docker-Experimental"), "true"),
		BuilderVersion: resp.Header.Get("Builder-Version"),
	}
}
