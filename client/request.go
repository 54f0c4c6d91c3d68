package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"reflect"
	"strings"

	cerrdefs "github.com/containerd/errdefs"

	"github.com/moby/archivecopy/api/types/common"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 1 << 20

// trimContainerID trims id and rejects it when nothing is left.
func trimContainerID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", cerrdefs.ErrInvalidArgument.WithMessage("invalid container name or ID: value is empty")
	}
	return id, nil
}

func (cli *Client) head(ctx context.Context, path string, query url.Values, headers http.Header) (*http.Response, error) {
	return cli.sendRequest(ctx, http.MethodHead, path, query, nil, headers)
}

func (cli *Client) get(ctx context.Context, path string, query url.Values, headers http.Header) (*http.Response, error) {
	return cli.sendRequest(ctx, http.MethodGet, path, query, nil, headers)
}

func (cli *Client) delete(ctx context.Context, path string, query url.Values, headers http.Header) (*http.Response, error) {
	return cli.sendRequest(ctx, http.MethodDelete, path, query, nil, headers)
}

// post sends body, if any, encoded as JSON.
func (cli *Client) post(ctx context.Context, path string, query url.Values, body any, headers http.Header) (*http.Response, error) {
	r, err := encodeJSONBody(body)
	if err != nil {
		return nil, err
	}
	if r != nil {
		headers = withHeader(headers, "Content-Type", "application/json")
	}
	return cli.sendRequest(ctx, http.MethodPost, path, query, r, headers)
}

// putRaw streams body as-is. The engine expects a body on every PUT, so a
// nil body is sent as an empty one.
func (cli *Client) putRaw(ctx context.Context, path string, query url.Values, body io.Reader, headers http.Header) (*http.Response, error) {
	if body == nil {
		body = http.NoBody
	}
	return cli.sendRequest(ctx, http.MethodPut, path, query, body, headers)
}

// encodeJSONBody returns nil for a nil body, including a typed nil pointer,
// which encoding/json would otherwise send as "null".
func encodeJSONBody(body any) (io.Reader, error) {
	if body == nil {
		return nil, nil
	}
	if v := reflect.ValueOf(body); v.Kind() == reflect.Ptr && v.IsNil() {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}
	return &buf, nil
}

func withHeader(headers http.Header, key, value string) http.Header {
	h := http.Header{}
	if headers != nil {
		h = headers.Clone()
	}
	h.Set(key, value)
	return h
}

func (cli *Client) buildRequest(ctx context.Context, method, path string, body io.Reader, headers http.Header) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	// Custom headers go first so they cannot replace the ones set by the
	// caller or the user agent.
	for k, v := range cli.customHTTPHeaders {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header[http.CanonicalHeaderKey(k)] = v
	}
	if cli.userAgent != nil {
		if *cli.userAgent == "" {
			req.Header.Del("User-Agent")
		} else {
			req.Header.Set("User-Agent", *cli.userAgent)
		}
	}

	req.URL.Scheme = cli.scheme
	req.URL.Host = cli.addr
	switch cli.proto {
	case "unix", "npipe":
		// Socket connections have no meaningful host.
		req.Host = DummyHost
	}

	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "text/plain")
	}
	return req, nil
}

// sendRequest performs an API call. A response with an error status is
// returned along with the error decoded from it.
func (cli *Client) sendRequest(ctx context.Context, method, path string, query url.Values, body io.Reader, headers http.Header) (*http.Response, error) {
	req, err := cli.buildRequest(ctx, method, cli.getAPIPath(ctx, path, query), body, headers)
	if err != nil {
		return nil, err
	}
	resp, err := cli.doRequest(req)
	if err != nil {
		return resp, err
	}
	return resp, checkResponseErr(resp)
}

// doRequest sends req. Transport failures are reported as connection
// failures with a hint at the likely cause; error status codes are not
// errors here.
func (cli *Client) doRequest(req *http.Request) (*http.Response, error) {
	resp, err := cli.client.Do(req)
	if err != nil {
		return nil, cli.connectError(err)
	}
	return resp, nil
}

func (cli *Client) connectError(err error) error {
	msg := err.Error()
	var (
		dnsErr *net.DNSError
		netErr net.Error
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Callers compare against the context sentinels directly.
		return err
	case cli.scheme != "https" && strings.Contains(msg, "malformed HTTP response"):
		return errConnectionFailed{fmt.Errorf("%w.\n* Are you trying to connect to a TLS-enabled daemon without TLS?", err)}
	case cli.scheme == "https" && (strings.Contains(msg, "handshake failure") || strings.Contains(msg, "bad certificate")):
		return errConnectionFailed{fmt.Errorf("the server probably has client authentication (--tlsverify) enabled; check your TLS client certification settings: %w", err)}
	case errors.Is(err, os.ErrPermission):
		return errConnectionFailed{fmt.Errorf("permission denied while trying to connect to the docker API at %v", cli.host)}
	case errors.Is(err, os.ErrNotExist):
		return errConnectionFailed{fmt.Errorf("failed to connect to the docker API at %v; check if the path is correct and if the daemon is running: %w", cli.host, errors.Unwrap(err))}
	case errors.As(err, &dnsErr):
		return errConnectionFailed{fmt.Errorf("failed to connect to the docker API at %v: %w", cli.host, dnsErr)}
	case errors.As(err, &netErr) && (netErr.Timeout() || strings.Contains(msg, "connection refused") || strings.Contains(msg, "dial unix")):
		return connectionFailed(cli.host)
	default:
		return errConnectionFailed{fmt.Errorf("error during connect: %w", err)}
	}
}

// checkResponseErr decodes the error carried by a 4xx or 5xx response and
// tags it with the errdefs class of the status code.
func checkResponseErr(resp *http.Response) error {
	if resp == nil || resp.StatusCode < http.StatusBadRequest {
		return nil
	}
	return httpErrorFromStatusCode(responseError(resp), resp.StatusCode)
}

func responseError(resp *http.Response) error {
	status := resp.Status
	if status == "" {
		status = http.StatusText(resp.StatusCode)
	}
	route := ""
	if resp.Request != nil {
		route = resp.Request.URL.String()
	}
	unsupported := func(detail string) error {
		if route != "" {
			return fmt.Errorf("request returned %s%s for API route and version %s, check if the server supports the requested API version", status, detail, route)
		}
		return fmt.Errorf("request returned %s%s; check if the server supports the requested API version", status, detail)
	}

	var body []byte
	if resp.Body != nil {
		lr := &io.LimitedReader{R: resp.Body, N: maxErrorBody}
		b, err := io.ReadAll(lr)
		if err != nil {
			return err
		}
		if lr.N == 0 {
			return unsupported(fmt.Sprintf(" with a message (> %d bytes)", maxErrorBody))
		}
		body = b
	}
	if len(body) == 0 {
		return unsupported("")
	}

	if resp.Header.Get("Content-Type") != "application/json" {
		// Plain text, or a page from a proxy in front of the engine.
		return fmt.Errorf("Error response from daemon: %w", errors.New(strings.TrimSpace(string(body))))
	}
	var errResp common.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		return fmt.Errorf("error reading JSON: %w", err)
	}
	if errResp.Message == "" {
		return fmt.Errorf("Error response from daemon: %w", fmt.Errorf("API returned a %d (%s) but provided no error-message", resp.StatusCode, http.StatusText(resp.StatusCode)))
	}
	return fmt.Errorf("Error response from daemon: %w", errors.New(strings.TrimSpace(errResp.Message)))
}

// ensureReaderClosed drains a little of the body and closes it, so the
// connection can be reused.
func ensureReaderClosed(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, resp.Body, 512)
	_ = resp.Body.Close()
}
