package client

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/distribution/reference"
)

// ImagePullOptions configures [Client.ImagePull].
type ImagePullOptions struct {
	// All pulls every tag of the repository.
	All bool
	// RegistryAuth is sent as the X-Registry-Auth header.
	RegistryAuth string
	Platform     string
}

// ImagePull asks the engine to pull refStr. The returned stream carries JSON
// progress messages and the pull finishes when it is drained. The caller
// must close it.
func (cli *Client) ImagePull(ctx context.Context, refStr string, options ImagePullOptions) (io.ReadCloser, error) {
	ref, err := reference.ParseNormalizedNamed(refStr)
	if err != nil {
		return nil, cerrdefs.ErrInvalidArgument.WithMessage(err.Error())
	}

	query := url.Values{}
	query.Set("fromImage", ref.Name())
	if !options.All {
		query.Set("tag", pullTag(ref))
	}
	if options.Platform != "" {
		query.Set("platform", strings.ToLower(options.Platform))
	}

	var headers http.Header
	if options.RegistryAuth != "" {
		headers = http.Header{"X-Registry-Auth": {options.RegistryAuth}}
	}

	resp, err := cli.post(ctx, "/images/create", query, nil, headers)
	if err != nil {
		ensureReaderClosed(resp)
		return nil, err
	}
	return resp.Body, nil
}

// pullTag is the "tag" query value for ref. The engine takes a digest in the
// same parameter, and an untagged reference means "latest".
func pullTag(ref reference.Named) string {
	switch r := reference.TagNameOnly(ref).(type) {
	case reference.Digested:
		return r.Digest().String()
	case reference.Tagged:
		return r.Tag()
	default:
		return ""
	}
}
