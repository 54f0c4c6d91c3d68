package client

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/go-connections/sockets"
	"github.com/docker/go-connections/tlsconfig"
)

type clientConfig struct {
	// scheme is "https" when the transport has a TLS config, else "http".
	scheme string

	// host is the engine address as given, for example
	// "unix:///var/run/docker.sock". proto, addr and basePath are parsed
	// from it.
	host     string
	proto    string
	addr     string
	basePath string

	client *http.Client

	// version is the API version requests are sent with. manualOverride
	// is set when the caller chose it, which disables negotiation.
	version          string
	manualOverride   bool
	negotiateVersion bool

	// userAgent replaces any User-Agent in customHTTPHeaders; a pointer to
	// "" removes the header.
	userAgent         *string
	customHTTPHeaders map[string]string
}

// Opt is a configuration option to initialize a [Client].
type Opt func(*clientConfig) error

// FromEnv applies [WithTLSClientConfigFromEnv], [WithHostFromEnv] and
// [WithVersionFromEnv], in that order. The environment variables read are
// DOCKER_CERT_PATH, DOCKER_TLS_VERIFY, DOCKER_HOST and DOCKER_API_VERSION.
func FromEnv(c *clientConfig) error {
	for _, op := range []Opt{WithTLSClientConfigFromEnv(), WithHostFromEnv(), WithVersionFromEnv()} {
		if err := op(c); err != nil {
			return err
		}
	}
	return nil
}

// WithHost points the client at host, a URL such as "tcp://host:2376" or
// "unix:///run/docker.sock".
func WithHost(host string) Opt {
	return func(c *clientConfig) error {
		hostURL, err := ParseHostURL(host)
		if err != nil {
			return err
		}
		c.host = host
		c.proto, c.addr, c.basePath = hostURL.Scheme, hostURL.Host, hostURL.Path

		switch transport := c.client.Transport.(type) {
		case *http.Transport:
			return sockets.ConfigureTransport(transport, c.proto, c.addr)
		case testRoundTripper:
			return nil
		default:
			return fmt.Errorf("cannot apply host to transport: %T", c.client.Transport)
		}
	}
}

// testRoundTripper allows us to inject a mock-transport for testing.
type testRoundTripper func(*http.Request) (*http.Response, error)

func (tf testRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return tf(req)
}

// WithHostFromEnv applies [WithHost] with DOCKER_HOST when it is set.
func WithHostFromEnv() Opt {
	return func(c *clientConfig) error {
		host := os.Getenv(EnvOverrideHost)
		if host == "" {
			return nil
		}
		return WithHost(host)(c)
	}
}

// WithHTTPClient replaces the HTTP client. A nil client is ignored.
func WithHTTPClient(client *http.Client) Opt {
	return func(c *clientConfig) error {
		if client != nil {
			c.client = client
		}
		return nil
	}
}

// WithTimeout bounds every request, including the time spent streaming its
// body. Zero means no limit.
func WithTimeout(timeout time.Duration) Opt {
	return func(c *clientConfig) error {
		if timeout < 0 {
			return fmt.Errorf("invalid timeout %s: must not be negative", timeout)
		}
		c.client.Timeout = timeout
		return nil
	}
}

// WithUserAgent sets the User-Agent header, overriding one set through
// [WithHTTPHeaders]. An empty ua sends no User-Agent at all.
func WithUserAgent(ua string) Opt {
	return func(c *clientConfig) error {
		c.userAgent = &ua
		return nil
	}
}

// WithHTTPHeaders sets headers sent with every request.
func WithHTTPHeaders(headers map[string]string) Opt {
	return func(c *clientConfig) error {
		c.customHTTPHeaders = headers
		return nil
	}
}

// WithTLSClientConfig configures TLS on the current transport from the given
// CA, certificate and key files.
func WithTLSClientConfig(opts tlsconfig.Options) Opt {
	return func(c *clientConfig) error {
		transport, ok := c.client.Transport.(*http.Transport)
		if !ok {
			return fmt.Errorf("cannot apply tls config to transport: %T", c.client.Transport)
		}
		config, err := tlsconfig.Client(opts)
		if err != nil {
			return fmt.Errorf("failed to create tls config: %w", err)
		}
		transport.TLSClientConfig = config
		return nil
	}
}

// WithTLSClientConfigFromEnv loads ca.pem, cert.pem and key.pem from
// DOCKER_CERT_PATH when it is set. The server certificate is only verified
// when DOCKER_TLS_VERIFY is non-empty.
func WithTLSClientConfigFromEnv() Opt {
	return func(c *clientConfig) error {
		certPath := os.Getenv(EnvOverrideCertPath)
		if certPath == "" {
			return nil
		}
		tlsc, err := tlsconfig.Client(tlsconfig.Options{
			CAFile:             filepath.Join(certPath, "ca.pem"),
			CertFile:           filepath.Join(certPath, "cert.pem"),
			KeyFile:            filepath.Join(certPath, "key.pem"),
			InsecureSkipVerify: os.Getenv(EnvTLSVerify) == "",
		})
		if err != nil {
			return err
		}

		c.client = &http.Client{
			Transport:     &http.Transport{TLSClientConfig: tlsc},
			CheckRedirect: CheckRedirect,
		}
		return nil
	}
}

// WithVersion pins the API version, with or without a leading "v". An empty
// version leaves the client free to negotiate.
func WithVersion(version string) Opt {
	return func(c *clientConfig) error {
		v := strings.TrimPrefix(version, "v")
		if v == "" {
			return nil
		}
		c.version, c.manualOverride = v, true
		return nil
	}
}

// WithVersionFromEnv applies [WithVersion] with DOCKER_API_VERSION.
func WithVersionFromEnv() Opt {
	return func(c *clientConfig) error {
		return WithVersion(os.Getenv(EnvOverrideAPIVersion))(c)
	}
}

// WithAPIVersionNegotiation lowers the API version to the engine's on the
// first request, unless a version was pinned.
func WithAPIVersionNegotiation() Opt {
	return func(c *clientConfig) error {
		c.negotiateVersion = true
		return nil
	}
}
