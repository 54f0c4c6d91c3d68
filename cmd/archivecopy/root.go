package main

import (
	"context"
	"io"
	"time"

	"github.com/containerd/log"
	"github.com/docker/go-connections/tlsconfig"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/moby/archivecopy/api/types/container"
	"github.com/moby/archivecopy/client"
	"github.com/moby/archivecopy/transfer"
)

// version is overridden at link time.
var version = "dev"

// apiClient is the part of the engine client the commands use.
type apiClient interface {
	transfer.ContainerCopier
	ContainerStatPath(ctx context.Context, containerID, path string) (container.PathStat, error)
	Close() error
}

// tlsOptions selects the client certificate and the CA the engine is
// verified against.
type tlsOptions struct {
	verify bool
	caCert string
	cert   string
	key    string
}

// enabled reports whether any TLS flag was given.
func (o tlsOptions) enabled() bool {
	return o.verify || o.caCert != "" || o.cert != "" || o.key != ""
}

type rootOptions struct {
	configFile string
	debug      bool
	host       string
	apiVersion string
	timeout    time.Duration
	tls        tlsOptions

	cfg *Config

	stdin     io.Reader
	newClient func(*rootOptions) (apiClient, error)
}

func newRootOptions() *rootOptions {
	return &rootOptions{
		cfg:       defaultConfig(),
		newClient: newAPIClient,
	}
}

func newRootCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:              "archivecopy [OPTIONS] COMMAND",
		Short:            "Copy host files and tar streams into containers",
		SilenceUsage:     true,
		SilenceErrors:    true,
		TraverseChildren: true,
		Version:          version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd.Flags())
		},
	}
	cmd.SetVersionTemplate("archivecopy version {{.Version}}\n")

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", defaultConfigFile(), "Location of the TOML config file")
	flags.BoolVarP(&opts.debug, "debug", "D", false, "Enable debug mode")
	flags.StringVarP(&opts.host, "host", "H", "", "Engine socket to connect to (defaults to $DOCKER_HOST)")
	flags.StringVar(&opts.apiVersion, "api-version", "", "Engine API version to use; negotiated when unset")
	flags.DurationVar(&opts.timeout, "timeout", 0, "Limit every engine request to this duration (0 for no limit)")
	flags.BoolVar(&opts.tls.verify, "tlsverify", false, "Use TLS and verify the engine certificate")
	flags.StringVar(&opts.tls.caCert, "tlscacert", "", "Trust certs signed only by this CA")
	flags.StringVar(&opts.tls.cert, "tlscert", "", "Path to TLS certificate file")
	flags.StringVar(&opts.tls.key, "tlskey", "", "Path to TLS key file")

	cmd.AddCommand(newCopyCommand(opts))
	return cmd
}

// load reads the config file and applies it to every global flag that was
// not set on the command line.
func (opts *rootOptions) load(flags *pflag.FlagSet) error {
	cfg, err := loadConfig(opts.configFile)
	if err != nil {
		return err
	}
	opts.cfg = cfg

	if !flags.Changed("debug") {
		opts.debug = cfg.Debug
	}
	if !flags.Changed("host") {
		opts.host = cfg.Host
	}
	if !flags.Changed("api-version") {
		opts.apiVersion = cfg.APIVersion
	}
	if !flags.Changed("timeout") {
		opts.timeout = time.Duration(cfg.Timeout)
	}
	if !flags.Changed("tlsverify") {
		opts.tls.verify = cfg.TLSVerify
	}
	if !flags.Changed("tlscacert") {
		opts.tls.caCert = cfg.TLSCACert
	}
	if !flags.Changed("tlscert") {
		opts.tls.cert = cfg.TLSCert
	}
	if !flags.Changed("tlskey") {
		opts.tls.key = cfg.TLSKey
	}

	if opts.debug {
		if err := log.SetLevel("debug"); err != nil {
			return err
		}
		log.L.Debug("debug mode enabled")
	}
	return nil
}

func newAPIClient(opts *rootOptions) (apiClient, error) {
	c, err := client.NewClientWithOpts(clientOptions(opts)...)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// clientOptions turns the global flags into client options. Flags are
// applied after the environment so that they win over it.
func clientOptions(opts *rootOptions) []client.Opt {
	clientOpts := []client.Opt{client.FromEnv, client.WithUserAgent("archivecopy/" + version)}
	if opts.host != "" {
		clientOpts = append(clientOpts, client.WithHost(opts.host))
	}
	if opts.tls.enabled() {
		clientOpts = append(clientOpts, client.WithTLSClientConfig(tlsconfig.Options{
			CAFile:             opts.tls.caCert,
			CertFile:           opts.tls.cert,
			KeyFile:            opts.tls.key,
			InsecureSkipVerify: !opts.tls.verify,
		}))
	}
	if opts.timeout != 0 {
		clientOpts = append(clientOpts, client.WithTimeout(opts.timeout))
	}
	if opts.apiVersion != "" {
		clientOpts = append(clientOpts, client.WithVersion(opts.apiVersion))
	} else {
		clientOpts = append(clientOpts, client.WithAPIVersionNegotiation())
	}
	return clientOpts
}

// exitCode returns 2 for invalid invocations and 1 for every other failure.
func exitCode(err error) int {
	if transfer.Classify(err) == transfer.ReasonInvalid {
		return 2
	}
	return 1
}
