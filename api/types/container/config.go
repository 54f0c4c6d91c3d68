package container

// Config contains the configuration data about a container.
// It should hold only portable information about the container.
// Here, "portable" means "independent from the host we are running on".
// Non-portable information *should* appear in HostConfig.
type Config struct {
	Hostname     string            // Hostname
	User         string            // User that will run the command(s) inside the container, also support user:group
	AttachStdin  bool              // Attach the standard input, makes possible user interaction
	AttachStdout bool              // Attach the standard output
	AttachStderr bool              // Attach the standard error
	Tty          bool              // Attach standard streams to a tty, including stdin if it is not closed.
	OpenStdin    bool              // Open stdin
	Env          []string          // List of environment variable to set in the container
	Cmd          []string          // Command to run when starting the container
	Image        string            // Name of the image as it was passed by the operator (e.g. could be symbolic)
	WorkingDir   string            // Current directory (PWD) in the command will be launched
	Entrypoint   []string          // Entrypoint to run when starting the container
	Labels       map[string]string // List of labels set to this container
}

// HostConfig the non-portable Config structure of a container.
// Only the fields used when preparing copy targets are carried.
type HostConfig struct {
	Binds          []string // List of volume bindings for this container
	AutoRemove     bool     // Automatically remove container when it exits
	ReadonlyRootfs bool     // Is the container root filesystem in read-only
	Privileged     bool     // Is the container in privileged mode
}

// CreateRequest is the request message sent to the server for container
// create calls. It is a config wrapper that holds the container [Config]
// (portable) and the corresponding [HostConfig] (non-portable).
type CreateRequest struct {
	*Config
	HostConfig *HostConfig `json:"HostConfig,omitempty"`
}

// CreateResponse ContainerCreateResponse
//
// OK response to ContainerCreate operation
type CreateResponse struct {
	// The ID of the created container
	// Required: true
	ID string `json:"Id"`

	// Warnings encountered when creating the container
	// Required: true
	Warnings []string `json:"Warnings"`
}
