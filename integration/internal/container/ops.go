package container

// WithImage sets the image of the container
func WithImage(image string) func(*TestContainerConfig) {
	return func(c *TestContainerConfig) {
		c.Config.Image = image
	}
}

// WithCmd sets the commands of the container
func WithCmd(cmds ...string) func(*TestContainerConfig) {
	return func(c *TestContainerConfig) {
		c.Config.Cmd = cmds
	}
}

// WithUser sets the user
func WithUser(user string) func(*TestContainerConfig) {
	return func(c *TestContainerConfig) {
		c.Config.User = user
	}
}
