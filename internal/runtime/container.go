// Package runtime launches the target command inside new PID and mount
// namespaces, rooted into the prepared filesystem.
//
// The launch is two-staged: the parent re-execs /proc/self/exe with clone
// flags requesting the namespaces, so the child enters them from its very
// first instruction and becomes PID 1 of the new PID namespace. The child
// (the init stage) roots into the filesystem, execs the target, reaps and
// forwards signals, and exits with the target's status. The parent blocks
// until the child finishes and forwards that status.
package runtime

import (
	"minibox/pkg/idutil"
)

const (
	// InitEnvVar marks the re-exec'd process as the init stage. An
	// environment variable is used instead of a subcommand to keep the
	// user-facing command namespace clean.
	InitEnvVar = "MINIBOX_INIT"

	// ConfigEnvVar carries the JSON-encoded ContainerConfig to the init
	// stage. The config is small enough that the environment is simpler
	// than a handoff file.
	ConfigEnvVar = "MINIBOX_CONFIG"
)

// ContainerConfig holds everything the init stage needs to launch the target.
type ContainerConfig struct {
	// ID is the unique invocation identifier (64-character hex).
	// The first 12 characters double as the default hostname.
	ID string `json:"id"`

	// Command is the target command to run.
	Command []string `json:"command"`

	// Args are additional arguments passed to the command.
	Args []string `json:"args,omitempty"`

	// Hostname is set inside the new UTS namespace.
	// Defaults to the short invocation ID.
	Hostname string `json:"hostname,omitempty"`

	// Rootfs is the prepared root directory the init stage pivots into.
	// Empty means the target shares the host filesystem view (used by the
	// local-rootfs-less test paths).
	Rootfs string `json:"rootfs,omitempty"`
}

// GenerateInvocationID generates a random 64-character hex invocation ID.
func GenerateInvocationID() string {
	return idutil.GenerateID()
}

// ShortID returns the first 12 characters of the invocation ID.
func (c *ContainerConfig) ShortID() string {
	return idutil.ShortID(c.ID)
}

// GetHostname returns the hostname, defaulting to the short ID.
func (c *ContainerConfig) GetHostname() string {
	if c.Hostname != "" {
		return c.Hostname
	}
	return c.ShortID()
}

// GetCommand returns the full command line (command + args) as one slice.
func (c *ContainerConfig) GetCommand() []string {
	cmd := make([]string, 0, len(c.Command)+len(c.Args))
	cmd = append(cmd, c.Command...)
	cmd = append(cmd, c.Args...)
	return cmd
}
