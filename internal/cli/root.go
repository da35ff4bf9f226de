package cli

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	// Version information
	Version = "0.1.0"

	// rootDir is the state root holding per-invocation rootfs directories.
	// Default: $MINIBOX_ROOT environment variable, or /var/lib/minibox.
	rootDir string

	// debug raises the log level for the whole invocation.
	debug bool
)

var rootCmd = &cobra.Command{
	Use:   "minibox",
	Short: "Minimal single-shot container launcher",
	Long: `Minibox pulls a container image from a registry, materializes its
layers into an isolated root filesystem, and runs a command inside it
with new PID and mount namespaces.

It is a launcher, not a runtime: there is no daemon, no persistent
container state, and each invocation gets its own root filesystem.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debug {
			log.SetLevel(log.DebugLevel)
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)

	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "",
		"state root directory (default: $MINIBOX_ROOT or /var/lib/minibox)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// stateRoot resolves the state root directory: flag, environment, default.
func stateRoot() string {
	if rootDir != "" {
		return rootDir
	}
	if env := os.Getenv("MINIBOX_ROOT"); env != "" {
		return env
	}
	return "/var/lib/minibox"
}
