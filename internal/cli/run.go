package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"minibox/internal/distribution"
	"minibox/internal/reference"
	"minibox/internal/registry"
	"minibox/internal/rootfs"
	"minibox/internal/runtime"
	errs "minibox/pkg/errors"
	"minibox/pkg/idutil"
)

// defaultHelperPath is where the companion introspection binary lives on the
// host; it is copied into the rootfs so it stays reachable after the root
// change.
const defaultHelperPath = "/usr/local/bin/docker-explorer"

var (
	// Run command flags
	quiet       bool
	keep        bool
	localRootfs string
	helperPath  string
	registryURL string
	authURL     string
	service     string
)

var runCmd = &cobra.Command{
	Use:   "run IMAGE COMMAND [ARG...]",
	Short: "Pull an image and run a command inside it",
	Long: `Pull the image's layers into a fresh per-invocation root filesystem,
enter new PID and mount namespaces rooted there, and run the command.

The launcher's exit code is the command's exit code, or 1 when the
command was killed by a signal. Any failure before the command starts
aborts the whole run.

With --rootfs the image reference is ignored for retrieval and the
command runs in the given existing root filesystem.

Examples:
  minibox run busybox /bin/ls /
  minibox run alpine:3.20 /bin/echo "hello"
  minibox run --rootfs /tmp/rootfs ignored /bin/sh -c 'exit 7'`,
	Args: cobra.MinimumNArgs(2),
	RunE: runContainer,
}

func init() {
	runCmd.Flags().StringVar(&localRootfs, "rootfs", "",
		"use an existing root filesystem and skip image retrieval")
	runCmd.Flags().BoolVar(&keep, "keep", false,
		"keep the per-invocation root filesystem after exit")
	runCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress pull progress output")
	runCmd.Flags().StringVar(&helperPath, "helper", defaultHelperPath,
		"host path of the introspection helper copied into the rootfs (empty disables)")
	runCmd.Flags().StringVar(&registryURL, "registry", registry.DefaultRegistry, "registry endpoint")
	runCmd.Flags().StringVar(&authURL, "auth", registry.DefaultAuthURL, "token endpoint")
	runCmd.Flags().StringVar(&service, "service", registry.DefaultService, "token service parameter")
}

func runContainer(cmd *cobra.Command, args []string) error {
	config := &runtime.ContainerConfig{
		ID:      runtime.GenerateInvocationID(),
		Command: args[1:2],
		Args:    args[2:],
	}
	config.Hostname = config.ShortID()

	// Resolve the rootfs for this invocation. The pulled variant gets a
	// unique directory derived from the invocation ID so concurrent runs
	// never race on the same tree; --rootfs reuses an existing one.
	var rootfsDir string
	ephemeral := false
	if localRootfs != "" {
		abs, err := filepath.Abs(localRootfs)
		if err != nil {
			return fmt.Errorf("invalid rootfs path: %w", err)
		}
		if err := rootfs.Validate(abs); err != nil {
			return err
		}
		rootfsDir = abs
	} else {
		rootfsDir = filepath.Join(stateRoot(), "rootfs", idutil.ShortID(config.ID))
		ephemeral = true
	}

	// os.Exit below skips deferred calls, so cleanup runs explicitly on
	// every path out of this function.
	cleanup := func() {
		if ephemeral && !keep {
			if err := os.RemoveAll(rootfsDir); err != nil {
				log.Debug("rootfs cleanup failed", "dir", rootfsDir, "error", err)
			}
		}
	}

	if ephemeral {
		ref, err := reference.Parse(args[0])
		if err != nil {
			return err
		}

		client := registry.NewClient(registry.Options{
			Registry: registryURL,
			AuthURL:  authURL,
			Service:  service,
		})

		if err := distribution.Pull(cmd.Context(), client, ref, rootfsDir, &distribution.PullOptions{
			Quiet: quiet,
		}); err != nil {
			cleanup()
			return fmt.Errorf("pull %s: %w", ref, err)
		}
	}

	if err := rootfs.PrepareSkeleton(rootfsDir); err != nil {
		cleanup()
		return fmt.Errorf("prepare rootfs: %w", err)
	}

	if helperPath != "" {
		err := rootfs.InstallHelper(rootfsDir, helperPath)
		switch {
		case err == nil:
		case errors.Is(err, errs.ErrHelperNotFound) && !cmd.Flags().Changed("helper"):
			// The default helper is optional equipment; only an explicit
			// --helper makes its absence fatal.
			log.Debug("helper binary not present, skipping copy", "path", helperPath)
		default:
			cleanup()
			return err
		}
	}

	config.Rootfs = rootfsDir

	exitCode, err := runtime.Run(config)
	cleanup()
	if err != nil {
		return fmt.Errorf("run container: %w", err)
	}

	os.Exit(exitCode)
	return nil // unreachable
}
