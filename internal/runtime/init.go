//go:build linux

package runtime

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// RunContainerInit is the entry point of the init stage (PID 1 of the new
// PID namespace). It is invoked when the binary detects InitEnvVar.
//
// As PID 1 this process has init duties beyond launching the target:
//  1. Reap zombies: wait() on any child that exits.
//  2. Forward termination signals to the target.
//  3. Exit with the target's status.
func RunContainerInit() {
	config, err := configFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		os.Exit(1)
	}

	if err := setupContainerEnvironment(config); err != nil {
		fmt.Fprintf(os.Stderr, "init: setup failed: %v\n", err)
		os.Exit(1)
	}

	os.Exit(runTarget(config))
}

// configFromEnv decodes the ContainerConfig the parent serialized.
func configFromEnv() (*ContainerConfig, error) {
	payload := os.Getenv(ConfigEnvVar)
	if strings.TrimSpace(payload) == "" {
		return nil, fmt.Errorf("missing %s environment variable", ConfigEnvVar)
	}

	var config ContainerConfig
	if err := json.Unmarshal([]byte(payload), &config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ConfigEnvVar, err)
	}
	return &config, nil
}

// setupContainerEnvironment roots the init process into the prepared
// filesystem and sets the hostname. The root change must come first:
// every path resolves differently afterwards.
func setupContainerEnvironment(config *ContainerConfig) error {
	if config.Rootfs != "" {
		mnt := newMountContext(config.Rootfs)
		if err := mnt.Enter(); err != nil {
			mnt.Teardown()
			return fmt.Errorf("enter rootfs: %w", err)
		}
	}

	if err := unix.Sethostname([]byte(config.GetHostname())); err != nil {
		return fmt.Errorf("set hostname: %w", err)
	}

	return nil
}

// runTarget executes the target command with passthrough stdio and returns
// the exit code to propagate: the target's own code, or 1 when it was killed
// by a signal and has none.
func runTarget(config *ContainerConfig) int {
	cmdArgs := config.GetCommand()
	if len(cmdArgs) == 0 {
		fmt.Fprintln(os.Stderr, "init: no command specified")
		return 1
	}

	cmd := exec.Command(cmdArgs[0], cmdArgs[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = filteredEnviron()

	return superviseTarget(cmd)
}

// filteredEnviron strips the MINIBOX_* handoff variables so they do not leak
// into the target's environment.
func filteredEnviron() []string {
	var env []string
	for _, e := range os.Environ() {
		if strings.HasPrefix(e, InitEnvVar+"=") || strings.HasPrefix(e, ConfigEnvVar+"=") {
			continue
		}
		env = append(env, e)
	}
	return env
}

// superviseTarget starts the target and runs the PID 1 loop: reap zombies on
// SIGCHLD, forward termination signals, return the target's exit code.
//
// signal.Notify must be installed before Start: a target that exits
// immediately would otherwise race its SIGCHLD past us.
func superviseTarget(cmd *exec.Cmd) int {
	sigChan := make(chan os.Signal, 10)
	signal.Notify(sigChan,
		syscall.SIGCHLD,
		syscall.SIGTERM,
		syscall.SIGINT,
		syscall.SIGHUP,
		syscall.SIGQUIT,
	)
	defer signal.Stop(sigChan)

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "init: failed to start command: %v\n", err)
		return 1
	}

	targetPid := cmd.Process.Pid

	// The target may already have exited before the first signal arrives.
	if code, exited := reapZombies(targetPid); exited {
		return code
	}

	for {
		sig := <-sigChan
		switch sig {
		case syscall.SIGCHLD:
			if code, exited := reapZombies(targetPid); exited {
				return code
			}
		default:
			// Forward everything else to the target.
			_ = cmd.Process.Signal(sig)
		}
	}
}

// reapZombies waits on any child non-blockingly. It returns (code, true)
// once the target itself has been collected. Orphaned grandchildren are
// reaped silently.
func reapZombies(targetPid int) (int, bool) {
	exitCode := 0
	targetExited := false

	for {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-1, &status, unix.WNOHANG, nil)
		if err != nil || pid <= 0 {
			// ECHILD or nothing waitable right now.
			break
		}

		if pid == targetPid {
			targetExited = true
			if status.Exited() {
				exitCode = status.ExitStatus()
			} else {
				// Killed by a signal: no numeric code to forward,
				// the launcher's contract says 1.
				exitCode = 1
			}
		}
	}

	return exitCode, targetExited
}
