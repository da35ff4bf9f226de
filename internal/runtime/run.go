//go:build linux

package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// Run launches the target command in new namespaces and blocks until it
// exits, returning the exit code to forward.
//
// Re-exec is used instead of in-process unshare because the Go runtime is
// already multi-threaded by the time main() runs, and namespace transitions
// on a live thread group are fragile. Cloning /proc/self/exe with the
// namespace flags puts the child in the target namespaces from the start,
// with a clear init (PID 1) entry path, the way runc structures it.
func Run(config *ContainerConfig) (int, error) {
	payload, err := json.Marshal(config)
	if err != nil {
		return -1, fmt.Errorf("encode container config: %w", err)
	}

	cmd := exec.Command("/proc/self/exe")
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: syscall.CLONE_NEWPID | // new PID namespace, child is its PID 1
			syscall.CLONE_NEWNS | // new mount namespace for the root change
			syscall.CLONE_NEWUTS, // new UTS namespace for the hostname
	}

	cmd.Env = append(os.Environ(),
		InitEnvVar+"=1",
		ConfigEnvVar+"="+string(payload),
	)

	// Unbuffered passthrough: target output interleaves directly with ours.
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("start namespace init process: %w", err)
	}

	return waitForExit(cmd), nil
}

// waitForExit waits for the child and maps its status to the exit code to
// forward: the child's numeric code when it has one, otherwise 1 (killed by
// a signal, or an unexpected wait failure).
func waitForExit(cmd *exec.Cmd) int {
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if code := exitErr.ExitCode(); code >= 0 {
				return code
			}
		}
		return 1
	}
	return 0
}
