//go:build !linux

package runtime

import (
	"fmt"
	"os"
)

// Run is only implemented on Linux: the namespace and root-change syscalls
// it depends on do not exist elsewhere.
func Run(config *ContainerConfig) (int, error) {
	return -1, fmt.Errorf("container launch requires linux")
}

// RunContainerInit is only implemented on Linux.
func RunContainerInit() {
	fmt.Fprintln(os.Stderr, "init: container launch requires linux")
	os.Exit(1)
}
