//go:build linux

package runtime

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"minibox/internal/rootfs"
)

// mountContext owns the mount-state transitions that root the init process
// into the prepared filesystem. Enter performs them in order; Teardown
// reverses whatever Enter got done, so a half-entered context never leaks a
// mount on the error path.
//
// The sequence follows runc's pivot_root flow:
//  1. make the mount tree private so nothing propagates back to the host
//  2. bind-mount the rootfs onto itself (pivot_root needs a mount point)
//  3. pivot_root into it and lazily detach the old root
//
// When pivot_root is not permitted, Enter falls back to plain chroot; the
// old root stays reachable through pre-opened descriptors in that mode,
// which is why pivot is tried first.
type mountContext struct {
	root  string
	bound bool
}

func newMountContext(root string) *mountContext {
	return &mountContext{root: root}
}

// Enter roots the calling process into the context's filesystem.
func (m *mountContext) Enter() error {
	if err := rootfs.Validate(m.root); err != nil {
		return err
	}

	abs, err := filepath.Abs(m.root)
	if err != nil {
		return fmt.Errorf("resolve rootfs path: %w", err)
	}
	m.root = abs

	// Make the whole tree private first so the bind and pivot below cannot
	// propagate through shared mounts to the host.
	if err := unix.Mount("", "/", "", unix.MS_PRIVATE|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("make mount tree private: %w", err)
	}

	if err := unix.Mount(m.root, m.root, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("bind mount rootfs to itself: %w", err)
	}
	m.bound = true

	if err := unix.Mount("", m.root, "", unix.MS_PRIVATE|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("make rootfs private: %w", err)
	}

	if err := m.pivot(); err != nil {
		// EPERM/EINVAL: no privilege or unsuitable mount topology.
		// Fall back to chroot so restricted environments still work.
		if chrootErr := m.chroot(); chrootErr != nil {
			return fmt.Errorf("pivot_root (%v) and chroot fallback both failed: %w", err, chrootErr)
		}
	}

	return nil
}

// pivot switches the root via pivot_root and detaches the old root so the
// previous filesystem view is gone from the mount namespace.
func (m *mountContext) pivot() error {
	// The old root lands in a random dotted directory inside the new root,
	// so an image that happens to ship a same-named path cannot collide.
	oldRoot, err := os.MkdirTemp(m.root, ".pivot_root")
	if err != nil {
		return fmt.Errorf("mkdir old_root: %w", err)
	}
	oldRootBase := filepath.Base(oldRoot)

	if err := unix.PivotRoot(m.root, oldRoot); err != nil {
		_ = os.Remove(oldRoot)
		return fmt.Errorf("pivot_root syscall: %w", err)
	}

	if err := unix.Chdir("/"); err != nil {
		return fmt.Errorf("chdir to new root: %w", err)
	}

	// MNT_DETACH: lazy unmount, succeeds even while in use. Standard runc
	// cleanup so nothing inside can walk back into the host filesystem.
	oldRoot = "/" + oldRootBase
	if err := unix.Unmount(oldRoot, unix.MNT_DETACH); err != nil {
		return fmt.Errorf("detach old root: %w", err)
	}
	if err := os.Remove(oldRoot); err != nil {
		return fmt.Errorf("remove old root mount point: %w", err)
	}

	return nil
}

func (m *mountContext) chroot() error {
	if err := unix.Chroot(m.root); err != nil {
		return fmt.Errorf("chroot: %w", err)
	}
	if err := unix.Chdir("/"); err != nil {
		return fmt.Errorf("chdir to new root: %w", err)
	}
	return nil
}

// Teardown undoes the transitions Enter completed before failing. After a
// successful Enter the context owns nothing to tear down: the old root is
// already detached and the bind mount is the process's root.
func (m *mountContext) Teardown() {
	if m.bound {
		_ = unix.Unmount(m.root, unix.MNT_DETACH)
		m.bound = false
	}
}
