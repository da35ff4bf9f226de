package rootfs

import (
	"fmt"
	"os"
	"path/filepath"

	errs "minibox/pkg/errors"
	"minibox/pkg/fileutil"
)

// helperDir is where the helper binary lands inside the root, so it stays
// reachable at the same path after the root change.
const helperDir = "usr/local/bin"

// PrepareSkeleton ensures the root directory and the subdirectories the
// launch contract requires exist. It is idempotent: re-running against an
// already-populated root succeeds.
//
// The /dev/null placeholder is an empty regular file; creating the real
// device node needs CAP_MKNOD and the target only needs the path to exist.
func PrepareSkeleton(root string) error {
	if err := fileutil.EnsureDir(root, 0755); err != nil {
		return err
	}
	if err := fileutil.EnsureDir(filepath.Join(root, helperDir), 0755); err != nil {
		return err
	}
	if err := fileutil.EnsureDir(filepath.Join(root, "dev"), 0755); err != nil {
		return err
	}

	devNull := filepath.Join(root, "dev", "null")
	if _, err := os.Stat(devNull); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("stat %s: %w", devNull, err)
		}
		if err := fileutil.AtomicWriteFile(devNull, nil, 0666); err != nil {
			return fmt.Errorf("create /dev/null placeholder: %w", err)
		}
	}

	return nil
}

// InstallHelper copies the companion introspection binary from its host
// path into the root's /usr/local/bin.
func InstallHelper(root, helper string) error {
	if _, err := os.Stat(helper); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", helper, errs.ErrHelperNotFound)
		}
		return fmt.Errorf("stat helper binary: %w", err)
	}

	dst := filepath.Join(root, helperDir, filepath.Base(helper))
	if err := fileutil.EnsureParentDir(dst, 0755); err != nil {
		return err
	}
	if err := fileutil.CopyExecutable(helper, dst); err != nil {
		return fmt.Errorf("install helper binary: %w", err)
	}
	return nil
}

// Validate checks that root exists and is a directory.
func Validate(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s does not exist: %w", root, errs.ErrInvalidRootfs)
		}
		return fmt.Errorf("stat rootfs: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory: %w", root, errs.ErrInvalidRootfs)
	}
	return nil
}
