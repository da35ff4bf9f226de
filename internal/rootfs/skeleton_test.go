package rootfs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	errs "minibox/pkg/errors"
)

func TestPrepareSkeletonIdempotent(t *testing.T) {
	root := filepath.Join(t.TempDir(), "rootfs")

	// Running twice must not fail merely because the directories exist.
	for i := 0; i < 2; i++ {
		if err := PrepareSkeleton(root); err != nil {
			t.Fatalf("PrepareSkeleton run %d: %v", i+1, err)
		}
	}

	for _, dir := range []string{"usr/local/bin", "dev"} {
		info, err := os.Stat(filepath.Join(root, dir))
		if err != nil {
			t.Fatalf("stat %s: %v", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}

	info, err := os.Stat(filepath.Join(root, "dev", "null"))
	if err != nil {
		t.Fatalf("stat dev/null placeholder: %v", err)
	}
	if info.IsDir() {
		t.Error("dev/null placeholder should be a file")
	}
}

func TestPrepareSkeletonKeepsExistingContent(t *testing.T) {
	root := t.TempDir()
	marker := filepath.Join(root, "usr", "local", "bin", "existing")
	if err := os.MkdirAll(filepath.Dir(marker), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(marker, []byte("keep me"), 0755); err != nil {
		t.Fatal(err)
	}

	if err := PrepareSkeleton(root); err != nil {
		t.Fatalf("PrepareSkeleton: %v", err)
	}

	data, err := os.ReadFile(marker)
	if err != nil || string(data) != "keep me" {
		t.Errorf("existing content disturbed: %q, %v", data, err)
	}
}

func TestInstallHelper(t *testing.T) {
	root := t.TempDir()
	if err := PrepareSkeleton(root); err != nil {
		t.Fatal(err)
	}

	helper := filepath.Join(t.TempDir(), "box-explorer")
	if err := os.WriteFile(helper, []byte("#!/bin/sh\necho hi\n"), 0755); err != nil {
		t.Fatal(err)
	}

	if err := InstallHelper(root, helper); err != nil {
		t.Fatalf("InstallHelper: %v", err)
	}

	installed := filepath.Join(root, "usr", "local", "bin", "box-explorer")
	info, err := os.Stat(installed)
	if err != nil {
		t.Fatalf("stat installed helper: %v", err)
	}
	if info.Mode().Perm()&0111 == 0 {
		t.Errorf("installed helper is not executable: %v", info.Mode())
	}
}

func TestInstallHelperBareRoot(t *testing.T) {
	// InstallHelper creates its own destination directory; it must not
	// depend on PrepareSkeleton having run first.
	root := t.TempDir()

	helper := filepath.Join(t.TempDir(), "box-explorer")
	if err := os.WriteFile(helper, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}

	if err := InstallHelper(root, helper); err != nil {
		t.Fatalf("InstallHelper into bare root: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "usr", "local", "bin", "box-explorer")); err != nil {
		t.Errorf("stat installed helper: %v", err)
	}
}

func TestInstallHelperMissing(t *testing.T) {
	root := t.TempDir()
	if err := PrepareSkeleton(root); err != nil {
		t.Fatal(err)
	}

	err := InstallHelper(root, filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, errs.ErrHelperNotFound) {
		t.Fatalf("expected ErrHelperNotFound, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(t.TempDir()); err != nil {
		t.Errorf("Validate(tempdir): %v", err)
	}

	if err := Validate(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, errs.ErrInvalidRootfs) {
		t.Errorf("expected ErrInvalidRootfs for missing dir, got %v", err)
	}

	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := Validate(file); !errors.Is(err, errs.ErrInvalidRootfs) {
		t.Errorf("expected ErrInvalidRootfs for regular file, got %v", err)
	}
}
