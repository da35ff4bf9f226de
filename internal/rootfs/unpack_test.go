package rootfs

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"
)

type tarEntry struct {
	name     string
	content  string
	typeflag byte
	linkname string
}

// makeLayer builds an in-memory gzipped tar archive.
func makeLayer(t *testing.T, entries []tarEntry) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, e := range entries {
		typeflag := e.typeflag
		if typeflag == 0 {
			typeflag = tar.TypeReg
		}
		hdr := &tar.Header{
			Name:     e.name,
			Mode:     0644,
			Typeflag: typeflag,
			Linkname: e.linkname,
		}
		if typeflag == tar.TypeDir {
			hdr.Mode = 0755
		}
		if typeflag == tar.TypeReg {
			hdr.Size = int64(len(e.content))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header %s: %v", e.name, err)
		}
		if typeflag == tar.TypeReg {
			if _, err := tw.Write([]byte(e.content)); err != nil {
				t.Fatalf("write content %s: %v", e.name, err)
			}
		}
	}

	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestApplyLayerLastWriteWins(t *testing.T) {
	dest := t.TempDir()

	l1 := makeLayer(t, []tarEntry{
		{name: "etc/", typeflag: tar.TypeDir},
		{name: "etc/config", content: "from layer one"},
		{name: "bin/", typeflag: tar.TypeDir},
		{name: "bin/tool", content: "tool v1"},
	})
	l2 := makeLayer(t, []tarEntry{
		{name: "etc/config", content: "from layer two"},
	})

	if err := ApplyLayer(l1, dest); err != nil {
		t.Fatalf("apply layer 1: %v", err)
	}
	if err := ApplyLayer(l2, dest); err != nil {
		t.Fatalf("apply layer 2: %v", err)
	}

	if got := readFile(t, filepath.Join(dest, "etc", "config")); got != "from layer two" {
		t.Errorf("etc/config = %q, want the upper layer's content", got)
	}
	if got := readFile(t, filepath.Join(dest, "bin", "tool")); got != "tool v1" {
		t.Errorf("bin/tool = %q, want untouched lower content", got)
	}
}

func TestApplyLayerUncompressedTar(t *testing.T) {
	dest := t.TempDir()

	// Strip the gzip wrapper: ApplyLayer must sniff plain tar too.
	var plain bytes.Buffer
	tw := tar.NewWriter(&plain)
	hdr := &tar.Header{Name: "hello", Mode: 0644, Size: 5, Typeflag: tar.TypeReg}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write([]byte("world")); err != nil {
		t.Fatal(err)
	}
	tw.Close()

	if err := ApplyLayer(&plain, dest); err != nil {
		t.Fatalf("apply plain tar layer: %v", err)
	}
	if got := readFile(t, filepath.Join(dest, "hello")); got != "world" {
		t.Errorf("hello = %q, want %q", got, "world")
	}
}

func TestApplyLayerRejectsTraversal(t *testing.T) {
	for _, name := range []string{"../escape", "/etc/passwd"} {
		layer := makeLayer(t, []tarEntry{{name: name, content: "x"}})
		if err := ApplyLayer(layer, t.TempDir()); err == nil {
			t.Errorf("expected traversal error for entry %q", name)
		}
	}
}

func TestApplyLayerRejectsHardLinkEscape(t *testing.T) {
	// The link target lives outside the rootfs; a layer must not be able
	// to reach it through a relative Linkname.
	parent := t.TempDir()
	hostFile := filepath.Join(parent, "host-secret")
	if err := os.WriteFile(hostFile, []byte("host data"), 0644); err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(parent, "rootfs")
	if err := os.Mkdir(dest, 0755); err != nil {
		t.Fatal(err)
	}

	layer := makeLayer(t, []tarEntry{
		{name: "stolen", typeflag: tar.TypeLink, linkname: "../host-secret"},
	})

	if err := ApplyLayer(layer, dest); err == nil {
		t.Fatal("expected error for hard link target outside the root")
	}
	if _, err := os.Stat(filepath.Join(dest, "stolen")); !os.IsNotExist(err) {
		t.Errorf("escaping hard link was created, stat err = %v", err)
	}
}

func TestApplyLayerHardLinkWithinRoot(t *testing.T) {
	dest := t.TempDir()

	layer := makeLayer(t, []tarEntry{
		{name: "bin/", typeflag: tar.TypeDir},
		{name: "bin/real", content: "binary"},
		{name: "bin/hard", typeflag: tar.TypeLink, linkname: "bin/real"},
	})

	if err := ApplyLayer(layer, dest); err != nil {
		t.Fatalf("apply layer: %v", err)
	}
	if got := readFile(t, filepath.Join(dest, "bin", "hard")); got != "binary" {
		t.Errorf("hard link content = %q, want %q", got, "binary")
	}
}

func TestApplyLayerWhiteout(t *testing.T) {
	dest := t.TempDir()

	l1 := makeLayer(t, []tarEntry{
		{name: "etc/", typeflag: tar.TypeDir},
		{name: "etc/secret", content: "hidden"},
		{name: "etc/keep", content: "kept"},
	})
	l2 := makeLayer(t, []tarEntry{
		{name: "etc/.wh.secret", typeflag: tar.TypeReg},
	})

	if err := ApplyLayer(l1, dest); err != nil {
		t.Fatalf("apply layer 1: %v", err)
	}
	if err := ApplyLayer(l2, dest); err != nil {
		t.Fatalf("apply layer 2: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dest, "etc", "secret")); !os.IsNotExist(err) {
		t.Errorf("etc/secret should be deleted by whiteout, stat err = %v", err)
	}
	if got := readFile(t, filepath.Join(dest, "etc", "keep")); got != "kept" {
		t.Errorf("etc/keep = %q, want untouched", got)
	}
}

func TestApplyLayerOpaqueWhiteout(t *testing.T) {
	dest := t.TempDir()

	l1 := makeLayer(t, []tarEntry{
		{name: "data/", typeflag: tar.TypeDir},
		{name: "data/a", content: "a"},
		{name: "data/b", content: "b"},
	})
	l2 := makeLayer(t, []tarEntry{
		{name: "data/.wh..wh..opq", typeflag: tar.TypeReg},
		{name: "data/c", content: "c"},
	})

	if err := ApplyLayer(l1, dest); err != nil {
		t.Fatalf("apply layer 1: %v", err)
	}
	if err := ApplyLayer(l2, dest); err != nil {
		t.Fatalf("apply layer 2: %v", err)
	}

	for _, gone := range []string{"a", "b"} {
		if _, err := os.Stat(filepath.Join(dest, "data", gone)); !os.IsNotExist(err) {
			t.Errorf("data/%s should be hidden by opaque whiteout", gone)
		}
	}
	if got := readFile(t, filepath.Join(dest, "data", "c")); got != "c" {
		t.Errorf("data/c = %q, want the upper layer's file", got)
	}
}

func TestApplyLayerSymlink(t *testing.T) {
	dest := t.TempDir()

	layer := makeLayer(t, []tarEntry{
		{name: "bin/", typeflag: tar.TypeDir},
		{name: "bin/real", content: "binary"},
		{name: "bin/alias", typeflag: tar.TypeSymlink, linkname: "real"},
	})

	if err := ApplyLayer(layer, dest); err != nil {
		t.Fatalf("apply layer: %v", err)
	}

	link, err := os.Readlink(filepath.Join(dest, "bin", "alias"))
	if err != nil {
		t.Fatalf("readlink: %v", err)
	}
	if link != "real" {
		t.Errorf("symlink target = %q, want %q", link, "real")
	}
}
