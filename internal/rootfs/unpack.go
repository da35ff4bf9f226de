// Package rootfs materializes image layers into a per-invocation root
// directory and prepares the directory skeleton the launch contract requires.
package rootfs

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// whiteoutPrefix is the prefix for whiteout files in OCI layers.
// Whiteout files indicate that a file from a lower layer should be deleted.
const whiteoutPrefix = ".wh."

// opaqueWhiteout indicates that the entire directory contents from lower
// layers should be hidden.
const opaqueWhiteout = ".wh..wh..opq"

// ApplyLayer extracts one layer archive into dest, overwriting any path an
// earlier layer wrote (overlay-by-overwrite: layers are flattened directly
// into the final root, no union filesystem).
//
// Compression is sniffed from the stream's magic bytes rather than trusted
// from the media type; plain tar layers pass through unchanged.
func ApplyLayer(r io.Reader, dest string) error {
	tr, err := newTarReader(r)
	if err != nil {
		return fmt.Errorf("open layer archive: %w", err)
	}
	return extractTar(tr, dest)
}

// newTarReader creates a tar reader, auto-detecting gzip compression.
func newTarReader(r io.Reader) (*tar.Reader, error) {
	buf := make([]byte, 2)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}

	// Re-attach the sniffed magic bytes in front of the stream.
	mr := io.MultiReader(strings.NewReader(string(buf[:n])), r)

	// gzip magic: 0x1f 0x8b
	if n >= 2 && buf[0] == 0x1f && buf[1] == 0x8b {
		gz, err := gzip.NewReader(mr)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		return tar.NewReader(gz), nil
	}

	return tar.NewReader(mr), nil
}

// extractTar extracts a tar archive into destDir.
// It handles regular files, directories, symlinks and hard links, and
// processes whiteout entries as deletions since layers flatten into the
// final view directly. Device nodes and fifos are skipped; the launched
// process gets a /dev placeholder from the skeleton instead.
func extractTar(tr *tar.Reader, destDir string) error {
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}

		// Security: clean the path and prevent path traversal.
		cleanName := filepath.Clean(header.Name)
		if strings.HasPrefix(cleanName, "..") || filepath.IsAbs(cleanName) {
			return fmt.Errorf("invalid path in tar: %s", header.Name)
		}
		if cleanName == "." {
			continue
		}

		target := filepath.Join(destDir, cleanName)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("path traversal detected: %s", header.Name)
		}

		// Whiteouts delete the lower-layer path they shadow.
		if strings.HasPrefix(filepath.Base(cleanName), whiteoutPrefix) {
			if err := applyWhiteout(destDir, cleanName); err != nil {
				return fmt.Errorf("apply whiteout %s: %w", cleanName, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("create parent directory for %s: %w", cleanName, err)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(header.Mode)); err != nil {
				return fmt.Errorf("create directory %s: %w", cleanName, err)
			}

		case tar.TypeReg:
			if err := extractRegularFile(tr, target, header); err != nil {
				return fmt.Errorf("extract file %s: %w", cleanName, err)
			}

		case tar.TypeSymlink:
			os.Remove(target)
			if err := os.Symlink(header.Linkname, target); err != nil {
				return fmt.Errorf("create symlink %s: %w", cleanName, err)
			}

		case tar.TypeLink:
			// Hard link targets resolve inside the root being built. The
			// Linkname needs the same containment check as the entry name,
			// or a crafted layer could link a host file into the root.
			linkTarget := filepath.Join(destDir, filepath.Clean(header.Linkname))
			if !strings.HasPrefix(linkTarget, filepath.Clean(destDir)+string(os.PathSeparator)) {
				return fmt.Errorf("invalid hard link target in tar: %s", header.Linkname)
			}
			os.Remove(target)
			if err := os.Link(linkTarget, target); err != nil {
				return fmt.Errorf("create hard link %s: %w", cleanName, err)
			}

		default:
			// Device nodes, fifos, unknown types: skip.
			continue
		}
	}

	return nil
}

// extractRegularFile extracts a regular file from tar, replacing any file an
// earlier layer put at the same path (last write wins).
func extractRegularFile(tr *tar.Reader, target string, header *tar.Header) error {
	os.Remove(target)

	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode))
	if err != nil {
		return err
	}

	_, err = io.Copy(f, tr)
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}

	return err
}

// applyWhiteout processes a whiteout entry. Because layers are flattened
// directly into the final root, a whiteout is a plain deletion of whatever
// the lower layers already extracted.
func applyWhiteout(destDir, whiteoutPath string) error {
	baseName := filepath.Base(whiteoutPath)
	dirName := filepath.Dir(whiteoutPath)

	// Opaque whiteout: drop everything lower layers put in the directory.
	if baseName == opaqueWhiteout {
		dir := filepath.Join(destDir, dirName)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		for _, entry := range entries {
			if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
				return err
			}
		}
		return nil
	}

	deleted := strings.TrimPrefix(baseName, whiteoutPrefix)
	if deleted == "" {
		return fmt.Errorf("invalid whiteout entry: %s", whiteoutPath)
	}
	return os.RemoveAll(filepath.Join(destDir, dirName, deleted))
}
