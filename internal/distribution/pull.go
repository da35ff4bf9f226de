// Package distribution implements the registry pull pipeline: authenticate,
// resolve the platform manifest, then download and unpack every layer into
// the invocation's rootfs.
package distribution

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"minibox/internal/reference"
	"minibox/internal/registry"
	"minibox/internal/rootfs"
)

// PullOptions configures the pull operation.
type PullOptions struct {
	// Quiet suppresses progress output.
	Quiet bool

	// Output is where progress messages are written (default: os.Stdout).
	Output io.Writer

	// ScratchDir holds the per-layer scratch files (default: os.TempDir()).
	ScratchDir string
}

// Pull downloads the image the reference names and materializes its layers
// into rootfsDir.
//
// Layers are processed strictly sequentially in manifest order. That is a
// deliberate choice: ordering is what gives overwrite-wins its meaning, and
// a single in-flight download keeps the failure story trivial (abort the
// run, the caller discards the partially populated root). Every stage is
// fail-fast with no retry.
func Pull(ctx context.Context, client *registry.Client, ref reference.Reference, rootfsDir string, opts *PullOptions) error {
	if opts == nil {
		opts = &PullOptions{}
	}
	output := opts.Output
	if output == nil {
		output = os.Stdout
	}
	scratchDir := opts.ScratchDir
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}

	repo := ref.Repository()

	if !opts.Quiet {
		fmt.Fprintf(output, "Pulling %s...\n", ref)
	}

	token, err := client.Token(ctx, repo)
	if err != nil {
		return fmt.Errorf("authenticate to registry: %w", err)
	}

	manifest, err := client.ResolveManifest(ctx, repo, ref.Tag, token)
	if err != nil {
		return fmt.Errorf("resolve manifest: %w", err)
	}
	platform := client.Platform()
	log.Debug("resolved manifest",
		"reference", ref.String(),
		"platform", platform.OS+"/"+platform.Architecture,
		"layers", len(manifest.Layers))

	if !opts.Quiet {
		fmt.Fprintf(output, "Downloading %d layer(s)...\n", len(manifest.Layers))
	}

	for i, layer := range manifest.Layers {
		if !opts.Quiet {
			fmt.Fprintf(output, "  Layer %d/%d: %s (%s)\n",
				i+1, len(manifest.Layers), shortDigest(layer.Digest), formatSize(layer.Size))
		}

		if err := fetchAndApply(ctx, client, repo, layer, token, scratchDir, rootfsDir); err != nil {
			return fmt.Errorf("layer %d (%s): %w", i+1, shortDigest(layer.Digest), err)
		}
	}

	if !opts.Quiet {
		fmt.Fprintf(output, "Pulled: %s\n", ref)
	}

	return nil
}

// fetchAndApply downloads one verified layer blob to a scratch file and
// extracts it into the rootfs. The scratch file never outlives the call.
func fetchAndApply(ctx context.Context, client *registry.Client, repo string, layer ocispec.Descriptor, token, scratchDir, rootfsDir string) error {
	scratch, err := client.FetchBlob(ctx, repo, layer, token, scratchDir)
	if err != nil {
		return err
	}
	defer func() {
		scratch.Close()
		_ = os.Remove(scratch.Name())
	}()

	if err := rootfs.ApplyLayer(scratch, rootfsDir); err != nil {
		return fmt.Errorf("unpack: %w", err)
	}
	return nil
}

// shortDigest returns a shortened digest for display.
func shortDigest(dgst digest.Digest) string {
	encoded := dgst.Encoded()
	if len(encoded) > 12 {
		return encoded[:12]
	}
	return encoded
}

// formatSize formats a byte size for human display.
func formatSize(size int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case size >= GB:
		return fmt.Sprintf("%.2f GB", float64(size)/GB)
	case size >= MB:
		return fmt.Sprintf("%.2f MB", float64(size)/MB)
	case size >= KB:
		return fmt.Sprintf("%.2f KB", float64(size)/KB)
	default:
		return fmt.Sprintf("%d B", size)
	}
}
