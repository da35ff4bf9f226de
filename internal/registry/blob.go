package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	errs "minibox/pkg/errors"
)

// FetchBlob downloads the blob a descriptor declares into a scratch file in
// scratchDir and returns the file positioned at its start.
//
// The body is hashed while it spools to disk; a digest or size mismatch
// removes the scratch file and fails before the caller can extract anything.
// Descriptors carrying direct URLs (foreign layers) are tried in order before
// falling back to the registry's blob endpoint.
//
// The caller owns the returned file and removes it when done.
func (c *Client) FetchBlob(ctx context.Context, repository string, desc ocispec.Descriptor, token, scratchDir string) (*os.File, error) {
	urls := desc.URLs
	if len(urls) == 0 {
		urls = []string{fmt.Sprintf("%s/v2/%s/blobs/%s", c.opts.Registry, repository, desc.Digest)}
	}

	var lastErr error
	for _, u := range urls {
		f, err := c.downloadBlob(ctx, u, desc, token, scratchDir)
		if err == nil {
			return f, nil
		}
		lastErr = err
		log.Debug("blob source failed", "url", u, "error", err)
	}
	return nil, fmt.Errorf("download blob %s: %w", desc.Digest, lastErr)
}

func (c *Client) downloadBlob(ctx context.Context, blobURL string, desc ocispec.Descriptor, token, scratchDir string) (*os.File, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, blobURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build blob request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if desc.MediaType != "" {
		req.Header.Set("Accept", desc.MediaType)
	}

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	scratch, err := os.CreateTemp(scratchDir, "blob-")
	if err != nil {
		return nil, fmt.Errorf("create scratch file: %w", err)
	}

	discard := func() {
		scratch.Close()
		_ = os.Remove(scratch.Name())
	}

	verifier := desc.Digest.Verifier()
	n, err := io.Copy(io.MultiWriter(scratch, verifier), body)
	if err != nil {
		discard()
		return nil, fmt.Errorf("spool blob body: %w", err)
	}

	if desc.Size > 0 && n != desc.Size {
		discard()
		return nil, fmt.Errorf("blob is %d bytes, descriptor declares %d: %w", n, desc.Size, errs.ErrDigestMismatch)
	}
	if !verifier.Verified() {
		discard()
		return nil, fmt.Errorf("blob %s: %w", desc.Digest, errs.ErrDigestMismatch)
	}

	if _, err := scratch.Seek(0, io.SeekStart); err != nil {
		discard()
		return nil, fmt.Errorf("rewind scratch file: %w", err)
	}

	return scratch, nil
}
