package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	errs "minibox/pkg/errors"
)

// ResolveManifest fetches the manifest list for repository:tag, selects the
// entry matching the client's platform, and re-fetches that entry's digest
// from the same endpoint to obtain the full image manifest.
//
// Registries that store a single-platform image at the tag return the image
// manifest directly; that case is accepted without a second fetch.
func (c *Client) ResolveManifest(ctx context.Context, repository, tag, token string) (*ocispec.Manifest, error) {
	raw, err := c.fetchManifest(ctx, repository, tag, token,
		mediaTypeDockerManifestList, ocispec.MediaTypeImageIndex)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest list for %s:%s: %w", repository, tag, err)
	}

	var index ocispec.Index
	if err := json.Unmarshal(raw, &index); err != nil {
		return nil, fmt.Errorf("decode manifest list for %s:%s: %w", repository, tag, err)
	}

	if len(index.Manifests) == 0 {
		// Not a list. Try the bytes as an image manifest before failing.
		var manifest ocispec.Manifest
		if err := json.Unmarshal(raw, &manifest); err == nil && len(manifest.Layers) > 0 {
			log.Debug("registry returned a single-platform manifest", "repository", repository, "tag", tag)
			return &manifest, nil
		}
		return nil, fmt.Errorf("manifest list for %s:%s is empty", repository, tag)
	}

	entry, err := c.selectPlatform(index.Manifests)
	if err != nil {
		return nil, fmt.Errorf("%s:%s: %w", repository, tag, err)
	}

	accept := []string{mediaTypeDockerManifest, ocispec.MediaTypeImageManifest}
	if entry.MediaType != "" {
		accept = []string{entry.MediaType}
	}
	raw, err = c.fetchManifest(ctx, repository, entry.Digest.String(), token, accept...)
	if err != nil {
		return nil, fmt.Errorf("fetch image manifest %s: %w", entry.Digest, err)
	}

	var manifest ocispec.Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("decode image manifest %s: %w", entry.Digest, err)
	}

	return &manifest, nil
}

// selectPlatform returns the first manifest-list entry matching the target
// platform exactly on OS and architecture.
//
// Registries do not guarantee the target platform appears at most once; when
// several entries match, list order decides and the duplicates are logged so
// the choice is visible rather than silent.
func (c *Client) selectPlatform(entries []ocispec.Descriptor) (ocispec.Descriptor, error) {
	target := c.opts.Platform

	var matches []ocispec.Descriptor
	for _, entry := range entries {
		if entry.Platform == nil {
			continue
		}
		if entry.Platform.OS == target.OS && entry.Platform.Architecture == target.Architecture {
			matches = append(matches, entry)
		}
	}

	if len(matches) == 0 {
		return ocispec.Descriptor{}, fmt.Errorf("%s/%s: %w", target.OS, target.Architecture, errs.ErrPlatformNotFound)
	}
	if len(matches) > 1 {
		log.Debug("manifest list has multiple entries for target platform; taking the first",
			"platform", target.OS+"/"+target.Architecture, "matches", len(matches))
	}

	return matches[0], nil
}

// fetchManifest GETs /v2/<repository>/manifests/<reference> with the bearer
// token and the given accept media types. reference is a tag or a digest.
func (c *Client) fetchManifest(ctx context.Context, repository, reference, token string, accept ...string) ([]byte, error) {
	u := fmt.Sprintf("%s/v2/%s/manifests/%s", c.opts.Registry, repository, reference)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build manifest request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", strings.Join(accept, ", "))

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read manifest body: %w", err)
	}
	return raw, nil
}
