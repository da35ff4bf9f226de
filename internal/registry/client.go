// Package registry implements the subset of the distribution protocol this
// tool needs to pull an image: token authentication, manifest-list
// resolution, and authenticated blob downloads.
package registry

import (
	"fmt"
	"io"
	"net/http"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Docker Hub defaults. Tests point these at a local registry.
const (
	DefaultRegistry = "https://registry-1.docker.io"
	DefaultAuthURL  = "https://auth.docker.io/token"
	DefaultService  = "registry.docker.io"
)

// Docker media types not covered by the OCI image-spec constants.
const (
	mediaTypeDockerManifestList = "application/vnd.docker.distribution.manifest.list.v2+json"
	mediaTypeDockerManifest     = "application/vnd.docker.distribution.manifest.v2+json"
)

// Options configures a Client.
type Options struct {
	// Registry is the base URL of the distribution endpoint (no trailing slash).
	Registry string

	// AuthURL is the token endpoint queried for pull-scoped bearer tokens.
	AuthURL string

	// Service is the token request's service parameter.
	Service string

	// Platform is the single platform the resolver accepts. Entries in a
	// manifest list must match it exactly on OS and architecture.
	Platform ocispec.Platform

	// HTTPClient overrides the transport used for all requests.
	HTTPClient *http.Client
}

// DefaultOptions returns options targeting Docker Hub for linux/amd64.
func DefaultOptions() Options {
	return Options{
		Registry: DefaultRegistry,
		AuthURL:  DefaultAuthURL,
		Service:  DefaultService,
		Platform: ocispec.Platform{
			OS:           "linux",
			Architecture: "amd64",
		},
	}
}

// Client talks to a single registry. It holds no per-image state; the same
// client can resolve and fetch any repository the token endpoint grants.
type Client struct {
	opts Options
}

// NewClient creates a Client, filling zero-value options from DefaultOptions.
func NewClient(opts Options) *Client {
	defaults := DefaultOptions()
	if opts.Registry == "" {
		opts.Registry = defaults.Registry
	}
	if opts.AuthURL == "" {
		opts.AuthURL = defaults.AuthURL
	}
	if opts.Service == "" {
		opts.Service = defaults.Service
	}
	if opts.Platform.OS == "" && opts.Platform.Architecture == "" {
		opts.Platform = defaults.Platform
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	return &Client{opts: opts}
}

// Platform returns the platform the client resolves manifests for.
func (c *Client) Platform() ocispec.Platform {
	return c.opts.Platform
}

// do sends the request and enforces a 200 response, returning the body.
// Error responses are drained and summarized so the failure message carries
// the registry's status line.
func (c *Client) do(req *http.Request) (io.ReadCloser, error) {
	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s: unexpected status %s: %s", req.Method, req.URL, resp.Status, body)
	}
	return resp.Body, nil
}
