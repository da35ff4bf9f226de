// Package reference parses image references of the form name[:tag].
package reference

import (
	"fmt"
	"strings"

	errs "minibox/pkg/errors"
)

// DefaultTag is applied when a reference carries no tag.
const DefaultTag = "latest"

// defaultNamespace is prepended to unqualified single-segment names, matching
// Docker Hub's official-image convention (busybox -> library/busybox).
const defaultNamespace = "library"

// Reference identifies a container image as a name and a tag.
type Reference struct {
	// Name is the image name exactly as the user wrote it (no namespace
	// normalization; see Repository).
	Name string

	// Tag is the image tag, DefaultTag when the reference had none.
	Tag string
}

// Parse splits an image reference into name and tag.
//
// Zero colons means the tag defaults to "latest". Exactly one colon splits
// name from tag. Anything else is rejected: registry-host prefixes with
// ports and digest references are out of scope for this tool.
func Parse(s string) (Reference, error) {
	if s == "" {
		return Reference{}, fmt.Errorf("empty reference: %w", errs.ErrInvalidReference)
	}

	parts := strings.Split(s, ":")
	switch len(parts) {
	case 1:
		return Reference{Name: s, Tag: DefaultTag}, nil
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return Reference{}, fmt.Errorf("%q: %w", s, errs.ErrInvalidReference)
		}
		return Reference{Name: parts[0], Tag: parts[1]}, nil
	default:
		return Reference{}, fmt.Errorf("%q has %d colons: %w", s, len(parts)-1, errs.ErrInvalidReference)
	}
}

// Repository returns the repository path used in registry request URLs.
// Unqualified single-segment names resolve under the default namespace.
func (r Reference) Repository() string {
	if strings.Contains(r.Name, "/") {
		return r.Name
	}
	return defaultNamespace + "/" + r.Name
}

// String returns the reference in name:tag form.
func (r Reference) String() string {
	return r.Name + ":" + r.Tag
}
