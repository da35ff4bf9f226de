// Package errors provides standard error types for minibox.
//
// These sentinel errors allow callers to check for specific error conditions
// using errors.Is(), enabling programmatic error handling.
package errors

import "errors"

// Reference errors
var (
	// ErrInvalidReference indicates an image reference that does not follow
	// the name[:tag] form (for example more than one colon).
	ErrInvalidReference = errors.New("invalid image reference")
)

// Registry errors
var (
	// ErrPlatformNotFound indicates the manifest list contains no entry for
	// the target platform.
	ErrPlatformNotFound = errors.New("no manifest for target platform")

	// ErrDigestMismatch indicates downloaded blob content does not hash to
	// the digest its descriptor declares.
	ErrDigestMismatch = errors.New("blob digest mismatch")
)

// Rootfs errors
var (
	// ErrInvalidRootfs indicates the rootfs path is invalid (does not exist or is not a directory).
	ErrInvalidRootfs = errors.New("invalid rootfs path")

	// ErrHelperNotFound indicates the helper binary is missing from its host source path.
	ErrHelperNotFound = errors.New("helper binary not found")
)
