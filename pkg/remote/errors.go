package remote

import (
	"errors"
	"fmt"
)

// ============================================================================
// Standard Remote Errors
// ============================================================================

// These errors give every Remote implementation a common vocabulary for
// failure. The broker checks them with errors.Is and surfaces them to the
// dataset builder unchanged.
//
// Usage Pattern:
//
//	data, err := r.ReadAll(ctx, path)
//	if err != nil {
//	    if errors.Is(err, remote.ErrNotFound) {
//	        // the object does not exist
//	    }
//	    return err
//	}
//
// Error Wrapping:
// Implementations wrap these errors with the failing path:
//
//	return fmt.Errorf("read %s: %w", path, remote.ErrNotFound)

var (
	// ErrNotFound indicates the addressed object, collection or metadata key
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a path that must be absent already exists.
	//
	// Only returned by operations with explicit create-if-absent semantics,
	// such as creating a dataset root.
	ErrAlreadyExists = errors.New("already exists")

	// ErrTransport indicates the store could not be reached, the command
	// could not be started, or it exited with an unexpected status.
	ErrTransport = errors.New("transport failure")

	// ErrParse indicates a response from the store did not have the expected
	// structure. A change in the remote tool's output format surfaces here
	// instead of producing wrong values.
	ErrParse = errors.New("unexpected output")

	// ErrUnsupportedDigest indicates the store reported a content digest
	// computed with an algorithm other than md5. Manifests declare md5
	// digests, so such a value must not be recorded as one.
	ErrUnsupportedDigest = errors.New("unsupported digest algorithm")
)

// ParseError reports output that did not match the expected shape.
type ParseError struct {
	// Shape names the output being parsed (e.g. "listing", "checksum").
	Shape string

	// Reason describes what was missing.
	Reason string

	// Output is the raw text that failed to parse.
	Output string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s output: %s (output: %q)", e.Shape, e.Reason, e.Output)
}

// Unwrap lets errors.Is match ErrParse.
func (e *ParseError) Unwrap() error {
	return ErrParse
}

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
