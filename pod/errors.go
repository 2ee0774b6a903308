package pod

import "fmt"

// Error kinds surfaced by the codec (spec §7). Malformed is fatal for
// the message it was found in; the rest are recoverable by the caller.

// MalformedError reports a bounds violation, bad alignment, or
// truncated header, along with the byte offset it was detected at.
type MalformedError struct {
	Offset int
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("pod: malformed at offset %d: %s", e.Offset, e.Reason)
}

func malformed(offset int, reason string) error {
	return &MalformedError{Offset: offset, Reason: reason}
}

// TypeMismatchError reports a type-checked read that found the wrong
// tag.
type TypeMismatchError struct {
	Expected Type
	Found    Type
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("pod: type mismatch: expected %s, found %s", e.Expected, e.Found)
}

func typeMismatch(expected, found Type) error {
	return &TypeMismatchError{Expected: expected, Found: found}
}

// ShapeError reports Builder API misuse: close without open, illegal
// nesting, or a heterogeneous array/choice element.
type ShapeError struct {
	Reason string
}

func (e *ShapeError) Error() string {
	return "pod: shape error: " + e.Reason
}

func shapeErr(reason string) error {
	return &ShapeError{Reason: reason}
}

// OverflowError is returned by Builder.Close on the outermost frame when
// the destination buffer was too small; Required reports the capacity
// a retry needs.
type OverflowError struct {
	Required int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("pod: buffer overflow, need at least %d bytes", e.Required)
}

// RemapFailedError reports a remap-time failure: an unknown identifier
// or a shape mismatch while translating a specific tag.
type RemapFailedError struct {
	Tag    Type
	Offset int
	Reason string
}

func (e *RemapFailedError) Error() string {
	return fmt.Sprintf("pod: remap failed at offset %d (%s): %s", e.Offset, e.Tag, e.Reason)
}

func remapFailed(tag Type, offset int, reason string) error {
	return &RemapFailedError{Tag: tag, Offset: offset, Reason: reason}
}

// ErrNoIntersection is returned by Filter when two Choices share no
// common value.
var ErrNoIntersection = fmt.Errorf("pod: choice filter produced no intersection")

// ErrEnd is returned by Parser.Next once a container's children are
// exhausted.
var ErrEnd = fmt.Errorf("pod: end of container")

// ErrPropertyNotFound is returned by Parser.FindProp when no child
// property carries the requested key.
var ErrPropertyNotFound = fmt.Errorf("pod: property not found")
