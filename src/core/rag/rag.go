// Package rag holds the error taxonomy shared by the retrieval pipeline.
package rag

import (
	"errors"
	"fmt"
)

// Kinds. Every typed error below matches exactly one of these through errors.Is.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrEmbedding       = errors.New("embedding failed")
	ErrModelInvocation = errors.New("model invocation failed")
	ErrIndexNotFound   = errors.New("index not found")
)

// ConfigurationError reports an invalid setting. It is never corrected silently.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// DimensionMismatchError reports vectors of different dimensionality meeting in one index.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: want %d, got %d", e.Want, e.Got)
}

func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrConfiguration
}

// EmbeddingError wraps a failure of the embedder.
type EmbeddingError struct {
	Op  string
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding %s: %v", e.Op, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

func (e *EmbeddingError) Is(target error) bool {
	return target == ErrEmbedding
}

// ModelInvocationError wraps a failure of the language model.
type ModelInvocationError struct {
	Template string
	Err      error
}

func (e *ModelInvocationError) Error() string {
	return fmt.Sprintf("model invocation for %q template: %v", e.Template, e.Err)
}

func (e *ModelInvocationError) Unwrap() error { return e.Err }

func (e *ModelInvocationError) Is(target error) bool {
	return target == ErrModelInvocation
}

// IndexNotFoundError is returned when a persisted index is missing.
type IndexNotFoundError struct {
	Path string
	Err  error
}

func (e *IndexNotFoundError) Error() string {
	return fmt.Sprintf("index not found at %s: %v", e.Path, e.Err)
}

func (e *IndexNotFoundError) Unwrap() error { return e.Err }

func (e *IndexNotFoundError) Is(target error) bool {
	return target == ErrIndexNotFound
}
