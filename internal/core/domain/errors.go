package domain

import (
	"errors"
	"fmt"
)

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyDocument indicates a document produced no extractable text
	ErrEmptyDocument = errors.New("document has no extractable text")

	// ErrUnsupportedFormat indicates no loader can read the file
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrInvalidProvider indicates an unknown AI provider was specified
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrServiceUnavailable indicates the AI service could not be reached
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrAnswerTruncated indicates the answer stream stopped before completion
	ErrAnswerTruncated = errors.New("answer truncated")

	// ErrLockHeld indicates another holder owns the requested lock
	ErrLockHeld = errors.New("lock held by another holder")
)

// ErrorKind classifies pipeline failures
type ErrorKind string

const (
	ErrorKindIngestion   ErrorKind = "ingestion"
	ErrorKindRetrieval   ErrorKind = "retrieval"
	ErrorKindGeneration  ErrorKind = "generation"
	ErrorKindPersistence ErrorKind = "persistence"
)

// PipelineError is a classified failure raised at a stage boundary
type PipelineError struct {
	Kind  ErrorKind
	Stage string // e.g. "load", "embed", "rewrite", "answer"
	Err   error
}

func (e *PipelineError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error at %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewIngestionError wraps a failure while indexing a document
func NewIngestionError(stage string, err error) *PipelineError {
	return &PipelineError{Kind: ErrorKindIngestion, Stage: stage, Err: err}
}

// NewRetrievalError wraps a vector index search failure
func NewRetrievalError(stage string, err error) *PipelineError {
	return &PipelineError{Kind: ErrorKindRetrieval, Stage: stage, Err: err}
}

// NewGenerationError wraps a language model failure
func NewGenerationError(stage string, err error) *PipelineError {
	return &PipelineError{Kind: ErrorKindGeneration, Stage: stage, Err: err}
}

// NewPersistenceError wraps a history store failure
func NewPersistenceError(stage string, err error) *PipelineError {
	return &PipelineError{Kind: ErrorKindPersistence, Stage: stage, Err: err}
}

// IsKind reports whether err contains a PipelineError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}
