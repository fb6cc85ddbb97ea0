package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		msg  string
	}{
		{"ErrNotFound", ErrNotFound, "not found"},
		{"ErrInvalidInput", ErrInvalidInput, "invalid input"},
		{"ErrEmptyDocument", ErrEmptyDocument, "document has no extractable text"},
		{"ErrUnsupportedFormat", ErrUnsupportedFormat, "unsupported document format"},
		{"ErrInvalidProvider", ErrInvalidProvider, "invalid provider"},
		{"ErrServiceUnavailable", ErrServiceUnavailable, "service unavailable"},
		{"ErrAnswerTruncated", ErrAnswerTruncated, "answer truncated"},
		{"ErrLockHeld", ErrLockHeld, "lock held by another holder"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.msg {
				t.Errorf("expected %q, got %q", tt.msg, tt.err.Error())
			}
		})
	}
}

func TestErrorsAreDistinct(t *testing.T) {
	allErrors := []error{
		ErrNotFound,
		ErrInvalidInput,
		ErrEmptyDocument,
		ErrUnsupportedFormat,
		ErrInvalidProvider,
		ErrServiceUnavailable,
		ErrAnswerTruncated,
		ErrLockHeld,
	}

	for i, err1 := range allErrors {
		for j, err2 := range allErrors {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("errors should be distinct: %v and %v", err1, err2)
			}
		}
	}
}

func TestPipelineError(t *testing.T) {
	cause := errors.New("connection refused")

	tests := []struct {
		name string
		err  *PipelineError
		kind ErrorKind
		msg  string
	}{
		{"ingestion", NewIngestionError("load", cause), ErrorKindIngestion, "ingestion error at load: connection refused"},
		{"retrieval", NewRetrievalError("search", cause), ErrorKindRetrieval, "retrieval error at search: connection refused"},
		{"generation", NewGenerationError("answer", cause), ErrorKindGeneration, "generation error at answer: connection refused"},
		{"persistence", NewPersistenceError("", cause), ErrorKindPersistence, "persistence error: connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.msg {
				t.Errorf("expected %q, got %q", tt.msg, tt.err.Error())
			}
			if !errors.Is(tt.err, cause) {
				t.Error("expected pipeline error to unwrap to its cause")
			}
			if !IsKind(tt.err, tt.kind) {
				t.Errorf("expected kind %s", tt.kind)
			}
		})
	}
}

func TestIsKind_Wrapped(t *testing.T) {
	err := fmt.Errorf("ask: %w", NewGenerationError("rewrite", ErrServiceUnavailable))

	if !IsKind(err, ErrorKindGeneration) {
		t.Error("expected wrapped error to be a generation error")
	}
	if IsKind(err, ErrorKindRetrieval) {
		t.Error("expected wrapped error not to be a retrieval error")
	}
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Error("expected errors.Is to reach the sentinel")
	}
	if IsKind(ErrNotFound, ErrorKindIngestion) {
		t.Error("plain errors have no kind")
	}
}
