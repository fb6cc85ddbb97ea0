package domain

import (
	"fmt"
	"time"
)

// ReferenceMode selects how answer references are derived
type ReferenceMode string

const (
	// ReferenceModeDominant returns the citations of the most-matched document
	ReferenceModeDominant ReferenceMode = "dominant"
	// ReferenceModeNone always returns an empty list
	ReferenceModeNone ReferenceMode = "none"
)

// RetrievalFailurePolicy selects what ask does when search is unavailable
type RetrievalFailurePolicy string

const (
	// RetrievalFailureDegrade answers with an empty context
	RetrievalFailureDegrade RetrievalFailurePolicy = "degrade"
	// RetrievalFailureFail aborts the turn
	RetrievalFailureFail RetrievalFailurePolicy = "fail"
)

// MaxRetries bounds RetryPolicy.MaxRetries
const MaxRetries = 3

// RetryPolicy bounds every external model and index call
type RetryPolicy struct {
	Timeout        time.Duration `json:"timeout" yaml:"timeout"`                 // Per attempt
	MaxRetries     int           `json:"max_retries" yaml:"max_retries"`         // Retries after the first attempt
	InitialBackoff time.Duration `json:"initial_backoff" yaml:"initial_backoff"` // Grows exponentially
}

// Attempts returns the total number of calls allowed
func (p RetryPolicy) Attempts() int {
	return 1 + p.MaxRetries
}

// RAGConfig is the process-wide pipeline configuration.
// It is built once at startup and injected into each component.
type RAGConfig struct {
	Collection string `json:"collection" yaml:"collection"`

	ChunkSize    int `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap" yaml:"chunk_overlap"`

	EmbeddingBatchSize int `json:"embedding_batch_size" yaml:"embedding_batch_size"`

	// Retrieval
	K              int     `json:"k" yaml:"k"`
	ScoreThreshold float64 `json:"score_threshold" yaml:"score_threshold"`
	QueryVariants  int     `json:"query_variants" yaml:"query_variants"`

	Retry            RetryPolicy            `json:"retry" yaml:"retry"`
	References       ReferenceMode          `json:"references" yaml:"references"`
	RetrievalFailure RetrievalFailurePolicy `json:"retrieval_failure" yaml:"retrieval_failure"`
}

// DefaultRAGConfig returns the defaults of the original deployment
func DefaultRAGConfig() RAGConfig {
	return RAGConfig{
		Collection:         "pdf_vectors_v3",
		ChunkSize:          512,
		ChunkOverlap:       50,
		EmbeddingBatchSize: 16,
		K:                  2,
		ScoreThreshold:     0.85,
		QueryVariants:      3,
		Retry: RetryPolicy{
			Timeout:        60 * time.Second,
			MaxRetries:     2,
			InitialBackoff: 500 * time.Millisecond,
		},
		References:       ReferenceModeDominant,
		RetrievalFailure: RetrievalFailureDegrade,
	}
}

// Validate checks the configuration for impossible values
func (c RAGConfig) Validate() error {
	switch {
	case c.Collection == "":
		return fmt.Errorf("%w: collection is required", ErrInvalidInput)
	case c.ChunkSize <= 0:
		return fmt.Errorf("%w: chunk_size must be positive", ErrInvalidInput)
	case c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize:
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size)", ErrInvalidInput)
	case c.EmbeddingBatchSize <= 0:
		return fmt.Errorf("%w: embedding_batch_size must be positive", ErrInvalidInput)
	case c.K <= 0:
		return fmt.Errorf("%w: k must be positive", ErrInvalidInput)
	case c.ScoreThreshold < 0 || c.ScoreThreshold > 1:
		return fmt.Errorf("%w: score_threshold must be in [0, 1]", ErrInvalidInput)
	case c.QueryVariants < 0:
		return fmt.Errorf("%w: query_variants must not be negative", ErrInvalidInput)
	case c.Retry.Timeout <= 0:
		return fmt.Errorf("%w: retry timeout must be positive", ErrInvalidInput)
	case c.Retry.MaxRetries < 0 || c.Retry.MaxRetries > MaxRetries:
		return fmt.Errorf("%w: max_retries must be in [0, %d]", ErrInvalidInput, MaxRetries)
	}

	switch c.References {
	case ReferenceModeDominant, ReferenceModeNone:
	default:
		return fmt.Errorf("%w: unknown reference mode %q", ErrInvalidInput, c.References)
	}

	switch c.RetrievalFailure {
	case RetrievalFailureDegrade, RetrievalFailureFail:
	default:
		return fmt.Errorf("%w: unknown retrieval failure policy %q", ErrInvalidInput, c.RetrievalFailure)
	}
	return nil
}
