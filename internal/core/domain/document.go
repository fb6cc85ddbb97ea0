package domain

import (
	"fmt"
	"path/filepath"
	"time"
)

// Document represents one uploaded file attached to a chat session.
// Documents are immutable; a re-upload creates a new Document.
type Document struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Filename   string    `json:"filename"`
	Path       string    `json:"path"` // Storage path on disk
	UploadedAt time.Time `json:"uploaded_at"`
}

// NewDocument builds a Document for a file stored at path.
func NewDocument(id, sessionID, path string) *Document {
	return &Document{
		ID:         id,
		SessionID:  sessionID,
		Filename:   filepath.Base(path),
		Path:       path,
		UploadedAt: time.Now(),
	}
}

// TextBlock is a page-tagged span of text produced by a document loader
type TextBlock struct {
	Text       string `json:"text"`
	PageNumber int    `json:"page_number"` // 1-based
}

// ChunkMetadata is the fixed provenance record carried by every chunk.
// It is enough to rebuild a citation and to filter by session.
type ChunkMetadata struct {
	Filename   string `json:"filename"`
	SessionID  string `json:"session_id"`
	Source     string `json:"source"` // Storage path of the originating file
	PageNumber int    `json:"page_number"`
	ChunkID    int    `json:"chunk_id"` // 0-based, sequential per document
}

// Citation renders the metadata as "filename p.N #chunk"
func (m ChunkMetadata) Citation() string {
	return fmt.Sprintf("%s p.%d #%d", m.Filename, m.PageNumber, m.ChunkID)
}

// Chunk represents an indexed span of document text
type Chunk struct {
	ID         string        `json:"id"`
	Collection string        `json:"collection"`
	Content    string        `json:"content"`
	Metadata   ChunkMetadata `json:"metadata"`
	Embedding  []float32     `json:"embedding,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Match is a chunk returned by a similarity search
type Match struct {
	ChunkID  string        `json:"chunk_id"`
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
	Score    float64       `json:"score"`
}

// Key identifies the chunk a match points at, independent of the query that found it
func (m Match) Key() string {
	if m.ChunkID != "" {
		return m.ChunkID
	}
	return fmt.Sprintf("%s|%s|%d", m.Metadata.SessionID, m.Metadata.Source, m.Metadata.ChunkID)
}

// MetadataFilter restricts a search to chunks with matching metadata.
// SessionID is mandatory for tenant isolation.
type MetadataFilter struct {
	SessionID string `json:"session_id"`
	Filename  string `json:"filename,omitempty"`
}

// Validate ensures the filter carries a session scope
func (f MetadataFilter) Validate() error {
	if f.SessionID == "" {
		return fmt.Errorf("%w: search filter requires a session_id", ErrInvalidInput)
	}
	return nil
}

// Matches reports whether metadata satisfies the filter
func (f MetadataFilter) Matches(m ChunkMetadata) bool {
	if f.SessionID == "" || m.SessionID != f.SessionID {
		return false
	}
	if f.Filename != "" && m.Filename != f.Filename {
		return false
	}
	return true
}

// SearchRequest describes one similarity search against the vector index
type SearchRequest struct {
	Collection     string
	Vector         []float32
	K              int
	ScoreThreshold float64
	Filter         MetadataFilter
}

// IndexResult reports the outcome of indexing one document
type IndexResult struct {
	Document      *Document     `json:"document"`
	ChunksIndexed int           `json:"chunks_indexed"`
	Pages         int           `json:"pages"`
	Empty         bool          `json:"empty"` // No extractable text
	Duration      time.Duration `json:"duration"`
}
