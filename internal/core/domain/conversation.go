package domain

import (
	"time"
)

// Turn is one question/answer exchange within a session
type Turn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

// NewTurn creates a turn stamped with the current time
func NewTurn(sessionID, question, answer string) *Turn {
	return &Turn{
		ID:        GenerateID(),
		SessionID: sessionID,
		Question:  question,
		Answer:    answer,
		CreatedAt: time.Now(),
	}
}

// Reference attributes an answer to one indexed chunk
type Reference struct {
	Filename   string `json:"filename"`
	PageNumber int    `json:"page_number"`
	ChunkID    int    `json:"chunk_id"`
	Source     string `json:"source,omitempty"`
}

// NewReference derives a reference from chunk metadata
func NewReference(m ChunkMetadata) Reference {
	return Reference{
		Filename:   m.Filename,
		PageNumber: m.PageNumber,
		ChunkID:    m.ChunkID,
		Source:     m.Source,
	}
}

// AskResult is the terminal outcome of one ask call
type AskResult struct {
	SessionID          string      `json:"session_id"`
	Question           string      `json:"question"`
	StandaloneQuestion string      `json:"standalone_question"`
	Answer             string      `json:"answer"`
	References         []Reference `json:"references"`
	DominantSource     string      `json:"dominant_source,omitempty"`

	// Grounded is true when the answer was conditioned on at least one retrieved chunk
	Grounded bool `json:"grounded"`

	// Persisted is false when the turn was not written to history
	Persisted bool `json:"persisted"`

	// Truncated is true when the answer stream was interrupted
	Truncated bool `json:"truncated"`

	// RetrievalFailed is true when search failed and the answer degraded to no context
	RetrievalFailed bool `json:"retrieval_failed"`

	// Attempts counts calls per stage, including retries
	Attempts map[string]int `json:"attempts,omitempty"`

	Duration time.Duration `json:"duration"`
}

// AskEvent is one element of an ask stream.
// Intermediate events carry Delta. The final event carries Result, Err, or both
// (a persistence failure keeps the answer but reports the error).
type AskEvent struct {
	Delta  string     `json:"delta,omitempty"`
	Result *AskResult `json:"result,omitempty"`
	Err    error      `json:"-"`
}

// IsTerminal reports whether the event ends the stream
func (e AskEvent) IsTerminal() bool {
	return e.Result != nil || e.Err != nil
}

// ChatState is a stage of the ask state machine
type ChatState string

const (
	ChatStateAwaitingQuestion ChatState = "awaiting_question"
	ChatStateRewritingQuery   ChatState = "rewriting_query"
	ChatStateRetrieving       ChatState = "retrieving"
	ChatStateAnswering        ChatState = "answering"
	ChatStatePersisting       ChatState = "persisting"
	ChatStateComplete         ChatState = "complete"
	ChatStateFailed           ChatState = "failed"
)

var chatTransitions = map[ChatState]ChatState{
	ChatStateAwaitingQuestion: ChatStateRewritingQuery,
	ChatStateRewritingQuery:   ChatStateRetrieving,
	ChatStateRetrieving:       ChatStateAnswering,
	ChatStateAnswering:        ChatStatePersisting,
	ChatStatePersisting:       ChatStateComplete,
}

// IsTerminal returns true for Complete and Failed
func (s ChatState) IsTerminal() bool {
	return s == ChatStateComplete || s == ChatStateFailed
}

// CanTransition reports whether the machine may move from s to next.
// Failed is reachable from every non-terminal state.
func (s ChatState) CanTransition(next ChatState) bool {
	if s.IsTerminal() {
		return false
	}
	if next == ChatStateFailed {
		return true
	}
	return chatTransitions[s] == next
}
