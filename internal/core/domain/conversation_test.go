package domain

import (
	"errors"
	"testing"
)

func TestChatState_CanTransition(t *testing.T) {
	tests := []struct {
		from ChatState
		to   ChatState
		ok   bool
	}{
		{ChatStateAwaitingQuestion, ChatStateRewritingQuery, true},
		{ChatStateRewritingQuery, ChatStateRetrieving, true},
		{ChatStateRetrieving, ChatStateAnswering, true},
		{ChatStateAnswering, ChatStatePersisting, true},
		{ChatStatePersisting, ChatStateComplete, true},
		{ChatStateRetrieving, ChatStateFailed, true},
		{ChatStateAwaitingQuestion, ChatStateFailed, true},
		{ChatStateAwaitingQuestion, ChatStateRetrieving, false},
		{ChatStateAnswering, ChatStateComplete, false},
		{ChatStateComplete, ChatStateFailed, false},
		{ChatStateFailed, ChatStateRewritingQuery, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.ok {
				t.Errorf("expected %v, got %v", tt.ok, got)
			}
		})
	}
}

func TestAskEvent_IsTerminal(t *testing.T) {
	if (AskEvent{Delta: "hi"}).IsTerminal() {
		t.Error("delta events are not terminal")
	}
	if !(AskEvent{Result: &AskResult{}}).IsTerminal() {
		t.Error("result events are terminal")
	}
	if !(AskEvent{Err: errors.New("x")}).IsTerminal() {
		t.Error("error events are terminal")
	}
}

func TestNewReference(t *testing.T) {
	ref := NewReference(ChunkMetadata{
		Filename:   "report.pdf",
		SessionID:  "s1",
		Source:     "/uploads/report.pdf",
		PageNumber: 3,
		ChunkID:    7,
	})

	if ref.Filename != "report.pdf" || ref.PageNumber != 3 || ref.ChunkID != 7 {
		t.Errorf("unexpected reference %+v", ref)
	}
	if ref.Source != "/uploads/report.pdf" {
		t.Errorf("expected source to be kept, got %q", ref.Source)
	}
}

func TestNewTurn(t *testing.T) {
	turn := NewTurn("s1", "q", "a")
	if turn.ID == "" || turn.CreatedAt.IsZero() {
		t.Error("expected id and timestamp")
	}
	if turn.SessionID != "s1" || turn.Question != "q" || turn.Answer != "a" {
		t.Errorf("unexpected turn %+v", turn)
	}
}
