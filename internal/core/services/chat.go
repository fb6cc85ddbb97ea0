package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driving"
)

// Ensure ChatOrchestrator implements driving.ChatService
var _ driving.ChatService = (*ChatOrchestrator)(nil)

// DefaultSessionLockTTL bounds how long one turn may hold its session lock
const DefaultSessionLockTTL = 5 * time.Minute

// ChatOrchestrator runs one ask through the turn state machine:
//
//	AwaitingQuestion -> RewritingQuery -> Retrieving -> Answering -> Persisting -> Complete
//
// Any stage may move to Failed.
type ChatOrchestrator struct {
	history   driven.HistoryStore
	rewriter  *QueryRewriter
	retriever *Retriever
	answerer  *Answerer
	lock      driven.DistributedLock
	lockTTL   time.Duration
	config    domain.RAGConfig
	observe   func(sessionID string, from, to domain.ChatState)
	logger    *slog.Logger
}

// ChatOrchestratorConfig holds dependencies for ChatOrchestrator.
type ChatOrchestratorConfig struct {
	History   driven.HistoryStore
	Rewriter  *QueryRewriter
	Retriever *Retriever
	Answerer  *Answerer

	// Lock serializes turns within a session when set
	Lock    driven.DistributedLock
	LockTTL time.Duration

	RAG domain.RAGConfig

	// OnTransition is called on every state change (optional)
	OnTransition func(sessionID string, from, to domain.ChatState)

	Logger *slog.Logger
}

// NewChatOrchestrator creates a new chat orchestrator.
func NewChatOrchestrator(cfg ChatOrchestratorConfig) *ChatOrchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = DefaultSessionLockTTL
	}
	return &ChatOrchestrator{
		history:   cfg.History,
		rewriter:  cfg.Rewriter,
		retriever: cfg.Retriever,
		answerer:  cfg.Answerer,
		lock:      cfg.Lock,
		lockTTL:   lockTTL,
		config:    cfg.RAG,
		observe:   cfg.OnTransition,
		logger:    logger,
	}
}

// Ask validates the request and starts the turn in the background.
func (o *ChatOrchestrator) Ask(ctx context.Context, sessionID, question string) (<-chan domain.AskEvent, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: session_id is required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question is required", domain.ErrInvalidInput)
	}

	events := make(chan domain.AskEvent, 16)
	go func() {
		defer close(events)
		t := &turn{
			o:      o,
			events: events,
			done:   ctx.Done(),
			state:  domain.ChatStateAwaitingQuestion,
			logger: o.logger.With("session_id", sessionID),
			result: &domain.AskResult{
				SessionID:  sessionID,
				Question:   question,
				References: []domain.Reference{},
				Attempts:   make(map[string]int),
			},
		}
		t.run(ctx)
	}()
	return events, nil
}

// AskSync drains Ask and returns the terminal result and error.
func (o *ChatOrchestrator) AskSync(ctx context.Context, sessionID, question string) (*domain.AskResult, error) {
	events, err := o.Ask(ctx, sessionID, question)
	if err != nil {
		return nil, err
	}

	var (
		result *domain.AskResult
		askErr error
	)
	for ev := range events {
		if ev.IsTerminal() {
			result, askErr = ev.Result, ev.Err
		}
	}
	if result == nil && askErr == nil {
		askErr = ctx.Err()
	}
	return result, askErr
}

// History returns a session's turns, oldest first.
func (o *ChatOrchestrator) History(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	turns, err := o.history.GetHistory(ctx, sessionID)
	if err != nil {
		return nil, domain.NewPersistenceError("load_history", err)
	}
	return turns, nil
}

// ClearHistory removes a session's turns.
func (o *ChatOrchestrator) ClearHistory(ctx context.Context, sessionID string) error {
	if err := o.history.Clear(ctx, sessionID); err != nil {
		return domain.NewPersistenceError("clear_history", err)
	}
	return nil
}

// turn is the state of one ask in flight
type turn struct {
	o      *ChatOrchestrator
	events chan<- domain.AskEvent
	done   <-chan struct{}
	state  domain.ChatState
	result *domain.AskResult
	logger *slog.Logger
}

func (t *turn) run(ctx context.Context) {
	start := time.Now()
	o := t.o
	sessionID := t.result.SessionID

	t.advance(domain.ChatStateRewritingQuery)

	if o.lock != nil {
		release, err := t.acquire(ctx, sessionID)
		if err != nil {
			t.fail(err)
			return
		}
		defer release()
	}

	history, attempts, err := callWithRetry(ctx, o.config.Retry, t.logger, "load_history", func(ctx context.Context) ([]domain.Turn, error) {
		return o.history.GetHistory(ctx, sessionID)
	})
	t.result.Attempts["load_history"] = attempts
	if err != nil {
		t.fail(domain.NewPersistenceError("load_history", err))
		return
	}

	standalone, attempts, err = o.rewriter.Rewrite(ctx, t.result.Question, history)
	t.result.Attempts["rewrite"] = attempts
	if err != nil {
		t.fail(err)
		return
	}
	t.result.StandaloneQuestion = standalone

	t.advance(domain.ChatStateRetrieving)

	var matches []domain.Match
	retrieved, err := o.retriever.Retrieve(ctx, sessionID, standalone)
	if retrieved != nil {
		t.result.Attempts["retrieve"] = retrieved.Attempts
	}
	switch {
	case err == nil:
		matches = retrieved.Matches
	case ctx.Err() != nil:
		t.fail(ctx.Err())
		return
	case o.config.RetrievalFailure == domain.RetrievalFailureFail:
		t.fail(err)
		return
	default:
		t.logger.Warn("retrieval failed, answering without context", "error", err)
		t.result.RetrievalFailed = true
	}
	t.result.Grounded = len(matches) > 0

	t.advance(domain.ChatStateAnswering)

	answer, attempts, err := o.answerer.Answer(ctx, standalone, matches, t.delta(ctx))
	t.result.Attempts["answer"] = attempts
	t.result.Answer = answer
	if err != nil {
		if errors.Is(err, domain.ErrAnswerTruncated) {
			t.result.Truncated = true
			t.result.Duration = time.Since(start)
			t.logger.Warn("answer truncated, turn dropped", "answer_chars", len(answer))
			t.advance(domain.ChatStateFailed)
			t.finish(domain.AskEvent{Result: t.result, Err: err})
			return
		}
		t.fail(err)
		return
	}
	t.result.References, t.result.DominantSource = o.answerer.BuildReferences(matches)

	t.advance(domain.ChatStatePersisting)

	// The answer is complete, so persistence outlives a caller that has gone away
	persistCtx := context.WithoutCancel(ctx)
	record := domain.NewTurn(sessionID, t.result.Question, answer)
	_, attempts, err = callWithRetry(persistCtx, o.config.Retry, t.logger, "persist", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.history.Append(ctx, sessionID, record)
	})
	t.result.Attempts["persist"] = attempts
	t.result.Duration = time.Since(start)
	if err != nil {
		perr := domain.NewPersistenceError("append_turn", err)
		t.logger.Error("answer delivered but turn not saved", "error", perr)
		t.advance(domain.ChatStateFailed)
		t.finish(domain.AskEvent{Result: t.result, Err: perr})
		return
	}
	t.result.Persisted = true

	t.advance(domain.ChatStateComplete)
	t.logger.Info("turn complete",
		"grounded", t.result.Grounded,
		"references", len(t.result.References),
		"duration", t.result.Duration,
	)
	t.finish(domain.AskEvent{Result: t.result})
}

// acquire takes the session lock without waiting for a holder. Only lock
// backend errors are retried.
func (t *turn) acquire(ctx context.Context, sessionID string) (func(), error) {
	name := "chat:" + sessionID
	ok, attempts, err := callWithRetry(ctx, t.o.config.Retry, t.logger, "lock", func(ctx context.Context) (bool, error) {
		return t.o.lock.Acquire(ctx, name, t.o.lockTTL)
	})
	t.result.Attempts["lock"] = attempts
	if err != nil {
		return nil, domain.NewPersistenceError("lock", err)
	}
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrLockHeld)
	}
	return func() {
		releaseCtx := context.WithoutCancel(ctx)
		if d := t.o.config.Retry.Timeout; d > 0 {
			var cancel context.CancelFunc
			releaseCtx, cancel = context.WithTimeout(releaseCtx, d)
			defer cancel()
		}
		if err := t.o.lock.Release(releaseCtx, name); err != nil {
			t.logger.Warn("failed to release session lock", "error", err)
		}
	}, nil
}

func (t *turn) advance(next domain.ChatState) {
	if !t.state.CanTransition(next) {
		t.logger.Error("invalid chat state transition", "from", t.state, "to", next)
		return
	}
	if t.o.observe != nil {
		t.o.observe(t.result.SessionID, t.state, next)
	}
	t.logger.Debug("chat state", "from", t.state, "to", next)
	t.state = next
}

func (t *turn) fail(err error) {
	t.logger.Error("turn failed", "state", t.state, "error", err)
	t.advance(domain.ChatStateFailed)
	t.finish(domain.AskEvent{Err: err})
}

// delta forwards answer deltas until the caller goes away.
func (t *turn) delta(ctx context.Context) func(string) {
	return func(d string) {
		select {
		case t.events <- domain.AskEvent{Delta: d}:
		case <-ctx.Done():
		}
	}
}

// finish delivers the terminal event. If the caller is gone it is dropped
// once the buffer is full.
func (t *turn) finish(ev domain.AskEvent) {
	select {
	case t.events <- ev:
	case <-t.done:
		select {
		case t.events <- ev:
		default:
		}
	}
}
