package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/core/ports/driven"
)

const answerPrompt = `
You are an expert assistant in PDF document comprehension and general knowledge.

When answering, prioritize the provided context and document content.
If sufficient information cannot be found in the context, the document, or your own knowledge, respond clearly that you cannot answer.

- Do not invent facts.
- Be clear, concise, and helpful.

--------------------
%s

Question: %s
`

// Answerer generates a grounded answer from retrieved chunks.
type Answerer struct {
	llm         driven.LLMService
	temperature float32
	retry       domain.RetryPolicy
	references  domain.ReferenceMode
	logger      *slog.Logger
}

// AnswererConfig holds dependencies for Answerer.
type AnswererConfig struct {
	LLM         driven.LLMService
	Temperature float32
	Retry       domain.RetryPolicy
	References  domain.ReferenceMode
	Logger      *slog.Logger
}

// NewAnswerer creates a new answerer.
func NewAnswerer(cfg AnswererConfig) *Answerer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.References == "" {
		cfg.References = domain.ReferenceModeDominant
	}
	return &Answerer{
		llm:         cfg.LLM,
		temperature: cfg.Temperature,
		retry:       cfg.Retry,
		references:  cfg.References,
		logger:      logger,
	}
}

// Answer streams the answer to emit and returns the full text.
// Opening the stream and receiving the first delta are retried; once a delta
// has been emitted a failure is final. The retry timeout bounds the wait for
// each delta, not the whole answer. A cancelled ctx returns the partial text
// with ErrAnswerTruncated.
func (a *Answerer) Answer(ctx context.Context, question string, matches []domain.Match, emit func(delta string)) (string, int, error) {
	req := driven.CompletionRequest{
		Messages: []driven.Message{
			{Role: "user", Content: BuildAnswerPrompt(question, matches)},
		},
		Temperature: a.temperature,
	}

	type opened struct {
		stream driven.TokenStream
		first  string
		done   bool
		idle   *idleTimer
	}

	// The stream outlives one attempt, so its timeout is an idle timer
	// managed here rather than by callWithRetry.
	policy := a.retry
	idleTimeout := policy.Timeout
	policy.Timeout = 0

	o, attempts, err := callWithRetry(ctx, policy, a.logger, "answer", func(ctx context.Context) (opened, error) {
		idle := newIdleTimer(ctx, idleTimeout)
		stream, err := a.llm.Stream(idle.ctx, req)
		if err != nil {
			idle.stop()
			return opened{}, idle.wrap(err)
		}
		first, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return opened{stream: stream, done: true, idle: idle}, nil
		}
		if err != nil {
			stream.Close()
			idle.stop()
			return opened{}, idle.wrap(err)
		}
		return opened{stream: stream, first: first, idle: idle}, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", attempts, fmt.Errorf("%w: %v", domain.ErrAnswerTruncated, ctx.Err())
		}
		return "", attempts, domain.NewGenerationError("answer", err)
	}
	defer o.idle.stop()
	defer o.stream.Close()

	var b strings.Builder
	if o.done {
		return "", attempts, nil
	}
	b.WriteString(o.first)
	emit(o.first)

	for {
		o.idle.reset()
		delta, err := o.stream.Recv()
		if errors.Is(err, io.EOF) {
			return b.String(), attempts, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return b.String(), attempts, fmt.Errorf("%w: %v", domain.ErrAnswerTruncated, ctx.Err())
			}
			return b.String(), attempts, domain.NewGenerationError("answer_stream", o.idle.wrap(err))
		}
		if delta == "" {
			continue
		}
		b.WriteString(delta)
		emit(delta)
	}
}

// idleTimer cancels its context when no reset arrives within d.
// A zero d never fires.
type idleTimer struct {
	ctx    context.Context
	cancel context.CancelFunc
	timer  *time.Timer
	d      time.Duration
	fired  atomic.Bool
}

func newIdleTimer(parent context.Context, d time.Duration) *idleTimer {
	t := &idleTimer{d: d}
	t.ctx, t.cancel = context.WithCancel(parent)
	if d > 0 {
		t.timer = time.AfterFunc(d, func() {
			t.fired.Store(true)
			t.cancel()
		})
	}
	return t
}

func (t *idleTimer) reset() {
	if t.timer != nil && !t.fired.Load() {
		t.timer.Reset(t.d)
	}
}

func (t *idleTimer) stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.cancel()
}

// wrap reports an idle expiry as a deadline so it stays retryable.
func (t *idleTimer) wrap(err error) error {
	if t.fired.Load() {
		return fmt.Errorf("%w: no delta within %s", context.DeadlineExceeded, t.d)
	}
	return err
}

// BuildReferences groups matches by filename and picks the document with the
// most matches, ties going to the first seen. The dominant citations are
// always logged; they are returned only in dominant mode.
func (a *Answerer) BuildReferences(matches []domain.Match) ([]domain.Reference, string) {
	dominant, refs := DominantSource(matches)
	if dominant == "" {
		return []domain.Reference{}, ""
	}

	citations := make([]string, len(refs))
	for i, r := range refs {
		citations[i] = fmt.Sprintf("%s p.%d #%d", r.Source, r.PageNumber, r.ChunkID)
	}
	a.logger.Info("references of the dominant document",
		"dominant_source", dominant,
		"citations", citations,
	)

	if a.references == domain.ReferenceModeNone {
		return []domain.Reference{}, dominant
	}
	return refs, dominant
}

// DominantSource returns the filename with the most matches and its references.
func DominantSource(matches []domain.Match) (string, []domain.Reference) {
	groups := make(map[string][]domain.Reference)
	var order []string
	for _, m := range matches {
		name := m.Metadata.Filename
		if name == "" {
			name = "unknown.pdf"
		}
		if _, ok := groups[name]; !ok {
			order = append(order, name)
		}
		groups[name] = append(groups[name], domain.NewReference(m.Metadata))
	}

	dominant := ""
	for _, name := range order {
		if dominant == "" || len(groups[name]) > len(groups[dominant]) {
			dominant = name
		}
	}
	return dominant, groups[dominant]
}

// BuildAnswerPrompt embeds the match texts as context ahead of the question.
func BuildAnswerPrompt(question string, matches []domain.Match) string {
	parts := make([]string, len(matches))
	for i, m := range matches {
		parts[i] = m.Content
	}
	return fmt.Sprintf(answerPrompt, strings.Join(parts, "\n\n"), question)
}
