package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/brieflab/internal/domain"
)

const (
	// DefaultMaxSources is used when a request does not ask for a count.
	DefaultMaxSources = 8
	// MaxSourcesCap bounds what a single request may ask for.
	MaxSourcesCap = 20
	// DefaultTimeout bounds a whole Run.
	DefaultTimeout = 90 * time.Second
)

// ErrInvalidRequest is returned for requests rejected before any stage ran.
var ErrInvalidRequest = errors.New("invalid research request")

// HistoryStore is the slice of the conversation store the pipeline needs.
type HistoryStore interface {
	Get(ctx context.Context, key domain.ConversationKey) ([]domain.Brief, error)
	Append(ctx context.Context, key domain.ConversationKey, brief domain.Brief) error
}

// EvidenceSearcher retrieves evidence. It must never return an empty slice.
type EvidenceSearcher interface {
	Search(ctx context.Context, query string, limit int) []domain.Evidence
}

// ContextSummarizer compresses prior briefs into a digest.
type ContextSummarizer interface {
	Summarize(ctx context.Context, history []domain.Brief, followUp bool) (string, error)
}

// BriefSynthesizer produces a validated Brief.
type BriefSynthesizer interface {
	Synthesize(ctx context.Context, topic, priorContext string, evidence []domain.Evidence) (domain.Brief, error)
}

// StageStatus is the lifecycle point a StageEvent reports.
type StageStatus string

const (
	StatusStarted   StageStatus = "started"
	StatusCompleted StageStatus = "completed"
	StatusFailed    StageStatus = "failed"
)

// StageEvent reports a stage transition.
type StageEvent struct {
	Stage          Stage
	Status         StageStatus
	ConversationID string
	Duration       time.Duration
	Err            error
}

// StageObserver receives stage events synchronously. It must not block.
type StageObserver func(StageEvent)

type stageFunc func(ctx context.Context, state RequestState) (RequestState, error)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTimeout bounds each Run. Zero or less disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.timeout = d
	}
}

// WithObserver registers an observer for every Run.
func WithObserver(o StageObserver) Option {
	return func(p *Pipeline) {
		if o != nil {
			p.observers = append(p.observers, o)
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Pipeline runs Init, ContextRecall, EvidenceRetrieval, BriefGeneration and
// Persisted in that order. It holds no per-request state and is safe for
// concurrent use.
type Pipeline struct {
	store       HistoryStore
	evidence    EvidenceSearcher
	summarizer  ContextSummarizer
	synthesizer BriefSynthesizer
	observers   []StageObserver
	timeout     time.Duration
	logger      *slog.Logger
}

// NewPipeline wires the pipeline components.
func NewPipeline(store HistoryStore, evidence EvidenceSearcher, summarizer ContextSummarizer, synthesizer BriefSynthesizer, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:       store,
		evidence:    evidence,
		summarizer:  summarizer,
		synthesizer: synthesizer,
		timeout:     DefaultTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one request. The returned Brief has been persisted; on any
// error nothing was persisted. Extra observers receive this Run's events only.
func (p *Pipeline) Run(ctx context.Context, req Request, observers ...StageObserver) (domain.Brief, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	stages := []struct {
		name Stage
		fn   stageFunc
	}{
		{StageInit, p.initialize},
		{StageContextRecall, p.recallContext},
		{StageEvidenceRetrieval, p.retrieveEvidence},
		{StageBriefGeneration, p.generateBrief},
		{StagePersisted, p.persist},
	}

	state := newRequestState(req)
	for _, st := range stages {
		next, err := p.runStage(ctx, st.name, st.fn, state, observers)
		if err != nil {
			RunsTotal.WithLabelValues("failure").Inc()
			p.logger.Warn("Research request failed",
				"stage", st.name,
				"conversation_id", state.Conversation.ID,
				"owner", state.Conversation.Owner,
				"error", err,
			)
			return domain.Brief{}, err
		}
		state = next
	}

	RunsTotal.WithLabelValues("success").Inc()
	p.logger.Info("Research request completed",
		"conversation_id", state.Conversation.ID,
		"owner", state.Conversation.Owner,
		"evidence_count", len(state.Evidence),
		"follow_up", state.FollowUp,
		"context_used", state.PriorContext != "",
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return state.Brief.Clone(), nil
}

func (p *Pipeline) runStage(ctx context.Context, name Stage, fn stageFunc, state RequestState, extra []StageObserver) (RequestState, error) {
	p.emit(extra, StageEvent{Stage: name, Status: StatusStarted, ConversationID: state.Conversation.ID})

	start := time.Now()
	next, err := fn(ctx, state)
	elapsed := time.Since(start)

	event := StageEvent{Stage: name, Status: StatusCompleted, ConversationID: next.Conversation.ID, Duration: elapsed}
	outcome := "success"
	if err != nil {
		err = fmt.Errorf("%s: %w", name, err)
		event.Status, event.Err, event.ConversationID = StatusFailed, err, state.Conversation.ID
		outcome = "failure"
	}
	StageDuration.WithLabelValues(string(name), outcome).Observe(elapsed.Seconds())
	p.emit(extra, event)

	if err != nil {
		return state, err
	}
	return next, nil
}

func (p *Pipeline) emit(extra []StageObserver, event StageEvent) {
	for _, o := range p.observers {
		o(event)
	}
	for _, o := range extra {
		o(event)
	}
}

func (p *Pipeline) initialize(_ context.Context, state RequestState) (RequestState, error) {
	state.Topic = strings.TrimSpace(state.Topic)
	if len([]rune(state.Topic)) < domain.MinTopicLength {
		return state, fmt.Errorf("%w: topic must be at least %d characters", ErrInvalidRequest, domain.MinTopicLength)
	}

	key, err := domain.NewConversationKey(state.Conversation.Owner, strings.TrimSpace(state.Conversation.ID))
	if err != nil {
		return state, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	state.Conversation = key

	switch {
	case state.MaxSources <= 0:
		state.MaxSources = DefaultMaxSources
	case state.MaxSources > MaxSourcesCap:
		state.MaxSources = MaxSourcesCap
	}
	return state, nil
}

func (p *Pipeline) recallContext(ctx context.Context, state RequestState) (RequestState, error) {
	history, err := p.store.Get(ctx, state.Conversation)
	if err != nil {
		return state, fmt.Errorf("load history: %w", err)
	}
	prior, err := p.summarizer.Summarize(ctx, history, state.FollowUp)
	if err != nil {
		return state, err
	}
	state.PriorContext = prior
	return state, nil
}

func (p *Pipeline) retrieveEvidence(ctx context.Context, state RequestState) (RequestState, error) {
	state.Evidence = p.evidence.Search(ctx, state.RetrievalQuery(), state.MaxSources)
	if len(state.Evidence) == 0 {
		return state, errors.New("evidence search returned no entries")
	}
	return state, nil
}

func (p *Pipeline) generateBrief(ctx context.Context, state RequestState) (RequestState, error) {
	brief, err := p.synthesizer.Synthesize(ctx, state.Topic, state.PriorContext, state.Evidence)
	if err != nil {
		return state, err
	}
	state.Brief = &brief
	return state, nil
}

func (p *Pipeline) persist(ctx context.Context, state RequestState) (RequestState, error) {
	if state.Brief == nil {
		return state, errors.New("no brief to persist")
	}
	if err := ctx.Err(); err != nil {
		return state, fmt.Errorf("request abandoned before persistence: %w", err)
	}
	if err := p.store.Append(ctx, state.Conversation, *state.Brief); err != nil {
		return state, err
	}
	return state, nil
}

// LogObserver logs every stage transition at debug level and failures at warn.
func LogObserver(logger *slog.Logger) StageObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return func(e StageEvent) {
		if e.Status == StatusFailed {
			logger.Warn("Pipeline stage failed", "stage", e.Stage, "conversation_id", e.ConversationID, "duration_ms", e.Duration.Milliseconds(), "error", e.Err)
			return
		}
		logger.Debug("Pipeline stage", "stage", e.Stage, "status", e.Status, "conversation_id", e.ConversationID, "duration_ms", e.Duration.Milliseconds())
	}
}
