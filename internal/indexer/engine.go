package indexer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"statsScope/internal/chain"
	"statsScope/internal/model"
)

// EventSource fetches decoded events for one inclusive block range.
// *chain.Client satisfies it.
type EventSource interface {
	FetchEvents(ctx context.Context, filter chain.EventFilter, fromBlock, toBlock uint64) ([]model.LogEvent, error)
}

// Policy holds the per-call-site limits of a range scan.
type Policy struct {
	// MaxRangeSize is the largest To-From sent in one call.
	MaxRangeSize uint64
	// MaxSplitDepth bounds how many times an oversized range is re-split.
	MaxSplitDepth int
	// MinSplittableSize is the smallest span that may still be split.
	MinSplittableSize uint64
	// NumChunks is the split factor for oversized ranges.
	NumChunks int
	// InterBatchDelay is slept between successful top-level batches.
	InterBatchDelay time.Duration
	// MaxRetries bounds rate-limit/transient retries of one range.
	MaxRetries int
	Backoff    BackoffPolicy
}

// DefaultPolicy returns the limits used for lottery event scans.
func DefaultPolicy() Policy {
	return Policy{
		MaxRangeSize:      10_000,
		MaxSplitDepth:     3,
		MinSplittableSize: 20,
		NumChunks:         8,
		InterBatchDelay:   1500 * time.Millisecond,
		MaxRetries:        5,
		Backoff:           LogsPolicy(),
	}
}

func (p Policy) normalized() Policy {
	if p.MaxRangeSize == 0 {
		p.MaxRangeSize = 10_000
	}
	if p.NumChunks < 2 {
		p.NumChunks = 2
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	return p
}

// Result is the outcome of a range scan. Events are deduplicated but not
// ordered.
type Result struct {
	Events    []model.LogEvent
	Partial   bool
	Abandoned []BlockRange
	Calls     int
}

// Engine turns a block range and event filter into an event set despite
// oversized responses, rate limits and transient failures.
type Engine struct {
	source EventSource
	logger *zap.Logger
	sleep  Sleeper
	tracer trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithSleeper replaces the context-aware sleep used between attempts.
func WithSleeper(s Sleeper) Option {
	return func(e *Engine) {
		e.sleep = s
	}
}

func NewEngine(source EventSource, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		source: source,
		logger: logger,
		sleep:  SleepContext,
		tracer: otel.Tracer("statsScope/indexer"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type outcome int

const (
	outcomeOK outcome = iota
	outcomeOversized
	outcomeAbandoned
	outcomeFailed
	outcomeGiveUp
)

type pending struct {
	r     BlockRange
	depth int
}

type scan struct {
	engine *Engine
	filter chain.EventFilter
	policy Policy
	ctrl   *Controller
	seen   map[string]struct{}
	result Result
	gaveUp bool
}

// Query scans r for filter. It never fails: problems end up as abandoned
// sub-ranges and Partial=true.
func (e *Engine) Query(ctx context.Context, filter chain.EventFilter, r BlockRange, policy Policy) Result {
	ctx, span := e.tracer.Start(ctx, "indexer.Query", trace.WithAttributes(
		attribute.String("event", filter.Name),
		attribute.Int64("from", int64(r.From)),
		attribute.Int64("to", int64(r.To)),
	))
	defer span.End()

	s := &scan{
		engine: e,
		filter: filter,
		policy: policy.normalized(),
		seen:   make(map[string]struct{}),
	}
	s.ctrl = NewController(s.policy.Backoff)

	if err := r.Validate(); err != nil {
		e.logger.Warn("invalid block range", zap.Error(err))
		s.abandon(r)
		return s.result
	}

	batches, err := SplitRange(r.From, r.To, s.policy.MaxRangeSize+1)
	if err != nil {
		e.logger.Warn("split range", zap.Error(err))
		s.abandon(r)
		return s.result
	}

	for i, batch := range batches {
		if ctx.Err() != nil || s.gaveUp {
			s.abandon(batches[i:]...)
			break
		}

		ok := s.runBatch(ctx, batch)
		e.logger.Debug("batch complete",
			zap.String("event", filter.Name),
			zap.Uint64("from", batch.From),
			zap.Uint64("to", batch.To),
			zap.Int("events", len(s.result.Events)),
			zap.Bool("ok", ok),
		)

		if ok && i < len(batches)-1 && s.policy.InterBatchDelay > 0 {
			if err := e.sleep(ctx, s.policy.InterBatchDelay); err != nil {
				s.abandon(batches[i+1:]...)
				break
			}
		}
	}

	span.SetAttributes(
		attribute.Int("events", len(s.result.Events)),
		attribute.Int("calls", s.result.Calls),
		attribute.Bool("partial", s.result.Partial),
	)
	if s.result.Partial {
		e.logger.Warn("range query partial",
			zap.String("event", filter.Name),
			zap.Uint64("from", r.From),
			zap.Uint64("to", r.To),
			zap.Int("abandoned", len(s.result.Abandoned)),
		)
	}
	return s.result
}

// runBatch drains a work stack seeded with one batch. It returns false when
// any part of the batch was abandoned.
func (s *scan) runBatch(ctx context.Context, batch BlockRange) bool {
	stack := []pending{{r: batch}}
	clean := true

	for len(stack) > 0 {
		if ctx.Err() != nil || s.gaveUp {
			for _, item := range stack {
				s.abandon(item.r)
			}
			return false
		}

		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		events, out := s.fetch(ctx, item.r)
		switch out {
		case outcomeOK:
			s.add(events)
			s.ctrl.Reset()
		case outcomeOversized:
			if item.depth >= s.policy.MaxSplitDepth || item.r.Span() < s.policy.MinSplittableSize {
				s.engine.logger.Warn("oversized range not splittable, skipping",
					zap.Uint64("from", item.r.From),
					zap.Uint64("to", item.r.To),
					zap.Int("depth", item.depth),
				)
				s.abandon(item.r)
				clean = false
				continue
			}
			chunks := SplitEven(item.r, s.policy.NumChunks)
			for i := len(chunks) - 1; i >= 0; i-- {
				stack = append(stack, pending{r: chunks[i], depth: item.depth + 1})
			}
		case outcomeFailed:
			s.abandon(item.r)
			for _, rest := range stack {
				s.abandon(rest.r)
			}
			return false
		default:
			s.abandon(item.r)
			clean = false
		}
	}
	return clean
}

// fetch calls the source for one range, retrying rate limits and transient
// errors as the controller allows.
func (s *scan) fetch(ctx context.Context, r BlockRange) ([]model.LogEvent, outcome) {
	attempts := 0
	for {
		s.result.Calls++
		events, err := s.engine.source.FetchEvents(ctx, s.filter, r.From, r.To)
		if err == nil {
			return events, outcomeOK
		}

		kind, hint := chain.Classify(err)
		switch kind {
		case chain.KindOversized:
			s.engine.logger.Debug("oversized response",
				zap.Uint64("from", r.From),
				zap.Uint64("to", r.To),
			)
			return nil, outcomeOversized
		case chain.KindRateLimit, chain.KindTransient:
			attempts++
			if attempts > s.policy.MaxRetries {
				return nil, outcomeAbandoned
			}
			decision := s.ctrl.Next(kind, hint)
			s.engine.logger.Warn("fetch logs failed",
				zap.Error(err),
				zap.Stringer("kind", kind),
				zap.Stringer("action", decision.Action),
				zap.Duration("delay", decision.Delay),
				zap.Uint64("from", r.From),
				zap.Uint64("to", r.To),
			)
			switch decision.Action {
			case ActionGiveUp:
				s.gaveUp = true
				return nil, outcomeGiveUp
			case ActionAbandon:
				return nil, outcomeAbandoned
			}
			if err := s.engine.sleep(ctx, decision.Delay); err != nil {
				return nil, outcomeAbandoned
			}
		case chain.KindCanceled:
			return nil, outcomeAbandoned
		default:
			s.engine.logger.Warn("fetch logs failed, aborting batch",
				zap.Error(err),
				zap.Uint64("from", r.From),
				zap.Uint64("to", r.To),
			)
			return nil, outcomeFailed
		}
	}
}

func (s *scan) add(events []model.LogEvent) {
	for _, ev := range events {
		id := ev.ID()
		if _, ok := s.seen[id]; ok {
			continue
		}
		s.seen[id] = struct{}{}
		s.result.Events = append(s.result.Events, ev)
	}
}

func (s *scan) abandon(ranges ...BlockRange) {
	if len(ranges) == 0 {
		return
	}
	s.result.Partial = true
	s.result.Abandoned = append(s.result.Abandoned, ranges...)
}
