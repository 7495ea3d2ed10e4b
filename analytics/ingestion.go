package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/discordwell/vibariant/engine"
)

var errEmptyDSN = errors.New("clickhouse DSN is required")

// DecisionEvent is one row in the decision log: a caller-side record of
// a single Evaluate call and what it returned. The engine never
// produces or consumes this type — it exists purely so the demo
// service can answer "what did we decide, and when" after the fact.
// It has no fields for the variants, mc_samples and mc_seed columns of
// DecisionEventSchema.
type DecisionEvent struct {
	EventID       string `json:"event_id"`
	ProjectID     string `json:"project_id"`
	ExperimentKey string `json:"experiment_key"`

	DecisionStatus string  `json:"decision_status"`
	LeadingVariant string  `json:"leading_variant"`
	ConfidencePct  float64 `json:"confidence_pct"`

	RawEffectSize    float64     `json:"raw_effect_size"`
	ShrunkEffectSize float64     `json:"shrunk_effect_size"`
	PriorUsed        string      `json:"prior_used"`

	TotalExposures   int `json:"total_exposures"`
	TotalConversions int `json:"total_conversions"`

	ProbabilityBest map[string]float64 `json:"probability_best"`
	ExpectedLoss    map[string]float64 `json:"expected_loss"`
	Allocation      map[string]float64 `json:"allocation"`

	CreatedAt time.Time `json:"created_at"`
}

// NewDecisionEvent builds a DecisionEvent from the output of an
// Evaluate call, the shape it will be logged/flushed in.
func NewDecisionEvent(projectID string, result engine.EngineResult) DecisionEvent {
	leading := ""
	if result.Decision.WinningVariant != nil {
		leading = *result.Decision.WinningVariant
	}

	var rawEffect, shrunkEffect float64
	if result.RawEffectSize != nil {
		rawEffect = *result.RawEffectSize
	}
	if result.ShrunkEffectSize != nil {
		shrunkEffect = *result.ShrunkEffectSize
	}

	probBest := make(map[string]float64, len(result.Variants))
	expLoss := make(map[string]float64, len(result.Variants))
	totalConversions := 0
	for _, v := range result.Variants {
		probBest[v.VariantKey] = v.ProbabilityBest
		expLoss[v.VariantKey] = v.ExpectedLoss
		totalConversions += v.Conversions
	}

	return DecisionEvent{
		ProjectID:        projectID,
		ExperimentKey:    result.ExperimentKey,
		DecisionStatus:   string(result.Decision.DecisionStatus),
		LeadingVariant:   leading,
		ConfidencePct:    result.Decision.ConfidencePct,
		RawEffectSize:    rawEffect,
		ShrunkEffectSize: shrunkEffect,
		PriorUsed:        string(result.PriorUsed),
		TotalExposures:   result.TotalVisitors,
		TotalConversions: totalConversions,
		ProbabilityBest:  probBest,
		ExpectedLoss:     expLoss,
		Allocation:       result.SuggestedAllocation,
		CreatedAt:        time.Now().UTC(),
	}
}

// ─── Sink Interface ─────────────────────────────────────────

// Sink is the destination for decision events (ClickHouse, stdout, etc.).
type Sink interface {
	WriteDecisions(ctx context.Context, events []DecisionEvent) error
	Close() error
}

// ─── Pipeline Configuration ─────────────────────────────────

// PipelineConfig controls batching and backpressure behavior.
type PipelineConfig struct {
	BufferSize    int           `json:"buffer_size"`
	BatchSize     int           `json:"batch_size"`
	FlushInterval time.Duration `json:"flush_interval"`
	MaxRetries    int           `json:"max_retries"`
	RetryDelay    time.Duration `json:"retry_delay"`
	Workers       int           `json:"workers"`
}

// DefaultPipelineConfig returns production defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		BufferSize:    10000,
		BatchSize:     200,
		FlushInterval: 5 * time.Second,
		MaxRetries:    3,
		RetryDelay:    500 * time.Millisecond,
		Workers:       2,
	}
}

// ─── Pipeline ───────────────────────────────────────────────

// Pipeline is the async decision-event ingestion engine: a single
// buffered channel drained by a pool of workers, batched and flushed
// with retry.
type Pipeline struct {
	logger zerolog.Logger
	config PipelineConfig
	sink   Sink

	eventCh chan DecisionEvent

	wg     sync.WaitGroup
	cancel context.CancelFunc

	eventsReceived int64
	eventsWritten  int64
	eventsDropped  int64
	flushErrors    int64
}

// NewPipeline creates a new decision-event ingestion pipeline.
func NewPipeline(logger zerolog.Logger, sink Sink, config ...PipelineConfig) *Pipeline {
	cfg := DefaultPipelineConfig()
	if len(config) > 0 {
		cfg = config[0]
	}

	return &Pipeline{
		logger:  logger.With().Str("component", "analytics-pipeline").Logger(),
		config:  cfg,
		sink:    sink,
		eventCh: make(chan DecisionEvent, cfg.BufferSize),
	}
}

// Start launches the pipeline workers.
func (p *Pipeline) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.logger.Info().
		Int("workers", p.config.Workers).
		Int("buffer_size", p.config.BufferSize).
		Int("batch_size", p.config.BatchSize).
		Dur("flush_interval", p.config.FlushInterval).
		Msg("analytics pipeline started")
}

// Stop gracefully shuts down the pipeline, flushing remaining events.
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.drain()

	if p.sink != nil {
		_ = p.sink.Close()
	}

	p.logger.Info().
		Int64("received", atomic.LoadInt64(&p.eventsReceived)).
		Int64("written", atomic.LoadInt64(&p.eventsWritten)).
		Int64("dropped", atomic.LoadInt64(&p.eventsDropped)).
		Int64("flush_errors", atomic.LoadInt64(&p.flushErrors)).
		Msg("analytics pipeline stopped")
}

// Track submits a decision event to the pipeline. Non-blocking: drops
// the event if the buffer is full rather than stalling the request
// path that produced it.
func (p *Pipeline) Track(event DecisionEvent) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	select {
	case p.eventCh <- event:
		atomic.AddInt64(&p.eventsReceived, 1)
	default:
		atomic.AddInt64(&p.eventsDropped, 1)
		p.logger.Warn().Str("experiment", event.ExperimentKey).Msg("decision event dropped: buffer full")
	}
}

func (p *Pipeline) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]DecisionEvent, 0, p.config.BatchSize)

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				p.flush(batch)
			}
			return

		case event := <-p.eventCh:
			batch = append(batch, event)
			if len(batch) >= p.config.BatchSize {
				p.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				p.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (p *Pipeline) flush(batch []DecisionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		err = p.sink.WriteDecisions(ctx, batch)
		if err == nil {
			atomic.AddInt64(&p.eventsWritten, int64(len(batch)))
			return
		}
		p.logger.Warn().Err(err).Int("attempt", attempt+1).Int("batch_size", len(batch)).Msg("decision flush failed")
		if attempt < p.config.MaxRetries {
			time.Sleep(p.config.RetryDelay * time.Duration(1<<uint(attempt)))
		}
	}

	atomic.AddInt64(&p.flushErrors, 1)
	atomic.AddInt64(&p.eventsDropped, int64(len(batch)))
	p.logger.Error().Err(err).Int("batch_size", len(batch)).Msg("decision batch dropped after retries")
}

func (p *Pipeline) drain() {
	batch := make([]DecisionEvent, 0, p.config.BatchSize)
	for {
		select {
		case event := <-p.eventCh:
			batch = append(batch, event)
			if len(batch) >= p.config.BatchSize {
				p.flush(batch)
				batch = batch[:0]
			}
		default:
			if len(batch) > 0 {
				p.flush(batch)
			}
			return
		}
	}
}

// Stats returns pipeline statistics.
type PipelineStats struct {
	EventsReceived int64 `json:"events_received"`
	EventsWritten  int64 `json:"events_written"`
	EventsDropped  int64 `json:"events_dropped"`
	FlushErrors    int64 `json:"flush_errors"`
	BufferLen      int   `json:"buffer_len"`
}

func (p *Pipeline) Stats() PipelineStats {
	return PipelineStats{
		EventsReceived: atomic.LoadInt64(&p.eventsReceived),
		EventsWritten:  atomic.LoadInt64(&p.eventsWritten),
		EventsDropped:  atomic.LoadInt64(&p.eventsDropped),
		FlushErrors:    atomic.LoadInt64(&p.flushErrors),
		BufferLen:      len(p.eventCh),
	}
}

// ─── Log Sink (fallback when ClickHouse is unavailable) ─────

// LogSink writes events as structured JSON logs (development/fallback).
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink that logs events as structured JSON.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("sink", "log").Logger()}
}

func (s *LogSink) WriteDecisions(_ context.Context, events []DecisionEvent) error {
	for _, e := range events {
		data, _ := json.Marshal(e)
		s.logger.Debug().RawJSON("event", data).Msg("decision_event")
	}
	return nil
}

func (s *LogSink) Close() error { return nil }

// ─── ClickHouse Sink (production) ───────────────────────────

// ClickHouseSink holds a ClickHouse DSN but writes nothing to ClickHouse:
// WriteDecisions logs a warning with the batch size and discards the
// events.
type ClickHouseSink struct {
	dsn    string
	logger zerolog.Logger
}

// NewClickHouseSink creates a ClickHouseSink for dsn; it opens no
// connection.
func NewClickHouseSink(dsn string, logger zerolog.Logger) (*ClickHouseSink, error) {
	if dsn == "" {
		return nil, errEmptyDSN
	}
	return &ClickHouseSink{
		dsn:    dsn,
		logger: logger.With().Str("sink", "clickhouse").Logger(),
	}, nil
}

func (s *ClickHouseSink) WriteDecisions(_ context.Context, events []DecisionEvent) error {
	// No ClickHouse driver is linked: the batch is logged and dropped.
	s.logger.Warn().Int("count", len(events)).Msg("clickhouse sink: decision write not yet wired to driver")
	return nil
}

func (s *ClickHouseSink) Close() error { return nil }
