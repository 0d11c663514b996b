// Package consolidation promotes memory items up the tier ladder on a
// periodic schedule. A pass runs three stages: working to recent, recent to
// semantic, and semantic to durable. Promotion copies an item into the
// target tier; the source keeps its copy until its own retention expires
// it. Because target tiers key stores by item id, re-running a pass over
// the same candidates is a no-op.
package consolidation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/papercomputeco/strata/pkg/events"
	"github.com/papercomputeco/strata/pkg/memory"
)

const (
	// DefaultInterval is how often a consolidation pass runs.
	DefaultInterval = 30 * time.Minute

	// DefaultBatchSize bounds the candidates one stage examines per pass.
	DefaultBatchSize = 100
)

// source is the scan surface a stage reads promotion candidates from.
type source interface {
	Name() string
	Scan(ctx context.Context, minImportance float64, limit int) ([]*memory.Item, error)
}

// stage promotes candidates from one tier into the next.
type stage struct {
	name   string
	source source
	target memory.Tier
}

// StageReport summarizes one stage of a pass.
type StageReport struct {
	Stage    string
	Scanned  int
	Promoted int
	Err      error
}

// PassReport summarizes one consolidation pass.
type PassReport struct {
	StartedAt time.Time
	Duration  time.Duration
	Stages    []StageReport
}

// Promoted returns the per-stage promotion counts.
func (r PassReport) Promoted() map[string]int {
	out := make(map[string]int, len(r.Stages))
	for _, s := range r.Stages {
		out[s.Stage] = s.Promoted
	}

	return out
}

// Config holds configuration for the scheduler.
type Config struct {
	// Working, Recent, Semantic, and Durable are the tiers of the
	// promotion ladder. Working, Recent, and Semantic must also expose
	// Scan.
	Working  memory.Tier
	Recent   memory.Tier
	Semantic memory.Tier
	Durable  memory.Tier

	// Interval overrides DefaultInterval when positive.
	Interval time.Duration

	// BatchSize overrides DefaultBatchSize when positive.
	BatchSize int

	// Publisher receives memory.consolidated events. Nil disables
	// emission.
	Publisher events.Publisher

	// Clock overrides time.Now for tests.
	Clock func() time.Time

	// Logger is the provided zap logger.
	Logger *zap.Logger
}

// Scheduler runs consolidation passes on a cron interval.
type Scheduler struct {
	stages    []stage
	batch     int
	interval  time.Duration
	publisher events.Publisher
	clock     func() time.Time
	logger    *zap.Logger

	mu         sync.Mutex
	cronEngine *cron.Cron
	started    bool
}

// New creates a scheduler over the given tier ladder.
func New(c Config) (*Scheduler, error) {
	ladder := []struct {
		from memory.Tier
		to   memory.Tier
	}{
		{c.Working, c.Recent},
		{c.Recent, c.Semantic},
		{c.Semantic, c.Durable},
	}

	var stages []stage
	for _, rung := range ladder {
		if rung.from == nil || rung.to == nil {
			return nil, fmt.Errorf("all four tiers are required")
		}

		src, ok := rung.from.(source)
		if !ok {
			return nil, fmt.Errorf("tier %s does not support scanning", rung.from.Name())
		}

		stages = append(stages, stage{
			name:   fmt.Sprintf("%s->%s", rung.from.Name(), rung.to.Name()),
			source: src,
			target: rung.to,
		})
	}

	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}

	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}

	if c.Clock == nil {
		c.Clock = time.Now
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	return &Scheduler{
		stages:    stages,
		batch:     c.BatchSize,
		interval:  c.Interval,
		publisher: c.Publisher,
		clock:     c.Clock,
		logger:    c.Logger,
	}, nil
}

// Start begins running passes on the configured interval.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("scheduler already started")
	}

	s.cronEngine = cron.New()

	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cronEngine.AddFunc(spec, func() {
		s.RunPass(context.Background())
	}); err != nil {
		return fmt.Errorf("scheduling consolidation pass: %w", err)
	}

	s.cronEngine.Start()
	s.started = true

	s.logger.Info("consolidation scheduler started",
		zap.Duration("interval", s.interval),
		zap.Int("batch_size", s.batch),
	)

	return nil
}

// Stop drains the scheduler: no new passes start, and an in-flight pass is
// awaited until it finishes or the context expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	cronCtx := s.cronEngine.Stop()
	s.started = false

	select {
	case <-cronCtx.Done():
		s.logger.Info("consolidation scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("consolidation scheduler shutdown timed out mid-pass")
		return ctx.Err()
	}
}

// RunPass runs one consolidation pass immediately. Stages are independent:
// a failing stage is recorded in the report and the remaining stages still
// run.
func (s *Scheduler) RunPass(ctx context.Context) PassReport {
	report := PassReport{StartedAt: s.clock().UTC()}

	for _, st := range s.stages {
		report.Stages = append(report.Stages, s.runStage(ctx, st))
	}

	report.Duration = s.clock().UTC().Sub(report.StartedAt)

	s.emitConsolidated(ctx, report)

	return report
}

func (s *Scheduler) runStage(ctx context.Context, st stage) StageReport {
	sr := StageReport{Stage: st.name}

	candidates, err := st.source.Scan(ctx, 0, s.batch)
	if err != nil {
		sr.Err = fmt.Errorf("scanning %s: %w", st.source.Name(), err)
		s.logger.Warn("consolidation stage failed",
			zap.String("stage", st.name),
			zap.Error(sr.Err),
		)
		return sr
	}

	sr.Scanned = len(candidates)

	for _, item := range candidates {
		if !st.target.ShouldStore(item) {
			continue
		}

		inserted, err := st.target.Store(ctx, item.Clone())
		if err != nil {
			sr.Err = fmt.Errorf("promoting %s: %w", item.ID, err)
			s.logger.Warn("consolidation stage failed",
				zap.String("stage", st.name),
				zap.Error(sr.Err),
			)
			return sr
		}

		if inserted {
			sr.Promoted++
		}
	}

	if sr.Promoted > 0 {
		s.logger.Info("consolidation stage promoted items",
			zap.String("stage", st.name),
			zap.Int("scanned", sr.Scanned),
			zap.Int("promoted", sr.Promoted),
		)
	}

	return sr
}

func (s *Scheduler) emitConsolidated(ctx context.Context, report PassReport) {
	if s.publisher == nil {
		return
	}

	event := events.New(events.EventTypeMemoryConsolidated, "consolidation")
	event.Memory = &events.MemoryMeta{Promoted: report.Promoted()}

	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish consolidation event", zap.Error(err))
	}
}
