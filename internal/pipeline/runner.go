// Package pipeline orchestrates the batch run: identity resolution, then
// the detectors that consume its clusters, then peer benchmarks, then the
// risk ledger that consumes everything.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sstransco/carrierwatch/internal/chameleon"
	"github.com/sstransco/carrierwatch/internal/domain"
	"github.com/sstransco/carrierwatch/internal/identity"
	"github.com/sstransco/carrierwatch/internal/ledger"
	"github.com/sstransco/carrierwatch/internal/rings"
)

var tracer = otel.Tracer("carrierwatch-pipeline")

// Phase names, in canonical execution order.
const (
	PhaseIdentity   = "identity"
	PhaseChameleon  = "chameleon"
	PhaseRings      = "rings"
	PhaseBenchmarks = "benchmarks"
	PhaseLedger     = "ledger"
)

// AllPhases returns the canonical phase order.
func AllPhases() []string {
	return []string{PhaseIdentity, PhaseChameleon, PhaseRings, PhaseBenchmarks, PhaseLedger}
}

// Options selects what a run executes.
type Options struct {
	// Phases to run; empty means all, always in canonical order.
	Phases []string

	// Reset zeroes the risk ledger before the ledger phase so the run is
	// a deterministic function of current data.
	Reset bool
}

// Runner executes pipeline phases against one store.
type Runner struct {
	store  domain.Store
	cache  domain.Cache
	bus    domain.EventBus
	cfg    domain.PipelineConfig
	logger *slog.Logger
}

// NewRunner creates a runner. Cache and bus may be nil; phases that use
// them degrade to direct fetches and silent audit.
func NewRunner(store domain.Store, cache domain.Cache, bus domain.EventBus, cfg domain.PipelineConfig, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:  store,
		cache:  cache,
		bus:    bus,
		cfg:    cfg,
		logger: logger.With("component", "pipeline"),
	}
}

// Run executes the selected phases in canonical order. A phase failure is
// recorded and the run continues: later phases read whatever derived state
// exists, which is the previous run's output for the failed phase.
func (r *Runner) Run(ctx context.Context, opts Options) (*RunReport, error) {
	selected, err := selectPhases(opts.Phases)
	if err != nil {
		return nil, err
	}

	report := newRunReport()
	r.logger.Info("pipeline run starting", "run_id", report.RunID, "phases", selected)

	ctx, span := tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("run.id", report.RunID),
			attribute.StringSlice("run.phases", selected),
		),
	)
	defer span.End()

	for _, name := range selected {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		r.runPhase(ctx, report, name, opts)
	}

	if report.Phase(PhaseLedger) != nil {
		dist, err := r.store.FlagDistribution(ctx)
		if err != nil {
			r.logger.Warn("failed to snapshot flag distribution", "error", err)
		} else {
			report.FlagDistribution = dist
		}
	}

	report.finish()
	r.logger.Info("pipeline run complete",
		"run_id", report.RunID,
		"duration_ms", report.DurationMs,
		"failed_phases", report.FailedPhases(),
	)
	return report, nil
}

func (r *Runner) runPhase(ctx context.Context, report *RunReport, name string, opts Options) {
	ctx, span := tracer.Start(ctx, "pipeline.phase."+name)
	defer span.End()

	start := time.Now()
	detail, err := r.execute(ctx, name, opts)

	phase := PhaseReport{
		Name:       name,
		DurationMs: time.Since(start).Milliseconds(),
		Detail:     detail,
	}
	if err != nil {
		phase.Error = err.Error()
		r.logger.Error("phase failed", "run_id", report.RunID, "phase", name, "error", err)
	} else {
		r.logger.Info("phase complete", "run_id", report.RunID, "phase", name, "duration_ms", phase.DurationMs)
	}
	report.Phases = append(report.Phases, phase)

	r.publishPhase(ctx, report.RunID, &phase)
}

func (r *Runner) execute(ctx context.Context, name string, opts Options) (any, error) {
	switch name {
	case PhaseIdentity:
		return identity.NewResolver(r.store, r.cache, r.cfg, r.logger).Run(ctx)
	case PhaseChameleon:
		return chameleon.NewDetector(r.store, r.cfg, r.logger).Run(ctx)
	case PhaseRings:
		return rings.NewDetector(r.store, r.cfg, r.logger).Run(ctx)
	case PhaseBenchmarks:
		return rings.NewBenchmarker(r.store, r.cfg, r.logger).Run(ctx)
	case PhaseLedger:
		engine, err := ledger.NewEngine(r.store, r.bus, r.cfg, r.logger)
		if err != nil {
			return nil, err
		}
		return engine.Apply(ctx, opts.Reset)
	default:
		return nil, fmt.Errorf("unknown phase: %s", name)
	}
}

// publishPhase emits the phase audit event. Best-effort.
func (r *Runner) publishPhase(ctx context.Context, runID string, phase *PhaseReport) {
	if r.bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"runId": runID,
		"phase": phase,
	})
	if err != nil {
		return
	}
	if err := r.bus.Publish(ctx, domain.TopicPhase, payload); err != nil {
		r.logger.Warn("failed to publish phase event", "phase", phase.Name, "error", err)
	}
}

// selectPhases validates the requested phases and returns them in
// canonical order regardless of request order.
func selectPhases(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return AllPhases(), nil
	}

	want := make(map[string]bool, len(requested))
	for _, name := range requested {
		found := false
		for _, known := range AllPhases() {
			if name == known {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown phase: %s", name)
		}
		want[name] = true
	}

	var selected []string
	for _, name := range AllPhases() {
		if want[name] {
			selected = append(selected, name)
		}
	}
	return selected, nil
}
