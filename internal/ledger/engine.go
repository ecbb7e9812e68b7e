// Package ledger is the single writer of carrier risk scores. Every rule
// resolves to a flag with a fixed point value; applying a flag is guarded
// so re-runs never double-count.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sstransco/carrierwatch/internal/domain"
)

// Engine applies the risk flag catalog against the carrier population.
type Engine struct {
	store  domain.Store
	bus    domain.EventBus
	cfg    domain.PipelineConfig
	logger *slog.Logger
	rules  []*compiledAttributeRule
}

// Result summarizes one ledger run.
type Result struct {
	ResetRows  int64            `json:"resetRows"`
	Applied    map[string]int64 `json:"applied"`
	Total      int64            `json:"total"`
	LinkSource string           `json:"linkSource"`
}

// NewEngine creates an engine with all attribute rules compiled.
func NewEngine(store domain.Store, bus domain.EventBus, cfg domain.PipelineConfig, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	env, err := newCELEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	rules, err := compileAttributeRules(env)
	if err != nil {
		return nil, err
	}

	return &Engine{
		store:  store,
		bus:    bus,
		cfg:    cfg,
		logger: logger.With("component", "ledger"),
		rules:  rules,
	}, nil
}

// Apply runs every rule in order. With reset, scores and flags are zeroed
// first so the run is a deterministic function of current data; without it
// the run is incremental and only adds flags not yet held.
func (e *Engine) Apply(ctx context.Context, reset bool) (*Result, error) {
	result := &Result{Applied: make(map[string]int64)}

	chunk := e.cfg.ChunkSize
	if chunk <= 0 {
		chunk = 5000
	}

	if reset {
		n, err := e.store.ResetRiskLedger(ctx, chunk)
		if err != nil {
			return result, fmt.Errorf("failed to reset ledger: %w", err)
		}
		result.ResetRows = n
		e.logger.Info("ledger reset", "rows", n)
	}

	// Address overlap tiers, highest first; each tier's candidates
	// exclude the whole group so the tiers stay mutually exclusive.
	for _, t := range addressTiers {
		t := t
		if err := e.candidateLoop(ctx, result, t.Flag, chunk, func(limit int) ([]int64, error) {
			return e.store.AddressClusterCandidates(ctx, t.Min, domain.AddressTierFlags, limit)
		}); err != nil {
			return result, err
		}
	}

	// Officer linkage tiers through the best available link source.
	linkSource, err := resolveLinkSource(ctx, e.store)
	if err != nil {
		return result, err
	}
	result.LinkSource = linkSource.Name()
	for _, t := range officerTiers {
		t := t
		if err := e.candidateLoop(ctx, result, t.Flag, chunk, func(limit int) ([]int64, error) {
			return linkSource.Candidates(ctx, t.Min, domain.OfficerTierFlags, limit)
		}); err != nil {
			return result, err
		}
	}

	if err := e.applyAttributeRules(ctx, result, chunk); err != nil {
		return result, err
	}

	// Linkage and collaborator-data rules.
	joinRules := []struct {
		flag  string
		fetch func(limit int) ([]int64, error)
	}{
		{domain.FlagForeignLinkedOfficer, func(limit int) ([]int64, error) {
			return e.store.ForeignLinkedOfficerCandidates(ctx, limit)
		}},
		{domain.FlagForeignLinkedAddress, func(limit int) ([]int64, error) {
			return e.store.ForeignLinkedAddressCandidates(ctx, limit)
		}},
		{domain.FlagAuthorityRevokedReissued, func(limit int) ([]int64, error) {
			return e.store.AuthorityRevokedCandidates(ctx, limit)
		}},
		{domain.FlagInsuranceLapse, func(limit int) ([]int64, error) {
			return e.store.InsuranceLapseCandidates(ctx, limit)
		}},
		{domain.FlagPPPForgivenAtCluster, func(limit int) ([]int64, error) {
			return e.store.PPPForgivenAtClusterCandidates(ctx, e.cfg.MinAddressClusterSize, limit)
		}},
		{domain.FlagInactiveAtClusteredAddress, func(limit int) ([]int64, error) {
			return e.store.InactiveAtClusteredAddressCandidates(ctx, e.cfg.MinAddressClusterSize, limit)
		}},
	}
	for _, jr := range joinRules {
		if err := e.candidateLoop(ctx, result, jr.flag, chunk, jr.fetch); err != nil {
			return result, err
		}
	}

	// Detection outputs: medium and high confidence only.
	if err := e.applyChameleonFlags(ctx, result, chunk); err != nil {
		return result, err
	}
	if err := e.applyRingFlags(ctx, result, chunk); err != nil {
		return result, err
	}

	e.logger.Info("ledger apply complete",
		"total_applied", result.Total,
		"link_source", result.LinkSource,
		"reset_rows", result.ResetRows,
	)

	return result, nil
}

// candidateLoop repeats candidate-select then guarded apply until the
// candidate query drains. Flagged carriers drop out of the next select, so
// the loop terminates; a select that stops shrinking aborts defensively.
func (e *Engine) candidateLoop(ctx context.Context, result *Result, flag string, chunk int, fetch func(limit int) ([]int64, error)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		dots, err := fetch(chunk)
		if err != nil {
			return fmt.Errorf("candidate query for %s failed: %w", flag, err)
		}
		if len(dots) == 0 {
			return nil
		}

		applied, err := e.store.ApplyFlag(ctx, dots, flag, domain.FlagPoints[flag])
		if err != nil {
			return fmt.Errorf("failed to apply %s: %w", flag, err)
		}
		e.record(ctx, result, flag, applied)

		if applied == 0 {
			e.logger.Warn("candidate loop stalled", "flag", flag, "candidates", len(dots))
			return nil
		}
		if len(dots) < chunk {
			return nil
		}
	}
}

// applyAttributeRules scans the carrier population once, evaluating every
// compiled predicate per carrier and applying matches per chunk.
func (e *Engine) applyAttributeRules(ctx context.Context, result *Result, chunk int) error {
	hasViolations, err := e.store.HasViolationData(ctx)
	if err != nil {
		return fmt.Errorf("failed to probe violation data: %w", err)
	}
	if !hasViolations {
		e.logger.Info("no inspection violation detail, ELD rule disabled")
	}

	now := time.Now().UTC()
	var after int64

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		carriers, err := e.store.ListCarriersAfter(ctx, after, chunk)
		if err != nil {
			return fmt.Errorf("failed to scan carriers: %w", err)
		}
		if len(carriers) == 0 {
			return nil
		}

		perFlag := make(map[string][]int64)
		for _, c := range carriers {
			activation := e.activation(c, now)
			for _, rule := range e.rules {
				if rule.spec.NeedsViolationData && !hasViolations {
					continue
				}
				if c.HasFlag(rule.spec.Flag) {
					continue
				}
				if e.evalRule(rule, activation) {
					perFlag[rule.spec.Flag] = append(perFlag[rule.spec.Flag], c.DOTNumber)
				}
			}
		}

		for _, rule := range e.rules {
			dots := perFlag[rule.spec.Flag]
			if len(dots) == 0 {
				continue
			}
			applied, err := e.store.ApplyFlag(ctx, dots, rule.spec.Flag, domain.FlagPoints[rule.spec.Flag])
			if err != nil {
				return fmt.Errorf("failed to apply %s: %w", rule.spec.Flag, err)
			}
			e.record(ctx, result, rule.spec.Flag, applied)
		}

		after = carriers[len(carriers)-1].DOTNumber
		if len(carriers) < chunk {
			return nil
		}
	}
}

func (e *Engine) applyChameleonFlags(ctx context.Context, result *Result, chunk int) error {
	sides := []struct {
		successor bool
		flag      string
	}{
		{true, domain.FlagChameleonSuccessor},
		{false, domain.FlagChameleonPredecessor},
	}

	for _, side := range sides {
		dots, err := e.store.ListChameleonDOTs(ctx, side.successor, domain.ConfidenceMedium)
		if err != nil {
			return fmt.Errorf("failed to list chameleon carriers: %w", err)
		}
		if err := e.applyFlagChunks(ctx, result, side.flag, dots, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) applyRingFlags(ctx context.Context, result *Result, chunk int) error {
	rings, err := e.store.ListRings(ctx, domain.ConfidenceMedium)
	if err != nil {
		return fmt.Errorf("failed to list rings: %w", err)
	}

	memberSet := make(map[int64]struct{})
	for _, ring := range rings {
		for _, dot := range ring.CarrierDOTs {
			memberSet[dot] = struct{}{}
		}
	}
	members := make([]int64, 0, len(memberSet))
	for dot := range memberSet {
		members = append(members, dot)
	}
	sortInt64s(members)

	return e.applyFlagChunks(ctx, result, domain.FlagFraudRing, members, chunk)
}

func (e *Engine) applyFlagChunks(ctx context.Context, result *Result, flag string, dots []int64, chunk int) error {
	for start := 0; start < len(dots); start += chunk {
		end := start + chunk
		if end > len(dots) {
			end = len(dots)
		}
		applied, err := e.store.ApplyFlag(ctx, dots[start:end], flag, domain.FlagPoints[flag])
		if err != nil {
			return fmt.Errorf("failed to apply %s: %w", flag, err)
		}
		e.record(ctx, result, flag, applied)
	}
	return nil
}

// record tallies an application and publishes the per-rule audit event.
// Publishing is best-effort.
func (e *Engine) record(ctx context.Context, result *Result, flag string, applied int64) {
	if applied == 0 {
		return
	}
	result.Applied[flag] += applied
	result.Total += applied

	e.logger.Debug("flag applied", "flag", flag, "carriers", applied)

	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"flag":    flag,
		"applied": applied,
		"points":  domain.FlagPoints[flag],
	})
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, domain.TopicRule, payload); err != nil {
		e.logger.Warn("failed to publish rule event", "flag", flag, "error", err)
	}
}
