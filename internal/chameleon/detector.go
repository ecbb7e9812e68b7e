// Package chameleon detects carrier reincarnation: an operator shutting
// down under enforcement pressure and re-filing as a fresh company with a
// clean safety record.
package chameleon

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/sstransco/carrierwatch/internal/domain"
)

// Detector rebuilds the chameleon_pairs table.
type Detector struct {
	store  domain.Store
	cfg    domain.PipelineConfig
	logger *slog.Logger
}

// Result summarizes one detection run.
type Result struct {
	Pairs  int `json:"pairs"`
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// NewDetector creates a detector.
func NewDetector(store domain.Store, cfg domain.PipelineConfig, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		store:  store,
		cfg:    cfg,
		logger: logger.With("component", "chameleon"),
	}
}

type pairKey struct {
	pred int64
	succ int64
}

// Run truncates and rebuilds the pair table in passes: seed from shared
// addresses, seed from shared officers, merge officer and phone evidence
// onto existing pairs, then tier by signal count. A (pred, succ) pair is
// unique; re-detected signals are no-ops.
func (d *Detector) Run(ctx context.Context) (*Result, error) {
	if err := d.store.TruncateChameleonPairs(ctx); err != nil {
		return nil, fmt.Errorf("failed to truncate chameleon pairs: %w", err)
	}

	maxGap := d.cfg.MaxGapDays
	if maxGap <= 0 {
		maxGap = 365
	}

	pairs := make(map[pairKey]*domain.ChameleonPair)

	// Pass 1: address seeds.
	addressSeeds, err := d.store.ListSharedAddressSuccessions(ctx, maxGap)
	if err != nil {
		return nil, fmt.Errorf("failed to list shared-address successions: %w", err)
	}
	for _, p := range addressSeeds {
		pairs[pairKey{p.PredecessorDOT, p.SuccessorDOT}] = p
	}

	// Pass 2: officer seeds. Existing pairs absorb the signal instead of
	// duplicating.
	officerSeeds, err := d.store.ListSharedOfficerSuccessions(ctx, maxGap)
	if err != nil {
		return nil, fmt.Errorf("failed to list shared-officer successions: %w", err)
	}
	for _, p := range officerSeeds {
		key := pairKey{p.PredecessorDOT, p.SuccessorDOT}
		if existing, ok := pairs[key]; ok {
			existing.AddSignal(domain.SignalOfficer)
			continue
		}
		pairs[key] = p
	}

	dots := memberDOTs(pairs)

	// Pass 3: officer merge over all existing pairs, unconstrained by the
	// succession window.
	shared, err := d.store.SharedOfficerPairs(ctx, dots)
	if err != nil {
		return nil, fmt.Errorf("failed to load shared-officer pairs: %w", err)
	}
	for _, p := range pairs {
		if _, ok := shared[domain.NewDOTPair(p.PredecessorDOT, p.SuccessorDOT)]; ok {
			p.AddSignal(domain.SignalOfficer)
		}
	}

	// Pass 4: phone merge.
	phones, err := d.store.ListPhones(ctx, dots)
	if err != nil {
		return nil, fmt.Errorf("failed to load phones: %w", err)
	}
	for _, p := range pairs {
		predPhone, succPhone := phones[p.PredecessorDOT], phones[p.SuccessorDOT]
		if predPhone != "" && predPhone == succPhone {
			p.AddSignal(domain.SignalPhone)
		}
	}

	// Pass 5: confidence.
	result := &Result{Pairs: len(pairs)}
	out := make([]*domain.ChameleonPair, 0, len(pairs))
	for _, p := range pairs {
		p.Confidence = domain.PairConfidence(p.SignalCount)
		switch p.Confidence {
		case domain.ConfidenceHigh:
			result.High++
		case domain.ConfidenceMedium:
			result.Medium++
		default:
			result.Low++
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PredecessorDOT != out[j].PredecessorDOT {
			return out[i].PredecessorDOT < out[j].PredecessorDOT
		}
		return out[i].SuccessorDOT < out[j].SuccessorDOT
	})

	if err := d.store.InsertChameleonPairs(ctx, out); err != nil {
		return nil, fmt.Errorf("failed to insert chameleon pairs: %w", err)
	}

	d.logger.Info("chameleon detection complete",
		"pairs", result.Pairs,
		"high", result.High,
		"medium", result.Medium,
		"low", result.Low,
	)

	return result, nil
}

func memberDOTs(pairs map[pairKey]*domain.ChameleonPair) []int64 {
	set := make(map[int64]struct{}, len(pairs)*2)
	for key := range pairs {
		set[key.pred] = struct{}{}
		set[key.succ] = struct{}{}
	}
	dots := make([]int64, 0, len(set))
	for dot := range set {
		dots = append(dots, dot)
	}
	sort.Slice(dots, func(i, j int) bool { return dots[i] < dots[j] })
	return dots
}
