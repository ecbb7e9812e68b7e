package rings

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/sstransco/carrierwatch/internal/domain"
)

// Benchmarker computes per-carrier peer percentiles: how a carrier's crash
// count and vehicle out-of-service rate rank against fleets of similar
// size, on a 0-100 scale. Every carrier gets a fleet bucket; only carriers
// with inspection history in a known bucket get ranked.
type Benchmarker struct {
	store  domain.Store
	cfg    domain.PipelineConfig
	logger *slog.Logger
}

// BenchmarkResult summarizes one benchmarking pass.
type BenchmarkResult struct {
	Bucketed int64 `json:"bucketed"`
	Carriers int   `json:"carriers"`
	Buckets  int   `json:"buckets"`
}

// NewBenchmarker creates a benchmarker.
func NewBenchmarker(store domain.Store, cfg domain.PipelineConfig, logger *slog.Logger) *Benchmarker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Benchmarker{
		store:  store,
		cfg:    cfg,
		logger: logger.With("component", "benchmark"),
	}
}

// Run recomputes fleet buckets and percentiles and writes them back in
// chunks.
func (b *Benchmarker) Run(ctx context.Context) (*BenchmarkResult, error) {
	bucketed, err := b.store.AssignFleetBuckets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to assign fleet buckets: %w", err)
	}

	rows, err := b.store.ListBenchmarkRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list benchmark rows: %w", err)
	}

	// The 'unknown' bucket never gets ranked; missing fleet data makes
	// crash counts incomparable.
	buckets := make(map[string][]domain.BenchmarkRow)
	for _, row := range rows {
		bucket := domain.FleetSizeBucket(row.PowerUnits)
		if bucket == "unknown" {
			continue
		}
		buckets[bucket] = append(buckets[bucket], row)
	}

	stats := make([]domain.PeerStat, 0, len(rows))
	for bucket, members := range buckets {
		crashRanks := percentRanks(members, func(r domain.BenchmarkRow) float64 { return float64(r.TotalCrashes) })
		oosRanks := percentRanks(members, func(r domain.BenchmarkRow) float64 { return r.VehicleOOSRate })

		for i, row := range members {
			stats = append(stats, domain.PeerStat{
				DOTNumber:       row.DOTNumber,
				FleetSizeBucket: bucket,
				CrashPercentile: crashRanks[i],
				OOSPercentile:   oosRanks[i],
			})
		}
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].DOTNumber < stats[j].DOTNumber })

	chunkSize := b.cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 5000
	}
	for start := 0; start < len(stats); start += chunkSize {
		end := start + chunkSize
		if end > len(stats) {
			end = len(stats)
		}
		if err := b.store.UpdatePeerStats(ctx, stats[start:end]); err != nil {
			return nil, fmt.Errorf("failed to update peer stats: %w", err)
		}
	}

	result := &BenchmarkResult{Bucketed: bucketed, Carriers: len(stats), Buckets: len(buckets)}
	b.logger.Info("peer benchmarks complete",
		"bucketed", result.Bucketed,
		"carriers", result.Carriers,
		"buckets", result.Buckets,
	)
	return result, nil
}

// percentRanks computes PERCENT_RANK over the metric within one bucket,
// scaled to 0-100: (count of strictly smaller values) / (n - 1) * 100.
// Ties share a rank; a single-member bucket ranks 0.
func percentRanks(members []domain.BenchmarkRow, metric func(domain.BenchmarkRow) float64) []float64 {
	n := len(members)
	ranks := make([]float64, n)
	if n < 2 {
		return ranks
	}

	sorted := make([]float64, n)
	for i, m := range members {
		sorted[i] = metric(m)
	}
	sort.Float64s(sorted)

	for i, m := range members {
		v := metric(m)
		below := sort.SearchFloat64s(sorted, v)
		ranks[i] = float64(below) / float64(n-1) * 100
	}
	return ranks
}
