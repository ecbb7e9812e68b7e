// Package rings detects coordinated carrier networks: groups of companies
// linked by multiple shared officer identities, plus the peer benchmarking
// pass that contextualizes each carrier's safety record.
package rings

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/sstransco/carrierwatch/internal/domain"
)

// Detector rebuilds the fraud_rings table.
type Detector struct {
	store  domain.Store
	cfg    domain.PipelineConfig
	logger *slog.Logger
}

// Result summarizes one detection run.
type Result struct {
	Rings       int  `json:"rings"`
	High        int  `json:"high"`
	Medium      int  `json:"medium"`
	Low         int  `json:"low"`
	ClusterMode bool `json:"clusterMode"`
}

// NewDetector creates a detector.
func NewDetector(store domain.Store, cfg domain.PipelineConfig, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		store:  store,
		cfg:    cfg,
		logger: logger.With("component", "rings"),
	}
}

// identityGroup is one officer identity and the carriers filed under it.
type identityGroup struct {
	key  string
	name string
	dots []int64
}

// Run truncates and rebuilds the ring table. Edges come from confirmed
// identity clusters when available, falling back to raw officer names on a
// store that has never run identity resolution. A pair of carriers linked
// through at least MinSharedIdentities distinct identities is a strong
// edge; connected components of MinRingSize or more are rings.
func (d *Detector) Run(ctx context.Context) (*Result, error) {
	if err := d.store.TruncateRings(ctx); err != nil {
		return nil, fmt.Errorf("failed to truncate rings: %w", err)
	}

	groups, clusterMode, err := d.identityGroups(ctx)
	if err != nil {
		return nil, err
	}

	minShared := d.cfg.MinSharedIdentities
	if minShared <= 0 {
		minShared = 2
	}
	minSize := d.cfg.MinRingSize
	if minSize <= 0 {
		minSize = 3
	}
	pairCap := d.cfg.PairCap
	if pairCap <= 0 {
		pairCap = 50
	}

	// Count distinct identities per carrier pair.
	pairIdentities := make(map[domain.DOTPair]map[string]struct{})
	identityName := make(map[string]string, len(groups))
	for _, g := range groups {
		identityName[g.key] = g.name
		for i := 0; i < len(g.dots); i++ {
			end := i + pairCap
			if end > len(g.dots) {
				end = len(g.dots)
			}
			for j := i + 1; j < end; j++ {
				pair := domain.NewDOTPair(g.dots[i], g.dots[j])
				set, ok := pairIdentities[pair]
				if !ok {
					set = make(map[string]struct{})
					pairIdentities[pair] = set
				}
				set[g.key] = struct{}{}
			}
		}
	}

	// Union strong edges.
	uf := newDotUnionFind()
	strong := make(map[domain.DOTPair][]string)
	for pair, identities := range pairIdentities {
		if len(identities) < minShared {
			continue
		}
		keys := make([]string, 0, len(identities))
		for k := range identities {
			keys = append(keys, k)
		}
		strong[pair] = keys
		uf.union(pair.A, pair.B)
	}

	// Collect components and the identities that bound them.
	componentDots := make(map[int64][]int64)
	for pair := range strong {
		for _, dot := range []int64{pair.A, pair.B} {
			root := uf.find(dot)
			componentDots[root] = appendUnique(componentDots[root], dot)
		}
	}
	componentOfficers := make(map[int64]map[string]struct{})
	for pair, keys := range strong {
		root := uf.find(pair.A)
		set, ok := componentOfficers[root]
		if !ok {
			set = make(map[string]struct{})
			componentOfficers[root] = set
		}
		for _, k := range keys {
			set[identityName[k]] = struct{}{}
		}
	}

	result := &Result{ClusterMode: clusterMode}
	var rings []*domain.FraudRing
	for root, dots := range componentDots {
		if len(dots) < minSize {
			continue
		}
		ring, err := d.buildRing(ctx, dots, componentOfficers[root])
		if err != nil {
			return nil, err
		}
		rings = append(rings, ring)

		result.Rings++
		switch ring.Confidence {
		case domain.ConfidenceHigh:
			result.High++
		case domain.ConfidenceMedium:
			result.Medium++
		default:
			result.Low++
		}
	}
	sort.Slice(rings, func(i, j int) bool { return rings[i].CarrierDOTs[0] < rings[j].CarrierDOTs[0] })

	if err := d.store.InsertRings(ctx, rings); err != nil {
		return nil, fmt.Errorf("failed to insert rings: %w", err)
	}

	d.logger.Info("ring detection complete",
		"rings", result.Rings,
		"high", result.High,
		"medium", result.Medium,
		"low", result.Low,
		"cluster_mode", clusterMode,
	)

	return result, nil
}

// identityGroups returns the edge source: confirmed clusters keyed
// officer:index, or raw name groups when the cluster table is empty.
func (d *Detector) identityGroups(ctx context.Context) ([]identityGroup, bool, error) {
	n, err := d.store.CountConfirmedClusters(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to count clusters: %w", err)
	}

	if n > 0 {
		clusters, err := d.store.ListConfirmedClusters(ctx)
		if err != nil {
			return nil, false, fmt.Errorf("failed to list clusters: %w", err)
		}
		groups := make([]identityGroup, 0, len(clusters))
		for _, c := range clusters {
			groups = append(groups, identityGroup{
				key:  fmt.Sprintf("%s:%d", c.OfficerName, c.ClusterIndex),
				name: c.OfficerName,
				dots: c.MemberDOTs,
			})
		}
		return groups, true, nil
	}

	d.logger.Warn("no confirmed identity clusters, falling back to raw officer names")
	raw, err := d.store.RawOfficerGroups(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to list raw officer groups: %w", err)
	}
	groups := make([]identityGroup, 0, len(raw))
	for _, g := range raw {
		groups = append(groups, identityGroup{key: g.Key, name: g.Key, dots: g.DOTs})
	}
	return groups, false, nil
}

// buildRing aggregates one component into a stored ring.
func (d *Detector) buildRing(ctx context.Context, dots []int64, officers map[string]struct{}) (*domain.FraudRing, error) {
	sort.Slice(dots, func(i, j int) bool { return dots[i] < dots[j] })

	carriers, err := d.store.ListCarriersByDOTs(ctx, dots)
	if err != nil {
		return nil, fmt.Errorf("failed to load ring members: %w", err)
	}

	ring := &domain.FraudRing{
		ID:               uuid.New().String(),
		CarrierDOTs:      dots,
		CarrierCount:     len(dots),
		DetectionSignals: []string{"shared_officers"},
	}

	addressCount := make(map[string]int)
	for _, c := range carriers {
		if c.IsActive() {
			ring.ActiveCount++
		}
		ring.TotalCrashes += c.TotalCrashes
		ring.TotalFatalities += c.FatalCrashes
		ring.CombinedRisk += c.RiskScore
		if c.AddressHash != "" {
			addressCount[c.AddressHash]++
		}
	}
	for hash, n := range addressCount {
		if n >= 2 {
			ring.SharedAddresses = append(ring.SharedAddresses, hash)
		}
	}
	sort.Strings(ring.SharedAddresses)
	if len(ring.SharedAddresses) > 0 {
		ring.DetectionSignals = append(ring.DetectionSignals, "shared_addresses")
	}

	for name := range officers {
		ring.OfficerNames = append(ring.OfficerNames, name)
	}
	sort.Strings(ring.OfficerNames)

	ring.Confidence = domain.RingConfidence(ring.CarrierCount, ring.TotalCrashes, ring.TotalFatalities)
	return ring, nil
}

// dotUnionFind is a map-backed disjoint-set over DOT numbers.
type dotUnionFind struct {
	parent map[int64]int64
	rank   map[int64]int
}

func newDotUnionFind() *dotUnionFind {
	return &dotUnionFind{
		parent: make(map[int64]int64),
		rank:   make(map[int64]int),
	}
}

func (uf *dotUnionFind) find(x int64) int64 {
	p, ok := uf.parent[x]
	if !ok {
		uf.parent[x] = x
		return x
	}
	for p != x {
		uf.parent[x] = uf.parent[p]
		x = p
		p = uf.parent[x]
	}
	return x
}

func (uf *dotUnionFind) union(a, b int64) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
}

func appendUnique(dots []int64, dot int64) []int64 {
	for _, d := range dots {
		if d == dot {
			return dots
		}
	}
	return append(dots, dot)
}
