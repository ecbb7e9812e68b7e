// Package identity partitions each officer name's carrier portfolio into
// clusters believed to represent the same real person.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sstransco/carrierwatch/internal/domain"
	"github.com/sstransco/carrierwatch/internal/signals"
)

// coOfficerTTL bounds staleness of the memoized per-carrier officer lists.
// One pipeline run finishes well inside it.
const coOfficerTTL = 30 * time.Minute

// Resolver rebuilds the officer_network_clusters table.
type Resolver struct {
	store   domain.Store
	cache   domain.Cache
	builder *signals.Builder
	cfg     domain.PipelineConfig
	logger  *slog.Logger
}

// Result summarizes one resolver run.
type Result struct {
	Officers  int `json:"officers"`
	Clusters  int `json:"clusters"`
	Confirmed int `json:"confirmed"`
}

// NewResolver creates a resolver.
func NewResolver(store domain.Store, cache domain.Cache, cfg domain.PipelineConfig, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:   store,
		cache:   cache,
		builder: signals.NewBuilder(cfg.PairCap),
		cfg:     cfg,
		logger:  logger.With("component", "identity"),
	}
}

// Run truncates and rebuilds the cluster table: every officer name with two
// or more carriers is partitioned by corroborating signals. Batches commit
// independently so a failed run resumes cheaply.
func (r *Resolver) Run(ctx context.Context) (*Result, error) {
	names, err := r.store.ListOfficersWithMultipleCarriers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list multi-carrier officers: %w", err)
	}

	if err := r.store.TruncateClusters(ctx); err != nil {
		return nil, fmt.Errorf("failed to truncate clusters: %w", err)
	}

	result := &Result{Officers: len(names)}

	batchSize := r.cfg.OfficerBatchSize
	if batchSize <= 0 {
		batchSize = 500
	}

	for start := 0; start < len(names); start += batchSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		end := start + batchSize
		if end > len(names) {
			end = len(names)
		}
		batch := names[start:end]

		clusters, err := r.resolveBatch(ctx, batch)
		if err != nil {
			return result, fmt.Errorf("failed to resolve officer batch at %d: %w", start, err)
		}

		if err := r.store.InsertClusters(ctx, clusters); err != nil {
			return result, fmt.Errorf("failed to insert clusters: %w", err)
		}

		result.Clusters += len(clusters)
		for _, c := range clusters {
			if c.Confirmed() {
				result.Confirmed++
			}
		}

		r.logger.Debug("officer batch resolved",
			"offset", start,
			"officers", len(batch),
			"clusters", len(clusters),
		)
	}

	r.logger.Info("identity resolution complete",
		"officers", result.Officers,
		"clusters", result.Clusters,
		"confirmed", result.Confirmed,
	)

	return result, nil
}

// resolveBatch clusters one batch of officer names. Signal computation for
// disjoint names fans out on a bounded semaphore; all writes stay with the
// caller.
func (r *Resolver) resolveBatch(ctx context.Context, batch []string) ([]*domain.IdentityCluster, error) {
	rows, err := r.store.ListAffiliatedCarriers(ctx, batch)
	if err != nil {
		return nil, err
	}

	byOfficer := make(map[string][]*domain.AffiliatedCarrier, len(batch))
	dotSet := make(map[int64]struct{})
	for _, row := range rows {
		byOfficer[row.OfficerName] = append(byOfficer[row.OfficerName], row)
		dotSet[row.DOTNumber] = struct{}{}
	}

	dots := make([]int64, 0, len(dotSet))
	for dot := range dotSet {
		dots = append(dots, dot)
	}
	sort.Slice(dots, func(i, j int) bool { return dots[i] < dots[j] })

	coOfficers, err := r.coOfficerNames(ctx, dots)
	if err != nil {
		return nil, err
	}

	workers := r.cfg.SignalWorkers
	if workers <= 0 {
		workers = 8
	}

	perOfficer := make([][]*domain.IdentityCluster, len(batch))
	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)

	for i, name := range batch {
		carriers := byOfficer[name]
		if len(carriers) < 2 {
			continue
		}

		wg.Add(1)
		go func(idx int, officerName string, carriers []*domain.AffiliatedCarrier) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			perOfficer[idx] = r.clusterOfficer(officerName, carriers, coOfficers)
		}(i, name, carriers)
	}

	wg.Wait()

	var clusters []*domain.IdentityCluster
	for _, cs := range perOfficer {
		clusters = append(clusters, cs...)
	}
	return clusters, nil
}

// clusterOfficer partitions one officer name's carriers: union-find over
// the signal links, component signal sets, singletons marked name_only,
// cluster_index assigned by descending size.
func (r *Resolver) clusterOfficer(officerName string, carriers []*domain.AffiliatedCarrier, coOfficers map[int64][]string) []*domain.IdentityCluster {
	// One row per carrier, ordered for deterministic indexing.
	byDot := make(map[int64]*domain.AffiliatedCarrier, len(carriers))
	for _, c := range carriers {
		byDot[c.DOTNumber] = c
	}
	members := make([]*domain.AffiliatedCarrier, 0, len(byDot))
	for _, c := range byDot {
		members = append(members, c)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].DOTNumber < members[j].DOTNumber })

	index := make(map[int64]int, len(members))
	for i, c := range members {
		index[c.DOTNumber] = i
	}

	links := r.builder.Build(members, coOfficers, officerName)

	uf := newUnionFind(len(members))
	for pair := range links {
		uf.union(index[pair.A], index[pair.B])
	}

	componentMembers := make(map[int][]int)
	for i := range members {
		root := uf.find(i)
		componentMembers[root] = append(componentMembers[root], i)
	}

	componentSignals := make(map[int]map[string]struct{})
	for pair, set := range links {
		root := uf.find(index[pair.A])
		sigs, ok := componentSignals[root]
		if !ok {
			sigs = make(map[string]struct{})
			componentSignals[root] = sigs
		}
		for s := range set {
			sigs[s] = struct{}{}
		}
	}

	clusters := make([]*domain.IdentityCluster, 0, len(componentMembers))
	for root, idxs := range componentMembers {
		cluster := &domain.IdentityCluster{
			OfficerName:  officerName,
			CarrierCount: len(idxs),
		}

		stateSet := make(map[string]struct{})
		var riskSum int
		for _, i := range idxs {
			c := members[i]
			cluster.MemberDOTs = append(cluster.MemberDOTs, c.DOTNumber)
			cluster.TotalCrashes += c.TotalCrashes
			cluster.FatalCrashes += c.FatalCrashes
			cluster.TotalUnits += c.PowerUnits
			cluster.PPPTotal += c.PPPTotal
			riskSum += c.RiskScore
			if c.State != "" {
				stateSet[c.State] = struct{}{}
			}
		}
		sort.Slice(cluster.MemberDOTs, func(i, j int) bool { return cluster.MemberDOTs[i] < cluster.MemberDOTs[j] })
		cluster.AvgRiskScore = float64(riskSum) / float64(len(idxs))

		for s := range stateSet {
			cluster.States = append(cluster.States, s)
		}
		sort.Strings(cluster.States)

		if sigs := componentSignals[root]; len(sigs) > 0 {
			for s := range sigs {
				cluster.LinkSignals = append(cluster.LinkSignals, s)
			}
			sort.Strings(cluster.LinkSignals)
		} else {
			cluster.LinkSignals = []string{domain.SignalNameOnly}
		}

		clusters = append(clusters, cluster)
	}

	// Largest clusters first; ties broken by lowest member for stable
	// cluster indexes across runs.
	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].CarrierCount != clusters[j].CarrierCount {
			return clusters[i].CarrierCount > clusters[j].CarrierCount
		}
		return clusters[i].MemberDOTs[0] < clusters[j].MemberDOTs[0]
	})
	for i, c := range clusters {
		c.ClusterIndex = i
	}

	return clusters
}

// coOfficerNames returns each carrier's full officer list, memoized through
// the cache so overlapping batches skip the store.
func (r *Resolver) coOfficerNames(ctx context.Context, dots []int64) (map[int64][]string, error) {
	out := make(map[int64][]string, len(dots))
	var missing []int64

	for _, dot := range dots {
		data, err := r.cache.Get(ctx, coOfficerKey(dot))
		if err != nil {
			r.logger.Warn("co-officer cache read failed", "dot", dot, "error", err)
			missing = append(missing, dot)
			continue
		}
		if data == nil {
			missing = append(missing, dot)
			continue
		}

		var names []string
		if err := json.Unmarshal(data, &names); err != nil {
			missing = append(missing, dot)
			continue
		}
		out[dot] = names
	}

	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := r.store.ListOfficerNames(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("failed to list officer names: %w", err)
	}

	for _, dot := range missing {
		names := fetched[dot]
		out[dot] = names

		data, err := json.Marshal(names)
		if err != nil {
			continue
		}
		if err := r.cache.Set(ctx, coOfficerKey(dot), data, coOfficerTTL); err != nil {
			r.logger.Warn("co-officer cache write failed", "dot", dot, "error", err)
		}
	}

	return out, nil
}

func coOfficerKey(dot int64) string {
	return fmt.Sprintf("officers:%d", dot)
}
