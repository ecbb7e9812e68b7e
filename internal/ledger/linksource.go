package ledger

import (
	"context"
	"fmt"

	"github.com/sstransco/carrierwatch/internal/domain"
)

// LinkSource supplies the carriers whose officer linkage reaches a size
// threshold. The cluster-backed source counts identity-resolved portfolios;
// the raw source counts bare name matches and over-links common names.
type LinkSource interface {
	Name() string
	// Candidates returns up to limit carriers linked to at least
	// minCarriers carriers through one officer identity, excluding any
	// already holding the given flags.
	Candidates(ctx context.Context, minCarriers int, excludeFlags []string, limit int) ([]int64, error)
}

// resolveLinkSource picks the best available source, once per run.
func resolveLinkSource(ctx context.Context, store domain.Store) (LinkSource, error) {
	n, err := store.CountConfirmedClusters(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count clusters: %w", err)
	}
	if n > 0 {
		return &ClusterLinkSource{store: store}, nil
	}
	return &RawNameLinkSource{store: store}, nil
}

// ClusterLinkSource counts carriers per confirmed identity cluster.
type ClusterLinkSource struct {
	store domain.Store
}

func (s *ClusterLinkSource) Name() string { return "clusters" }

func (s *ClusterLinkSource) Candidates(ctx context.Context, minCarriers int, excludeFlags []string, limit int) ([]int64, error) {
	clusters, err := s.store.ListConfirmedClusters(ctx)
	if err != nil {
		return nil, err
	}

	memberSet := make(map[int64]struct{})
	for _, c := range clusters {
		if c.CarrierCount < minCarriers {
			continue
		}
		for _, dot := range c.MemberDOTs {
			memberSet[dot] = struct{}{}
		}
	}
	if len(memberSet) == 0 {
		return nil, nil
	}

	members := make([]int64, 0, len(memberSet))
	for dot := range memberSet {
		members = append(members, dot)
	}
	sortInt64s(members)

	return s.store.FilterWithoutFlags(ctx, members, excludeFlags, limit)
}

// RawNameLinkSource counts carriers per raw officer name.
type RawNameLinkSource struct {
	store domain.Store
}

func (s *RawNameLinkSource) Name() string { return "raw_names" }

func (s *RawNameLinkSource) Candidates(ctx context.Context, minCarriers int, excludeFlags []string, limit int) ([]int64, error) {
	return s.store.OfficerCountCandidates(ctx, minCarriers, excludeFlags, limit)
}
