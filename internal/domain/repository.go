package domain

import "context"

// Store defines the read/write contract against the shared entity store.
// The detectors read carriers/affiliations and replace their own derived
// tables; only the ledger engine mutates risk_score/risk_flags, always
// through the guarded ApplyFlag path.
type Store interface {
	// Carrier access
	UpsertCarrier(ctx context.Context, c *Carrier) error
	GetCarrier(ctx context.Context, dot int64) (*Carrier, error)
	// ListCarriersAfter pages carriers by DOT number (keyset, ascending)
	// so chunked passes are ordered and resumable.
	ListCarriersAfter(ctx context.Context, afterDOT int64, limit int) ([]*Carrier, error)
	ListCarriersByDOTs(ctx context.Context, dots []int64) ([]*Carrier, error)
	CountCarriers(ctx context.Context) (int64, error)

	// Ledger mutations. ApplyFlag adds the flag and points only to rows
	// not already holding the flag; both calls commit per invocation.
	ApplyFlag(ctx context.Context, dots []int64, flag string, points int) (int64, error)
	ResetRiskLedger(ctx context.Context, chunkSize int) (int64, error)
	FlagDistribution(ctx context.Context) (map[string]int64, error)
	// FilterWithoutFlags returns up to limit of the given carriers that
	// hold none of the listed flags, ordered by DOT number.
	FilterWithoutFlags(ctx context.Context, dots []int64, flags []string, limit int) ([]int64, error)

	// Affiliations
	UpsertAffiliation(ctx context.Context, a *Affiliation) error
	// ListOfficersWithMultipleCarriers returns normalized officer names
	// affiliated with 2+ carriers, largest portfolios first.
	ListOfficersWithMultipleCarriers(ctx context.Context) ([]string, error)
	ListAffiliatedCarriers(ctx context.Context, officerNames []string) ([]*AffiliatedCarrier, error)
	// ListOfficerNames returns every officer name attached to each of the
	// given carriers (the co-officer map).
	ListOfficerNames(ctx context.Context, dots []int64) (map[int64][]string, error)
	RawOfficerGroups(ctx context.Context) ([]*OfficerGroup, error)

	// Identity clusters (replaced wholesale each run)
	TruncateClusters(ctx context.Context) error
	InsertClusters(ctx context.Context, clusters []*IdentityCluster) error
	ListConfirmedClusters(ctx context.Context) ([]*IdentityCluster, error)
	ListClustersForOfficer(ctx context.Context, officerName string) ([]*IdentityCluster, error)
	CountConfirmedClusters(ctx context.Context) (int64, error)

	// Chameleon pairs (replaced wholesale each run)
	TruncateChameleonPairs(ctx context.Context) error
	InsertChameleonPairs(ctx context.Context, pairs []*ChameleonPair) error
	ListChameleonPairs(ctx context.Context) ([]*ChameleonPair, error)
	// Succession queries seed detection: ordered pairs meeting the
	// eligibility window that share an address hash / an officer name.
	ListSharedAddressSuccessions(ctx context.Context, maxGapDays int) ([]*ChameleonPair, error)
	ListSharedOfficerSuccessions(ctx context.Context, maxGapDays int) ([]*ChameleonPair, error)
	// SharedOfficerPairs reports which of the given carriers share any
	// officer name, as canonical unordered pairs.
	SharedOfficerPairs(ctx context.Context, dots []int64) (map[DOTPair]struct{}, error)
	ListPhones(ctx context.Context, dots []int64) (map[int64]string, error)
	// ListChameleonDOTs returns distinct successor (or predecessor)
	// carriers of pairs at or above the given confidence.
	ListChameleonDOTs(ctx context.Context, successor bool, min Confidence) ([]int64, error)

	// Fraud rings (replaced wholesale each run)
	TruncateRings(ctx context.Context) error
	InsertRings(ctx context.Context, rings []*FraudRing) error
	ListRings(ctx context.Context, min Confidence) ([]*FraudRing, error)

	// Ledger candidate queries. Each returns up to limit carriers that
	// match the rule predicate and do not yet hold the excluded flags.
	AddressClusterCandidates(ctx context.Context, minSize int, excludeFlags []string, limit int) ([]int64, error)
	OfficerCountCandidates(ctx context.Context, minCarriers int, excludeFlags []string, limit int) ([]int64, error)
	ForeignLinkedOfficerCandidates(ctx context.Context, limit int) ([]int64, error)
	ForeignLinkedAddressCandidates(ctx context.Context, limit int) ([]int64, error)
	AuthorityRevokedCandidates(ctx context.Context, limit int) ([]int64, error)
	InsuranceLapseCandidates(ctx context.Context, limit int) ([]int64, error)
	PPPForgivenAtClusterCandidates(ctx context.Context, minClusterSize, limit int) ([]int64, error)
	InactiveAtClusteredAddressCandidates(ctx context.Context, minClusterSize, limit int) ([]int64, error)

	// Feature detection
	HasViolationData(ctx context.Context) (bool, error)

	// Peer benchmarks. AssignFleetBuckets sets fleet_size_bucket for every
	// carrier not yet bucketed; ranking then covers inspected carriers in
	// known buckets only.
	AssignFleetBuckets(ctx context.Context) (int64, error)
	ListBenchmarkRows(ctx context.Context) ([]BenchmarkRow, error)
	UpdatePeerStats(ctx context.Context, stats []PeerStat) error

	// Collaborator fixture writes (seed tool and tests)
	InsertAddressCluster(ctx context.Context, cluster *AddressClusterSize) error
	InsertAuthorityEvent(ctx context.Context, ev *AuthorityEvent) error
	InsertInsurancePolicy(ctx context.Context, p *InsurancePolicy) error
	InsertPPPLoan(ctx context.Context, l *PPPLoan) error
	InsertViolation(ctx context.Context, v *ViolationRecord) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}
