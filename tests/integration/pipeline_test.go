// Integration test: seed a population with known patterns, run the full
// pipeline, and check the derived tables and ledger land where expected.
package integration

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/sstransco/carrierwatch/internal/bus"
	"github.com/sstransco/carrierwatch/internal/cache"
	"github.com/sstransco/carrierwatch/internal/domain"
	"github.com/sstransco/carrierwatch/internal/pipeline"
	"github.com/sstransco/carrierwatch/internal/repository"
)

func newPipeline(t *testing.T) (*pipeline.Runner, domain.Store) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "carrierwatch-integration-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	store, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	eventBus := bus.NewChannelBus(256)
	t.Cleanup(func() { eventBus.Close() })

	runner := pipeline.NewRunner(store, cache.NewLRUCache(4096), eventBus, domain.DefaultConfig().Pipeline, logger)
	return runner, store
}

func upsert(t *testing.T, store domain.Store, c *domain.Carrier) {
	t.Helper()
	if err := store.UpsertCarrier(context.Background(), c); err != nil {
		t.Fatalf("UpsertCarrier(%d) failed: %v", c.DOTNumber, err)
	}
}

func affiliate(t *testing.T, store domain.Store, dot int64, officer, phone string) {
	t.Helper()
	if err := store.UpsertAffiliation(context.Background(), &domain.Affiliation{
		DOTNumber: dot, OfficerName: officer, Phone: phone,
	}); err != nil {
		t.Fatalf("UpsertAffiliation(%d, %s) failed: %v", dot, officer, err)
	}
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

// seedScenario plants three known patterns:
//   - carriers 101/102: a chameleon succession (same address, officer,
//     phone; 166 day gap)
//   - carriers 201-205: a ring under two shared officer identities
//   - carriers 301/302: namesake officers with no corroboration
func seedScenario(t *testing.T, store domain.Store) {
	t.Helper()

	upsert(t, store, &domain.Carrier{
		DOTNumber: 101, LegalName: "RED STAR TRANSPORT INC",
		PhysicalAddress: "4410 SHADY OAK LN", PhysicalState: "TX", PhysicalCountry: "US",
		AddressHash: "shady-oak", OperatingStatus: "NOT AUTHORIZED", OperatingStatusCode: "I",
		AuthorityGrantDate: date(2019, 3, 1),
		TotalInspections:   22, TotalCrashes: 6, FatalCrashes: 1, VehicleOOSRate: 61,
	})
	upsert(t, store, &domain.Carrier{
		DOTNumber: 102, LegalName: "RED STAR LOGISTICS LLC",
		PhysicalAddress: "4410 SHADY OAK LN", PhysicalState: "TX", PhysicalCountry: "US",
		AddressHash: "shady-oak", OperatingStatus: "AUTHORIZED FOR Property", OperatingStatusCode: "A",
		AuthorityGrantDate: date(2019, 8, 14),
	})
	affiliate(t, store, 101, "VIKTOR REZNIK", "2145550911")
	affiliate(t, store, 102, "VIKTOR REZNIK", "2145550911")

	for i := int64(0); i < 5; i++ {
		dot := 201 + i
		upsert(t, store, &domain.Carrier{
			DOTNumber: dot, LegalName: "EAGLE EXPRESS INC",
			PhysicalAddress: "2200 GULFGATE BLVD", PhysicalState: "TX", PhysicalCountry: "US",
			AddressHash: "gulfgate", OperatingStatus: "AUTHORIZED FOR Property", OperatingStatusCode: "A",
			AuthorityGrantDate: date(2021, time.Month(1+i), 10),
			TotalInspections:   15, TotalCrashes: 2,
		})
		affiliate(t, store, dot, "MARIA CONSTANTIN", "7135550230")
		affiliate(t, store, dot, "ION DRAGOMIR", "7135550231")
	}

	upsert(t, store, &domain.Carrier{
		DOTNumber: 301, LegalName: "SMITH TRUCKING FL",
		PhysicalAddress: "10 PORT RD", PhysicalState: "FL", PhysicalCountry: "US",
		AddressHash: "smith-fl", OperatingStatus: "AUTHORIZED FOR Property", OperatingStatusCode: "A",
		AuthorityGrantDate: date(2018, 1, 5),
	})
	upsert(t, store, &domain.Carrier{
		DOTNumber: 302, LegalName: "SMITH TRUCKING WA",
		PhysicalAddress: "11 PORT RD", PhysicalState: "WA", PhysicalCountry: "US",
		AddressHash: "smith-wa", OperatingStatus: "AUTHORIZED FOR Property", OperatingStatusCode: "A",
		AuthorityGrantDate: date(2018, 1, 5),
	})
	affiliate(t, store, 301, "JOHN SMITH", "")
	affiliate(t, store, 302, "JOHN SMITH", "")
}

func TestFullPipelineScenario(t *testing.T) {
	runner, store := newPipeline(t)
	ctx := context.Background()
	seedScenario(t, store)

	report, err := runner.Run(ctx, pipeline.Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if failed := report.FailedPhases(); len(failed) > 0 {
		t.Fatalf("phases failed: %v", failed)
	}

	t.Run("ChameleonPairDetected", func(t *testing.T) {
		pairs, err := store.ListChameleonPairs(ctx)
		if err != nil {
			t.Fatalf("ListChameleonPairs failed: %v", err)
		}
		if len(pairs) != 1 {
			t.Fatalf("expected one chameleon pair, got %d", len(pairs))
		}
		p := pairs[0]
		if p.PredecessorDOT != 101 || p.SuccessorDOT != 102 {
			t.Errorf("wrong pair: %d -> %d", p.PredecessorDOT, p.SuccessorDOT)
		}
		if p.Confidence != domain.ConfidenceHigh {
			t.Errorf("address+officer+phone should be high confidence, got %s", p.Confidence)
		}
		if p.DaysGap != 166 {
			t.Errorf("expected 166 day gap, got %d", p.DaysGap)
		}
	})

	t.Run("RingDetected", func(t *testing.T) {
		rings, err := store.ListRings(ctx, domain.ConfidenceLow)
		if err != nil {
			t.Fatalf("ListRings failed: %v", err)
		}
		if len(rings) != 1 {
			t.Fatalf("expected one ring, got %d", len(rings))
		}
		r := rings[0]
		if r.CarrierCount != 5 {
			t.Errorf("expected 5 ring members, got %d", r.CarrierCount)
		}
		if r.Confidence != domain.ConfidenceMedium {
			t.Errorf("10 crashes across 5 members should be medium, got %s", r.Confidence)
		}
	})

	t.Run("NamesakesStaySeparate", func(t *testing.T) {
		clusters, err := store.ListClustersForOfficer(ctx, "JOHN SMITH")
		if err != nil {
			t.Fatalf("ListClustersForOfficer failed: %v", err)
		}
		for _, c := range clusters {
			if c.Confirmed() {
				t.Errorf("uncorroborated namesakes must not be confirmed: %+v", c)
			}
		}
	})

	t.Run("LedgerFlags", func(t *testing.T) {
		succ, err := store.GetCarrier(ctx, 102)
		if err != nil {
			t.Fatalf("GetCarrier(102) failed: %v", err)
		}
		if !succ.HasFlag(domain.FlagChameleonSuccessor) {
			t.Errorf("successor missing chameleon flag: %v", succ.RiskFlags)
		}

		pred, err := store.GetCarrier(ctx, 101)
		if err != nil {
			t.Fatalf("GetCarrier(101) failed: %v", err)
		}
		if !pred.HasFlag(domain.FlagChameleonPredecessor) {
			t.Errorf("predecessor missing chameleon flag: %v", pred.RiskFlags)
		}
		if !pred.HasFlag(domain.FlagFatalCrashes) {
			t.Errorf("predecessor missing fatal crash flag: %v", pred.RiskFlags)
		}

		ringMember, err := store.GetCarrier(ctx, 203)
		if err != nil {
			t.Fatalf("GetCarrier(203) failed: %v", err)
		}
		if !ringMember.HasFlag(domain.FlagFraudRing) {
			t.Errorf("ring member missing ring flag: %v", ringMember.RiskFlags)
		}

		namesake, err := store.GetCarrier(ctx, 301)
		if err != nil {
			t.Fatalf("GetCarrier(301) failed: %v", err)
		}
		if namesake.RiskScore != 0 {
			t.Errorf("clean namesake must not be scored: %d %v", namesake.RiskScore, namesake.RiskFlags)
		}
	})

	t.Run("FlagDistributionSnapshot", func(t *testing.T) {
		if report.FlagDistribution[domain.FlagFraudRing] != 5 {
			t.Errorf("expected 5 FRAUD_RING carriers in snapshot, got %d",
				report.FlagDistribution[domain.FlagFraudRing])
		}
	})
}

func TestRerunIsIdempotent(t *testing.T) {
	runner, store := newPipeline(t)
	ctx := context.Background()
	seedScenario(t, store)

	if _, err := runner.Run(ctx, pipeline.Options{}); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	first, err := store.GetCarrier(ctx, 102)
	if err != nil {
		t.Fatalf("GetCarrier failed: %v", err)
	}

	report, err := runner.Run(ctx, pipeline.Options{})
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if failed := report.FailedPhases(); len(failed) > 0 {
		t.Fatalf("phases failed on re-run: %v", failed)
	}

	second, err := store.GetCarrier(ctx, 102)
	if err != nil {
		t.Fatalf("GetCarrier failed: %v", err)
	}
	if second.RiskScore != first.RiskScore || len(second.RiskFlags) != len(first.RiskFlags) {
		t.Errorf("re-run changed the ledger: %d/%v -> %d/%v",
			first.RiskScore, first.RiskFlags, second.RiskScore, second.RiskFlags)
	}
}

func TestResetReproducesLedger(t *testing.T) {
	runner, store := newPipeline(t)
	ctx := context.Background()
	seedScenario(t, store)

	if _, err := runner.Run(ctx, pipeline.Options{}); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	before, err := store.GetCarrier(ctx, 101)
	if err != nil {
		t.Fatalf("GetCarrier failed: %v", err)
	}

	if _, err := runner.Run(ctx, pipeline.Options{Reset: true}); err != nil {
		t.Fatalf("reset run failed: %v", err)
	}
	after, err := store.GetCarrier(ctx, 101)
	if err != nil {
		t.Fatalf("GetCarrier failed: %v", err)
	}

	if after.RiskScore != before.RiskScore {
		t.Errorf("reset run produced a different score: %d -> %d", before.RiskScore, after.RiskScore)
	}
}
