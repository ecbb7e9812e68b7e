package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/sstransco/carrierwatch/internal/domain"
)

func newTestStore(t *testing.T) domain.Store {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "carrierwatch-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	store, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func testCarrier(dot int64) *domain.Carrier {
	return &domain.Carrier{
		DOTNumber:       dot,
		LegalName:       "TEST CARRIER",
		PhysicalState:   "TX",
		PhysicalCountry: "US",
		OperatingStatus: "AUTHORIZED FOR Property",
	}
}

func mustUpsert(t *testing.T, store domain.Store, c *domain.Carrier) {
	t.Helper()
	if err := store.UpsertCarrier(context.Background(), c); err != nil {
		t.Fatalf("UpsertCarrier(%d) failed: %v", c.DOTNumber, err)
	}
}

func TestSQLiteStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := store.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("UpsertAndGetCarrier", func(t *testing.T) {
		grant := time.Date(2021, 3, 15, 0, 0, 0, 0, time.UTC)
		c := testCarrier(100001)
		c.DBAName = "TEST EXPRESS"
		c.Phone = "5125550100"
		c.PowerUnits = 12
		c.AuthorityGrantDate = &grant
		c.TotalCrashes = 3
		c.AddressHash = "h-austin-1"
		mustUpsert(t, store, c)

		got, err := store.GetCarrier(ctx, 100001)
		if err != nil {
			t.Fatalf("GetCarrier failed: %v", err)
		}
		if got.LegalName != "TEST CARRIER" {
			t.Errorf("expected legal name TEST CARRIER, got %s", got.LegalName)
		}
		if got.AuthorityGrantDate == nil || !got.AuthorityGrantDate.Equal(grant) {
			t.Errorf("expected grant date %v, got %v", grant, got.AuthorityGrantDate)
		}
		if got.RiskScore != 0 || len(got.RiskFlags) != 0 {
			t.Errorf("fresh carrier should have empty ledger, got score=%d flags=%v", got.RiskScore, got.RiskFlags)
		}
	})

	t.Run("UpsertPreservesLedger", func(t *testing.T) {
		mustUpsert(t, store, testCarrier(100002))
		if _, err := store.ApplyFlag(ctx, []int64{100002}, domain.FlagFatalCrashes, 40); err != nil {
			t.Fatalf("ApplyFlag failed: %v", err)
		}

		// Re-ingest must not wipe score or flags.
		refreshed := testCarrier(100002)
		refreshed.LegalName = "TEST CARRIER RENAMED"
		mustUpsert(t, store, refreshed)

		got, err := store.GetCarrier(ctx, 100002)
		if err != nil {
			t.Fatalf("GetCarrier failed: %v", err)
		}
		if got.LegalName != "TEST CARRIER RENAMED" {
			t.Errorf("expected refreshed name, got %s", got.LegalName)
		}
		if got.RiskScore != 40 || !got.HasFlag(domain.FlagFatalCrashes) {
			t.Errorf("ledger lost on upsert: score=%d flags=%v", got.RiskScore, got.RiskFlags)
		}
	})

	t.Run("GetCarrierNotFound", func(t *testing.T) {
		_, err := store.GetCarrier(ctx, 999999)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListCarriersAfterPaging", func(t *testing.T) {
		for dot := int64(200001); dot <= 200005; dot++ {
			mustUpsert(t, store, testCarrier(dot))
		}

		page, err := store.ListCarriersAfter(ctx, 200000, 3)
		if err != nil {
			t.Fatalf("ListCarriersAfter failed: %v", err)
		}
		if len(page) != 3 || page[0].DOTNumber != 200001 || page[2].DOTNumber != 200003 {
			t.Fatalf("unexpected first page: %+v", page)
		}

		page, err = store.ListCarriersAfter(ctx, page[2].DOTNumber, 3)
		if err != nil {
			t.Fatalf("ListCarriersAfter failed: %v", err)
		}
		if len(page) < 2 || page[0].DOTNumber != 200004 {
			t.Fatalf("unexpected second page: %+v", page)
		}
	})

	t.Run("ApplyFlagIdempotent", func(t *testing.T) {
		mustUpsert(t, store, testCarrier(300001))
		mustUpsert(t, store, testCarrier(300002))

		dots := []int64{300001, 300002}
		applied, err := store.ApplyFlag(ctx, dots, domain.FlagInsuranceLapse, 20)
		if err != nil {
			t.Fatalf("ApplyFlag failed: %v", err)
		}
		if applied != 2 {
			t.Errorf("expected 2 applied, got %d", applied)
		}

		applied, err = store.ApplyFlag(ctx, dots, domain.FlagInsuranceLapse, 20)
		if err != nil {
			t.Fatalf("ApplyFlag re-run failed: %v", err)
		}
		if applied != 0 {
			t.Errorf("re-applying same flag should be a no-op, got %d", applied)
		}

		got, err := store.GetCarrier(ctx, 300001)
		if err != nil {
			t.Fatalf("GetCarrier failed: %v", err)
		}
		if got.RiskScore != 20 {
			t.Errorf("expected score 20 after double apply, got %d", got.RiskScore)
		}
	})

	t.Run("FilterWithoutFlags", func(t *testing.T) {
		mustUpsert(t, store, testCarrier(310001))
		mustUpsert(t, store, testCarrier(310002))
		if _, err := store.ApplyFlag(ctx, []int64{310001}, domain.FlagOfficer25Plus, 50); err != nil {
			t.Fatalf("ApplyFlag failed: %v", err)
		}

		kept, err := store.FilterWithoutFlags(ctx, []int64{310001, 310002}, domain.OfficerTierFlags, 10)
		if err != nil {
			t.Fatalf("FilterWithoutFlags failed: %v", err)
		}
		if len(kept) != 1 || kept[0] != 310002 {
			t.Errorf("expected only 310002 unflagged, got %v", kept)
		}
	})

	t.Run("FlagNameMatchingIsExact", func(t *testing.T) {
		// OFFICER_5_PLUS must not shadow OFFICER_25_PLUS in the guard.
		mustUpsert(t, store, testCarrier(320001))
		if _, err := store.ApplyFlag(ctx, []int64{320001}, domain.FlagOfficer25Plus, 50); err != nil {
			t.Fatalf("ApplyFlag failed: %v", err)
		}

		kept, err := store.FilterWithoutFlags(ctx, []int64{320001}, []string{domain.FlagOfficer5Plus}, 10)
		if err != nil {
			t.Fatalf("FilterWithoutFlags failed: %v", err)
		}
		if len(kept) != 1 {
			t.Errorf("OFFICER_25_PLUS should not match the OFFICER_5_PLUS guard: %v", kept)
		}
	})

	t.Run("ResetRiskLedger", func(t *testing.T) {
		mustUpsert(t, store, testCarrier(330001))
		if _, err := store.ApplyFlag(ctx, []int64{330001}, domain.FlagPPPLoan, 5); err != nil {
			t.Fatalf("ApplyFlag failed: %v", err)
		}

		n, err := store.ResetRiskLedger(ctx, 2)
		if err != nil {
			t.Fatalf("ResetRiskLedger failed: %v", err)
		}
		if n == 0 {
			t.Error("expected at least one row reset")
		}

		got, err := store.GetCarrier(ctx, 330001)
		if err != nil {
			t.Fatalf("GetCarrier failed: %v", err)
		}
		if got.RiskScore != 0 || len(got.RiskFlags) != 0 {
			t.Errorf("ledger not reset: score=%d flags=%v", got.RiskScore, got.RiskFlags)
		}
	})

	t.Run("FlagDistribution", func(t *testing.T) {
		mustUpsert(t, store, testCarrier(340001))
		mustUpsert(t, store, testCarrier(340002))
		if _, err := store.ApplyFlag(ctx, []int64{340001, 340002}, domain.FlagForeignCarrier, 10); err != nil {
			t.Fatalf("ApplyFlag failed: %v", err)
		}

		dist, err := store.FlagDistribution(ctx)
		if err != nil {
			t.Fatalf("FlagDistribution failed: %v", err)
		}
		if dist[domain.FlagForeignCarrier] < 2 {
			t.Errorf("expected at least 2 FOREIGN_CARRIER, got %d", dist[domain.FlagForeignCarrier])
		}
	})
}

func TestAffiliations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for dot := int64(400001); dot <= 400003; dot++ {
		c := testCarrier(dot)
		c.TotalCrashes = int(dot % 10)
		mustUpsert(t, store, c)
	}

	affiliations := []*domain.Affiliation{
		{DOTNumber: 400001, OfficerName: "JOHN SMITH", Phone: "5125550101", Email: "js@example.com"},
		{DOTNumber: 400002, OfficerName: "JOHN SMITH", Phone: "5125550101"},
		{DOTNumber: 400003, OfficerName: "JOHN SMITH"},
		{DOTNumber: 400001, OfficerName: "MARIA GARZA"},
	}
	for _, a := range affiliations {
		if err := store.UpsertAffiliation(ctx, a); err != nil {
			t.Fatalf("UpsertAffiliation failed: %v", err)
		}
	}

	t.Run("ListOfficersWithMultipleCarriers", func(t *testing.T) {
		names, err := store.ListOfficersWithMultipleCarriers(ctx)
		if err != nil {
			t.Fatalf("ListOfficersWithMultipleCarriers failed: %v", err)
		}
		if len(names) != 1 || names[0] != "JOHN SMITH" {
			t.Errorf("expected only JOHN SMITH, got %v", names)
		}
	})

	t.Run("ListAffiliatedCarriers", func(t *testing.T) {
		rows, err := store.ListAffiliatedCarriers(ctx, []string{"JOHN SMITH"})
		if err != nil {
			t.Fatalf("ListAffiliatedCarriers failed: %v", err)
		}
		if len(rows) != 3 {
			t.Fatalf("expected 3 rows, got %d", len(rows))
		}
		for _, r := range rows {
			if r.State != "TX" {
				t.Errorf("expected joined carrier state TX, got %q", r.State)
			}
		}
	})

	t.Run("ListOfficerNames", func(t *testing.T) {
		names, err := store.ListOfficerNames(ctx, []int64{400001, 400002})
		if err != nil {
			t.Fatalf("ListOfficerNames failed: %v", err)
		}
		if len(names[400001]) != 2 {
			t.Errorf("expected 2 officers on 400001, got %v", names[400001])
		}
		if len(names[400002]) != 1 {
			t.Errorf("expected 1 officer on 400002, got %v", names[400002])
		}
	})

	t.Run("RawOfficerGroups", func(t *testing.T) {
		groups, err := store.RawOfficerGroups(ctx)
		if err != nil {
			t.Fatalf("RawOfficerGroups failed: %v", err)
		}
		if len(groups) != 1 {
			t.Fatalf("expected 1 multi-carrier group, got %d", len(groups))
		}
		if groups[0].Key != "JOHN SMITH" || len(groups[0].DOTs) != 3 {
			t.Errorf("unexpected group: %+v", groups[0])
		}
	})

	t.Run("SharedOfficerPairs", func(t *testing.T) {
		pairs, err := store.SharedOfficerPairs(ctx, []int64{400001, 400002, 400003})
		if err != nil {
			t.Fatalf("SharedOfficerPairs failed: %v", err)
		}
		if len(pairs) != 3 {
			t.Errorf("expected 3 unordered pairs, got %d", len(pairs))
		}
		if _, ok := pairs[domain.NewDOTPair(400002, 400001)]; !ok {
			t.Error("expected canonical pair (400001, 400002)")
		}
	})
}

func TestIdentityClusterStorage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	clusters := []*domain.IdentityCluster{
		{
			OfficerName:  "JOHN SMITH",
			ClusterIndex: 0,
			MemberDOTs:   []int64{1, 2, 3},
			CarrierCount: 3,
			LinkSignals:  []string{"address", "phone"},
			States:       []string{"TX"},
		},
		{
			OfficerName:  "JOHN SMITH",
			ClusterIndex: 1,
			MemberDOTs:   []int64{9},
			CarrierCount: 1,
			LinkSignals:  []string{domain.SignalNameOnly},
		},
	}
	if err := store.InsertClusters(ctx, clusters); err != nil {
		t.Fatalf("InsertClusters failed: %v", err)
	}

	t.Run("ListConfirmedClusters", func(t *testing.T) {
		got, err := store.ListConfirmedClusters(ctx)
		if err != nil {
			t.Fatalf("ListConfirmedClusters failed: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("expected 1 confirmed cluster, got %d", len(got))
		}
		if got[0].CarrierCount != 3 || len(got[0].MemberDOTs) != 3 {
			t.Errorf("unexpected cluster: %+v", got[0])
		}
	})

	t.Run("ListClustersForOfficer", func(t *testing.T) {
		got, err := store.ListClustersForOfficer(ctx, "JOHN SMITH")
		if err != nil {
			t.Fatalf("ListClustersForOfficer failed: %v", err)
		}
		if len(got) != 2 || got[0].ClusterIndex != 0 || got[1].ClusterIndex != 1 {
			t.Errorf("expected both clusters in index order, got %+v", got)
		}
	})

	t.Run("CountConfirmedClusters", func(t *testing.T) {
		n, err := store.CountConfirmedClusters(ctx)
		if err != nil {
			t.Fatalf("CountConfirmedClusters failed: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 confirmed cluster, got %d", n)
		}
	})

	t.Run("TruncateClusters", func(t *testing.T) {
		if err := store.TruncateClusters(ctx); err != nil {
			t.Fatalf("TruncateClusters failed: %v", err)
		}
		n, err := store.CountConfirmedClusters(ctx)
		if err != nil {
			t.Fatalf("CountConfirmedClusters failed: %v", err)
		}
		if n != 0 {
			t.Errorf("expected empty table after truncate, got %d", n)
		}
	})
}

func TestSuccessionQueries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	grantAt := func(y int, m time.Month, d int) *time.Time {
		t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		return &t
	}

	// Predecessor: inactive, deactivated address H1.
	pred := testCarrier(500001)
	pred.OperatingStatus = "NOT AUTHORIZED"
	pred.OperatingStatusCode = "I"
	pred.AddressHash = "H1"
	pred.AuthorityGrantDate = grantAt(2020, 1, 1)
	mustUpsert(t, store, pred)

	// Successor: authorized at the same address five months later.
	succ := testCarrier(500002)
	succ.OperatingStatusCode = "A"
	succ.AddressHash = "H1"
	succ.AuthorityGrantDate = grantAt(2020, 6, 1)
	mustUpsert(t, store, succ)

	// Too-late successor: same address, outside the gap window.
	late := testCarrier(500003)
	late.OperatingStatusCode = "A"
	late.AddressHash = "H1"
	late.AuthorityGrantDate = grantAt(2022, 6, 1)
	mustUpsert(t, store, late)

	t.Run("SharedAddressWithinWindow", func(t *testing.T) {
		pairs, err := store.ListSharedAddressSuccessions(ctx, 365)
		if err != nil {
			t.Fatalf("ListSharedAddressSuccessions failed: %v", err)
		}
		if len(pairs) != 1 {
			t.Fatalf("expected 1 pair inside the window, got %d", len(pairs))
		}

		p := pairs[0]
		if p.PredecessorDOT != 500001 || p.SuccessorDOT != 500002 {
			t.Errorf("unexpected pair direction: %+v", p)
		}
		if p.DaysGap != 152 {
			t.Errorf("expected 152 day gap, got %d", p.DaysGap)
		}
		if !p.HasSignal(domain.SignalAddress) {
			t.Errorf("expected address seed signal, got %v", p.MatchSignals)
		}
	})

	t.Run("SharedOfficerWithinWindow", func(t *testing.T) {
		for _, a := range []*domain.Affiliation{
			{DOTNumber: 500001, OfficerName: "DMITRI PAVLOV"},
			{DOTNumber: 500002, OfficerName: "DMITRI PAVLOV"},
		} {
			if err := store.UpsertAffiliation(ctx, a); err != nil {
				t.Fatalf("UpsertAffiliation failed: %v", err)
			}
		}

		pairs, err := store.ListSharedOfficerSuccessions(ctx, 365)
		if err != nil {
			t.Fatalf("ListSharedOfficerSuccessions failed: %v", err)
		}
		if len(pairs) != 1 || pairs[0].SuccessorDOT != 500002 {
			t.Fatalf("expected the officer-linked pair, got %+v", pairs)
		}
		if !pairs[0].HasSignal(domain.SignalOfficer) {
			t.Errorf("expected officer seed signal, got %v", pairs[0].MatchSignals)
		}
	})

	t.Run("ChameleonPairStorage", func(t *testing.T) {
		pair := &domain.ChameleonPair{
			PredecessorDOT:   500001,
			SuccessorDOT:     500002,
			DeactivationDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			ActivationDate:   time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC),
			DaysGap:          152,
			MatchSignals:     []string{domain.SignalAddress, domain.SignalOfficer},
			SignalCount:      2,
			Confidence:       domain.ConfidenceMedium,
		}
		if err := store.InsertChameleonPairs(ctx, []*domain.ChameleonPair{pair}); err != nil {
			t.Fatalf("InsertChameleonPairs failed: %v", err)
		}

		got, err := store.ListChameleonPairs(ctx)
		if err != nil {
			t.Fatalf("ListChameleonPairs failed: %v", err)
		}
		if len(got) != 1 || got[0].SignalCount != 2 || got[0].Confidence != domain.ConfidenceMedium {
			t.Fatalf("unexpected stored pair: %+v", got)
		}

		succs, err := store.ListChameleonDOTs(ctx, true, domain.ConfidenceMedium)
		if err != nil {
			t.Fatalf("ListChameleonDOTs failed: %v", err)
		}
		if len(succs) != 1 || succs[0] != 500002 {
			t.Errorf("expected successor 500002, got %v", succs)
		}

		none, err := store.ListChameleonDOTs(ctx, true, domain.ConfidenceHigh)
		if err != nil {
			t.Fatalf("ListChameleonDOTs failed: %v", err)
		}
		if len(none) != 0 {
			t.Errorf("medium pair should not pass a high floor, got %v", none)
		}
	})
}

func TestRingStorage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rings := []*domain.FraudRing{
		{
			ID:               "ring-a",
			CarrierDOTs:      []int64{1, 2, 3, 4, 5},
			OfficerNames:     []string{"A", "B"},
			CarrierCount:     5,
			TotalCrashes:     8,
			DetectionSignals: []string{"shared_officers"},
			Confidence:       domain.ConfidenceMedium,
		},
		{
			ID:               "ring-b",
			CarrierDOTs:      []int64{10, 11, 12},
			OfficerNames:     []string{"C"},
			CarrierCount:     3,
			DetectionSignals: []string{"shared_officers"},
			Confidence:       domain.ConfidenceLow,
		},
	}
	if err := store.InsertRings(ctx, rings); err != nil {
		t.Fatalf("InsertRings failed: %v", err)
	}

	got, err := store.ListRings(ctx, domain.ConfidenceMedium)
	if err != nil {
		t.Fatalf("ListRings failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "ring-a" {
		t.Fatalf("expected only ring-a at medium floor, got %+v", got)
	}
	if len(got[0].CarrierDOTs) != 5 {
		t.Errorf("expected 5 members round-tripped, got %v", got[0].CarrierDOTs)
	}

	all, err := store.ListRings(ctx, domain.ConfidenceLow)
	if err != nil {
		t.Fatalf("ListRings failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected both rings at low floor, got %d", len(all))
	}
}

func TestCandidateQueries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("AddressClusterCandidates", func(t *testing.T) {
		for dot := int64(600001); dot <= 600003; dot++ {
			c := testCarrier(dot)
			c.AddressHash = "shared-hash"
			mustUpsert(t, store, c)
		}
		if err := store.InsertAddressCluster(ctx, &domain.AddressClusterSize{AddressHash: "shared-hash", CarrierCount: 12}); err != nil {
			t.Fatalf("InsertAddressCluster failed: %v", err)
		}

		dots, err := store.AddressClusterCandidates(ctx, 10, domain.AddressTierFlags, 100)
		if err != nil {
			t.Fatalf("AddressClusterCandidates failed: %v", err)
		}
		if len(dots) != 3 {
			t.Fatalf("expected 3 candidates, got %v", dots)
		}

		// Already-flagged carriers drop out.
		if _, err := store.ApplyFlag(ctx, []int64{600001}, domain.FlagAddressCluster10Plus, 25); err != nil {
			t.Fatalf("ApplyFlag failed: %v", err)
		}
		dots, err = store.AddressClusterCandidates(ctx, 10, domain.AddressTierFlags, 100)
		if err != nil {
			t.Fatalf("AddressClusterCandidates failed: %v", err)
		}
		if len(dots) != 2 {
			t.Errorf("expected flagged carrier excluded, got %v", dots)
		}
	})

	t.Run("OfficerCountCandidates", func(t *testing.T) {
		for dot := int64(610001); dot <= 610006; dot++ {
			mustUpsert(t, store, testCarrier(dot))
			if err := store.UpsertAffiliation(ctx, &domain.Affiliation{DOTNumber: dot, OfficerName: "SERIAL OPERATOR"}); err != nil {
				t.Fatalf("UpsertAffiliation failed: %v", err)
			}
		}

		dots, err := store.OfficerCountCandidates(ctx, 5, domain.OfficerTierFlags, 100)
		if err != nil {
			t.Fatalf("OfficerCountCandidates failed: %v", err)
		}
		if len(dots) != 6 {
			t.Errorf("expected all 6 portfolio carriers, got %v", dots)
		}

		dots, err = store.OfficerCountCandidates(ctx, 25, domain.OfficerTierFlags, 100)
		if err != nil {
			t.Fatalf("OfficerCountCandidates failed: %v", err)
		}
		if len(dots) != 0 {
			t.Errorf("6-carrier portfolio should not reach the 25 floor, got %v", dots)
		}
	})

	t.Run("ForeignLinkedCandidates", func(t *testing.T) {
		domestic := testCarrier(620001)
		domestic.AddressHash = "laredo-1"
		mustUpsert(t, store, domestic)

		foreign := testCarrier(620002)
		foreign.PhysicalCountry = "MX"
		foreign.AddressHash = "laredo-1"
		mustUpsert(t, store, foreign)

		for _, a := range []*domain.Affiliation{
			{DOTNumber: 620001, OfficerName: "CROSS BORDER"},
			{DOTNumber: 620002, OfficerName: "CROSS BORDER"},
		} {
			if err := store.UpsertAffiliation(ctx, a); err != nil {
				t.Fatalf("UpsertAffiliation failed: %v", err)
			}
		}

		officers, err := store.ForeignLinkedOfficerCandidates(ctx, 100)
		if err != nil {
			t.Fatalf("ForeignLinkedOfficerCandidates failed: %v", err)
		}
		if len(officers) != 1 || officers[0] != 620001 {
			t.Errorf("expected only the domestic side, got %v", officers)
		}

		addresses, err := store.ForeignLinkedAddressCandidates(ctx, 100)
		if err != nil {
			t.Fatalf("ForeignLinkedAddressCandidates failed: %v", err)
		}
		if len(addresses) != 1 || addresses[0] != 620001 {
			t.Errorf("expected only the domestic side, got %v", addresses)
		}
	})

	t.Run("AuthorityRevokedCandidates", func(t *testing.T) {
		grant := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
		c := testCarrier(630001)
		c.AuthorityGrantDate = &grant
		mustUpsert(t, store, c)

		if err := store.InsertAuthorityEvent(ctx, &domain.AuthorityEvent{
			DOTNumber:         630001,
			AuthorityType:     "common",
			RevocationPending: true,
			EventDate:         time.Date(2022, 8, 1, 0, 0, 0, 0, time.UTC),
		}); err != nil {
			t.Fatalf("InsertAuthorityEvent failed: %v", err)
		}

		dots, err := store.AuthorityRevokedCandidates(ctx, 100)
		if err != nil {
			t.Fatalf("AuthorityRevokedCandidates failed: %v", err)
		}
		if len(dots) != 1 || dots[0] != 630001 {
			t.Errorf("expected reissued carrier, got %v", dots)
		}
	})

	t.Run("InsuranceLapseCandidates", func(t *testing.T) {
		lapsed := testCarrier(640001)
		mustUpsert(t, store, lapsed)
		covered := testCarrier(640002)
		mustUpsert(t, store, covered)

		cancel := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
		policies := []*domain.InsurancePolicy{
			{DOTNumber: 640001, Company: "ACME MUTUAL", CancelDate: &cancel},
			{DOTNumber: 640002, Company: "ACME MUTUAL", CancelDate: &cancel},
			{DOTNumber: 640002, Company: "ACME MUTUAL"},
		}
		for _, p := range policies {
			if err := store.InsertInsurancePolicy(ctx, p); err != nil {
				t.Fatalf("InsertInsurancePolicy failed: %v", err)
			}
		}

		dots, err := store.InsuranceLapseCandidates(ctx, 100)
		if err != nil {
			t.Fatalf("InsuranceLapseCandidates failed: %v", err)
		}
		if len(dots) != 1 || dots[0] != 640001 {
			t.Errorf("expected only the fully-lapsed carrier, got %v", dots)
		}
	})

	t.Run("PPPAndInactiveAtCluster", func(t *testing.T) {
		if err := store.InsertAddressCluster(ctx, &domain.AddressClusterSize{AddressHash: "mill-road", CarrierCount: 8}); err != nil {
			t.Fatalf("InsertAddressCluster failed: %v", err)
		}

		forgiven := testCarrier(650001)
		forgiven.AddressHash = "mill-road"
		forgiven.PPPForgivenTotal = 250000
		mustUpsert(t, store, forgiven)

		inactive := testCarrier(650002)
		inactive.AddressHash = "mill-road"
		inactive.OperatingStatusCode = "I"
		mustUpsert(t, store, inactive)

		active := testCarrier(650003)
		active.AddressHash = "mill-road"
		active.OperatingStatusCode = "A"
		mustUpsert(t, store, active)

		ppp, err := store.PPPForgivenAtClusterCandidates(ctx, 5, 100)
		if err != nil {
			t.Fatalf("PPPForgivenAtClusterCandidates failed: %v", err)
		}
		if len(ppp) != 1 || ppp[0] != 650001 {
			t.Errorf("expected forgiven carrier, got %v", ppp)
		}

		idle, err := store.InactiveAtClusteredAddressCandidates(ctx, 5, 100)
		if err != nil {
			t.Fatalf("InactiveAtClusteredAddressCandidates failed: %v", err)
		}
		for _, dot := range idle {
			if dot == 650003 {
				t.Errorf("active carrier should not be a candidate: %v", idle)
			}
		}
		found := false
		for _, dot := range idle {
			if dot == 650002 {
				found = true
			}
		}
		if !found {
			t.Errorf("expected inactive carrier in candidates, got %v", idle)
		}
	})

	t.Run("HasViolationData", func(t *testing.T) {
		ok, err := store.HasViolationData(ctx)
		if err != nil {
			t.Fatalf("HasViolationData failed: %v", err)
		}
		if ok {
			t.Error("expected no violation data before insert")
		}

		if err := store.InsertViolation(ctx, &domain.ViolationRecord{DOTNumber: 650001, ViolationCode: "395.8", Count: 3}); err != nil {
			t.Fatalf("InsertViolation failed: %v", err)
		}

		ok, err = store.HasViolationData(ctx)
		if err != nil {
			t.Fatalf("HasViolationData failed: %v", err)
		}
		if !ok {
			t.Error("expected violation data after insert")
		}
	})
}

func TestPeerBenchmarkStorage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inspected := testCarrier(700001)
	inspected.PowerUnits = 4
	inspected.TotalInspections = 20
	inspected.TotalCrashes = 2
	mustUpsert(t, store, inspected)

	uninspected := testCarrier(700002)
	uninspected.PowerUnits = 0
	mustUpsert(t, store, uninspected)

	rows, err := store.ListBenchmarkRows(ctx)
	if err != nil {
		t.Fatalf("ListBenchmarkRows failed: %v", err)
	}
	if len(rows) != 1 || rows[0].DOTNumber != 700001 {
		t.Fatalf("expected only the inspected carrier, got %+v", rows)
	}

	n, err := store.AssignFleetBuckets(ctx)
	if err != nil {
		t.Fatalf("AssignFleetBuckets failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 carriers bucketed, got %d", n)
	}
	unknown, err := store.GetCarrier(ctx, 700002)
	if err != nil {
		t.Fatalf("GetCarrier failed: %v", err)
	}
	if unknown.FleetSizeBucket != "unknown" {
		t.Errorf("carrier without fleet data should land in 'unknown', got %q", unknown.FleetSizeBucket)
	}

	// Already-bucketed rows are left alone on the next pass.
	n, err = store.AssignFleetBuckets(ctx)
	if err != nil {
		t.Fatalf("AssignFleetBuckets failed: %v", err)
	}
	if n != 0 {
		t.Errorf("second pass must not rebucket, got %d", n)
	}

	if err := store.UpdatePeerStats(ctx, []domain.PeerStat{
		{DOTNumber: 700001, FleetSizeBucket: "2-5", CrashPercentile: 50, OOSPercentile: 25},
	}); err != nil {
		t.Fatalf("UpdatePeerStats failed: %v", err)
	}

	got, err := store.GetCarrier(ctx, 700001)
	if err != nil {
		t.Fatalf("GetCarrier failed: %v", err)
	}
	if got.FleetSizeBucket != "2-5" || got.PeerCrashPercentile != 50 {
		t.Errorf("peer stats not persisted: %+v", got)
	}
}
