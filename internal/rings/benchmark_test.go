package rings

import (
	"context"
	"testing"

	"github.com/sstransco/carrierwatch/internal/domain"
)

func seedBenchmarkCarrier(t *testing.T, store domain.Store, dot int64, units, inspections, crashes int, oosRate float64) {
	t.Helper()
	if err := store.UpsertCarrier(context.Background(), &domain.Carrier{
		DOTNumber:        dot,
		LegalName:        "BENCH CARRIER",
		PowerUnits:       units,
		TotalInspections: inspections,
		TotalCrashes:     crashes,
		VehicleOOSRate:   oosRate,
	}); err != nil {
		t.Fatalf("UpsertCarrier failed: %v", err)
	}
}

func TestBenchmarkerPercentRank(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Three same-bucket carriers (2-5 units) with 0, 2, 5 crashes.
	seedBenchmarkCarrier(t, store, 1, 3, 10, 0, 0)
	seedBenchmarkCarrier(t, store, 2, 3, 10, 2, 10)
	seedBenchmarkCarrier(t, store, 3, 3, 10, 5, 20)
	// Different bucket, must not affect ranks above.
	seedBenchmarkCarrier(t, store, 4, 200, 10, 100, 90)
	// No inspections: bucketed but never ranked.
	seedBenchmarkCarrier(t, store, 5, 3, 0, 50, 99)
	// No fleet data: 'unknown' bucket, never ranked despite inspections.
	seedBenchmarkCarrier(t, store, 6, 0, 10, 80, 95)

	b := NewBenchmarker(store, domain.DefaultConfig().Pipeline, testLogger())
	result, err := b.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Bucketed != 6 {
		t.Errorf("expected 6 bucketed carriers, got %d", result.Bucketed)
	}
	if result.Carriers != 4 {
		t.Errorf("expected 4 benchmarked carriers, got %d", result.Carriers)
	}
	if result.Buckets != 2 {
		t.Errorf("expected 2 buckets, got %d", result.Buckets)
	}

	expect := map[int64]float64{1: 0, 2: 50, 3: 100}
	for dot, want := range expect {
		c, err := store.GetCarrier(ctx, dot)
		if err != nil {
			t.Fatalf("GetCarrier failed: %v", err)
		}
		if c.FleetSizeBucket != "2-5" {
			t.Errorf("carrier %d: expected bucket 2-5, got %s", dot, c.FleetSizeBucket)
		}
		if c.PeerCrashPercentile != want {
			t.Errorf("carrier %d: expected crash percentile %.0f, got %.2f", dot, want, c.PeerCrashPercentile)
		}
	}

	// Singleton bucket ranks zero.
	solo, err := store.GetCarrier(ctx, 4)
	if err != nil {
		t.Fatalf("GetCarrier failed: %v", err)
	}
	if solo.FleetSizeBucket != "101-500" || solo.PeerCrashPercentile != 0 {
		t.Errorf("singleton bucket should rank 0: %+v", solo)
	}

	// Uninspected carrier gets a bucket but no percentiles.
	skipped, err := store.GetCarrier(ctx, 5)
	if err != nil {
		t.Fatalf("GetCarrier failed: %v", err)
	}
	if skipped.FleetSizeBucket != "2-5" {
		t.Errorf("uninspected carrier should still be bucketed, got %q", skipped.FleetSizeBucket)
	}
	if skipped.PeerCrashPercentile != 0 || skipped.PeerOOSPercentile != 0 {
		t.Errorf("uninspected carrier must not be ranked: %+v", skipped)
	}

	// Unknown-bucket carrier is never ranked, even with inspections.
	unknown, err := store.GetCarrier(ctx, 6)
	if err != nil {
		t.Fatalf("GetCarrier failed: %v", err)
	}
	if unknown.FleetSizeBucket != "unknown" {
		t.Errorf("expected unknown bucket, got %q", unknown.FleetSizeBucket)
	}
	if unknown.PeerCrashPercentile != 0 || unknown.PeerOOSPercentile != 0 {
		t.Errorf("unknown bucket must not be ranked: %+v", unknown)
	}
}

func TestPercentRanksTies(t *testing.T) {
	rows := []domain.BenchmarkRow{
		{DOTNumber: 1, TotalCrashes: 0},
		{DOTNumber: 2, TotalCrashes: 0},
		{DOTNumber: 3, TotalCrashes: 4},
	}
	ranks := percentRanks(rows, func(r domain.BenchmarkRow) float64 { return float64(r.TotalCrashes) })

	if ranks[0] != 0 || ranks[1] != 0 {
		t.Errorf("tied minimum values must share rank 0, got %v", ranks)
	}
	if ranks[2] != 100 {
		t.Errorf("maximum value must rank 100, got %v", ranks)
	}
}

func TestFleetSizeBuckets(t *testing.T) {
	cases := map[int]string{
		0:    "unknown",
		1:    "1",
		5:    "2-5",
		20:   "6-20",
		100:  "21-100",
		500:  "101-500",
		1000: "500+",
	}
	for units, want := range cases {
		if got := domain.FleetSizeBucket(units); got != want {
			t.Errorf("FleetSizeBucket(%d) = %s, want %s", units, got, want)
		}
	}
}
