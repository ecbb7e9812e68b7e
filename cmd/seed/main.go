// Seed tool for exercising CarrierWatch against a synthetic carrier
// population.
//
// Usage:
//   go run cmd/seed/main.go -db ./carrierwatch.db -carriers 500
//
// The generated population embeds known patterns so a pipeline run has
// something to find:
//   - a chameleon succession (shared address, officer, and phone)
//   - a five-carrier fraud ring under two shared officer identities
//   - a clustered address with dozens of registrants
//   - namesake officers that must NOT be linked
// plus PPP, insurance, and authority-history fixtures for the join rules.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/sstransco/carrierwatch/internal/domain"
	"github.com/sstransco/carrierwatch/internal/repository"
)

func main() {
	var (
		dbPath   = flag.String("db", "./carrierwatch.db", "sqlite database path")
		driver   = flag.String("db-driver", "sqlite", "database driver: sqlite or postgres")
		carriers = flag.Int("carriers", 500, "number of background carriers")
		seed     = flag.Int64("seed", 42, "random seed for the background population")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	store, err := repository.New(domain.RepositoryConfig{
		Driver:     *driver,
		SQLitePath: *dbPath,
	})
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	rng := rand.New(rand.NewSource(*seed))

	start := time.Now()
	s := &seeder{store: store, rng: rng}

	if err := s.run(ctx, *carriers); err != nil {
		slog.Error("seeding failed", "error", err)
		os.Exit(1)
	}

	slog.Info("seeding complete",
		"carriers", s.carrierCount,
		"affiliations", s.affiliationCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

type seeder struct {
	store domain.Store
	rng   *rand.Rand

	carrierCount     int
	affiliationCount int
}

func (s *seeder) run(ctx context.Context, background int) error {
	if err := s.backgroundPopulation(ctx, background); err != nil {
		return err
	}
	if err := s.chameleonSuccession(ctx); err != nil {
		return err
	}
	if err := s.fraudRing(ctx); err != nil {
		return err
	}
	if err := s.clusteredAddress(ctx); err != nil {
		return err
	}
	if err := s.namesakeOfficers(ctx); err != nil {
		return err
	}
	return s.joinRuleFixtures(ctx)
}

func (s *seeder) addCarrier(ctx context.Context, c *domain.Carrier) error {
	if err := s.store.UpsertCarrier(ctx, c); err != nil {
		return fmt.Errorf("carrier %d: %w", c.DOTNumber, err)
	}
	s.carrierCount++
	return nil
}

func (s *seeder) addAffiliation(ctx context.Context, a *domain.Affiliation) error {
	if err := s.store.UpsertAffiliation(ctx, a); err != nil {
		return fmt.Errorf("affiliation %d/%s: %w", a.DOTNumber, a.OfficerName, err)
	}
	s.affiliationCount++
	return nil
}

var states = []string{"TX", "CA", "FL", "IL", "GA", "OH", "NJ", "PA"}

// backgroundPopulation generates unremarkable single-carrier operations
// spread across states and fleet sizes.
func (s *seeder) backgroundPopulation(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		dot := int64(100000 + i)
		grant := time.Now().UTC().AddDate(-1-s.rng.Intn(10), 0, -s.rng.Intn(300))
		units := 1 + s.rng.Intn(40)

		c := &domain.Carrier{
			DOTNumber:           dot,
			LegalName:           fmt.Sprintf("HAULING CO %d LLC", dot),
			PhysicalAddress:     fmt.Sprintf("%d COMMERCE DR", 100+i),
			PhysicalState:       states[s.rng.Intn(len(states))],
			PhysicalCountry:     "US",
			AddressHash:         fmt.Sprintf("bg-%d", dot),
			PowerUnits:          units,
			Drivers:             units + s.rng.Intn(5),
			OperatingStatus:     "AUTHORIZED FOR Property",
			OperatingStatusCode: "A",
			AuthorityGrantDate:  &grant,
			TotalInspections:    s.rng.Intn(30),
		}
		if c.TotalInspections > 0 {
			c.TotalCrashes = s.rng.Intn(3)
			c.VehicleOOSRate = float64(s.rng.Intn(25))
			c.DriverOOSRate = float64(s.rng.Intn(8))
		}
		if err := s.addCarrier(ctx, c); err != nil {
			return err
		}
		if err := s.addAffiliation(ctx, &domain.Affiliation{
			DOTNumber:   dot,
			OfficerName: fmt.Sprintf("OWNER %d", dot),
			Phone:       fmt.Sprintf("512555%04d", i%10000),
		}); err != nil {
			return err
		}
	}
	return nil
}

// chameleonSuccession plants a shut-down carrier reborn under a new DOT
// number at the same address with the same officer and phone.
func (s *seeder) chameleonSuccession(ctx context.Context) error {
	predGrant := time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC)
	succGrant := time.Date(2019, 8, 15, 0, 0, 0, 0, time.UTC)

	pred := &domain.Carrier{
		DOTNumber:           900001,
		LegalName:           "RED STAR TRANSPORT INC",
		PhysicalAddress:     "4410 SHADY OAK LN",
		PhysicalState:       "TX",
		PhysicalCountry:     "US",
		AddressHash:         "shady-oak",
		OperatingStatus:     "NOT AUTHORIZED",
		OperatingStatusCode: "I",
		AuthorityGrantDate:  &predGrant,
		TotalInspections:    22,
		TotalCrashes:        6,
		FatalCrashes:        1,
		VehicleOOSRate:      61,
	}
	succ := &domain.Carrier{
		DOTNumber:           900002,
		LegalName:           "RED STAR LOGISTICS LLC",
		PhysicalAddress:     "4410 SHADY OAK LN",
		PhysicalState:       "TX",
		PhysicalCountry:     "US",
		AddressHash:         "shady-oak",
		OperatingStatus:     "AUTHORIZED FOR Property",
		OperatingStatusCode: "A",
		AuthorityGrantDate:  &succGrant,
	}
	for _, c := range []*domain.Carrier{pred, succ} {
		if err := s.addCarrier(ctx, c); err != nil {
			return err
		}
		if err := s.addAffiliation(ctx, &domain.Affiliation{
			DOTNumber:   c.DOTNumber,
			OfficerName: "VIKTOR REZNIK",
			Phone:       "2145550911",
		}); err != nil {
			return err
		}
	}
	return nil
}

// fraudRing plants five carriers sharing two officer identities, with
// enough crash history to clear the medium-confidence bar.
func (s *seeder) fraudRing(ctx context.Context) error {
	officers := []struct {
		name  string
		phone string
	}{
		{"MARIA CONSTANTIN", "7135550230"},
		{"ION DRAGOMIR", "7135550231"},
	}

	for i := 0; i < 5; i++ {
		dot := int64(910001 + i)
		grant := time.Date(2021, time.Month(1+i), 10, 0, 0, 0, 0, time.UTC)
		c := &domain.Carrier{
			DOTNumber:           dot,
			LegalName:           fmt.Sprintf("EAGLE EXPRESS %d INC", i+1),
			PhysicalAddress:     fmt.Sprintf("%d GULFGATE BLVD", 2200+i),
			PhysicalState:       "TX",
			PhysicalCountry:     "US",
			AddressHash:         fmt.Sprintf("gulfgate-%d", i),
			OperatingStatus:     "AUTHORIZED FOR Property",
			OperatingStatusCode: "A",
			AuthorityGrantDate:  &grant,
			TotalInspections:    15,
			TotalCrashes:        2,
		}
		if err := s.addCarrier(ctx, c); err != nil {
			return err
		}
		for _, o := range officers {
			if err := s.addAffiliation(ctx, &domain.Affiliation{
				DOTNumber:   dot,
				OfficerName: o.name,
				Phone:       o.phone,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// clusteredAddress plants a virtual-office address with 30 registrants,
// a handful of them inactive.
func (s *seeder) clusteredAddress(ctx context.Context) error {
	if err := s.store.InsertAddressCluster(ctx, &domain.AddressClusterSize{
		AddressHash:  "suite-100",
		CarrierCount: 30,
	}); err != nil {
		return err
	}

	for i := 0; i < 30; i++ {
		dot := int64(920001 + i)
		status, code := "AUTHORIZED FOR Property", "A"
		if i%10 == 0 {
			status, code = "NOT AUTHORIZED", "I"
		}
		grant := time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)
		c := &domain.Carrier{
			DOTNumber:           dot,
			LegalName:           fmt.Sprintf("SUITE TENANT %d LLC", i+1),
			PhysicalAddress:     "1600 BROADWAY STE 100",
			PhysicalState:       "CO",
			PhysicalCountry:     "US",
			AddressHash:         "suite-100",
			OperatingStatus:     status,
			OperatingStatusCode: code,
			AuthorityGrantDate:  &grant,
		}
		if err := s.addCarrier(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// namesakeOfficers plants two unrelated carriers under the same common
// officer name with no corroborating contact data. The resolver must keep
// them apart.
func (s *seeder) namesakeOfficers(ctx context.Context) error {
	for i, state := range []string{"FL", "WA"} {
		dot := int64(930001 + i)
		grant := time.Date(2018, 1, 5, 0, 0, 0, 0, time.UTC)
		c := &domain.Carrier{
			DOTNumber:           dot,
			LegalName:           fmt.Sprintf("SMITH TRUCKING %s", state),
			PhysicalAddress:     fmt.Sprintf("%d PORT RD", 10+i),
			PhysicalState:       state,
			PhysicalCountry:     "US",
			AddressHash:         fmt.Sprintf("smith-%s", state),
			OperatingStatus:     "AUTHORIZED FOR Property",
			OperatingStatusCode: "A",
			AuthorityGrantDate:  &grant,
		}
		if err := s.addCarrier(ctx, c); err != nil {
			return err
		}
		if err := s.addAffiliation(ctx, &domain.Affiliation{
			DOTNumber:   dot,
			OfficerName: "JOHN SMITH",
		}); err != nil {
			return err
		}
	}
	return nil
}

// joinRuleFixtures plants the collaborator-data rows the join rules need:
// a lapsed insurance policy, a revoke-then-reissue authority history, PPP
// loans, and ELD violation detail.
func (s *seeder) joinRuleFixtures(ctx context.Context) error {
	grant := time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)
	c := &domain.Carrier{
		DOTNumber:           940001,
		LegalName:           "PHOENIX CARRIERS INC",
		PhysicalAddress:     "77 HARBOR WAY",
		PhysicalState:       "NJ",
		PhysicalCountry:     "US",
		AddressHash:         "harbor-77",
		OperatingStatus:     "AUTHORIZED FOR Property",
		OperatingStatusCode: "A",
		AuthorityGrantDate:  &grant,
		PPPLoanCount:        1,
		PPPLoanTotal:        180000,
		PPPForgivenTotal:    180000,
		ELDViolations:       7,
		TotalInspections:    12,
	}
	if err := s.addCarrier(ctx, c); err != nil {
		return err
	}

	revoked := time.Date(2022, 11, 20, 0, 0, 0, 0, time.UTC)
	if err := s.store.InsertAuthorityEvent(ctx, &domain.AuthorityEvent{
		DOTNumber:         940001,
		AuthorityType:     "common",
		RevocationPending: true,
		EventDate:         revoked,
	}); err != nil {
		return err
	}

	effective := time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)
	cancelled := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	if err := s.store.InsertInsurancePolicy(ctx, &domain.InsurancePolicy{
		DOTNumber:     940001,
		Company:       "ATLAS MUTUAL",
		PolicyNumber:  "BIPD-44071",
		EffectiveDate: &effective,
		CancelDate:    &cancelled,
	}); err != nil {
		return err
	}

	approved := time.Date(2020, 5, 2, 0, 0, 0, 0, time.UTC)
	if err := s.store.InsertPPPLoan(ctx, &domain.PPPLoan{
		DOTNumber:         940001,
		LoanAmount:        180000,
		ForgivenessAmount: 180000,
		DateApproved:      &approved,
		LoanStatus:        "Paid in Full",
		JobsReported:      12,
	}); err != nil {
		return err
	}

	return s.store.InsertViolation(ctx, &domain.ViolationRecord{
		DOTNumber:     940001,
		ViolationCode: "395.8A",
		Count:         7,
	})
}
