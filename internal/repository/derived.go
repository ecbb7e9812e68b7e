package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sstransco/carrierwatch/internal/domain"
)

// Derived-table access: identity clusters, chameleon pairs, fraud rings,
// peer benchmarks, and the ledger candidate queries. Derived tables are
// replaced wholesale each run, so writes are truncate-then-insert.

const foreignCountryPredicate = `COALESCE(%s.physical_country, '') NOT IN ('', 'US', 'USA')`
const domesticCountryPredicate = `COALESCE(%s.physical_country, '') IN ('', 'US', 'USA')`

// TruncateClusters clears the identity cluster table before a rebuild.
func (s *SQLStore) TruncateClusters(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM officer_network_clusters`)
	return err
}

// InsertClusters writes a batch of identity clusters in one transaction.
func (s *SQLStore) InsertClusters(ctx context.Context, clusters []*domain.IdentityCluster) error {
	if len(clusters) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := s.rebind(`
		INSERT INTO officer_network_clusters (
			officer_name_normalized, cluster_index, member_dot_numbers,
			carrier_count, link_signals, total_crashes, fatal_crashes,
			total_units, avg_risk_score, ppp_total, states
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	for _, c := range clusters {
		members, _ := json.Marshal(c.MemberDOTs)
		signals, _ := json.Marshal(c.LinkSignals)
		states, _ := json.Marshal(c.States)
		if c.States == nil {
			states = []byte("[]")
		}

		if _, err := tx.ExecContext(ctx, query,
			c.OfficerName, c.ClusterIndex, string(members),
			c.CarrierCount, string(signals), c.TotalCrashes, c.FatalCrashes,
			c.TotalUnits, c.AvgRiskScore, c.PPPTotal, string(states),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

const clusterColumns = `officer_name_normalized, cluster_index, member_dot_numbers,
	carrier_count, link_signals, total_crashes, fatal_crashes,
	total_units, avg_risk_score, ppp_total, states`

// A singleton cluster always stores exactly ["name_only"], so confirmed
// membership is expressible as a plain predicate.
const confirmedClusterPredicate = `carrier_count >= 2 AND link_signals != '["name_only"]'`

func scanCluster(row rowScanner) (*domain.IdentityCluster, error) {
	var c domain.IdentityCluster
	var members, signals, states string

	err := row.Scan(
		&c.OfficerName, &c.ClusterIndex, &members,
		&c.CarrierCount, &signals, &c.TotalCrashes, &c.FatalCrashes,
		&c.TotalUnits, &c.AvgRiskScore, &c.PPPTotal, &states,
	)
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(members), &c.MemberDOTs)
	json.Unmarshal([]byte(signals), &c.LinkSignals)
	json.Unmarshal([]byte(states), &c.States)
	return &c, nil
}

// ListConfirmedClusters returns clusters with corroborated shared control,
// largest first.
func (s *SQLStore) ListConfirmedClusters(ctx context.Context) ([]*domain.IdentityCluster, error) {
	query := `
		SELECT ` + clusterColumns + `
		FROM officer_network_clusters
		WHERE ` + confirmedClusterPredicate + `
		ORDER BY carrier_count DESC, officer_name_normalized, cluster_index
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clusters []*domain.IdentityCluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, c)
	}
	return clusters, rows.Err()
}

// ListClustersForOfficer returns all of one officer name's clusters in
// index order.
func (s *SQLStore) ListClustersForOfficer(ctx context.Context, officerName string) ([]*domain.IdentityCluster, error) {
	query := `
		SELECT ` + clusterColumns + `
		FROM officer_network_clusters
		WHERE officer_name_normalized = ?
		ORDER BY cluster_index
	`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), officerName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clusters []*domain.IdentityCluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, c)
	}
	return clusters, rows.Err()
}

// CountConfirmedClusters reports whether (and how much) corroborated
// cluster data exists, for the ring detector's capability check.
func (s *SQLStore) CountConfirmedClusters(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM officer_network_clusters WHERE `+confirmedClusterPredicate,
	).Scan(&n)
	return n, err
}

// TruncateChameleonPairs clears the chameleon table before a rebuild.
func (s *SQLStore) TruncateChameleonPairs(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chameleon_pairs`)
	return err
}

// InsertChameleonPairs writes a batch of detected pairs in one transaction.
func (s *SQLStore) InsertChameleonPairs(ctx context.Context, pairs []*domain.ChameleonPair) error {
	if len(pairs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := s.rebind(`
		INSERT INTO chameleon_pairs (
			predecessor_dot, successor_dot, deactivation_date, activation_date,
			days_gap, match_signals, signal_count, confidence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)

	for _, p := range pairs {
		signals, _ := json.Marshal(p.MatchSignals)
		if _, err := tx.ExecContext(ctx, query,
			p.PredecessorDOT, p.SuccessorDOT, p.DeactivationDate, p.ActivationDate,
			p.DaysGap, string(signals), p.SignalCount, string(p.Confidence),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListChameleonPairs returns all stored pairs ordered by key.
func (s *SQLStore) ListChameleonPairs(ctx context.Context) ([]*domain.ChameleonPair, error) {
	query := `
		SELECT predecessor_dot, successor_dot, deactivation_date, activation_date,
		       days_gap, match_signals, signal_count, confidence
		FROM chameleon_pairs
		ORDER BY predecessor_dot, successor_dot
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []*domain.ChameleonPair
	for rows.Next() {
		var p domain.ChameleonPair
		var signals string
		if err := rows.Scan(
			&p.PredecessorDOT, &p.SuccessorDOT, &p.DeactivationDate, &p.ActivationDate,
			&p.DaysGap, &signals, &p.SignalCount, &p.Confidence,
		); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(signals), &p.MatchSignals)
		pairs = append(pairs, &p)
	}
	return pairs, rows.Err()
}

// Succession eligibility: the predecessor is no longer active, the
// successor holds current authority, and both grant dates are known.
// The gap bound is applied in Go so date arithmetic stays portable.
const successionPredicate = `
	COALESCE(p.operating_status_code, '') != 'A'
	AND UPPER(COALESCE(sc.operating_status, '')) LIKE 'AUTHORIZED%'
	AND p.authority_grant_date IS NOT NULL
	AND sc.authority_grant_date IS NOT NULL
	AND sc.authority_grant_date > p.authority_grant_date
`

func (s *SQLStore) listSuccessions(ctx context.Context, query string, maxGapDays int, seedSignal string) ([]*domain.ChameleonPair, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []*domain.ChameleonPair
	for rows.Next() {
		var p domain.ChameleonPair
		if err := rows.Scan(&p.PredecessorDOT, &p.SuccessorDOT, &p.DeactivationDate, &p.ActivationDate); err != nil {
			return nil, err
		}

		gap := int(p.ActivationDate.Sub(p.DeactivationDate).Hours() / 24)
		if gap <= 0 || gap > maxGapDays {
			continue
		}
		p.DaysGap = gap
		p.AddSignal(seedSignal)
		pairs = append(pairs, &p)
	}
	return pairs, rows.Err()
}

// ListSharedAddressSuccessions returns eligible successions where both
// carriers sit at the same normalized address.
func (s *SQLStore) ListSharedAddressSuccessions(ctx context.Context, maxGapDays int) ([]*domain.ChameleonPair, error) {
	query := `
		SELECT p.dot_number, sc.dot_number, p.authority_grant_date, sc.authority_grant_date
		FROM carriers p
		JOIN carriers sc ON sc.address_hash = p.address_hash AND sc.dot_number != p.dot_number
		WHERE COALESCE(p.address_hash, '') != ''
		AND ` + successionPredicate + `
		ORDER BY p.dot_number, sc.dot_number
	`
	return s.listSuccessions(ctx, query, maxGapDays, domain.SignalAddress)
}

// ListSharedOfficerSuccessions returns eligible successions where the two
// carriers share at least one officer name.
func (s *SQLStore) ListSharedOfficerSuccessions(ctx context.Context, maxGapDays int) ([]*domain.ChameleonPair, error) {
	query := `
		SELECT DISTINCT p.dot_number, sc.dot_number, p.authority_grant_date, sc.authority_grant_date
		FROM carrier_principals pp
		JOIN carrier_principals sp
			ON sp.officer_name_normalized = pp.officer_name_normalized
			AND sp.dot_number != pp.dot_number
		JOIN carriers p ON p.dot_number = pp.dot_number
		JOIN carriers sc ON sc.dot_number = sp.dot_number
		WHERE ` + successionPredicate + `
		ORDER BY p.dot_number, sc.dot_number
	`
	return s.listSuccessions(ctx, query, maxGapDays, domain.SignalOfficer)
}

// SharedOfficerPairs reports which of the given carriers share an officer
// name, as canonical unordered pairs.
func (s *SQLStore) SharedOfficerPairs(ctx context.Context, dots []int64) (map[domain.DOTPair]struct{}, error) {
	names, err := s.ListOfficerNames(ctx, dots)
	if err != nil {
		return nil, err
	}

	byName := make(map[string][]int64)
	for dot, officers := range names {
		for _, name := range officers {
			byName[name] = append(byName[name], dot)
		}
	}

	pairs := make(map[domain.DOTPair]struct{})
	for _, members := range byName {
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				pairs[domain.NewDOTPair(members[i], members[j])] = struct{}{}
			}
		}
	}
	return pairs, nil
}

// ListPhones returns each carrier's phone number, skipping blanks.
func (s *SQLStore) ListPhones(ctx context.Context, dots []int64) (map[int64]string, error) {
	out := make(map[int64]string)
	for _, chunk := range chunkInt64s(dots, inChunkSize) {
		query := `
			SELECT dot_number, phone FROM carriers
			WHERE dot_number IN (` + placeholders(len(chunk)) + `)
			AND COALESCE(phone, '') != ''
		`

		rows, err := s.db.QueryContext(ctx, s.rebind(query), int64Args(chunk)...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var dot int64
			var phone string
			if err := rows.Scan(&dot, &phone); err != nil {
				rows.Close()
				return nil, err
			}
			out[dot] = phone
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

// confidenceTiers expands a minimum tier into its SQL IN-list.
func confidenceTiers(min domain.Confidence) []string {
	switch min {
	case domain.ConfidenceHigh:
		return []string{string(domain.ConfidenceHigh)}
	case domain.ConfidenceMedium:
		return []string{string(domain.ConfidenceMedium), string(domain.ConfidenceHigh)}
	default:
		return []string{string(domain.ConfidenceLow), string(domain.ConfidenceMedium), string(domain.ConfidenceHigh)}
	}
}

// ListChameleonDOTs returns the distinct successor (or predecessor) side of
// pairs at or above the given confidence.
func (s *SQLStore) ListChameleonDOTs(ctx context.Context, successor bool, min domain.Confidence) ([]int64, error) {
	column := "predecessor_dot"
	if successor {
		column = "successor_dot"
	}

	tiers := confidenceTiers(min)
	query := fmt.Sprintf(`
		SELECT DISTINCT %s FROM chameleon_pairs
		WHERE confidence IN (%s)
		ORDER BY %s
	`, column, placeholders(len(tiers)), column)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), stringArgs(tiers)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dots []int64
	for rows.Next() {
		var dot int64
		if err := rows.Scan(&dot); err != nil {
			return nil, err
		}
		dots = append(dots, dot)
	}
	return dots, rows.Err()
}

// TruncateRings clears the fraud ring table before a rebuild.
func (s *SQLStore) TruncateRings(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM fraud_rings`)
	return err
}

// InsertRings writes a batch of detected rings in one transaction.
func (s *SQLStore) InsertRings(ctx context.Context, rings []*domain.FraudRing) error {
	if len(rings) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := s.rebind(`
		INSERT INTO fraud_rings (
			id, carrier_dots, officer_names, shared_addresses, carrier_count,
			active_count, total_crashes, total_fatalities, combined_risk,
			detection_signals, confidence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	for _, r := range rings {
		dots, _ := json.Marshal(r.CarrierDOTs)
		officers, _ := json.Marshal(r.OfficerNames)
		addresses, _ := json.Marshal(r.SharedAddresses)
		if r.SharedAddresses == nil {
			addresses = []byte("[]")
		}
		signals, _ := json.Marshal(r.DetectionSignals)

		if _, err := tx.ExecContext(ctx, query,
			r.ID, string(dots), string(officers), string(addresses), r.CarrierCount,
			r.ActiveCount, r.TotalCrashes, r.TotalFatalities, r.CombinedRisk,
			string(signals), string(r.Confidence),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListRings returns rings at or above the given confidence, largest first.
func (s *SQLStore) ListRings(ctx context.Context, min domain.Confidence) ([]*domain.FraudRing, error) {
	tiers := confidenceTiers(min)
	query := `
		SELECT id, carrier_dots, officer_names, shared_addresses, carrier_count,
		       active_count, total_crashes, total_fatalities, combined_risk,
		       detection_signals, confidence
		FROM fraud_rings
		WHERE confidence IN (` + placeholders(len(tiers)) + `)
		ORDER BY carrier_count DESC, id
	`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), stringArgs(tiers)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rings []*domain.FraudRing
	for rows.Next() {
		var r domain.FraudRing
		var dots, officers, addresses, signals string
		if err := rows.Scan(
			&r.ID, &dots, &officers, &addresses, &r.CarrierCount,
			&r.ActiveCount, &r.TotalCrashes, &r.TotalFatalities, &r.CombinedRisk,
			&signals, &r.Confidence,
		); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(dots), &r.CarrierDOTs)
		json.Unmarshal([]byte(officers), &r.OfficerNames)
		json.Unmarshal([]byte(addresses), &r.SharedAddresses)
		json.Unmarshal([]byte(signals), &r.DetectionSignals)
		rings = append(rings, &r)
	}
	return rings, rows.Err()
}

// candidateDOTs runs a candidate query returning a single dot_number column.
func (s *SQLStore) candidateDOTs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dots []int64
	for rows.Next() {
		var dot int64
		if err := rows.Scan(&dot); err != nil {
			return nil, err
		}
		dots = append(dots, dot)
	}
	return dots, rows.Err()
}

// AddressClusterCandidates returns unflagged carriers sitting at an address
// shared by at least minSize carriers.
func (s *SQLStore) AddressClusterCandidates(ctx context.Context, minSize int, excludeFlags []string, limit int) ([]int64, error) {
	query := `
		SELECT c.dot_number
		FROM carriers c
		JOIN address_clusters ac ON ac.address_hash = c.address_hash
		WHERE COALESCE(c.address_hash, '') != ''
		AND ac.carrier_count >= ?` + flagGuard("c.risk_flags", excludeFlags) + `
		ORDER BY c.dot_number
		LIMIT ?
	`
	return s.candidateDOTs(ctx, query, minSize, limit)
}

// OfficerCountCandidates returns unflagged carriers having an officer whose
// raw-name portfolio spans at least minCarriers carriers.
func (s *SQLStore) OfficerCountCandidates(ctx context.Context, minCarriers int, excludeFlags []string, limit int) ([]int64, error) {
	query := `
		SELECT DISTINCT c.dot_number
		FROM carriers c
		JOIN carrier_principals cp ON cp.dot_number = c.dot_number
		JOIN (
			SELECT officer_name_normalized AS name, COUNT(DISTINCT dot_number) AS carrier_count
			FROM carrier_principals
			GROUP BY officer_name_normalized
		) oc ON oc.name = cp.officer_name_normalized
		WHERE oc.carrier_count >= ?` + flagGuard("c.risk_flags", excludeFlags) + `
		ORDER BY c.dot_number
		LIMIT ?
	`
	return s.candidateDOTs(ctx, query, minCarriers, limit)
}

// ForeignLinkedOfficerCandidates returns unflagged domestic carriers that
// share an officer name with a foreign-domiciled carrier.
func (s *SQLStore) ForeignLinkedOfficerCandidates(ctx context.Context, limit int) ([]int64, error) {
	query := `
		SELECT DISTINCT c.dot_number
		FROM carriers c
		JOIN carrier_principals cp ON cp.dot_number = c.dot_number
		JOIN carrier_principals fp
			ON fp.officer_name_normalized = cp.officer_name_normalized
			AND fp.dot_number != cp.dot_number
		JOIN carriers f ON f.dot_number = fp.dot_number
		WHERE ` + fmt.Sprintf(domesticCountryPredicate, "c") + `
		AND ` + fmt.Sprintf(foreignCountryPredicate, "f") +
		flagGuard("c.risk_flags", []string{domain.FlagForeignLinkedOfficer}) + `
		ORDER BY c.dot_number
		LIMIT ?
	`
	return s.candidateDOTs(ctx, query, limit)
}

// ForeignLinkedAddressCandidates returns unflagged domestic carriers that
// share a normalized address with a foreign-domiciled carrier.
func (s *SQLStore) ForeignLinkedAddressCandidates(ctx context.Context, limit int) ([]int64, error) {
	query := `
		SELECT DISTINCT c.dot_number
		FROM carriers c
		JOIN carriers f ON f.address_hash = c.address_hash AND f.dot_number != c.dot_number
		WHERE COALESCE(c.address_hash, '') != ''
		AND ` + fmt.Sprintf(domesticCountryPredicate, "c") + `
		AND ` + fmt.Sprintf(foreignCountryPredicate, "f") +
		flagGuard("c.risk_flags", []string{domain.FlagForeignLinkedAddress}) + `
		ORDER BY c.dot_number
		LIMIT ?
	`
	return s.candidateDOTs(ctx, query, limit)
}

// AuthorityRevokedCandidates returns unflagged carriers holding current
// authority granted after a recorded pending revocation.
func (s *SQLStore) AuthorityRevokedCandidates(ctx context.Context, limit int) ([]int64, error) {
	query := `
		SELECT c.dot_number
		FROM carriers c
		WHERE UPPER(COALESCE(c.operating_status, '')) LIKE 'AUTHORIZED%'
		AND c.authority_grant_date IS NOT NULL
		AND EXISTS (
			SELECT 1 FROM authority_history ah
			WHERE ah.dot_number = c.dot_number
			AND ah.revocation_pending = 1
			AND ah.event_date < c.authority_grant_date
		)` + flagGuard("c.risk_flags", []string{domain.FlagAuthorityRevokedReissued}) + `
		ORDER BY c.dot_number
		LIMIT ?
	`
	return s.candidateDOTs(ctx, query, limit)
}

// InsuranceLapseCandidates returns unflagged carriers still holding
// authority whose insurance filings are all cancelled.
func (s *SQLStore) InsuranceLapseCandidates(ctx context.Context, limit int) ([]int64, error) {
	query := `
		SELECT c.dot_number
		FROM carriers c
		WHERE UPPER(COALESCE(c.operating_status, '')) LIKE 'AUTHORIZED%'
		AND EXISTS (
			SELECT 1 FROM insurance_policies ip
			WHERE ip.dot_number = c.dot_number AND ip.cancel_date IS NOT NULL
		)
		AND NOT EXISTS (
			SELECT 1 FROM insurance_policies ip
			WHERE ip.dot_number = c.dot_number AND ip.cancel_date IS NULL
		)` + flagGuard("c.risk_flags", []string{domain.FlagInsuranceLapse}) + `
		ORDER BY c.dot_number
		LIMIT ?
	`
	return s.candidateDOTs(ctx, query, limit)
}

// PPPForgivenAtClusterCandidates returns unflagged carriers with forgiven
// relief loans sitting at a heavily clustered address.
func (s *SQLStore) PPPForgivenAtClusterCandidates(ctx context.Context, minClusterSize, limit int) ([]int64, error) {
	query := `
		SELECT c.dot_number
		FROM carriers c
		JOIN address_clusters ac ON ac.address_hash = c.address_hash
		WHERE COALESCE(c.address_hash, '') != ''
		AND c.ppp_forgiven_total > 0
		AND ac.carrier_count >= ?` + flagGuard("c.risk_flags", []string{domain.FlagPPPForgivenAtCluster}) + `
		ORDER BY c.dot_number
		LIMIT ?
	`
	return s.candidateDOTs(ctx, query, minClusterSize, limit)
}

// InactiveAtClusteredAddressCandidates returns unflagged inactive carriers
// sitting at a heavily clustered address.
func (s *SQLStore) InactiveAtClusteredAddressCandidates(ctx context.Context, minClusterSize, limit int) ([]int64, error) {
	query := `
		SELECT c.dot_number
		FROM carriers c
		JOIN address_clusters ac ON ac.address_hash = c.address_hash
		WHERE COALESCE(c.address_hash, '') != ''
		AND COALESCE(c.operating_status_code, '') != 'A'
		AND ac.carrier_count >= ?` + flagGuard("c.risk_flags", []string{domain.FlagInactiveAtClusteredAddress}) + `
		ORDER BY c.dot_number
		LIMIT ?
	`
	return s.candidateDOTs(ctx, query, minClusterSize, limit)
}

// HasViolationData reports whether any inspection violation detail exists.
// Rules that depend on it degrade to no-ops when the feed is absent.
func (s *SQLStore) HasViolationData(ctx context.Context) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM (SELECT 1 FROM inspection_violations LIMIT 1) t`,
	).Scan(&n)
	return n > 0, err
}

// AssignFleetBuckets sets fleet_size_bucket for every carrier that does
// not have one yet, including the 'unknown' bucket for missing fleet data.
func (s *SQLStore) AssignFleetBuckets(ctx context.Context) (int64, error) {
	query := `
		UPDATE carriers SET fleet_size_bucket = CASE
			WHEN power_units <= 0 THEN 'unknown'
			WHEN power_units = 1 THEN '1'
			WHEN power_units <= 5 THEN '2-5'
			WHEN power_units <= 20 THEN '6-20'
			WHEN power_units <= 100 THEN '21-100'
			WHEN power_units <= 500 THEN '101-500'
			ELSE '500+'
		END
		WHERE COALESCE(fleet_size_bucket, '') = ''
	`
	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListBenchmarkRows returns the peer-benchmark inputs for every carrier
// with inspection history.
func (s *SQLStore) ListBenchmarkRows(ctx context.Context) ([]domain.BenchmarkRow, error) {
	query := `
		SELECT dot_number, power_units, total_crashes, vehicle_oos_rate, total_inspections
		FROM carriers
		WHERE total_inspections > 0
		ORDER BY dot_number
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BenchmarkRow
	for rows.Next() {
		var r domain.BenchmarkRow
		if err := rows.Scan(&r.DOTNumber, &r.PowerUnits, &r.TotalCrashes, &r.VehicleOOSRate, &r.TotalInspections); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdatePeerStats writes computed benchmark outputs back per carrier.
func (s *SQLStore) UpdatePeerStats(ctx context.Context, stats []domain.PeerStat) error {
	if len(stats) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := s.rebind(`
		UPDATE carriers
		SET fleet_size_bucket = ?, peer_crash_percentile = ?, peer_oos_percentile = ?
		WHERE dot_number = ?
	`)

	for _, st := range stats {
		if _, err := tx.ExecContext(ctx, query,
			st.FleetSizeBucket, st.CrashPercentile, st.OOSPercentile, st.DOTNumber,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// InsertAddressCluster stores a precomputed address cluster size.
func (s *SQLStore) InsertAddressCluster(ctx context.Context, cluster *domain.AddressClusterSize) error {
	if cluster == nil || cluster.AddressHash == "" {
		return fmt.Errorf("%w: address hash is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO address_clusters (address_hash, carrier_count)
		VALUES (?, ?)
		ON CONFLICT(address_hash) DO UPDATE SET carrier_count = excluded.carrier_count
	`
	_, err := s.db.ExecContext(ctx, s.rebind(query), cluster.AddressHash, cluster.CarrierCount)
	return err
}

// InsertAuthorityEvent stores one authority history row.
func (s *SQLStore) InsertAuthorityEvent(ctx context.Context, ev *domain.AuthorityEvent) error {
	if ev == nil || ev.DOTNumber <= 0 {
		return fmt.Errorf("%w: valid dot_number is required", ErrInvalidInput)
	}

	pending := 0
	if ev.RevocationPending {
		pending = 1
	}

	query := `
		INSERT INTO authority_history (dot_number, authority_type, revocation_pending, event_date)
		VALUES (?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, s.rebind(query), ev.DOTNumber, ev.AuthorityType, pending, ev.EventDate)
	return err
}

// InsertInsurancePolicy stores one insurance filing row.
func (s *SQLStore) InsertInsurancePolicy(ctx context.Context, p *domain.InsurancePolicy) error {
	if p == nil || p.DOTNumber <= 0 {
		return fmt.Errorf("%w: valid dot_number is required", ErrInvalidInput)
	}

	var effective, cancel any
	if p.EffectiveDate != nil {
		effective = *p.EffectiveDate
	}
	if p.CancelDate != nil {
		cancel = *p.CancelDate
	}

	query := `
		INSERT INTO insurance_policies (dot_number, company, policy_number, effective_date, cancel_date)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, s.rebind(query), p.DOTNumber, p.Company, p.PolicyNumber, effective, cancel)
	return err
}

// InsertPPPLoan stores one matched relief loan row.
func (s *SQLStore) InsertPPPLoan(ctx context.Context, l *domain.PPPLoan) error {
	if l == nil || l.DOTNumber <= 0 {
		return fmt.Errorf("%w: valid dot_number is required", ErrInvalidInput)
	}

	var approved any
	if l.DateApproved != nil {
		approved = *l.DateApproved
	}

	query := `
		INSERT INTO ppp_loans (dot_number, loan_amount, forgiveness_amount, date_approved, loan_status, lender, jobs_reported)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, s.rebind(query),
		l.DOTNumber, l.LoanAmount, l.ForgivenessAmount, approved, l.LoanStatus, l.Lender, l.JobsReported,
	)
	return err
}

// InsertViolation stores one inspection violation detail row.
func (s *SQLStore) InsertViolation(ctx context.Context, v *domain.ViolationRecord) error {
	if v == nil || v.DOTNumber <= 0 {
		return fmt.Errorf("%w: valid dot_number is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO inspection_violations (dot_number, violation_code, violation_count)
		VALUES (?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, s.rebind(query), v.DOTNumber, v.ViolationCode, v.Count)
	return err
}
