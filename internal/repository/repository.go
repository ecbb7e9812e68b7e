// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sstransco/carrierwatch/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLStore implements domain.Store using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// inChunkSize bounds IN-clause parameter lists so statements stay under
// driver placeholder limits.
const inChunkSize = 900

// New creates a new store based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Store, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	store := &SQLStore{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (s *SQLStore) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := s.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

const carrierColumns = `dot_number, legal_name, dba_name, physical_address, physical_city,
	physical_state, physical_zip, physical_country, mailing_country, phone,
	power_units, drivers, operating_status, operating_status_code,
	authority_grant_date, safety_rating, total_inspections, total_crashes,
	fatal_crashes, vehicle_oos_rate, driver_oos_rate, eld_violations,
	ppp_loan_count, ppp_loan_total, ppp_forgiven_total, address_hash,
	fleet_size_bucket, peer_crash_percentile, peer_oos_percentile,
	risk_score, risk_flags`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCarrier(row rowScanner) (*domain.Carrier, error) {
	var c domain.Carrier
	var grantDate sql.NullTime
	var flags string

	err := row.Scan(
		&c.DOTNumber, &c.LegalName, &c.DBAName, &c.PhysicalAddress, &c.PhysicalCity,
		&c.PhysicalState, &c.PhysicalZip, &c.PhysicalCountry, &c.MailingCountry, &c.Phone,
		&c.PowerUnits, &c.Drivers, &c.OperatingStatus, &c.OperatingStatusCode,
		&grantDate, &c.SafetyRating, &c.TotalInspections, &c.TotalCrashes,
		&c.FatalCrashes, &c.VehicleOOSRate, &c.DriverOOSRate, &c.ELDViolations,
		&c.PPPLoanCount, &c.PPPLoanTotal, &c.PPPForgivenTotal, &c.AddressHash,
		&c.FleetSizeBucket, &c.PeerCrashPercentile, &c.PeerOOSPercentile,
		&c.RiskScore, &flags,
	)
	if err != nil {
		return nil, err
	}

	if grantDate.Valid {
		t := grantDate.Time
		c.AuthorityGrantDate = &t
	}
	if flags != "" {
		json.Unmarshal([]byte(flags), &c.RiskFlags)
	}

	return &c, nil
}

// UpsertCarrier inserts or refreshes a carrier's base attributes. The
// ledger-owned fields (risk_score, risk_flags) and the benchmark outputs
// are never overwritten on conflict.
func (s *SQLStore) UpsertCarrier(ctx context.Context, c *domain.Carrier) error {
	if c == nil || c.DOTNumber <= 0 {
		return fmt.Errorf("%w: valid dot_number is required", ErrInvalidInput)
	}

	flags, _ := json.Marshal(c.RiskFlags)
	if c.RiskFlags == nil {
		flags = []byte("[]")
	}

	query := `
		INSERT INTO carriers (` + carrierColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dot_number) DO UPDATE SET
			legal_name = excluded.legal_name,
			dba_name = excluded.dba_name,
			physical_address = excluded.physical_address,
			physical_city = excluded.physical_city,
			physical_state = excluded.physical_state,
			physical_zip = excluded.physical_zip,
			physical_country = excluded.physical_country,
			mailing_country = excluded.mailing_country,
			phone = excluded.phone,
			power_units = excluded.power_units,
			drivers = excluded.drivers,
			operating_status = excluded.operating_status,
			operating_status_code = excluded.operating_status_code,
			authority_grant_date = excluded.authority_grant_date,
			safety_rating = excluded.safety_rating,
			total_inspections = excluded.total_inspections,
			total_crashes = excluded.total_crashes,
			fatal_crashes = excluded.fatal_crashes,
			vehicle_oos_rate = excluded.vehicle_oos_rate,
			driver_oos_rate = excluded.driver_oos_rate,
			eld_violations = excluded.eld_violations,
			ppp_loan_count = excluded.ppp_loan_count,
			ppp_loan_total = excluded.ppp_loan_total,
			ppp_forgiven_total = excluded.ppp_forgiven_total,
			address_hash = excluded.address_hash
	`

	var grantDate any
	if c.AuthorityGrantDate != nil {
		grantDate = *c.AuthorityGrantDate
	}

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		c.DOTNumber, c.LegalName, c.DBAName, c.PhysicalAddress, c.PhysicalCity,
		c.PhysicalState, c.PhysicalZip, c.PhysicalCountry, c.MailingCountry, c.Phone,
		c.PowerUnits, c.Drivers, c.OperatingStatus, c.OperatingStatusCode,
		grantDate, c.SafetyRating, c.TotalInspections, c.TotalCrashes,
		c.FatalCrashes, c.VehicleOOSRate, c.DriverOOSRate, c.ELDViolations,
		c.PPPLoanCount, c.PPPLoanTotal, c.PPPForgivenTotal, c.AddressHash,
		c.FleetSizeBucket, c.PeerCrashPercentile, c.PeerOOSPercentile,
		c.RiskScore, string(flags),
	)
	return err
}

// GetCarrier retrieves a carrier by DOT number.
func (s *SQLStore) GetCarrier(ctx context.Context, dot int64) (*domain.Carrier, error) {
	query := `SELECT ` + carrierColumns + ` FROM carriers WHERE dot_number = ?`

	c, err := scanCarrier(s.db.QueryRowContext(ctx, s.rebind(query), dot))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListCarriersAfter pages carriers by DOT number for ordered chunked scans.
func (s *SQLStore) ListCarriersAfter(ctx context.Context, afterDOT int64, limit int) ([]*domain.Carrier, error) {
	query := `SELECT ` + carrierColumns + ` FROM carriers WHERE dot_number > ? ORDER BY dot_number LIMIT ?`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), afterDOT, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var carriers []*domain.Carrier
	for rows.Next() {
		c, err := scanCarrier(rows)
		if err != nil {
			return nil, err
		}
		carriers = append(carriers, c)
	}
	return carriers, rows.Err()
}

// ListCarriersByDOTs fetches the given carriers, ordered by DOT number.
func (s *SQLStore) ListCarriersByDOTs(ctx context.Context, dots []int64) ([]*domain.Carrier, error) {
	var carriers []*domain.Carrier
	for _, chunk := range chunkInt64s(dots, inChunkSize) {
		query := `SELECT ` + carrierColumns + ` FROM carriers WHERE dot_number IN (` +
			placeholders(len(chunk)) + `) ORDER BY dot_number`

		rows, err := s.db.QueryContext(ctx, s.rebind(query), int64Args(chunk)...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			c, err := scanCarrier(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			carriers = append(carriers, c)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return carriers, nil
}

// CountCarriers returns the total carrier population.
func (s *SQLStore) CountCarriers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM carriers`).Scan(&n)
	return n, err
}

// ApplyFlag adds the flag and its points to every listed carrier that does
// not already hold it. The whole call commits as one chunk.
func (s *SQLStore) ApplyFlag(ctx context.Context, dots []int64, flag string, points int) (int64, error) {
	if flag == "" {
		return 0, fmt.Errorf("%w: flag is required", ErrInvalidInput)
	}
	if len(dots) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var applied int64
	for _, chunk := range chunkInt64s(dots, inChunkSize) {
		query := `SELECT dot_number, risk_score, risk_flags FROM carriers WHERE dot_number IN (` +
			placeholders(len(chunk)) + `)`

		rows, err := tx.QueryContext(ctx, s.rebind(query), int64Args(chunk)...)
		if err != nil {
			return 0, err
		}

		type pending struct {
			dot   int64
			score int
			flags []string
		}
		var updates []pending

		for rows.Next() {
			var c domain.Carrier
			var flagsJSON string
			if err := rows.Scan(&c.DOTNumber, &c.RiskScore, &flagsJSON); err != nil {
				rows.Close()
				return 0, err
			}
			json.Unmarshal([]byte(flagsJSON), &c.RiskFlags)

			if !c.ApplyFlag(flag, points) {
				continue
			}
			updates = append(updates, pending{dot: c.DOTNumber, score: c.RiskScore, flags: c.RiskFlags})
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return 0, err
		}
		rows.Close()

		update := s.rebind(`UPDATE carriers SET risk_score = ?, risk_flags = ? WHERE dot_number = ?`)
		for _, u := range updates {
			flagsJSON, _ := json.Marshal(u.flags)
			if _, err := tx.ExecContext(ctx, update, u.score, string(flagsJSON), u.dot); err != nil {
				return 0, err
			}
			applied++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return applied, nil
}

// ResetRiskLedger zeroes every carrier's score and flag set in bounded
// chunks, each committed independently. Returns the number of rows reset.
func (s *SQLStore) ResetRiskLedger(ctx context.Context, chunkSize int) (int64, error) {
	if chunkSize <= 0 {
		chunkSize = 5000
	}

	query := s.rebind(`
		UPDATE carriers SET risk_score = 0, risk_flags = '[]'
		WHERE dot_number IN (
			SELECT dot_number FROM carriers
			WHERE risk_score != 0 OR risk_flags != '[]'
			ORDER BY dot_number
			LIMIT ?
		)
	`)

	var total int64
	for {
		res, err := s.db.ExecContext(ctx, query, chunkSize)
		if err != nil {
			return total, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
		if n == 0 {
			return total, nil
		}
	}
}

// FlagDistribution counts carriers per risk flag for run auditing.
func (s *SQLStore) FlagDistribution(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT risk_flags FROM carriers WHERE risk_flags != '[]'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dist := make(map[string]int64)
	for rows.Next() {
		var flagsJSON string
		if err := rows.Scan(&flagsJSON); err != nil {
			return nil, err
		}
		var flags []string
		json.Unmarshal([]byte(flagsJSON), &flags)
		for _, f := range flags {
			dist[f]++
		}
	}
	return dist, rows.Err()
}

// FilterWithoutFlags returns up to limit of the given carriers holding none
// of the listed flags, ordered by DOT number.
func (s *SQLStore) FilterWithoutFlags(ctx context.Context, dots []int64, flags []string, limit int) ([]int64, error) {
	var out []int64
	for _, chunk := range chunkInt64s(dots, inChunkSize) {
		if limit > 0 && len(out) >= limit {
			break
		}
		query := `SELECT dot_number FROM carriers WHERE dot_number IN (` +
			placeholders(len(chunk)) + `)` + flagGuard("risk_flags", flags) + ` ORDER BY dot_number`

		rows, err := s.db.QueryContext(ctx, s.rebind(query), int64Args(chunk)...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var dot int64
			if err := rows.Scan(&dot); err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, dot)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

// UpsertAffiliation stores an officer-to-carrier link record.
func (s *SQLStore) UpsertAffiliation(ctx context.Context, a *domain.Affiliation) error {
	if a == nil || a.DOTNumber <= 0 || a.OfficerName == "" {
		return fmt.Errorf("%w: dot_number and officer name are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO carrier_principals (dot_number, officer_name_normalized, phone, email, position)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(dot_number, officer_name_normalized) DO UPDATE SET
			phone = excluded.phone,
			email = excluded.email,
			position = excluded.position
	`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		a.DOTNumber, a.OfficerName, a.Phone, a.Email, a.Position,
	)
	return err
}

// ListOfficersWithMultipleCarriers returns officer names affiliated with
// two or more carriers, largest portfolios first.
func (s *SQLStore) ListOfficersWithMultipleCarriers(ctx context.Context) ([]string, error) {
	query := `
		SELECT officer_name_normalized
		FROM carrier_principals
		GROUP BY officer_name_normalized
		HAVING COUNT(DISTINCT dot_number) >= 2
		ORDER BY COUNT(DISTINCT dot_number) DESC, officer_name_normalized
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ListAffiliatedCarriers returns the joined affiliation/carrier rows for a
// batch of officer names.
func (s *SQLStore) ListAffiliatedCarriers(ctx context.Context, officerNames []string) ([]*domain.AffiliatedCarrier, error) {
	var out []*domain.AffiliatedCarrier
	for _, chunk := range chunkStrings(officerNames, inChunkSize) {
		query := `
			SELECT cp.officer_name_normalized, cp.dot_number, cp.phone, cp.email,
			       c.address_hash, c.physical_state, c.risk_score,
			       c.total_crashes, c.fatal_crashes, c.power_units, c.ppp_loan_total
			FROM carrier_principals cp
			JOIN carriers c ON c.dot_number = cp.dot_number
			WHERE cp.officer_name_normalized IN (` + placeholders(len(chunk)) + `)
		`

		rows, err := s.db.QueryContext(ctx, s.rebind(query), stringArgs(chunk)...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var ac domain.AffiliatedCarrier
			if err := rows.Scan(
				&ac.OfficerName, &ac.DOTNumber, &ac.Phone, &ac.Email,
				&ac.AddressHash, &ac.State, &ac.RiskScore,
				&ac.TotalCrashes, &ac.FatalCrashes, &ac.PowerUnits, &ac.PPPTotal,
			); err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, &ac)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

// ListOfficerNames returns every officer name attached to each carrier.
func (s *SQLStore) ListOfficerNames(ctx context.Context, dots []int64) (map[int64][]string, error) {
	out := make(map[int64][]string)
	for _, chunk := range chunkInt64s(dots, inChunkSize) {
		query := `
			SELECT dot_number, officer_name_normalized
			FROM carrier_principals
			WHERE dot_number IN (` + placeholders(len(chunk)) + `)
		`

		rows, err := s.db.QueryContext(ctx, s.rebind(query), int64Args(chunk)...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var dot int64
			var name string
			if err := rows.Scan(&dot, &name); err != nil {
				rows.Close()
				return nil, err
			}
			out[dot] = append(out[dot], name)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

// RawOfficerGroups returns each officer name's distinct carrier set, for
// the lower-precision fallback edge source.
func (s *SQLStore) RawOfficerGroups(ctx context.Context) ([]*domain.OfficerGroup, error) {
	query := `
		SELECT officer_name_normalized, dot_number
		FROM carrier_principals
		ORDER BY officer_name_normalized, dot_number
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*domain.OfficerGroup
	var current *domain.OfficerGroup
	for rows.Next() {
		var name string
		var dot int64
		if err := rows.Scan(&name, &dot); err != nil {
			return nil, err
		}
		if current == nil || current.Key != name {
			current = &domain.OfficerGroup{Key: name}
			groups = append(groups, current)
		}
		current.DOTs = append(current.DOTs, dot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Only multi-carrier names can contribute edges.
	filtered := groups[:0]
	for _, g := range groups {
		if len(g.DOTs) >= 2 {
			filtered = append(filtered, g)
		}
	}
	return filtered, nil
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

// flagGuard builds the predicate that excludes carriers already holding any
// of the given flags. Flags are stored as a JSON array, so matching the
// quoted name is exact.
func flagGuard(column string, flags []string) string {
	var b strings.Builder
	for _, f := range flags {
		fmt.Fprintf(&b, ` AND %s NOT LIKE '%%"%s"%%'`, column, f)
	}
	return b.String()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func chunkInt64s(vals []int64, size int) [][]int64 {
	var chunks [][]int64
	for start := 0; start < len(vals); start += size {
		end := start + size
		if end > len(vals) {
			end = len(vals)
		}
		chunks = append(chunks, vals[start:end])
	}
	return chunks
}

func chunkStrings(vals []string, size int) [][]string {
	var chunks [][]string
	for start := 0; start < len(vals); start += size {
		end := start + size
		if end > len(vals) {
			end = len(vals)
		}
		chunks = append(chunks, vals[start:end])
	}
	return chunks
}

func int64Args(vals []int64) []any {
	args := make([]any, len(vals))
	for i, v := range vals {
		args[i] = v
	}
	return args
}

func stringArgs(vals []string) []any {
	args := make([]any, len(vals))
	for i, v := range vals {
		args[i] = v
	}
	return args
}
