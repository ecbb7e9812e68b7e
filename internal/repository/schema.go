package repository

// Schema definitions for the CarrierWatch entity store.
// Compatible with both SQLite and PostgreSQL. Array-valued columns are
// stored as JSON text so the same statements work on both drivers.

const schemaCarriers = `
CREATE TABLE IF NOT EXISTS carriers (
    dot_number BIGINT PRIMARY KEY,
    legal_name TEXT NOT NULL,
    dba_name TEXT,
    physical_address TEXT,
    physical_city TEXT,
    physical_state TEXT,
    physical_zip TEXT,
    physical_country TEXT,
    mailing_country TEXT,
    phone TEXT,
    power_units INTEGER NOT NULL DEFAULT 0,
    drivers INTEGER NOT NULL DEFAULT 0,
    operating_status TEXT,
    operating_status_code TEXT,
    authority_grant_date TIMESTAMP,
    safety_rating TEXT,
    total_inspections INTEGER NOT NULL DEFAULT 0,
    total_crashes INTEGER NOT NULL DEFAULT 0,
    fatal_crashes INTEGER NOT NULL DEFAULT 0,
    vehicle_oos_rate REAL NOT NULL DEFAULT 0,
    driver_oos_rate REAL NOT NULL DEFAULT 0,
    eld_violations INTEGER NOT NULL DEFAULT 0,
    ppp_loan_count INTEGER NOT NULL DEFAULT 0,
    ppp_loan_total REAL NOT NULL DEFAULT 0,
    ppp_forgiven_total REAL NOT NULL DEFAULT 0,
    address_hash TEXT,
    fleet_size_bucket TEXT,
    peer_crash_percentile REAL NOT NULL DEFAULT 0,
    peer_oos_percentile REAL NOT NULL DEFAULT 0,
    risk_score INTEGER NOT NULL DEFAULT 0,
    risk_flags TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_carriers_address_hash ON carriers(address_hash);
CREATE INDEX IF NOT EXISTS idx_carriers_status_code ON carriers(operating_status_code);
CREATE INDEX IF NOT EXISTS idx_carriers_country ON carriers(physical_country);
`

const schemaPrincipals = `
CREATE TABLE IF NOT EXISTS carrier_principals (
    dot_number BIGINT NOT NULL,
    officer_name_normalized TEXT NOT NULL,
    phone TEXT,
    email TEXT,
    position TEXT,
    PRIMARY KEY (dot_number, officer_name_normalized)
);

CREATE INDEX IF NOT EXISTS idx_principals_officer ON carrier_principals(officer_name_normalized);
`

const schemaClusters = `
CREATE TABLE IF NOT EXISTS officer_network_clusters (
    officer_name_normalized TEXT NOT NULL,
    cluster_index INTEGER NOT NULL,
    member_dot_numbers TEXT NOT NULL,
    carrier_count INTEGER NOT NULL,
    link_signals TEXT NOT NULL,
    total_crashes INTEGER NOT NULL DEFAULT 0,
    fatal_crashes INTEGER NOT NULL DEFAULT 0,
    total_units INTEGER NOT NULL DEFAULT 0,
    avg_risk_score REAL NOT NULL DEFAULT 0,
    ppp_total REAL NOT NULL DEFAULT 0,
    states TEXT NOT NULL DEFAULT '[]',
    PRIMARY KEY (officer_name_normalized, cluster_index)
);

CREATE INDEX IF NOT EXISTS idx_clusters_count ON officer_network_clusters(carrier_count);
`

const schemaChameleonPairs = `
CREATE TABLE IF NOT EXISTS chameleon_pairs (
    predecessor_dot BIGINT NOT NULL,
    successor_dot BIGINT NOT NULL,
    deactivation_date TIMESTAMP NOT NULL,
    activation_date TIMESTAMP NOT NULL,
    days_gap INTEGER NOT NULL,
    match_signals TEXT NOT NULL,
    signal_count INTEGER NOT NULL,
    confidence TEXT NOT NULL,
    PRIMARY KEY (predecessor_dot, successor_dot)
);

CREATE INDEX IF NOT EXISTS idx_chameleon_confidence ON chameleon_pairs(confidence);
`

const schemaFraudRings = `
CREATE TABLE IF NOT EXISTS fraud_rings (
    id TEXT PRIMARY KEY,
    carrier_dots TEXT NOT NULL,
    officer_names TEXT NOT NULL,
    shared_addresses TEXT NOT NULL DEFAULT '[]',
    carrier_count INTEGER NOT NULL,
    active_count INTEGER NOT NULL DEFAULT 0,
    total_crashes INTEGER NOT NULL DEFAULT 0,
    total_fatalities INTEGER NOT NULL DEFAULT 0,
    combined_risk INTEGER NOT NULL DEFAULT 0,
    detection_signals TEXT NOT NULL,
    confidence TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rings_confidence ON fraud_rings(confidence);
`

// Collaborator-owned input tables. Created here so a fresh store accepts
// fixture data; production ingestion owns their contents.

const schemaAddressClusters = `
CREATE TABLE IF NOT EXISTS address_clusters (
    address_hash TEXT PRIMARY KEY,
    carrier_count INTEGER NOT NULL
);
`

const schemaAuthorityHistory = `
CREATE TABLE IF NOT EXISTS authority_history (
    dot_number BIGINT NOT NULL,
    authority_type TEXT,
    revocation_pending INTEGER NOT NULL DEFAULT 0,
    event_date TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_authority_dot ON authority_history(dot_number);
`

const schemaInsurancePolicies = `
CREATE TABLE IF NOT EXISTS insurance_policies (
    dot_number BIGINT NOT NULL,
    company TEXT,
    policy_number TEXT,
    effective_date TIMESTAMP,
    cancel_date TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_insurance_dot ON insurance_policies(dot_number);
`

const schemaPPPLoans = `
CREATE TABLE IF NOT EXISTS ppp_loans (
    dot_number BIGINT NOT NULL,
    loan_amount REAL NOT NULL DEFAULT 0,
    forgiveness_amount REAL NOT NULL DEFAULT 0,
    date_approved TIMESTAMP,
    loan_status TEXT,
    lender TEXT,
    jobs_reported INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_ppp_dot ON ppp_loans(dot_number);
`

const schemaViolations = `
CREATE TABLE IF NOT EXISTS inspection_violations (
    dot_number BIGINT NOT NULL,
    violation_code TEXT NOT NULL,
    violation_count INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_violations_dot ON inspection_violations(dot_number);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaCarriers,
		schemaPrincipals,
		schemaClusters,
		schemaChameleonPairs,
		schemaFraudRings,
		schemaAddressClusters,
		schemaAuthorityHistory,
		schemaInsurancePolicies,
		schemaPPPLoans,
		schemaViolations,
	}
}
