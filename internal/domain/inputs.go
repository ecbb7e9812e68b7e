package domain

import "time"

// Collaborator-owned input records. Ingestion writes these tables; the
// engine only reads them (the seed tool and tests also write fixtures).

// AuthorityEvent is a row of the carrier authority history feed.
type AuthorityEvent struct {
	DOTNumber         int64     `json:"dotNumber"`
	AuthorityType     string    `json:"authorityType"` // common, contract, broker
	RevocationPending bool      `json:"revocationPending"`
	EventDate         time.Time `json:"eventDate"`
}

// InsurancePolicy is a row of the carrier insurance filing history.
type InsurancePolicy struct {
	DOTNumber     int64      `json:"dotNumber"`
	Company       string     `json:"company"`
	PolicyNumber  string     `json:"policyNumber,omitempty"`
	EffectiveDate *time.Time `json:"effectiveDate,omitempty"`
	CancelDate    *time.Time `json:"cancelDate,omitempty"`
}

// PPPLoan is a matched pandemic-relief loan record.
type PPPLoan struct {
	DOTNumber         int64      `json:"dotNumber"`
	LoanAmount        float64    `json:"loanAmount"`
	ForgivenessAmount float64    `json:"forgivenessAmount"`
	DateApproved      *time.Time `json:"dateApproved,omitempty"`
	LoanStatus        string     `json:"loanStatus,omitempty"`
	Lender            string     `json:"lender,omitempty"`
	JobsReported      int        `json:"jobsReported"`
}

// ViolationRecord is one inspection-violation detail row. The engine only
// feature-detects presence of this table's data; the ELD rule degrades to
// a no-op when it is empty.
type ViolationRecord struct {
	DOTNumber     int64  `json:"dotNumber"`
	ViolationCode string `json:"violationCode"`
	Count         int    `json:"count"`
}

// AddressClusterSize is the precomputed spatial-clustering input: how many
// carriers sit at one normalized address.
type AddressClusterSize struct {
	AddressHash  string `json:"addressHash"`
	CarrierCount int    `json:"carrierCount"`
}
