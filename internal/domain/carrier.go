// Package domain defines the core entities and interfaces for CarrierWatch.
package domain

import (
	"strings"
	"time"
)

// Carrier is a registered motor-carrier entity keyed by DOT number.
// Base attributes are owned by the ingestion pipeline; RiskScore and
// RiskFlags are owned exclusively by the ledger engine.
type Carrier struct {
	DOTNumber int64  `json:"dotNumber"`
	LegalName string `json:"legalName"`
	DBAName   string `json:"dbaName,omitempty"`

	PhysicalAddress string `json:"physicalAddress,omitempty"`
	PhysicalCity    string `json:"physicalCity,omitempty"`
	PhysicalState   string `json:"physicalState,omitempty"`
	PhysicalZip     string `json:"physicalZip,omitempty"`
	PhysicalCountry string `json:"physicalCountry,omitempty"`
	MailingCountry  string `json:"mailingCountry,omitempty"`
	Phone           string `json:"phone,omitempty"`

	PowerUnits int `json:"powerUnits"`
	Drivers    int `json:"drivers"`

	OperatingStatus     string     `json:"operatingStatus,omitempty"`
	OperatingStatusCode string     `json:"operatingStatusCode,omitempty"`
	AuthorityGrantDate  *time.Time `json:"authorityGrantDate,omitempty"`
	SafetyRating        string     `json:"safetyRating,omitempty"`

	TotalInspections int     `json:"totalInspections"`
	TotalCrashes     int     `json:"totalCrashes"`
	FatalCrashes     int     `json:"fatalCrashes"`
	VehicleOOSRate   float64 `json:"vehicleOosRate"`
	DriverOOSRate    float64 `json:"driverOosRate"`
	ELDViolations    int     `json:"eldViolations"`

	PPPLoanCount     int     `json:"pppLoanCount"`
	PPPLoanTotal     float64 `json:"pppLoanTotal"`
	PPPForgivenTotal float64 `json:"pppForgivenTotal"`

	// AddressHash identifies the normalized physical address; carriers
	// sharing a hash share a location. Computed by the geocoding pipeline.
	AddressHash string `json:"addressHash,omitempty"`

	FleetSizeBucket     string  `json:"fleetSizeBucket,omitempty"`
	PeerCrashPercentile float64 `json:"peerCrashPercentile"`
	PeerOOSPercentile   float64 `json:"peerOosPercentile"`

	RiskScore int      `json:"riskScore"`
	RiskFlags []string `json:"riskFlags"`
}

// ActiveStatusCode marks a carrier as currently active in the census feed.
const ActiveStatusCode = "A"

// IsActive reports whether the carrier's census status code is active.
func (c *Carrier) IsActive() bool {
	return c.OperatingStatusCode == ActiveStatusCode
}

// IsAuthorized reports whether the carrier currently holds operating
// authority ("AUTHORIZED FOR ..." statuses).
func (c *Carrier) IsAuthorized() bool {
	return strings.HasPrefix(strings.ToUpper(c.OperatingStatus), "AUTHORIZED")
}

// HasFlag reports whether the carrier already holds a risk flag.
func (c *Carrier) HasFlag(flag string) bool {
	for _, f := range c.RiskFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// ApplyFlag adds a flag and its points to the carrier. It is the single
// reducer through which score/flag state changes: applying an already-held
// flag is a no-op, so any rule may be replayed safely.
func (c *Carrier) ApplyFlag(flag string, points int) bool {
	if c.HasFlag(flag) {
		return false
	}
	c.RiskFlags = append(c.RiskFlags, flag)
	c.RiskScore += points
	return true
}

// Affiliation links a normalized officer name to a carrier, with the
// contact attributes reported on the principal filing. Created by
// ingestion; read-only to the engine.
type Affiliation struct {
	DOTNumber   int64  `json:"dotNumber"`
	OfficerName string `json:"officerName"` // normalized
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
	Position    string `json:"position,omitempty"`
}

// AffiliatedCarrier is the joined row the identity resolver works on: one
// officer affiliation plus the carrier attributes that feed signals and
// cluster aggregates.
type AffiliatedCarrier struct {
	OfficerName  string
	DOTNumber    int64
	Phone        string // from the affiliation record
	Email        string
	AddressHash  string
	State        string
	RiskScore    int
	TotalCrashes int
	FatalCrashes int
	PowerUnits   int
	PPPTotal     float64
}

// DOTPair is an unordered carrier pair in canonical (low, high) order.
type DOTPair struct {
	A, B int64
}

// NewDOTPair returns the canonical form of a carrier pair.
func NewDOTPair(a, b int64) DOTPair {
	if a > b {
		a, b = b, a
	}
	return DOTPair{A: a, B: b}
}
