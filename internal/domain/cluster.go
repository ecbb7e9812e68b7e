package domain

// Signal types that can link two carriers under the same officer name.
const (
	SignalPhone     = "phone"
	SignalEmail     = "email"
	SignalAddress   = "address"
	SignalCoOfficer = "co_officer"
	SignalSameState = "same_state"

	// SignalNameOnly marks a singleton cluster with no corroborating
	// evidence beyond the shared name. Never treated as confirmed.
	SignalNameOnly = "name_only"

	SignalOfficer = "officer" // chameleon detection
)

// IdentityCluster is one partition element of an officer name's carriers:
// the set believed to represent the same real person. Clusters for a fixed
// name are disjoint and cover the name's full affiliation set.
type IdentityCluster struct {
	OfficerName  string   `json:"officerName"`
	ClusterIndex int      `json:"clusterIndex"`
	MemberDOTs   []int64  `json:"memberDots"`
	CarrierCount int      `json:"carrierCount"`
	LinkSignals  []string `json:"linkSignals"`

	TotalCrashes int      `json:"totalCrashes"`
	FatalCrashes int      `json:"fatalCrashes"`
	TotalUnits   int      `json:"totalUnits"`
	AvgRiskScore float64  `json:"avgRiskScore"`
	PPPTotal     float64  `json:"pppTotal"`
	States       []string `json:"states"`
}

// Confirmed reports whether the cluster represents corroborated shared
// control: two or more carriers linked by at least one real signal.
func (ic *IdentityCluster) Confirmed() bool {
	if ic.CarrierCount < 2 {
		return false
	}
	return !(len(ic.LinkSignals) == 1 && ic.LinkSignals[0] == SignalNameOnly)
}

// OfficerGroup is a raw officer-name grouping of carriers, used as the
// lower-precision edge source when identity clusters are unavailable.
type OfficerGroup struct {
	Key  string
	DOTs []int64
}
