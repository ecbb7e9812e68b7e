package domain

// FraudRing is a connected component of carriers linked by sharing two or
// more officer identities, above a minimum size. Rings from one run never
// overlap: the component partition puts each carrier in at most one ring.
type FraudRing struct {
	ID               string     `json:"id"`
	CarrierDOTs      []int64    `json:"carrierDots"`
	OfficerNames     []string   `json:"officerNames"`
	SharedAddresses  []string   `json:"sharedAddresses"`
	CarrierCount     int        `json:"carrierCount"`
	ActiveCount      int        `json:"activeCount"`
	TotalCrashes     int        `json:"totalCrashes"`
	TotalFatalities  int        `json:"totalFatalities"`
	CombinedRisk     int        `json:"combinedRisk"`
	DetectionSignals []string   `json:"detectionSignals"`
	Confidence       Confidence `json:"confidence"`
}

// RingConfidence tiers a ring by member count and safety history. Monotone
// non-decreasing in member count for fixed crash/fatality totals.
func RingConfidence(carrierCount, totalCrashes, totalFatalities int) Confidence {
	switch {
	case carrierCount >= 10 && totalFatalities > 0:
		return ConfidenceHigh
	case carrierCount >= 5 || totalCrashes > 5:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// BenchmarkRow carries the per-carrier inputs of the peer-benchmark pass.
type BenchmarkRow struct {
	DOTNumber        int64
	PowerUnits       int
	TotalCrashes     int
	VehicleOOSRate   float64
	TotalInspections int
}

// PeerStat is the computed output written back per carrier.
type PeerStat struct {
	DOTNumber       int64
	FleetSizeBucket string
	CrashPercentile float64
	OOSPercentile   float64
}

// FleetSizeBucket assigns a carrier to its peer-comparison bucket.
func FleetSizeBucket(powerUnits int) string {
	switch {
	case powerUnits <= 0:
		return "unknown"
	case powerUnits == 1:
		return "1"
	case powerUnits <= 5:
		return "2-5"
	case powerUnits <= 20:
		return "6-20"
	case powerUnits <= 100:
		return "21-100"
	case powerUnits <= 500:
		return "101-500"
	default:
		return "500+"
	}
}
