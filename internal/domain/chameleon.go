package domain

import "time"

// Confidence is the evidence tier assigned to a detected pattern.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// AtLeast reports whether c meets the given minimum tier.
func (c Confidence) AtLeast(min Confidence) bool {
	rank := map[Confidence]int{ConfidenceLow: 1, ConfidenceMedium: 2, ConfidenceHigh: 3}
	return rank[c] >= rank[min]
}

// ChameleonPair is an ordered predecessor→successor pair of carriers
// suspected of identity reincarnation. Direction is fixed by date order:
// the successor's authority grant is strictly after the predecessor's,
// within a bounded gap. (predecessor, successor) is unique; detection
// passes merge signals onto an existing pair rather than duplicating it.
type ChameleonPair struct {
	PredecessorDOT   int64      `json:"predecessorDot"`
	SuccessorDOT     int64      `json:"successorDot"`
	DeactivationDate time.Time  `json:"deactivationDate"`
	ActivationDate   time.Time  `json:"activationDate"`
	DaysGap          int        `json:"daysGap"`
	MatchSignals     []string   `json:"matchSignals"`
	SignalCount      int        `json:"signalCount"`
	Confidence       Confidence `json:"confidence"`
}

// HasSignal reports whether the pair already carries a signal type.
func (p *ChameleonPair) HasSignal(sig string) bool {
	for _, s := range p.MatchSignals {
		if s == sig {
			return true
		}
	}
	return false
}

// AddSignal appends a signal if not already present and keeps SignalCount
// in sync. Returns false for the no-op case.
func (p *ChameleonPair) AddSignal(sig string) bool {
	if p.HasSignal(sig) {
		return false
	}
	p.MatchSignals = append(p.MatchSignals, sig)
	p.SignalCount = len(p.MatchSignals)
	return true
}

// PairConfidence maps a signal count to a confidence tier. Monotone
// non-decreasing in the count.
func PairConfidence(signalCount int) Confidence {
	switch {
	case signalCount >= 3:
		return ConfidenceHigh
	case signalCount == 2:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
