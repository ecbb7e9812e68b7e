// Package signals computes the link evidence between carriers that share
// an officer name. Two filings under "JOHN SMITH" are only treated as the
// same person when a corroborating signal ties them together.
package signals

import (
	"sort"
	"strings"

	"github.com/sstransco/carrierwatch/internal/domain"
)

// Links maps each carrier pair to its accumulated signal set.
type Links map[domain.DOTPair]map[string]struct{}

// Add records a signal on a pair.
func (l Links) Add(pair domain.DOTPair, signal string) {
	set, ok := l[pair]
	if !ok {
		set = make(map[string]struct{})
		l[pair] = set
	}
	set[signal] = struct{}{}
}

// Has reports whether the pair carries any signal.
func (l Links) Has(pair domain.DOTPair) bool {
	return len(l[pair]) > 0
}

// Builder derives pairwise link signals for one officer name's carriers.
type Builder struct {
	pairCap int
}

// NewBuilder creates a builder. pairCap bounds partner enumeration inside
// one key group; very common phone numbers or addresses would otherwise
// produce quadratic pair counts.
func NewBuilder(pairCap int) *Builder {
	if pairCap <= 0 {
		pairCap = 50
	}
	return &Builder{pairCap: pairCap}
}

// Build computes the signal links among the officer's carriers. coOfficers
// maps each carrier to all of its officer names; officerName is the name
// under consideration and is excluded from co-officer grouping.
func (b *Builder) Build(carriers []*domain.AffiliatedCarrier, coOfficers map[int64][]string, officerName string) Links {
	links := make(Links)

	b.linkByKey(links, carriers, domain.SignalPhone, func(c *domain.AffiliatedCarrier) string {
		phone := strings.TrimSpace(c.Phone)
		if len(phone) < 7 {
			return ""
		}
		return phone
	})

	b.linkByKey(links, carriers, domain.SignalEmail, func(c *domain.AffiliatedCarrier) string {
		email := strings.ToLower(strings.TrimSpace(c.Email))
		if !strings.Contains(email, "@") {
			return ""
		}
		return email
	})

	b.linkByKey(links, carriers, domain.SignalAddress, func(c *domain.AffiliatedCarrier) string {
		return c.AddressHash
	})

	b.linkCoOfficers(links, carriers, coOfficers, officerName)

	// Same state is weak evidence: it only reinforces pairs that some
	// stronger signal already linked.
	byState := b.groupByKey(carriers, func(c *domain.AffiliatedCarrier) string {
		return c.State
	})
	for _, group := range byState {
		b.eachPair(group, func(pair domain.DOTPair) {
			if links.Has(pair) {
				links.Add(pair, domain.SignalSameState)
			}
		})
	}

	return links
}

// linkByKey groups carriers by a non-empty key and links every in-group
// pair with the signal.
func (b *Builder) linkByKey(links Links, carriers []*domain.AffiliatedCarrier, signal string, key func(*domain.AffiliatedCarrier) string) {
	for _, group := range b.groupByKey(carriers, key) {
		b.eachPair(group, func(pair domain.DOTPair) {
			links.Add(pair, signal)
		})
	}
}

// linkCoOfficers links carriers that share a second officer beyond the name
// under consideration.
func (b *Builder) linkCoOfficers(links Links, carriers []*domain.AffiliatedCarrier, coOfficers map[int64][]string, officerName string) {
	byOther := make(map[string][]int64)
	for _, c := range carriers {
		for _, other := range coOfficers[c.DOTNumber] {
			if other == officerName {
				continue
			}
			byOther[other] = append(byOther[other], c.DOTNumber)
		}
	}

	for _, group := range byOther {
		group = dedupeSorted(group)
		b.eachPair(group, func(pair domain.DOTPair) {
			links.Add(pair, domain.SignalCoOfficer)
		})
	}
}

// groupByKey buckets carriers by key, dropping empty keys, with each bucket
// sorted by DOT number for deterministic pair enumeration.
func (b *Builder) groupByKey(carriers []*domain.AffiliatedCarrier, key func(*domain.AffiliatedCarrier) string) map[string][]int64 {
	groups := make(map[string][]int64)
	for _, c := range carriers {
		k := key(c)
		if k == "" {
			continue
		}
		groups[k] = append(groups[k], c.DOTNumber)
	}
	for k, group := range groups {
		groups[k] = dedupeSorted(group)
	}
	return groups
}

// eachPair enumerates pairs within a group, pairing each member with the
// next pairCap-1 members at most. Beyond the cap the internal linkage is
// knowingly incomplete.
func (b *Builder) eachPair(group []int64, fn func(domain.DOTPair)) {
	for i := 0; i < len(group); i++ {
		end := i + b.pairCap
		if end > len(group) {
			end = len(group)
		}
		for j := i + 1; j < end; j++ {
			fn(domain.NewDOTPair(group[i], group[j]))
		}
	}
}

func dedupeSorted(dots []int64) []int64 {
	sort.Slice(dots, func(i, j int) bool { return dots[i] < dots[j] })
	out := dots[:0]
	var prev int64 = -1
	for _, d := range dots {
		if d != prev {
			out = append(out, d)
			prev = d
		}
	}
	return out
}
