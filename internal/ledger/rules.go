package ledger

import "github.com/sstransco/carrierwatch/internal/domain"

// attributeSpec is a single-carrier predicate expressed in CEL. These rules
// need nothing beyond the carrier row itself; linkage-based rules live in
// the engine as candidate queries.
type attributeSpec struct {
	Flag string
	Expr string

	// NeedsViolationData disables the rule on stores without inspection
	// violation detail, where eld_violations cannot be trusted.
	NeedsViolationData bool
}

var attributeSpecs = []attributeSpec{
	{
		Flag: domain.FlagForeignCarrier,
		Expr: `!(carrier.physical_country in ["", "US", "USA"])`,
	},
	{
		Flag: domain.FlagForeignMailing,
		Expr: `carrier.physical_country in ["", "US", "USA"] && carrier.mailing_country != "" && !(carrier.mailing_country in ["US", "USA"])`,
	},
	{
		Flag: domain.FlagNewAuthority,
		Expr: `carrier.authority_age_days >= 0 && carrier.authority_age_days <= new_authority_days`,
	},
	{
		Flag: domain.FlagFatalCrashes,
		Expr: `carrier.fatal_crashes > 0`,
	},
	{
		Flag: domain.FlagHighCrashCount,
		Expr: `carrier.total_crashes >= high_crash_threshold && carrier.fatal_crashes == 0`,
	},
	{
		Flag: domain.FlagHighOOSRate,
		Expr: `carrier.total_inspections > 0 && (carrier.vehicle_oos_rate >= vehicle_oos_threshold || carrier.driver_oos_rate >= driver_oos_threshold)`,
	},
	{
		Flag:               domain.FlagELDViolations5Plus,
		Expr:               `carrier.eld_violations >= eld_threshold`,
		NeedsViolationData: true,
	},
	{
		Flag: domain.FlagPPPLoan,
		Expr: `carrier.ppp_loan_count > 0`,
	},
	{
		Flag: domain.FlagPPPLargeLoan,
		Expr: `carrier.ppp_loan_total >= ppp_large_loan_floor`,
	},
	{
		Flag: domain.FlagPOBoxAddress,
		Expr: `carrier.address_upper.contains("PO BOX") || carrier.address_upper.contains("P.O. BOX") || carrier.address_upper.contains("P O BOX")`,
	},
	{
		Flag: domain.FlagMissingAddress,
		Expr: `carrier.physical_address == ""`,
	},
}

// tier is one threshold step of a mutually exclusive flag group.
type tier struct {
	Flag string
	Min  int
}

// addressTiers maps address cluster sizes to flags, highest first so a
// carrier lands in exactly one tier.
var addressTiers = []tier{
	{Flag: domain.FlagAddressCluster25Plus, Min: 25},
	{Flag: domain.FlagAddressCluster10Plus, Min: 10},
	{Flag: domain.FlagAddressCluster5Plus, Min: 5},
}

// officerTiers maps officer portfolio sizes to flags, highest first.
var officerTiers = []tier{
	{Flag: domain.FlagOfficer25Plus, Min: 25},
	{Flag: domain.FlagOfficer10Plus, Min: 10},
	{Flag: domain.FlagOfficer5Plus, Min: 5},
}
