package domain

// Risk flag catalog. Each flag has a fixed point value; applying a flag is
// the only way a carrier's risk score changes. Flags inside one tier group
// are mutually exclusive — the ledger evaluates the highest tier first and
// the lower tiers exclude carriers already holding any flag of the group.
const (
	FlagAddressCluster25Plus = "ADDRESS_CLUSTER_25_PLUS"
	FlagAddressCluster10Plus = "ADDRESS_CLUSTER_10_PLUS"
	FlagAddressCluster5Plus  = "ADDRESS_CLUSTER_5_PLUS"

	FlagOfficer25Plus = "OFFICER_25_PLUS"
	FlagOfficer10Plus = "OFFICER_10_PLUS"
	FlagOfficer5Plus  = "OFFICER_5_PLUS"

	FlagForeignCarrier       = "FOREIGN_CARRIER"
	FlagForeignLinkedOfficer = "FOREIGN_LINKED_OFFICER"
	FlagForeignLinkedAddress = "FOREIGN_LINKED_ADDRESS"
	FlagForeignMailing       = "FOREIGN_MAILING"

	FlagAuthorityRevokedReissued = "AUTHORITY_REVOKED_REISSUED"
	FlagNewAuthority             = "NEW_AUTHORITY"

	FlagFatalCrashes      = "FATAL_CRASHES"
	FlagHighCrashCount    = "HIGH_CRASH_COUNT"
	FlagHighOOSRate       = "HIGH_OOS_RATE"
	FlagELDViolations5Plus = "ELD_VIOLATIONS_5_PLUS"

	FlagInsuranceLapse = "INSURANCE_LAPSE"

	FlagPPPLoan              = "PPP_LOAN"
	FlagPPPLargeLoan         = "PPP_LARGE_LOAN"
	FlagPPPForgivenAtCluster = "PPP_FORGIVEN_AT_CLUSTER"

	FlagPOBoxAddress               = "PO_BOX_ADDRESS"
	FlagMissingAddress             = "MISSING_ADDRESS"
	FlagInactiveAtClusteredAddress = "INACTIVE_AT_CLUSTERED_ADDRESS"

	FlagChameleonSuccessor   = "CHAMELEON_SUCCESSOR"
	FlagChameleonPredecessor = "CHAMELEON_PREDECESSOR"
	FlagFraudRing            = "FRAUD_RING"
)

// FlagPoints is the fixed score contribution of each flag.
var FlagPoints = map[string]int{
	FlagAddressCluster25Plus: 40,
	FlagAddressCluster10Plus: 25,
	FlagAddressCluster5Plus:  15,

	FlagOfficer25Plus: 50,
	FlagOfficer10Plus: 35,
	FlagOfficer5Plus:  20,

	FlagForeignCarrier:       10,
	FlagForeignLinkedOfficer: 15,
	FlagForeignLinkedAddress: 15,
	FlagForeignMailing:       10,

	FlagAuthorityRevokedReissued: 15,
	FlagNewAuthority:             10,

	FlagFatalCrashes:       40,
	FlagHighCrashCount:     15,
	FlagHighOOSRate:        20,
	FlagELDViolations5Plus: 25,

	FlagInsuranceLapse: 20,

	FlagPPPLoan:              5,
	FlagPPPLargeLoan:         15,
	FlagPPPForgivenAtCluster: 20,

	FlagPOBoxAddress:               10,
	FlagMissingAddress:             15,
	FlagInactiveAtClusteredAddress: 15,

	FlagChameleonSuccessor:   30,
	FlagChameleonPredecessor: 20,
	FlagFraudRing:            25,
}

// AddressTierFlags is the mutually exclusive address-overlap tier group,
// highest tier first.
var AddressTierFlags = []string{
	FlagAddressCluster25Plus,
	FlagAddressCluster10Plus,
	FlagAddressCluster5Plus,
}

// OfficerTierFlags is the mutually exclusive officer-identity-count tier
// group, highest tier first.
var OfficerTierFlags = []string{
	FlagOfficer25Plus,
	FlagOfficer10Plus,
	FlagOfficer5Plus,
}
