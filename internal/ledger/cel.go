package ledger

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/sstransco/carrierwatch/internal/domain"
)

// newCELEnv declares the variables available to attribute rule expressions.
func newCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("carrier", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("new_authority_days", cel.IntType),
		cel.Variable("high_crash_threshold", cel.IntType),
		cel.Variable("eld_threshold", cel.IntType),
		cel.Variable("vehicle_oos_threshold", cel.DoubleType),
		cel.Variable("driver_oos_threshold", cel.DoubleType),
		cel.Variable("ppp_large_loan_floor", cel.DoubleType),
	)
}

// compiledAttributeRule pairs a flag with its compiled predicate.
type compiledAttributeRule struct {
	spec    attributeSpec
	program cel.Program
}

func compileAttributeRules(env *cel.Env) ([]*compiledAttributeRule, error) {
	rules := make([]*compiledAttributeRule, 0, len(attributeSpecs))
	for _, spec := range attributeSpecs {
		ast, issues := env.Compile(spec.Expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("failed to compile rule %s: %w", spec.Flag, issues.Err())
		}
		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("failed to program rule %s: %w", spec.Flag, err)
		}
		rules = append(rules, &compiledAttributeRule{spec: spec, program: program})
	}
	return rules, nil
}

// activation builds the CEL variable bindings for one carrier.
func (e *Engine) activation(c *domain.Carrier, now time.Time) map[string]any {
	authorityAgeDays := int64(-1)
	if c.AuthorityGrantDate != nil {
		authorityAgeDays = int64(now.Sub(*c.AuthorityGrantDate).Hours() / 24)
	}

	return map[string]any{
		"carrier": map[string]any{
			"physical_country":      strings.ToUpper(strings.TrimSpace(c.PhysicalCountry)),
			"mailing_country":       strings.ToUpper(strings.TrimSpace(c.MailingCountry)),
			"physical_address":      strings.TrimSpace(c.PhysicalAddress),
			"address_upper":         strings.ToUpper(strings.TrimSpace(c.PhysicalAddress)),
			"authority_age_days":    authorityAgeDays,
			"total_crashes":         int64(c.TotalCrashes),
			"fatal_crashes":         int64(c.FatalCrashes),
			"vehicle_oos_rate":      c.VehicleOOSRate,
			"driver_oos_rate":       c.DriverOOSRate,
			"eld_violations":        int64(c.ELDViolations),
			"ppp_loan_count":        int64(c.PPPLoanCount),
			"ppp_loan_total":        c.PPPLoanTotal,
			"total_inspections":     int64(c.TotalInspections),
			"power_units":           int64(c.PowerUnits),
			"operating_status_code": c.OperatingStatusCode,
		},
		"new_authority_days":    int64(e.cfg.NewAuthorityDays),
		"high_crash_threshold":  int64(e.cfg.HighCrashThreshold),
		"eld_threshold":         int64(e.cfg.ELDViolationThreshold),
		"vehicle_oos_threshold": e.cfg.VehicleOOSThreshold,
		"driver_oos_threshold":  e.cfg.DriverOOSThreshold,
		"ppp_large_loan_floor":  e.cfg.PPPLargeLoanFloor,
	}
}

// evalRule runs one predicate; any evaluation error reads as false.
func (e *Engine) evalRule(rule *compiledAttributeRule, activation map[string]any) bool {
	out, _, err := rule.program.Eval(activation)
	if err != nil {
		e.logger.Warn("rule evaluation error", "flag", rule.spec.Flag, "error", err)
		return false
	}
	matched, ok := out.Value().(bool)
	return ok && matched
}

func sortInt64s(vals []int64) {
	sort.Slice(vals, func(i, j int) bool { return vals[i] < vals[j] })
}
