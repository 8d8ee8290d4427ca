package approval

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/expense-approval/internal/models"
)

var hundred = decimal.NewFromInt(100)

// ValidateRule checks that a rule is well formed.
func ValidateRule(rule models.Rule) error {
	switch r := rule.(type) {
	case models.PercentageRule:
		return validateThreshold(r.Threshold)
	case models.SpecificApproverRule:
		return validateApprover(r.ApproverID)
	case models.HybridRule:
		if err := validateThreshold(r.Threshold); err != nil {
			return err
		}
		return validateApprover(r.ApproverID)
	case nil:
		return fmt.Errorf("%w: rule is required", ErrInvalidRuleConfig)
	default:
		return fmt.Errorf("%w: unknown rule %T", ErrInvalidRuleConfig, rule)
	}
}

// thresholdPlaces is the precision thresholds are persisted with.
const thresholdPlaces = 2

func validateThreshold(t decimal.Decimal) error {
	if !t.IsPositive() || t.GreaterThan(hundred) {
		return fmt.Errorf("%w: threshold %s outside (0,100]", ErrInvalidRuleConfig, t.String())
	}
	// Thresholds are stored as DECIMAL(5,2); anything finer would be rounded
	// on save and change the rule's outcome.
	if !t.Equal(t.Round(thresholdPlaces)) {
		return fmt.Errorf("%w: threshold %s has more than %d decimal places",
			ErrInvalidRuleConfig, t.String(), thresholdPlaces)
	}
	return nil
}

func validateApprover(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: specific approver is required", ErrInvalidRuleConfig)
	}
	return nil
}

// ParseRule builds a rule from its storage form. Threshold is ignored for
// specific-approver rules and approverID for percentage rules.
func ParseRule(kind models.RuleKind, threshold decimal.Decimal, approverID string) (models.Rule, error) {
	var rule models.Rule
	switch kind {
	case models.RuleKindPercentage:
		rule = models.PercentageRule{Threshold: threshold}
	case models.RuleKindSpecificApprover:
		rule = models.SpecificApproverRule{ApproverID: approverID}
	case models.RuleKindHybrid:
		rule = models.HybridRule{Threshold: threshold, ApproverID: approverID}
	default:
		return nil, fmt.Errorf("%w: unknown rule kind %q", ErrInvalidRuleConfig, kind)
	}
	if err := ValidateRule(rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// RuleParams returns the storage form of a rule.
func RuleParams(rule models.Rule) (kind models.RuleKind, threshold decimal.Decimal, approverID string) {
	switch r := rule.(type) {
	case models.PercentageRule:
		return r.Kind(), r.Threshold, ""
	case models.SpecificApproverRule:
		return r.Kind(), decimal.Zero, r.ApproverID
	case models.HybridRule:
		return r.Kind(), r.Threshold, r.ApproverID
	default:
		panic(fmt.Sprintf("approval: unhandled rule %T", rule))
	}
}
