package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RuleKind names a rule variant in storage and configuration files.
type RuleKind string

// Rule kinds.
const (
	RuleKindPercentage       RuleKind = "percentage"
	RuleKindSpecificApprover RuleKind = "specific_approver"
	RuleKindHybrid           RuleKind = "hybrid"
)

// Rule decides when a step is approved or rejected. The set of variants is
// closed: PercentageRule, SpecificApproverRule and HybridRule.
type Rule interface {
	Kind() RuleKind
	String() string
	isRule()
}

// PercentageRule approves once Threshold percent of the voter set approves.
type PercentageRule struct {
	Threshold decimal.Decimal
}

// SpecificApproverRule lets a single approver decide the step.
type SpecificApproverRule struct {
	ApproverID string
}

// HybridRule approves when either the percentage or the specific approver
// path approves, and rejects only when both paths reject.
type HybridRule struct {
	Threshold  decimal.Decimal
	ApproverID string
}

func (PercentageRule) isRule()       {}
func (SpecificApproverRule) isRule() {}
func (HybridRule) isRule()           {}

// Kind implements Rule.
func (PercentageRule) Kind() RuleKind { return RuleKindPercentage }

// Kind implements Rule.
func (SpecificApproverRule) Kind() RuleKind { return RuleKindSpecificApprover }

// Kind implements Rule.
func (HybridRule) Kind() RuleKind { return RuleKindHybrid }

func (r PercentageRule) String() string {
	return fmt.Sprintf("percentage(%s%%)", r.Threshold.String())
}

func (r SpecificApproverRule) String() string {
	return fmt.Sprintf("specific_approver(%s)", r.ApproverID)
}

func (r HybridRule) String() string {
	return fmt.Sprintf("hybrid(%s%% or %s)", r.Threshold.String(), r.ApproverID)
}

// Unanimous is the rule applied to a manager step unless overridden.
func Unanimous() PercentageRule {
	return PercentageRule{Threshold: decimal.NewFromInt(100)}
}

// StepTemplate is an admin-configured step appended to every chain.
type StepTemplate struct {
	Sequence  int
	Name      string
	Approvers []string
	Rule      Rule
}

// RuleConfig is a company's approval chain configuration.
type RuleConfig struct {
	CompanyID              int64
	ManagerIsFirstApprover bool
	// RequireManager rejects submissions from users without a manager when
	// ManagerIsFirstApprover is set.
	RequireManager bool
	// ManagerRule replaces the default unanimous rule on the manager step.
	ManagerRule Rule
	Steps       []StepTemplate
}
