// Package models defines the domain entities for expense claim approval.
package models

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when a company has no base currency configured.
const DefaultCurrency = "USD"

// MaxDescriptionLength is the maximum allowed length for claim descriptions.
const MaxDescriptionLength = 500

// SupportedCurrencies lists all supported currency codes.
var SupportedCurrencies = map[string]string{
	"SGD": "S$",
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"CNY": "¥",
	"MYR": "RM",
	"THB": "฿",
	"IDR": "Rp",
	"PHP": "₱",
	"VND": "₫",
	"KRW": "₩",
	"INR": "₹",
	"AUD": "A$",
	"NZD": "NZ$",
	"HKD": "HK$",
	"TWD": "NT$",
	"CAD": "C$",
	"CHF": "CHF",
}

// ExpenseCategories lists the categories a claim may be filed under.
var ExpenseCategories = []string{
	"Travel",
	"Meals & Entertainment",
	"Office Supplies",
	"Transportation",
	"Accommodation",
	"Communication",
	"Training & Education",
	"Software & Subscriptions",
	"Medical",
	"Miscellaneous",
}

// IsValidCategory reports whether name is one of ExpenseCategories.
func IsValidCategory(name string) bool {
	return slices.Contains(ExpenseCategories, name)
}

// Role is a user's role within a company.
type Role string

// User roles.
const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

// Company owns claims and the approval configuration applied to them.
type Company struct {
	ID           int64
	Name         string
	BaseCurrency string
	CreatedAt    time.Time
}

// User is a member of a company. ManagerID is empty for users without a manager.
type User struct {
	ID         string
	CompanyID  int64
	Name       string
	Email      string
	Role       Role
	ManagerID  string
	TelegramID int64
	CreatedAt  time.Time
}

// ClaimStatus is the overall lifecycle state of a claim.
type ClaimStatus string

// Claim statuses.
const (
	ClaimDraft    ClaimStatus = "draft"
	ClaimInReview ClaimStatus = "in_review"
	ClaimApproved ClaimStatus = "approved"
	ClaimRejected ClaimStatus = "rejected"
)

// IsTerminal returns true if no further votes are accepted in this status.
func (s ClaimStatus) IsTerminal() bool {
	return s == ClaimApproved || s == ClaimRejected
}

// StepStatus is the state of a single approval step.
type StepStatus string

// Step statuses.
const (
	StepPending  StepStatus = "pending"
	StepActive   StepStatus = "active"
	StepApproved StepStatus = "approved"
	StepRejected StepStatus = "rejected"
	StepSkipped  StepStatus = "skipped"
)

// Decision is a voter's verdict on a step.
type Decision string

// Vote decisions.
const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// IsValid reports whether d is approve or reject.
func (d Decision) IsValid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// Vote is one voter's decision on one step.
type Vote struct {
	VoterID  string
	Decision Decision
	Comment  string
	CastAt   time.Time
}

// ApprovalStep is one stage of a claim's approval chain.
type ApprovalStep struct {
	Index  int
	Name   string
	Voters []string
	Rule   Rule
	Votes  []Vote
	Status StepStatus
	// Forced is set when an admin override decided the step.
	Forced bool
}

// HasVoter reports whether id belongs to the step's voter set.
func (s *ApprovalStep) HasVoter(id string) bool {
	return slices.Contains(s.Voters, id)
}

// VoteOf returns the vote cast by voterID, if any.
func (s *ApprovalStep) VoteOf(voterID string) (Vote, bool) {
	for _, v := range s.Votes {
		if v.VoterID == voterID {
			return v, true
		}
	}
	return Vote{}, false
}

// RateSnapshot fixes the base-currency amount of a claim at submission time.
type RateSnapshot struct {
	Amount   decimal.Decimal
	Currency string
	Rate     decimal.Decimal
	RateDate time.Time
}

// Override records an administrator forcing a claim into a terminal status.
type Override struct {
	Actor     string
	Reason    string
	From      ClaimStatus
	To        ClaimStatus
	StepIndex int
	At        time.Time
}

// Claim is an expense claim moving through its approval chain.
type Claim struct {
	ID          string
	CompanyID   int64
	SubmitterID string
	Amount      decimal.Decimal
	Currency    string
	Normalized  *RateSnapshot
	Category    string
	ExpenseDate time.Time
	Description string
	Chain       []ApprovalStep
	Status      ClaimStatus
	Overrides   []Override
	// Version is incremented on every successful save.
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	SubmittedAt *time.Time
}

// ActiveStep returns the currently active step, or nil if there is none.
func (c *Claim) ActiveStep() *ApprovalStep {
	for i := range c.Chain {
		if c.Chain[i].Status == StepActive {
			return &c.Chain[i]
		}
	}
	return nil
}

// DeriveStatus computes the claim status from the step statuses.
func (c *Claim) DeriveStatus() ClaimStatus {
	if len(c.Chain) == 0 {
		return ClaimDraft
	}
	allDone := true
	for _, step := range c.Chain {
		switch step.Status {
		case StepRejected:
			return ClaimRejected
		case StepActive, StepPending:
			allDone = false
		}
	}
	if allDone {
		return ClaimApproved
	}
	return ClaimInReview
}

// Clone returns a deep copy of the claim.
func (c *Claim) Clone() *Claim {
	out := *c
	if c.Normalized != nil {
		snap := *c.Normalized
		out.Normalized = &snap
	}
	if c.SubmittedAt != nil {
		at := *c.SubmittedAt
		out.SubmittedAt = &at
	}
	out.Chain = make([]ApprovalStep, len(c.Chain))
	for i, step := range c.Chain {
		step.Voters = slices.Clone(step.Voters)
		step.Votes = slices.Clone(step.Votes)
		out.Chain[i] = step
	}
	out.Overrides = slices.Clone(c.Overrides)
	return &out
}

// StepEvent describes a single step status transition.
type StepEvent struct {
	ClaimID     string
	CompanyID   int64
	StepIndex   int
	From        StepStatus
	To          StepStatus
	ClaimStatus ClaimStatus
	Trigger     *Vote
	Override    *Override
	At          time.Time
}
