package approval

import (
	"fmt"

	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/expense-approval/internal/models"
)

// Outcome is the result of evaluating a step's votes against its rule.
type Outcome int

// Evaluation outcomes.
const (
	OutcomePending Outcome = iota
	OutcomeApprove
	OutcomeReject
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApprove:
		return "approve"
	case OutcomeReject:
		return "reject"
	default:
		return "pending"
	}
}

// tally summarizes a step's votes. Only voter-set members count towards the
// percentage; every voter's decision is kept for specific-approver lookups.
type tally struct {
	n         int
	approvals int
	rejects   int
	decisions map[string]models.Decision
}

func newTally(voters []string, votes []models.Vote) tally {
	t := tally{
		n:         len(voters),
		decisions: make(map[string]models.Decision, len(votes)),
	}
	for _, v := range votes {
		if _, seen := t.decisions[v.VoterID]; seen {
			continue
		}
		t.decisions[v.VoterID] = v.Decision
	}
	for _, id := range voters {
		switch t.decisions[id] {
		case models.DecisionApprove:
			t.approvals++
		case models.DecisionReject:
			t.rejects++
		}
	}
	return t
}

func (t tally) allMembersVoted() bool {
	return t.approvals+t.rejects == t.n
}

// Evaluate decides a step from its voter set and the votes cast so far.
// It has no side effects; the state machine applies the outcome.
func Evaluate(rule models.Rule, voters []string, votes []models.Vote) Outcome {
	t := newTally(voters, votes)

	switch r := rule.(type) {
	case models.PercentageRule:
		return evaluatePercentage(r.Threshold, t)
	case models.SpecificApproverRule:
		return evaluateSpecific(r.ApproverID, t)
	case models.HybridRule:
		pct := evaluatePercentage(r.Threshold, t)
		specific := evaluateSpecific(r.ApproverID, t)
		// Either path approving is enough; rejection needs both closed.
		if pct == OutcomeApprove || specific == OutcomeApprove {
			return OutcomeApprove
		}
		if pct == OutcomeReject && specific == OutcomeReject {
			return OutcomeReject
		}
		return OutcomePending
	default:
		panic(fmt.Sprintf("approval: unhandled rule %T", rule))
	}
}

// evaluatePercentage compares integer-scaled counts so that no division is
// needed: approve when a*100 >= t*n, reject when (n-r)*100 < t*n.
func evaluatePercentage(threshold decimal.Decimal, t tally) Outcome {
	if t.n == 0 {
		return OutcomePending
	}
	required := threshold.Mul(decimal.NewFromInt(int64(t.n)))

	approved := decimal.NewFromInt(int64(t.approvals)).Mul(hundred)
	if approved.GreaterThanOrEqual(required) {
		return OutcomeApprove
	}

	bestCase := decimal.NewFromInt(int64(t.n - t.rejects)).Mul(hundred)
	if bestCase.LessThan(required) {
		return OutcomeReject
	}
	return OutcomePending
}

func evaluateSpecific(approverID string, t tally) Outcome {
	switch t.decisions[approverID] {
	case models.DecisionApprove:
		return OutcomeApprove
	case models.DecisionReject:
		return OutcomeReject
	}
	if t.n > 0 && t.allMembersVoted() && t.approvals == 0 {
		return OutcomeReject
	}
	return OutcomePending
}
