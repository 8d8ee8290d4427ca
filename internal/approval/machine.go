package approval

import (
	"fmt"
	"strings"
	"time"

	"gitlab.com/yelinaung/expense-approval/internal/models"
)

// Submit moves a draft claim into review with the given chain and rate
// snapshot. The chain must come from BuildChain.
func Submit(claim *models.Claim, chain []models.ApprovalStep, snap models.RateSnapshot, at time.Time) ([]models.StepEvent, error) {
	if claim.Status.IsTerminal() {
		return nil, ErrClaimFinalized
	}
	if claim.Status != models.ClaimDraft {
		return nil, fmt.Errorf("%w: claim is already %s", ErrInvalidClaim, claim.Status)
	}
	if len(chain) == 0 || chain[0].Status != models.StepActive {
		return nil, fmt.Errorf("%w: chain has no active first step", ErrNoEligibleApprover)
	}

	claim.Chain = chain
	claim.Normalized = &snap
	submitted := at
	claim.SubmittedAt = &submitted
	claim.Status = claim.DeriveStatus()

	return []models.StepEvent{{
		ClaimID:     claim.ID,
		CompanyID:   claim.CompanyID,
		StepIndex:   0,
		From:        models.StepPending,
		To:          models.StepActive,
		ClaimStatus: claim.Status,
		At:          at,
	}}, nil
}

// VoteInput is a single vote on a claim step.
type VoteInput struct {
	StepIndex int
	VoterID   string
	Decision  models.Decision
	Comment   string
}

// CastVote records a vote on the active step and applies the rule outcome.
// Every check runs before the claim is touched, so a returned error means
// the claim is unchanged.
func CastVote(claim *models.Claim, in VoteInput, at time.Time) ([]models.StepEvent, error) {
	if claim.Status.IsTerminal() {
		return nil, ErrClaimFinalized
	}
	if claim.Status == models.ClaimDraft {
		return nil, ErrNotSubmitted
	}
	if !in.Decision.IsValid() {
		return nil, fmt.Errorf("%w: unknown decision %q", ErrInvalidClaim, in.Decision)
	}

	step := claim.ActiveStep()
	if step == nil || step.Index != in.StepIndex {
		return nil, fmt.Errorf("%w: step %d", ErrStaleStep, in.StepIndex)
	}
	if !canVote(step, in.VoterID) {
		return nil, fmt.Errorf("%w: %s on step %d", ErrIneligibleVoter, in.VoterID, step.Index)
	}
	if _, voted := step.VoteOf(in.VoterID); voted {
		return nil, fmt.Errorf("%w: %s on step %d", ErrDuplicateVote, in.VoterID, step.Index)
	}

	vote := models.Vote{
		VoterID:  in.VoterID,
		Decision: in.Decision,
		Comment:  in.Comment,
		CastAt:   at,
	}
	step.Votes = append(step.Votes, vote)

	var events []models.StepEvent
	switch Evaluate(step.Rule, step.Voters, step.Votes) {
	case OutcomeApprove:
		events = closeStep(claim, step.Index, models.StepApproved, &vote, nil, at)
	case OutcomeReject:
		events = closeStep(claim, step.Index, models.StepRejected, &vote, nil, at)
	case OutcomePending:
	}

	claim.Status = claim.DeriveStatus()
	for i := range events {
		events[i].ClaimStatus = claim.Status
	}
	return events, nil
}

// canVote allows voter-set members and, for rules naming one, the specific
// approver even when they are outside the voter set.
func canVote(step *models.ApprovalStep, voterID string) bool {
	if step.HasVoter(voterID) {
		return true
	}
	switch r := step.Rule.(type) {
	case models.SpecificApproverRule:
		return r.ApproverID == voterID
	case models.HybridRule:
		return r.ApproverID == voterID
	}
	return false
}

// closeStep sets the step at index to status and either activates the next
// step (approval) or skips every remaining step (rejection or override).
func closeStep(
	claim *models.Claim,
	index int,
	status models.StepStatus,
	trigger *models.Vote,
	override *models.Override,
	at time.Time,
) []models.StepEvent {
	step := &claim.Chain[index]
	events := []models.StepEvent{{
		ClaimID:   claim.ID,
		CompanyID: claim.CompanyID,
		StepIndex: index,
		From:      step.Status,
		To:        status,
		Trigger:   trigger,
		Override:  override,
		At:        at,
	}}
	step.Status = status

	advance := status == models.StepApproved && override == nil
	for i := index + 1; i < len(claim.Chain); i++ {
		next := &claim.Chain[i]
		if advance && i == index+1 {
			events = append(events, models.StepEvent{
				ClaimID:   claim.ID,
				CompanyID: claim.CompanyID,
				StepIndex: i,
				From:      next.Status,
				To:        models.StepActive,
				Trigger:   trigger,
				At:        at,
			})
			next.Status = models.StepActive
			continue
		}
		if advance {
			continue
		}
		if next.Status == models.StepSkipped {
			continue
		}
		events = append(events, models.StepEvent{
			ClaimID:   claim.ID,
			CompanyID: claim.CompanyID,
			StepIndex: i,
			From:      next.Status,
			To:        models.StepSkipped,
			Trigger:   trigger,
			Override:  override,
			At:        at,
		})
		next.Status = models.StepSkipped
	}
	return events
}

// OverrideInput is an administrator's request to force a claim's outcome.
type OverrideInput struct {
	Actor  string
	Reason string
	Status models.ClaimStatus
}

// ForceStatus applies an admin override. The deciding step (the active one,
// or the one that ended the chain) takes the target status and all later
// steps are skipped, so the claim status stays derived from the chain.
func ForceStatus(claim *models.Claim, in OverrideInput, at time.Time) ([]models.StepEvent, error) {
	if strings.TrimSpace(in.Actor) == "" || strings.TrimSpace(in.Reason) == "" {
		return nil, fmt.Errorf("%w: actor and reason are required", ErrInvalidOverride)
	}
	if !in.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: target status %q is not terminal", ErrInvalidOverride, in.Status)
	}
	if claim.Status == models.ClaimDraft {
		return nil, ErrNotSubmitted
	}
	if claim.Status == in.Status {
		return nil, fmt.Errorf("%w: claim is already %s", ErrInvalidOverride, in.Status)
	}

	index := decidingStep(claim)
	stepStatus := models.StepApproved
	if in.Status == models.ClaimRejected {
		stepStatus = models.StepRejected
	}

	override := models.Override{
		Actor:     in.Actor,
		Reason:    in.Reason,
		From:      claim.Status,
		To:        in.Status,
		StepIndex: index,
		At:        at,
	}
	events := closeStep(claim, index, stepStatus, nil, &override, at)
	claim.Chain[index].Forced = true
	claim.Overrides = append(claim.Overrides, override)

	claim.Status = claim.DeriveStatus()
	for i := range events {
		events[i].ClaimStatus = claim.Status
	}
	return events, nil
}

func decidingStep(claim *models.Claim) int {
	if step := claim.ActiveStep(); step != nil {
		return step.Index
	}
	for i := range claim.Chain {
		if claim.Chain[i].Status == models.StepRejected {
			return i
		}
	}
	last := len(claim.Chain) - 1
	for last > 0 && claim.Chain[last].Status == models.StepSkipped {
		last--
	}
	return last
}
