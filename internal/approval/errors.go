package approval

import (
	"errors"

	"gitlab.com/yelinaung/expense-approval/internal/exchange"
)

var (
	// ErrRateUnavailable is returned when the claim amount cannot be normalized.
	ErrRateUnavailable = exchange.ErrRateUnavailable

	// ErrNoEligibleApprover is returned when a step would have no voters.
	ErrNoEligibleApprover = errors.New("no eligible approver")

	// ErrInvalidHierarchy is returned when the manager chain contains a cycle.
	ErrInvalidHierarchy = errors.New("invalid manager hierarchy")

	// ErrInvalidRuleConfig is returned for malformed rules or step templates.
	ErrInvalidRuleConfig = errors.New("invalid rule config")

	// ErrStaleStep is returned when a vote targets a step that is not active.
	ErrStaleStep = errors.New("step is not active")

	// ErrDuplicateVote is returned when a voter votes twice on the same step.
	ErrDuplicateVote = errors.New("voter already voted on this step")

	// ErrClaimFinalized is returned when the claim is already approved or rejected.
	ErrClaimFinalized = errors.New("claim is finalized")

	// ErrNotSubmitted is returned when a draft claim receives a vote.
	ErrNotSubmitted = errors.New("claim is not submitted")

	// ErrIneligibleVoter is returned when the voter may not vote on the step.
	ErrIneligibleVoter = errors.New("voter is not eligible for this step")

	// ErrInvalidOverride is returned for malformed admin overrides.
	ErrInvalidOverride = errors.New("invalid override")

	// ErrUnauthorized is returned when the override actor is not an admin.
	ErrUnauthorized = errors.New("actor is not authorized")

	// ErrClaimNotFound is returned by stores when the claim does not exist.
	ErrClaimNotFound = errors.New("claim not found")

	// ErrConcurrentUpdate is returned by stores when the claim changed since it was loaded.
	ErrConcurrentUpdate = errors.New("claim was modified concurrently")

	// ErrInvalidClaim is returned when a draft fails validation.
	ErrInvalidClaim = errors.New("invalid claim")
)
