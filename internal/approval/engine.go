// Package approval implements the expense claim approval chain: building the
// chain, evaluating step rules and driving each claim's state machine.
package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/expense-approval/internal/logger"
	"gitlab.com/yelinaung/expense-approval/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// SubmitPolicy decides how submission reacts to a missing exchange rate.
type SubmitPolicy struct {
	// AcceptLastKnownRate falls back to the most recent cached rate instead
	// of failing with ErrRateUnavailable.
	AcceptLastKnownRate bool
}

// Deps are the collaborators an Engine needs.
type Deps struct {
	Claims     ClaimStore
	Companies  CompanyStore
	Rules      RuleConfigStore
	Directory  UserDirectory
	Normalizer AmountNormalizer
	Events     EventSink

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Now            func() time.Time
}

// Engine serializes every mutation of a claim through a per-claim lock.
// Mutations on different claims run in parallel.
type Engine struct {
	deps   Deps
	policy SubmitPolicy
	locks  *claimLocks
	inst   instruments
	now    func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(deps Deps, policy SubmitPolicy) *Engine {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		deps:   deps,
		policy: policy,
		locks:  newClaimLocks(),
		inst:   newInstruments(deps.TracerProvider, deps.MeterProvider),
		now:    now,
	}
}

// DraftInput describes a new claim.
type DraftInput struct {
	CompanyID   int64
	SubmitterID string
	Amount      decimal.Decimal
	Currency    string
	Category    string
	ExpenseDate time.Time
	Description string
}

// CreateDraft validates and stores a new draft claim.
func (e *Engine) CreateDraft(ctx context.Context, in DraftInput) (*models.Claim, error) {
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if err := validateDraft(in, currency); err != nil {
		return nil, err
	}

	now := e.now()
	claim := &models.Claim{
		ID:          uuid.NewString(),
		CompanyID:   in.CompanyID,
		SubmitterID: in.SubmitterID,
		Amount:      in.Amount,
		Currency:    currency,
		Category:    in.Category,
		ExpenseDate: in.ExpenseDate,
		Description: strings.TrimSpace(in.Description),
		Status:      models.ClaimDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.deps.Claims.Create(ctx, claim); err != nil {
		return nil, fmt.Errorf("failed to create claim: %w", err)
	}

	logger.Log.Info().
		Str("claim_id", claim.ID).
		Str("submitter_hash", logger.HashUserID(in.SubmitterID)).
		Str("category", claim.Category).
		Str("description", logger.SanitizeDescription(claim.Description)).
		Msg("Draft claim created")
	return claim, nil
}

func validateDraft(in DraftInput, currency string) error {
	var errs []string
	if strings.TrimSpace(in.SubmitterID) == "" {
		errs = append(errs, "submitter is required")
	}
	if !in.Amount.IsPositive() {
		errs = append(errs, "amount must be positive")
	}
	if _, ok := models.SupportedCurrencies[currency]; !ok {
		errs = append(errs, fmt.Sprintf("unsupported currency %q", in.Currency))
	}
	if !models.IsValidCategory(in.Category) {
		errs = append(errs, fmt.Sprintf("unknown category %q", in.Category))
	}
	if len(in.Description) > models.MaxDescriptionLength {
		errs = append(errs, fmt.Sprintf("description longer than %d characters", models.MaxDescriptionLength))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidClaim, strings.Join(errs, "; "))
	}
	return nil
}

// Submit normalizes the claim amount, builds its approval chain and moves it
// into review. The rate snapshot taken here is never refreshed.
func (e *Engine) Submit(ctx context.Context, claimID string) (*models.Claim, error) {
	ctx, span := e.inst.tracer.Start(ctx, "approval.Submit",
		trace.WithAttributes(attribute.String("claim.id", claimID)))
	defer span.End()

	claim, _, err := e.mutate(ctx, claimID, func(c *models.Claim) ([]models.StepEvent, error) {
		if c.Status != models.ClaimDraft {
			if c.Status.IsTerminal() {
				return nil, ErrClaimFinalized
			}
			return nil, fmt.Errorf("%w: claim is already %s", ErrInvalidClaim, c.Status)
		}

		company, err := e.deps.Companies.Company(ctx, c.CompanyID)
		if err != nil {
			return nil, fmt.Errorf("failed to load company: %w", err)
		}

		snap, err := e.normalize(ctx, c, company.BaseCurrency)
		if err != nil {
			return nil, err
		}

		cfg, err := e.deps.Rules.RuleConfig(ctx, c.CompanyID)
		if err != nil {
			return nil, fmt.Errorf("failed to load approval rules: %w", err)
		}

		chain, err := BuildChain(ctx, c, cfg, e.deps.Directory)
		if err != nil {
			return nil, err
		}

		return Submit(c, chain, snap, e.now())
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Log.Warn().Err(err).Str("claim_id", claimID).Msg("Claim submission failed")
		return nil, err
	}

	logger.Log.Info().
		Str("claim_id", claim.ID).
		Int("steps", len(claim.Chain)).
		Str("amount", claim.Normalized.Amount.StringFixed(2)).
		Str("currency", claim.Normalized.Currency).
		Msg("Claim submitted for review")
	return claim, nil
}

func (e *Engine) normalize(ctx context.Context, c *models.Claim, baseCurrency string) (models.RateSnapshot, error) {
	if e.deps.Normalizer == nil {
		return models.RateSnapshot{}, fmt.Errorf("%w: no normalizer configured", ErrRateUnavailable)
	}
	asOf := c.ExpenseDate
	if asOf.IsZero() {
		asOf = e.now()
	}

	snap, err := e.deps.Normalizer.Normalize(ctx, c.Amount, c.Currency, baseCurrency, asOf)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, ErrRateUnavailable) || !e.policy.AcceptLastKnownRate {
		return models.RateSnapshot{}, err
	}

	fallback, fbErr := e.deps.Normalizer.LastKnown(c.Amount, c.Currency, baseCurrency)
	if fbErr != nil {
		return models.RateSnapshot{}, errors.Join(err, fbErr)
	}
	logger.Log.Warn().
		Err(err).
		Str("claim_id", c.ID).
		Str("rate_date", fallback.RateDate.Format("2006-01-02")).
		Msg("Using last known exchange rate")
	return fallback, nil
}

// VoteRequest is a vote submitted by an approver.
type VoteRequest struct {
	ClaimID   string
	StepIndex int
	VoterID   string
	Decision  models.Decision
	Comment   string
}

// VoteResult is the claim after a vote plus the transitions it caused.
type VoteResult struct {
	Claim  *models.Claim
	Events []models.StepEvent
}

// CastVote records a vote. Concurrent votes on the same claim are applied one
// at a time, so a threshold crossing produces exactly one transition.
func (e *Engine) CastVote(ctx context.Context, req VoteRequest) (*VoteResult, error) {
	ctx, span := e.inst.tracer.Start(ctx, "approval.CastVote",
		trace.WithAttributes(
			attribute.String("claim.id", req.ClaimID),
			attribute.Int("step.index", req.StepIndex),
			attribute.String("vote.decision", string(req.Decision)),
		))
	defer span.End()

	claim, events, err := e.mutate(ctx, req.ClaimID, func(c *models.Claim) ([]models.StepEvent, error) {
		return CastVote(c, VoteInput{
			StepIndex: req.StepIndex,
			VoterID:   req.VoterID,
			Decision:  req.Decision,
			Comment:   req.Comment,
		}, e.now())
	})
	if err != nil {
		e.inst.recordVote(ctx, voteErrorLabel(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Log.Debug().
			Err(err).
			Str("claim_id", req.ClaimID).
			Int("step", req.StepIndex).
			Str("voter_hash", logger.HashUserID(req.VoterID)).
			Msg("Vote rejected")
		return nil, err
	}

	e.inst.recordVote(ctx, "accepted")
	logger.Log.Info().
		Str("claim_id", claim.ID).
		Int("step", req.StepIndex).
		Str("voter_hash", logger.HashUserID(req.VoterID)).
		Str("decision", string(req.Decision)).
		Str("comment", logger.SanitizeText(req.Comment)).
		Str("claim_status", string(claim.Status)).
		Int("transitions", len(events)).
		Msg("Vote recorded")

	return &VoteResult{Claim: claim, Events: events}, nil
}

func voteErrorLabel(err error) string {
	switch {
	case errors.Is(err, ErrStaleStep):
		return "stale_step"
	case errors.Is(err, ErrDuplicateVote):
		return "duplicate"
	case errors.Is(err, ErrClaimFinalized):
		return "finalized"
	case errors.Is(err, ErrIneligibleVoter):
		return "ineligible"
	default:
		return "error"
	}
}

// OverrideRequest is an administrator forcing a claim's outcome.
type OverrideRequest struct {
	ClaimID string
	Actor   string
	Reason  string
	Status  models.ClaimStatus
}

// Override force-sets a claim to approved or rejected, bypassing rule
// evaluation. It is ordered with in-flight votes through the same per-claim
// lock and recorded on the claim with actor and reason.
func (e *Engine) Override(ctx context.Context, req OverrideRequest) (*models.Claim, error) {
	ctx, span := e.inst.tracer.Start(ctx, "approval.Override",
		trace.WithAttributes(
			attribute.String("claim.id", req.ClaimID),
			attribute.String("override.status", string(req.Status)),
		))
	defer span.End()

	if e.deps.Directory == nil {
		return nil, fmt.Errorf("%w: no user directory configured", ErrUnauthorized)
	}
	role, err := e.deps.Directory.RoleOf(ctx, req.Actor)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve role of %s: %w", req.Actor, err)
	}
	if role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: %s has role %s", ErrUnauthorized, req.Actor, role)
	}

	claim, _, err := e.mutate(ctx, req.ClaimID, func(c *models.Claim) ([]models.StepEvent, error) {
		return ForceStatus(c, OverrideInput{Actor: req.Actor, Reason: req.Reason, Status: req.Status}, e.now())
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	logger.Log.Warn().
		Str("claim_id", claim.ID).
		Str("actor_hash", logger.HashUserID(req.Actor)).
		Str("reason", logger.SanitizeText(req.Reason)).
		Str("status", string(claim.Status)).
		Msg("Claim status overridden by admin")
	return claim, nil
}

// Get returns the stored claim.
func (e *Engine) Get(ctx context.Context, claimID string) (*models.Claim, error) {
	return e.deps.Claims.Get(ctx, claimID)
}

// HistoryEntry is one vote or override in a claim's approval history.
type HistoryEntry struct {
	StepIndex  int
	StepName   string
	StepStatus models.StepStatus
	ActorID    string
	Decision   models.Decision
	Comment    string
	At         time.Time
	Override   bool
}

// History lists votes and overrides ordered by step, then arrival.
func (e *Engine) History(ctx context.Context, claimID string) ([]HistoryEntry, error) {
	claim, err := e.deps.Claims.Get(ctx, claimID)
	if err != nil {
		return nil, err
	}
	return BuildHistory(claim), nil
}

// BuildHistory flattens a claim's chain into history entries.
func BuildHistory(claim *models.Claim) []HistoryEntry {
	var entries []HistoryEntry
	for _, step := range claim.Chain {
		for _, v := range step.Votes {
			entries = append(entries, HistoryEntry{
				StepIndex:  step.Index,
				StepName:   step.Name,
				StepStatus: step.Status,
				ActorID:    v.VoterID,
				Decision:   v.Decision,
				Comment:    v.Comment,
				At:         v.CastAt,
			})
		}
		for _, o := range claim.Overrides {
			if o.StepIndex != step.Index {
				continue
			}
			decision := models.DecisionApprove
			if o.To == models.ClaimRejected {
				decision = models.DecisionReject
			}
			entries = append(entries, HistoryEntry{
				StepIndex:  step.Index,
				StepName:   step.Name,
				StepStatus: step.Status,
				ActorID:    o.Actor,
				Decision:   decision,
				Comment:    o.Reason,
				At:         o.At,
				Override:   true,
			})
		}
	}
	return entries
}

// mutate runs fn against a private copy of the claim while holding the
// claim's lock, saves the copy and publishes the resulting events. Nothing is
// saved or published when fn fails.
func (e *Engine) mutate(
	ctx context.Context,
	claimID string,
	fn func(*models.Claim) ([]models.StepEvent, error),
) (*models.Claim, []models.StepEvent, error) {
	unlock := e.locks.lock(claimID)
	defer unlock()

	stored, err := e.deps.Claims.Get(ctx, claimID)
	if err != nil {
		return nil, nil, err
	}

	working := stored.Clone()
	events, err := fn(working)
	if err != nil {
		return nil, nil, err
	}
	working.UpdatedAt = e.now()

	if err := e.deps.Claims.Save(ctx, working); err != nil {
		return nil, nil, fmt.Errorf("failed to save claim: %w", err)
	}

	e.inst.recordEvents(ctx, working, events)
	e.publish(ctx, events)
	return working, events, nil
}

func (e *Engine) publish(ctx context.Context, events []models.StepEvent) {
	if e.deps.Events == nil {
		return
	}
	for _, ev := range events {
		e.deps.Events.Publish(ctx, ev)
	}
}
