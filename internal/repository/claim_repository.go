package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/expense-approval/internal/approval"
	"gitlab.com/yelinaung/expense-approval/internal/database"
	"gitlab.com/yelinaung/expense-approval/internal/models"
)

// ClaimRepository handles claim database operations.
type ClaimRepository struct {
	db database.PGXDB
}

var _ approval.ClaimStore = (*ClaimRepository)(nil)

// NewClaimRepository creates a new ClaimRepository.
func NewClaimRepository(db database.PGXDB) *ClaimRepository {
	return &ClaimRepository{db: db}
}

// Create inserts a new claim together with any chain it already carries.
func (r *ClaimRepository) Create(ctx context.Context, claim *models.Claim) error {
	return database.WithTx(ctx, r.db, func(tx database.PGXDB) error {
		n := normalizedColumns(claim.Normalized)
		_, err := tx.Exec(ctx, `
			INSERT INTO claims (
				id, company_id, submitter_id, amount, currency,
				normalized_amount, normalized_currency, normalized_rate, normalized_rate_date,
				category, expense_date, description, status, version,
				created_at, updated_at, submitted_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		`, claim.ID, claim.CompanyID, claim.SubmitterID, claim.Amount, claim.Currency,
			n.amount, n.currency, n.rate, n.rateDate,
			claim.Category, claim.ExpenseDate, claim.Description, claim.Status, claim.Version,
			claim.CreatedAt, claim.UpdatedAt, claim.SubmittedAt)
		if err != nil {
			return fmt.Errorf("failed to create claim: %w", err)
		}
		return writeChildren(ctx, tx, claim)
	})
}

// Get retrieves a claim with its chain, votes and overrides.
func (r *ClaimRepository) Get(ctx context.Context, id string) (*models.Claim, error) {
	var (
		claim       models.Claim
		normAmount  decimal.NullDecimal
		normRate    decimal.NullDecimal
		normCcy     *string
		normDate    *time.Time
		description *string
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, company_id, submitter_id, amount, currency,
		       normalized_amount, normalized_currency, normalized_rate, normalized_rate_date,
		       category, expense_date, description, status, version,
		       created_at, updated_at, submitted_at
		FROM claims WHERE id = $1
	`, id).Scan(&claim.ID, &claim.CompanyID, &claim.SubmitterID, &claim.Amount, &claim.Currency,
		&normAmount, &normCcy, &normRate, &normDate,
		&claim.Category, &claim.ExpenseDate, &description, &claim.Status, &claim.Version,
		&claim.CreatedAt, &claim.UpdatedAt, &claim.SubmittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", approval.ErrClaimNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}

	if description != nil {
		claim.Description = *description
	}
	if normAmount.Valid && normCcy != nil && normDate != nil {
		claim.Normalized = &models.RateSnapshot{
			Amount:   normAmount.Decimal,
			Currency: *normCcy,
			Rate:     normRate.Decimal,
			RateDate: *normDate,
		}
	}

	if claim.Chain, err = r.loadSteps(ctx, id); err != nil {
		return nil, err
	}
	if claim.Overrides, err = r.loadOverrides(ctx, id); err != nil {
		return nil, err
	}
	return &claim, nil
}

// Save writes the claim if the stored version still matches claim.Version,
// then increments claim.Version. The chain, votes and overrides are replaced
// within the same transaction.
func (r *ClaimRepository) Save(ctx context.Context, claim *models.Claim) error {
	err := database.WithTx(ctx, r.db, func(tx database.PGXDB) error {
		n := normalizedColumns(claim.Normalized)
		tag, err := tx.Exec(ctx, `
			UPDATE claims SET
				normalized_amount = $3,
				normalized_currency = $4,
				normalized_rate = $5,
				normalized_rate_date = $6,
				description = $7,
				status = $8,
				updated_at = $9,
				submitted_at = $10,
				version = version + 1
			WHERE id = $1 AND version = $2
		`, claim.ID, claim.Version, n.amount, n.currency, n.rate, n.rateDate,
			claim.Description, claim.Status, claim.UpdatedAt, claim.SubmittedAt)
		if err != nil {
			return fmt.Errorf("failed to update claim: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return r.missingOrStale(ctx, tx, claim.ID)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM approval_steps WHERE claim_id = $1`, claim.ID); err != nil {
			return fmt.Errorf("failed to clear approval steps: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM claim_overrides WHERE claim_id = $1`, claim.ID); err != nil {
			return fmt.Errorf("failed to clear overrides: %w", err)
		}
		return writeChildren(ctx, tx, claim)
	})
	if err != nil {
		return err
	}
	claim.Version++
	return nil
}

func (r *ClaimRepository) missingOrStale(ctx context.Context, db database.PGXDB, id string) error {
	var exists bool
	if err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM claims WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check claim: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", approval.ErrClaimNotFound, id)
	}
	return approval.ErrConcurrentUpdate
}

// ListAwaitingVoter returns in-review claims whose active step is waiting on
// voterID, oldest submission first.
func (r *ClaimRepository) ListAwaitingVoter(ctx context.Context, voterID string) ([]*models.Claim, error) {
	rows, err := r.db.Query(ctx, `
		SELECT c.id
		FROM claims c
		JOIN approval_steps s ON s.claim_id = c.id AND s.status = 'active'
		WHERE c.status = 'in_review'
		AND ($1 = ANY(s.voters) OR s.rule_approver = $1)
		AND NOT EXISTS (
			SELECT 1 FROM claim_votes v
			WHERE v.claim_id = s.claim_id AND v.step_index = s.step_index AND v.voter_id = $1
		)
		ORDER BY c.submitted_at, c.id
	`, voterID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending claims: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan pending claims: %w", err)
	}
	return r.getAll(ctx, ids)
}

// ListBySubmitter returns the submitter's most recent claims, newest first.
func (r *ClaimRepository) ListBySubmitter(ctx context.Context, submitterID string, limit int) ([]*models.Claim, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id FROM claims
		WHERE submitter_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2
	`, submitterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query submitted claims: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan submitted claims: %w", err)
	}
	return r.getAll(ctx, ids)
}

func (r *ClaimRepository) getAll(ctx context.Context, ids []string) ([]*models.Claim, error) {
	claims := make([]*models.Claim, 0, len(ids))
	for _, id := range ids {
		claim, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}
	return claims, nil
}

func (r *ClaimRepository) loadSteps(ctx context.Context, claimID string) ([]models.ApprovalStep, error) {
	rows, err := r.db.Query(ctx, `
		SELECT step_index, name, voters, rule_kind, rule_threshold, rule_approver, status, forced
		FROM approval_steps WHERE claim_id = $1
		ORDER BY step_index
	`, claimID)
	if err != nil {
		return nil, fmt.Errorf("failed to query approval steps: %w", err)
	}
	defer rows.Close()

	var steps []models.ApprovalStep
	for rows.Next() {
		var (
			step      models.ApprovalStep
			kind      models.RuleKind
			threshold decimal.NullDecimal
			approver  *string
		)
		if err := rows.Scan(&step.Index, &step.Name, &step.Voters, &kind, &threshold, &approver,
			&step.Status, &step.Forced); err != nil {
			return nil, fmt.Errorf("failed to scan approval step: %w", err)
		}
		step.Rule, err = approval.ParseRule(kind, threshold.Decimal, deref(approver))
		if err != nil {
			return nil, fmt.Errorf("step %d of claim %s: %w", step.Index, claimID, err)
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating approval steps: %w", err)
	}

	if len(steps) == 0 {
		return nil, nil
	}
	if err := r.loadVotes(ctx, claimID, steps); err != nil {
		return nil, err
	}
	return steps, nil
}

func (r *ClaimRepository) loadVotes(ctx context.Context, claimID string, steps []models.ApprovalStep) error {
	rows, err := r.db.Query(ctx, `
		SELECT step_index, voter_id, decision, comment, cast_at
		FROM claim_votes WHERE claim_id = $1
		ORDER BY step_index, seq
	`, claimID)
	if err != nil {
		return fmt.Errorf("failed to query votes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			index   int
			vote    models.Vote
			comment *string
		)
		if err := rows.Scan(&index, &vote.VoterID, &vote.Decision, &comment, &vote.CastAt); err != nil {
			return fmt.Errorf("failed to scan vote: %w", err)
		}
		vote.Comment = deref(comment)
		if index < 0 || index >= len(steps) {
			return fmt.Errorf("vote on unknown step %d of claim %s", index, claimID)
		}
		steps[index].Votes = append(steps[index].Votes, vote)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating votes: %w", err)
	}
	return nil
}

func (r *ClaimRepository) loadOverrides(ctx context.Context, claimID string) ([]models.Override, error) {
	rows, err := r.db.Query(ctx, `
		SELECT actor_id, reason, from_status, to_status, step_index, created_at
		FROM claim_overrides WHERE claim_id = $1
		ORDER BY seq
	`, claimID)
	if err != nil {
		return nil, fmt.Errorf("failed to query overrides: %w", err)
	}
	defer rows.Close()

	var overrides []models.Override
	for rows.Next() {
		var o models.Override
		if err := rows.Scan(&o.Actor, &o.Reason, &o.From, &o.To, &o.StepIndex, &o.At); err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating overrides: %w", err)
	}
	return overrides, nil
}

func writeChildren(ctx context.Context, db database.PGXDB, claim *models.Claim) error {
	for _, step := range claim.Chain {
		if err := approval.ValidateRule(step.Rule); err != nil {
			return fmt.Errorf("approval step %d: %w", step.Index, err)
		}
		kind, threshold, approver := approval.RuleParams(step.Rule)
		_, err := db.Exec(ctx, `
			INSERT INTO approval_steps (claim_id, step_index, name, voters, rule_kind, rule_threshold, rule_approver, status, forced)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, claim.ID, step.Index, step.Name, step.Voters, kind, nullDecimal(threshold), nullString(approver),
			step.Status, step.Forced)
		if err != nil {
			return fmt.Errorf("failed to insert approval step %d: %w", step.Index, err)
		}

		for seq, vote := range step.Votes {
			_, err := db.Exec(ctx, `
				INSERT INTO claim_votes (claim_id, step_index, voter_id, seq, decision, comment, cast_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, claim.ID, step.Index, vote.VoterID, seq, vote.Decision, nullString(vote.Comment), vote.CastAt)
			if err != nil {
				return fmt.Errorf("failed to insert vote: %w", err)
			}
		}
	}

	for seq, o := range claim.Overrides {
		_, err := db.Exec(ctx, `
			INSERT INTO claim_overrides (claim_id, seq, actor_id, reason, from_status, to_status, step_index, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, claim.ID, seq, o.Actor, o.Reason, o.From, o.To, o.StepIndex, o.At)
		if err != nil {
			return fmt.Errorf("failed to insert override: %w", err)
		}
	}
	return nil
}

type normalized struct {
	amount   *decimal.Decimal
	currency *string
	rate     *decimal.Decimal
	rateDate *time.Time
}

func normalizedColumns(snap *models.RateSnapshot) normalized {
	if snap == nil {
		return normalized{}
	}
	return normalized{
		amount:   &snap.Amount,
		currency: &snap.Currency,
		rate:     &snap.Rate,
		rateDate: &snap.RateDate,
	}
}

func nullDecimal(d decimal.Decimal) *decimal.Decimal {
	if d.IsZero() {
		return nil
	}
	return &d
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
