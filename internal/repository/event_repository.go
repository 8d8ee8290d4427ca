package repository

import (
	"context"
	"fmt"
	"time"

	"gitlab.com/yelinaung/expense-approval/internal/database"
	"gitlab.com/yelinaung/expense-approval/internal/logger"
	"gitlab.com/yelinaung/expense-approval/internal/models"
)

// EventRepository persists step transitions as an audit trail.
type EventRepository struct {
	db database.PGXDB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db database.PGXDB) *EventRepository {
	return &EventRepository{db: db}
}

// Publish stores the event. Failures are logged rather than returned.
func (r *EventRepository) Publish(ctx context.Context, event models.StepEvent) {
	if err := r.Insert(ctx, event); err != nil {
		logger.Log.Error().Err(err).
			Str("claim_id", event.ClaimID).
			Int("step", event.StepIndex).
			Msg("Failed to record step event")
	}
}

// Insert stores one event.
func (r *EventRepository) Insert(ctx context.Context, event models.StepEvent) error {
	var voterID, overrideActor *string
	if event.Trigger != nil {
		voterID = &event.Trigger.VoterID
	}
	if event.Override != nil {
		overrideActor = &event.Override.Actor
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO claim_events (claim_id, company_id, step_index, from_status, to_status, claim_status,
			voter_id, override_actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, event.ClaimID, event.CompanyID, event.StepIndex, event.From, event.To, event.ClaimStatus,
		voterID, overrideActor, event.At)
	if err != nil {
		return fmt.Errorf("failed to insert step event: %w", err)
	}
	return nil
}

// EventRecord is a stored step transition.
type EventRecord struct {
	ID            int64
	ClaimID       string
	StepIndex     int
	From          models.StepStatus
	To            models.StepStatus
	ClaimStatus   models.ClaimStatus
	VoterID       string
	OverrideActor string
	CreatedAt     time.Time
}

// ListByClaim returns the claim's recorded transitions in insertion order.
func (r *EventRepository) ListByClaim(ctx context.Context, claimID string) ([]EventRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, claim_id, step_index, from_status, to_status, claim_status, voter_id, override_actor, created_at
		FROM claim_events WHERE claim_id = $1
		ORDER BY id
	`, claimID)
	if err != nil {
		return nil, fmt.Errorf("failed to query step events: %w", err)
	}
	defer rows.Close()

	var records []EventRecord
	for rows.Next() {
		var (
			rec           EventRecord
			voterID       *string
			overrideActor *string
		)
		if err := rows.Scan(&rec.ID, &rec.ClaimID, &rec.StepIndex, &rec.From, &rec.To, &rec.ClaimStatus,
			&voterID, &overrideActor, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan step event: %w", err)
		}
		rec.VoterID = deref(voterID)
		rec.OverrideActor = deref(overrideActor)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating step events: %w", err)
	}
	return records, nil
}
