package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gitlab.com/yelinaung/expense-approval/internal/database"
	"gitlab.com/yelinaung/expense-approval/internal/models"
)

func TestEventRepository(t *testing.T) {
	tx := database.TestTx(t)
	ctx := context.Background()

	company := seedCompany(t, tx)
	claim := newDraft(company.ID)
	submitted(t, claim)
	require.NoError(t, NewClaimRepository(tx).Create(ctx, claim))

	repo := NewEventRepository(tx)
	at := time.Now().UTC().Truncate(time.Microsecond)

	repo.Publish(ctx, models.StepEvent{
		ClaimID:     claim.ID,
		CompanyID:   company.ID,
		StepIndex:   0,
		From:        models.StepActive,
		To:          models.StepApproved,
		ClaimStatus: models.ClaimInReview,
		Trigger:     &models.Vote{VoterID: "mgr", Decision: models.DecisionApprove},
		At:          at,
	})
	repo.Publish(ctx, models.StepEvent{
		ClaimID:     claim.ID,
		CompanyID:   company.ID,
		StepIndex:   1,
		From:        models.StepActive,
		To:          models.StepRejected,
		ClaimStatus: models.ClaimRejected,
		Override:    &models.Override{Actor: "admin"},
		At:          at,
	})

	records, err := repo.ListByClaim(ctx, claim.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "mgr", records[0].VoterID)
	require.Empty(t, records[0].OverrideActor)
	require.Equal(t, models.StepApproved, records[0].To)
	require.Equal(t, "admin", records[1].OverrideActor)
	require.Equal(t, models.ClaimRejected, records[1].ClaimStatus)
}
