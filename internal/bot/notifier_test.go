package bot

import (
	"context"
	"errors"
	"testing"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/require"
	"gitlab.com/yelinaung/expense-approval/internal/bot/mocks"
	appmodels "gitlab.com/yelinaung/expense-approval/internal/models"
)

func financeActiveClaim() *appmodels.Claim {
	claim := reviewClaim(testClaimID)
	claim.Chain[0].Status = appmodels.StepApproved
	claim.Chain[0].Votes = []appmodels.Vote{{VoterID: "mgr", Decision: appmodels.DecisionApprove, CastAt: testTime}}
	claim.Chain[1].Status = appmodels.StepActive
	return claim
}

func TestNotifier_Handle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	activated := appmodels.StepEvent{
		ClaimID:     testClaimID,
		CompanyID:   1,
		StepIndex:   1,
		From:        appmodels.StepPending,
		To:          appmodels.StepActive,
		ClaimStatus: appmodels.ClaimInReview,
		At:          testTime,
	}

	t.Run("activation reaches chat and linked voters", func(t *testing.T) {
		t.Parallel()
		mockBot := mocks.NewMockBot()
		n := NewNotifier(mockBot, testNotifyChat, newFakeClaims(financeActiveClaim()), newFakeUsers())

		require.NoError(t, n.Handle(ctx, activated))

		// Chat post plus "fin"; "acct" is unknown and "cfo" has no Telegram link.
		require.Equal(t, 2, mockBot.SentMessageCount())
		require.Equal(t, testNotifyChat, mockBot.SentMessages[0].ChatID)
		require.Contains(t, mockBot.SentMessages[0].Text, "step 2: pending")

		dm := mockBot.SentMessages[1]
		require.Equal(t, int64(5004), dm.ChatID)
		require.Contains(t, dm.Text, "Your approval is needed")
		kb, ok := dm.ReplyMarkup.(*models.InlineKeyboardMarkup)
		require.True(t, ok)
		require.Equal(t, "vote:approve:claim-1:1", kb.InlineKeyboard[0][0].CallbackData)
	})

	t.Run("chat disabled", func(t *testing.T) {
		t.Parallel()
		mockBot := mocks.NewMockBot()
		n := NewNotifier(mockBot, 0, newFakeClaims(financeActiveClaim()), newFakeUsers())

		require.NoError(t, n.Handle(ctx, activated))
		require.Equal(t, 1, mockBot.SentMessageCount())
		require.Equal(t, int64(5004), mockBot.LastSentMessage().ChatID)
	})

	t.Run("voters who already voted are skipped", func(t *testing.T) {
		t.Parallel()
		claim := financeActiveClaim()
		claim.Chain[1].Votes = []appmodels.Vote{{VoterID: "fin", Decision: appmodels.DecisionReject, CastAt: testTime}}
		mockBot := mocks.NewMockBot()
		n := NewNotifier(mockBot, 0, newFakeClaims(claim), newFakeUsers())

		require.NoError(t, n.Handle(ctx, activated))
		require.Equal(t, 0, mockBot.SentMessageCount())
	})

	t.Run("stale activation sends no prompts", func(t *testing.T) {
		t.Parallel()
		mockBot := mocks.NewMockBot()
		n := NewNotifier(mockBot, 0, newFakeClaims(reviewClaim(testClaimID)), newFakeUsers())

		require.NoError(t, n.Handle(ctx, activated))
		require.Equal(t, 0, mockBot.SentMessageCount())
	})

	t.Run("terminal transition and override are described", func(t *testing.T) {
		t.Parallel()
		mockBot := mocks.NewMockBot()
		n := NewNotifier(mockBot, testNotifyChat, newFakeClaims(), newFakeUsers())

		err := n.Handle(ctx, appmodels.StepEvent{
			ClaimID:     testClaimID,
			StepIndex:   0,
			From:        appmodels.StepActive,
			To:          appmodels.StepApproved,
			ClaimStatus: appmodels.ClaimApproved,
			Override:    &appmodels.Override{Actor: "admin", Reason: "urgent <travel>"},
			At:          testTime,
		})
		require.NoError(t, err)

		text := mockBot.LastSentMessage().Text
		require.Contains(t, text, "Override by admin")
		require.Contains(t, text, "urgent &lt;travel&gt;")
		require.Contains(t, text, "Claim is now ✅ approved.")
	})

	t.Run("send failure is returned", func(t *testing.T) {
		t.Parallel()
		mockBot := mocks.NewMockBot()
		mockBot.SendMessageError = errors.New("telegram down")
		n := NewNotifier(mockBot, testNotifyChat, newFakeClaims(financeActiveClaim()), newFakeUsers())

		require.Error(t, n.Handle(ctx, activated))
	})

	t.Run("missing claim is returned", func(t *testing.T) {
		t.Parallel()
		n := NewNotifier(mocks.NewMockBot(), 0, newFakeClaims(), newFakeUsers())
		require.Error(t, n.Handle(ctx, activated))
	})
}

func TestEligibleVoters(t *testing.T) {
	t.Parallel()

	step := financeActiveClaim().Chain[1]
	require.Equal(t, []string{"fin", "acct", "cfo"}, eligibleVoters(&step))

	step.Rule = appmodels.SpecificApproverRule{ApproverID: "fin"}
	require.Equal(t, []string{"fin", "acct"}, eligibleVoters(&step))

	step.Rule = appmodels.Unanimous()
	require.Equal(t, []string{"fin", "acct"}, eligibleVoters(&step))
}
