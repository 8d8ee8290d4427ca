package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"gitlab.com/yelinaung/expense-approval/internal/logger"
	appmodels "gitlab.com/yelinaung/expense-approval/internal/models"
	"gitlab.com/yelinaung/expense-approval/internal/notify"
	"gitlab.com/yelinaung/expense-approval/internal/repository"
)

// ClaimReader loads claims.
type ClaimReader interface {
	Get(ctx context.Context, claimID string) (*appmodels.Claim, error)
}

// Notifier posts step transitions to Telegram. Every transition goes to the
// configured notification chat; newly active steps are also sent to each
// voter with a linked account, with vote buttons.
type Notifier struct {
	tg     TelegramAPI
	chatID int64
	claims ClaimReader
	users  UserLookup
}

var _ notify.Sink = (*Notifier)(nil)

// NewNotifier creates a Notifier. A zero chatID disables the shared chat.
func NewNotifier(tg TelegramAPI, chatID int64, claims ClaimReader, users UserLookup) *Notifier {
	return &Notifier{tg: tg, chatID: chatID, claims: claims, users: users}
}

// Handle implements notify.Sink.
func (n *Notifier) Handle(ctx context.Context, event appmodels.StepEvent) error {
	var errs []error

	if n.chatID != 0 {
		_, err := n.tg.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    n.chatID,
			Text:      formatTransition(event),
			ParseMode: models.ParseModeHTML,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to notify chat: %w", err))
		}
	}

	if event.To == appmodels.StepActive {
		if err := n.notifyVoters(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (n *Notifier) notifyVoters(ctx context.Context, event appmodels.StepEvent) error {
	claim, err := n.claims.Get(ctx, event.ClaimID)
	if err != nil {
		return fmt.Errorf("failed to load claim for notification: %w", err)
	}
	// The claim may have moved on since the event was queued.
	step := claim.ActiveStep()
	if step == nil || step.Index != event.StepIndex {
		return nil
	}

	var errs []error
	for _, voterID := range eligibleVoters(step) {
		if _, voted := step.VoteOf(voterID); voted {
			continue
		}
		user, err := n.users.GetUserByID(ctx, voterID)
		if errors.Is(err, repository.ErrUserNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to resolve voter: %w", err))
			continue
		}
		if user.TelegramID == 0 {
			continue
		}
		_, err = n.tg.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:      user.TelegramID,
			Text:        "🔔 <b>Your approval is needed</b>\n\n" + formatClaimSummary(claim),
			ParseMode:   models.ParseModeHTML,
			ReplyMarkup: voteKeyboard(claim.ID, step.Index),
		})
		if err != nil {
			logger.Log.Warn().Err(err).
				Str("claim_id", claim.ID).
				Str("voter_hash", logger.HashUserID(voterID)).
				Msg("Failed to notify voter")
			errs = append(errs, fmt.Errorf("failed to notify voter: %w", err))
		}
	}
	return errors.Join(errs...)
}

// eligibleVoters lists the voter set plus a rule-named approver outside it.
func eligibleVoters(step *appmodels.ApprovalStep) []string {
	voters := append([]string(nil), step.Voters...)
	var named string
	switch r := step.Rule.(type) {
	case appmodels.SpecificApproverRule:
		named = r.ApproverID
	case appmodels.HybridRule:
		named = r.ApproverID
	}
	if named != "" && !step.HasVoter(named) {
		voters = append(voters, named)
	}
	return voters
}

func formatTransition(event appmodels.StepEvent) string {
	text := fmt.Sprintf("🔁 Claim <code>%s</code> step %d: %s → %s %s",
		escapeHTML(event.ClaimID), event.StepIndex+1, event.From, stepLabel(event.To), event.To)
	if event.Override != nil {
		text += fmt.Sprintf("\nOverride by %s: <i>%s</i>",
			escapeHTML(event.Override.Actor), escapeHTML(event.Override.Reason))
	}
	if event.ClaimStatus.IsTerminal() {
		text += "\nClaim is now " + statusLabel(event.ClaimStatus) + "."
	}
	return text
}
