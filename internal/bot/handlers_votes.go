package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"gitlab.com/yelinaung/expense-approval/internal/approval"
	"gitlab.com/yelinaung/expense-approval/internal/logger"
	appmodels "gitlab.com/yelinaung/expense-approval/internal/models"
)

// voteCallbackPrefix starts inline button data: vote:<decision>:<claim>:<step>.
const voteCallbackPrefix = "vote:"

// parseVoteArgs splits "<claim id> [comment]".
func parseVoteArgs(args string) (claimID, comment string) {
	claimID, comment, _ = strings.Cut(strings.TrimSpace(args), " ")
	return claimID, strings.TrimSpace(comment)
}

// parseOverrideArgs splits "<claim id> approve|reject <reason>".
func parseOverrideArgs(args string) (claimID string, status appmodels.ClaimStatus, reason string, err error) {
	fields := strings.Fields(args)
	if len(fields) < 3 {
		return "", "", "", errors.New("expected a claim id, approve or reject, and a reason")
	}
	switch strings.ToLower(fields[1]) {
	case "approve", "approved":
		status = appmodels.ClaimApproved
	case "reject", "rejected":
		status = appmodels.ClaimRejected
	default:
		return "", "", "", fmt.Errorf("unknown outcome %q", fields[1])
	}
	return fields[0], status, strings.Join(fields[2:], " "), nil
}

func voteCallbackData(decision appmodels.Decision, claimID string, stepIndex int) string {
	return fmt.Sprintf("%s%s:%s:%d", voteCallbackPrefix, decision, claimID, stepIndex)
}

func parseVoteCallback(data string) (decision appmodels.Decision, claimID string, stepIndex int, err error) {
	parts := strings.Split(strings.TrimPrefix(data, voteCallbackPrefix), ":")
	if len(parts) != 3 {
		return "", "", 0, fmt.Errorf("malformed vote callback %q", data)
	}
	decision = appmodels.Decision(parts[0])
	if !decision.IsValid() {
		return "", "", 0, fmt.Errorf("unknown decision %q", parts[0])
	}
	stepIndex, err = strconv.Atoi(parts[2])
	if err != nil || stepIndex < 0 {
		return "", "", 0, fmt.Errorf("invalid step in vote callback %q", data)
	}
	return decision, parts[1], stepIndex, nil
}

func voteKeyboard(claimID string, stepIndex int) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{{
			{Text: "✅ Approve", CallbackData: voteCallbackData(appmodels.DecisionApprove, claimID, stepIndex)},
			{Text: "❌ Reject", CallbackData: voteCallbackData(appmodels.DecisionReject, claimID, stepIndex)},
		}},
	}
}

// voteErrorMessage maps engine errors to a reply for the voter.
func voteErrorMessage(err error) string {
	switch {
	case errors.Is(err, approval.ErrClaimNotFound):
		return msgClaimNotFound
	case errors.Is(err, approval.ErrDuplicateVote):
		return "ℹ️ You already voted on this step."
	case errors.Is(err, approval.ErrStaleStep):
		return "ℹ️ That step is no longer open for voting."
	case errors.Is(err, approval.ErrClaimFinalized):
		return "ℹ️ This claim is already finalized."
	case errors.Is(err, approval.ErrNotSubmitted):
		return "ℹ️ This claim has not been submitted yet."
	case errors.Is(err, approval.ErrIneligibleVoter):
		return "⛔ You are not an approver on the active step."
	case errors.Is(err, approval.ErrConcurrentUpdate):
		return "⚠️ The claim changed while you were voting. Please try again."
	case errors.Is(err, approval.ErrUnauthorized):
		return "⛔ Only admins can override claims."
	case errors.Is(err, approval.ErrInvalidOverride):
		return "❌ That override is not allowed for this claim."
	default:
		return msgInternalError
	}
}

func isExpectedVoteError(err error) bool {
	return voteErrorMessage(err) != msgInternalError
}

// handleApprove handles the /approve command.
func (b *Bot) handleApprove(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleVoteCommandCore(ctx, tgBot, update, "/approve", appmodels.DecisionApprove)
}

// handleReject handles the /reject command.
func (b *Bot) handleReject(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleVoteCommandCore(ctx, tgBot, update, "/reject", appmodels.DecisionReject)
}

// handleVoteCommandCore votes on the claim's active step.
func (b *Bot) handleVoteCommandCore(
	ctx context.Context,
	tg TelegramAPI,
	update *models.Update,
	command string,
	decision appmodels.Decision,
) {
	if update.Message == nil {
		return
	}
	user, ok := b.currentUser(ctx, tg, update)
	if !ok {
		return
	}
	chatID := update.Message.Chat.ID

	claimID, comment := parseVoteArgs(extractCommandArgs(update.Message.Text, command))
	if claimID == "" {
		b.reply(ctx, tg, chatID, fmt.Sprintf("Usage: <code>%s &lt;id&gt; [comment]</code>", command))
		return
	}

	claim, err := b.claims.Get(ctx, claimID)
	if err != nil {
		b.replyVoteError(ctx, tg, chatID, claimID, err)
		return
	}
	stepIndex := -1
	if step := claim.ActiveStep(); step != nil {
		stepIndex = step.Index
	}

	res, err := b.claims.CastVote(ctx, approval.VoteRequest{
		ClaimID:   claimID,
		StepIndex: stepIndex,
		VoterID:   user.ID,
		Decision:  decision,
		Comment:   comment,
	})
	if err != nil {
		b.replyVoteError(ctx, tg, chatID, claimID, err)
		return
	}
	b.reply(ctx, tg, chatID, formatVoteReceipt(decision, res.Claim))
}

// handleVoteCallback handles the inline approve and reject buttons.
func (b *Bot) handleVoteCallback(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleVoteCallbackCore(ctx, tgBot, update)
}

// handleVoteCallbackCore votes on the step the button was issued for, so a
// button left over from an earlier step fails as stale.
func (b *Bot) handleVoteCallbackCore(ctx context.Context, tg TelegramAPI, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	query := update.CallbackQuery

	answer := func(text string) {
		if _, err := tg.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
			CallbackQueryID: query.ID,
			Text:            text,
		}); err != nil {
			logger.Log.Error().Err(err).Msg("Failed to answer callback query")
		}
	}

	user, ok := b.currentUser(ctx, tg, update)
	if !ok {
		answer("Not registered")
		return
	}

	decision, claimID, stepIndex, err := parseVoteCallback(query.Data)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Ignoring malformed vote callback")
		answer("Unknown action")
		return
	}

	res, err := b.claims.CastVote(ctx, approval.VoteRequest{
		ClaimID:   claimID,
		StepIndex: stepIndex,
		VoterID:   user.ID,
		Decision:  decision,
	})
	if err != nil {
		if !isExpectedVoteError(err) {
			logger.Log.Error().Err(err).Str("claim_id", claimID).Msg("Failed to cast vote")
		}
		answer(voteErrorMessage(err))
		return
	}
	answer("Vote recorded")

	if msg := query.Message.Message; msg != nil {
		_, err := tg.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:    msg.Chat.ID,
			MessageID: msg.ID,
			Text:      formatClaimSummary(res.Claim) + "\n\n" + formatVoteReceipt(decision, res.Claim),
			ParseMode: models.ParseModeHTML,
		})
		if err != nil {
			logger.Log.Error().Err(err).Str("claim_id", claimID).Msg("Failed to update vote message")
		}
	}
}

// handleOverride handles the /override command.
func (b *Bot) handleOverride(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleOverrideCore(ctx, tgBot, update)
}

// handleOverrideCore forces a claim outcome. The engine checks the admin role.
func (b *Bot) handleOverrideCore(ctx context.Context, tg TelegramAPI, update *models.Update) {
	if update.Message == nil {
		return
	}
	user, ok := b.currentUser(ctx, tg, update)
	if !ok {
		return
	}
	chatID := update.Message.Chat.ID

	claimID, status, reason, err := parseOverrideArgs(extractCommandArgs(update.Message.Text, "/override"))
	if err != nil {
		b.reply(ctx, tg, chatID, "Usage: <code>/override &lt;id&gt; approve|reject &lt;reason&gt;</code>")
		return
	}

	claim, err := b.claims.Override(ctx, approval.OverrideRequest{
		ClaimID: claimID,
		Actor:   user.ID,
		Reason:  reason,
		Status:  status,
	})
	if err != nil {
		b.replyVoteError(ctx, tg, chatID, claimID, err)
		return
	}
	b.reply(ctx, tg, chatID, fmt.Sprintf("⚖️ Claim <code>%s</code> is now <b>%s</b>.",
		escapeHTML(claim.ID), statusLabel(claim.Status)))
}

func (b *Bot) replyVoteError(ctx context.Context, tg TelegramAPI, chatID int64, claimID string, err error) {
	if !isExpectedVoteError(err) {
		logger.Log.Error().Err(err).Str("claim_id", claimID).Msg("Claim command failed")
	}
	b.reply(ctx, tg, chatID, voteErrorMessage(err))
}
