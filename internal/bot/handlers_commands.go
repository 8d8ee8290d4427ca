package bot

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"gitlab.com/yelinaung/expense-approval/internal/approval"
	"gitlab.com/yelinaung/expense-approval/internal/logger"
	appmodels "gitlab.com/yelinaung/expense-approval/internal/models"
)

const (
	msgInternalError = "❌ Something went wrong. Please try again later."
	msgClaimNotFound = "❌ Claim not found."

	// pendingListLimit caps the claims shown by /pending.
	pendingListLimit = 10
)

// extractCommandArgs strips the /command prefix (and optional @botname suffix)
// from a message and returns the remaining trimmed arguments.
func extractCommandArgs(text, command string) string {
	args := strings.TrimSpace(strings.TrimPrefix(text, command))
	if strings.HasPrefix(args, "@") {
		if spaceIdx := strings.Index(args, " "); spaceIdx != -1 {
			args = strings.TrimSpace(args[spaceIdx:])
		} else {
			args = ""
		}
	}
	return args
}

// commandOf returns the leading /command of text without arguments or
// bot mention, or "" for plain text.
func commandOf(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd, _, _ := strings.Cut(text, " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return cmd
}

// handleStart handles the /start command.
func (b *Bot) handleStart(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleStartCore(ctx, tgBot, update)
}

// handleStartCore is the testable implementation of handleStart.
func (b *Bot) handleStartCore(ctx context.Context, tg TelegramAPI, update *models.Update) {
	if update.Message == nil {
		return
	}
	user, ok := b.currentUser(ctx, tg, update)
	if !ok {
		return
	}

	text := fmt.Sprintf(`👋 Welcome, %s!

I file your expense claims and collect votes on the ones waiting for your approval.

Use /submit to file a claim, /pending to see what needs your decision, or /help for all commands.`,
		escapeHTML(user.Name))
	b.reply(ctx, tg, update.Message.Chat.ID, text)
}

// handleHelp handles the /help command.
func (b *Bot) handleHelp(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleHelpCore(ctx, tgBot, update)
}

// handleHelpCore is the testable implementation of handleHelp.
func (b *Bot) handleHelpCore(ctx context.Context, tg TelegramAPI, update *models.Update) {
	if update.Message == nil {
		return
	}

	text := `<b>Commands</b>
/submit &lt;amount&gt; &lt;currency&gt; &lt;category&gt; [description] - file a claim for approval
/myclaims - your recent claims and their status
/pending - claims waiting for your vote
/claim &lt;id&gt; - claim details and approval history
/approve &lt;id&gt; [comment] - approve the active step
/reject &lt;id&gt; [comment] - reject the active step
/override &lt;id&gt; approve|reject &lt;reason&gt; - force an outcome (admins only)`
	b.reply(ctx, tg, update.Message.Chat.ID, text)
}

// handlePending handles the /pending command.
func (b *Bot) handlePending(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handlePendingCore(ctx, tgBot, update)
}

// handlePendingCore lists claims whose active step awaits the user's vote,
// each with approve and reject buttons.
func (b *Bot) handlePendingCore(ctx context.Context, tg TelegramAPI, update *models.Update) {
	if update.Message == nil {
		return
	}
	user, ok := b.currentUser(ctx, tg, update)
	if !ok {
		return
	}
	chatID := update.Message.Chat.ID

	claims, err := b.inbox.ListAwaitingVoter(ctx, user.ID)
	if err != nil {
		logger.Log.Error().Err(err).Str("user_hash", logger.HashUserID(user.ID)).Msg("Failed to list pending claims")
		b.reply(ctx, tg, chatID, msgInternalError)
		return
	}
	if len(claims) == 0 {
		b.reply(ctx, tg, chatID, "✅ Nothing is waiting for your approval.")
		return
	}

	b.reply(ctx, tg, chatID, fmt.Sprintf("📥 <b>%d claim(s) awaiting your vote</b>", len(claims)))
	for i, claim := range claims {
		if i == pendingListLimit {
			b.reply(ctx, tg, chatID, fmt.Sprintf("…and %d more.", len(claims)-pendingListLimit))
			break
		}
		step := claim.ActiveStep()
		if step == nil {
			continue
		}
		_, err := tg.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:      chatID,
			Text:        formatClaimSummary(claim),
			ParseMode:   models.ParseModeHTML,
			ReplyMarkup: voteKeyboard(claim.ID, step.Index),
		})
		if err != nil {
			logger.Log.Error().Err(err).Str("claim_id", claim.ID).Msg("Failed to send pending claim")
		}
	}
}

// handleClaim handles the /claim command.
func (b *Bot) handleClaim(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleClaimCore(ctx, tgBot, update)
}

// handleClaimCore shows a claim with its chain and approval history.
func (b *Bot) handleClaimCore(ctx context.Context, tg TelegramAPI, update *models.Update) {
	if update.Message == nil {
		return
	}
	user, ok := b.currentUser(ctx, tg, update)
	if !ok {
		return
	}
	chatID := update.Message.Chat.ID

	claimID := extractCommandArgs(update.Message.Text, "/claim")
	if claimID == "" {
		b.reply(ctx, tg, chatID, "Usage: <code>/claim &lt;id&gt;</code>")
		return
	}

	claim, err := b.claims.Get(ctx, claimID)
	if errors.Is(err, approval.ErrClaimNotFound) {
		b.reply(ctx, tg, chatID, msgClaimNotFound)
		return
	}
	if err != nil {
		logger.Log.Error().Err(err).Str("claim_id", claimID).Msg("Failed to load claim")
		b.reply(ctx, tg, chatID, msgInternalError)
		return
	}

	if !canViewClaim(user, claim) {
		logger.Log.Warn().
			Str("claim_id", claimID).
			Str("user_hash", logger.HashUserID(user.ID)).
			Msg("Blocked claim lookup by unrelated user")
		b.reply(ctx, tg, chatID, msgClaimNotFound)
		return
	}

	b.reply(ctx, tg, chatID, formatClaimDetail(claim, approval.BuildHistory(claim)))
}

// canViewClaim reports whether user takes part in the claim: its submitter,
// a voter or named approver on any step, or an admin of the claim's company.
func canViewClaim(user *appmodels.User, claim *appmodels.Claim) bool {
	if user.ID == claim.SubmitterID {
		return true
	}
	if user.Role == appmodels.RoleAdmin && user.CompanyID == claim.CompanyID {
		return true
	}
	for _, step := range claim.Chain {
		if slices.Contains(step.Voters, user.ID) {
			return true
		}
		if _, _, approver := approval.RuleParams(step.Rule); approver != "" && approver == user.ID {
			return true
		}
	}
	return false
}
