package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/expense-approval/internal/approval"
	"gitlab.com/yelinaung/expense-approval/internal/logger"
	appmodels "gitlab.com/yelinaung/expense-approval/internal/models"
)

// myClaimsLimit caps the claims shown by /myclaims.
const myClaimsLimit = 10

const submitUsage = "Usage: <code>/submit &lt;amount&gt; &lt;currency&gt; &lt;category&gt; [description]</code>\n" +
	"or <code>/submit &lt;draft id&gt;</code> to retry a saved draft."

// submitArgs is a parsed /submit request.
type submitArgs struct {
	Amount      decimal.Decimal
	Currency    string
	Category    string
	Description string
}

// parseSubmitArgs parses "<amount> <currency> <category> [description]".
// Categories may contain spaces, so the longest category name the remaining
// text starts with wins.
func parseSubmitArgs(args string) (submitArgs, error) {
	fields := strings.Fields(args)
	if len(fields) < 3 {
		return submitArgs{}, errors.New("expected an amount, a currency and a category")
	}
	amount, err := decimal.NewFromString(strings.ReplaceAll(fields[0], ",", ""))
	if err != nil {
		return submitArgs{}, fmt.Errorf("invalid amount %q", fields[0])
	}

	rest := strings.Join(fields[2:], " ")
	category := matchCategory(rest)
	if category == "" {
		return submitArgs{}, fmt.Errorf("unknown category in %q", rest)
	}
	return submitArgs{
		Amount:      amount,
		Currency:    strings.ToUpper(fields[1]),
		Category:    category,
		Description: strings.TrimSpace(rest[len(category):]),
	}, nil
}

func matchCategory(text string) string {
	var best string
	for _, name := range appmodels.ExpenseCategories {
		if len(name) <= len(best) || len(text) < len(name) {
			continue
		}
		if !strings.EqualFold(text[:len(name)], name) {
			continue
		}
		if len(text) > len(name) && text[len(name)] != ' ' {
			continue
		}
		best = name
	}
	return best
}

// submitErrorMessage maps submission failures to a reply for the submitter.
func submitErrorMessage(err error) string {
	switch {
	case errors.Is(err, approval.ErrInvalidClaim):
		return "❌ " + escapeHTML(err.Error())
	case errors.Is(err, approval.ErrRateUnavailable):
		return "💱 No exchange rate is available for this claim right now."
	case errors.Is(err, approval.ErrNoEligibleApprover):
		return "⛔ Nobody can approve this claim. Ask an admin to set your manager or approval steps."
	case errors.Is(err, approval.ErrInvalidHierarchy):
		return "⚠️ Your reporting line is misconfigured. Ask an admin to fix it."
	case errors.Is(err, approval.ErrInvalidRuleConfig):
		return "⚠️ Your company's approval rules are misconfigured. Ask an admin to fix them."
	case errors.Is(err, approval.ErrClaimFinalized):
		return "ℹ️ This claim is already finalized."
	case errors.Is(err, approval.ErrClaimNotFound):
		return msgClaimNotFound
	default:
		return msgInternalError
	}
}

// handleSubmit handles the /submit command.
func (b *Bot) handleSubmit(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleSubmitCore(ctx, tgBot, update)
}

// handleSubmitCore files a new claim and submits it for approval. A claim
// whose submission fails stays a draft and can be retried by id.
func (b *Bot) handleSubmitCore(ctx context.Context, tg TelegramAPI, update *models.Update) {
	if update.Message == nil {
		return
	}
	user, ok := b.currentUser(ctx, tg, update)
	if !ok {
		return
	}
	chatID := update.Message.Chat.ID
	args := extractCommandArgs(update.Message.Text, "/submit")

	var draftID string
	if fields := strings.Fields(args); len(fields) == 1 {
		draft, err := b.claims.Get(ctx, fields[0])
		if err != nil || draft.SubmitterID != user.ID {
			if err != nil && !errors.Is(err, approval.ErrClaimNotFound) {
				logger.Log.Error().Err(err).Str("claim_id", fields[0]).Msg("Failed to load draft")
				b.reply(ctx, tg, chatID, msgInternalError)
				return
			}
			b.reply(ctx, tg, chatID, msgClaimNotFound)
			return
		}
		draftID = draft.ID
	} else {
		parsed, err := parseSubmitArgs(args)
		if err != nil {
			b.reply(ctx, tg, chatID, "❌ "+escapeHTML(err.Error())+"\n\n"+submitUsage)
			return
		}
		draft, err := b.claims.CreateDraft(ctx, approval.DraftInput{
			CompanyID:   user.CompanyID,
			SubmitterID: user.ID,
			Amount:      parsed.Amount,
			Currency:    parsed.Currency,
			Category:    parsed.Category,
			ExpenseDate: time.Now().UTC().Truncate(24 * time.Hour),
			Description: parsed.Description,
		})
		if err != nil {
			b.replySubmitError(ctx, tg, chatID, "", err)
			return
		}
		draftID = draft.ID
	}

	claim, err := b.claims.Submit(ctx, draftID)
	if err != nil {
		b.replySubmitError(ctx, tg, chatID, draftID, err)
		return
	}

	text := "📨 Claim submitted.\n\n" + formatClaimSummary(claim)
	b.reply(ctx, tg, chatID, text)
}

func (b *Bot) replySubmitError(ctx context.Context, tg TelegramAPI, chatID int64, draftID string, err error) {
	text := submitErrorMessage(err)
	if text == msgInternalError {
		logger.Log.Error().Err(err).Str("claim_id", draftID).Msg("Claim submission failed")
	}
	if draftID != "" && isRetryableSubmitError(err) {
		text += fmt.Sprintf("\n\nYour claim is saved as draft <code>%s</code>. Send <code>/submit %s</code> to try again.",
			escapeHTML(draftID), escapeHTML(draftID))
	}
	b.reply(ctx, tg, chatID, text)
}

// isRetryableSubmitError reports whether the draft can be submitted again
// once the rate source or the company setup is fixed.
func isRetryableSubmitError(err error) bool {
	return errors.Is(err, approval.ErrRateUnavailable) ||
		errors.Is(err, approval.ErrNoEligibleApprover) ||
		errors.Is(err, approval.ErrInvalidHierarchy) ||
		errors.Is(err, approval.ErrInvalidRuleConfig) ||
		submitErrorMessage(err) == msgInternalError
}

// handleMyClaims handles the /myclaims command.
func (b *Bot) handleMyClaims(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleMyClaimsCore(ctx, tgBot, update)
}

// handleMyClaimsCore lists the user's most recent claims with their status.
func (b *Bot) handleMyClaimsCore(ctx context.Context, tg TelegramAPI, update *models.Update) {
	if update.Message == nil {
		return
	}
	user, ok := b.currentUser(ctx, tg, update)
	if !ok {
		return
	}
	chatID := update.Message.Chat.ID

	claims, err := b.inbox.ListBySubmitter(ctx, user.ID, myClaimsLimit)
	if err != nil {
		logger.Log.Error().Err(err).Str("user_hash", logger.HashUserID(user.ID)).Msg("Failed to list own claims")
		b.reply(ctx, tg, chatID, msgInternalError)
		return
	}
	if len(claims) == 0 {
		b.reply(ctx, tg, chatID, "You have no claims yet. Use /submit to file one.")
		return
	}

	var sb strings.Builder
	sb.WriteString("🗂 <b>Your recent claims</b>\n")
	for _, claim := range claims {
		sb.WriteString("\n")
		sb.WriteString(formatClaimLine(claim))
	}
	b.reply(ctx, tg, chatID, sb.String())
}
