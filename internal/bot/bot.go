// Package bot provides the Telegram voting surface and transition notifier.
package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"gitlab.com/yelinaung/expense-approval/internal/approval"
	"gitlab.com/yelinaung/expense-approval/internal/config"
	"gitlab.com/yelinaung/expense-approval/internal/logger"
	"gitlab.com/yelinaung/expense-approval/internal/models"
	"gitlab.com/yelinaung/expense-approval/internal/repository"
)

// ClaimService is the part of approval.Engine the bot drives.
type ClaimService interface {
	ClaimReader
	CreateDraft(ctx context.Context, in approval.DraftInput) (*models.Claim, error)
	Submit(ctx context.Context, claimID string) (*models.Claim, error)
	CastVote(ctx context.Context, req approval.VoteRequest) (*approval.VoteResult, error)
	Override(ctx context.Context, req approval.OverrideRequest) (*models.Claim, error)
}

// UserLookup resolves application users.
type UserLookup interface {
	GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// Inbox lists the claims waiting on a voter and the claims a user filed.
type Inbox interface {
	ListAwaitingVoter(ctx context.Context, voterID string) ([]*models.Claim, error)
	ListBySubmitter(ctx context.Context, submitterID string, limit int) ([]*models.Claim, error)
}

var (
	_ ClaimService = (*approval.Engine)(nil)
	_ ClaimReader  = (*repository.ClaimRepository)(nil)
	_ UserLookup   = (*repository.UserRepository)(nil)
	_ Inbox        = (*repository.ClaimRepository)(nil)
)

// Bot wraps the Telegram bot with application dependencies.
type Bot struct {
	bot    *bot.Bot
	cfg    *config.Config
	claims ClaimService
	users  UserLookup
	inbox  Inbox
}

// New creates a new Bot instance.
func New(cfg *config.Config, claims ClaimService, users UserLookup, inbox Inbox) (*Bot, error) {
	b := newBot(cfg, claims, users, inbox)

	opts := []bot.Option{
		bot.WithMiddlewares(b.registeredUserMiddleware),
		bot.WithDefaultHandler(b.defaultHandler),
	}

	telegramBot, err := bot.New(cfg.TelegramBotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b.bot = telegramBot
	b.registerHandlers()

	return b, nil
}

func newBot(cfg *config.Config, claims ClaimService, users UserLookup, inbox Inbox) *Bot {
	return &Bot{cfg: cfg, claims: claims, users: users, inbox: inbox}
}

// API exposes the Telegram client for the notifier.
func (b *Bot) API() TelegramAPI {
	return b.bot
}

// Start begins polling for updates and blocks until ctx is done.
func (b *Bot) Start(ctx context.Context) {
	logger.Log.Info().Msg("Bot started polling")
	b.bot.Start(ctx)
}

// registerHandlers sets up command handlers.
func (b *Bot) registerHandlers() {
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, b.handleStart)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypePrefix, b.handleHelp)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/pending", bot.MatchTypePrefix, b.handlePending)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/submit", bot.MatchTypePrefix, b.handleSubmit)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/myclaims", bot.MatchTypePrefix, b.handleMyClaims)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/claim", bot.MatchTypePrefix, b.handleClaim)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/approve", bot.MatchTypePrefix, b.handleApprove)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/reject", bot.MatchTypePrefix, b.handleReject)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/override", bot.MatchTypePrefix, b.handleOverride)
	b.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, voteCallbackPrefix, bot.MatchTypePrefix, b.handleVoteCallback)
}

type userContextKey struct{}

func withUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// registeredUserMiddleware only lets through Telegram accounts linked to an
// application user.
func (b *Bot) registeredUserMiddleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, tgBot *bot.Bot, update *tgmodels.Update) {
		user, ok := b.authorize(ctx, tgBot, update)
		if !ok {
			return
		}
		next(withUser(ctx, user), tgBot, update)
	}
}

func (b *Bot) authorize(ctx context.Context, tg TelegramAPI, update *tgmodels.Update) (*models.User, bool) {
	telegramID := extractUserID(update)
	if telegramID == 0 {
		return nil, false
	}
	logUserAction(telegramID, update)

	user, err := b.users.GetByTelegramID(ctx, telegramID)
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		logger.Log.Warn().
			Str("user_hash", logger.HashChatID(telegramID)).
			Msg("Blocked unregistered user")
		if update.Message != nil {
			b.reply(ctx, tg, update.Message.Chat.ID, "⛔ Your Telegram account is not linked to an expense approval user.")
		}
		return nil, false
	case err != nil:
		logger.Log.Error().Err(err).Msg("Failed to resolve Telegram user")
		if update.Message != nil {
			b.reply(ctx, tg, update.Message.Chat.ID, msgInternalError)
		}
		return nil, false
	}
	return user, true
}

// currentUser returns the user placed in ctx by the middleware, falling back
// to a lookup for handlers invoked directly.
func (b *Bot) currentUser(ctx context.Context, tg TelegramAPI, update *tgmodels.Update) (*models.User, bool) {
	if user, ok := ctx.Value(userContextKey{}).(*models.User); ok && user != nil {
		return user, true
	}
	return b.authorize(ctx, tg, update)
}

// logUserAction logs the user's input without message content.
func logUserAction(telegramID int64, update *tgmodels.Update) {
	switch {
	case update.Message != nil:
		logger.Log.Info().
			Str("user_hash", logger.HashChatID(telegramID)).
			Str("command", commandOf(update.Message.Text)).
			Msg("User input")
	case update.CallbackQuery != nil:
		logger.Log.Info().
			Str("user_hash", logger.HashChatID(telegramID)).
			Msg("Callback query")
	}
}

// extractUserID gets the user ID from various update types.
func extractUserID(update *tgmodels.Update) int64 {
	if update.Message != nil && update.Message.From != nil {
		return update.Message.From.ID
	}
	if update.CallbackQuery != nil {
		return update.CallbackQuery.From.ID
	}
	return 0
}

// defaultHandler points users at /help for anything unrecognized.
func (b *Bot) defaultHandler(ctx context.Context, tgBot *bot.Bot, update *tgmodels.Update) {
	b.defaultHandlerCore(ctx, tgBot, update)
}

func (b *Bot) defaultHandlerCore(ctx context.Context, tg TelegramAPI, update *tgmodels.Update) {
	if update.Message == nil {
		return
	}
	b.reply(ctx, tg, update.Message.Chat.ID, "I only understand commands. Use /help to see them.")
}

func (b *Bot) reply(ctx context.Context, tg TelegramAPI, chatID int64, text string) {
	_, err := tg.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: tgmodels.ParseModeHTML,
	})
	if err != nil {
		logger.Log.Error().Err(err).Str("chat_hash", logger.HashChatID(chatID)).Msg("Failed to send message")
	}
}
