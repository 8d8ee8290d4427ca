// Package mocks provides mock implementations for testing bot handlers.
package mocks

import (
	"context"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// TelegramAPI is the subset of the Telegram client used by the approval bot.
// It lives here so the bot package and its mocks share one definition.
type TelegramAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

// SentMessage captures a message sent via MockBot.
type SentMessage struct {
	ChatID      any
	Text        string
	ParseMode   models.ParseMode
	ReplyMarkup models.ReplyMarkup
}

// EditedMessage captures an edited message via MockBot.
type EditedMessage struct {
	ChatID    any
	MessageID int
	Text      string
	ParseMode models.ParseMode
}

// AnsweredCallback captures a callback query answer via MockBot.
type AnsweredCallback struct {
	CallbackQueryID string
	Text            string
	ShowAlert       bool
}

var _ TelegramAPI = (*MockBot)(nil)

// MockBot records outgoing Telegram calls. Set SendMessageError or
// EditMessageError to make the matching call fail without being recorded.
type MockBot struct {
	mu sync.RWMutex

	SentMessages      []SentMessage
	EditedMessages    []EditedMessage
	AnsweredCallbacks []AnsweredCallback

	SendMessageError error
	EditMessageError error

	nextMessageID int
}

// NewMockBot creates a MockBot whose message ids start at 1000.
func NewMockBot() *MockBot {
	return &MockBot{nextMessageID: 1000}
}

// SendMessage implements TelegramAPI.
func (m *MockBot) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SendMessageError != nil {
		return nil, m.SendMessageError
	}
	m.SentMessages = append(m.SentMessages, SentMessage{
		ChatID:      params.ChatID,
		Text:        params.Text,
		ParseMode:   params.ParseMode,
		ReplyMarkup: params.ReplyMarkup,
	})
	id := m.nextMessageID
	m.nextMessageID++
	return message(id, params.ChatID, params.Text), nil
}

// EditMessageText implements TelegramAPI.
func (m *MockBot) EditMessageText(_ context.Context, params *bot.EditMessageTextParams) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.EditMessageError != nil {
		return nil, m.EditMessageError
	}
	m.EditedMessages = append(m.EditedMessages, EditedMessage{
		ChatID:    params.ChatID,
		MessageID: params.MessageID,
		Text:      params.Text,
		ParseMode: params.ParseMode,
	})
	return message(params.MessageID, params.ChatID, params.Text), nil
}

// AnswerCallbackQuery implements TelegramAPI.
func (m *MockBot) AnswerCallbackQuery(_ context.Context, params *bot.AnswerCallbackQueryParams) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AnsweredCallbacks = append(m.AnsweredCallbacks, AnsweredCallback{
		CallbackQueryID: params.CallbackQueryID,
		Text:            params.Text,
		ShowAlert:       params.ShowAlert,
	})
	return true, nil
}

// Reset forgets recorded calls and configured errors.
func (m *MockBot) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SentMessages = nil
	m.EditedMessages = nil
	m.AnsweredCallbacks = nil
	m.SendMessageError = nil
	m.EditMessageError = nil
}

// LastSentMessage returns the most recently sent message, or nil if none.
func (m *MockBot) LastSentMessage() *SentMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return last(m.SentMessages)
}

// LastEditedMessage returns the most recently edited message, or nil if none.
func (m *MockBot) LastEditedMessage() *EditedMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return last(m.EditedMessages)
}

// LastAnsweredCallback returns the most recent callback answer, or nil if none.
func (m *MockBot) LastAnsweredCallback() *AnsweredCallback {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return last(m.AnsweredCallbacks)
}

// SentMessageCount returns the number of messages sent.
func (m *MockBot) SentMessageCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.SentMessages)
}

func last[T any](calls []T) *T {
	if len(calls) == 0 {
		return nil
	}
	c := calls[len(calls)-1]
	return &c
}

func message(id int, chatID any, text string) *models.Message {
	msg := &models.Message{ID: id, Text: text}
	switch v := chatID.(type) {
	case int64:
		msg.Chat.ID = v
	case int:
		msg.Chat.ID = int64(v)
	}
	return msg
}
