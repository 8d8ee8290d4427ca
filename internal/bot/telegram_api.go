package bot

import "gitlab.com/yelinaung/expense-approval/internal/bot/mocks"

// TelegramAPI is satisfied by *bot.Bot and by mocks.MockBot.
type TelegramAPI = mocks.TelegramAPI
