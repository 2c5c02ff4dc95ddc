package tools

import (
	"context"
	"encoding/json"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramTool sends a notification message to a fixed operator chat.
type TelegramTool struct {
	Bot    *tgbotapi.BotAPI
	ChatID int64
}

func NewTelegramTool(token string, chatID int64) (*TelegramTool, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &TelegramTool{Bot: bot, ChatID: chatID}, nil
}

func (t *TelegramTool) Name() string {
	return "telegram_notify"
}

func (t *TelegramTool) Description() string {
	return "Send a Telegram notification message to the operator."
}

func (t *TelegramTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "The message text to send",
			},
		},
		"required": []string{"message"},
	}
}

func (t *TelegramTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}
	if args.Message == "" {
		return "", fmt.Errorf("message is required")
	}

	msg := tgbotapi.NewMessage(t.ChatID, args.Message)
	msg.ParseMode = "Markdown"
	if _, err := t.Bot.Send(msg); err != nil {
		return "", fmt.Errorf("failed to send message: %v", err)
	}
	return "notification sent", nil
}
