package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"support-chat/backend/pkg/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramConfig configures the bot used for operator alerts
type TelegramConfig struct {
	Token string
	// Endpoint overrides tgbotapi.APIEndpoint, format "<base>/bot%s/%s"
	Endpoint   string
	Timeout    time.Duration
	Recipients []int64
}

// TelegramChannel sends notifications through the Telegram Bot API
type TelegramChannel struct {
	bot        *tgbotapi.BotAPI
	recipients map[int64]struct{}
	log        *logger.Logger
}

type botLogger struct {
	log *logger.Logger
}

func (l botLogger) Println(v ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l botLogger) Printf(format string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, v...))
}

// NewTelegramChannel authenticates the bot token against the API
func NewTelegramChannel(cfg TelegramConfig, log *logger.Logger) (*TelegramChannel, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram bot token is empty")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = tgbotapi.APIEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = logger.GetGlobal()
	}
	log = log.WithComponent("telegram")
	_ = tgbotapi.SetLogger(botLogger{log: log})

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.Endpoint, &http.Client{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	log.Info("Telegram bot authorized", "username", bot.Self.UserName)

	recipients := make(map[int64]struct{}, len(cfg.Recipients))
	for _, id := range cfg.Recipients {
		recipients[id] = struct{}{}
	}
	return &TelegramChannel{bot: bot, recipients: recipients, log: log}, nil
}

// Send posts text to recipient. HTTPS links become an inline button; other links are appended to the text.
func (t *TelegramChannel) Send(ctx context.Context, recipient int64, text, link string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(recipient, text)
	switch {
	case strings.HasPrefix(link, "https://"):
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonURL("💬 Open chat", link),
			),
		)
	case link != "":
		msg.Text += "\n\n" + link
	}

	if _, err := t.bot.Send(msg); err != nil {
		return classifyTelegramError(err)
	}
	return nil
}

func classifyTelegramError(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrRejected, apiErr.Message)
		}
	}
	return err
}

// Listen answers every incoming message with a status line until ctx is cancelled
func (t *TelegramChannel) Listen(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)

	t.log.Info("Telegram update listener started")
	for {
		select {
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			t.log.Info("Telegram update listener stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			t.reply(update.Message)
		}
	}
}

func (t *TelegramChannel) reply(in *tgbotapi.Message) {
	msg := tgbotapi.NewMessage(in.Chat.ID, t.statusText(in.Chat.ID))
	msg.ReplyToMessageID = in.MessageID
	if _, err := t.bot.Send(msg); err != nil {
		t.log.LogError(err, "Failed to answer Telegram message", "chat", in.Chat.ID)
	}
}

func (t *TelegramChannel) statusText(chatID int64) string {
	if _, ok := t.recipients[chatID]; ok {
		return fmt.Sprintf("✅ Support bot is running.\nThis chat (%d) receives new message alerts.", chatID)
	}
	return fmt.Sprintf("✅ Support bot is running.\nYour chat ID is %d. Add it to OPERATOR_CHAT_IDS to receive alerts.", chatID)
}
