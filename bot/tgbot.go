package bot

import (
	"OmniHub/internal/lib/sl"
	"fmt"
	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"log/slog"
	"strings"
)

// TgBot delivers operational alerts to the admin chat. It is send-only;
// the service never reacts to incoming Telegram updates.
type TgBot struct {
	log         *slog.Logger
	api         *tgbotapi.Bot
	botUsername string
	adminId     int64
}

func NewTgBot(botName, apiKey string, adminId int64, log *slog.Logger) (*TgBot, error) {
	tgBot := &TgBot{
		log:         log.With(sl.Module("tgbot")),
		adminId:     adminId,
		botUsername: botName,
	}

	api, err := tgbotapi.NewBot(apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating api instance: %v", err)
	}
	tgBot.api = api

	return tgBot, nil
}

func (t *TgBot) SendMessage(msg string) {

	t.plainResponse(t.adminId, msg)
}

func (t *TgBot) plainResponse(chatId int64, text string) {

	text = strings.ReplaceAll(text, "**", "*")
	text = strings.ReplaceAll(text, "![", "[")

	sanitized := sanitize(text, false)

	if sanitized != "" {
		_, err := t.api.SendMessage(chatId, sanitized, &tgbotapi.SendMessageOpts{
			ParseMode: "MarkdownV2",
		})
		if err != nil {
			t.log.With(
				slog.Int64("id", chatId),
			).Warn("sending message", sl.Err(err))
			_, err = t.api.SendMessage(chatId, sanitized, &tgbotapi.SendMessageOpts{})
			if err != nil {
				t.log.With(
					slog.Int64("id", chatId),
				).Error("sending safe message", sl.Err(err))
			}
		}
	} else {
		t.log.With(
			slog.Int64("id", chatId),
		).Debug("empty message")
	}
}

func sanitize(input string, preserveLinks bool) string {
	// Define a list of reserved characters that need to be escaped
	reservedChars := "\\`_{}#+-.!|()[]"
	if preserveLinks {
		reservedChars = "\\`_{}#+-.!|"
	}

	sanitized := ""
	for _, char := range input {
		if strings.ContainsRune(reservedChars, char) {
			sanitized += "\\" + string(char)
		} else {
			sanitized += string(char)
		}
	}

	return sanitized
}
