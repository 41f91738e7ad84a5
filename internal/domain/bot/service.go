package bot

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"bodytweaker/internal/infrastructure/telegram"

	"golang.org/x/exp/slog"
)

const (
	CommandStart = "/start"

	welcomeCaption = "🧬 *Добро пожаловать в Body Tweaker!*\n\n" +
		"Это ваш персональный инструмент для биохакинга:\n\n" +
		"• Интервальное голодание\n" +
		"• Дыхательные практики\n" +
		"• Биоритмы\n\n" +
		"Нажмите кнопку ниже, чтобы начать."
	promptText       = "Нажмите кнопку ниже, чтобы запустить приложение 👇"
	launchButtonText = "🚀 Запустить приложение"
	openButtonText   = "🚀 Открыть Body Tweaker"
	iconPath         = "/icon-512.png"
)

var ErrForbidden = errors.New("bot: webhook secret mismatch")

type Sender interface {
	SendMessage(ctx context.Context, msg telegram.SendMessageRequest) error
	SendPhoto(ctx context.Context, photo telegram.SendPhotoRequest) error
}

type Servicer interface {
	Authorize(token string) error
	Handle(ctx context.Context, upd telegram.Update) error
}

type Service struct {
	tg     Sender
	appURL string
	secret string
	log    *slog.Logger
}

func NewService(tg Sender, appURL, secret string, log *slog.Logger) *Service {
	return &Service{
		tg:     tg,
		appURL: strings.TrimRight(appURL, "/"),
		secret: secret,
		log:    log.With(slog.String("component", "bot_service")),
	}
}

// Authorize сверяет секрет вебхука. Пустой секрет в конфигурации отключает проверку.
func (s *Service) Authorize(token string) error {
	if s.secret == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.secret)) != 1 {
		return ErrForbidden
	}
	return nil
}

// Handle отвечает на текстовые сообщения: /start получает приветствие с картинкой,
// любой другой текст получает подсказку с кнопкой запуска.
func (s *Service) Handle(ctx context.Context, upd telegram.Update) error {
	if upd.Message == nil || upd.Message.Text == "" {
		return nil
	}

	chatID := upd.Message.Chat.ID
	if upd.Message.Text == CommandStart {
		s.log.Debug("sending welcome", slog.Int64("chat_id", chatID))
		return s.tg.SendPhoto(ctx, telegram.SendPhotoRequest{
			ChatID:      chatID,
			Photo:       s.appURL + iconPath,
			Caption:     welcomeCaption,
			ParseMode:   "Markdown",
			ReplyMarkup: telegram.WebAppButton(launchButtonText, s.appURL),
		})
	}

	return s.tg.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:      chatID,
		Text:        promptText,
		ReplyMarkup: telegram.WebAppButton(openButtonText, s.appURL),
	})
}
