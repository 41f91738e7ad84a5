package logger

import (
	"io"
	"os"

	"golang.org/x/exp/slog"

	"bodytweaker/internal/config"
	"bodytweaker/internal/utils/logger/handlers/slogpretty"
)

// New создает логгер в зависимости от окружения:
// local - цветной вывод для человека, dev - JSON с DEBUG, prod - JSON с INFO.
func New(env string) *slog.Logger {
	return NewWriter(env, os.Stdout)
}

// NewWriter как New, но пишет в w. CLI отправляет логи в stderr,
// чтобы не смешивать их с выводом команд.
func NewWriter(env string, w io.Writer) *slog.Logger {
	var log *slog.Logger

	switch env {
	case config.EnvDev:
		log = slog.New(
			slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case config.EnvProd:
		log = slog.New(
			slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog(w)
	}

	return log
}

func setupPrettySlog(w io.Writer) *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(w)

	return slog.New(handler)
}

// Err упаковывает ошибку в атрибут лога.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
