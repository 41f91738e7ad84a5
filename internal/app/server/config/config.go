package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"bodytweaker/internal/config"

	"github.com/spf13/viper"
)

const (
	defaultRunAddress = ":8080"
	defaultStickerSet = "animatedemojies"
	defaultSafeEmoji  = "✨,🔥,🚀,🏆,🌬️,✅,📘"
	defaultCacheTTL   = 30 * time.Minute
	defaultAPIBase    = "https://api.telegram.org"
)

type Config struct {
	Env        string
	RunAddress string
	Telegram   Telegram
}

type Telegram struct {
	Token         string
	APIBase       string
	StickerSet    string
	SafeEmoji     []string
	WebAppURL     string
	WebhookSecret string
	CacheTTL      time.Duration
}

// Load читает конфигурацию из окружения (и .env), а при непустом path
// ещё и из YAML-файла. Окружение имеет приоритет.
func Load(path string) (*Config, error) {
	config.LoadDotenv()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", config.EnvLocal)
	v.SetDefault("RUN_ADDRESS", defaultRunAddress)
	v.SetDefault("TELEGRAM_API_BASE", defaultAPIBase)
	v.SetDefault("TELEGRAM_STICKER_SET", defaultStickerSet)
	v.SetDefault("TELEGRAM_SAFE_EMOJI", defaultSafeEmoji)
	v.SetDefault("STICKER_CACHE_TTL", defaultCacheTTL)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("ошибка чтения конфигурации %s: %w", path, err)
		}
	}

	cfg := &Config{
		Env:        config.NormalizeEnv(v.GetString("APP_ENV")),
		RunAddress: v.GetString("RUN_ADDRESS"),
		Telegram: Telegram{
			Token:         v.GetString("TELEGRAM_BOT_TOKEN"),
			APIBase:       v.GetString("TELEGRAM_API_BASE"),
			StickerSet:    v.GetString("TELEGRAM_STICKER_SET"),
			SafeEmoji:     splitList(v.GetString("TELEGRAM_SAFE_EMOJI")),
			WebAppURL:     v.GetString("WEB_APP_URL"),
			WebhookSecret: v.GetString("WEBHOOK_SECRET"),
			CacheTTL:      v.GetDuration("STICKER_CACHE_TTL"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.RunAddress == "" {
		errs = append(errs, errors.New("RUN_ADDRESS не задан"))
	}
	if c.Telegram.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("STICKER_CACHE_TTL должен быть положительным: %s", c.Telegram.CacheTTL))
	}
	if _, err := url.ParseRequestURI(c.Telegram.APIBase); err != nil {
		errs = append(errs, fmt.Errorf("TELEGRAM_API_BASE некорректен: %w", err))
	}
	if c.Telegram.WebAppURL != "" {
		u, err := url.Parse(c.Telegram.WebAppURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("WEB_APP_URL должен быть абсолютным URL: %q", c.Telegram.WebAppURL))
		}
	}
	if c.Env == config.EnvProd && c.Telegram.Token == "" {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN обязателен в prod"))
	}

	return errors.Join(errs...)
}

func splitList(s string) []string {
	out := make([]string, 0)
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
