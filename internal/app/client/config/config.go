package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"bodytweaker/internal/app/client/crypto"
	"bodytweaker/internal/config"

	"github.com/spf13/viper"
)

const (
	defaultConfigDir     = ".bodytweaker"
	defaultDataFile      = "storage.db"
	defaultLocalQuota    = 5 << 20
	defaultNATSURL       = "nats://127.0.0.1:4222"
	defaultNATSBucket    = "bodytweaker"
	defaultCloudTimeout  = 500
	defaultMaxValueBytes = 4096
	defaultMaxKeys       = 1024
	defaultSafetyRatio   = 0.8
	defaultHistoryMax    = 1000
	defaultFlushInterval = 30

	CloudNATS   = "nats"
	CloudMemory = "memory"
)

var ErrDevKeyInProd = errors.New("STORAGE_KEY не задан или совпадает с ключом разработки")

type Config struct {
	Env     string
	Data    Data
	Cloud   Cloud
	History History
	Flush   time.Duration
}

type Data struct {
	Dir        string
	Path       string
	Key        string
	KDF        string
	LocalQuota int64
}

type Cloud struct {
	Enabled       bool
	Backend       string
	NATSURL       string
	Bucket        string
	UserID        int64
	Timeout       time.Duration
	MaxValueBytes int
	MaxKeys       int
}

type History struct {
	SafetyRatio float64
	MaxItems    int
}

// Load собирает конфигурацию клиента: окружение, .env и необязательный YAML-файл.
func Load(path string) (*Config, error) {
	config.LoadDotenv()

	v := viper.New()
	v.AutomaticEnv()

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	v.SetDefault("APP_ENV", config.EnvLocal)
	v.SetDefault("DATA_DIR", filepath.Join(home, defaultConfigDir))
	v.SetDefault("STORAGE_KDF", crypto.KDFPBKDF2)
	v.SetDefault("LOCAL_QUOTA_BYTES", defaultLocalQuota)
	v.SetDefault("CLOUD_ENABLED", false)
	v.SetDefault("CLOUD_BACKEND", CloudNATS)
	v.SetDefault("NATS_URL", defaultNATSURL)
	v.SetDefault("NATS_BUCKET", defaultNATSBucket)
	v.SetDefault("CLOUD_USER_ID", 1)
	v.SetDefault("CLOUD_TIMEOUT_MS", defaultCloudTimeout)
	v.SetDefault("CLOUD_MAX_VALUE_BYTES", defaultMaxValueBytes)
	v.SetDefault("CLOUD_MAX_KEYS", defaultMaxKeys)
	v.SetDefault("SHARD_SAFETY_RATIO", defaultSafetyRatio)
	v.SetDefault("HISTORY_MAX_ITEMS", defaultHistoryMax)
	v.SetDefault("FLUSH_INTERVAL_SECONDS", defaultFlushInterval)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("ошибка чтения конфигурации %s: %w", path, err)
		}
	}

	env := config.NormalizeEnv(v.GetString("APP_ENV"))
	dir := v.GetString("DATA_DIR")
	dataPath := v.GetString("DATA_PATH")
	if dataPath == "" {
		dataPath = filepath.Join(dir, defaultDataFile)
	}

	key := v.GetString("STORAGE_KEY")
	if key == "" && env != config.EnvProd {
		key = crypto.DevStorageKey
	}

	cfg := &Config{
		Env: env,
		Data: Data{
			Dir:        dir,
			Path:       dataPath,
			Key:        key,
			KDF:        v.GetString("STORAGE_KDF"),
			LocalQuota: v.GetInt64("LOCAL_QUOTA_BYTES"),
		},
		Cloud: Cloud{
			Enabled:       v.GetBool("CLOUD_ENABLED"),
			Backend:       v.GetString("CLOUD_BACKEND"),
			NATSURL:       v.GetString("NATS_URL"),
			Bucket:        v.GetString("NATS_BUCKET"),
			UserID:        v.GetInt64("CLOUD_USER_ID"),
			Timeout:       time.Duration(v.GetInt("CLOUD_TIMEOUT_MS")) * time.Millisecond,
			MaxValueBytes: v.GetInt("CLOUD_MAX_VALUE_BYTES"),
			MaxKeys:       v.GetInt("CLOUD_MAX_KEYS"),
		},
		History: History{
			SafetyRatio: v.GetFloat64("SHARD_SAFETY_RATIO"),
			MaxItems:    v.GetInt("HISTORY_MAX_ITEMS"),
		},
		Flush: time.Duration(v.GetInt("FLUSH_INTERVAL_SECONDS")) * time.Second,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.IsProd() && (c.Data.Key == "" || c.Data.Key == crypto.DevStorageKey) {
		errs = append(errs, ErrDevKeyInProd)
	}
	if c.Data.Key == "" {
		errs = append(errs, errors.New("STORAGE_KEY не может быть пустым"))
	}
	if c.Data.KDF != crypto.KDFPBKDF2 && c.Data.KDF != crypto.KDFArgon2 {
		errs = append(errs, fmt.Errorf("STORAGE_KDF: неподдерживаемый алгоритм %q", c.Data.KDF))
	}
	if c.Data.Path == "" {
		errs = append(errs, errors.New("DATA_PATH не может быть пустым"))
	}
	if c.Data.LocalQuota <= 0 {
		errs = append(errs, errors.New("LOCAL_QUOTA_BYTES должен быть положительным"))
	}
	if c.Cloud.Enabled {
		if c.Cloud.Backend != CloudNATS && c.Cloud.Backend != CloudMemory {
			errs = append(errs, fmt.Errorf("CLOUD_BACKEND: неизвестный бэкенд %q", c.Cloud.Backend))
		}
		if c.Cloud.Backend == CloudNATS && c.Cloud.NATSURL == "" {
			errs = append(errs, errors.New("NATS_URL не может быть пустым"))
		}
		if c.Cloud.UserID <= 0 {
			errs = append(errs, errors.New("CLOUD_USER_ID должен быть положительным"))
		}
	}
	if c.Cloud.Timeout <= 0 {
		errs = append(errs, errors.New("CLOUD_TIMEOUT_MS должен быть положительным"))
	}
	if c.Cloud.MaxValueBytes <= 0 {
		errs = append(errs, errors.New("CLOUD_MAX_VALUE_BYTES должен быть положительным"))
	}
	if c.History.SafetyRatio <= 0 || c.History.SafetyRatio > 1 {
		errs = append(errs, fmt.Errorf("SHARD_SAFETY_RATIO вне (0, 1]: %v", c.History.SafetyRatio))
	}
	if c.History.MaxItems <= 0 {
		errs = append(errs, errors.New("HISTORY_MAX_ITEMS должен быть положительным"))
	}
	if c.Flush <= 0 {
		errs = append(errs, errors.New("FLUSH_INTERVAL_SECONDS должен быть положительным"))
	}

	return errors.Join(errs...)
}

func (c *Config) IsProd() bool {
	return c.Env == config.EnvProd
}
