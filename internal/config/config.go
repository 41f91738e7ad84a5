package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// LoadDotenv подгружает .env из текущей или родительской директории, если файл есть.
// Переменные окружения, заданные явно, не перезаписываются.
func LoadDotenv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env", "../.env"}
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			fmt.Fprintf(os.Stderr, "Ошибка загрузки .env файла %s: %v\n", p, err)
		}
		return
	}
}

// NormalizeEnv приводит пустое окружение к local.
func NormalizeEnv(env string) string {
	switch env {
	case EnvDev, EnvProd:
		return env
	default:
		return EnvLocal
	}
}
