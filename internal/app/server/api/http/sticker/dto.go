package sticker

import (
	"bodytweaker/internal/domain/sticker"
)

const (
	ContentTypeTGS = "application/x-tgsticker"
	CacheFile      = "public, max-age=86400, immutable"
	CacheList      = "public, max-age=300"
	msgNoToken     = "BOT token missing"
	msgNoFileID    = "file_id is required"
	msgResolve     = "Failed to resolve file"
	msgFetch       = "Failed to fetch file"
	msgUpstream    = "Telegram API error"
	msgUnexpected  = "Unexpected error"
)

type fileInput struct {
	FileID string `query:"file_id" doc:"file_id стикера в Telegram"`
}

type fileOutput struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	Body         []byte
}

type listInput struct {
	Set   string `query:"set" doc:"Имя набора стикеров, по умолчанию из конфигурации"`
	Emoji string `query:"emoji" doc:"Эмодзи через запятую; пусто означает безопасный список"`
}

type listOutput struct {
	CacheControl string `header:"Cache-Control"`
	Body         sticker.List
}
