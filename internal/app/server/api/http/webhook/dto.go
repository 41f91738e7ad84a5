package webhook

const (
	ActiveText      = "Bot is active!"
	ContentTypeText = "text/plain; charset=utf-8"
)

type updateInput struct {
	SecretToken string `header:"X-Telegram-Bot-Api-Secret-Token" doc:"Секрет вебхука, если настроен"`
	RawBody     []byte
}

type updateOutput struct {
	Body response
}

type response struct {
	OK bool `json:"ok"`
}

type statusOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}
