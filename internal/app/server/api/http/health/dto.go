package health

type Input struct{}

type Output struct {
	Body Response
}

type Response struct {
	Status   string `json:"status" example:"OK" doc:"Состояние сервиса"`
	Telegram string `json:"telegram" enum:"configured,missing" doc:"Задан ли токен бота"`
	Uptime   int64  `json:"uptime_seconds" doc:"Время работы процесса, секунды"`
}
