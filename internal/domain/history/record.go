package history

import (
	"encoding/json"
	"math"
	"time"
)

type RecordType string

const (
	TypeFasting   RecordType = "fasting"
	TypeBreathing RecordType = "breathing"
)

// Record - завершенная сессия голодания или дыхания
type Record struct {
	ID              string     `json:"id"`
	Type            RecordType `json:"type"`
	Scheme          string     `json:"scheme"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         time.Time  `json:"endTime"`
	DurationSeconds int64      `json:"durationSeconds"`
}

// DecodeRecord разбирает запись из JSON. ok == false для записи неправильной формы:
// id не строка, неизвестный type, неразбираемые даты или отрицательная длительность.
func DecodeRecord(raw json.RawMessage) (Record, bool) {
	var shape struct {
		ID              any `json:"id"`
		Type            any `json:"type"`
		Scheme          any `json:"scheme"`
		StartTime       any `json:"startTime"`
		EndTime         any `json:"endTime"`
		DurationSeconds any `json:"durationSeconds"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return Record{}, false
	}

	id, ok := shape.ID.(string)
	if !ok {
		return Record{}, false
	}

	typ, _ := shape.Type.(string)
	if RecordType(typ) != TypeFasting && RecordType(typ) != TypeBreathing {
		return Record{}, false
	}

	start, ok := parseTime(shape.StartTime)
	if !ok {
		return Record{}, false
	}
	end, ok := parseTime(shape.EndTime)
	if !ok {
		return Record{}, false
	}

	duration, ok := shape.DurationSeconds.(float64)
	if !ok || math.IsNaN(duration) || math.IsInf(duration, 0) || duration < 0 {
		return Record{}, false
	}

	scheme, _ := shape.Scheme.(string)

	return Record{
		ID:              id,
		Type:            RecordType(typ),
		Scheme:          scheme,
		StartTime:       start,
		EndTime:         end,
		DurationSeconds: int64(duration),
	}, true
}

// ValidRecord - проверка формы записи без разбора
func ValidRecord(raw json.RawMessage) bool {
	_, ok := DecodeRecord(raw)
	return ok
}

func parseTime(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
