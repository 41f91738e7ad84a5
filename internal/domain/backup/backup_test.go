package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bodytweaker/internal/app/client/crypto"
	"bodytweaker/internal/domain/events"
	"bodytweaker/internal/domain/history"
	"bodytweaker/internal/domain/storage"
	"bodytweaker/internal/infrastructure/storage/local"
	"bodytweaker/internal/utils/logger/handlers/slogdiscard"
)

type fixture struct {
	svc     *Service
	store   *storage.Service
	history *history.Manager[history.Record]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithQuota(t, 0)
}

func newFixtureWithQuota(t *testing.T, quota int64) *fixture {
	t.Helper()
	codec, err := crypto.NewCodecFromKey(make([]byte, 32))
	require.NoError(t, err)
	log := slogdiscard.NewDiscardLogger()

	store := storage.New(local.NewAdapter(local.NewMemoryBackend(quota), codec, log), nil, log)
	hist := history.NewRecordManager(store, events.NewBus[events.HistoryUpdated](log), history.DefaultConfig(), log)
	return &fixture{
		svc:     New(store, hist, log),
		store:   store,
		history: hist,
	}
}

func record(id string) history.Record {
	start := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	return history.Record{
		ID:              id,
		Type:            history.TypeFasting,
		Scheme:          "16/8",
		StartTime:       start,
		EndTime:         start.Add(16 * time.Hour),
		DurationSeconds: 16 * 3600,
	}
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.history.Save(ctx, storage.KeyHistoryFasting, []history.Record{record("2"), record("1")}))
	require.NoError(t, f.store.Set(ctx, storage.KeyFastingScheme, "16/8"))
	require.NoError(t, f.store.Set(ctx, storage.KeyUserName, "Аня"))
	require.NoError(t, f.store.Set(ctx, storage.KeyThemeMode, "dark"))
	require.NoError(t, f.store.Set(ctx, storage.KeyHasAcceptedTerms, "true"))
	require.NoError(t, f.store.Set(ctx, storage.KeyLegalAcceptance, `{"version":"1.0","ageConfirmed":true}`))
}

func (f *fixture) value(t *testing.T, key string) (string, bool) {
	t.Helper()
	v, found, err := f.store.Get(context.Background(), key)
	require.NoError(t, err)
	return v, found
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newFixture(t)
	src.seed(t)

	doc, err := src.svc.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, Version, doc.Version)
	assert.NotEmpty(t, doc.Date)
	_, exported := src.value(t, storage.KeyLastBackupExport)
	assert.True(t, exported)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, doc))

	dst := newFixture(t)
	res, err := dst.svc.Import(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, res.HistoryRecords)
	assert.Zero(t, res.HistoryDropped)

	got, err := dst.history.Get(ctx, storage.KeyHistoryFasting)
	require.NoError(t, err)
	assert.Equal(t, []history.Record{record("2"), record("1")}, got)

	for _, key := range []string{storage.KeyFastingScheme, storage.KeyUserName, storage.KeyThemeMode, storage.KeyHasAcceptedTerms, storage.KeyLegalAcceptance} {
		want, _ := src.value(t, key)
		v, found := dst.value(t, key)
		assert.True(t, found, key)
		assert.Equal(t, want, v, key)
	}
	_, found := dst.value(t, storage.KeyFastingStartTime)
	assert.False(t, found)
}

func TestImportRejectsBadShape(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{{{`},
		{name: "array", body: `[]`},
		{name: "version 2", body: `{"version":2,"data":{"user_name":"X"}}`},
		{name: "missing version", body: `{"data":{"user_name":"X"}}`},
		{name: "missing data", body: `{"version":1}`},
		{name: "data is array", body: `{"version":1,"data":[]}`},
		{name: "history not array", body: `{"version":1,"data":{"history_fasting":{"id":"1"}}}`},
		{name: "bad theme", body: `{"version":1,"data":{"user_name":"X","theme_mode":"neon"}}`},
		{name: "numeric user name", body: `{"version":1,"data":{"user_name":5}}`},
		{name: "terms object", body: `{"version":1,"data":{"has_accepted_terms":{}}}`},
		{name: "legal acceptance string", body: `{"version":1,"data":{"legal_acceptance_v1":"yes"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			f.seed(t)

			_, err := f.svc.Import(ctx, strings.NewReader(tt.body))
			assert.ErrorIs(t, err, ErrInvalidBackup)

			// ничего не изменилось
			name, _ := f.value(t, storage.KeyUserName)
			assert.Equal(t, "Аня", name)
			theme, _ := f.value(t, storage.KeyThemeMode)
			assert.Equal(t, "dark", theme)
			got, err := f.history.Get(ctx, storage.KeyHistoryFasting)
			require.NoError(t, err)
			assert.Len(t, got, 2)
		})
	}
}

func TestImportFiltersHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)

	body := `{
		"version": 1,
		"date": "2024-05-02T10:00:00Z",
		"data": {
			"history_fasting": [
				{"id":"9","type":"breathing","scheme":"box","startTime":"2024-05-02T08:00:00Z","endTime":"2024-05-02T08:05:00Z","durationSeconds":300},
				{"foo":"bar"},
				{"id":10,"type":"fasting"}
			],
			"has_accepted_terms": true,
			"theme_mode": "auto"
		}
	}`

	res, err := f.svc.Import(ctx, strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, 1, res.HistoryRecords)
	assert.Equal(t, 2, res.HistoryDropped)

	got, err := f.history.Get(ctx, storage.KeyHistoryFasting)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "9", got[0].ID)
	assert.Equal(t, history.TypeBreathing, got[0].Type)

	terms, _ := f.value(t, storage.KeyHasAcceptedTerms)
	assert.Equal(t, "true", terms)
	theme, _ := f.value(t, storage.KeyThemeMode)
	assert.Equal(t, "auto", theme)
	// ключи, которых нет в файле, не трогаются
	name, _ := f.value(t, storage.KeyUserName)
	assert.Equal(t, "Аня", name)
}

func TestImportTooLarge(t *testing.T) {
	f := newFixture(t)
	body := `{"version":1,"data":{"user_name":"` + strings.Repeat("x", MaxFileBytes) + `"}}`

	_, err := f.svc.Import(context.Background(), strings.NewReader(body))
	assert.ErrorIs(t, err, ErrInvalidBackup)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)

	require.NoError(t, f.svc.Reset(ctx))

	got, err := f.history.Get(ctx, storage.KeyHistoryFasting)
	require.NoError(t, err)
	assert.Empty(t, got)
	for _, key := range []string{storage.KeyFastingScheme, storage.KeyUserName, storage.KeyThemeMode, storage.KeyHasAcceptedTerms, storage.KeyLegalAcceptance} {
		_, found := f.value(t, key)
		assert.False(t, found, key)
	}
}

func TestImportQuotaKeepsHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixtureWithQuota(t, 40*1024)
	f.seed(t)

	doc, err := f.svc.Export(ctx)
	require.NoError(t, err)
	doc.Data.HistoryFasting = nil
	for i := 0; i < 300; i++ {
		raw, err := json.Marshal(record(strconv.Itoa(1000 + i)))
		require.NoError(t, err)
		doc.Data.HistoryFasting = append(doc.Data.HistoryFasting, raw)
	}

	_, err = f.svc.Apply(ctx, doc, 0)
	require.ErrorIs(t, err, local.ErrQuotaExceeded)

	got, err := f.history.Get(ctx, storage.KeyHistoryFasting)
	require.NoError(t, err)
	assert.Equal(t, []history.Record{record("2"), record("1")}, got)
}
