package sticker

import (
	"context"
	"errors"
	"testing"
	"time"

	"bodytweaker/internal/infrastructure/telegram"
	"bodytweaker/internal/utils/logger/handlers/slogdiscard"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTelegram struct {
	mock.Mock
}

func (m *MockTelegram) HasToken() bool {
	return m.Called().Bool(0)
}

func (m *MockTelegram) GetFile(ctx context.Context, fileID string) (telegram.File, error) {
	args := m.Called(ctx, fileID)
	return args.Get(0).(telegram.File), args.Error(1)
}

func (m *MockTelegram) DownloadFile(ctx context.Context, filePath string) ([]byte, error) {
	args := m.Called(ctx, filePath)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockTelegram) GetStickerSet(ctx context.Context, name string) (telegram.StickerSet, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(telegram.StickerSet), args.Error(1)
}

func newService(tg Telegram) *Service {
	return NewService(tg, Config{}, slogdiscard.NewDiscardLogger())
}

func sampleSet() telegram.StickerSet {
	return telegram.StickerSet{
		Name: DefaultSet,
		Stickers: []telegram.Sticker{
			{FileID: "a", Emoji: "✨", IsAnimated: true},
			{FileID: "b", Emoji: "🔥", IsAnimated: true},
			{FileID: "c", Emoji: "🔥", IsAnimated: false},
			{FileID: "d", Emoji: "😀", IsAnimated: true},
			{FileID: "e", IsAnimated: true},
		},
	}
}

func TestService_File(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		setup   func(m *MockTelegram)
		fileID  string
		want    []byte
		wantErr error
	}{
		{
			name: "ok",
			setup: func(m *MockTelegram) {
				m.On("HasToken").Return(true)
				m.On("GetFile", ctx, "F").Return(telegram.File{FileID: "F", FilePath: "s/f.tgs"}, nil)
				m.On("DownloadFile", ctx, "s/f.tgs").Return([]byte("tgs"), nil)
			},
			fileID: "F",
			want:   []byte("tgs"),
		},
		{
			name:    "no token",
			setup:   func(m *MockTelegram) { m.On("HasToken").Return(false) },
			fileID:  "F",
			wantErr: ErrNoToken,
		},
		{
			name:    "empty file id",
			setup:   func(m *MockTelegram) { m.On("HasToken").Return(true) },
			wantErr: ErrNoFileID,
		},
		{
			name: "resolve fails",
			setup: func(m *MockTelegram) {
				m.On("HasToken").Return(true)
				m.On("GetFile", ctx, "F").Return(telegram.File{}, telegram.ErrNoFile)
			},
			fileID:  "F",
			wantErr: ErrResolve,
		},
		{
			name: "download fails",
			setup: func(m *MockTelegram) {
				m.On("HasToken").Return(true)
				m.On("GetFile", ctx, "F").Return(telegram.File{FilePath: "p"}, nil)
				m.On("DownloadFile", ctx, "p").Return(nil, telegram.ErrDownload)
			},
			fileID:  "F",
			wantErr: ErrFetch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &MockTelegram{}
			tt.setup(m)
			s := newService(m)
			defer s.Close()

			got, err := s.File(ctx, tt.fileID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			m.AssertExpectations(t)
		})
	}
}

func TestService_ListFiltersAndCaches(t *testing.T) {
	ctx := context.Background()
	m := &MockTelegram{}
	m.On("HasToken").Return(true)
	m.On("GetStickerSet", ctx, DefaultSet).Return(sampleSet(), nil).Once()

	s := newService(m)
	defer s.Close()

	list, err := s.List(ctx, "", "")
	require.NoError(t, err)
	assert.True(t, list.OK)
	assert.Equal(t, DefaultSet, list.Set)
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, []Item{{FileID: "a", Emoji: "✨"}, {FileID: "b", Emoji: "🔥"}}, list.Stickers)

	again, err := s.List(ctx, DefaultSet, "")
	require.NoError(t, err)
	assert.Equal(t, list, again)
	m.AssertNumberOfCalls(t, "GetStickerSet", 1)
}

func TestService_ListCustomEmoji(t *testing.T) {
	ctx := context.Background()
	m := &MockTelegram{}
	m.On("HasToken").Return(true)
	m.On("GetStickerSet", ctx, "custom").Return(sampleSet(), nil)

	s := newService(m)
	defer s.Close()

	list, err := s.List(ctx, "custom", " 😀 , ,🔥")
	require.NoError(t, err)
	assert.Equal(t, "custom", list.Set)
	assert.Equal(t, []Item{{FileID: "b", Emoji: "🔥"}, {FileID: "d", Emoji: "😀"}}, list.Stickers)
}

func TestService_ListEmptyFilterKeepsAllAnimated(t *testing.T) {
	ctx := context.Background()
	m := &MockTelegram{}
	m.On("HasToken").Return(true)
	m.On("GetStickerSet", ctx, DefaultSet).Return(sampleSet(), nil)

	s := NewService(m, Config{SafeEmoji: []string{}}, slogdiscard.NewDiscardLogger())
	defer s.Close()

	list, err := s.List(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, 4, list.Count)
}

func TestService_ListExpires(t *testing.T) {
	ctx := context.Background()
	m := &MockTelegram{}
	m.On("HasToken").Return(true)
	m.On("GetStickerSet", ctx, DefaultSet).Return(sampleSet(), nil)

	s := NewService(m, Config{CacheTTL: 20 * time.Millisecond}, slogdiscard.NewDiscardLogger())
	defer s.Close()

	_, err := s.List(ctx, "", "")
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)
	_, err = s.List(ctx, "", "")
	require.NoError(t, err)
	m.AssertNumberOfCalls(t, "GetStickerSet", 2)
}

func TestService_ListErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("api error keeps description", func(t *testing.T) {
		m := &MockTelegram{}
		m.On("HasToken").Return(true)
		m.On("GetStickerSet", ctx, "bad").
			Return(telegram.StickerSet{}, &telegram.APIError{Code: 400, Description: "STICKERSET_INVALID"})

		s := newService(m)
		defer s.Close()

		_, err := s.List(ctx, "bad", "")
		require.ErrorIs(t, err, ErrUpstream)
		var apiErr *telegram.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "STICKERSET_INVALID", apiErr.Description)
	})

	t.Run("transport error", func(t *testing.T) {
		m := &MockTelegram{}
		m.On("HasToken").Return(true)
		m.On("GetStickerSet", ctx, "x").Return(telegram.StickerSet{}, telegram.ErrTransport)

		s := newService(m)
		defer s.Close()

		_, err := s.List(ctx, "x", "")
		assert.ErrorIs(t, err, ErrUnexpected)
	})

	t.Run("failures are not cached", func(t *testing.T) {
		m := &MockTelegram{}
		m.On("HasToken").Return(true)
		m.On("GetStickerSet", ctx, "x").Return(telegram.StickerSet{}, telegram.ErrTransport).Once()
		m.On("GetStickerSet", ctx, "x").Return(sampleSet(), nil).Once()

		s := newService(m)
		defer s.Close()

		_, err := s.List(ctx, "x", "")
		require.Error(t, err)
		list, err := s.List(ctx, "x", "")
		require.NoError(t, err)
		assert.Equal(t, 2, list.Count)
	})

	t.Run("no token", func(t *testing.T) {
		m := &MockTelegram{}
		m.On("HasToken").Return(false)

		s := newService(m)
		defer s.Close()

		_, err := s.List(ctx, "", "")
		assert.ErrorIs(t, err, ErrNoToken)
	})
}

func TestParseEmojiList(t *testing.T) {
	assert.Equal(t, []string{"✨", "🔥"}, ParseEmojiList(" ✨,,🔥 ,"))
	assert.Empty(t, ParseEmojiList(""))
	assert.Len(t, ParseEmojiList(DefaultSafeEmoji), 7)
}
