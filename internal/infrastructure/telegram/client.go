package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/exp/slog"
)

const DefaultBaseURL = "https://api.telegram.org"

var (
	ErrNoToken   = errors.New("telegram: bot token missing")
	ErrNoFile    = errors.New("telegram: failed to resolve file")
	ErrDownload  = errors.New("telegram: failed to fetch file")
	ErrTransport = errors.New("telegram: request failed")
)

// APIError ответ Bot API с ok=false.
type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("telegram api error (%d)", e.Code)
	}
	return fmt.Sprintf("telegram api error (%d): %s", e.Code, e.Description)
}

type envelope[T any] struct {
	OK          bool   `json:"ok"`
	Result      T      `json:"result"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

type Client struct {
	client  *http.Client
	log     *slog.Logger
	baseURL string
	token   string
}

type Option func(*Client)

func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

func NewClient(token string, log *slog.Logger, opts ...Option) *Client {
	c := &Client{
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 10,
			},
		},
		log:     log.With(slog.String("component", "telegram")),
		baseURL: DefaultBaseURL,
		token:   token,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasToken сообщает, настроен ли токен бота.
func (c *Client) HasToken() bool {
	return c.token != ""
}

// GetFile разрешает file_id в путь файла на серверах Telegram.
func (c *Client) GetFile(ctx context.Context, fileID string) (File, error) {
	q := url.Values{"file_id": {fileID}}
	f, err := get[File](ctx, c, "getFile", q)
	if err != nil {
		return File{}, err
	}
	if f.FilePath == "" {
		return File{}, ErrNoFile
	}
	return f, nil
}

// DownloadFile скачивает файл по пути, полученному из GetFile.
func (c *Client) DownloadFile(ctx context.Context, filePath string) ([]byte, error) {
	if !c.HasToken() {
		return nil, ErrNoToken
	}

	endpoint := fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, filePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDownload, redact(err.Error(), c.token))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrDownload, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	return data, nil
}

func (c *Client) GetStickerSet(ctx context.Context, name string) (StickerSet, error) {
	return get[StickerSet](ctx, c, "getStickerSet", url.Values{"name": {name}})
}

func (c *Client) SendMessage(ctx context.Context, msg SendMessageRequest) error {
	_, err := post[json.RawMessage](ctx, c, "sendMessage", msg)
	return err
}

func (c *Client) SendPhoto(ctx context.Context, photo SendPhotoRequest) error {
	_, err := post[json.RawMessage](ctx, c, "sendPhoto", photo)
	return err
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

func get[T any](ctx context.Context, c *Client, method string, q url.Values) (T, error) {
	var zero T
	if !c.HasToken() {
		return zero, ErrNoToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.methodURL(method)+"?"+q.Encode(), nil)
	if err != nil {
		return zero, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	return do[T](c, method, req)
}

func post[T any](ctx context.Context, c *Client, method string, body any) (T, error) {
	var zero T
	if !c.HasToken() {
		return zero, ErrNoToken
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return zero, fmt.Errorf("ошибка сериализации запроса: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), bytes.NewReader(payload))
	if err != nil {
		return zero, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return do[T](c, method, req)
}

func do[T any](c *Client, method string, req *http.Request) (T, error) {
	var zero T

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn("telegram request failed", slog.String("method", method), slog.String("error", redact(err.Error(), c.token)))
		return zero, fmt.Errorf("%w: %s", ErrTransport, method)
	}
	defer resp.Body.Close()

	var env envelope[T]
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return zero, fmt.Errorf("ошибка декодирования ответа %s: %w", method, err)
	}
	if !env.OK {
		code := env.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return zero, &APIError{Code: code, Description: env.Description}
	}
	return env.Result, nil
}

// redact убирает токен из текста ошибки: он входит в URL запроса.
func redact(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, "***")
}
