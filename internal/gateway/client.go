// Package gateway предоставляет клиент удалённого хранилища магазина.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-client/internal/apperr"
)

const maxBodySize = 1 << 20

// Credentials отдаёт токен для заголовка Authorization, если он есть.
type Credentials interface {
	Credential() (string, bool)
}

// Client инкапсулирует HTTP-взаимодействие с удалённым хранилищем.
// Повторов и кэширования нет: политика согласованности живёт выше.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      Credentials
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	logger     *zap.Logger
}

// Option настраивает Client.
type Option func(*Client)

// WithTimeout задаёт таймаут одного запроса.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLogger задаёт логгер клиента.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithBreaker включает автоматический выключатель с указанными настройками.
func WithBreaker(cfg BreakerConfig) Option {
	return func(c *Client) {
		c.breaker = newBreaker(cfg, c.logger)
	}
}

// NewClient создаёт клиент удалённого хранилища по указанному адресу.
func NewClient(baseURL string, creds Credentials, opts ...Option) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	c := &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		creds:  creds,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// serverError переносит ответ 5xx через автоматический выключатель, чтобы тот засчитал сбой.
type serverError struct {
	status int
	body   []byte
}

func (e *serverError) Error() string {
	return "server error " + strconv.Itoa(e.status)
}

// Request выполняет запрос к удалённому хранилищу. body сериализуется в JSON,
// успешный непустой ответ декодируется в out; out типа *[]byte получает тело
// как есть, без разбора. Неуспешные ответы превращаются
// в *apperr.RemoteError, транспортные ошибки в apperr.ErrRemoteUnavailable.
func (c *Client) Request(ctx context.Context, method, path string, body, out any) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("%w: remote store not configured", apperr.ErrRemoteUnavailable)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: encode request: %v", apperr.ErrInvalidArgument, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: create request: %v", apperr.ErrInvalidArgument, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.creds != nil {
		if token, ok := c.creds.Credential(); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.do(req)
	if err != nil {
		var srvErr *serverError
		if errors.As(err, &srvErr) {
			observe(method, srvErr.status, start)
			return apperr.FromStatus(srvErr.status, errorMessage(srvErr.body))
		}
		observe(method, 0, start)
		c.logger.Warn("remote store request failed",
			zap.String("method", method), zap.String("path", path), zap.Error(err))
		return apperr.Unavailable(err)
	}
	defer resp.Body.Close()
	observe(method, resp.StatusCode, start)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return apperr.Unavailable(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperr.FromStatus(resp.StatusCode, errorMessage(data))
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if raw, ok := out.(*[]byte); ok {
		*raw = data
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", apperr.ErrRemoteUnavailable, err)
	}
	return nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	send := func() (*http.Response, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
			return nil, &serverError{status: resp.StatusCode, body: body}
		}
		return resp, nil
	}

	if c.breaker == nil {
		return send()
	}
	return c.breaker.Execute(send)
}

type errorPayload struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
	Msg     string          `json:"msg"`
}

// errorMessage извлекает сообщение из тела ошибки: {"error": "..."},
// {"error": {"code", "message"}}, {"message": "..."} или {"msg": "..."}.
func errorMessage(body []byte) string {
	var p errorPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return strings.TrimSpace(string(body))
	}

	if len(p.Error) > 0 {
		var s string
		if json.Unmarshal(p.Error, &s) == nil && s != "" {
			return s
		}
		var nested struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(p.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
	}
	if p.Message != "" {
		return p.Message
	}
	return p.Msg
}
