package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	fsrepo "Kladovka/internal/cli/repo/fs"
	"Kladovka/internal/config"
)

// Коды ошибок сервера (поле code тела ошибки).
const (
	CodeValidation      = "validation"
	CodeNotFound        = "not_found"
	CodeConflict        = "conflict"
	CodeAlreadyReviewed = "already_reviewed"
	CodePermission      = "permission"
	CodeInternal        = "internal"
)

// APIError — типизированная ошибка сервера.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// Transient сообщает, безопасно ли ретраить запрос с backoff-ом.
func (e *APIError) Transient() bool {
	return e.StatusCode >= 500
}

// Conflict — устаревший base_modified_at: мутацию надо отбросить и
// пересобрать от свежего состояния.
func (e *APIError) Conflict() bool {
	return e.Code == CodeConflict
}

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// Client — HTTP-клиент к серверу с cookie-авторизацией и ограниченным
// таймаутом: безграничных ожиданий на клиентских путях нет.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// NewClient собирает клиента из конфига и токена.
func NewClient(cfg *config.Config, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(cfg.ServerURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// DoJSON выполняет запрос с JSON-телом (payload может быть nil) и разбирает
// JSON-ответ в out (тоже может быть nil). Статусы >= 400 возвращаются как
// *APIError; сетевые ошибки — как есть (клиент считает их transient).
func (c *Client) DoJSON(ctx context.Context, method, path string, payload, out any) (int, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return 0, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Cookie", "auth_token="+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Code: CodeInternal}
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil && eb.Code != "" {
			apiErr.Code = eb.Code
			apiErr.Message = eb.Error
		} else {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return resp.StatusCode, apiErr
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// PostJSON выполняет JSON POST-запрос; непустой token передаётся auth cookie.
// Возвращает сырой ответ: командам login/register нужна cookie из него.
func PostJSON(url string, payload any, token string, timeout time.Duration) (*http.Response, []byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Cookie", "auth_token="+token)
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, body, nil
}

// PersistAuthFromResponse извлекает auth cookie из ответа и сохраняет его через файловое хранилище.
func PersistAuthFromResponse(resp *http.Response) error {
	store := fsrepo.AuthFSStore{}
	for _, c := range resp.Cookies() {
		if c.Name == "auth_token" && c.Value != "" {
			return store.Save(c.Value)
		}
	}
	return fmt.Errorf("no auth cookie in response")
}
