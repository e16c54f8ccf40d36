// Пакет coreclient — HTTP-клиент Core API (AetherCore).
// Покрывает операции: login, текущая учётная запись, список ожидающих
// файлов, одобрение/отклонение файла, health конвейера.
package coreclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bigkaa/aethercore/review-gateway/internal/domain/model"
)

// Client — HTTP-клиент Core API.
type Client struct {
	httpClient *http.Client
	coreURL    string
	logger     *slog.Logger
}

// New создаёт клиент Core API.
// coreURL — базовый URL Core API (например, http://aethercore:8000).
// timeout — таймаут HTTP-запросов (из конфигурации RG_CORE_TIMEOUT).
func New(coreURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		coreURL:    strings.TrimRight(coreURL, "/"),
		logger:     logger.With(slog.String("component", "core_client")),
	}
}

// BaseURL возвращает нормализованный базовый URL Core API.
func (c *Client) BaseURL() string {
	return c.coreURL
}

// Login аутентифицирует оператора.
// POST /api/auth/login
// 401 → ErrAuthExpired (неверные учётные данные), 403 → ErrAuthExpired
// (доступ запрещён), остальные ошибки — транзиентные.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	body, err := json.Marshal(loginRequest{Username: username, Password: password})
	if err != nil {
		return nil, fmt.Errorf("сериализация запроса login: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.coreURL+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("создание запроса login: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.classifyError(resp, false)
	}

	var result LoginResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("декодирование ответа login: %w", err)
	}
	if result.AccessToken == "" {
		return nil, fmt.Errorf("пустой access_token в ответе Core API")
	}

	c.logger.Info("Оператор аутентифицирован",
		slog.String("username", result.Usuario.Username),
	)
	return &result, nil
}

// Me запрашивает текущую учётную запись (подтверждение валидности сессии).
// GET /api/auth/me
func (c *Client) Me(ctx context.Context, token string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.coreURL+"/api/auth/me", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("создание запроса me: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.classifyError(resp, false)
	}

	var ident Identity
	if err := json.NewDecoder(resp.Body).Decode(&ident); err != nil {
		return nil, fmt.Errorf("декодирование ответа me: %w", err)
	}
	return &ident, nil
}

// PendingFiles запрашивает полный список файлов, ожидающих решения.
// GET /api/archivos/pendientes
func (c *Client) PendingFiles(ctx context.Context, token string) ([]model.PendingFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.coreURL+"/api/archivos/pendientes", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("создание запроса pendientes: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.classifyError(resp, false)
	}

	var files []model.PendingFile
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		return nil, fmt.Errorf("декодирование списка pendientes: %w", err)
	}

	c.logger.Debug("Snapshot очереди получен", slog.Int("count", len(files)))
	return files, nil
}

// SubmitDecision отправляет решение оператора по файлу.
// POST /api/archivos/aprobar
// 404 → ErrStaleReference (сервер больше не знает id),
// 401/403 → ErrAuthExpired.
func (c *Client) SubmitDecision(ctx context.Context, token, fileID string, approved bool, comment string) error {
	reqBody := approvalRequest{ArchivoID: fileID, Aprobado: approved}
	if comment != "" {
		reqBody.Comentarios = &comment
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("сериализация запроса aprobar: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.coreURL+"/api/archivos/aprobar", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("создание запроса aprobar: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.classifyError(resp, true)
	}

	// Тело ответа ({"mensaje": ...}) информационное, достаточно статуса.
	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.Info("Решение по файлу отправлено",
		slog.String("file_id", fileID),
		slog.Bool("approved", approved),
	)
	return nil
}

// Health запрашивает состояние конвейера.
// GET /api/health — публичный endpoint, без авторизации.
func (c *Client) Health(ctx context.Context) (*HealthReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.coreURL+"/api/health", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("создание запроса health: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.classifyError(resp, false)
	}

	var report HealthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("декодирование ответа health: %w", err)
	}
	return &report, nil
}

// classifyError превращает не-2xx ответ в ошибку таксономии шлюза.
// mutation управляет трактовкой 404: для мутаций это StaleReference,
// для чтений — транзиентная ошибка.
func (c *Client) classifyError(resp *http.Response, mutation bool) error {
	detail := readDetail(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("статус %d: %w", resp.StatusCode, ErrAuthExpired)
	case mutation && resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("статус %d: %w", resp.StatusCode, ErrStaleReference)
	default:
		return &APIError{StatusCode: resp.StatusCode, Detail: detail}
	}
}

// readDetail извлекает поле detail из тела ошибки Core API.
// Возвращает пустую строку, если тело нечитаемо или не содержит detail.
func readDetail(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64*1024))
	if err != nil {
		return ""
	}
	var d errorDetail
	if err := json.Unmarshal(data, &d); err != nil {
		return ""
	}
	return d.Detail
}
