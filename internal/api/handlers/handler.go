// handler.go — основной обработчик API Review Gateway.
// Объединяет health-обработчик и бизнес-обработчики сессии, очереди,
// подтверждений и канала уведомлений. Делегирует в сервисный слой.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/aethercore/review-gateway/internal/api/errors"
	"github.com/bigkaa/aethercore/review-gateway/internal/coreclient"
	"github.com/bigkaa/aethercore/review-gateway/internal/service"
)

// APIHandler — основной обработчик API Review Gateway.
type APIHandler struct {
	svc    *service.ReviewService
	health *HealthHandler
	wsHub  *WSHub
	logger *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API и подписывает
// push-канал на изменения очереди.
func NewAPIHandler(
	svc *service.ReviewService,
	health *HealthHandler,
	logger *slog.Logger,
) *APIHandler {
	hub := NewWSHub(logger)
	svc.SubscribeQueue(hub.Notify)

	return &APIHandler{
		svc:    svc,
		health: health,
		wsHub:  hub,
		logger: logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// readJSON декодирует тело запроса в dst. Неизвестные поля отвергаются.
func readJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeCoreError транслирует ошибку Core API в ответ шлюза.
// 401-класс уже обработан компонентами ядра (teardown выполнен),
// здесь остаётся сообщить презентационному слою о потере сессии.
func writeCoreError(w http.ResponseWriter, err error) {
	if coreclient.IsAuthExpired(err) {
		apierrors.Unauthorized(w, "Сессия Core API недействительна")
		return
	}

	var apiErr *coreclient.APIError
	if errors.As(err, &apiErr) {
		apierrors.CoreUnavailable(w, apiErr.Detail)
		return
	}
	apierrors.CoreUnavailable(w, "Core API недоступен: "+err.Error())
}
