// channel.go — обработчики /api/v1/channel endpoints.
// GET  /api/v1/channel — состояние канала уведомлений.
// GET  /api/v1/channel/events — журнал событий текущей сессии.
// POST /api/v1/channel/reconnect — явное переподключение канала.
package handlers

import (
	"errors"
	"net/http"

	apierrors "github.com/bigkaa/aethercore/review-gateway/internal/api/errors"
	"github.com/bigkaa/aethercore/review-gateway/internal/domain/model"
	"github.com/bigkaa/aethercore/review-gateway/internal/notify"
	"github.com/bigkaa/aethercore/review-gateway/internal/session"
)

// channelResponse — состояние канала для презентационного слоя.
type channelResponse struct {
	State notify.State `json:"estado"`
	// Detail — диагностика последнего закрытия (policy-close и прочее).
	Detail string `json:"detalle,omitempty"`
}

// GetChannel — GET /api/v1/channel.
func (h *APIHandler) GetChannel(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, channelResponse{
		State:  h.svc.ChannelState(),
		Detail: h.svc.ChannelCloseDetail(),
	})
}

// channelEventsResponse — журнал событий текущей сессии.
type channelEventsResponse struct {
	Events []model.Event `json:"eventos"`
}

// GetChannelEvents — GET /api/v1/channel/events.
func (h *APIHandler) GetChannelEvents(w http.ResponseWriter, _ *http.Request) {
	events := h.svc.ChannelEvents()
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, channelEventsResponse{Events: events})
}

// ReconnectChannel — POST /api/v1/channel/reconnect.
// Переподключение выполняется только по явной команде: канал не
// восстанавливается автоматически. Очередь пересобирается заново.
func (h *APIHandler) ReconnectChannel(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Reconnect(r.Context()); err != nil {
		if errors.Is(err, session.ErrNoSession) {
			apierrors.Unauthorized(w, "Сессия оператора отсутствует")
			return
		}
		writeCoreError(w, err)
		return
	}
	h.GetChannel(w, r)
}
