// queue.go — обработчики /api/v1/queue endpoints.
// GET  /api/v1/queue — очередь ожидания и счётчики сессии.
// POST /api/v1/queue/reload — немедленная перезагрузка snapshot.
package handlers

import (
	"net/http"

	"github.com/bigkaa/aethercore/review-gateway/internal/domain/model"
	"github.com/bigkaa/aethercore/review-gateway/internal/queue"
)

// queueResponse — очередь ожидания для презентационного слоя.
// Файлы идут в порядке прибытия, счётчики относятся к текущей сессии.
type queueResponse struct {
	Files    []model.PendingFile `json:"archivos"`
	Counters queue.Counters      `json:"contadores"`
}

// GetQueue — GET /api/v1/queue.
func (h *APIHandler) GetQueue(w http.ResponseWriter, _ *http.Request) {
	files := h.svc.Queue()
	if files == nil {
		files = []model.PendingFile{}
	}
	writeJSON(w, http.StatusOK, queueResponse{
		Files:    files,
		Counters: h.svc.Counters(),
	})
}

// ReloadQueue — POST /api/v1/queue/reload.
// Перезагружает snapshot из Core API по команде оператора.
// При успехе возвращает обновлённую очередь.
func (h *APIHandler) ReloadQueue(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Reload(r.Context()); err != nil {
		writeCoreError(w, err)
		return
	}
	h.GetQueue(w, r)
}
