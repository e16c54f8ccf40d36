// ws.go — push-канал очереди для презентационного слоя.
// GET /api/v1/ws — после подключения шлюз отправляет свежий снимок
// очереди и далее повторяет его при каждом эффективном изменении.
// Сигналы об изменениях коалесцируются: медленный клиент получает
// не каждое событие, а актуальное состояние.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/bigkaa/aethercore/review-gateway/internal/domain/model"
)

// wsWriteTimeout — верхняя граница на отправку одного снимка клиенту.
const wsWriteTimeout = 5 * time.Second

// WSHub — реестр подключённых клиентов push-канала.
// Notify регистрируется подписчиком QueueStore и будит все подключения.
type WSHub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[chan struct{}]struct{}
}

// NewWSHub создаёт пустой реестр клиентов.
func NewWSHub(logger *slog.Logger) *WSHub {
	return &WSHub{
		logger:  logger.With(slog.String("component", "ws_hub")),
		clients: make(map[chan struct{}]struct{}),
	}
}

// Notify будит все подключения. Сигнал не блокирует: если клиент ещё
// не обработал предыдущий, новый сигнал сливается с ним.
func (hub *WSHub) Notify() {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	for ch := range hub.clients {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (hub *WSHub) add() chan struct{} {
	ch := make(chan struct{}, 1)
	hub.mu.Lock()
	hub.clients[ch] = struct{}{}
	hub.mu.Unlock()
	return ch
}

func (hub *WSHub) remove(ch chan struct{}) {
	hub.mu.Lock()
	delete(hub.clients, ch)
	hub.mu.Unlock()
}

// QueueWS — GET /api/v1/ws.
// Держит подключение до закрытия клиентом или остановки сервера.
func (h *APIHandler) QueueWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Презентационный слой в dev-режиме живёт на другом origin.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Warn("WebSocket upgrade не удался", slog.String("error", err.Error()))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "внутренняя ошибка")

	ch := h.wsHub.add()
	defer h.wsHub.remove(ch)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Горутина чтения: входящие кадры игнорируются, ошибка чтения
	// означает закрытие подключения клиентом.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	// Первый снимок сразу после подключения.
	if err := h.writeQueueSnapshot(ctx, conn); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "cierre")
			return
		case <-ch:
			if err := h.writeQueueSnapshot(ctx, conn); err != nil {
				return
			}
		}
	}
}

// writeQueueSnapshot отправляет клиенту текущее состояние очереди.
func (h *APIHandler) writeQueueSnapshot(ctx context.Context, conn *websocket.Conn) error {
	files := h.svc.Queue()
	if files == nil {
		files = []model.PendingFile{}
	}

	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()

	return wsjson.Write(writeCtx, conn, queueResponse{
		Files:    files,
		Counters: h.svc.Counters(),
	})
}
