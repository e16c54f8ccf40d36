// Пакет notify — клиент канала уведомлений Core API (WebSocket).
// Доставляет неупорядоченный at-least-once поток событий NUEVO_ARCHIVO
// и CAMBIO_ESTADO. Переподключение — явное решение вызывающего,
// внутри канала оно никогда не выполняется автоматически.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/aethercore/review-gateway/internal/domain/model"
)

// NotificationPath — фиксированный путь канала уведомлений Core API.
const NotificationPath = "/ws/notificaciones"

// State — состояние канала уведомлений.
type State string

const (
	// StateDisconnected — канал не подключён.
	StateDisconnected State = "disconnected"
	// StateConnecting — выполняется подключение.
	StateConnecting State = "connecting"
	// StateConnected — канал подключён, события доставляются.
	StateConnected State = "connected"
)

// ErrNoCredential — подключение без учётных данных не выполняется.
var ErrNoCredential = errors.New("канал уведомлений требует учётные данные")

var (
	// channelEvents — принятые и применённые события канала.
	channelEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rg_channel_events_total",
		Help: "Количество принятых событий канала уведомлений",
	}, []string{"tipo"})

	// channelDropped — отброшенные (нечитаемые или невалидные) сообщения.
	channelDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rg_channel_dropped_total",
		Help: "Количество отброшенных сообщений канала уведомлений",
	})
)

// Channel — одно подключение к каналу уведомлений.
// Каждое успешно разобранное сообщение добавляется в упорядоченный
// журнал сессии и передаётся в sink (QueueStore.ApplyEvent).
type Channel struct {
	wsURL  string
	sink   func(model.Event)
	logger *slog.Logger

	mu     sync.Mutex
	state  State
	detail string // диагностика последнего закрытия
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
	log    []model.Event
}

// New создаёт канал для указанного базового адреса Core API.
// sink вызывается из горутины чтения для каждого валидного события.
func New(baseURL string, sink func(model.Event), logger *slog.Logger) *Channel {
	return &Channel{
		wsURL:  NormalizeBaseURL(baseURL) + NotificationPath,
		sink:   sink,
		logger: logger.With(slog.String("component", "notify_channel")),
		state:  StateDisconnected,
	}
}

// NormalizeBaseURL приводит настроенный базовый адрес к виду ws(s)://host:port,
// отбрасывая хвостовой путь и слэши и заменяя HTTP-схему на WebSocket.
func NormalizeBaseURL(raw string) string {
	trimmed := strings.TrimRight(raw, "/")

	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return trimmed
	}

	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// Connect открывает подключение с указанными учётными данными.
// Без учётных данных канал остаётся Disconnected и не пытается
// подключиться. Токен передаётся query-параметром, как требует Core API.
func (c *Channel) Connect(ctx context.Context, token string) error {
	if token == "" {
		c.setState(StateDisconnected, "учётные данные отсутствуют")
		return ErrNoCredential
	}

	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return errors.New("канал уже подключён или подключается")
	}
	c.state = StateConnecting
	c.detail = ""
	c.mu.Unlock()

	conn, _, err := websocket.Dial(ctx, c.wsURL+"?token="+url.QueryEscape(token), nil)
	if err != nil {
		c.setState(StateDisconnected, "подключение не удалось")
		return err
	}

	readCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.done = done
	c.state = StateConnected
	c.mu.Unlock()

	c.logger.Info("Канал уведомлений подключён", slog.String("url", c.wsURL))

	go c.readLoop(readCtx, conn, done)
	return nil
}

// readLoop читает и разбирает входящие сообщения до закрытия канала.
// Нечитаемые сообщения отбрасываются и логируются, на состояние они
// не влияют. Закрытие с кодом policy violation (отказ в авторизации)
// отличается в диагностике от обычного, но оба ведут в Disconnected.
func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			detail := "канал закрыт"
			if status == websocket.StatusPolicyViolation {
				detail = "канал отклонён сервером (policy violation — авторизация)"
				c.logger.Warn("Сервер отклонил канал уведомлений",
					slog.Int("close_code", int(status)),
				)
			} else if ctx.Err() == nil {
				c.logger.Info("Канал уведомлений закрыт",
					slog.Int("close_code", int(status)),
				)
			}
			c.setState(StateDisconnected, detail)
			return
		}

		var ev model.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			channelDropped.Inc()
			c.logger.Warn("Нечитаемое сообщение канала отброшено",
				slog.String("error", err.Error()),
			)
			continue
		}
		if !ev.Valid() {
			channelDropped.Inc()
			c.logger.Warn("Невалидное событие канала отброшено",
				slog.String("tipo", ev.Type),
			)
			continue
		}

		c.mu.Lock()
		c.log = append(c.log, ev)
		c.mu.Unlock()

		channelEvents.WithLabelValues(ev.Type).Inc()
		c.sink(ev)
	}
}

// Close закрывает подключение. Журнал событий сессии сохраняется.
func (c *Channel) Close() {
	c.mu.Lock()
	conn := c.conn
	cancel := c.cancel
	done := c.done
	c.conn = nil
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "cierre")
	}
	if done != nil {
		<-done
	}
	c.setState(StateDisconnected, "закрыт шлюзом")
}

// State возвращает текущее состояние канала.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CloseDetail возвращает диагностику последнего закрытия.
func (c *Channel) CloseDetail() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detail
}

// Events возвращает копию журнала событий текущей сессии
// в порядке прибытия.
func (c *Channel) Events() []model.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]model.Event, len(c.log))
	copy(out, c.log)
	return out
}

// ResetLog очищает журнал событий (новая сессия).
func (c *Channel) ResetLog() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = nil
}

func (c *Channel) setState(state State, detail string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
	c.detail = detail
}
