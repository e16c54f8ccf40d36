// Пакет session — сессия оператора Review Gateway.
// SessionContext владеет учётными данными (bearer-токен Core API),
// Guard отслеживает их валидность: локальная проверка exp-клейма
// без сети, периодическое подтверждение через Core API, принудительный
// logout при недействительной сессии.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bigkaa/aethercore/review-gateway/internal/coreclient"
)

// State — состояние сессии оператора.
type State string

const (
	// StateUnknown — сессия ещё не проверялась.
	StateUnknown State = "unknown"
	// StateValid — сессия действительна.
	StateValid State = "valid"
	// StateExpiringSoon — сессия действительна, но истекает в пределах горизонта.
	StateExpiringSoon State = "expiring_soon"
	// StateInvalid — сессия недействительна, требуется повторный вход.
	StateInvalid State = "invalid"
)

// ErrNoSession — учётные данные отсутствуют.
var ErrNoSession = errors.New("сессия оператора отсутствует")

// Context — учётные данные сессии оператора.
// Живёт только в памяти процесса: init при входе, clear при Invalid.
type Context struct {
	// Token — bearer-токен Core API.
	Token string
	// Identity — учётная запись оператора.
	Identity *coreclient.Identity
	// ExpiresAt — время истечения токена из exp-клейма.
	ExpiresAt time.Time
}

// IdentityClient — подтверждение учётной записи через Core API.
type IdentityClient interface {
	Me(ctx context.Context, token string) (*coreclient.Identity, error)
}

// Guard — монитор валидности сессии оператора.
type Guard struct {
	client  IdentityClient
	horizon time.Duration
	logger  *slog.Logger

	// onInvalid — сигнал принудительного logout. Вызывается без
	// удержания mu, ровно один раз на переход в Invalid.
	onInvalid func(reason string)

	mu    sync.Mutex
	sess  *Context
	state State
}

// NewGuard создаёт монитор сессии.
// horizon — горизонт признака expiringSoon (RG_SESSION_EXPIRY_HORIZON).
// onInvalid может быть nil.
func NewGuard(client IdentityClient, horizon time.Duration, onInvalid func(reason string), logger *slog.Logger) *Guard {
	return &Guard{
		client:    client,
		horizon:   horizon,
		onInvalid: onInvalid,
		logger:    logger.With(slog.String("component", "session_guard")),
		state:     StateUnknown,
	}
}

// Init инициализирует сессию после успешного входа.
// Время истечения декодируется из exp-клейма токена локально,
// без проверки подписи: шлюз — клиент токена, а не его аудитория.
// Токен без читаемого exp-клейма отвергается.
func (g *Guard) Init(token string, ident *coreclient.Identity) error {
	expiresAt, err := tokenExpiry(token)
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.sess = &Context{Token: token, Identity: ident, ExpiresAt: expiresAt}
	g.state = StateValid
	g.mu.Unlock()

	g.logger.Info("Сессия инициализирована",
		slog.String("username", ident.Username),
		slog.Time("expires_at", expiresAt),
	)
	return nil
}

// CheckNow выполняет одну проверку сессии.
// Порядок: отсутствие учётных данных → Invalid; локально истёкший
// exp-клейм → Invalid без сетевого вызова; иначе подтверждение через
// Core API — 401-класс форсирует Invalid, любая другая ошибка
// (сеть, 5xx) транзиентна и состояния не меняет.
func (g *Guard) CheckNow(ctx context.Context) {
	g.mu.Lock()
	if g.state == StateInvalid {
		g.mu.Unlock()
		return
	}
	if g.sess == nil {
		g.mu.Unlock()
		g.invalidate("учётные данные отсутствуют")
		return
	}

	remaining := time.Until(g.sess.ExpiresAt)
	token := g.sess.Token
	g.mu.Unlock()

	if remaining <= 0 {
		g.invalidate("токен истёк (локальная проверка exp)")
		return
	}

	ident, err := g.client.Me(ctx, token)
	if err != nil {
		if coreclient.IsAuthExpired(err) {
			g.invalidate("Core API отверг учётные данные")
			return
		}
		// Транзиентная ошибка — состояние не меняем.
		g.logger.Warn("Проверка сессии не удалась, повтор по расписанию",
			slog.String("error", err.Error()),
		)
		return
	}

	g.mu.Lock()
	if g.sess != nil {
		g.sess.Identity = ident
	}
	g.mu.Unlock()

	g.logger.Debug("Сессия подтверждена",
		slog.String("username", ident.Username),
		slog.Duration("remaining", remaining),
	)
}

// Run выполняет проверку при старте и далее с фиксированным интервалом
// до отмены контекста.
func (g *Guard) Run(ctx context.Context, interval time.Duration) {
	g.CheckNow(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.CheckNow(ctx)
		}
	}
}

// State возвращает текущее состояние сессии.
// ExpiringSoon — производное: сессия валидна и остаток жизни токена
// меньше горизонта.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StateValid || g.sess == nil {
		return g.state
	}
	remaining := time.Until(g.sess.ExpiresAt)
	if remaining > 0 && remaining < g.horizon {
		return StateExpiringSoon
	}
	return StateValid
}

// ExpiringSoon сообщает, истекает ли сессия в пределах горизонта.
func (g *Guard) ExpiringSoon() bool {
	return g.State() == StateExpiringSoon
}

// Token возвращает bearer-токен текущей сессии.
func (g *Guard) Token() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.sess == nil {
		return "", ErrNoSession
	}
	return g.sess.Token, nil
}

// Identity возвращает учётную запись оператора (nil, если сессии нет).
func (g *Guard) Identity() *coreclient.Identity {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.sess == nil {
		return nil
	}
	return g.sess.Identity
}

// ExpiresAt возвращает время истечения токена (нулевое, если сессии нет).
func (g *Guard) ExpiresAt() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.sess == nil {
		return time.Time{}
	}
	return g.sess.ExpiresAt
}

// Invalidate принудительно завершает сессию (ручной logout).
func (g *Guard) Invalidate(reason string) {
	g.invalidate(reason)
}

// invalidate переводит сессию в Invalid: очищает учётные данные
// и кэшированную учётную запись, сигнализирует onInvalid.
// Повторные вызовы после перехода — no-op.
func (g *Guard) invalidate(reason string) {
	g.mu.Lock()
	if g.state == StateInvalid {
		g.mu.Unlock()
		return
	}
	g.sess = nil
	g.state = StateInvalid
	g.mu.Unlock()

	g.logger.Info("Сессия завершена", slog.String("reason", reason))

	if g.onInvalid != nil {
		g.onInvalid(reason)
	}
}

// Reset возвращает guard в исходное состояние для нового входа.
func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sess = nil
	g.state = StateUnknown
}

// tokenExpiry декодирует exp-клейм токена без проверки подписи.
func tokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, errors.New("токен не декодируется: " + err.Error())
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, errors.New("токен не содержит читаемого exp-клейма")
	}
	return exp.Time, nil
}
