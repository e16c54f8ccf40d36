// Пакет service — сервисный слой Review Gateway.
// ReviewService связывает четыре компонента ядра (session guard,
// очередь, канал уведомлений, координатор) и владеет их жизненным
// циклом: onStart — первая проверка сессии, загрузка snapshot,
// открытие канала; onStop — закрытие канала и очистка состояния.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bigkaa/aethercore/review-gateway/internal/approval"
	"github.com/bigkaa/aethercore/review-gateway/internal/config"
	"github.com/bigkaa/aethercore/review-gateway/internal/coreclient"
	"github.com/bigkaa/aethercore/review-gateway/internal/domain/model"
	"github.com/bigkaa/aethercore/review-gateway/internal/notify"
	"github.com/bigkaa/aethercore/review-gateway/internal/queue"
	"github.com/bigkaa/aethercore/review-gateway/internal/session"
)

// ErrFileNotFound — файл отсутствует в очереди ожидания.
var ErrFileNotFound = fmt.Errorf("файл не найден в очереди")

// ReviewService — владелец компонентов ядра и их жизненного цикла.
type ReviewService struct {
	cfg    *config.Config
	logger *slog.Logger
	client *coreclient.Client

	guard       *session.Guard
	store       *queue.Store
	channel     *notify.Channel
	coordinator *approval.Coordinator

	mu          sync.Mutex
	running     bool
	cancelGuard context.CancelFunc
}

// snapshotSource — REST-источник snapshot с токеном текущей сессии.
type snapshotSource struct {
	client *coreclient.Client
	guard  *session.Guard
}

func (s *snapshotSource) PendingFiles(ctx context.Context) ([]model.PendingFile, error) {
	token, err := s.guard.Token()
	if err != nil {
		return nil, fmt.Errorf("snapshot без сессии: %w", coreclient.ErrAuthExpired)
	}
	return s.client.PendingFiles(ctx, token)
}

// decisionSubmitter — отправка решений с токеном текущей сессии.
type decisionSubmitter struct {
	client *coreclient.Client
	guard  *session.Guard
}

func (s *decisionSubmitter) Submit(ctx context.Context, fileID string, approved bool, comment string) error {
	token, err := s.guard.Token()
	if err != nil {
		return fmt.Errorf("команда без сессии: %w", coreclient.ErrAuthExpired)
	}
	return s.client.SubmitDecision(ctx, token, fileID, approved, comment)
}

// New создаёт сервис и связывает компоненты ядра.
// Переход сессии в Invalid останавливает канал и очищает очередь;
// 401-класс из любого компонента маршрутизируется в guard.
func New(cfg *config.Config, client *coreclient.Client, logger *slog.Logger) *ReviewService {
	svc := &ReviewService{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "review_service")),
		client: client,
	}

	svc.guard = session.NewGuard(client, cfg.SessionExpiryHorizon, svc.onSessionInvalid, logger)

	authExpired := func() { svc.guard.Invalidate("401-класс от Core API") }
	svc.store = queue.New(
		&snapshotSource{client: client, guard: svc.guard},
		cfg.ReloadDelay,
		authExpired,
		logger,
	)
	svc.channel = notify.New(cfg.CoreURL, svc.store.ApplyEvent, logger)
	svc.coordinator = approval.New(
		&decisionSubmitter{client: client, guard: svc.guard},
		svc.store,
		authExpired,
		logger,
	)

	return svc
}

// Login аутентифицирует оператора и запускает ядро.
func (s *ReviewService) Login(ctx context.Context, username, password string) (*coreclient.Identity, error) {
	result, err := s.client.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}

	// Повторный вход без logout: прежнее ядро останавливается,
	// состояние очереди собирается заново.
	s.Stop()
	s.store.Reset()
	s.channel.ResetLog()
	s.guard.Reset()
	if err := s.guard.Init(result.AccessToken, &result.Usuario); err != nil {
		return nil, err
	}

	if err := s.Start(ctx); err != nil {
		s.logger.Warn("Запуск после входа не полностью успешен",
			slog.String("error", err.Error()),
		)
	}
	return &result.Usuario, nil
}

// Start выполняет onStart: проверка сессии, первая загрузка snapshot,
// открытие канала уведомлений, фоновый цикл guard.
// Ошибка первой загрузки snapshot возвращается для показа оператору,
// но сервис остаётся запущенным — оператор может повторить загрузку.
func (s *ReviewService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true

	guardCtx, cancel := context.WithCancel(context.Background())
	s.cancelGuard = cancel
	s.mu.Unlock()

	go s.guard.Run(guardCtx, s.cfg.SessionCheckInterval)

	var firstErr error
	if err := s.store.LoadSnapshot(ctx); err != nil {
		firstErr = err
	}

	token, err := s.guard.Token()
	if err == nil {
		if err := s.channel.Connect(ctx, token); err != nil {
			s.logger.Warn("Канал уведомлений не подключён",
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	s.logger.Info("Ядро запущено")
	return firstErr
}

// Stop выполняет onStop: останавливает фоновый цикл guard и закрывает
// канал уведомлений. Состояние очереди не трогает.
func (s *ReviewService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancelGuard
	s.cancelGuard = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.channel.Close()
	s.logger.Info("Ядро остановлено")
}

// Logout — ручное завершение сессии оператором.
func (s *ReviewService) Logout() {
	s.guard.Invalidate("logout оператора")
}

// onSessionInvalid — полный teardown при недействительной сессии:
// остановка ядра, очистка очереди и журнала событий.
func (s *ReviewService) onSessionInvalid(reason string) {
	s.logger.Info("Сессия недействительна, выполняется teardown",
		slog.String("reason", reason),
	)
	s.Stop()
	s.store.Reset()
	s.channel.ResetLog()
	s.coordinator.Cancel()
}

// Reload выполняет немедленную перезагрузку snapshot по команде оператора.
func (s *ReviewService) Reload(ctx context.Context) error {
	return s.store.LoadSnapshot(ctx)
}

// Reconnect — явное решение о переподключении канала уведомлений.
// Очередь пересобирается: сначала свежий snapshot, затем подключение.
func (s *ReviewService) Reconnect(ctx context.Context) error {
	token, err := s.guard.Token()
	if err != nil {
		return err
	}

	if s.channel.State() != notify.StateDisconnected {
		s.channel.Close()
	}
	if err := s.store.LoadSnapshot(ctx); err != nil {
		return err
	}
	return s.channel.Connect(ctx, token)
}

// StartApproval открывает шаг подтверждения одобрения для файла из очереди.
func (s *ReviewService) StartApproval(fileID string) error {
	f, ok := s.store.Get(fileID)
	if !ok {
		return ErrFileNotFound
	}
	return s.coordinator.StartApproval(f)
}

// StartRejection открывает шаг подтверждения отклонения.
func (s *ReviewService) StartRejection(fileID string) error {
	f, ok := s.store.Get(fileID)
	if !ok {
		return ErrFileNotFound
	}
	return s.coordinator.StartRejection(f)
}

// Confirm подтверждает текущее действие с комментарием.
func (s *ReviewService) Confirm(ctx context.Context, comment string) error {
	return s.coordinator.Confirm(ctx, comment)
}

// CancelAction закрывает текущий шаг подтверждения.
func (s *ReviewService) CancelAction() {
	s.coordinator.Cancel()
}

// --- Производные представления для HTTP-слоя ---

// Queue возвращает коллекцию ожидающих файлов в порядке прибытия.
func (s *ReviewService) Queue() []model.PendingFile {
	return s.store.Snapshot()
}

// Counters возвращает счётчики очереди.
func (s *ReviewService) Counters() queue.Counters {
	return s.store.Counters()
}

// SessionState возвращает состояние сессии.
func (s *ReviewService) SessionState() session.State {
	return s.guard.State()
}

// SessionExpiringSoon сообщает, истекает ли сессия в пределах горизонта.
func (s *ReviewService) SessionExpiringSoon() bool {
	return s.guard.ExpiringSoon()
}

// Identity возвращает учётную запись оператора (nil без сессии).
func (s *ReviewService) Identity() *coreclient.Identity {
	return s.guard.Identity()
}

// ChannelState возвращает состояние канала уведомлений.
func (s *ReviewService) ChannelState() notify.State {
	return s.channel.State()
}

// ChannelCloseDetail возвращает диагностику последнего закрытия канала.
func (s *ReviewService) ChannelCloseDetail() string {
	return s.channel.CloseDetail()
}

// ChannelEvents возвращает журнал событий текущей сессии.
func (s *ReviewService) ChannelEvents() []model.Event {
	return s.channel.Events()
}

// ApprovalStep возвращает текущий шаг координатора и копию действия.
func (s *ReviewService) ApprovalStep() (approval.Step, *approval.Action) {
	return s.coordinator.Current()
}

// SubscribeQueue регистрирует подписчика изменений очереди.
func (s *ReviewService) SubscribeQueue(fn func()) {
	s.store.Subscribe(fn)
}

// CoreHealth запрашивает состояние конвейера у Core API.
func (s *ReviewService) CoreHealth(ctx context.Context) (*coreclient.HealthReport, error) {
	return s.client.Health(ctx)
}
