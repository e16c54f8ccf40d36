// Пакет approval — координатор действия одобрения/отклонения файла.
// Последовательность одного действия: Idle → Confirming → Submitting →
// (Resolved | Failed). Политика комментария: при отклонении обязателен
// непустой комментарий (после обрезки пробелов), проверяется локально
// до любого сетевого вызова.
package approval

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/bigkaa/aethercore/review-gateway/internal/coreclient"
	"github.com/bigkaa/aethercore/review-gateway/internal/domain/model"
)

// Step — шаг действия координатора.
type Step string

const (
	// StepIdle — действия нет.
	StepIdle Step = "idle"
	// StepConfirming — открыт шаг подтверждения, ожидается комментарий.
	StepConfirming Step = "confirming"
	// StepSubmitting — команда отправляется в Core API.
	StepSubmitting Step = "submitting"
	// StepResolved — действие завершено (успех или stale с перезагрузкой).
	StepResolved Step = "resolved"
	// StepFailed — действие завершено ошибкой, показанной оператору.
	StepFailed Step = "failed"
)

var (
	// ErrNotApprovable — файл не проходит правило одобряемости.
	ErrNotApprovable = errors.New("файл нельзя одобрить — только отклонить")
	// ErrCommentRequired — отклонение без комментария.
	ErrCommentRequired = errors.New("комментарий обязателен при отклонении")
	// ErrNoAction — нет шага подтверждения для Confirm.
	ErrNoAction = errors.New("нет активного шага подтверждения")
	// ErrSubmitting — действие уже отправляется.
	ErrSubmitting = errors.New("команда уже отправляется")
)

// Submitter отправляет решение оператора в Core API.
type Submitter interface {
	Submit(ctx context.Context, fileID string, approved bool, comment string) error
}

// ResultStore принимает исходы команд (QueueStore).
type ResultStore interface {
	ApplyCommandResult(fileID string, approved bool, outcome error)
}

// Action — текущее действие координатора.
type Action struct {
	// ID — идентификатор действия для корреляции логов.
	ID string `json:"id"`
	// File — файл, по которому принимается решение.
	File model.PendingFile `json:"archivo"`
	// Approve — true: одобрение, false: отклонение.
	Approve bool `json:"aprobar"`
	// Validation — локальное сообщение валидации (пустой комментарий).
	Validation string `json:"validacion,omitempty"`
	// Failure — сообщение ошибки для оператора.
	Failure string `json:"fallo,omitempty"`
	// Notice — информационное уведомление (stale-reference).
	Notice string `json:"aviso,omitempty"`
}

// Coordinator — координатор действий одобрения/отклонения.
// Одновременно выполняется не более одного действия.
type Coordinator struct {
	submitter Submitter
	store     ResultStore
	logger    *slog.Logger

	// onAuthExpired — маршрутизация 401-класса в SessionGuard.
	onAuthExpired func()

	mu     sync.Mutex
	step   Step
	action *Action
}

// New создаёт координатор. onAuthExpired может быть nil.
func New(submitter Submitter, store ResultStore, onAuthExpired func(), logger *slog.Logger) *Coordinator {
	return &Coordinator{
		submitter:     submitter,
		store:         store,
		onAuthExpired: onAuthExpired,
		logger:        logger.With(slog.String("component", "approval")),
		step:          StepIdle,
	}
}

// StartApproval открывает шаг подтверждения одобрения.
// Файл без записей или с критической ошибкой валидации не одобряется.
func (c *Coordinator) StartApproval(f model.PendingFile) error {
	if !f.Approvable() {
		return ErrNotApprovable
	}
	return c.start(f, true)
}

// StartRejection открывает шаг подтверждения отклонения.
func (c *Coordinator) StartRejection(f model.PendingFile) error {
	return c.start(f, false)
}

func (c *Coordinator) start(f model.PendingFile, approve bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step == StepSubmitting {
		return ErrSubmitting
	}
	c.action = &Action{
		ID:      uuid.NewString(),
		File:    f,
		Approve: approve,
	}
	c.step = StepConfirming

	c.logger.Debug("Шаг подтверждения открыт",
		slog.String("action_id", c.action.ID),
		slog.String("file_id", f.ID),
		slog.Bool("approve", approve),
	)
	return nil
}

// Confirm завершает шаг подтверждения и отправляет ровно одну команду.
//
// Отклонение с пустым (после обрезки пробелов) комментарием отклоняется
// локально: сетевой вызов не выполняется, координатор остаётся в
// Confirming с сообщением валидации.
//
// Исход команды всегда применяется к очереди — даже если оператор успел
// закрыть шаг: финальным состоянием владеет очередь, а не координатор.
func (c *Coordinator) Confirm(ctx context.Context, comment string) error {
	c.mu.Lock()
	if c.step != StepConfirming || c.action == nil {
		c.mu.Unlock()
		return ErrNoAction
	}
	act := c.action

	comment = strings.TrimSpace(comment)
	if !act.Approve && comment == "" {
		act.Validation = "Indique el motivo del rechazo"
		c.mu.Unlock()
		return ErrCommentRequired
	}
	act.Validation = ""
	c.step = StepSubmitting
	c.mu.Unlock()

	err := c.submitter.Submit(ctx, act.File.ID, act.Approve, comment)

	c.mu.Lock()

	// Координатор мог быть отменён во время отправки: шаг тогда не
	// трогаем, но исход всё равно доводим до очереди.
	current := c.action == act
	authExpired := false

	switch {
	case err == nil:
		c.store.ApplyCommandResult(act.File.ID, act.Approve, nil)
		if current {
			c.step = StepResolved
		}
		c.logger.Info("Действие завершено",
			slog.String("action_id", act.ID),
			slog.String("file_id", act.File.ID),
			slog.Bool("approve", act.Approve),
		)
		err = nil

	case coreclient.IsStaleReference(err):
		// Очередь заведомо устарела: шаг закрывается, перезагрузку
		// планирует очередь. Для оператора это уведомление, не ошибка.
		c.store.ApplyCommandResult(act.File.ID, act.Approve, err)
		if current {
			c.step = StepResolved
			act.Notice = "El archivo ya fue resuelto — actualizando la lista"
		}
		err = nil

	case coreclient.IsAuthExpired(err):
		if current {
			c.step = StepFailed
			act.Failure = "La sesión ha expirado"
		}
		authExpired = true

	default:
		// Транзиентная ошибка: сообщение сервера показывается оператору,
		// автоматического повтора нет — действие инициируется заново.
		c.store.ApplyCommandResult(act.File.ID, act.Approve, err)
		if current {
			c.step = StepFailed
			act.Failure = operatorMessage(err)
		}
		c.logger.Warn("Действие завершилось ошибкой",
			slog.String("action_id", act.ID),
			slog.String("file_id", act.File.ID),
			slog.String("error", err.Error()),
		)
	}
	c.mu.Unlock()

	// Сигнал в guard уходит без удержания mu: teardown сессии
	// закрывает в том числе шаг координатора.
	if authExpired && c.onAuthExpired != nil {
		c.onAuthExpired()
	}
	return err
}

// Cancel закрывает текущий шаг. Исход уже отправленной команды всё
// равно будет применён к очереди по её завершении.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = StepIdle
	c.action = nil
}

// Current возвращает текущий шаг и копию действия (nil, если действия нет).
func (c *Coordinator) Current() (Step, *Action) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.action == nil {
		return c.step, nil
	}
	act := *c.action
	return c.step, &act
}

// operatorMessage строит сообщение для оператора: detail сервера,
// если он есть, иначе общий текст.
func operatorMessage(err error) string {
	var apiErr *coreclient.APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return "No se pudo completar la operación, inténtelo de nuevo"
}
