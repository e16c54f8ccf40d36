// Пакет queue — ядро согласования очереди ожидающих файлов.
// Сливает три независимых неупорядоченных источника — REST snapshot,
// события канала уведомлений и исходы команд оператора — в одну
// каноническую коллекцию плюс счётчики.
//
// Инвариант слияния: итоговое состояние зависит только от множества
// различных фактов (id, терминальный статус), а не от порядка их
// прибытия. Поэтому повторная доставка NUEVO_ARCHIVO и повторные
// терминальные переходы — no-op, а не повторное применение.
package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/bigkaa/aethercore/review-gateway/internal/coreclient"
	"github.com/bigkaa/aethercore/review-gateway/internal/domain/model"
)

// seenCapacity — ёмкость множества уже учтённых терминальных id.
// LRU ограничивает память при очень долгих сессиях; ёмкости хватает,
// чтобы повторные доставки канала (секунды, не сутки) всегда попадали
// в окно.
const seenCapacity = 16384

// SnapshotSource — REST-источник полного списка ожидающих файлов.
type SnapshotSource interface {
	PendingFiles(ctx context.Context) ([]model.PendingFile, error)
}

// Counters — производные счётчики очереди.
// Pending всегда равен размеру коллекции; Processed и Rejected —
// монотонные аккумуляторы терминальных переходов текущей сессии,
// snapshot их не пополняет.
type Counters struct {
	Pending   int `json:"pendientes"`
	Processed int `json:"procesados"`
	Rejected  int `json:"rechazados"`
}

// Store — единственный владелец коллекции ожидающих файлов и счётчиков.
// Все мутации сериализованы мьютексом: каждая реакция (snapshot, событие,
// исход команды) выполняется до конца прежде, чем начнётся следующая.
type Store struct {
	source      SnapshotSource
	reloadDelay time.Duration
	logger      *slog.Logger

	// onAuthExpired — маршрутизация 401-класса в SessionGuard.
	// Ошибка этого класса никогда не всплывает как локальная.
	onAuthExpired func()

	mu        sync.Mutex
	files     map[string]model.PendingFile
	order     []string // порядок прибытия для стабильного отображения
	processed int
	rejected  int
	// seen — id, уже давшие терминальный инкремент счётчика в этой
	// сессии. Гарантирует идемпотентность при at-least-once доставке
	// и подавляет воскрешение решённых файлов поздним NUEVO_ARCHIVO.
	seen        *lru.Cache[string, struct{}]
	reloadTimer *time.Timer
	subs        []func()
}

// New создаёт пустую очередь.
// reloadDelay — задержка отложенной перезагрузки после stale-reference.
// onAuthExpired может быть nil.
func New(source SnapshotSource, reloadDelay time.Duration, onAuthExpired func(), logger *slog.Logger) *Store {
	seen, _ := lru.New[string, struct{}](seenCapacity)
	return &Store{
		source:        source,
		reloadDelay:   reloadDelay,
		onAuthExpired: onAuthExpired,
		logger:        logger.With(slog.String("component", "queue_store")),
		files:         make(map[string]model.PendingFile),
		seen:          seen,
	}
}

// LoadSnapshot загружает полный список ожидающих файлов и замещает им
// коллекцию целиком. Счётчики processed/rejected не трогаются: snapshot
// не является источником терминальных событий.
// 401-класс уходит в SessionGuard и локально не всплывает; любая другая
// ошибка оставляет коллекцию нетронутой и возвращается вызывающему.
func (s *Store) LoadSnapshot(ctx context.Context) error {
	files, err := s.source.PendingFiles(ctx)
	if err != nil {
		if coreclient.IsAuthExpired(err) {
			s.logger.Warn("Snapshot отклонён по авторизации, передано в session guard")
			if s.onAuthExpired != nil {
				s.onAuthExpired()
			}
			return nil
		}
		s.logger.Error("Ошибка загрузки snapshot, коллекция не изменена",
			slog.String("error", err.Error()),
		)
		return err
	}

	s.mu.Lock()
	s.files = make(map[string]model.PendingFile, len(files))
	s.order = s.order[:0]
	for _, f := range files {
		if _, ok := s.files[f.ID]; ok {
			continue
		}
		s.files[f.ID] = f
		s.order = append(s.order, f.ID)
	}
	pendingFiles.Set(float64(len(s.files)))
	s.mu.Unlock()

	s.logger.Info("Snapshot очереди применён", slog.Int("pending", len(files)))
	s.notifySubscribers()
	return nil
}

// ApplyEvent применяет одно событие канала уведомлений.
//
// NUEVO_ARCHIVO: дубликат id — no-op (at-least-once доставка);
// id с уже учтённым терминальным переходом — подавляется навсегда
// в пределах сессии (решённые файлы не воскрешают).
// CAMBIO_ESTADO: файл удаляется из коллекции, счётчик терминального
// статуса инкрементируется не более одного раза на id.
func (s *Store) ApplyEvent(ev model.Event) {
	if !ev.Valid() {
		s.logger.Warn("Событие отброшено", slog.String("tipo", ev.Type))
		return
	}

	s.mu.Lock()
	changed := false

	switch ev.Type {
	case model.EventNewFile:
		if s.seen.Contains(ev.File.ID) {
			s.logger.Debug("NUEVO_ARCHIVO для решённого файла подавлен",
				slog.String("file_id", ev.File.ID),
			)
			break
		}
		if _, exists := s.files[ev.File.ID]; exists {
			s.logger.Debug("Повторный NUEVO_ARCHIVO проигнорирован",
				slog.String("file_id", ev.File.ID),
			)
			break
		}
		s.files[ev.File.ID] = ev.File
		s.order = append(s.order, ev.File.ID)
		changed = true

	case model.EventStateChange:
		changed = s.applyTerminalLocked(ev.File.ID, ev.File.Status)
	}

	pendingFiles.Set(float64(len(s.files)))
	s.mu.Unlock()

	if changed {
		s.notifySubscribers()
	}
}

// ApplyCommandResult применяет исход команды одобрения/отклонения.
//
// Успех — оптимистичное удаление с инкрементом счётчика, не дожидаясь
// соответствующего CAMBIO_ESTADO: его позднее прибытие будет поглощено
// как no-op. Stale-reference — локальное состояние заведомо отстало от
// сервера: счётчики не трогаются, планируется отложенная перезагрузка
// snapshot. Прочие ошибки состояния не меняют.
func (s *Store) ApplyCommandResult(fileID string, approved bool, outcome error) {
	if outcome == nil {
		status := model.StatusRejected
		if approved {
			status = model.StatusApproved
		}

		s.mu.Lock()
		changed := s.applyTerminalLocked(fileID, status)
		pendingFiles.Set(float64(len(s.files)))
		s.mu.Unlock()

		if changed {
			s.notifySubscribers()
		}
		return
	}

	switch {
	case coreclient.IsStaleReference(outcome):
		s.logger.Info("Stale-reference от сервера, планируется перезагрузка snapshot",
			slog.String("file_id", fileID),
			slog.Duration("delay", s.reloadDelay),
		)
		s.scheduleReload()
	case coreclient.IsAuthExpired(outcome):
		if s.onAuthExpired != nil {
			s.onAuthExpired()
		}
	default:
		// Транзиентная ошибка команды: состояние очереди не меняется,
		// сообщение показывает координатор.
		s.logger.Warn("Команда завершилась ошибкой, очередь не изменена",
			slog.String("file_id", fileID),
			slog.String("error", outcome.Error()),
		)
	}
}

// applyTerminalLocked выполняет терминальный переход под mu.
// Возвращает true, если коллекция или счётчики изменились.
func (s *Store) applyTerminalLocked(fileID, status string) bool {
	changed := false

	if _, exists := s.files[fileID]; exists {
		delete(s.files, fileID)
		s.removeFromOrderLocked(fileID)
		changed = true
	}

	// Счётчик инкрементируется ровно один раз на id за сессию,
	// независимо от того, была ли запись ещё в коллекции.
	if !s.seen.Contains(fileID) {
		s.seen.Add(fileID, struct{}{})
		if status == model.StatusApproved {
			s.processed++
			filesProcessed.Inc()
		} else {
			s.rejected++
			filesRejected.Inc()
		}
		changed = true
	}

	return changed
}

// scheduleReload планирует одну отложенную перезагрузку snapshot.
// Уже запланированная перезагрузка не дублируется.
func (s *Store) scheduleReload() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reloadTimer != nil {
		return
	}
	s.reloadTimer = time.AfterFunc(s.reloadDelay, func() {
		s.mu.Lock()
		s.reloadTimer = nil
		s.mu.Unlock()

		snapshotReloads.Inc()
		if err := s.LoadSnapshot(context.Background()); err != nil {
			s.logger.Error("Отложенная перезагрузка snapshot не удалась",
				slog.String("error", err.Error()),
			)
		}
	})
}

// removeFromOrderLocked убирает id из порядка прибытия.
func (s *Store) removeFromOrderLocked(fileID string) {
	for i, id := range s.order {
		if id == fileID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// Snapshot возвращает копию коллекции в порядке прибытия.
func (s *Store) Snapshot() []model.PendingFile {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.PendingFile, 0, len(s.order))
	for _, id := range s.order {
		if f, ok := s.files[id]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Get возвращает файл по id.
func (s *Store) Get(fileID string) (model.PendingFile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[fileID]
	return f, ok
}

// Counters возвращает текущие счётчики.
// Pending равен размеру коллекции по построению.
func (s *Store) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Counters{
		Pending:   len(s.files),
		Processed: s.processed,
		Rejected:  s.rejected,
	}
}

// Subscribe регистрирует уведомление об изменениях очереди.
// Вызывается после каждой эффективной мутации, без удержания mu.
func (s *Store) Subscribe(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// notifySubscribers оповещает подписчиков об изменении.
func (s *Store) notifySubscribers() {
	s.mu.Lock()
	subs := make([]func(), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}

// Reset очищает очередь при завершении сессии: коллекцию, счётчики,
// множество учтённых id и запланированную перезагрузку.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reloadTimer != nil {
		s.reloadTimer.Stop()
		s.reloadTimer = nil
	}
	s.files = make(map[string]model.PendingFile)
	s.order = nil
	s.processed = 0
	s.rejected = 0
	s.seen.Purge()
	pendingFiles.Set(0)
}
