package queue

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bigkaa/aethercore/review-gateway/internal/coreclient"
	"github.com/bigkaa/aethercore/review-gateway/internal/domain/model"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeSource — управляемый REST-источник snapshot.
type fakeSource struct {
	calls int32
	files []model.PendingFile
	err   error
}

func (f *fakeSource) PendingFiles(ctx context.Context) ([]model.PendingFile, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.files, nil
}

func pending(id string) model.PendingFile {
	return model.PendingFile{
		ID:          id,
		Filename:    id + ".txt",
		Kind:        model.KindTXT,
		Status:      model.StatusPending,
		RecordCount: 10,
	}
}

func newFileEvent(id string) model.Event {
	return model.Event{Type: model.EventNewFile, File: pending(id)}
}

func stateChangeEvent(id, status string) model.Event {
	return model.Event{Type: model.EventStateChange, File: model.PendingFile{ID: id, Status: status}}
}

// TestStore_LoadSnapshot: после snapshot с N записями pending == N,
// processed/rejected не меняются.
func TestStore_LoadSnapshot(t *testing.T) {
	source := &fakeSource{files: []model.PendingFile{pending("f-1"), pending("f-2")}}
	store := New(source, time.Millisecond, nil, testLogger())

	// Терминальный переход до snapshot — аккумуляторы должны пережить замещение.
	store.ApplyEvent(stateChangeEvent("f-0", model.StatusApproved))

	if err := store.LoadSnapshot(context.Background()); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}

	c := store.Counters()
	if c.Pending != 2 {
		t.Errorf("Pending = %d, ожидалось 2", c.Pending)
	}
	if c.Processed != 1 || c.Rejected != 0 {
		t.Errorf("Processed/Rejected = %d/%d, snapshot не должен их менять", c.Processed, c.Rejected)
	}

	snap := store.Snapshot()
	if len(snap) != 2 || snap[0].ID != "f-1" || snap[1].ID != "f-2" {
		t.Errorf("Snapshot() = %+v, ожидался порядок f-1, f-2", snap)
	}
}

// TestStore_LoadSnapshot_ErrorKeepsMapping: при ошибке коллекция не меняется,
// ошибка всплывает вызывающему.
func TestStore_LoadSnapshot_ErrorKeepsMapping(t *testing.T) {
	source := &fakeSource{files: []model.PendingFile{pending("f-1")}}
	store := New(source, time.Millisecond, nil, testLogger())

	if err := store.LoadSnapshot(context.Background()); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}

	source.err = &coreclient.APIError{StatusCode: 503, Detail: "недоступен"}
	if err := store.LoadSnapshot(context.Background()); err == nil {
		t.Fatal("ожидалась ошибка")
	}

	if got := store.Counters().Pending; got != 1 {
		t.Errorf("Pending = %d, коллекция должна остаться прежней", got)
	}
}

// TestStore_LoadSnapshot_AuthExpired: 401-класс уходит в session guard,
// локальная ошибка не всплывает.
func TestStore_LoadSnapshot_AuthExpired(t *testing.T) {
	source := &fakeSource{err: fmt.Errorf("статус 401: %w", coreclient.ErrAuthExpired)}
	var authSignal atomic.Bool
	store := New(source, time.Millisecond, func() { authSignal.Store(true) }, testLogger())

	if err := store.LoadSnapshot(context.Background()); err != nil {
		t.Fatalf("LoadSnapshot вернул ошибку %v, 401 не должен всплывать", err)
	}
	if !authSignal.Load() {
		t.Error("ожидался сигнал в session guard")
	}
}

// TestStore_DuplicateNewFile — сценарий A: snapshot [f-1], затем
// NUEVO_ARCHIVO для f-1 → в коллекции одна запись, pending=1.
func TestStore_DuplicateNewFile(t *testing.T) {
	source := &fakeSource{files: []model.PendingFile{pending("f-1")}}
	store := New(source, time.Millisecond, nil, testLogger())

	if err := store.LoadSnapshot(context.Background()); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	store.ApplyEvent(newFileEvent("f-1"))

	if got := store.Counters().Pending; got != 1 {
		t.Errorf("Pending = %d, ожидалось 1 (дубликат — no-op)", got)
	}
	if got := len(store.Snapshot()); got != 1 {
		t.Errorf("len(Snapshot()) = %d, ожидалось 1", got)
	}
}

// TestStore_OptimisticRemovalThenEvent — сценарий B: успешная команда
// для f-1, затем CAMBIO_ESTADO для f-1/APROBADO → коллекция пуста,
// processed ровно 1.
func TestStore_OptimisticRemovalThenEvent(t *testing.T) {
	source := &fakeSource{files: []model.PendingFile{pending("f-1")}}
	store := New(source, time.Millisecond, nil, testLogger())

	if err := store.LoadSnapshot(context.Background()); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}

	store.ApplyCommandResult("f-1", true, nil)
	store.ApplyEvent(stateChangeEvent("f-1", model.StatusApproved))

	c := store.Counters()
	if c.Pending != 0 {
		t.Errorf("Pending = %d, ожидалось 0", c.Pending)
	}
	if c.Processed != 1 {
		t.Errorf("Processed = %d, ожидалось ровно 1", c.Processed)
	}
}

// TestStore_StaleReferenceSchedulesReload — сценарий C: stale-reference
// не меняет коллекцию сразу, но в пределах задержки вызывает LoadSnapshot.
func TestStore_StaleReferenceSchedulesReload(t *testing.T) {
	source := &fakeSource{files: []model.PendingFile{pending("f-1")}}
	store := New(source, 20*time.Millisecond, nil, testLogger())

	if err := store.LoadSnapshot(context.Background()); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	calls := atomic.LoadInt32(&source.calls)

	staleErr := fmt.Errorf("статус 404: %w", coreclient.ErrStaleReference)
	store.ApplyCommandResult("f-1", true, staleErr)

	// Сразу после — коллекция и счётчики не тронуты.
	c := store.Counters()
	if c.Pending != 1 || c.Processed != 0 {
		t.Errorf("Counters = %+v, stale не должен мутировать состояние", c)
	}

	// Повторный stale не должен плодить вторую перезагрузку.
	store.ApplyCommandResult("f-1", true, staleErr)

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&source.calls) == calls && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&source.calls); got != calls+1 {
		t.Errorf("вызовов источника = %d, ожидался ровно один дополнительный (%d)", got, calls+1)
	}
}

// TestStore_TerminalIdempotence: повторные терминальные переходы одного id
// дают ровно один инкремент счётчика независимо от порядка и источника.
func TestStore_TerminalIdempotence(t *testing.T) {
	store := New(&fakeSource{}, time.Millisecond, nil, testLogger())

	store.ApplyEvent(newFileEvent("f-1"))
	store.ApplyEvent(stateChangeEvent("f-1", model.StatusRejected))
	store.ApplyEvent(stateChangeEvent("f-1", model.StatusRejected))
	store.ApplyCommandResult("f-1", false, nil)

	c := store.Counters()
	if c.Rejected != 1 {
		t.Errorf("Rejected = %d, ожидалось 1", c.Rejected)
	}
	if c.Processed != 0 {
		t.Errorf("Processed = %d, ожидалось 0", c.Processed)
	}
}

// TestStore_TerminalEventForUnknownID: CAMBIO_ESTADO для отсутствующего id —
// no-op для коллекции, но счётчик учитывается один раз (событие могло
// обогнать snapshot).
func TestStore_TerminalEventForUnknownID(t *testing.T) {
	store := New(&fakeSource{}, time.Millisecond, nil, testLogger())

	store.ApplyEvent(stateChangeEvent("f-9", model.StatusApproved))
	store.ApplyEvent(stateChangeEvent("f-9", model.StatusApproved))

	c := store.Counters()
	if c.Pending != 0 {
		t.Errorf("Pending = %d, ожидалось 0", c.Pending)
	}
	if c.Processed != 1 {
		t.Errorf("Processed = %d, ожидалось 1", c.Processed)
	}
}

// TestStore_SuppressResurrectedFile: NUEVO_ARCHIVO для уже решённого id
// подавляется до конца сессии.
func TestStore_SuppressResurrectedFile(t *testing.T) {
	store := New(&fakeSource{}, time.Millisecond, nil, testLogger())

	store.ApplyEvent(newFileEvent("f-1"))
	store.ApplyEvent(stateChangeEvent("f-1", model.StatusApproved))
	store.ApplyEvent(newFileEvent("f-1"))

	if got := store.Counters().Pending; got != 0 {
		t.Errorf("Pending = %d, решённый файл не должен воскресать", got)
	}
}

// TestStore_UnknownTerminalStatusCountsRejected: любой терминальный статус,
// кроме APROBADO, учитывается как отклонение.
func TestStore_UnknownTerminalStatusCountsRejected(t *testing.T) {
	store := New(&fakeSource{}, time.Millisecond, nil, testLogger())

	store.ApplyEvent(newFileEvent("f-1"))
	store.ApplyEvent(stateChangeEvent("f-1", "ERROR_PROCESAMIENTO"))

	c := store.Counters()
	if c.Rejected != 1 || c.Processed != 0 {
		t.Errorf("Counters = %+v, не-APROBADO должен идти в rejected", c)
	}
}

// TestStore_Reset: завершение сессии очищает коллекцию, счётчики
// и множество учтённых id.
func TestStore_Reset(t *testing.T) {
	store := New(&fakeSource{}, time.Millisecond, nil, testLogger())

	store.ApplyEvent(newFileEvent("f-1"))
	store.ApplyEvent(stateChangeEvent("f-1", model.StatusApproved))
	store.Reset()

	c := store.Counters()
	if c.Pending != 0 || c.Processed != 0 || c.Rejected != 0 {
		t.Errorf("Counters = %+v, ожидалось обнуление", c)
	}

	// Новая сессия: тот же id снова может пройти полный цикл.
	store.ApplyEvent(newFileEvent("f-1"))
	if got := store.Counters().Pending; got != 1 {
		t.Errorf("Pending = %d, после Reset подавление должно сняться", got)
	}
}

// TestStore_SubscribeNotified: подписчики оповещаются об эффективных мутациях.
func TestStore_SubscribeNotified(t *testing.T) {
	store := New(&fakeSource{}, time.Millisecond, nil, testLogger())

	var notified atomic.Int32
	store.Subscribe(func() { notified.Add(1) })

	store.ApplyEvent(newFileEvent("f-1"))
	if got := notified.Load(); got != 1 {
		t.Fatalf("уведомлений = %d, ожидалось 1", got)
	}

	// Дубликат — no-op, уведомления быть не должно.
	store.ApplyEvent(newFileEvent("f-1"))
	if got := notified.Load(); got != 1 {
		t.Errorf("уведомлений = %d, no-op не должен оповещать", got)
	}
}
