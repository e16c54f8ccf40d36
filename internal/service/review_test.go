// review_test.go — интеграционные тесты ReviewService с mock Core API.
// Проверяют полный жизненный цикл ядра: вход, загрузка snapshot,
// решение по файлу, teardown при logout.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bigkaa/aethercore/review-gateway/internal/approval"
	"github.com/bigkaa/aethercore/review-gateway/internal/config"
	"github.com/bigkaa/aethercore/review-gateway/internal/coreclient"
	"github.com/bigkaa/aethercore/review-gateway/internal/session"
)

// signToken выпускает HS256-токен с указанным временем истечения.
func signToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "operador",
		"exp": exp.Unix(),
	})
	signed, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("подпись токена: %v", err)
	}
	return signed
}

// mockCore — минимальный mock Core API для тестов сервисного слоя.
type mockCore struct {
	mu        sync.Mutex
	token     string
	files     []map[string]any
	decisions []map[string]any
}

func (m *mockCore) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		if req.Password != "secreto" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Credenciales inválidas"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": m.token,
			"token_type":   "bearer",
			"usuario": map[string]string{
				"username": req.Username,
				"email":    req.Username + "@aethercore.local",
			},
		})
	})

	mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+m.token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"username": "operador"})
	})

	mux.HandleFunc("GET /api/archivos/pendientes", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+m.token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		_ = json.NewEncoder(w).Encode(m.files)
	})

	mux.HandleFunc("POST /api/archivos/aprobar", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+m.token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		m.mu.Lock()
		m.decisions = append(m.decisions, req)
		m.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"mensaje": "ok"})
	})

	return mux
}

func (m *mockCore) recordedDecisions() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]any, len(m.decisions))
	copy(out, m.decisions)
	return out
}

// newTestService поднимает mock Core API и собирает сервис поверх него.
func newTestService(t *testing.T, core *mockCore) (*ReviewService, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(core.handler(t))
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		CoreURL:              srv.URL,
		CoreTimeout:          5 * time.Second,
		SessionCheckInterval: time.Hour,
		SessionExpiryHorizon: 10 * time.Minute,
		ReloadDelay:          10 * time.Millisecond,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := coreclient.New(cfg.CoreURL, cfg.CoreTimeout, logger)

	svc := New(cfg, client, logger)
	t.Cleanup(svc.Stop)
	return svc, srv
}

func pendingFile(id, name string, records int) map[string]any {
	return map[string]any{
		"id":             id,
		"nombre_archivo": name,
		"tipo":           "TXT",
		"estado":         "PENDIENTE",
		"num_registros":  records,
		"errores":        []string{},
	}
}

// TestReviewService_LoginLoadsQueue: вход загружает snapshot,
// сессия валидна, очередь содержит файлы Core API.
func TestReviewService_LoginLoadsQueue(t *testing.T) {
	core := &mockCore{
		token: signToken(t, time.Now().Add(time.Hour)),
		files: []map[string]any{
			pendingFile("f-1", "ventas.txt", 10),
			pendingFile("f-2", "clientes.xml", 5),
		},
	}
	svc, _ := newTestService(t, core)

	ident, err := svc.Login(context.Background(), "operador", "secreto")
	if err != nil {
		t.Fatalf("Login вернул ошибку: %v", err)
	}
	if ident.Username != "operador" {
		t.Errorf("username = %q, ожидался operador", ident.Username)
	}

	if got := svc.SessionState(); got != session.StateValid {
		t.Errorf("состояние сессии = %q, ожидалось valid", got)
	}

	files := svc.Queue()
	if len(files) != 2 {
		t.Fatalf("в очереди %d файлов, ожидалось 2", len(files))
	}
	if files[0].ID != "f-1" || files[1].ID != "f-2" {
		t.Errorf("порядок очереди нарушен: %s, %s", files[0].ID, files[1].ID)
	}

	c := svc.Counters()
	if c.Pending != 2 || c.Processed != 0 || c.Rejected != 0 {
		t.Errorf("счётчики = %+v, ожидалось pending=2", c)
	}
}

// TestReviewService_LoginRejected: неверный пароль — 401 от Core API,
// сервис не запускается.
func TestReviewService_LoginRejected(t *testing.T) {
	core := &mockCore{token: signToken(t, time.Now().Add(time.Hour))}
	svc, _ := newTestService(t, core)

	_, err := svc.Login(context.Background(), "operador", "wrong")
	if !coreclient.IsAuthExpired(err) {
		t.Fatalf("ожидался 401-класс, получено: %v", err)
	}
	if len(svc.Queue()) != 0 {
		t.Error("очередь не должна наполняться без сессии")
	}
}

// TestReviewService_ApproveFlow: полный цикл одобрения — файл уходит
// из очереди, счётчик processed растёт, решение доставлено в Core API.
func TestReviewService_ApproveFlow(t *testing.T) {
	core := &mockCore{
		token: signToken(t, time.Now().Add(time.Hour)),
		files: []map[string]any{pendingFile("f-1", "ventas.txt", 10)},
	}
	svc, _ := newTestService(t, core)

	if _, err := svc.Login(context.Background(), "operador", "secreto"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := svc.StartApproval("f-1"); err != nil {
		t.Fatalf("StartApproval: %v", err)
	}
	if err := svc.Confirm(context.Background(), "  todo correcto  "); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	if len(svc.Queue()) != 0 {
		t.Error("файл должен уйти из очереди после одобрения")
	}
	c := svc.Counters()
	if c.Pending != 0 || c.Processed != 1 {
		t.Errorf("счётчики = %+v, ожидалось processed=1", c)
	}

	decisions := core.recordedDecisions()
	if len(decisions) != 1 {
		t.Fatalf("Core API получил %d решений, ожидалось 1", len(decisions))
	}
	d := decisions[0]
	if d["archivo_id"] != "f-1" || d["aprobado"] != true {
		t.Errorf("решение = %+v, ожидалось одобрение f-1", d)
	}
	if d["comentarios"] != "todo correcto" {
		t.Errorf("комментарий = %q, пробелы должны обрезаться", d["comentarios"])
	}
}

// TestReviewService_RejectionRequiresComment: отклонение без комментария
// блокируется локально, Core API не вызывается.
func TestReviewService_RejectionRequiresComment(t *testing.T) {
	core := &mockCore{
		token: signToken(t, time.Now().Add(time.Hour)),
		files: []map[string]any{pendingFile("f-1", "ventas.txt", 10)},
	}
	svc, _ := newTestService(t, core)

	if _, err := svc.Login(context.Background(), "operador", "secreto"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := svc.StartRejection("f-1"); err != nil {
		t.Fatalf("StartRejection: %v", err)
	}
	err := svc.Confirm(context.Background(), "   ")
	if !errors.Is(err, approval.ErrCommentRequired) {
		t.Fatalf("ожидался ErrCommentRequired, получено: %v", err)
	}

	if len(core.recordedDecisions()) != 0 {
		t.Error("Core API не должен вызываться без комментария")
	}
	if len(svc.Queue()) != 1 {
		t.Error("файл должен остаться в очереди")
	}

	step, action := svc.ApprovalStep()
	if step != approval.StepConfirming {
		t.Errorf("шаг = %q, ожидался confirming", step)
	}
	if action == nil || action.Validation == "" {
		t.Error("ожидалось сообщение валидации для оператора")
	}
}

// TestReviewService_StartApprovalUnknownFile: файл вне очереди.
func TestReviewService_StartApprovalUnknownFile(t *testing.T) {
	core := &mockCore{token: signToken(t, time.Now().Add(time.Hour))}
	svc, _ := newTestService(t, core)

	if _, err := svc.Login(context.Background(), "operador", "secreto"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := svc.StartApproval("no-such"); !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("ожидался ErrFileNotFound, получено: %v", err)
	}
}

// TestReviewService_LogoutTeardown: logout очищает очередь, счётчики,
// журнал событий и учётные данные.
func TestReviewService_LogoutTeardown(t *testing.T) {
	core := &mockCore{
		token: signToken(t, time.Now().Add(time.Hour)),
		files: []map[string]any{pendingFile("f-1", "ventas.txt", 10)},
	}
	svc, _ := newTestService(t, core)

	if _, err := svc.Login(context.Background(), "operador", "secreto"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if len(svc.Queue()) != 1 {
		t.Fatal("очередь должна наполниться перед logout")
	}

	svc.Logout()

	if got := svc.SessionState(); got != session.StateInvalid {
		t.Errorf("состояние сессии = %q, ожидалось invalid", got)
	}
	if svc.Identity() != nil {
		t.Error("учётная запись должна очищаться при logout")
	}
	if len(svc.Queue()) != 0 {
		t.Error("очередь должна очищаться при teardown")
	}
	c := svc.Counters()
	if c.Pending != 0 || c.Processed != 0 || c.Rejected != 0 {
		t.Errorf("счётчики должны обнуляться, получено %+v", c)
	}
	if len(svc.ChannelEvents()) != 0 {
		t.Error("журнал событий должен очищаться при teardown")
	}
}

// TestReviewService_ExpiredTokenTeardown: вход с истёкшим токеном
// невозможен — exp-клейм проверяется локально при инициализации.
func TestReviewService_ExpiredTokenTeardown(t *testing.T) {
	core := &mockCore{token: signToken(t, time.Now().Add(-time.Minute))}
	svc, _ := newTestService(t, core)

	_, err := svc.Login(context.Background(), "operador", "secreto")
	if err != nil {
		// Init отверг токен — допустимый исход
		return
	}
	// Иначе первый CheckNow обязан перевести сессию в invalid.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if svc.SessionState() == session.StateInvalid {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("сессия с истёкшим токеном должна становиться invalid")
}
