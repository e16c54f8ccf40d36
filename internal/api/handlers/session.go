// session.go — обработчики /api/v1/session endpoints.
// POST /api/v1/session/login — вход оператора и запуск ядра.
// POST /api/v1/session/logout — ручное завершение сессии.
// GET  /api/v1/session — текущее состояние сессии.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	apierrors "github.com/bigkaa/aethercore/review-gateway/internal/api/errors"
	"github.com/bigkaa/aethercore/review-gateway/internal/coreclient"
	"github.com/bigkaa/aethercore/review-gateway/internal/session"
)

// loginRequest — тело запроса входа.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// sessionResponse — состояние сессии для презентационного слоя.
type sessionResponse struct {
	State        session.State        `json:"estado"`
	ExpiringSoon bool                 `json:"expira_pronto"`
	Identity     *coreclient.Identity `json:"usuario,omitempty"`
}

// Login — POST /api/v1/session/login.
// Аутентифицирует оператора через Core API и запускает ядро шлюза.
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		apierrors.ValidationError(w, "Требуются username и password")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), loginTimeout)
	defer cancel()

	ident, err := h.svc.Login(ctx, req.Username, req.Password)
	if err != nil {
		if coreclient.IsAuthExpired(err) {
			apierrors.Unauthorized(w, "Неверные учётные данные")
			return
		}
		writeCoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		State:        h.svc.SessionState(),
		ExpiringSoon: h.svc.SessionExpiringSoon(),
		Identity:     ident,
	})
}

// Logout — POST /api/v1/session/logout.
// Завершает сессию: закрывает канал, очищает очередь и учётные данные.
func (h *APIHandler) Logout(w http.ResponseWriter, _ *http.Request) {
	h.svc.Logout()
	w.WriteHeader(http.StatusNoContent)
}

// GetSession — GET /api/v1/session.
func (h *APIHandler) GetSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, sessionResponse{
		State:        h.svc.SessionState(),
		ExpiringSoon: h.svc.SessionExpiringSoon(),
		Identity:     h.svc.Identity(),
	})
}

// loginTimeout — верхняя граница на вход и первый snapshot.
const loginTimeout = 30 * time.Second
