// approval.go — обработчики /api/v1/approval endpoints.
// GET  /api/v1/approval — текущий шаг координатора.
// POST /api/v1/approval/approve — открыть подтверждение одобрения.
// POST /api/v1/approval/reject — открыть подтверждение отклонения.
// POST /api/v1/approval/confirm — подтвердить действие с комментарием.
// POST /api/v1/approval/cancel — закрыть шаг подтверждения.
package handlers

import (
	"errors"
	"net/http"

	apierrors "github.com/bigkaa/aethercore/review-gateway/internal/api/errors"
	"github.com/bigkaa/aethercore/review-gateway/internal/approval"
	"github.com/bigkaa/aethercore/review-gateway/internal/coreclient"
	"github.com/bigkaa/aethercore/review-gateway/internal/service"
)

// actionRequest — тело запроса открытия действия.
type actionRequest struct {
	FileID string `json:"archivo_id"`
}

// confirmRequest — тело запроса подтверждения.
type confirmRequest struct {
	Comment string `json:"comentarios"`
}

// approvalResponse — шаг координатора для презентационного слоя.
type approvalResponse struct {
	Step   approval.Step    `json:"paso"`
	Action *approval.Action `json:"accion,omitempty"`
}

// GetApproval — GET /api/v1/approval.
func (h *APIHandler) GetApproval(w http.ResponseWriter, _ *http.Request) {
	step, action := h.svc.ApprovalStep()
	writeJSON(w, http.StatusOK, approvalResponse{Step: step, Action: action})
}

// StartApproval — POST /api/v1/approval/approve.
func (h *APIHandler) StartApproval(w http.ResponseWriter, r *http.Request) {
	h.startAction(w, r, h.svc.StartApproval)
}

// StartRejection — POST /api/v1/approval/reject.
func (h *APIHandler) StartRejection(w http.ResponseWriter, r *http.Request) {
	h.startAction(w, r, h.svc.StartRejection)
}

func (h *APIHandler) startAction(w http.ResponseWriter, r *http.Request, start func(fileID string) error) {
	var req actionRequest
	if err := readJSON(r, &req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return
	}
	if req.FileID == "" {
		apierrors.ValidationError(w, "Требуется archivo_id")
		return
	}

	if err := start(req.FileID); err != nil {
		switch {
		case errors.Is(err, service.ErrFileNotFound):
			apierrors.NotFound(w, "Файл не найден в очереди")
		case errors.Is(err, approval.ErrNotApprovable):
			apierrors.Conflict(w, "Файл нельзя одобрить — только отклонить")
		case errors.Is(err, approval.ErrSubmitting):
			apierrors.Conflict(w, "Предыдущее действие ещё отправляется")
		default:
			apierrors.InternalError(w, err.Error())
		}
		return
	}

	h.GetApproval(w, r)
}

// ConfirmApproval — POST /api/v1/approval/confirm.
// Исход действия отражается в возвращаемом шаге координатора:
// валидация комментария и ошибки отправки не являются ошибками HTTP,
// презентационный слой читает их из accion.
func (h *APIHandler) ConfirmApproval(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := readJSON(r, &req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return
	}

	err := h.svc.Confirm(r.Context(), req.Comment)
	switch {
	case err == nil:
		h.GetApproval(w, r)
	case errors.Is(err, approval.ErrCommentRequired):
		// Шаг остался Confirming, сообщение валидации в action.
		h.GetApproval(w, r)
	case errors.Is(err, approval.ErrNoAction):
		apierrors.Conflict(w, "Нет активного шага подтверждения")
	case errors.Is(err, approval.ErrSubmitting):
		apierrors.Conflict(w, "Команда уже отправляется")
	case coreclient.IsAuthExpired(err):
		apierrors.Unauthorized(w, "Сессия Core API недействительна")
	default:
		// Транзиентная ошибка отправки: шаг Failed, сообщение в action.
		h.GetApproval(w, r)
	}
}

// CancelApproval — POST /api/v1/approval/cancel.
func (h *APIHandler) CancelApproval(w http.ResponseWriter, r *http.Request) {
	h.svc.CancelAction()
	h.GetApproval(w, r)
}
