// corehealth.go — обработчик /api/v1/core/health.
// Проксирует состояние конвейера AetherCore (БД и каталоги приёма)
// презентационному слою. Не путать с /health/* самого шлюза.
package handlers

import (
	"net/http"
)

// GetCoreHealth — GET /api/v1/core/health.
func (h *APIHandler) GetCoreHealth(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.CoreHealth(r.Context())
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
