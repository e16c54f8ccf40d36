// models.go — wire-типы Core API (AetherCore).
package coreclient

import "github.com/bigkaa/aethercore/review-gateway/internal/domain/model"

// Identity — учётная запись оператора из Core API.
type Identity struct {
	// Username — логин оператора
	Username string `json:"username"`
	// Email — email оператора
	Email string `json:"email"`
	// FullName — полное имя (поле nombre_completo, только в ответе login)
	FullName string `json:"nombre_completo,omitempty"`
}

// LoginResult — ответ POST /api/auth/login.
type LoginResult struct {
	// AccessToken — JWT bearer-токен сессии
	AccessToken string `json:"access_token"`
	// TokenType — тип токена (bearer)
	TokenType string `json:"token_type"`
	// Usuario — учётная запись оператора
	Usuario Identity `json:"usuario"`
}

// loginRequest — тело POST /api/auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// approvalRequest — тело POST /api/archivos/aprobar.
type approvalRequest struct {
	ArchivoID   string  `json:"archivo_id"`
	Aprobado    bool    `json:"aprobado"`
	Comentarios *string `json:"comentarios,omitempty"`
}

// ComponentHealth — состояние одного компонента конвейера.
type ComponentHealth struct {
	// IsHealthy — компонент работоспособен
	IsHealthy bool `json:"is_healthy"`
	// Componente — имя компонента
	Componente string `json:"componente"`
	// Detalles — детали проверки
	Detalles string `json:"detalles"`
	// Timestamp — время проверки
	Timestamp model.Timestamp `json:"timestamp"`
}

// HealthReport — ответ GET /api/health.
type HealthReport struct {
	// Database — состояние базы данных конвейера
	Database ComponentHealth `json:"database"`
	// Folders — состояние отслеживаемых каталогов (имя → состояние)
	Folders map[string]ComponentHealth `json:"folders"`
	// Timestamp — время формирования отчёта
	Timestamp model.Timestamp `json:"timestamp"`
}

// errorDetail — тело ошибки Core API: {"detail": "..."}.
type errorDetail struct {
	Detail string `json:"detail"`
}
