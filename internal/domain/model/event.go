// event.go — события канала уведомлений Core API (/ws/notificaciones).
package model

// Типы событий канала уведомлений.
const (
	// EventNewFile — конвейер зарегистрировал новый файл.
	EventNewFile = "NUEVO_ARCHIVO"
	// EventStateChange — файл покинул очередь ожидания (терминальный переход).
	EventStateChange = "CAMBIO_ESTADO"
)

// Event — одно сообщение канала уведомлений.
// Для NUEVO_ARCHIVO поле File содержит полный DTO файла,
// для CAMBIO_ESTADO — как минимум id и estado.
type Event struct {
	// Type — тип события (NUEVO_ARCHIVO, CAMBIO_ESTADO)
	Type string `json:"tipo"`
	// File — файл, к которому относится событие
	File PendingFile `json:"archivo"`
}

// Valid сообщает, пригодно ли событие для применения к очереди:
// известный тип и непустой идентификатор файла.
func (e *Event) Valid() bool {
	if e.File.ID == "" {
		return false
	}
	return e.Type == EventNewFile || e.Type == EventStateChange
}
