// Пакет model — доменные типы Review Gateway: файлы, ожидающие решения
// оператора, и события канала уведомлений Core API.
package model

import (
	"strings"
	"time"
)

// Типы файлов, принимаемые конвейером AetherCore.
const (
	KindTXT = "TXT"
	KindXML = "XML"
)

// Статусы файла в терминах Core API.
const (
	// StatusPending — файл ожидает решения оператора.
	StatusPending = "PENDIENTE"
	// StatusApproved — файл одобрен и передан в обработку.
	StatusApproved = "APROBADO"
	// StatusRejected — файл отклонён оператором.
	StatusRejected = "RECHAZADO"
)

// PendingFile — файл, ожидающий решения оператора.
// JSON-имена полей зафиксированы wire-контрактом Core API (испанские).
type PendingFile struct {
	// ID — уникальный идентификатор файла, стабильный между
	// snapshot и событиями канала уведомлений.
	ID string `json:"id"`
	// Filename — оригинальное имя файла
	Filename string `json:"nombre_archivo"`
	// Kind — тип файла (TXT, XML)
	Kind string `json:"tipo"`
	// ReceivedAt — время получения файла конвейером
	ReceivedAt Timestamp `json:"fecha_recepcion"`
	// Status — текущий статус (PENDIENTE, APROBADO, RECHAZADO)
	Status string `json:"estado"`
	// RecordCount — количество записей в файле (0 — файл пуст)
	RecordCount int `json:"num_registros"`
	// SizeBytes — размер файла в байтах (опционально)
	SizeBytes *int64 `json:"tamano_bytes,omitempty"`
	// Errors — список ошибок валидации (может быть пустым)
	Errors []string `json:"errores,omitempty"`
	// ExcelPath — путь к сгенерированному Excel-отчёту (опционально,
	// переносится прозрачно, шлюз его не интерпретирует)
	ExcelPath *string `json:"excel_path,omitempty"`
	// InternalPath — внутренний путь файла в конвейере (опционально)
	InternalPath *string `json:"ruta_interna,omitempty"`
}

// Approvable сообщает, может ли оператор одобрить файл.
// Файл без записей или с критической ошибкой валидации одобрить нельзя —
// только отклонить.
func (f *PendingFile) Approvable() bool {
	if f.RecordCount <= 0 {
		return false
	}
	return !HasCriticalError(f.Errors)
}

// criticalKeywords — подстроки сообщений валидации конвейера,
// классифицируемые как критические (после normalizeError).
// Покрывают случаи: пустой файл, повреждённый файл, отсутствующее имя,
// некорректное имя.
var criticalKeywords = []string{
	"vacio",
	"corrupt",
	"sin nombre",
	"nombre invalido",
	"archivo invalido",
}

// HasCriticalError сообщает, содержит ли список ошибок валидации
// хотя бы одну критическую. Сравнение без учёта регистра и диакритики.
func HasCriticalError(errs []string) bool {
	for _, e := range errs {
		n := normalizeError(e)
		for _, kw := range criticalKeywords {
			if strings.Contains(n, kw) {
				return true
			}
		}
	}
	return false
}

// errorNormalizer убирает диакритику испанских сообщений валидации.
var errorNormalizer = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u",
	"Á", "a", "É", "e", "Í", "i", "Ó", "o", "Ú", "u", "Ü", "u",
)

func normalizeError(s string) string {
	return errorNormalizer.Replace(strings.ToLower(s))
}

// Timestamp — время в JSON-представлении Core API.
// Core API сериализует datetime как ISO 8601, иногда без таймзоны
// (naive datetime из Python), поэтому стандартного RFC 3339 недостаточно.
type Timestamp struct {
	time.Time
}

// timestampLayouts — допустимые форматы времени Core API.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// UnmarshalJSON разбирает время в одном из форматов Core API.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}

	var lastErr error
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// MarshalJSON сериализует время в RFC 3339.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.Time.IsZero() {
		return []byte(`null`), nil
	}
	return []byte(`"` + t.Time.Format(time.RFC3339Nano) + `"`), nil
}
