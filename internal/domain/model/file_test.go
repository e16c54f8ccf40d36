package model

import (
	"encoding/json"
	"testing"
)

// TestPendingFile_Approvable проверяет правило одобряемости:
// файл без записей или с критической ошибкой одобрить нельзя.
func TestPendingFile_Approvable(t *testing.T) {
	tests := []struct {
		name    string
		records int
		errors  []string
		want    bool
	}{
		{"без ошибок и с записями", 10, nil, true},
		{"ноль записей", 0, nil, false},
		{"ноль записей и пустой список ошибок", 0, []string{}, false},
		{"некритическая ошибка", 5, []string{"registro 3: campo fecha fuera de rango"}, true},
		{"файл пуст (с диакритикой)", 5, []string{"El archivo está vacío"}, false},
		{"файл пуст (без диакритики)", 5, []string{"archivo vacio"}, false},
		{"файл повреждён", 5, []string{"Archivo corrupto: cabecera ilegible"}, false},
		{"без имени", 5, []string{"Archivo sin nombre"}, false},
		{"некорректное имя", 5, []string{"Nombre inválido para el tipo TXT"}, false},
		{"регистр не важен", 5, []string{"ARCHIVO CORRUPTO"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := PendingFile{ID: "f-1", RecordCount: tt.records, Errors: tt.errors}
			if got := f.Approvable(); got != tt.want {
				t.Errorf("Approvable() = %v, ожидалось %v", got, tt.want)
			}
		})
	}
}

// TestTimestamp_UnmarshalJSON проверяет разбор времени Core API:
// RFC 3339 и naive datetime из Python.
func TestTimestamp_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		year int
	}{
		{"RFC 3339", `"2026-08-30T15:04:05Z"`, 2026},
		{"RFC 3339 с offset", `"2026-08-30T15:04:05+02:00"`, 2026},
		{"naive datetime", `"2026-08-30T15:04:05"`, 2026},
		{"naive datetime с микросекундами", `"2026-08-30T15:04:05.123456"`, 2026},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			if err := json.Unmarshal([]byte(tt.in), &ts); err != nil {
				t.Fatalf("Unmarshal(%s): %v", tt.in, err)
			}
			if ts.Year() != tt.year {
				t.Errorf("Year() = %d, ожидалось %d", ts.Year(), tt.year)
			}
		})
	}

	var ts Timestamp
	if err := json.Unmarshal([]byte(`"не время"`), &ts); err == nil {
		t.Error("ожидалась ошибка для некорректного значения")
	}
}

// TestEvent_Valid проверяет фильтрацию событий канала.
func TestEvent_Valid(t *testing.T) {
	ok := Event{Type: EventNewFile, File: PendingFile{ID: "f-1"}}
	if !ok.Valid() {
		t.Error("корректное событие NUEVO_ARCHIVO должно проходить валидацию")
	}

	noID := Event{Type: EventStateChange}
	if noID.Valid() {
		t.Error("событие без id не должно проходить валидацию")
	}

	unknown := Event{Type: "ALGO_NUEVO", File: PendingFile{ID: "f-1"}}
	if unknown.Valid() {
		t.Error("событие неизвестного типа не должно проходить валидацию")
	}
}
