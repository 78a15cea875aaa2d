// Пакет errors — конструкторы стандартных ошибок в формате Artstore.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
package errors //nolint:revive // конфликт имени со stdlib, как в остальных модулях Artstore

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Коды ошибок, определённые в OpenAPI контракте.
const (
	CodeValidationError      = "VALIDATION_ERROR"
	CodeNotFound             = "NOT_FOUND"
	CodeEncodingError        = "ENCODING_ERROR"
	CodeGenerationFailed     = "GENERATION_FAILED"
	CodeGenerationInProgress = "GENERATION_IN_PROGRESS"
	CodeStorageUnavailable   = "STORAGE_UNAVAILABLE"
	CodeDatabaseUnavailable  = "DATABASE_UNAVAILABLE"
	CodeInternalError        = "INTERNAL_ERROR"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате Artstore.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 запись не найдена.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// EncodingError — 422 содержимое не кодируется с заданными параметрами.
func EncodingError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnprocessableEntity, CodeEncodingError, message)
}

// GenerationFailed — 422 запись в статусе failed.
func GenerationFailed(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnprocessableEntity, CodeGenerationFailed, message)
}

// GenerationInProgress — 202 генерация выполняется другим воркером.
// retryAfter — рекомендуемая пауза перед повтором в секундах.
func GenerationInProgress(w http.ResponseWriter, retryAfter int, message string) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	WriteError(w, http.StatusAccepted, CodeGenerationInProgress, message)
}

// StorageUnavailable — 503 файловое хранилище недоступно.
func StorageUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, CodeStorageUnavailable, message)
}

// DatabaseUnavailable — 503 база данных недоступна.
func DatabaseUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, CodeDatabaseUnavailable, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
