// errors.go — таксономия ошибок сервиса генерации.
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput — пустое содержимое, превышение длины или некорректные параметры.
	ErrInvalidInput = errors.New("некорректные входные данные")
	// ErrEncoding — содержимое не может быть закодировано с заданными параметрами.
	ErrEncoding = errors.New("ошибка кодирования QR-кода")
	// ErrStorage — хранилище изображений недоступно или объект повреждён.
	ErrStorage = errors.New("хранилище изображений недоступно")
	// ErrPersistence — ошибка базы данных.
	ErrPersistence = errors.New("ошибка хранилища записей")
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("QR-код не найден")
	// ErrGenerationInProgress — генерация выполняется другим воркером дольше допустимого ожидания.
	ErrGenerationInProgress = errors.New("генерация QR-кода ещё выполняется")
	// ErrGenerationFailed — генерация завершилась ошибкой (запись в статусе failed).
	ErrGenerationFailed = errors.New("генерация QR-кода завершилась ошибкой")
)

// GenerationFailedError — ошибка записи в статусе failed с сохранённой причиной.
// errors.Is(err, ErrGenerationFailed) == true.
type GenerationFailedError struct {
	Fingerprint string
	Detail      string
}

func (e *GenerationFailedError) Error() string {
	return fmt.Sprintf("%s: %s (fingerprint %s)", ErrGenerationFailed.Error(), e.Detail, e.Fingerprint)
}

// Unwrap позволяет сопоставлять ошибку с ErrGenerationFailed.
func (e *GenerationFailedError) Unwrap() error {
	return ErrGenerationFailed
}
