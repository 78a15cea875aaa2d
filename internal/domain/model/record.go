// Пакет model — доменные модели QR Module.
// Record — маппинг таблицы qr_records, Options — параметры рендеринга,
// Image — закодированное изображение с тегом формата.
package model

import "time"

// RecordStatus — статус записи QR-кода.
type RecordStatus string

const (
	// StatusPending — генерация зарезервирована и выполняется владельцем
	StatusPending RecordStatus = "pending"
	// StatusReady — изображение записано в хранилище и доступно для чтения
	StatusReady RecordStatus = "ready"
	// StatusFailed — генерация завершилась ошибкой (см. ErrorDetail)
	StatusFailed RecordStatus = "failed"
)

// IsValid проверяет, является ли статус одним из известных.
func (s RecordStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusReady, StatusFailed:
		return true
	}
	return false
}

// IsTerminal возвращает true для Ready и Failed.
func (s RecordStatus) IsTerminal() bool {
	return s == StatusReady || s == StatusFailed
}

// Record — запись о результате генерации QR-кода.
// Первичный ключ — Fingerprint. Запись никогда не удаляется штатными операциями.
type Record struct {
	// Fingerprint — SHA-256 от (content, options), 64 hex-символа
	Fingerprint string
	// Status — pending, ready, failed
	Status RecordStatus
	// Content — исходное содержимое QR-кода (для повторной генерации)
	Content string
	// Options — нормализованные параметры рендеринга
	Options Options
	// StoragePath — относительный путь изображения в QR_CODE_DIR (при Ready)
	StoragePath *string
	// ContentType — MIME-тип изображения (при Ready)
	ContentType *string
	// Size — размер изображения в байтах (при Ready)
	Size *int64
	// Checksum — SHA-256 содержимого изображения (при Ready)
	Checksum *string
	// ErrorDetail — описание ошибки (при Failed)
	ErrorDetail *string
	// Attempts — количество попыток генерации (reclaim и retry увеличивают)
	Attempts int
	// CreatedAt — время создания записи, не изменяется
	CreatedAt time.Time
	// UpdatedAt — время последнего перехода статуса
	UpdatedAt time.Time
}

// IsStale проверяет, висит ли Pending-запись дольше timeout.
func (r *Record) IsStale(now time.Time, timeout time.Duration) bool {
	return r.Status == StatusPending && now.Sub(r.UpdatedAt) > timeout
}

// Image — закодированное изображение QR-кода.
type Image struct {
	// Data — байты изображения
	Data []byte
	// Format — тег формата (расширение файла без точки), например "png"
	Format string
	// ContentType — MIME-тип, например "image/png"
	ContentType string
}
