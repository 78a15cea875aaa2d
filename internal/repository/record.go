package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/qr-module/internal/domain/model"
)

// recordColumns — список столбцов таблицы qr_records для SELECT и RETURNING.
const recordColumns = `fingerprint, status, content, options, storage_path, content_type,
	size, checksum, error_detail, attempts, created_at, updated_at`

// ReadyParams — данные опубликованного изображения для перехода в Ready.
type ReadyParams struct {
	// StoragePath — относительный путь объекта в QR_CODE_DIR
	StoragePath string
	// ContentType — MIME-тип изображения
	ContentType string
	// Size — размер изображения в байтах
	Size int64
	// Checksum — SHA-256 содержимого
	Checksum string
}

// RecordRepository — интерфейс доступа к таблице qr_records.
type RecordRepository interface {
	// TryReserve вставляет Pending-запись, если записи с таким fingerprint нет.
	// Единственный INSERT с проверкой ограничения уникальности: из конкурентных
	// вызовов ровно один получает created = true.
	TryReserve(ctx context.Context, rec *model.Record) (created bool, err error)
	// MarkReady переводит Pending → Ready.
	MarkReady(ctx context.Context, fp string, params ReadyParams) (*model.Record, error)
	// MarkFailed переводит Pending → Failed.
	MarkFailed(ctx context.Context, fp, detail string) (*model.Record, error)
	// Get возвращает запись по fingerprint или ErrNotFound.
	Get(ctx context.Context, fp string) (*model.Record, error)
	// ReclaimStale перехватывает Pending-запись, не обновлявшуюся дольше olderThan.
	// Возвращает (запись, true) победителю, (nil, false) остальным.
	ReclaimStale(ctx context.Context, fp string, olderThan time.Duration) (*model.Record, bool, error)
	// ResetFailed переводит Failed → Pending для явного повтора генерации.
	ResetFailed(ctx context.Context, fp string) (*model.Record, error)
	// ListStalePending возвращает Pending-записи старше olderThan.
	ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]*model.Record, error)
	// ListReady возвращает Ready-записи с fingerprint > afterFP (keyset-пагинация).
	ListReady(ctx context.Context, afterFP string, limit int) ([]*model.Record, error)
	// CountByStatus возвращает количество записей по статусам.
	CountByStatus(ctx context.Context) (map[model.RecordStatus]int, error)
}

// recordRepo — реализация RecordRepository через pgx.
type recordRepo struct {
	db DBTX
}

// NewRecordRepository создаёт репозиторий записей QR-кодов.
func NewRecordRepository(db DBTX) RecordRepository {
	return &recordRepo{db: db}
}

// scanRecord сканирует строку с набором столбцов recordColumns.
func scanRecord(row pgx.Row) (*model.Record, error) {
	r := &model.Record{}
	err := row.Scan(
		&r.Fingerprint, &r.Status, &r.Content, &r.Options, &r.StoragePath, &r.ContentType,
		&r.Size, &r.Checksum, &r.ErrorDetail, &r.Attempts, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// TryReserve — INSERT ... ON CONFLICT DO NOTHING RETURNING.
// Отсутствие возвращённой строки означает, что запись уже существует.
func (r *recordRepo) TryReserve(ctx context.Context, rec *model.Record) (bool, error) {
	query := fmt.Sprintf(`
		INSERT INTO qr_records (fingerprint, status, content, options)
		VALUES ($1, 'pending', $2, $3)
		ON CONFLICT (fingerprint) DO NOTHING
		RETURNING %s`, recordColumns)

	got, err := scanRecord(r.db.QueryRow(ctx, query, rec.Fingerprint, rec.Content, rec.Options))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка резервирования записи: %w", err)
	}
	*rec = *got
	return true, nil
}

func (r *recordRepo) MarkReady(ctx context.Context, fp string, params ReadyParams) (*model.Record, error) {
	query := fmt.Sprintf(`
		UPDATE qr_records
		SET status = 'ready', storage_path = $2, content_type = $3, size = $4,
			checksum = $5, error_detail = NULL, updated_at = now()
		WHERE fingerprint = $1 AND status = 'pending'
		RETURNING %s`, recordColumns)

	rec, err := scanRecord(r.db.QueryRow(ctx, query,
		fp, params.StoragePath, params.ContentType, params.Size, params.Checksum,
	))
	if err != nil {
		return nil, r.transitionError(ctx, fp, err, "ошибка перевода записи в ready")
	}
	return rec, nil
}

func (r *recordRepo) MarkFailed(ctx context.Context, fp, detail string) (*model.Record, error) {
	query := fmt.Sprintf(`
		UPDATE qr_records
		SET status = 'failed', error_detail = $2, updated_at = now()
		WHERE fingerprint = $1 AND status = 'pending'
		RETURNING %s`, recordColumns)

	rec, err := scanRecord(r.db.QueryRow(ctx, query, fp, detail))
	if err != nil {
		return nil, r.transitionError(ctx, fp, err, "ошибка перевода записи в failed")
	}
	return rec, nil
}

// Get возвращает запись по fingerprint или ErrNotFound.
func (r *recordRepo) Get(ctx context.Context, fp string) (*model.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM qr_records WHERE fingerprint = $1`, recordColumns)

	rec, err := scanRecord(r.db.QueryRow(ctx, query, fp))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи: %w", err)
	}
	return rec, nil
}

// ReclaimStale сравнивает updated_at с now() базы данных:
// часы воркеров не участвуют в решении о зависании.
func (r *recordRepo) ReclaimStale(ctx context.Context, fp string, olderThan time.Duration) (*model.Record, bool, error) {
	query := fmt.Sprintf(`
		UPDATE qr_records
		SET attempts = attempts + 1, updated_at = now()
		WHERE fingerprint = $1 AND status = 'pending'
			AND updated_at < now() - make_interval(secs => $2)
		RETURNING %s`, recordColumns)

	rec, err := scanRecord(r.db.QueryRow(ctx, query, fp, olderThan.Seconds()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("ошибка перехвата зависшей записи: %w", err)
	}
	return rec, true, nil
}

func (r *recordRepo) ResetFailed(ctx context.Context, fp string) (*model.Record, error) {
	query := fmt.Sprintf(`
		UPDATE qr_records
		SET status = 'pending', error_detail = NULL, attempts = attempts + 1, updated_at = now()
		WHERE fingerprint = $1 AND status = 'failed'
		RETURNING %s`, recordColumns)

	rec, err := scanRecord(r.db.QueryRow(ctx, query, fp))
	if err != nil {
		return nil, r.transitionError(ctx, fp, err, "ошибка сброса записи в pending")
	}
	return rec, nil
}

func (r *recordRepo) ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]*model.Record, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM qr_records
		WHERE status = 'pending' AND updated_at < now() - make_interval(secs => $1)
		ORDER BY updated_at
		LIMIT $2`, recordColumns)

	return r.queryRecords(ctx, query, olderThan.Seconds(), limit)
}

func (r *recordRepo) ListReady(ctx context.Context, afterFP string, limit int) ([]*model.Record, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM qr_records
		WHERE status = 'ready' AND fingerprint > $1
		ORDER BY fingerprint
		LIMIT $2`, recordColumns)

	return r.queryRecords(ctx, query, afterFP, limit)
}

func (r *recordRepo) CountByStatus(ctx context.Context) (map[model.RecordStatus]int, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM qr_records GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчёта записей: %w", err)
	}
	defer rows.Close()

	result := map[model.RecordStatus]int{
		model.StatusPending: 0,
		model.StatusReady:   0,
		model.StatusFailed:  0,
	}
	for rows.Next() {
		var status model.RecordStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("ошибка сканирования счётчика: %w", err)
		}
		result[status] = count
	}
	return result, rows.Err()
}

// queryRecords выполняет SELECT и сканирует все строки.
func (r *recordRepo) queryRecords(ctx context.Context, query string, args ...any) ([]*model.Record, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка записей: %w", err)
	}
	defer rows.Close()

	var result []*model.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации результатов: %w", err)
	}
	return result, nil
}

// transitionError классифицирует ошибку условного UPDATE.
// Нет строки — запись либо отсутствует (ErrNotFound), либо в другом статусе
// (ErrInvalidTransition). Различаем повторным чтением.
func (r *recordRepo) transitionError(ctx context.Context, fp string, err error, msg string) error {
	if isCheckViolation(err) {
		return fmt.Errorf("%w: %s: %v", ErrInvalidTransition, msg, err)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", msg, err)
	}

	current, getErr := r.Get(ctx, fp)
	if getErr != nil {
		return getErr
	}
	return fmt.Errorf("%w: запись %s в статусе %s", ErrInvalidTransition, fp, current.Status)
}
