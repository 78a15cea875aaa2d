// Пакет repository — слой доступа к данным PostgreSQL для QR Module.
// Таблица qr_records — единственный источник истины о существовании
// и статусе записи. Все запросы — чистый SQL через pgx, без ORM.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrInvalidTransition — запись не в том статусе, из которого допустим переход.
	ErrInvalidTransition = errors.New("недопустимый переход статуса")
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx, что позволяет
// использовать репозитории как внутри, так и вне транзакций.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// isCheckViolation проверяет нарушение CHECK-ограничения (инварианты статусов в схеме).
func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.CheckViolation
	}
	return false
}

// IsTransient проверяет, является ли ошибка временной: потеря соединения,
// конфликт сериализации, deadlock, отмена запроса по таймауту.
// Такие ошибки клиент может повторить.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgerrcode.IsConnectionException(pgErr.Code) ||
			pgErr.Code == pgerrcode.SerializationFailure ||
			pgErr.Code == pgerrcode.DeadlockDetected ||
			pgErr.Code == pgerrcode.QueryCanceled ||
			pgerrcode.IsInsufficientResources(pgErr.Code)
	}
	return pgconn.SafeToRetry(err)
}
