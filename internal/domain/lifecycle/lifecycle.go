// Пакет lifecycle — матрица переходов статусов записи QR-кода.
//
// Жизненный цикл:
//   - (нет записи) → pending — резервирование (TryReserve)
//   - pending → ready | failed — завершение генерации владельцем
//   - pending → pending — перехват зависшей резервации (reclaim)
//   - failed → pending — явный повтор генерации (retry)
//   - ready — конечный статус, переходы запрещены
//
// Те же правила закодированы в WHERE-условиях SQL репозитория;
// пакет используется сервисом и тестами как единый источник истины.
package lifecycle

import (
	"fmt"

	"github.com/bigkaa/goartstore/qr-module/internal/domain/model"
)

// Action — действие, вызывающее переход статуса.
type Action string

const (
	ActionReserve  Action = "reserve"
	ActionComplete Action = "complete"
	ActionFail     Action = "fail"
	ActionReclaim  Action = "reclaim"
	ActionRetry    Action = "retry"
)

// Коды ошибок переходов.
const (
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeUnknownStatus     = "UNKNOWN_STATUS"
)

// transition — пара (исходный статус, действие).
type transition struct {
	from   model.RecordStatus
	action Action
}

// validTransitions — матрица допустимых переходов.
// Ключ — исходный статус и действие, значение — целевой статус.
// Пустой исходный статус означает отсутствие записи.
var validTransitions = map[transition]model.RecordStatus{
	{from: "", action: ActionReserve}:                   model.StatusPending,
	{from: model.StatusPending, action: ActionComplete}: model.StatusReady,
	{from: model.StatusPending, action: ActionFail}:     model.StatusFailed,
	{from: model.StatusPending, action: ActionReclaim}:  model.StatusPending,
	{from: model.StatusFailed, action: ActionRetry}:     model.StatusPending,
}

// TransitionError — ошибка недопустимого перехода.
type TransitionError struct {
	Code    string // Машиночитаемый код (INVALID_TRANSITION, UNKNOWN_STATUS)
	Message string // Человекочитаемое описание
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Next возвращает целевой статус для действия над записью в статусе from.
// Возвращает *TransitionError, если переход недопустим.
func Next(from model.RecordStatus, action Action) (model.RecordStatus, error) {
	if from != "" && !from.IsValid() {
		return "", &TransitionError{
			Code:    CodeUnknownStatus,
			Message: fmt.Sprintf("неизвестный статус %q", from),
		}
	}

	to, ok := validTransitions[transition{from: from, action: action}]
	if !ok {
		return "", &TransitionError{
			Code:    CodeInvalidTransition,
			Message: fmt.Sprintf("действие %s недопустимо в статусе %q", action, from),
		}
	}
	return to, nil
}

// Can проверяет, допустимо ли действие в статусе from.
func Can(from model.RecordStatus, action Action) bool {
	_, err := Next(from, action)
	return err == nil
}
