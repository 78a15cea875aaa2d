// qrcodes.go — обработчики /api/v1/qr-codes.
// POST /api/v1/qr-codes — получить или сгенерировать QR-код (PNG)
// GET /api/v1/qr-codes/{fingerprint} — метаданные записи
// GET /api/v1/qr-codes/{fingerprint}/image — изображение готовой записи
// POST /api/v1/qr-codes/{fingerprint}/retry — повтор генерации для failed
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	apierrors "github.com/bigkaa/goartstore/qr-module/internal/api/errors"
	"github.com/bigkaa/goartstore/qr-module/internal/api/generated"
	"github.com/bigkaa/goartstore/qr-module/internal/domain/model"
	"github.com/bigkaa/goartstore/qr-module/internal/service"
)

// Заголовки ответа с изображением.
const (
	headerFingerprint = "X-QR-Fingerprint"
	headerStatus      = "X-QR-Status"
	headerCreated     = "X-QR-Created"
	headerChecksum    = "X-QR-Checksum"
)

// maxRequestBody — ограничение тела запроса генерации.
const maxRequestBody = 64 << 10

// handleGenerate — реализация POST /api/v1/qr-codes.
func (h *APIHandler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generated.GenerateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		apierrors.ValidationError(w, validationMessage(err))
		return
	}

	result, err := h.qr.GetOrCreate(r.Context(), req.Content, optionsFromRequest(req.Options))
	if err != nil {
		h.writeServiceError(w, err, "")
		return
	}

	writeImage(w, result)
}

// handleGetRecord — реализация GET /api/v1/qr-codes/{fingerprint}.
func (h *APIHandler) handleGetRecord(w http.ResponseWriter, r *http.Request, fp string) {
	rec, err := h.qr.Lookup(r.Context(), fp)
	if err != nil {
		h.writeServiceError(w, err, fp)
		return
	}
	writeJSON(w, http.StatusOK, recordToAPI(rec))
}

// handleGetImage — реализация GET /api/v1/qr-codes/{fingerprint}/image.
// Не генерирует и не ждёт: pending отдаётся как 202.
func (h *APIHandler) handleGetImage(w http.ResponseWriter, r *http.Request, fp string) {
	result, err := h.qr.Image(r.Context(), fp)
	if err != nil {
		h.writeServiceError(w, err, fp)
		return
	}
	writeImage(w, result)
}

// handleRetry — реализация POST /api/v1/qr-codes/{fingerprint}/retry.
func (h *APIHandler) handleRetry(w http.ResponseWriter, r *http.Request, fp string) {
	result, err := h.qr.Retry(r.Context(), fp)
	if err != nil {
		h.writeServiceError(w, err, fp)
		return
	}
	writeImage(w, result)
}

// writeImage записывает изображение Ready-записи с заголовками X-QR-*.
func writeImage(w http.ResponseWriter, result *service.Result) {
	rec := result.Record
	img := result.Image

	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set(headerFingerprint, rec.Fingerprint)
	w.Header().Set(headerStatus, string(rec.Status))
	w.Header().Set(headerCreated, strconv.FormatBool(result.Created))
	if rec.Checksum != nil {
		w.Header().Set(headerChecksum, *rec.Checksum)
		w.Header().Set("ETag", `"`+*rec.Checksum+`"`)
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Data)
}

// writeServiceError преобразует ошибку сервиса в HTTP-ответ.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error, fp string) {
	var failed *service.GenerationFailedError

	switch {
	case errors.Is(err, service.ErrInvalidInput):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "QR-код не найден")
	case errors.As(err, &failed):
		apierrors.GenerationFailed(w, "Генерация завершилась ошибкой: "+failed.Detail)
	case errors.Is(err, service.ErrEncoding):
		apierrors.EncodingError(w, err.Error())
	case errors.Is(err, service.ErrGenerationInProgress):
		if fp != "" {
			w.Header().Set(headerFingerprint, fp)
		}
		apierrors.GenerationInProgress(w, h.retryAfter, "Генерация QR-кода ещё выполняется, повторите запрос позже")
	case errors.Is(err, service.ErrStorage):
		h.logger.Error("Хранилище изображений недоступно",
			slog.String("fingerprint", fp),
			slog.String("error", err.Error()),
		)
		apierrors.StorageUnavailable(w, "Хранилище изображений недоступно")
	case errors.Is(err, service.ErrPersistence):
		h.logger.Error("База данных недоступна",
			slog.String("fingerprint", fp),
			slog.String("error", err.Error()),
		)
		apierrors.DatabaseUnavailable(w, "База данных недоступна")
	default:
		h.logger.Error("Внутренняя ошибка обработки QR-кода",
			slog.String("fingerprint", fp),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка")
	}
}

// optionsFromRequest преобразует RenderOptions запроса в доменные Options.
// Незаданные поля остаются нулевыми и заполняются Normalize, border по умолчанию true.
func optionsFromRequest(in *generated.RenderOptions) model.Options {
	opts := model.Options{Border: true}
	if in == nil {
		return opts
	}
	if in.Size != nil {
		opts.Size = *in.Size
	}
	if in.Recovery != nil {
		opts.Recovery = model.RecoveryLevel(*in.Recovery)
	}
	if in.Border != nil {
		opts.Border = *in.Border
	}
	if in.Foreground != nil {
		opts.Foreground = *in.Foreground
	}
	if in.Background != nil {
		opts.Background = *in.Background
	}
	if in.Format != nil {
		opts.Format = string(*in.Format)
	}
	return opts
}

// recordToAPI конвертирует доменную запись в API-тип QRRecord.
func recordToAPI(rec *model.Record) generated.QRRecord {
	size := rec.Options.Size
	recovery := generated.RenderOptionsRecovery(rec.Options.Recovery)
	border := rec.Options.Border
	foreground := rec.Options.Foreground
	background := rec.Options.Background
	format := generated.RenderOptionsFormat(rec.Options.Format)

	return generated.QRRecord{
		Fingerprint: rec.Fingerprint,
		Status:      generated.QRRecordStatus(rec.Status),
		Options: generated.RenderOptions{
			Size:       &size,
			Recovery:   &recovery,
			Border:     &border,
			Foreground: &foreground,
			Background: &background,
			Format:     &format,
		},
		StoragePath: rec.StoragePath,
		ContentType: rec.ContentType,
		Size:        rec.Size,
		Checksum:    rec.Checksum,
		ErrorDetail: rec.ErrorDetail,
		Attempts:    rec.Attempts,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}

// validationMessage формирует читаемое сообщение из ошибок validator.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Некорректный запрос: " + err.Error()
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+": обязательное поле")
		case "min", "max":
			parts = append(parts, fmt.Sprintf("%s: значение %v вне допустимого диапазона (%s=%s)", field, fe.Value(), fe.Tag(), fe.Param()))
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s: значение %v не входит в [%s]", field, fe.Value(), fe.Param()))
		case "hexcolor":
			parts = append(parts, fmt.Sprintf("%s: некорректный цвет %v, ожидается #rrggbb", field, fe.Value()))
		default:
			parts = append(parts, fmt.Sprintf("%s: не прошло проверку %s", field, fe.Tag()))
		}
	}
	return "Некорректный запрос: " + strings.Join(parts, "; ")
}
