// handler.go — основной обработчик API, реализующий generated.ServerInterface.
// Объединяет health и обработчики QR-кодов.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/bigkaa/goartstore/qr-module/internal/api/generated"
	"github.com/bigkaa/goartstore/qr-module/internal/domain/model"
	"github.com/bigkaa/goartstore/qr-module/internal/service"
)

// QRService — операции сервиса генерации, используемые обработчиками.
type QRService interface {
	GetOrCreate(ctx context.Context, content string, opts model.Options) (*service.Result, error)
	Retry(ctx context.Context, fp string) (*service.Result, error)
	Lookup(ctx context.Context, fp string) (*model.Record, error)
	Image(ctx context.Context, fp string) (*service.Result, error)
}

// APIHandler — основной обработчик API QR Module.
// Реализует generated.ServerInterface, делегируя запросы в сервисный слой.
type APIHandler struct {
	qr         QRService
	health     *HealthHandler
	validate   *validator.Validate
	retryAfter int
	logger     *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
// retryAfter — значение заголовка Retry-After для ответа 202 (округляется вверх до секунды).
func NewAPIHandler(
	qr QRService,
	health *HealthHandler,
	retryAfter time.Duration,
	logger *slog.Logger,
) *APIHandler {
	seconds := int((retryAfter + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return &APIHandler{
		qr:         qr,
		health:     health,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		retryAfter: seconds,
		logger:     logger.With(slog.String("component", "api_handler")),
	}
}

// --- QR-коды ---

// GenerateQRCode — POST /api/v1/qr-codes.
func (h *APIHandler) GenerateQRCode(w http.ResponseWriter, r *http.Request) {
	h.handleGenerate(w, r)
}

// GetQRCode — GET /api/v1/qr-codes/{fingerprint}.
func (h *APIHandler) GetQRCode(w http.ResponseWriter, r *http.Request, fp generated.Fingerprint) {
	h.handleGetRecord(w, r, fp)
}

// GetQRCodeImage — GET /api/v1/qr-codes/{fingerprint}/image.
func (h *APIHandler) GetQRCodeImage(w http.ResponseWriter, r *http.Request, fp generated.Fingerprint) {
	h.handleGetImage(w, r, fp)
}

// RetryQRCode — POST /api/v1/qr-codes/{fingerprint}/retry.
func (h *APIHandler) RetryQRCode(w http.ResponseWriter, r *http.Request, fp generated.Fingerprint) {
	h.handleRetry(w, r, fp)
}

// GetOpenAPISpec — GET /api/v1/openapi.yaml.
func (h *APIHandler) GetOpenAPISpec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(generated.RawSpec())
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
