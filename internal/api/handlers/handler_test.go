package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/qr-module/internal/api/generated"
	"github.com/bigkaa/goartstore/qr-module/internal/domain/model"
	"github.com/bigkaa/goartstore/qr-module/internal/service"
)

const testFP = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

// fakeQR — управляемая реализация QRService.
type fakeQR struct {
	result   *service.Result
	record   *model.Record
	err      error
	gotOpts  model.Options
	gotText  string
	gotFP    string
	getCalls int
}

func (f *fakeQR) GetOrCreate(_ context.Context, content string, opts model.Options) (*service.Result, error) {
	f.getCalls++
	f.gotText = content
	f.gotOpts = opts
	return f.result, f.err
}

func (f *fakeQR) Retry(_ context.Context, fp string) (*service.Result, error) {
	f.gotFP = fp
	return f.result, f.err
}

func (f *fakeQR) Lookup(_ context.Context, fp string) (*model.Record, error) {
	f.gotFP = fp
	return f.record, f.err
}

func (f *fakeQR) Image(_ context.Context, fp string) (*service.Result, error) {
	f.gotFP = fp
	return f.result, f.err
}

// fakeChecker — ReadinessChecker с фиксированным ответом.
type fakeChecker struct {
	status string
}

func (c fakeChecker) CheckReady() (string, string) {
	return c.status, "тест"
}

func readyResult(created bool) *service.Result {
	checksum := strings.Repeat("a", 64)
	return &service.Result{
		Record: &model.Record{
			Fingerprint: testFP,
			Status:      model.StatusReady,
			Options:     model.DefaultOptions(),
			Checksum:    &checksum,
		},
		Image: &model.Image{
			Data:        []byte("\x89PNG-data"),
			Format:      model.FormatPNG,
			ContentType: "image/png",
		},
		Created: created,
	}
}

func newTestRouter(t *testing.T, qr QRService) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	health := NewHealthHandler(fakeChecker{status: "ok"}, t.TempDir())
	h := NewAPIHandler(qr, health, 1500*time.Millisecond, logger)
	return generated.HandlerFromMux(h, chi.NewRouter())
}

func doRequest(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body generated.Error
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("тело ошибки не JSON: %v", err)
	}
	return body.Error.Code
}

func TestGenerateQRCode_Success(t *testing.T) {
	qr := &fakeQR{result: readyResult(true)}
	router := newTestRouter(t, qr)

	rec := doRequest(router, http.MethodPost, "/api/v1/qr-codes",
		`{"content":"https://example.com","options":{"size":512,"recovery":"h","border":false}}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался 200, получен %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, ожидался image/png", ct)
	}
	if got := rec.Header().Get(headerFingerprint); got != testFP {
		t.Errorf("X-QR-Fingerprint = %q", got)
	}
	if got := rec.Header().Get(headerCreated); got != "true" {
		t.Errorf("X-QR-Created = %q, ожидалось true", got)
	}
	if got := rec.Header().Get(headerStatus); got != "ready" {
		t.Errorf("X-QR-Status = %q, ожидалось ready", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), []byte("\x89PNG-data")) {
		t.Error("тело ответа не совпадает с изображением")
	}

	if qr.gotText != "https://example.com" {
		t.Errorf("content = %q", qr.gotText)
	}
	if qr.gotOpts.Size != 512 || qr.gotOpts.Recovery != "h" || qr.gotOpts.Border {
		t.Errorf("options переданы некорректно: %+v", qr.gotOpts)
	}
}

func TestGenerateQRCode_DefaultBorder(t *testing.T) {
	qr := &fakeQR{result: readyResult(false)}
	router := newTestRouter(t, qr)

	rec := doRequest(router, http.MethodPost, "/api/v1/qr-codes", `{"content":"hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался 200, получен %d", rec.Code)
	}
	if !qr.gotOpts.Border {
		t.Error("без options border должен быть true")
	}
	if qr.gotOpts.Normalize() != model.DefaultOptions() {
		t.Errorf("нормализованные options без полей должны совпадать с DefaultOptions: %+v", qr.gotOpts.Normalize())
	}
	if got := rec.Header().Get(headerCreated); got != "false" {
		t.Errorf("X-QR-Created = %q, ожидалось false", got)
	}
}

func TestGenerateQRCode_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"некорректный JSON", `{"content":`},
		{"пустой content", `{"content":""}`},
		{"нет content", `{"options":{"size":256}}`},
		{"size меньше минимума", `{"content":"x","options":{"size":10}}`},
		{"size больше максимума", `{"content":"x","options":{"size":5000}}`},
		{"неизвестный recovery", `{"content":"x","options":{"recovery":"Z"}}`},
		{"некорректный цвет", `{"content":"x","options":{"foreground":"red"}}`},
		{"неизвестный формат", `{"content":"x","options":{"format":"gif"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qr := &fakeQR{result: readyResult(true)}
			router := newTestRouter(t, qr)

			rec := doRequest(router, http.MethodPost, "/api/v1/qr-codes", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("ожидался 400, получен %d: %s", rec.Code, rec.Body.String())
			}
			if code := decodeErrorCode(t, rec); code != "VALIDATION_ERROR" {
				t.Errorf("code = %q, ожидался VALIDATION_ERROR", code)
			}
			if qr.getCalls != 0 {
				t.Error("сервис не должен вызываться при ошибке валидации")
			}
		})
	}
}

// Содержимое, которое нельзя сохранить в колонку TEXT, отклоняется сервисом
// до резервирования: хранилища не нужны, ответ — 400, а не 503.
func TestGenerateQRCode_UnstorableContent(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.NewGenerationService(nil, nil, nil, service.GenerationConfig{MaxContentLength: 2048}, logger)
	router := newTestRouter(t, svc)

	tests := []struct {
		name string
		body string
	}{
		{"нулевой символ", `{"content":"a\u0000b"}`},
		{"только нулевой символ", `{"content":"\u0000"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(router, http.MethodPost, "/api/v1/qr-codes", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("ожидался 400, получен %d: %s", rec.Code, rec.Body.String())
			}
			if code := decodeErrorCode(t, rec); code != "VALIDATION_ERROR" {
				t.Errorf("code = %q, ожидался VALIDATION_ERROR", code)
			}
		})
	}
}

func TestGenerateQRCode_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid input", fmt.Errorf("%w: длина", service.ErrInvalidInput), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"encoding", fmt.Errorf("%w: слишком длинное", service.ErrEncoding), http.StatusUnprocessableEntity, "ENCODING_ERROR"},
		{"failed", &service.GenerationFailedError{Fingerprint: testFP, Detail: "boom"}, http.StatusUnprocessableEntity, "GENERATION_FAILED"},
		{"in progress", service.ErrGenerationInProgress, http.StatusAccepted, "GENERATION_IN_PROGRESS"},
		{"storage", fmt.Errorf("%w: диск", service.ErrStorage), http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE"},
		{"persistence", fmt.Errorf("%w: pg", service.ErrPersistence), http.StatusServiceUnavailable, "DATABASE_UNAVAILABLE"},
		{"unknown", fmt.Errorf("неожиданная ошибка"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, &fakeQR{err: tt.err})

			rec := doRequest(router, http.MethodPost, "/api/v1/qr-codes", `{"content":"hello"}`)
			if rec.Code != tt.wantStatus {
				t.Fatalf("ожидался %d, получен %d", tt.wantStatus, rec.Code)
			}
			if code := decodeErrorCode(t, rec); code != tt.wantCode {
				t.Errorf("code = %q, ожидался %q", code, tt.wantCode)
			}
		})
	}
}

func TestGenerateQRCode_RetryAfter(t *testing.T) {
	router := newTestRouter(t, &fakeQR{err: service.ErrGenerationInProgress})

	rec := doRequest(router, http.MethodPost, "/api/v1/qr-codes", `{"content":"hello"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("ожидался 202, получен %d", rec.Code)
	}
	// 1.5s округляется вверх
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After = %q, ожидалось 2", got)
	}
}

func TestGetQRCode(t *testing.T) {
	path := "ab/cd/" + testFP + ".png"
	size := int64(1234)
	now := time.Now().UTC().Truncate(time.Second)
	qr := &fakeQR{record: &model.Record{
		Fingerprint: testFP,
		Status:      model.StatusReady,
		Options:     model.DefaultOptions(),
		StoragePath: &path,
		Size:        &size,
		Attempts:    1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}}
	router := newTestRouter(t, qr)

	rec := doRequest(router, http.MethodGet, "/api/v1/qr-codes/"+testFP, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался 200, получен %d", rec.Code)
	}

	var got generated.QRRecord
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("ответ не JSON: %v", err)
	}
	if got.Fingerprint != testFP || got.Status != generated.QRRecordStatusReady {
		t.Errorf("неверная запись: %+v", got)
	}
	if got.StoragePath == nil || *got.StoragePath != path {
		t.Errorf("storage_path = %v", got.StoragePath)
	}
	if got.Options.Size == nil || *got.Options.Size != model.DefaultSize {
		t.Errorf("options.size = %v", got.Options.Size)
	}
	if got.Options.Border == nil || !*got.Options.Border {
		t.Error("options.border должен быть true")
	}
	if qr.gotFP != testFP {
		t.Errorf("fingerprint передан как %q", qr.gotFP)
	}
}

func TestGetQRCode_NotFound(t *testing.T) {
	router := newTestRouter(t, &fakeQR{err: fmt.Errorf("%w: %s", service.ErrNotFound, testFP)})

	rec := doRequest(router, http.MethodGet, "/api/v1/qr-codes/"+testFP, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("ожидался 404, получен %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != "NOT_FOUND" {
		t.Errorf("code = %q", code)
	}
}

func TestGetQRCodeImage(t *testing.T) {
	router := newTestRouter(t, &fakeQR{result: readyResult(false)})

	rec := doRequest(router, http.MethodGet, "/api/v1/qr-codes/"+testFP+"/image", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался 200, получен %d", rec.Code)
	}
	if rec.Header().Get("ETag") == "" {
		t.Error("ожидался ETag")
	}
}

func TestGetQRCodeImage_Pending(t *testing.T) {
	router := newTestRouter(t, &fakeQR{err: service.ErrGenerationInProgress})

	rec := doRequest(router, http.MethodGet, "/api/v1/qr-codes/"+testFP+"/image", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("ожидался 202, получен %d", rec.Code)
	}
	if got := rec.Header().Get(headerFingerprint); got != testFP {
		t.Errorf("X-QR-Fingerprint = %q", got)
	}
}

func TestRetryQRCode(t *testing.T) {
	qr := &fakeQR{result: readyResult(true)}
	router := newTestRouter(t, qr)

	rec := doRequest(router, http.MethodPost, "/api/v1/qr-codes/"+testFP+"/retry", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался 200, получен %d", rec.Code)
	}
	if qr.gotFP != testFP {
		t.Errorf("fingerprint передан как %q", qr.gotFP)
	}
}

func TestGetOpenAPISpec(t *testing.T) {
	router := newTestRouter(t, &fakeQR{})

	rec := doRequest(router, http.MethodGet, "/api/v1/openapi.yaml", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался 200, получен %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "operationId: generateQRCode") {
		t.Error("ответ не содержит OpenAPI-контракт")
	}
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(t, &fakeQR{})

	rec := doRequest(router, http.MethodGet, "/health/live", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался 200, получен %d", rec.Code)
	}

	var resp healthLiveResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("ответ не JSON: %v", err)
	}
	if resp.Status != "ok" || resp.Service != serviceName {
		t.Errorf("неверный ответ: %+v", resp)
	}
}

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name       string
		checker    ReadinessChecker
		codeDir    string
		wantStatus int
		wantResult string
	}{
		{"все доступны", fakeChecker{status: "ok"}, "", http.StatusOK, "ok"},
		{"postgres degraded", fakeChecker{status: "degraded"}, "", http.StatusOK, "degraded"},
		{"postgres недоступен", fakeChecker{status: "fail"}, "", http.StatusServiceUnavailable, "fail"},
		{"нет checker", nil, "", http.StatusServiceUnavailable, "fail"},
		{"директория недоступна", fakeChecker{status: "ok"}, "missing", http.StatusServiceUnavailable, "fail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codeDir := t.TempDir()
			if tt.codeDir != "" {
				codeDir = filepath.Join(codeDir, tt.codeDir)
			}
			h := NewHealthHandler(tt.checker, codeDir)

			rec := httptest.NewRecorder()
			h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("ожидался %d, получен %d", tt.wantStatus, rec.Code)
			}
			var resp healthReadyResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("ответ не JSON: %v", err)
			}
			if resp.Status != tt.wantResult {
				t.Errorf("status = %q, ожидался %q", resp.Status, tt.wantResult)
			}
		})
	}
}

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		in   []string
		want string
	}{
		{[]string{"ok", "ok"}, "ok"},
		{[]string{"ok", "degraded"}, "degraded"},
		{[]string{"degraded", "fail"}, "fail"},
		{nil, "ok"},
	}
	for _, tt := range tests {
		if got := overallStatus(tt.in...); got != tt.want {
			t.Errorf("overallStatus(%v) = %q, ожидался %q", tt.in, got, tt.want)
		}
	}
}
