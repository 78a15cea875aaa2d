// Package generated provides primitives to interact with the openapi HTTP API.
//
// Типы и chi-обвязка соответствуют openapi.yaml (раскладка oapi-codegen chi-server).
package generated

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// Defines values for QRRecordStatus.
const (
	QRRecordStatusFailed  QRRecordStatus = "failed"
	QRRecordStatusPending QRRecordStatus = "pending"
	QRRecordStatusReady   QRRecordStatus = "ready"
)

// Defines values for RenderOptionsFormat.
const (
	Png RenderOptionsFormat = "png"
)

// Defines values for RenderOptionsRecovery.
const (
	H RenderOptionsRecovery = "H"
	L RenderOptionsRecovery = "L"
	M RenderOptionsRecovery = "M"
	Q RenderOptionsRecovery = "Q"
)

// Error defines model for Error.
type Error struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// GenerateRequest defines model for GenerateRequest.
type GenerateRequest struct {
	Content string         `json:"content" validate:"required"`
	Options *RenderOptions `json:"options,omitempty"`
}

// QRRecord defines model for QRRecord.
type QRRecord struct {
	Attempts    int            `json:"attempts"`
	Checksum    *string        `json:"checksum,omitempty"`
	ContentType *string        `json:"content_type,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	ErrorDetail *string        `json:"error_detail,omitempty"`
	Fingerprint string         `json:"fingerprint"`
	Options     RenderOptions  `json:"options"`
	Size        *int64         `json:"size,omitempty"`
	Status      QRRecordStatus `json:"status"`
	StoragePath *string        `json:"storage_path,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// QRRecordStatus defines model for QRRecord.Status.
type QRRecordStatus string

// RenderOptions defines model for RenderOptions.
type RenderOptions struct {
	Background *string                `json:"background,omitempty" validate:"omitempty,hexcolor"`
	Border     *bool                  `json:"border,omitempty"`
	Foreground *string                `json:"foreground,omitempty" validate:"omitempty,hexcolor"`
	Format     *RenderOptionsFormat   `json:"format,omitempty" validate:"omitempty,oneof=png"`
	Recovery   *RenderOptionsRecovery `json:"recovery,omitempty" validate:"omitempty,oneof=L M Q H l m q h"`
	Size       *int                   `json:"size,omitempty" validate:"omitempty,min=21,max=4096"`
}

// RenderOptionsFormat defines model for RenderOptions.Format.
type RenderOptionsFormat string

// RenderOptionsRecovery defines model for RenderOptions.Recovery.
type RenderOptionsRecovery string

// Fingerprint defines model for Fingerprint.
type Fingerprint = string

// GenerateQRCodeJSONRequestBody defines body for GenerateQRCode for application/json ContentType.
type GenerateQRCodeJSONRequestBody = GenerateRequest

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// Получить или сгенерировать QR-код
	// (POST /api/v1/qr-codes)
	GenerateQRCode(w http.ResponseWriter, r *http.Request)
	// Метаданные записи QR-кода
	// (GET /api/v1/qr-codes/{fingerprint})
	GetQRCode(w http.ResponseWriter, r *http.Request, fingerprint Fingerprint)
	// Изображение готового QR-кода
	// (GET /api/v1/qr-codes/{fingerprint}/image)
	GetQRCodeImage(w http.ResponseWriter, r *http.Request, fingerprint Fingerprint)
	// Повторить генерацию для записи в статусе failed
	// (POST /api/v1/qr-codes/{fingerprint}/retry)
	RetryQRCode(w http.ResponseWriter, r *http.Request, fingerprint Fingerprint)
	// OpenAPI-контракт
	// (GET /api/v1/openapi.yaml)
	GetOpenAPISpec(w http.ResponseWriter, r *http.Request)
	// (GET /health/live)
	HealthLive(w http.ResponseWriter, r *http.Request)
	// (GET /health/ready)
	HealthReady(w http.ResponseWriter, r *http.Request)
	// (GET /metrics)
	GetMetrics(w http.ResponseWriter, r *http.Request)
}

// ServerInterfaceWrapper converts contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandlerFunc   func(w http.ResponseWriter, r *http.Request, err error)
}

type MiddlewareFunc func(http.Handler) http.Handler

// GenerateQRCode operation middleware
func (siw *ServerInterfaceWrapper) GenerateQRCode(w http.ResponseWriter, r *http.Request) {
	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GenerateQRCode(w, r)
	}))
	siw.serve(handler, w, r)
}

// GetQRCode operation middleware
func (siw *ServerInterfaceWrapper) GetQRCode(w http.ResponseWriter, r *http.Request) {
	fingerprint, ok := siw.bindFingerprint(w, r)
	if !ok {
		return
	}
	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetQRCode(w, r, fingerprint)
	}))
	siw.serve(handler, w, r)
}

// GetQRCodeImage operation middleware
func (siw *ServerInterfaceWrapper) GetQRCodeImage(w http.ResponseWriter, r *http.Request) {
	fingerprint, ok := siw.bindFingerprint(w, r)
	if !ok {
		return
	}
	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetQRCodeImage(w, r, fingerprint)
	}))
	siw.serve(handler, w, r)
}

// RetryQRCode operation middleware
func (siw *ServerInterfaceWrapper) RetryQRCode(w http.ResponseWriter, r *http.Request) {
	fingerprint, ok := siw.bindFingerprint(w, r)
	if !ok {
		return
	}
	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.RetryQRCode(w, r, fingerprint)
	}))
	siw.serve(handler, w, r)
}

// GetOpenAPISpec operation middleware
func (siw *ServerInterfaceWrapper) GetOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	siw.serve(http.HandlerFunc(siw.Handler.GetOpenAPISpec), w, r)
}

// HealthLive operation middleware
func (siw *ServerInterfaceWrapper) HealthLive(w http.ResponseWriter, r *http.Request) {
	siw.serve(http.HandlerFunc(siw.Handler.HealthLive), w, r)
}

// HealthReady operation middleware
func (siw *ServerInterfaceWrapper) HealthReady(w http.ResponseWriter, r *http.Request) {
	siw.serve(http.HandlerFunc(siw.Handler.HealthReady), w, r)
}

// GetMetrics operation middleware
func (siw *ServerInterfaceWrapper) GetMetrics(w http.ResponseWriter, r *http.Request) {
	siw.serve(http.HandlerFunc(siw.Handler.GetMetrics), w, r)
}

// bindFingerprint извлекает path-параметр {fingerprint}.
func (siw *ServerInterfaceWrapper) bindFingerprint(w http.ResponseWriter, r *http.Request) (Fingerprint, bool) {
	var fingerprint Fingerprint
	err := runtime.BindStyledParameterWithOptions("simple", "fingerprint", chi.URLParam(r, "fingerprint"), &fingerprint,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "fingerprint", Err: err})
		return "", false
	}
	return fingerprint, true
}

func (siw *ServerInterfaceWrapper) serve(handler http.Handler, w http.ResponseWriter, r *http.Request) {
	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}
	handler.ServeHTTP(w, r)
}

type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error {
	return e.Err
}

// Handler creates http.Handler with routing matching OpenAPI spec.
func Handler(si ServerInterface) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{})
}

type ChiServerOptions struct {
	BaseURL          string
	BaseRouter       chi.Router
	Middlewares      []MiddlewareFunc
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// HandlerFromMux creates http.Handler with routing matching OpenAPI spec based on the provided mux.
func HandlerFromMux(si ServerInterface, r chi.Router) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{
		BaseRouter: r,
	})
}

// HandlerWithOptions creates http.Handler with additional options
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter

	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandlerFunc:   options.ErrorHandlerFunc,
	}

	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/api/v1/qr-codes", wrapper.GenerateQRCode)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/api/v1/qr-codes/{fingerprint}", wrapper.GetQRCode)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/api/v1/qr-codes/{fingerprint}/image", wrapper.GetQRCodeImage)
	})
	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/api/v1/qr-codes/{fingerprint}/retry", wrapper.RetryQRCode)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/api/v1/openapi.yaml", wrapper.GetOpenAPISpec)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/health/live", wrapper.HealthLive)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/health/ready", wrapper.HealthReady)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/metrics", wrapper.GetMetrics)
	})

	return r
}
