// metrics.go — Prometheus-метрики сервиса генерации.
package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Исходы GetOrCreate для qr_generations_total.
const (
	outcomeCreated    = "created"
	outcomeExisting   = "existing"
	outcomeReclaimed  = "reclaimed"
	outcomeInProgress = "in_progress"
	outcomeFailed     = "failed"
	outcomeEncoding   = "encoding_error"
	outcomeStorage    = "storage_error"
	outcomeDatabase   = "persistence_error"
)

var (
	// generationsTotal — запросы GetOrCreate по исходу.
	generationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qr_generations_total",
		Help: "Общее количество запросов на генерацию QR-кода по исходу",
	}, []string{"outcome"})

	// renderDuration — длительность Encoder.Render.
	renderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "qr_render_duration_seconds",
		Help:    "Длительность рендеринга QR-кода в секундах",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})

	// reservationsTotal — результаты TryReserve (won, existing).
	reservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qr_reservations_total",
		Help: "Общее количество попыток резервирования по результату",
	}, []string{"result"})

	// pendingWaitSeconds — время ожидания чужой генерации.
	pendingWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "qr_pending_wait_seconds",
		Help:    "Время ожидания завершения генерации другим воркером в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})
)
