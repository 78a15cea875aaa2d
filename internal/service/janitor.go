// janitor.go — фоновое обслуживание хранилища QR-кодов.
//
// Janitor выполняет три задачи:
//  1. Удаляет брошенные temp файлы (писатель аварийно завершился до публикации)
//  2. Считает зависшие Pending-записи (перехват выполняет запрос, не janitor)
//  3. Проверяет целостность Ready-записей: наличие и размер изображения через
//     stat для всех записей, SHA-256 — только для окна из HashLimit записей,
//     которое сдвигается от запуска к запуску по кругу
//
// Запускается как горутина с периодическим тикером (QR_JANITOR_INTERVAL).
// Несколько воркеров могут запускать janitor одновременно: все операции
// идемпотентны, удаляются только temp файлы старше QR_TEMP_MAX_AGE.
// Полное чтение изображений за запуск ограничено QR_JANITOR_HASH_LIMIT.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/qr-module/internal/domain/model"
	"github.com/bigkaa/goartstore/qr-module/internal/repository"
	"github.com/bigkaa/goartstore/qr-module/internal/storage/imagestore"
)

// readyPageSize — размер страницы при обходе Ready-записей.
const readyPageSize = 500

// stalePendingLimit — максимум зависших записей, выводимых в лог за запуск.
const stalePendingLimit = 100

var (
	janitorRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qr_janitor_runs_total",
		Help: "Общее количество запусков janitor",
	})

	janitorTempRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qr_janitor_temp_removed_total",
		Help: "Общее количество удалённых брошенных temp файлов",
	})

	// janitorIntegrityErrorsTotal — Ready-записи без изображения (missing)
	// или с несовпадающей контрольной суммой (corrupt).
	janitorIntegrityErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qr_janitor_integrity_errors_total",
		Help: "Общее количество нарушений целостности Ready-записей",
	}, []string{"kind"})

	janitorStalePending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "qr_janitor_stale_pending",
		Help: "Количество зависших Pending-записей на момент последнего запуска janitor",
	})

	janitorDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "qr_janitor_duration_seconds",
		Help:    "Длительность выполнения janitor в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})

	recordsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "qr_records",
		Help: "Количество записей QR-кодов по статусу",
	}, []string{"status"})
)

// JanitorStore — операции хранилища изображений, нужные janitor.
type JanitorStore interface {
	ListTemp(olderThan time.Duration) ([]string, error)
	RemoveTemp(relPath string) error
	Size(fp string) (int64, error)
	Checksum(fp string) (string, error)
}

// JanitorConfig — параметры janitor.
type JanitorConfig struct {
	Interval            time.Duration
	TempMaxAge          time.Duration
	StalePendingTimeout time.Duration
	// HashLimit — максимум Ready-записей, хэшируемых за запуск
	HashLimit int
}

// JanitorResult — результат одного запуска janitor.
type JanitorResult struct {
	// TempRemoved — удалено брошенных temp файлов
	TempRemoved int
	// StalePending — найдено зависших Pending-записей
	StalePending int
	// ReadyChecked — проверено Ready-записей
	ReadyChecked int
	// ReadyHashed — Ready-записи, для которых посчитан SHA-256
	ReadyHashed int
	// ReadyMissing — Ready-записи без изображения
	ReadyMissing int
	// ReadyCorrupt — Ready-записи с несовпадающей контрольной суммой
	ReadyCorrupt int
	// Errors — ошибки ввода-вывода и БД
	Errors int
	// Duration — длительность выполнения
	Duration time.Duration
}

// JanitorService — сервис фонового обслуживания.
type JanitorService struct {
	repo   repository.RecordRepository
	store  JanitorStore
	cfg    JanitorConfig
	logger *slog.Logger

	mu         sync.Mutex // защита от параллельного запуска RunOnce
	hashCursor string     // последний хэшированный fingerprint, под mu
	cancel context.CancelFunc
	done   chan struct{}
}

// NewJanitorService создаёт janitor.
func NewJanitorService(
	repo repository.RecordRepository,
	store JanitorStore,
	cfg JanitorConfig,
	logger *slog.Logger,
) *JanitorService {
	return &JanitorService{
		repo:   repo,
		store:  store,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "janitor")),
	}
}

// Start запускает фоновую горутину с периодическим тикером.
func (j *JanitorService) Start(ctx context.Context) {
	jCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.done = make(chan struct{})

	go j.run(jCtx)

	j.logger.Info("Janitor запущен",
		slog.String("interval", j.cfg.Interval.String()),
		slog.String("temp_max_age", j.cfg.TempMaxAge.String()),
	)
}

// Stop останавливает фоновую горутину и дожидается текущего запуска.
func (j *JanitorService) Stop() {
	if j.cancel == nil {
		return
	}
	j.cancel()
	<-j.done
	j.logger.Info("Janitor остановлен")
}

func (j *JanitorService) run(ctx context.Context) {
	defer close(j.done)

	j.RunOnce(ctx)

	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один цикл обслуживания.
// Потокобезопасен: mutex исключает параллельный запуск в одном процессе.
func (j *JanitorService) RunOnce(ctx context.Context) *JanitorResult {
	j.mu.Lock()
	defer j.mu.Unlock()

	start := time.Now()
	result := &JanitorResult{}

	j.sweepTemp(result)
	j.countStalePending(ctx, result)
	j.verifyReady(ctx, result)
	j.updateStatusGauges(ctx, result)

	result.Duration = time.Since(start)

	janitorRunsTotal.Inc()
	janitorTempRemovedTotal.Add(float64(result.TempRemoved))
	janitorStalePending.Set(float64(result.StalePending))
	janitorDurationSeconds.Observe(result.Duration.Seconds())

	level := slog.LevelInfo
	if result.ReadyMissing > 0 || result.ReadyCorrupt > 0 || result.Errors > 0 {
		level = slog.LevelWarn
	}
	j.logger.Log(ctx, level, "Janitor завершён",
		slog.Int("temp_removed", result.TempRemoved),
		slog.Int("stale_pending", result.StalePending),
		slog.Int("ready_checked", result.ReadyChecked),
		slog.Int("ready_hashed", result.ReadyHashed),
		slog.Int("ready_missing", result.ReadyMissing),
		slog.Int("ready_corrupt", result.ReadyCorrupt),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)

	return result
}

// sweepTemp удаляет temp файлы старше TempMaxAge.
func (j *JanitorService) sweepTemp(result *JanitorResult) {
	paths, err := j.store.ListTemp(j.cfg.TempMaxAge)
	if err != nil {
		j.logger.Error("Janitor: ошибка сканирования temp файлов", slog.String("error", err.Error()))
		result.Errors++
		return
	}
	for _, p := range paths {
		if err := j.store.RemoveTemp(p); err != nil {
			j.logger.Error("Janitor: ошибка удаления temp файла",
				slog.String("path", p),
				slog.String("error", err.Error()),
			)
			result.Errors++
			continue
		}
		j.logger.Debug("Janitor: удалён temp файл", slog.String("path", p))
		result.TempRemoved++
	}
}

// countStalePending находит зависшие Pending-записи.
func (j *JanitorService) countStalePending(ctx context.Context, result *JanitorResult) {
	stale, err := j.repo.ListStalePending(ctx, j.cfg.StalePendingTimeout, stalePendingLimit)
	if err != nil {
		j.logger.Error("Janitor: ошибка поиска зависших записей", slog.String("error", err.Error()))
		result.Errors++
		return
	}
	result.StalePending = len(stale)
	for _, rec := range stale {
		j.logger.Warn("Janitor: зависшая Pending-запись",
			slog.String("fingerprint", rec.Fingerprint),
			slog.Time("updated_at", rec.UpdatedAt),
			slog.Int("attempts", rec.Attempts),
		)
	}
}

// verifyReady проверяет изображения Ready-записей постранично.
// Хэшируются записи с fingerprint после hashCursor, не более HashLimit;
// когда за окном не осталось записей, следующий запуск начинает сначала.
func (j *JanitorService) verifyReady(ctx context.Context, result *JanitorResult) {
	after := ""
	more := false
	for {
		if ctx.Err() != nil {
			return
		}
		page, err := j.repo.ListReady(ctx, after, readyPageSize)
		if err != nil {
			j.logger.Error("Janitor: ошибка чтения Ready-записей", slog.String("error", err.Error()))
			result.Errors++
			return
		}
		for _, rec := range page {
			pending := rec.Fingerprint > j.hashCursor
			hash := pending && result.ReadyHashed < j.cfg.HashLimit
			if pending && !hash {
				more = true
			}
			j.verifyRecord(rec, hash, result)
		}
		if len(page) < readyPageSize {
			break
		}
		after = page[len(page)-1].Fingerprint
	}

	if !more {
		j.hashCursor = ""
	}
}

// verifyRecord сверяет размер изображения с записью, а при hash — и SHA-256.
func (j *JanitorService) verifyRecord(rec *model.Record, hash bool, result *JanitorResult) {
	result.ReadyChecked++

	size, err := j.store.Size(rec.Fingerprint)
	switch {
	case errors.Is(err, imagestore.ErrNotFound):
		j.reportMissing(rec, result)
		return
	case err != nil:
		j.reportReadError(rec, err, result)
		return
	case rec.Size != nil && *rec.Size != size:
		result.ReadyCorrupt++
		janitorIntegrityErrorsTotal.WithLabelValues("corrupt").Inc()
		j.logger.Error("Janitor: размер изображения не совпадает",
			slog.String("fingerprint", rec.Fingerprint),
			slog.Int64("expected", *rec.Size),
			slog.Int64("actual", size),
		)
		return
	}

	if !hash {
		return
	}
	result.ReadyHashed++
	j.hashCursor = rec.Fingerprint

	sum, err := j.store.Checksum(rec.Fingerprint)
	switch {
	case errors.Is(err, imagestore.ErrNotFound):
		j.reportMissing(rec, result)
	case err != nil:
		j.reportReadError(rec, err, result)
	case rec.Checksum != nil && *rec.Checksum != sum:
		result.ReadyCorrupt++
		janitorIntegrityErrorsTotal.WithLabelValues("corrupt").Inc()
		j.logger.Error("Janitor: контрольная сумма изображения не совпадает",
			slog.String("fingerprint", rec.Fingerprint),
			slog.String("expected", *rec.Checksum),
			slog.String("actual", sum),
		)
	}
}

func (j *JanitorService) reportMissing(rec *model.Record, result *JanitorResult) {
	result.ReadyMissing++
	janitorIntegrityErrorsTotal.WithLabelValues("missing").Inc()
	j.logger.Error("Janitor: изображение Ready-записи отсутствует",
		slog.String("fingerprint", rec.Fingerprint),
	)
}

func (j *JanitorService) reportReadError(rec *model.Record, err error, result *JanitorResult) {
	result.Errors++
	j.logger.Error("Janitor: ошибка чтения изображения",
		slog.String("fingerprint", rec.Fingerprint),
		slog.String("error", err.Error()),
	)
}

// updateStatusGauges обновляет qr_records{status}.
func (j *JanitorService) updateStatusGauges(ctx context.Context, result *JanitorResult) {
	counts, err := j.repo.CountByStatus(ctx)
	if err != nil {
		j.logger.Error("Janitor: ошибка подсчёта записей", slog.String("error", err.Error()))
		result.Errors++
		return
	}
	for status, n := range counts {
		recordsByStatus.WithLabelValues(string(status)).Set(float64(n))
	}
}
