// generation.go — сервис генерации QR-кодов: идемпотентный GetOrCreate
// поверх RecordStore (резервирование через уникальность fingerprint)
// и ImageStore (публикация через атомарный link без перезаписи).
//
// Координация воркеров живёт только в базе данных и файловой системе,
// сервис не хранит состояние между вызовами.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"

	"github.com/bigkaa/goartstore/qr-module/internal/domain/lifecycle"
	"github.com/bigkaa/goartstore/qr-module/internal/domain/model"
	"github.com/bigkaa/goartstore/qr-module/internal/fingerprint"
	"github.com/bigkaa/goartstore/qr-module/internal/repository"
	"github.com/bigkaa/goartstore/qr-module/internal/storage/imagestore"
)

// Renderer — рендерер QR-кода (encoder.Encoder).
type Renderer interface {
	Render(content string, opts model.Options) (*model.Image, error)
}

// ImageStore — хранилище изображений (imagestore.Store или imagestore.Cached).
type ImageStore interface {
	Put(fp string, img *model.Image) (*imagestore.PutResult, error)
	Get(fp string) (*model.Image, error)
}

// GenerationConfig — параметры сервиса генерации.
type GenerationConfig struct {
	// MaxContentLength — максимальная длина содержимого в байтах
	MaxContentLength int
	// GenerationTimeout — дедлайн работы владельца
	GenerationTimeout time.Duration
	// PendingPollInitial — первый шаг backoff ожидания
	PendingPollInitial time.Duration
	// PendingWaitMax — максимальное время ожидания чужой генерации
	PendingWaitMax time.Duration
	// StalePendingTimeout — возраст Pending, после которого резервация перехватывается
	StalePendingTimeout time.Duration
}

// Result — результат GetOrCreate.
type Result struct {
	// Record — запись в статусе Ready
	Record *model.Record
	// Image — байты изображения
	Image *model.Image
	// Created — изображение сгенерировано этим вызовом
	Created bool
}

// errStillPending — внутренний сигнал backoff: запись ещё в Pending.
var errStillPending = errors.New("запись ещё в статусе pending")

// GenerationService — оркестрация Encoder, ContentAddresser, ImageStore и RecordStore.
type GenerationService struct {
	repo    repository.RecordRepository
	store   ImageStore
	encoder Renderer
	cfg     GenerationConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewGenerationService создаёт сервис генерации.
func NewGenerationService(
	repo repository.RecordRepository,
	store ImageStore,
	enc Renderer,
	cfg GenerationConfig,
	logger *slog.Logger,
) *GenerationService {
	return &GenerationService{
		repo:    repo,
		store:   store,
		encoder: enc,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "generation")),
		now:     time.Now,
	}
}

// GetOrCreate возвращает QR-код для (content, opts), генерируя его не более одного раза
// для всех воркеров.
//
// Алгоритм:
//  1. Валидация входа и вычисление fingerprint.
//  2. TryReserve: победитель становится владельцем и генерирует изображение.
//  3. Иначе чтение существующей записи: Ready — чтение изображения,
//     Failed — сохранённая ошибка, Pending — ожидание с backoff.
func (s *GenerationService) GetOrCreate(ctx context.Context, content string, opts model.Options) (*Result, error) {
	normalized, err := s.validateInput(content, opts)
	if err != nil {
		return nil, err
	}

	fp, err := fingerprint.Address(content, normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	rec := &model.Record{Fingerprint: fp, Content: content, Options: normalized}
	created, err := s.repo.TryReserve(ctx, rec)
	if err != nil {
		generationsTotal.WithLabelValues(outcomeDatabase).Inc()
		return nil, s.persistenceError("резервирование", fp, err)
	}

	if created {
		reservationsTotal.WithLabelValues("won").Inc()
		s.logger.Debug("Резервация получена", slog.String("fingerprint", fp))
		return s.generate(ctx, rec, outcomeCreated)
	}
	reservationsTotal.WithLabelValues("existing").Inc()

	existing, err := s.repo.Get(ctx, fp)
	if err != nil {
		generationsTotal.WithLabelValues(outcomeDatabase).Inc()
		return nil, s.persistenceError("чтение записи", fp, err)
	}
	return s.resolve(ctx, existing)
}

// Retry повторяет генерацию для записи в статусе Failed (Failed → Pending).
// Для записи в другом статусе ведёт себя как GetOrCreate по существующей записи:
// Ready возвращается как есть, Pending ожидается.
func (s *GenerationService) Retry(ctx context.Context, fp string) (*Result, error) {
	if !fingerprint.IsValid(fp) {
		return nil, fmt.Errorf("%w: некорректный fingerprint %q", ErrInvalidInput, fp)
	}

	rec, err := s.repo.ResetFailed(ctx, fp)
	if err == nil {
		s.logger.Info("Повтор генерации",
			slog.String("fingerprint", fp),
			slog.Int("attempts", rec.Attempts),
		)
		return s.generate(ctx, rec, outcomeCreated)
	}
	if !errors.Is(err, repository.ErrInvalidTransition) {
		return nil, s.persistenceError("сброс записи", fp, err)
	}

	// Гонка с другим повтором или запись не в Failed
	current, err := s.repo.Get(ctx, fp)
	if err != nil {
		return nil, s.persistenceError("чтение записи", fp, err)
	}
	if lifecycle.Can(current.Status, lifecycle.ActionRetry) {
		return s.Retry(ctx, fp)
	}
	return s.resolve(ctx, current)
}

// Lookup возвращает запись по fingerprint.
func (s *GenerationService) Lookup(ctx context.Context, fp string) (*model.Record, error) {
	if !fingerprint.IsValid(fp) {
		return nil, fmt.Errorf("%w: некорректный fingerprint %q", ErrInvalidInput, fp)
	}
	rec, err := s.repo.Get(ctx, fp)
	if err != nil {
		return nil, s.persistenceError("чтение записи", fp, err)
	}
	return rec, nil
}

// Image возвращает изображение Ready-записи без ожидания и без генерации.
func (s *GenerationService) Image(ctx context.Context, fp string) (*Result, error) {
	rec, err := s.Lookup(ctx, fp)
	if err != nil {
		return nil, err
	}
	switch rec.Status {
	case model.StatusReady:
		return s.readReady(rec)
	case model.StatusFailed:
		return nil, failedError(rec)
	default:
		return nil, fmt.Errorf("%w: fingerprint %s", ErrGenerationInProgress, fp)
	}
}

// validateInput отклоняет некорректный вход до вычисления fingerprint.
func (s *GenerationService) validateInput(content string, opts model.Options) (model.Options, error) {
	if content == "" {
		return model.Options{}, fmt.Errorf("%w: пустое содержимое", ErrInvalidInput)
	}
	// Колонка content имеет тип TEXT: PostgreSQL не принимает NUL и невалидный UTF-8.
	if !utf8.ValidString(content) {
		return model.Options{}, fmt.Errorf("%w: содержимое не является корректной строкой UTF-8", ErrInvalidInput)
	}
	if strings.ContainsRune(content, 0) {
		return model.Options{}, fmt.Errorf("%w: содержимое содержит нулевой символ", ErrInvalidInput)
	}
	if s.cfg.MaxContentLength > 0 && len(content) > s.cfg.MaxContentLength {
		return model.Options{}, fmt.Errorf("%w: длина содержимого %d байт превышает максимум %d байт",
			ErrInvalidInput, len(content), s.cfg.MaxContentLength)
	}
	normalized := opts.Normalize()
	if err := normalized.Validate(); err != nil {
		return model.Options{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return normalized, nil
}

// resolve обрабатывает существующую запись, которой этот вызов не владеет.
func (s *GenerationService) resolve(ctx context.Context, rec *model.Record) (*Result, error) {
	switch rec.Status {
	case model.StatusReady:
		res, err := s.readReady(rec)
		if err != nil {
			generationsTotal.WithLabelValues(outcomeStorage).Inc()
			return nil, err
		}
		generationsTotal.WithLabelValues(outcomeExisting).Inc()
		return res, nil
	case model.StatusFailed:
		generationsTotal.WithLabelValues(outcomeFailed).Inc()
		return nil, failedError(rec)
	default:
		return s.wait(ctx, rec.Fingerprint)
	}
}

// wait опрашивает запись в Pending с экспоненциальным backoff.
// Зависшая резервация перехватывается атомарно (ReclaimStale): ровно один
// перехвативший воркер становится владельцем. Ожидание ограничено
// PendingWaitMax и контекстом вызывающего.
func (s *GenerationService) wait(ctx context.Context, fp string) (*Result, error) {
	start := time.Now()
	defer func() { pendingWaitSeconds.Observe(time.Since(start).Seconds()) }()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.PendingPollInitial
	b.MaxInterval = max(s.cfg.PendingWaitMax/4, s.cfg.PendingPollInitial)
	b.MaxElapsedTime = s.cfg.PendingWaitMax
	b.Reset()

	var result *Result
	operation := func() error {
		rec, err := s.repo.Get(ctx, fp)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return backoff.Permanent(ctxErr)
			}
			if repository.IsTransient(err) {
				return err
			}
			return backoff.Permanent(s.persistenceError("чтение записи", fp, err))
		}

		switch rec.Status {
		case model.StatusReady, model.StatusFailed:
			res, err := s.resolve(ctx, rec)
			if err != nil {
				return backoff.Permanent(err)
			}
			result = res
			return nil
		}

		if !rec.IsStale(s.now(), s.cfg.StalePendingTimeout) || !lifecycle.Can(rec.Status, lifecycle.ActionReclaim) {
			return errStillPending
		}

		reclaimed, ok, err := s.repo.ReclaimStale(ctx, fp, s.cfg.StalePendingTimeout)
		if err != nil {
			return backoff.Permanent(s.persistenceError("перехват резервации", fp, err))
		}
		if !ok {
			// Перехватил другой воркер или часы воркера опережают часы БД
			return errStillPending
		}

		s.logger.Warn("Перехвачена зависшая резервация",
			slog.String("fingerprint", fp),
			slog.Int("attempts", reclaimed.Attempts),
			slog.Time("stale_since", rec.UpdatedAt),
		)
		res, err := s.generate(ctx, reclaimed, outcomeReclaimed)
		if err != nil {
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(b, ctx))
	if err == nil {
		return result, nil
	}

	switch {
	case errors.Is(err, errStillPending):
		generationsTotal.WithLabelValues(outcomeInProgress).Inc()
		return nil, fmt.Errorf("%w: fingerprint %s", ErrGenerationInProgress, fp)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		generationsTotal.WithLabelValues(outcomeInProgress).Inc()
		return nil, fmt.Errorf("%w: ожидание прервано: %w", ErrGenerationInProgress, err)
	case repository.IsTransient(err):
		generationsTotal.WithLabelValues(outcomeDatabase).Inc()
		return nil, s.persistenceError("чтение записи", fp, err)
	}
	return nil, err
}

// generate — работа владельца резервации: Render → Put → MarkReady.
// Выполняется под контекстом, отвязанным от отмены клиентом, с собственным
// дедлайном: запись всегда доходит до Ready или Failed.
func (s *GenerationService) generate(ctx context.Context, rec *model.Record, outcome string) (*Result, error) {
	workCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.GenerationTimeout)
	defer cancel()

	fp := rec.Fingerprint
	logger := s.logger.With(slog.String("fingerprint", fp))

	renderStart := time.Now()
	img, err := s.encoder.Render(rec.Content, rec.Options)
	renderDuration.Observe(time.Since(renderStart).Seconds())
	if err != nil {
		s.markFailed(workCtx, logger, fp, err.Error())
		generationsTotal.WithLabelValues(outcomeEncoding).Inc()
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}

	put, err := s.store.Put(fp, img)
	switch {
	case err == nil:
	case errors.Is(err, imagestore.ErrAlreadyExists):
		// Объект опубликован предыдущим владельцем (перехват резервации)
		logger.Info("Изображение уже опубликовано, используется существующее")
		img, put, err = s.existingImage(fp)
		if err != nil {
			s.markFailed(workCtx, logger, fp, err.Error())
			generationsTotal.WithLabelValues(outcomeStorage).Inc()
			return nil, err
		}
	default:
		s.markFailed(workCtx, logger, fp, err.Error())
		generationsTotal.WithLabelValues(outcomeStorage).Inc()
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	ready, err := s.repo.MarkReady(workCtx, fp, repository.ReadyParams{
		StoragePath: put.StoragePath,
		ContentType: img.ContentType,
		Size:        put.Size,
		Checksum:    put.Checksum,
	})
	if err != nil {
		ready, err = s.afterMarkReadyError(workCtx, fp, err)
		if err != nil {
			return nil, err
		}
	}

	generationsTotal.WithLabelValues(outcome).Inc()
	logger.Info("QR-код сгенерирован",
		slog.String("storage_path", put.StoragePath),
		slog.Int64("size", put.Size),
		slog.String("outcome", outcome),
	)
	return &Result{Record: ready, Image: img, Created: true}, nil
}

// afterMarkReadyError разбирает неудачный MarkReady.
// ErrInvalidTransition после гонки перехвата: если запись уже Ready — успех.
// Ошибка БД оставляет запись в Pending, её подберёт перехват по таймауту.
func (s *GenerationService) afterMarkReadyError(ctx context.Context, fp string, err error) (*model.Record, error) {
	if !errors.Is(err, repository.ErrInvalidTransition) {
		generationsTotal.WithLabelValues(outcomeDatabase).Inc()
		return nil, s.persistenceError("перевод в ready", fp, err)
	}

	current, getErr := s.repo.Get(ctx, fp)
	if getErr != nil {
		generationsTotal.WithLabelValues(outcomeDatabase).Inc()
		return nil, s.persistenceError("чтение записи", fp, getErr)
	}
	switch current.Status {
	case model.StatusReady:
		return current, nil
	case model.StatusFailed:
		generationsTotal.WithLabelValues(outcomeFailed).Inc()
		return nil, failedError(current)
	}
	generationsTotal.WithLabelValues(outcomeDatabase).Inc()
	return nil, s.persistenceError("перевод в ready", fp, err)
}

// existingImage читает уже опубликованный объект и собирает PutResult для MarkReady.
func (s *GenerationService) existingImage(fp string) (*model.Image, *imagestore.PutResult, error) {
	img, err := s.store.Get(fp)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: чтение опубликованного изображения: %v", ErrStorage, err)
	}
	return img, &imagestore.PutResult{
		StoragePath: imagestore.StoragePath(fp, img.Format),
		Size:        int64(len(img.Data)),
		Checksum:    imagestore.ChecksumOf(img.Data),
	}, nil
}

// readReady читает изображение Ready-записи.
// Отсутствие объекта при Ready — нарушение инварианта, повторная
// генерация не выполняется.
func (s *GenerationService) readReady(rec *model.Record) (*Result, error) {
	img, err := s.store.Get(rec.Fingerprint)
	if err != nil {
		if errors.Is(err, imagestore.ErrNotFound) {
			s.logger.Error("Изображение Ready-записи отсутствует",
				slog.String("fingerprint", rec.Fingerprint),
			)
			return nil, fmt.Errorf("%w: изображение %s отсутствует", ErrStorage, rec.Fingerprint)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return &Result{Record: rec, Image: img, Created: false}, nil
}

// markFailed фиксирует Failed. Ошибка только логируется: запись останется
// в Pending и будет перехвачена по таймауту.
func (s *GenerationService) markFailed(ctx context.Context, logger *slog.Logger, fp, detail string) {
	if _, err := s.repo.MarkFailed(ctx, fp, detail); err != nil {
		logger.Error("Не удалось перевести запись в failed",
			slog.String("detail", detail),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Warn("Генерация завершилась ошибкой", slog.String("detail", detail))
}

// persistenceError переводит ошибку репозитория в таксономию сервиса.
func (s *GenerationService) persistenceError(op, fp string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: fingerprint %s", ErrNotFound, fp)
	}
	var failed *GenerationFailedError
	if errors.As(err, &failed) || errors.Is(err, ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrPersistence, op, err)
}

// failedError строит GenerationFailedError из записи Failed.
func failedError(rec *model.Record) error {
	detail := "причина не сохранена"
	if rec.ErrorDetail != nil {
		detail = *rec.ErrorDetail
	}
	return &GenerationFailedError{Fingerprint: rec.Fingerprint, Detail: detail}
}
