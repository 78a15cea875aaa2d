package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/qr-module/internal/domain/model"
	"github.com/bigkaa/goartstore/qr-module/internal/encoder"
	"github.com/bigkaa/goartstore/qr-module/internal/repository"
	"github.com/bigkaa/goartstore/qr-module/internal/storage/imagestore"
)

// memRepo — RecordRepository в памяти с семантикой SQL-реализации:
// каждая операция атомарна под mutex, как одиночный SQL-запрос.
type memRepo struct {
	mu      sync.Mutex
	records map[string]*model.Record
	// failNext — ошибка, которую вернёт следующий вызов любого метода
	failNext error
}

func newMemRepo() *memRepo {
	return &memRepo{records: make(map[string]*model.Record)}
}

func (r *memRepo) takeFailure() error {
	err := r.failNext
	r.failNext = nil
	return err
}

func clone(rec *model.Record) *model.Record {
	c := *rec
	return &c
}

func (r *memRepo) TryReserve(_ context.Context, rec *model.Record) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return false, err
	}
	if _, ok := r.records[rec.Fingerprint]; ok {
		return false, nil
	}
	now := time.Now()
	stored := &model.Record{
		Fingerprint: rec.Fingerprint,
		Status:      model.StatusPending,
		Content:     rec.Content,
		Options:     rec.Options,
		Attempts:    1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.records[rec.Fingerprint] = stored
	*rec = *clone(stored)
	return true, nil
}

// transition применяет изменение, если запись в статусе from.
func (r *memRepo) transition(fp string, from model.RecordStatus, apply func(*model.Record)) (*model.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return nil, err
	}
	rec, ok := r.records[fp]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if rec.Status != from {
		return nil, repository.ErrInvalidTransition
	}
	apply(rec)
	rec.UpdatedAt = time.Now()
	return clone(rec), nil
}

func (r *memRepo) MarkReady(_ context.Context, fp string, p repository.ReadyParams) (*model.Record, error) {
	return r.transition(fp, model.StatusPending, func(rec *model.Record) {
		rec.Status = model.StatusReady
		rec.StoragePath = &p.StoragePath
		rec.ContentType = &p.ContentType
		rec.Size = &p.Size
		rec.Checksum = &p.Checksum
		rec.ErrorDetail = nil
	})
}

func (r *memRepo) MarkFailed(_ context.Context, fp, detail string) (*model.Record, error) {
	return r.transition(fp, model.StatusPending, func(rec *model.Record) {
		rec.Status = model.StatusFailed
		rec.ErrorDetail = &detail
	})
}

func (r *memRepo) ResetFailed(_ context.Context, fp string) (*model.Record, error) {
	return r.transition(fp, model.StatusFailed, func(rec *model.Record) {
		rec.Status = model.StatusPending
		rec.ErrorDetail = nil
		rec.Attempts++
	})
}

func (r *memRepo) Get(_ context.Context, fp string) (*model.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return nil, err
	}
	rec, ok := r.records[fp]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(rec), nil
}

func (r *memRepo) ReclaimStale(_ context.Context, fp string, olderThan time.Duration) (*model.Record, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[fp]
	if !ok || rec.Status != model.StatusPending || !rec.UpdatedAt.Before(time.Now().Add(-olderThan)) {
		return nil, false, nil
	}
	rec.Attempts++
	rec.UpdatedAt = time.Now()
	return clone(rec), true, nil
}

func (r *memRepo) ListStalePending(_ context.Context, olderThan time.Duration, limit int) ([]*model.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*model.Record
	for _, rec := range r.records {
		if rec.Status == model.StatusPending && rec.UpdatedAt.Before(time.Now().Add(-olderThan)) && len(result) < limit {
			result = append(result, clone(rec))
		}
	}
	return result, nil
}

func (r *memRepo) ListReady(_ context.Context, afterFP string, limit int) ([]*model.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*model.Record
	for _, rec := range r.records {
		if rec.Status == model.StatusReady && rec.Fingerprint > afterFP {
			result = append(result, clone(rec))
		}
	}
	// Порядок по fingerprint, как ORDER BY в SQL
	for i := 1; i < len(result); i++ {
		for k := i; k > 0 && result[k].Fingerprint < result[k-1].Fingerprint; k-- {
			result[k], result[k-1] = result[k-1], result[k]
		}
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *memRepo) CountByStatus(_ context.Context) (map[model.RecordStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[model.RecordStatus]int{}
	for _, rec := range r.records {
		counts[rec.Status]++
	}
	return counts, nil
}

// put вставляет запись напрямую (например, зависший Pending).
func (r *memRepo) put(rec *model.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.Fingerprint] = clone(rec)
}

// countingRenderer считает вызовы Render и может задерживать их,
// чтобы конкурентные запросы застали запись в Pending.
type countingRenderer struct {
	inner Renderer
	delay time.Duration
	err   error
	calls atomic.Int32
}

func (c *countingRenderer) Render(content string, opts model.Options) (*model.Image, error) {
	c.calls.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.inner.Render(content, opts)
}

// countingStore считает успешные Put и может возвращать ошибку записи.
type countingStore struct {
	ImageStore
	putErr error
	puts   atomic.Int32
}

func (c *countingStore) Put(fp string, img *model.Image) (*imagestore.PutResult, error) {
	if c.putErr != nil {
		return nil, c.putErr
	}
	res, err := c.ImageStore.Put(fp, img)
	if err == nil {
		c.puts.Add(1)
	}
	return res, err
}

// testEnv — сервис генерации с реальным encoder и файловым хранилищем во временной директории.
type testEnv struct {
	svc      *GenerationService
	repo     *memRepo
	store    *countingStore
	disk     *imagestore.Store
	renderer *countingRenderer
}

func testConfig() GenerationConfig {
	return GenerationConfig{
		MaxContentLength:    2953,
		GenerationTimeout:   5 * time.Second,
		PendingPollInitial:  5 * time.Millisecond,
		PendingWaitMax:      3 * time.Second,
		StalePendingTimeout: 10 * time.Second,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, cfg GenerationConfig) *testEnv {
	t.Helper()
	disk, err := imagestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("imagestore.New: %v", err)
	}
	env := &testEnv{
		repo:     newMemRepo(),
		store:    &countingStore{ImageStore: disk},
		disk:     disk,
		renderer: &countingRenderer{inner: encoder.New(cfg.MaxContentLength)},
	}
	env.svc = NewGenerationService(env.repo, env.store, env.renderer, cfg, discardLogger())
	return env
}

var errBoom = errors.New("boom")
