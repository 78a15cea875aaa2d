// cache.go — LRU-кэш прочитанных изображений с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
// Объект под fingerprint записывается один раз и не меняется,
// поэтому кэш байтов не может отдать устаревшее содержимое.
package imagestore

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/qr-module/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qr_image_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш изображений.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qr_image_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша изображений.",
	})
)

// Cached — Store с per-process кэшем чтения.
// Кэш не участвует в координации между воркерами: Exists и Put
// всегда обращаются к файловой системе.
type Cached struct {
	*Store
	cache *expirable.LRU[string, *model.Image]
}

// NewCached создаёт кэширующую обёртку над store.
// maxSize — максимальное количество изображений в кэше.
// ttl — время жизни записи после добавления.
func NewCached(store *Store, maxSize int, ttl time.Duration) *Cached {
	return &Cached{
		Store: store,
		cache: expirable.NewLRU[string, *model.Image](maxSize, nil, ttl),
	}
}

// Get возвращает изображение из кэша или читает его с диска.
func (c *Cached) Get(fp string) (*model.Image, error) {
	if img, ok := c.cache.Get(fp); ok {
		cacheHitsTotal.Inc()
		return img, nil
	}
	cacheMissesTotal.Inc()

	img, err := c.Store.Get(fp)
	if err != nil {
		return nil, err
	}
	c.cache.Add(fp, img)
	return img, nil
}

// Put записывает изображение и при успехе кладёт его в кэш.
func (c *Cached) Put(fp string, img *model.Image) (*PutResult, error) {
	res, err := c.Store.Put(fp, img)
	if err != nil {
		return nil, err
	}
	c.cache.Add(fp, img)
	return res, nil
}

// Len возвращает количество изображений в кэше.
func (c *Cached) Len() int {
	return c.cache.Len()
}
