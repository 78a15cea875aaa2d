// dephealth.go — мониторинг PostgreSQL через topologymetrics SDK.
// Единственная зависимость QR Module: SQL checker поверх общего pgxpool,
// critical. Каталог изображений проверяет /health/ready.
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// postgresDependency — имя зависимости в метриках app_dependency_*.
const postgresDependency = "postgresql"

// DephealthConfig — параметры мониторинга.
type DephealthConfig struct {
	ServiceID     string
	Group         string
	DB            *sql.DB // stdlib.OpenDBFromPool
	PostgresURL   string  // только для лейблов метрик
	CheckInterval time.Duration
	// Registerer — nil означает глобальный registry (/metrics)
	Registerer prometheus.Registerer
}

// DephealthService — периодическая проверка PostgreSQL.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга PostgreSQL.
func NewDephealthService(cfg DephealthConfig, logger *slog.Logger) (*DephealthService, error) {
	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
		dephealth.AddDependency(postgresDependency, dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(cfg.DB)),
			dephealth.FromURL(cfg.PostgresURL),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
		),
	}
	if cfg.Registerer != nil {
		opts = append(opts, dephealth.WithRegisterer(cfg.Registerer))
	}

	dh, err := dephealth.New(cfg.ServiceID, cfg.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг PostgreSQL запущен")
	return ds.dh.Start(ctx)
}

func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг PostgreSQL остановлен")
}

// PostgresHealthy возвращает результат последней проверки PostgreSQL.
// known = false, пока первая проверка не выполнена.
func (ds *DephealthService) PostgresHealthy() (healthy, known bool) {
	for key, ok := range ds.dh.Health() {
		if strings.HasPrefix(key, postgresDependency+":") {
			return ok, true
		}
	}
	return false, false
}
