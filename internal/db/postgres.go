// Package db wires the gorm/postgres connection the control plane persists
// its own tables through, and auto-migrates exactly those tables. The
// business tables (sales, inventory, customers, shops) are owned by the
// application this control plane rides alongside; it reads them through
// repos.BusinessRepo and repos.ForensicRepo, and its one write to them is
// the orphaned-sale-item auto-correct (BusinessRepo.DeleteOrphanedSaleItems).
package db

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/retailops/controlplane/internal/config"
	"github.com/retailops/controlplane/internal/models"
	"github.com/retailops/controlplane/internal/platform/logger"
)

type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(cfg config.Config, log *logger.Logger) (*Service, error) {
	dsn := cfg.DatabaseURL
	if dsn == "" {
		dsn = "host=127.0.0.1 user=postgres password=postgres dbname=controlplane port=5432 sslmode=disable"
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return &Service{db: gdb, log: log.With("component", "PostgresService")}, nil
}

func (s *Service) DB() *gorm.DB { return s.db }

// AutoMigrateAll creates/updates only the control-plane-owned tables.
func (s *Service) AutoMigrateAll() error {
	return s.db.AutoMigrate(
		&models.Incident{},
		&models.InvariantViolation{},
		&models.DriftScore{},
		&models.HealthScore{},
		&models.SafeModeState{},
		&models.IdempotencyRecord{},
		&models.SecurityEvent{},
		&models.SecurityBlock{},
		&models.AuditChainEntry{},
		&models.PerfObservation{},
		&models.BackupValidation{},
		&models.DeploymentGateRun{},
		&models.ExecutiveReport{},
	)
}

// Ping round-trips a trivial query so health handlers can distinguish a
// degraded dependency from a stuck process.
func (s *Service) Ping() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// ConnectionStats reports the pool snapshot the performance engine uses to
// compute saturation.
func (s *Service) ConnectionStats() (active, idle, max int, err error) {
	sqlDB, err := s.db.DB()
	if err != nil {
		return 0, 0, 0, err
	}
	st := sqlDB.Stats()
	return st.InUse, st.Idle, st.MaxOpenConnections, nil
}
