package repos

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"gorm.io/gorm"

	"github.com/retailops/controlplane/internal/platform/logger"
)

// ForensicRepo captures the diagnostic snapshot attached to every incident
// at creation time. It reads the business tables (owned by the application
// this control plane rides alongside) read-only, and never fails the
// incident write if a query errors — Snapshot returns
// {"error": "snapshot_failed"} instead (a failed active-connection count
// is reported as -1).
type ForensicRepo interface {
	Snapshot(ctx context.Context, startedAt time.Time) map[string]any
}

type forensicRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewForensicRepo(db *gorm.DB, baseLog *logger.Logger) ForensicRepo {
	return &forensicRepo{db: db, log: baseLog.With("repo", "ForensicRepo")}
}

func (r *forensicRepo) Snapshot(ctx context.Context, startedAt time.Time) map[string]any {
	negativeStock, err := r.count(ctx, "SELECT COUNT(*) FROM stock_items WHERE quantity_on_hand < 0")
	if err != nil {
		r.log.Warn("forensic snapshot: negative stock query failed", "error", err)
		return map[string]any{"error": "snapshot_failed"}
	}
	paymentGap, err := r.count(ctx, `
		SELECT COUNT(*) FROM sales
		WHERE status = 'confirmed'
		AND ABS(total_amount - (paid_amount + credit_amount)) > 1
	`)
	if err != nil {
		r.log.Warn("forensic snapshot: payment gap query failed", "error", err)
		return map[string]any{"error": "snapshot_failed"}
	}
	activeConns, err := r.activeConnections(ctx)
	if err != nil {
		r.log.Warn("forensic snapshot: active connections query failed", "error", err)
		activeConns = -1
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return map[string]any{
		"negativeStockRows":   negativeStock,
		"paymentGapSales":     paymentGap,
		"activeDbConnections": activeConns,
		"processHeapMb":       float64(mem.HeapAlloc) / (1024 * 1024),
		"uptimeSeconds":       time.Since(startedAt).Seconds(),
	}
}

func (r *forensicRepo) count(ctx context.Context, query string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Raw(query).Scan(&n).Error
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *forensicRepo) activeConnections(ctx context.Context) (int64, error) {
	var n sql.NullInt64
	err := r.db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM pg_stat_activity WHERE state = 'active'").
		Scan(&n).Error
	if err != nil {
		return 0, err
	}
	if !n.Valid {
		return 0, nil
	}
	return n.Int64, nil
}
