// BusinessRepo encapsulates the queries against the business-owned tables
// (sales, stock, invoices, customers, shops), plus the Postgres statistics
// and migration queries, that the invariant, security and performance
// engines, the health scorer and the deployment gates need. The business
// domain itself — schema, migrations, write paths — is out of scope; the
// one write is DeleteOrphanedSaleItems, the orphaned-sale-item
// auto-correct. ForensicRepo also reads these tables for incident snapshots.
package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/retailops/controlplane/internal/platform/logger"
)

type NegativeStockRow struct {
	ID               string
	ShopID           string
	QuantityOnHand   int64
}

type SaleTotalMismatchRow struct {
	ID          string
	ShopID      string
	TotalAmount int64
	LineSum     int64
}

type PaymentMismatchRow struct {
	ID          string
	ShopID      string
	TotalAmount int64
	PaidAmount  int64
	CreditAmount int64
}

type DuplicateInvoiceRow struct {
	InvoiceNumber string
	Count         int64
}

type StockMovementMismatchRow struct {
	ID             string
	ShopID         string
	QuantityOnHand int64
	MovementSum    int64
}

type CreditLimitExceededRow struct {
	CustomerID       string
	OutstandingCredit int64
	CreditLimit      int64
}

type OrphanedSaleItemRow struct {
	ID     string
	SaleID string
}

type LargeTransactionRow struct {
	SaleID string
	ShopID string
	UserID string
	Amount int64
}

type RapidFireUserRow struct {
	UserID string
	Count  int64
}

type VoidSpikeShopRow struct {
	ShopID      string
	VoidedCount int64
	TotalCount  int64
}

// BusinessRepo is the single typed boundary for every SQL query the control
// plane issues against tables it does not own.
type BusinessRepo interface {
	NegativeStock(ctx context.Context) ([]NegativeStockRow, error)
	SaleTotalMismatches(ctx context.Context) ([]SaleTotalMismatchRow, error)
	PaymentMismatches(ctx context.Context) ([]PaymentMismatchRow, error)
	DuplicateInvoices(ctx context.Context) ([]DuplicateInvoiceRow, error)
	StockMovementMismatches(ctx context.Context) ([]StockMovementMismatchRow, error)
	CreditLimitExceeded(ctx context.Context) ([]CreditLimitExceededRow, error)
	OrphanedSaleItems(ctx context.Context) ([]OrphanedSaleItemRow, error)
	DeleteOrphanedSaleItems(ctx context.Context, ids []string) (int64, error)

	LargeTransactions(ctx context.Context, thresholdMinorUnits int64) ([]LargeTransactionRow, error)
	RapidFireSalesUsers(ctx context.Context, windowMinutes, minSales int) ([]RapidFireUserRow, error)
	VoidSpikeShops(ctx context.Context, minConfirmed int) ([]VoidSpikeShopRow, error)

	PendingMigrationsCount(ctx context.Context) (int64, error)
	SlowQueries(ctx context.Context, minMeanMs float64, minCalls int64) ([]SlowQueryRow, error)
	SeqScanHotTables(ctx context.Context, minSeqScans, minTuples int64) ([]SeqScanRow, error)
}

type SlowQueryRow struct {
	Query   string
	MeanMs  float64
	Calls   int64
}

type SeqScanRow struct {
	TableName     string
	SeqScans      int64
	SeqTupleRead  int64
	IndexScans    int64
}

type businessRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBusinessRepo(db *gorm.DB, baseLog *logger.Logger) BusinessRepo {
	return &businessRepo{db: db, log: baseLog.With("repo", "BusinessRepo")}
}

func (r *businessRepo) NegativeStock(ctx context.Context) ([]NegativeStockRow, error) {
	var rows []NegativeStockRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT id, shop_id, quantity_on_hand
		FROM stock_items
		WHERE quantity_on_hand < 0
	`).Scan(&rows).Error
	return rows, err
}

func (r *businessRepo) SaleTotalMismatches(ctx context.Context) ([]SaleTotalMismatchRow, error) {
	var rows []SaleTotalMismatchRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT s.id, s.shop_id, s.total_amount, COALESCE(SUM(si.line_total), 0) AS line_sum
		FROM sales s
		LEFT JOIN sale_items si ON si.sale_id = s.id
		WHERE s.status = 'confirmed'
		GROUP BY s.id, s.shop_id, s.total_amount
		HAVING ABS(s.total_amount - COALESCE(SUM(si.line_total), 0)) > 1
	`).Scan(&rows).Error
	return rows, err
}

func (r *businessRepo) PaymentMismatches(ctx context.Context) ([]PaymentMismatchRow, error) {
	var rows []PaymentMismatchRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT id, shop_id, total_amount, paid_amount, credit_amount
		FROM sales
		WHERE status = 'confirmed'
		AND ABS(total_amount - (paid_amount + credit_amount)) > 1
	`).Scan(&rows).Error
	return rows, err
}

func (r *businessRepo) DuplicateInvoices(ctx context.Context) ([]DuplicateInvoiceRow, error) {
	var rows []DuplicateInvoiceRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT invoice_number, COUNT(*) AS count
		FROM sales
		WHERE invoice_number IS NOT NULL
		GROUP BY invoice_number
		HAVING COUNT(*) > 1
	`).Scan(&rows).Error
	return rows, err
}

func (r *businessRepo) StockMovementMismatches(ctx context.Context) ([]StockMovementMismatchRow, error) {
	var rows []StockMovementMismatchRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT si.id, si.shop_id, si.quantity_on_hand, COALESCE(SUM(sm.delta), 0) AS movement_sum
		FROM stock_items si
		LEFT JOIN stock_movements sm ON sm.stock_item_id = si.id
		GROUP BY si.id, si.shop_id, si.quantity_on_hand
		HAVING si.quantity_on_hand != COALESCE(SUM(sm.delta), 0)
	`).Scan(&rows).Error
	return rows, err
}

func (r *businessRepo) CreditLimitExceeded(ctx context.Context) ([]CreditLimitExceededRow, error) {
	var rows []CreditLimitExceededRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT customer_id, outstanding_credit, credit_limit
		FROM customers
		WHERE credit_limit > 0
		AND outstanding_credit > credit_limit * 1.05
	`).Scan(&rows).Error
	return rows, err
}

func (r *businessRepo) OrphanedSaleItems(ctx context.Context) ([]OrphanedSaleItemRow, error) {
	var rows []OrphanedSaleItemRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT si.id, si.sale_id
		FROM sale_items si
		LEFT JOIN sales s ON s.id = si.sale_id
		WHERE s.id IS NULL
	`).Scan(&rows).Error
	return rows, err
}

func (r *businessRepo) DeleteOrphanedSaleItems(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Exec(`DELETE FROM sale_items WHERE id IN ?`, ids)
	return res.RowsAffected, res.Error
}

func (r *businessRepo) LargeTransactions(ctx context.Context, thresholdMinorUnits int64) ([]LargeTransactionRow, error) {
	var rows []LargeTransactionRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT id AS sale_id, shop_id, user_id, total_amount AS amount
		FROM sales
		WHERE status = 'confirmed'
		AND total_amount > ?
		AND created_at > NOW() - INTERVAL '24 hours'
	`, thresholdMinorUnits).Scan(&rows).Error
	return rows, err
}

func (r *businessRepo) RapidFireSalesUsers(ctx context.Context, windowMinutes, minSales int) ([]RapidFireUserRow, error) {
	var rows []RapidFireUserRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT user_id, COUNT(*) AS count
		FROM sales
		WHERE status = 'confirmed'
		AND created_at > NOW() - (? || ' minutes')::interval
		GROUP BY user_id
		HAVING COUNT(*) > ?
	`, windowMinutes, minSales).Scan(&rows).Error
	return rows, err
}

func (r *businessRepo) VoidSpikeShops(ctx context.Context, minConfirmed int) ([]VoidSpikeShopRow, error) {
	var rows []VoidSpikeShopRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT shop_id,
		       SUM(CASE WHEN status = 'voided' THEN 1 ELSE 0 END) AS voided_count,
		       COUNT(*) AS total_count
		FROM sales
		WHERE created_at > NOW() - INTERVAL '1 hour'
		GROUP BY shop_id
		HAVING COUNT(*) >= ?
		AND SUM(CASE WHEN status = 'voided' THEN 1 ELSE 0 END) > COUNT(*) * 0.10
	`, minConfirmed).Scan(&rows).Error
	return rows, err
}

func (r *businessRepo) PendingMigrationsCount(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Raw(`
		SELECT COUNT(*) FROM schema_migrations WHERE applied_at IS NULL
	`).Scan(&n).Error
	return n, err
}

func (r *businessRepo) SlowQueries(ctx context.Context, minMeanMs float64, minCalls int64) ([]SlowQueryRow, error) {
	var rows []SlowQueryRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT query, mean_exec_time AS mean_ms, calls
		FROM pg_stat_statements
		WHERE mean_exec_time > ? AND calls > ?
		ORDER BY mean_exec_time DESC
		LIMIT 20
	`, minMeanMs, minCalls).Scan(&rows).Error
	return rows, err
}

func (r *businessRepo) SeqScanHotTables(ctx context.Context, minSeqScans, minTuples int64) ([]SeqScanRow, error) {
	var rows []SeqScanRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT relname AS table_name, seq_scan AS seq_scans, seq_tup_read AS seq_tuple_read, idx_scan AS index_scans
		FROM pg_stat_user_tables
		WHERE seq_scan > ? AND seq_tup_read > ?
		ORDER BY seq_tup_read DESC
		LIMIT 20
	`, minSeqScans, minTuples).Scan(&rows).Error
	return rows, err
}
