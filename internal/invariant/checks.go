package invariant

import (
	"context"

	ivtypes "github.com/retailops/controlplane/internal/invariant/types"
	"github.com/retailops/controlplane/internal/models"
	"github.com/retailops/controlplane/internal/repos"
)

// noAutoCorrect is embedded by checks that never attempt repair.
type noAutoCorrect struct{}

func (noAutoCorrect) AutoCorrect(ctx context.Context, violations []ivtypes.ViolationRecord) error {
	return nil
}

type negativeStockCheck struct {
	noAutoCorrect
	repo repos.BusinessRepo
}

func NewNegativeStockCheck(repo repos.BusinessRepo) Invariant { return &negativeStockCheck{repo: repo} }
func (c *negativeStockCheck) Name() string                   { return "NO_NEGATIVE_STOCK" }
func (c *negativeStockCheck) Priority() models.Priority      { return models.PriorityP1 }
func (c *negativeStockCheck) SafeToAutoCorrect() bool         { return false }
func (c *negativeStockCheck) Check(ctx context.Context) ([]ivtypes.ViolationRecord, error) {
	rows, err := c.repo.NegativeStock(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ivtypes.ViolationRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, ivtypes.ViolationRecord{
			EntityID:   row.ID,
			EntityType: "stock_item",
			ShopID:     row.ShopID,
			Detail:     map[string]any{"quantityOnHand": row.QuantityOnHand},
		})
	}
	return out, nil
}

type saleTotalCheck struct {
	noAutoCorrect
	repo repos.BusinessRepo
}

func NewSaleTotalCheck(repo repos.BusinessRepo) Invariant { return &saleTotalCheck{repo: repo} }
func (c *saleTotalCheck) Name() string                   { return "SALE_TOTAL_MATCHES_LINE_ITEMS" }
func (c *saleTotalCheck) Priority() models.Priority      { return models.PriorityP1 }
func (c *saleTotalCheck) SafeToAutoCorrect() bool        { return false }
func (c *saleTotalCheck) Check(ctx context.Context) ([]ivtypes.ViolationRecord, error) {
	rows, err := c.repo.SaleTotalMismatches(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ivtypes.ViolationRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, ivtypes.ViolationRecord{
			EntityID:   row.ID,
			EntityType: "sale",
			ShopID:     row.ShopID,
			Detail:     map[string]any{"totalAmount": row.TotalAmount, "lineSum": row.LineSum},
		})
	}
	return out, nil
}

type paymentSumCheck struct {
	noAutoCorrect
	repo repos.BusinessRepo
}

func NewPaymentSumCheck(repo repos.BusinessRepo) Invariant { return &paymentSumCheck{repo: repo} }
func (c *paymentSumCheck) Name() string                   { return "PAYMENT_SUM_MATCHES_SALE_TOTAL" }
func (c *paymentSumCheck) Priority() models.Priority      { return models.PriorityP1 }
func (c *paymentSumCheck) SafeToAutoCorrect() bool        { return false }
func (c *paymentSumCheck) Check(ctx context.Context) ([]ivtypes.ViolationRecord, error) {
	rows, err := c.repo.PaymentMismatches(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ivtypes.ViolationRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, ivtypes.ViolationRecord{
			EntityID:   row.ID,
			EntityType: "sale",
			ShopID:     row.ShopID,
			Detail: map[string]any{
				"totalAmount":  row.TotalAmount,
				"paidAmount":   row.PaidAmount,
				"creditAmount": row.CreditAmount,
			},
		})
	}
	return out, nil
}

type duplicateInvoiceCheck struct {
	noAutoCorrect
	repo repos.BusinessRepo
}

func NewDuplicateInvoiceCheck(repo repos.BusinessRepo) Invariant {
	return &duplicateInvoiceCheck{repo: repo}
}
func (c *duplicateInvoiceCheck) Name() string              { return "NO_DUPLICATE_INVOICES" }
func (c *duplicateInvoiceCheck) Priority() models.Priority { return models.PriorityP1 }
func (c *duplicateInvoiceCheck) SafeToAutoCorrect() bool   { return false }
func (c *duplicateInvoiceCheck) Check(ctx context.Context) ([]ivtypes.ViolationRecord, error) {
	rows, err := c.repo.DuplicateInvoices(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ivtypes.ViolationRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, ivtypes.ViolationRecord{
			EntityID:   row.InvoiceNumber,
			EntityType: "invoice_number",
			Detail:     map[string]any{"occurrences": row.Count},
		})
	}
	return out, nil
}

type stockMovementCheck struct {
	noAutoCorrect
	repo repos.BusinessRepo
}

func NewStockMovementCheck(repo repos.BusinessRepo) Invariant { return &stockMovementCheck{repo: repo} }
func (c *stockMovementCheck) Name() string                   { return "STOCK_MOVEMENT_BALANCE" }
func (c *stockMovementCheck) Priority() models.Priority      { return models.PriorityP2 }
func (c *stockMovementCheck) SafeToAutoCorrect() bool        { return false }
func (c *stockMovementCheck) Check(ctx context.Context) ([]ivtypes.ViolationRecord, error) {
	rows, err := c.repo.StockMovementMismatches(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ivtypes.ViolationRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, ivtypes.ViolationRecord{
			EntityID:   row.ID,
			EntityType: "stock_item",
			ShopID:     row.ShopID,
			Detail:     map[string]any{"quantityOnHand": row.QuantityOnHand, "movementSum": row.MovementSum},
		})
	}
	return out, nil
}

type creditLimitCheck struct {
	noAutoCorrect
	repo repos.BusinessRepo
}

func NewCreditLimitCheck(repo repos.BusinessRepo) Invariant { return &creditLimitCheck{repo: repo} }
func (c *creditLimitCheck) Name() string                   { return "CREDIT_LIMIT_NOT_EXCEEDED" }
func (c *creditLimitCheck) Priority() models.Priority      { return models.PriorityP2 }
func (c *creditLimitCheck) SafeToAutoCorrect() bool        { return false }
func (c *creditLimitCheck) Check(ctx context.Context) ([]ivtypes.ViolationRecord, error) {
	rows, err := c.repo.CreditLimitExceeded(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ivtypes.ViolationRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, ivtypes.ViolationRecord{
			EntityID:   row.CustomerID,
			EntityType: "customer",
			Detail:     map[string]any{"outstandingCredit": row.OutstandingCredit, "creditLimit": row.CreditLimit},
		})
	}
	return out, nil
}

// orphanedSaleItemCheck is the one catalogue entry classified safe to
// auto-correct: it deletes the dangling rows it finds.
type orphanedSaleItemCheck struct {
	repo repos.BusinessRepo
}

func NewOrphanedSaleItemCheck(repo repos.BusinessRepo) Invariant {
	return &orphanedSaleItemCheck{repo: repo}
}
func (c *orphanedSaleItemCheck) Name() string              { return "NO_ORPHANED_SALE_ITEMS" }
func (c *orphanedSaleItemCheck) Priority() models.Priority { return models.PriorityP3 }
func (c *orphanedSaleItemCheck) SafeToAutoCorrect() bool   { return true }
func (c *orphanedSaleItemCheck) Check(ctx context.Context) ([]ivtypes.ViolationRecord, error) {
	rows, err := c.repo.OrphanedSaleItems(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ivtypes.ViolationRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, ivtypes.ViolationRecord{
			EntityID:   row.ID,
			EntityType: "sale_item",
			Detail:     map[string]any{"saleId": row.SaleID},
		})
	}
	return out, nil
}
func (c *orphanedSaleItemCheck) AutoCorrect(ctx context.Context, violations []ivtypes.ViolationRecord) error {
	ids := make([]string, 0, len(violations))
	for _, v := range violations {
		ids = append(ids, v.EntityID)
	}
	_, err := c.repo.DeleteOrphanedSaleItems(ctx, ids)
	return err
}

// DefaultCatalogue registers the seven required checks in a fixed order so
// drift score and incident assignment are deterministic across cycles.
func DefaultCatalogue(repo repos.BusinessRepo) []Invariant {
	return []Invariant{
		NewNegativeStockCheck(repo),
		NewSaleTotalCheck(repo),
		NewPaymentSumCheck(repo),
		NewDuplicateInvoiceCheck(repo),
		NewStockMovementCheck(repo),
		NewCreditLimitCheck(repo),
		NewOrphanedSaleItemCheck(repo),
	}
}
