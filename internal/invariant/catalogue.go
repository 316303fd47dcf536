// Package invariant runs the fixed catalogue of integrity checks, feeds
// violations into the incident manager, and computes the composite drift
// score. The catalogue is modeled as a registered slice of Invariant
// implementations rather than an array of records carrying closures, so
// weights stay declarative in a separate map keyed by Name.
package invariant

import (
	"context"

	ivtypes "github.com/retailops/controlplane/internal/invariant/types"
	"github.com/retailops/controlplane/internal/models"
)

// Invariant is one catalogue entry. AutoCorrect is only invoked when
// SafeToAutoCorrect is true and Check returned at least one violation.
type Invariant interface {
	Name() string
	Priority() models.Priority
	SafeToAutoCorrect() bool
	Check(ctx context.Context) ([]ivtypes.ViolationRecord, error)
	AutoCorrect(ctx context.Context, violations []ivtypes.ViolationRecord) error
}

// Weights drive the drift score deduction; default is 5 for any invariant
// not listed here.
var Weights = map[string]float64{
	"NO_NEGATIVE_STOCK":               25,
	"SALE_TOTAL_MATCHES_LINE_ITEMS":   20,
	"PAYMENT_SUM_MATCHES_SALE_TOTAL":  20,
	"NO_DUPLICATE_INVOICES":           15,
	"STOCK_MOVEMENT_BALANCE":          10,
	"CREDIT_LIMIT_NOT_EXCEEDED":       7,
	"NO_ORPHANED_SALE_ITEMS":          3,
}

const defaultWeight = 5

func weightFor(name string) float64 {
	if w, ok := Weights[name]; ok {
		return w
	}
	return defaultWeight
}
