package security

import (
	"context"
	"fmt"
	"time"

	"github.com/retailops/controlplane/internal/incident"
	"github.com/retailops/controlplane/internal/models"
	"github.com/retailops/controlplane/internal/platform/logger"
	"github.com/retailops/controlplane/internal/repos"
)

const (
	largeTransactionThresholdMinorUnits = 1_000_000 // $10,000.00 in cents
	rapidFireWindowMinutes              = 5
	rapidFireMinSales                   = 20
	rapidFireBlockFor                   = 60 * time.Minute
	voidSpikeMinConfirmed               = 5
)

// Scanner issues the three SQL-backed analytic queries the pattern scanner
// runs on a cron cadence and turns hits into security events, blocks, and
// incidents.
type Scanner struct {
	business  repos.BusinessRepo
	events    repos.SecurityEventRepo
	blocks    repos.SecurityBlockRepo
	incidents *incident.Manager
	log       *logger.Logger
}

func NewScanner(business repos.BusinessRepo, events repos.SecurityEventRepo, blocks repos.SecurityBlockRepo, incidents *incident.Manager, log *logger.Logger) *Scanner {
	return &Scanner{business: business, events: events, blocks: blocks, incidents: incidents, log: log.With("component", "SecurityScanner")}
}

func (s *Scanner) RunCycle(ctx context.Context) error {
	if err := s.scanLargeTransactions(ctx); err != nil {
		s.log.Error("large transaction scan failed", "error", err)
	}
	if err := s.scanRapidFireSales(ctx); err != nil {
		s.log.Error("rapid fire sales scan failed", "error", err)
	}
	if err := s.scanVoidSpikes(ctx); err != nil {
		s.log.Error("void spike scan failed", "error", err)
	}
	return nil
}

func (s *Scanner) scanLargeTransactions(ctx context.Context) error {
	rows, err := s.business.LargeTransactions(ctx, largeTransactionThresholdMinorUnits)
	if err != nil {
		return err
	}
	for _, row := range rows {
		s.recordEvent(ctx, "LARGE_TRANSACTION", models.SeverityMedium, row.UserID, map[string]any{
			"saleId": row.SaleID, "shopId": row.ShopID, "amount": row.Amount,
		}, false)
	}
	return nil
}

func (s *Scanner) scanRapidFireSales(ctx context.Context) error {
	rows, err := s.business.RapidFireSalesUsers(ctx, rapidFireWindowMinutes, rapidFireMinSales)
	if err != nil {
		return err
	}
	for _, row := range rows {
		s.recordEvent(ctx, "RAPID_FIRE_SALES", models.SeverityHigh, row.UserID, map[string]any{
			"count": row.Count, "windowMinutes": rapidFireWindowMinutes,
		}, true)
		if err := s.blocks.Upsert(ctx, row.UserID, models.TargetUserID, "RAPID_FIRE_SALES auto-block", time.Now().UTC().Add(rapidFireBlockFor)); err != nil {
			s.log.Error("auto-block rapid-fire user failed", "userId", row.UserID, "error", err)
		}
	}
	return nil
}

func (s *Scanner) scanVoidSpikes(ctx context.Context) error {
	rows, err := s.business.VoidSpikeShops(ctx, voidSpikeMinConfirmed)
	if err != nil {
		return err
	}
	for _, row := range rows {
		s.recordEvent(ctx, "VOID_SPIKE", models.SeverityHigh, "", map[string]any{
			"shopId": row.ShopID, "voidedCount": row.VoidedCount, "totalCount": row.TotalCount,
		}, false)
		_, err := s.incidents.CreateIncident(ctx, incident.CreateInput{
			Priority:      models.PriorityP2,
			Title:         fmt.Sprintf("Void spike in shop %s", row.ShopID),
			InvariantName: "VOID_SPIKE",
			Details: map[string]any{
				"shopId": row.ShopID, "voidedCount": row.VoidedCount, "totalCount": row.TotalCount,
			},
		})
		if err != nil {
			s.log.Error("void spike incident creation failed", "shopId", row.ShopID, "error", err)
		}
	}
	return nil
}

func (s *Scanner) recordEvent(ctx context.Context, eventType string, severity models.Severity, userID string, details map[string]any, autoBlocked bool) {
	ev := &models.SecurityEvent{
		EventType:   eventType,
		UserID:      userID,
		Details:     repos.JSONMap(details),
		Severity:    severity,
		AutoBlocked: autoBlocked,
	}
	if err := s.events.Create(ctx, ev); err != nil {
		s.log.Error("security event persist failed", "eventType", eventType, "error", err)
	}
}
