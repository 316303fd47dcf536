package security

import (
	"context"

	"github.com/retailops/controlplane/internal/platform/logger"
	"github.com/retailops/controlplane/internal/repos"
)

const defaultRateLimit = 100

// Engine is the single object the request middleware and the cron job both
// depend on: in-process rate limiting and brute-force tracking, backed by
// the persistent block store for cross-process/cross-restart bans.
type Engine struct {
	Limiter     *RateLimiter
	BruteForce  *BruteForceDetector
	Scanner     *Scanner
	Verifier    *AuditVerifier
	blocks      repos.SecurityBlockRepo
	log         *logger.Logger
}

func NewEngine(limit int, scanner *Scanner, verifier *AuditVerifier, blocks repos.SecurityBlockRepo, log *logger.Logger) *Engine {
	if limit <= 0 {
		limit = defaultRateLimit
	}
	return &Engine{
		Limiter:    NewRateLimiter(limit),
		BruteForce: NewBruteForceDetector(),
		Scanner:    scanner,
		Verifier:   verifier,
		blocks:     blocks,
		log:        log.With("component", "SecurityEngine"),
	}
}

// AllowRequest runs the rate limiter, then the persistent block check, for
// the given ip and (if present) user id. Persistent block checks always run
// even when the rate limiter allows the request.
func (e *Engine) AllowRequest(ctx context.Context, ip, userID string) (rateLimited bool, blocked bool, err error) {
	if !e.Limiter.Allow("ip:" + ip) {
		return true, false, nil
	}
	ipBlocked, err := e.blocks.IsBlocked(ctx, ip)
	if err != nil {
		return false, false, err
	}
	if ipBlocked {
		return false, true, nil
	}
	if userID != "" {
		userBlocked, err := e.blocks.IsBlocked(ctx, userID)
		if err != nil {
			return false, false, err
		}
		if userBlocked {
			return false, true, nil
		}
	}
	return false, false, nil
}

// RunCycle is invoked by the cron scheduler: pattern scan then audit verify.
func (e *Engine) RunCycle(ctx context.Context) error {
	if err := e.Scanner.RunCycle(ctx); err != nil {
		e.log.Error("scanner cycle failed", "error", err)
	}
	if _, err := e.Verifier.Verify(ctx); err != nil {
		e.log.Error("audit verify failed", "error", err)
	}
	return nil
}

// CleanupRateLimiter removes idle rate-limiter windows; run on its own,
// tighter cadence than RunCycle.
func (e *Engine) CleanupRateLimiter() int {
	return e.Limiter.Cleanup()
}
