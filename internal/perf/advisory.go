package perf

import (
	"context"

	"github.com/retailops/controlplane/internal/repos"
)

const (
	slowQueryMinMeanMs = 500.0
	slowQueryMinCalls  = 10

	seqScanMinScans  = 100
	seqScanMinTuples = 10_000
)

// Advisory holds the slow-query and sequential-scan signals the engine
// attaches to a perf observation. The engine never issues DDL — these are
// read-only hints for a human or a separate tuning process.
type Advisory struct {
	SlowQueries []repos.SlowQueryRow
	HotTables   []repos.SeqScanRow
}

func CollectAdvisory(ctx context.Context, business repos.BusinessRepo) (Advisory, error) {
	slow, err := business.SlowQueries(ctx, slowQueryMinMeanMs, slowQueryMinCalls)
	if err != nil {
		return Advisory{}, err
	}
	hot, err := business.SeqScanHotTables(ctx, seqScanMinScans, seqScanMinTuples)
	if err != nil {
		return Advisory{}, err
	}
	filtered := make([]repos.SeqScanRow, 0, len(hot))
	for _, t := range hot {
		if float64(t.IndexScans) < 0.10*float64(t.SeqScans) {
			filtered = append(filtered, t)
		}
	}
	return Advisory{SlowQueries: slow, HotTables: filtered}, nil
}
