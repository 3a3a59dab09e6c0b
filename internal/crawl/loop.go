package crawl

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/basislager/tickerchronik/internal/ticker"
)

// RunAll executes one pass over every source in order. A failing
// source does not stop the pass; its report carries the failure.
func (r *Runner) RunAll(ctx context.Context, sources []ticker.Source) []ticker.RunReport {
	reports := make([]ticker.RunReport, 0, len(sources))
	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		report, err := r.Run(ctx, src)
		if err != nil {
			r.logger.Warn("source run failed, continuing",
				zap.String("source", src.Key),
				zap.Error(err),
			)
		}
		reports = append(reports, report)
	}
	return reports
}

// Loop runs full passes on a fixed interval until the context is
// canceled. observe, when non-nil, receives every report.
func (r *Runner) Loop(ctx context.Context, sources []ticker.Source, interval time.Duration, observe func(ticker.RunReport)) error {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticks := time.NewTicker(interval)
	defer ticks.Stop()

	for {
		for _, report := range r.RunAll(ctx, sources) {
			if observe != nil {
				observe(report)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticks.C:
		}
	}
}
