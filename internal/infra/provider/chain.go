package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vuchq/crashwatch/internal/capture/metrics"
)

// Chain tries an ordered list of strategies until one returns a non-empty,
// well-formed page. The order encodes fidelity: the authenticated API first,
// the public script endpoint as degraded fallback.
type Chain struct {
	strategies []Strategy
	log        *slog.Logger
}

// NewChain creates a fallback chain over the given strategies, in priority order.
func NewChain(log *slog.Logger, strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies, log: log}
}

// Strategies returns the chain members in priority order.
func (c *Chain) Strategies() []Strategy {
	return c.strategies
}

// FetchPage tries each strategy in order. The first non-empty, well-formed
// page wins. When every strategy fails the last error is returned, wrapped
// so callers can still classify it.
func (c *Chain) FetchPage(ctx context.Context, page, size int) (*Page, error) {
	var lastErr error
	for _, s := range c.strategies {
		result, err := s.FetchPage(ctx, page, size)
		if err != nil {
			c.log.Debug("strategy failed", "strategy", s.Name(), "page", page, "error", err)
			metrics.FetchErrors.WithLabelValues(s.Name()).Inc()
			lastErr = err
			continue
		}
		if len(result.Entries) == 0 {
			c.log.Debug("strategy returned empty page", "strategy", s.Name(), "page", page)
			lastErr = fmt.Errorf("%w: strategy %s page %d", ErrEmptyPage, s.Name(), page)
			continue
		}
		return result, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: no strategies configured", ErrTransient)
	}
	return nil, fmt.Errorf("all strategies failed for page %d: %w", page, lastErr)
}
