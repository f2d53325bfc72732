package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"github.com/vuchq/crashwatch/internal/capture/metrics"
)

// Session implements Walker by driving the rendered verifier page.
// Each Walk opens a fresh tab; the verifier keeps per-page state, so
// sessions are not reused across calls.
type Session struct {
	cfg Config
	log *slog.Logger
}

// NewSession creates a browser-backed oracle session.
func NewSession(cfg Config, log *slog.Logger) *Session {
	return &Session{cfg: cfg, log: log}
}

// readRowsJS pulls the result table into [{hash, outcome}] objects.
// The verifier appends one row per computed chain step.
const readRowsJS = `
	Array.from(document.querySelectorAll('#results tbody tr')).map(tr => ({
		hash: tr.querySelector('td.hash').textContent.trim(),
		outcome: tr.querySelector('td.crash').textContent.trim()
	}))
`

type renderedRow struct {
	Hash    string `json:"hash"`
	Outcome string `json:"outcome"`
}

// Walk submits (startHash, count) to the verifier and polls the rendered
// result collection until it has count rows or the attempt ceiling is hit.
func (s *Session) Walk(ctx context.Context, startHash string, count int) ([]Pair, error) {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	err := chromedp.Run(tabCtx,
		chromedp.Navigate(s.cfg.URL),
		chromedp.WaitVisible(`#hash-input`, chromedp.ByID),
		chromedp.SetValue(`#hash-input`, startHash, chromedp.ByID),
		chromedp.SetValue(`#amount-input`, strconv.Itoa(count), chromedp.ByID),
		chromedp.Click(`#verify-btn`, chromedp.ByID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to submit hash to verifier: %w", err)
	}

	// The verifier computes rows asynchronously in the page; poll until the
	// collection holds the expected count or attempts run out.
	var rows []renderedRow
	for attempt := 0; attempt < s.cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.cfg.PollInterval):
		}

		if err := chromedp.Run(tabCtx, chromedp.Evaluate(readRowsJS, &rows)); err != nil {
			s.log.Debug("oracle poll failed", "attempt", attempt, "error", err)
			continue
		}
		s.log.Debug("oracle poll", "attempt", attempt, "rows", len(rows), "want", count)
		if len(rows) >= count {
			metrics.OraclePollAttempts.Observe(float64(attempt + 1))
			return s.parseRows(rows[:count]), nil
		}
	}

	metrics.OraclePollAttempts.Observe(float64(s.cfg.MaxAttempts))
	s.capture(tabCtx, startHash)
	return s.parseRows(rows), fmt.Errorf(
		"%w: got %d of %d rows after %d attempts",
		ErrOracleTimeout, len(rows), count, s.cfg.MaxAttempts,
	)
}

func (s *Session) parseRows(rows []renderedRow) []Pair {
	pairs := make([]Pair, 0, len(rows))
	for _, row := range rows {
		// Rendered as "2.35x"
		text := strings.TrimSuffix(strings.TrimSpace(row.Outcome), "x")
		outcome, err := strconv.ParseFloat(text, 64)
		if err != nil {
			s.log.Warn("unparseable outcome in verifier row", "hash", row.Hash, "text", row.Outcome)
			continue
		}
		pairs = append(pairs, Pair{Hash: row.Hash, Outcome: outcome})
	}
	return pairs
}

// capture writes a diagnostic screenshot so a stuck verifier run can be
// inspected after the fact.
func (s *Session) capture(tabCtx context.Context, startHash string) {
	if s.cfg.CaptureDir == "" {
		return
	}
	var buf []byte
	if err := chromedp.Run(tabCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		s.log.Warn("failed to capture verifier screenshot", "error", err)
		return
	}

	name := fmt.Sprintf("oracle_%s_%s.png", shortHash(startHash), uuid.NewString())
	path := filepath.Join(s.cfg.CaptureDir, name)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		s.log.Warn("failed to write verifier screenshot", "path", path, "error", err)
		return
	}
	s.log.Info("saved verifier diagnostic capture", "path", path)
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
