// Package oracle drives the external hash-chain verifier.
//
// The provider's chain is proprietary: round N's seed cannot be derived
// locally from round N+1. The only way to walk it is the verifier page,
// which computes preceding (hash, outcome) pairs in the browser after a
// hash is submitted. Session automates that page; Walker is the narrow
// interface the reconciler depends on so tests never need a browser.
package oracle

import (
	"context"
	"errors"
	"time"
)

// ErrOracleTimeout is returned alongside partial rows when the verifier did
// not produce the expected count within the attempt ceiling. Non-fatal:
// callers proceed with what arrived.
var ErrOracleTimeout = errors.New("oracle timed out before producing all rows")

// Pair is one (hash, outcome) row read back from the verifier, ordered from
// the submitted hash backward along the chain.
type Pair struct {
	Hash    string
	Outcome float64
}

// Walker walks the provider's hash chain backward from a known hash.
type Walker interface {
	// Walk submits startHash and polls until count rows are available or
	// the attempt ceiling is hit. Returns the rows produced, possibly
	// fewer than count together with ErrOracleTimeout.
	Walk(ctx context.Context, startHash string, count int) ([]Pair, error)
}

// Config holds verifier session settings.
type Config struct {
	URL          string        `yaml:"url"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxAttempts  int           `yaml:"max_attempts"`
	CaptureDir   string        `yaml:"capture_dir"` // diagnostic screenshots on timeout
	Headless     bool          `yaml:"headless"`
}
