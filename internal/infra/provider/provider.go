// Package provider implements the game provider feed client.
//
// This package contains:
//   - Strategy interface: one way of fetching a page of rounds
//   - APIStrategy: authenticated history API (preferred)
//   - ScriptStrategy: public script endpoint (lower fidelity fallback)
//   - Chain: ordered strategy fallback
//   - Normalize: collapses both historical payload shapes into one Page
package provider

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTransient marks network or provider-side hiccups. Callers retry
	// with backoff; never fatal to the long-running loops.
	ErrTransient = errors.New("transient provider error")

	// ErrMalformed marks an unexpected payload shape. Loops treat the
	// page as empty and continue.
	ErrMalformed = errors.New("malformed provider response")

	// ErrEmptyPage is returned by a strategy whose response decoded fine
	// but carried no rounds; the chain falls through to the next strategy.
	ErrEmptyPage = errors.New("empty page")
)

// Config holds provider feed settings.
type Config struct {
	APIBaseURL    string        `yaml:"api_base_url"`
	ScriptBaseURL string        `yaml:"script_base_url"`
	AuthToken     string        `yaml:"auth_token"`
	Salt          string        `yaml:"salt"` // public salt for the crash calculator
	Timeout       time.Duration `yaml:"timeout"`
}

// Entry is one round as reported by the feed, already normalized.
type Entry struct {
	ID         string
	SeedHash   string
	Outcome    float64
	PreparedAt *time.Time
	StartedAt  *time.Time
	EndedAt    *time.Time
}

// Page is the single internal page shape. Entries keep feed order
// (newest first); consumers handle ordering explicitly.
type Page struct {
	Entries []Entry
}

// Strategy is one way of fetching a page of rounds from the provider.
type Strategy interface {
	// Name returns the strategy identifier for logs and metrics.
	Name() string

	// FetchPage fetches one page. Page numbering starts at 1; page 1 is
	// the most recent rounds.
	FetchPage(ctx context.Context, page, size int) (*Page, error)
}
