package provider

import (
	"context"
	"errors"
	"log/slog"
	"testing"
)

type fakeStrategy struct {
	name  string
	page  *Page
	err   error
	calls int
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) FetchPage(ctx context.Context, page, size int) (*Page, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.page, nil
}

func onePage() *Page {
	return &Page{Entries: []Entry{{ID: "1", SeedHash: "aa", Outcome: 2.0}}}
}

func TestChainFirstStrategyWins(t *testing.T) {
	first := &fakeStrategy{name: "api", page: onePage()}
	second := &fakeStrategy{name: "script", page: onePage()}
	chain := NewChain(slog.Default(), first, second)

	page, err := chain.FetchPage(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	if len(page.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(page.Entries))
	}
	if second.calls != 0 {
		t.Error("second strategy should not be tried when the first succeeds")
	}
}

func TestChainFallsThroughOnError(t *testing.T) {
	first := &fakeStrategy{name: "api", err: ErrTransient}
	second := &fakeStrategy{name: "script", page: onePage()}
	chain := NewChain(slog.Default(), first, second)

	page, err := chain.FetchPage(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	if len(page.Entries) != 1 {
		t.Fatal("expected fallback page")
	}
	if first.calls != 1 || second.calls != 1 {
		t.Errorf("expected both strategies tried, got %d/%d", first.calls, second.calls)
	}
}

func TestChainFallsThroughOnEmptyPage(t *testing.T) {
	first := &fakeStrategy{name: "api", page: &Page{}}
	second := &fakeStrategy{name: "script", page: onePage()}
	chain := NewChain(slog.Default(), first, second)

	page, err := chain.FetchPage(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	if len(page.Entries) != 1 {
		t.Fatal("expected fallback page for empty first result")
	}
}

func TestChainAllFail(t *testing.T) {
	first := &fakeStrategy{name: "api", err: ErrTransient}
	second := &fakeStrategy{name: "script", err: ErrMalformed}
	chain := NewChain(slog.Default(), first, second)

	_, err := chain.FetchPage(context.Background(), 3, 10)
	if err == nil {
		t.Fatal("expected error when all strategies fail")
	}
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("expected last error to be wrapped, got %v", err)
	}
}
