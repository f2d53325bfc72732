package e2e

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vuchq/crashwatch/internal/control"
	"github.com/vuchq/crashwatch/internal/core/config"
	"github.com/vuchq/crashwatch/internal/infra/provider"
)

// feedServer serves a fixed script-style history feed: page 1 holds the
// newest rounds, page 2 the older ones.
func feedServer(t *testing.T) *httptest.Server {
	t.Helper()

	entry := func(id int) string {
		return fmt.Sprintf(`{"gameId":"%d","hash":"%02x","crash":"2.50"}`, id, id)
	}
	pages := map[string][]string{
		"1": {entry(110), entry(109), entry(108)},
		"2": {entry(107), entry(106), entry(105)},
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entries := pages[r.URL.Query().Get("page")]
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"data":[%s]}`, strings.Join(entries, ","))
	}))
}

func engineConfig(feedURL string) control.Config {
	return control.Config{
		Port: 18099,
		Provider: provider.Config{
			ScriptBaseURL: feedURL,
			Salt:          "0000000000000000000301e2801a9a9598bfb114e574a91a887f2132f33047e6",
			Timeout:       2 * time.Second,
		},
		Monitor: config.MonitorConfig{
			PollInterval:  50 * time.Millisecond,
			RetryInterval: 50 * time.Millisecond,
			PageSize:      30,
			RingCapacity:  10,
		},
		Catchup: config.CatchupConfig{
			BatchSize: 2,
			PageSize:  3,
		},
	}
}

func TestCatchupStoresHistory(t *testing.T) {
	feed := feedServer(t)
	defer feed.Close()

	engine, err := control.New(engineConfig(feed.URL))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	ctx := context.Background()
	counts, err := engine.Catchup(ctx, 2)
	if err != nil {
		t.Fatalf("Catchup failed: %v", err)
	}
	if counts.Saved != 6 {
		t.Errorf("expected 6 rounds saved, got %+v", counts)
	}

	max, _ := engine.Repo().MaxID(ctx)
	min, _ := engine.Repo().MinID(ctx)
	if min != 105 || max != 110 {
		t.Errorf("expected store to hold 105..110, got min=%d max=%d", min, max)
	}

	// A second run stores nothing new.
	counts, err = engine.Catchup(ctx, 2)
	if err != nil {
		t.Fatalf("second Catchup failed: %v", err)
	}
	if counts.Saved != 0 || counts.Skipped != 6 {
		t.Errorf("expected rerun to skip everything, got %+v", counts)
	}
}

func TestGracefulShutdown(t *testing.T) {
	feed := feedServer(t)
	defer feed.Close()

	engine, err := control.New(engineConfig(feed.URL))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := engine.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Let the monitor take a few ticks.
	time.Sleep(300 * time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()

	if err := engine.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}
