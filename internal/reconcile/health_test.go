package reconcile

import (
	"context"
	"testing"
	"time"

	"feedctl/internal/probe"
	"feedctl/internal/storage"
)

// fakeProber maps (url, useProxy) to a fixed status.
type fakeProber struct {
	direct  map[string]probe.Status
	proxied map[string]probe.Status
	probes  []string
}

func (p *fakeProber) Probe(ctx context.Context, url string, useProxy bool) probe.Status {
	p.probes = append(p.probes, url)
	if useProxy {
		if s, ok := p.proxied[url]; ok {
			return s
		}
		return probe.StatusConnectionError
	}
	if s, ok := p.direct[url]; ok {
		return s
	}
	return probe.StatusUnknownError
}

func newTestClassifier(t *testing.T, store *storage.Store, prober Prober) *FeedHealthClassifier {
	t.Helper()
	return NewFeedHealthClassifier(store, prober, storage.DefaultConfig(), testLogger())
}

func TestErrorReportPercentages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	c := newTestClassifier(t, store, &fakeProber{})
	now := time.Now()

	// allErrors: 10 failures, no successes -> 100%.
	allErrors := addTestFeed(t, store, "https://dead.example.com/feed")
	for i := 0; i < 10; i++ {
		if err := store.AddRawFetchRecord(ctx, allErrors, 500, now.Add(-time.Hour)); err != nil {
			t.Fatalf("AddRawFetchRecord: %v", err)
		}
	}

	// mostlyErrors: 99 failures, 1 success -> 99%.
	mostlyErrors := addTestFeed(t, store, "https://flaky.example.com/feed")
	for i := 0; i < 99; i++ {
		if err := store.AddRawFetchRecord(ctx, mostlyErrors, 503, now.Add(-time.Hour)); err != nil {
			t.Fatalf("AddRawFetchRecord: %v", err)
		}
	}
	if err := store.AddRawFetchRecord(ctx, mostlyErrors, 200, now.Add(-time.Hour)); err != nil {
		t.Fatalf("AddRawFetchRecord: %v", err)
	}

	report, err := c.ErrorReport(ctx, 1, 100)
	if err != nil {
		t.Fatalf("ErrorReport: %v", err)
	}
	if len(report) != 2 {
		t.Fatalf("expected 2 feeds in report, got %d", len(report))
	}

	// Sorted worst-first.
	if report[0].FeedID != allErrors {
		t.Errorf("first entry: got feed %d, want %d", report[0].FeedID, allErrors)
	}
	if report[0].ErrorPercent != 100 || report[0].OKCount != 0 {
		t.Errorf("all-errors feed: percent=%d ok=%d", report[0].ErrorPercent, report[0].OKCount)
	}
	if report[1].ErrorPercent != 99 || report[1].OKCount != 1 {
		t.Errorf("mostly-errors feed: percent=%d ok=%d", report[1].ErrorPercent, report[1].OKCount)
	}
	if report[1].Errors["SERVICE_UNAVAILABLE"] != 99 {
		t.Errorf("error histogram: %v", report[1].Errors)
	}
}

func TestErrorReportNoiseFloor(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	c := newTestClassifier(t, store, &fakeProber{})
	now := time.Now()

	// Exactly minCount failures: not above the floor, excluded.
	feedID := addTestFeed(t, store, "https://noise.example.com/feed")
	for i := 0; i < storage.DefaultConfig().Health.MinFetchCount; i++ {
		if err := store.AddRawFetchRecord(ctx, feedID, 500, now.Add(-time.Hour)); err != nil {
			t.Fatalf("AddRawFetchRecord: %v", err)
		}
	}

	report, err := c.ErrorReport(ctx, 1, 100)
	if err != nil {
		t.Fatalf("ErrorReport: %v", err)
	}
	if len(report) != 0 {
		t.Errorf("expected empty report, got %d entries", len(report))
	}
}

func TestDeleteCandidatesThreshold(t *testing.T) {
	report := []ErrorFeed{
		{FeedID: 1, ErrorPercent: 100},
		{FeedID: 2, ErrorPercent: 99},
		{FeedID: 3, ErrorPercent: 98},
	}
	candidates := DeleteCandidates(report, 99)
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	for _, feed := range candidates {
		if feed.ErrorPercent < 99 {
			t.Errorf("feed %d below threshold included", feed.FeedID)
		}
	}
}

func TestDeleteFeeds(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	c := newTestClassifier(t, store, &fakeProber{})

	a := addTestFeed(t, store, "https://a.example.com/feed")
	b := addTestFeed(t, store, "https://b.example.com/feed")

	if err := c.DeleteFeeds(ctx, []ErrorFeed{{FeedID: a}}); err != nil {
		t.Fatalf("DeleteFeeds: %v", err)
	}

	ids, err := store.GetAllFeedIDs(ctx)
	if err != nil {
		t.Fatalf("GetAllFeedIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != b {
		t.Errorf("remaining feeds: got %v, want [%d]", ids, b)
	}
}

func TestClassifyProxyNeed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	prober := &fakeProber{
		direct: map[string]probe.Status{
			"https://blocked.example.com/feed": probe.Status(403),
			"https://down.example.com/feed":    probe.StatusConnectionError,
			"https://fine.example.com/feed":    probe.Status(200),
		},
		proxied: map[string]probe.Status{
			"https://blocked.example.com/feed": probe.Status(200),
			// down.example.com fails through the proxy too.
		},
	}
	c := newTestClassifier(t, store, prober)

	candidates := []storage.Feed{
		{ID: 1, URL: "https://blocked.example.com/feed"},
		{ID: 2, URL: "https://down.example.com/feed"},
		{ID: 3, URL: "https://fine.example.com/feed"},
	}

	needProxy, err := c.ClassifyProxyNeed(ctx, candidates)
	if err != nil {
		t.Fatalf("ClassifyProxyNeed: %v", err)
	}
	if len(needProxy) != 1 {
		t.Fatalf("expected 1 feed needing proxy, got %d", len(needProxy))
	}
	if needProxy[0].ID != 1 {
		t.Errorf("got feed %d, want 1", needProxy[0].ID)
	}

	// The healthy feed is never probed twice.
	count := 0
	for _, url := range prober.probes {
		if url == "https://fine.example.com/feed" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("healthy feed probed %d times, want 1", count)
	}
}

func TestClassifyProxyNeedCancelled(t *testing.T) {
	store := newTestStore(t)
	c := newTestClassifier(t, store, &fakeProber{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ClassifyProxyNeed(ctx, []storage.Feed{{ID: 1, URL: "https://x.example.com"}})
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestEnableProxy(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	c := newTestClassifier(t, store, &fakeProber{})

	feedID := addTestFeed(t, store, "https://example.com/feed")
	gone := storage.Feed{ID: 999, URL: "https://gone.example.com/feed"}

	updated, err := c.EnableProxy(ctx, []storage.Feed{{ID: feedID}, gone})
	if err != nil {
		t.Fatalf("EnableProxy: %v", err)
	}
	if updated != 1 {
		t.Errorf("updated: got %d, want 1", updated)
	}

	feed, err := store.GetFeed(ctx, feedID)
	if err != nil {
		t.Fatalf("GetFeed: %v", err)
	}
	if !feed.UseProxy {
		t.Error("use_proxy not set")
	}
}
