package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"time"

	"feedctl/internal/probe"
	"feedctl/internal/storage"
)

// Prober is the fetch client consumed by the health classifier.
type Prober interface {
	Probe(ctx context.Context, url string, useProxy bool) probe.Status
}

// ErrorFeed aggregates a candidate feed's fetch failures over the report
// window.
type ErrorFeed struct {
	FeedID       int64          `json:"feed_id"`
	Title        string         `json:"title"`
	Link         string         `json:"link"`
	URL          string         `json:"url"`
	Errors       map[string]int `json:"error"`
	ErrorCount   int            `json:"error_count"`
	OKCount      int            `json:"ok_count"`
	ErrorPercent int            `json:"error_percent"`
}

// FeedHealthClassifier turns the raw fetch log into deletion and
// proxy-routing decisions. It never mutates on its own; callers preview
// candidates and apply the bulk mutation explicitly.
type FeedHealthClassifier struct {
	store  *storage.Store
	prober Prober
	cfg    *storage.Config
	log    *slog.Logger
	now    func() time.Time
}

func NewFeedHealthClassifier(store *storage.Store, prober Prober, cfg *storage.Config, log *slog.Logger) *FeedHealthClassifier {
	return &FeedHealthClassifier{store: store, prober: prober, cfg: cfg, log: log, now: time.Now}
}

// ErrorReport builds the per-feed error histogram over the trailing window
// and computes error percentages, sorted worst-first. Feeds whose every
// (status) group stayed at or below the noise floor never enter the report.
func (c *FeedHealthClassifier) ErrorReport(ctx context.Context, days, limit int) ([]ErrorFeed, error) {
	since := c.now().AddDate(0, 0, -days)
	groups, err := c.store.QueryErrorFeedGroups(ctx, since, c.cfg.Health.MinFetchCount, limit)
	if err != nil {
		return nil, err
	}

	byFeed := make(map[int64]*ErrorFeed)
	var order []int64
	for _, g := range groups {
		feed, ok := byFeed[g.FeedID]
		if !ok {
			feed = &ErrorFeed{
				FeedID: g.FeedID,
				Title:  g.Title,
				Link:   g.Link,
				URL:    g.URL,
				Errors: make(map[string]int),
			}
			byFeed[g.FeedID] = feed
			order = append(order, g.FeedID)
		}
		feed.Errors[probe.StatusName(g.StatusCode)] = g.Count
		feed.ErrorCount += g.Count
		// Until the ok-count query answers, assume total failure.
		feed.ErrorPercent = 100
	}

	okCounts, err := c.store.QueryOKFetchCounts(ctx, since, order)
	if err != nil {
		return nil, err
	}
	for feedID, okCount := range okCounts {
		feed := byFeed[feedID]
		total := feed.ErrorCount + okCount
		feed.OKCount = okCount
		feed.ErrorPercent = int(math.Round(float64(feed.ErrorCount) / float64(total) * 100))
	}

	report := make([]ErrorFeed, 0, len(order))
	for _, feedID := range order {
		report = append(report, *byFeed[feedID])
	}
	sort.SliceStable(report, func(i, j int) bool {
		return report[i].ErrorPercent > report[j].ErrorPercent
	})
	return report, nil
}

// DeleteCandidates filters the report down to feeds at or above the
// error-percent threshold.
func DeleteCandidates(report []ErrorFeed, threshold int) []ErrorFeed {
	var candidates []ErrorFeed
	for _, feed := range report {
		if feed.ErrorPercent >= threshold {
			candidates = append(candidates, feed)
		}
	}
	return candidates
}

// DeleteFeeds removes every candidate in one bulk deletion. Callers gate
// this behind operator confirmation; there is no partial application.
func (c *FeedHealthClassifier) DeleteFeeds(ctx context.Context, candidates []ErrorFeed) error {
	feedIDs := make([]int64, len(candidates))
	for i, feed := range candidates {
		feedIDs[i] = feed.FeedID
	}
	return c.store.BulkDeleteFeeds(ctx, feedIDs)
}

// ProxyCandidates selects feeds worth probing for proxy need using the
// configured title blacklist and age/activity heuristic.
func (c *FeedHealthClassifier) ProxyCandidates(ctx context.Context) ([]storage.Feed, error) {
	now := c.now()
	return c.store.QueryProxyCandidates(ctx, storage.ProxyCandidateFilter{
		TitleBlacklist: c.cfg.ProxyCandidates.TitleBlacklist,
		CreatedSince:   now.AddDate(0, 0, -c.cfg.ProxyCandidates.CreatedWithinDays),
		MaxTotalStorys: c.cfg.ProxyCandidates.MaxTotalStorys,
		UpdatedBefore:  now.AddDate(0, 0, -c.cfg.ProxyCandidates.StaleAfterDays),
	})
}

// ClassifyProxyNeed probes each candidate strictly sequentially: first
// without proxy, and when the status signals a proxy-remediable failure,
// again through the proxy. Only candidates whose proxied probe is a
// definitive success are returned. No feed is mutated here.
func (c *FeedHealthClassifier) ClassifyProxyNeed(ctx context.Context, candidates []storage.Feed) ([]storage.Feed, error) {
	var needProxy []storage.Feed
	for i, feed := range candidates {
		if err := ctx.Err(); err != nil {
			return needProxy, err
		}
		status := c.prober.Probe(ctx, feed.URL, false)
		c.log.Info("probed feed", "index", i, "feed_id", feed.ID, "status", status.Name())
		if !status.NeedsProxy() {
			continue
		}
		proxyStatus := c.prober.Probe(ctx, feed.URL, true)
		c.log.Info("probed feed via proxy", "index", i, "feed_id", feed.ID, "status", proxyStatus.Name())
		if proxyStatus.IsOK() {
			needProxy = append(needProxy, feed)
		}
	}
	return needProxy, nil
}

// EnableProxy marks the classified feeds to route through the proxy. Each
// feed is re-read from storage immediately before its write so concurrent
// changes to other fields are not clobbered. Returns the number of feeds
// updated.
func (c *FeedHealthClassifier) EnableProxy(ctx context.Context, feeds []storage.Feed) (int, error) {
	updated := 0
	for _, feed := range feeds {
		fresh, err := c.store.GetFeed(ctx, feed.ID)
		if errors.Is(err, storage.ErrNotFound) {
			c.log.Warn("feed vanished before proxy update", "feed_id", feed.ID)
			continue
		}
		if err != nil {
			return updated, err
		}
		if err := c.store.SetFeedUseProxy(ctx, fresh.ID, true); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}
