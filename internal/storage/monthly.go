package storage

import (
	"encoding/json"
	"fmt"
	"time"
)

// MonthCount is one bucket of a feed's per-month story histogram.
type MonthCount struct {
	Year  int
	Month time.Month
	Count int
}

// MonthlyStoryCount is a feed's story histogram ordered by calendar month.
// It is cached on the feed row as JSON and rebuilt from the storys table by
// RefreshMonthlyStoryCount.
type MonthlyStoryCount []MonthCount

// drynessHorizonMonths bounds how far back Dryness looks. Stories older
// than this contribute nothing to freshness.
const drynessHorizonMonths = 18

type monthCountJSON struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// ParseMonthlyStoryCount decodes the JSON form stored on the feed row.
func ParseMonthlyStoryCount(text string) (MonthlyStoryCount, error) {
	var items []monthCountJSON
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		return nil, fmt.Errorf("decode monthly story count: %w", err)
	}
	counts := make(MonthlyStoryCount, 0, len(items))
	for _, item := range items {
		mc, err := parseMonth(item.Month)
		if err != nil {
			return nil, err
		}
		mc.Count = item.Count
		counts = append(counts, mc)
	}
	return counts, nil
}

func parseMonth(s string) (MonthCount, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return MonthCount{}, fmt.Errorf("parse month %q: %w", s, err)
	}
	return MonthCount{Year: t.Year(), Month: t.Month()}, nil
}

// String returns the JSON form stored on the feed row.
func (c MonthlyStoryCount) String() string {
	items := make([]monthCountJSON, len(c))
	for i, mc := range c {
		items[i] = monthCountJSON{
			Month: fmt.Sprintf("%04d-%02d", mc.Year, int(mc.Month)),
			Count: mc.Count,
		}
	}
	data, err := json.Marshal(items)
	if err != nil {
		// []monthCountJSON cannot fail to marshal
		panic(err)
	}
	return string(data)
}

// Dryness maps recent story density to a normalized freshness score in
// (0, 1]. Each month within the horizon contributes its story count with
// weight 1/(1+monthsAgo); the weighted rate r then yields 1/(1+r), so an
// empty or long-silent feed scores 1.0 and a dense recent feed approaches 0.
func (c MonthlyStoryCount) Dryness(now time.Time) float64 {
	var weighted, totalWeight float64
	for i := 0; i < drynessHorizonMonths; i++ {
		totalWeight += 1.0 / float64(1+i)
	}
	if totalWeight == 0 {
		return 1.0
	}
	for _, mc := range c {
		monthsAgo := (now.Year()-mc.Year)*12 + int(now.Month()) - int(mc.Month)
		if monthsAgo < 0 || monthsAgo >= drynessHorizonMonths {
			continue
		}
		weighted += float64(mc.Count) / float64(1+monthsAgo)
	}
	rate := weighted / totalWeight
	return 1.0 / (1.0 + rate)
}
