package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/wpratama/meta-billing-sync/internal/logger"
)

// Window is an inclusive date window, with both bounds at midnight in the
// configured fixed-offset location.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow parses YYYY-MM-DD bounds in the given location.
func NewWindow(start, end string, loc *time.Location) (Window, error) {
	s, err := time.ParseInLocation("2006-01-02", start, loc)
	if err != nil {
		return Window{}, fmt.Errorf("NewWindow: invalid start date %q: %w", start, err)
	}
	e, err := time.ParseInLocation("2006-01-02", end, loc)
	if err != nil {
		return Window{}, fmt.Errorf("NewWindow: invalid end date %q: %w", end, err)
	}
	if e.Before(s) {
		return Window{}, fmt.Errorf("NewWindow: end date %s before start date %s", end, start)
	}
	return Window{Start: s, End: e}, nil
}

// LastDays builds a window covering the last n days ending today in loc.
func LastDays(n int, loc *time.Location) Window {
	now := time.Now().In(loc)
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	return Window{Start: end.AddDate(0, 0, -n), End: end}
}

// EpochBounds returns the window as epoch seconds; the end bound covers the
// whole final day.
func (w Window) EpochBounds() (start, stop int64) {
	return w.Start.Unix(), w.End.Unix() + 86399
}

// Strategy is one candidate shape of request parameters for the activities
// endpoint. The accepted shape is undocumented and varies across accounts
// and API versions, so the selector tries these in order.
type Strategy struct {
	Name   string
	Params func(w Window) url.Values
}

// DefaultStrategies returns the strategies in empirically-learned preference
// order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{
			Name: "custom-preset",
			Params: func(w Window) url.Values {
				start, stop := w.EpochBounds()
				return url.Values{
					"date_preset": {"custom"},
					"time_start":  {strconv.FormatInt(start, 10)},
					"time_stop":   {strconv.FormatInt(stop, 10)},
				}
			},
		},
		{
			Name: "since-until",
			Params: func(w Window) url.Values {
				start, stop := w.EpochBounds()
				return url.Values{
					"since": {strconv.FormatInt(start, 10)},
					"until": {strconv.FormatInt(stop, 10)},
				}
			},
		},
		{
			Name: "time-range",
			Params: func(w Window) url.Values {
				rangeJSON, _ := json.Marshal(map[string]string{
					"since": w.Start.Format("2006-01-02"),
					"until": w.End.Format("2006-01-02"),
				})
				return url.Values{"time_range": {string(rangeJSON)}}
			},
		},
	}
}

// SelectActivities tries each strategy in order until one yields at least
// one record inside the window (as judged by inWindow), then drains the
// remaining pages and returns the in-window subset. A strategy whose fetch
// fails or whose records all fall outside the window is skipped. Exhausting
// every strategy returns an empty result; the upstream API may simply no
// longer retain data that old.
func (c *Client) SelectActivities(ctx context.Context, accountID, version string, w Window, inWindow func(RawActivity) bool) []RawActivity {
	log := logger.FromContext(ctx)

	for _, strat := range c.strategies {
		params := strat.Params(w)
		log.Debug().
			Str("account", accountID).
			Str("strategy", strat.Name).
			Str("params", params.Encode()).
			Msg("Trying query strategy")

		first, err := c.FetchActivities(ctx, accountID, version, params)
		if err != nil {
			log.Warn().
				Str("account", accountID).
				Str("strategy", strat.Name).
				Err(err).
				Msg("Query strategy failed")
			continue
		}

		if countInWindow(first.Records, inWindow) == 0 {
			log.Debug().
				Str("account", accountID).
				Str("strategy", strat.Name).
				Int("records", len(first.Records)).
				Msg("No in-window records, trying next strategy")
			continue
		}

		all := c.drainPages(ctx, first)
		matched := filterInWindow(all, inWindow)
		log.Info().
			Str("account", accountID).
			Str("strategy", strat.Name).
			Int("fetched", len(all)).
			Int("in_window", len(matched)).
			Msg("Query strategy accepted")
		return matched
	}

	log.Warn().
		Str("account", accountID).
		Str("start", w.Start.Format("2006-01-02")).
		Str("end", w.End.Format("2006-01-02")).
		Msg("All query strategies exhausted; the API may no longer retain data this old")
	return nil
}

func countInWindow(records []RawActivity, inWindow func(RawActivity) bool) int {
	n := 0
	for _, r := range records {
		if inWindow(r) {
			n++
		}
	}
	return n
}

func filterInWindow(records []RawActivity, inWindow func(RawActivity) bool) []RawActivity {
	var out []RawActivity
	for _, r := range records {
		if inWindow(r) {
			out = append(out, r)
		}
	}
	return out
}
