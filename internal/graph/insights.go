package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/wpratama/meta-billing-sync/internal/logger"
)

// insightFields are the campaign-level metrics requested per day.
const insightFields = "campaign_name,account_name,account_id,impressions,spend,cpm,clicks,cpc,ctr,reach"

// CampaignInsight is one campaign-level row from the insights endpoint.
// Metric values arrive as decimal strings; absent metrics arrive as "".
type CampaignInsight struct {
	CampaignName string `json:"campaign_name"`
	AccountName  string `json:"account_name"`
	AccountID    string `json:"account_id"`
	Impressions  string `json:"impressions"`
	Spend        string `json:"spend"`
	CPM          string `json:"cpm"`
	Clicks       string `json:"clicks"`
	CPC          string `json:"cpc"`
	CTR          string `json:"ctr"`
	Reach        string `json:"reach"`
}

type insightsResponse struct {
	Data   []CampaignInsight `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// FetchInsights fetches the account's campaign-level insights for a single
// day (date is YYYY-MM-DD), following paging cursors. A cursor fetch failing
// after the first page returns what accumulated so far; partial results
// beat none.
func (c *Client) FetchInsights(ctx context.Context, accountID, version, date string) ([]CampaignInsight, error) {
	log := logger.FromContext(ctx)

	timeRange, err := json.Marshal(map[string]string{"since": date, "until": date})
	if err != nil {
		return nil, fmt.Errorf("FetchInsights: %w", err)
	}
	q := url.Values{
		"access_token": {c.accessToken},
		"level":        {"campaign"},
		"time_range":   {string(timeRange)},
		"fields":       {insightFields},
		"limit":        {pageLimit},
	}
	next := fmt.Sprintf("%s/%s/%s/insights?%s", c.baseURL, version, accountID, q.Encode())

	var out []CampaignInsight
	for page := 0; next != ""; page++ {
		body, err := c.get(ctx, next)
		if err != nil {
			if page == 0 {
				return nil, fmt.Errorf("FetchInsights: account %s: %w", accountID, err)
			}
			log.Warn().Err(err).Msg("Insights pagination stopped early, keeping partial results")
			break
		}

		var resp insightsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			if page == 0 {
				return nil, fmt.Errorf("FetchInsights: decoding response: %w", err)
			}
			log.Warn().Err(err).Msg("Insights pagination stopped early, keeping partial results")
			break
		}

		out = append(out, resp.Data...)
		next = resp.Paging.Next
	}
	return out, nil
}
