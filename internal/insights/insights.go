// Package insights ingests daily campaign-level ads performance into the
// performance worksheet, one row per campaign per day.
package insights

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wpratama/meta-billing-sync/internal/config"
	"github.com/wpratama/meta-billing-sync/internal/graph"
	"github.com/wpratama/meta-billing-sync/internal/logger"
)

// Row is one campaign-day of performance metrics in sink column order.
type Row struct {
	Date         string
	Brand        string
	CampaignName string
	AccountID    string
	AccountName  string
	Impressions  int64
	Spend        decimal.Decimal
	CPM          decimal.Decimal
	Clicks       int64
	CPC          decimal.Decimal
	CTR          decimal.Decimal
	Reach        int64
}

// Values returns the 12 cells in sink column order.
func (r Row) Values() []string {
	return []string{
		r.Date,
		r.Brand,
		r.CampaignName,
		r.AccountID,
		r.AccountName,
		strconv.FormatInt(r.Impressions, 10),
		r.Spend.String(),
		r.CPM.String(),
		strconv.FormatInt(r.Clicks, 10),
		r.CPC.String(),
		r.CTR.String(),
		strconv.FormatInt(r.Reach, 10),
	}
}

// Sink receives performance rows. Unlike the billing sink there is no
// dedup key; re-running a day appends the day again.
type Sink interface {
	AppendRow(ctx context.Context, row Row) error
}

// Source is the slice of the Graph API client the runner needs.
type Source interface {
	ProbeVersion(ctx context.Context, accountID string) (*graph.Account, string, error)
	FetchInsights(ctx context.Context, accountID, version, date string) ([]graph.CampaignInsight, error)
}

// Runner fetches each requested day for each account and appends the rows.
type Runner struct {
	Source     Source
	Sink       Sink
	BrandRules []config.BrandRule
}

// Run processes every date for every account and returns the total number
// of rows appended. An account failing its version probe is skipped for the
// whole run; a day failing to fetch or a row failing to append is reported
// and skipped. Every account failing the probe fails the run.
func (r *Runner) Run(ctx context.Context, accountIDs, dates []string) (int, error) {
	log := logger.FromContext(ctx).With().Str("run_id", uuid.NewString()).Logger()
	ctx = logger.WithContext(ctx, log)

	log.Info().
		Int("accounts", len(accountIDs)).
		Int("days", len(dates)).
		Msg("Fetching campaign performance")

	type target struct {
		id      string
		version string
	}
	var targets []target
	for _, accountID := range accountIDs {
		_, version, err := r.Source.ProbeVersion(ctx, accountID)
		if err != nil {
			log.Error().
				Str("account", accountID).
				Err(err).
				Msg("Skipping account, no usable API version")
			continue
		}
		targets = append(targets, target{id: accountID, version: version})
	}
	if len(targets) == 0 && len(accountIDs) > 0 {
		return 0, errors.New("Run: no account responded on any API version")
	}

	total := 0
	for _, date := range dates {
		for _, tgt := range targets {
			stats, err := r.Source.FetchInsights(ctx, tgt.id, tgt.version, date)
			if err != nil {
				log.Warn().
					Str("account", tgt.id).
					Str("date", date).
					Err(err).
					Msg("Skipping day, insights fetch failed")
				continue
			}
			appended := 0
			for _, stat := range stats {
				row := buildRow(date, tgt.id, stat, r.BrandRules)
				if err := r.Sink.AppendRow(ctx, row); err != nil {
					log.Warn().
						Str("campaign", row.CampaignName).
						Str("date", date).
						Err(err).
						Msg("Skipping row, sink write failed")
					continue
				}
				appended++
			}
			total += appended
			log.Info().
				Str("account", tgt.id).
				Str("date", date).
				Int("campaigns", len(stats)).
				Int("appended", appended).
				Msg("Day processed")
		}
	}

	log.Info().Int("appended", total).Msg("Run complete")
	return total, nil
}

// buildRow maps one API record to a sink row. Metric strings that are
// absent or malformed become zero rather than dropping the campaign.
func buildRow(date, accountID string, stat graph.CampaignInsight, rules []config.BrandRule) Row {
	return Row{
		Date:         date,
		Brand:        brandFor(accountID, stat.CampaignName, stat.AccountName, rules),
		CampaignName: stat.CampaignName,
		AccountID:    stat.AccountID,
		AccountName:  stat.AccountName,
		Impressions:  intMetric(stat.Impressions),
		Spend:        decMetric(stat.Spend),
		CPM:          decMetric(stat.CPM),
		Clicks:       intMetric(stat.Clicks),
		CPC:          decMetric(stat.CPC),
		CTR:          decMetric(stat.CTR),
		Reach:        intMetric(stat.Reach),
	}
}

// brandFor applies the first matching rule for the processed account; the
// account display name is the brand otherwise. Account ids are compared
// without the act_ prefix so rules work with either form.
func brandFor(accountID, campaignName, accountName string, rules []config.BrandRule) string {
	id := strings.TrimPrefix(accountID, "act_")
	for _, rule := range rules {
		if strings.TrimPrefix(rule.AccountID, "act_") != id {
			continue
		}
		if strings.Contains(campaignName, rule.Match) {
			return rule.Brand
		}
	}
	return accountName
}

func intMetric(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func decMetric(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}
