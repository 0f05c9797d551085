// Package config builds the run configuration from the environment.
// The Config struct is constructed once at startup and passed into each
// component's constructor; nothing in this module reads the environment
// after Load returns.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultTaxRate      = "0.11"
	DefaultTimeout      = 15 * time.Second
	DefaultRetryCount   = 3
	DefaultUTCOffset    = 7
	DefaultLookbackDays = 90
	DefaultWorksheet    = "Meta Transaction IDs"
	DefaultCardFragment = "0000"
	DefaultSinkKind     = "sheets"
	defaultVersionList  = "v21.0,v20.0,v19.0"

	DefaultInsightsWorksheet = "[wip] boost ads"
)

// BrandRule renames the brand of performance rows for one account when the
// campaign name contains Match. Some accounts run campaigns for more than
// one brand and encode it in the campaign name.
type BrandRule struct {
	AccountID string
	Match     string
	Brand     string
}

// Config holds everything the pipeline needs for one run.
type Config struct {
	AccessToken string
	AccountIDs  []string

	// Sink selection: "sheets" or "bigquery".
	SinkKind string

	SpreadsheetID   string
	WorksheetName   string
	CredentialsFile string

	BQProject string
	BQDataset string
	BQTable   string

	TaxRate        decimal.Decimal
	Timeout        time.Duration
	RetryCount     int
	UTCOffsetHours int
	LookbackDays   int

	// Candidate Graph API versions, most-preferred first.
	APIVersions []string

	// CardDefaults maps an account display name to its card digits, used
	// when no card fragment is discoverable in a payload. DefaultCard is
	// the global placeholder.
	CardDefaults map[string]string
	DefaultCard  string

	// InsightsWorksheet is the worksheet receiving daily campaign
	// performance rows; BrandRules adjust the brand column per account.
	InsightsWorksheet string
	BrandRules        []BrandRule
}

// Load reads .env (if present) and the environment and returns a validated
// Config. Validation failures here abort the run before any network call.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		AccessToken:     os.Getenv("META_ACCESS_TOKEN"),
		AccountIDs:      splitList(os.Getenv("AD_ACCOUNT_IDS")),
		SinkKind:        getString("SINK", DefaultSinkKind),
		SpreadsheetID:   os.Getenv("SPREADSHEET_ID"),
		WorksheetName:   getString("WORKSHEET_NAME", DefaultWorksheet),
		CredentialsFile: os.Getenv("GOOGLE_CREDENTIALS_FILE"),
		BQProject:       os.Getenv("BQ_PROJECT"),
		BQDataset:       os.Getenv("BQ_DATASET"),
		BQTable:         os.Getenv("BQ_TABLE"),
		APIVersions:     splitList(getString("API_VERSIONS", defaultVersionList)),
		DefaultCard:     getString("DEFAULT_CARD", DefaultCardFragment),

		InsightsWorksheet: getString("INSIGHTS_WORKSHEET", DefaultInsightsWorksheet),
	}

	rate, err := decimal.NewFromString(getString("TAX_RATE", DefaultTaxRate))
	if err != nil {
		return nil, fmt.Errorf("Load: invalid TAX_RATE: %w", err)
	}
	cfg.TaxRate = rate

	timeoutSecs, err := getInt("API_TIMEOUT_SECONDS", int(DefaultTimeout/time.Second))
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	cfg.Timeout = time.Duration(timeoutSecs) * time.Second

	if cfg.RetryCount, err = getInt("RETRY_COUNT", DefaultRetryCount); err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	if cfg.UTCOffsetHours, err = getInt("UTC_OFFSET_HOURS", DefaultUTCOffset); err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	if cfg.LookbackDays, err = getInt("LOOKBACK_DAYS", DefaultLookbackDays); err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}

	cfg.CardDefaults, err = parsePairs(os.Getenv("CARD_DEFAULTS"))
	if err != nil {
		return nil, fmt.Errorf("Load: invalid CARD_DEFAULTS: %w", err)
	}

	cfg.BrandRules, err = parseBrandRules(os.Getenv("BRAND_RULES"))
	if err != nil {
		return nil, fmt.Errorf("Load: invalid BRAND_RULES: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields the run cannot proceed without.
func (c *Config) Validate() error {
	if c.AccessToken == "" {
		return fmt.Errorf("Validate: META_ACCESS_TOKEN is required")
	}
	if len(c.AccountIDs) == 0 {
		return fmt.Errorf("Validate: AD_ACCOUNT_IDS is required")
	}
	if len(c.APIVersions) == 0 {
		return fmt.Errorf("Validate: API_VERSIONS must list at least one version")
	}
	if c.TaxRate.IsNegative() {
		return fmt.Errorf("Validate: TAX_RATE must not be negative")
	}
	switch c.SinkKind {
	case "sheets":
		if c.SpreadsheetID == "" {
			return fmt.Errorf("Validate: SPREADSHEET_ID is required for the sheets sink")
		}
		if c.CredentialsFile == "" {
			return fmt.Errorf("Validate: GOOGLE_CREDENTIALS_FILE is required for the sheets sink")
		}
	case "bigquery":
		if c.BQProject == "" || c.BQDataset == "" || c.BQTable == "" {
			return fmt.Errorf("Validate: BQ_PROJECT, BQ_DATASET and BQ_TABLE are required for the bigquery sink")
		}
	default:
		return fmt.Errorf("Validate: unknown sink %q", c.SinkKind)
	}
	return nil
}

// Location returns the fixed offset location used for all date handling.
func (c *Config) Location() *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", c.UTCOffsetHours), c.UTCOffsetHours*3600)
}

func getString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseBrandRules parses "act_123:omi - :TaffOmicron,act_456:x:BrandX".
// Each entry is accountID:match:brand; match is kept verbatim so it can
// carry leading or trailing spaces.
func parseBrandRules(s string) ([]BrandRule, error) {
	var out []BrandRule
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		fields := strings.SplitN(part, ":", 3)
		if len(fields) != 3 {
			return nil, fmt.Errorf("entry %q is not accountID:match:brand", part)
		}
		rule := BrandRule{
			AccountID: strings.TrimSpace(fields[0]),
			Match:     fields[1],
			Brand:     strings.TrimSpace(fields[2]),
		}
		if rule.AccountID == "" || rule.Match == "" || rule.Brand == "" {
			return nil, fmt.Errorf("entry %q has an empty field", part)
		}
		out = append(out, rule)
	}
	return out, nil
}

// parsePairs parses "Name=1234,Other Name=9816" into a map.
func parsePairs(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("entry %q is not name=digits", part)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out, nil
}
