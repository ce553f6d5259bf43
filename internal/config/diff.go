package config

import (
	"fmt"
	"strings"

	logx "whoten/pkg/logx"
)

// Restart-only sections: a reload that touches them is logged but not applied.
var restartOnly = map[string]bool{"session": true, "schedule": true, "http": true, "storage": true, "metrics": true}

// RequiresRestart reports whether section changes only take effect after a restart.
func RequiresRestart(section string) bool { return restartOnly[section] }

// SummarizeChange returns the changed sections and safe attrs for logging.
// Tokens, the PIN and the session secret are never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Shopify != newCfg.Shopify {
		changed = append(changed, "shopify")
		attrs = append(attrs,
			logx.String("shopify.shop", newCfg.Shopify.ShopName),
			logx.String("shopify.api_version", newCfg.Shopify.APIVersion),
			logx.Bool("shopify.token_set", newCfg.Shopify.AccessToken != ""),
		)
	}
	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.enabled", newCfg.TelegramConfigured()),
			logx.Duration("telegram.timeout", newCfg.Telegram.Timeout),
			logx.Int("telegram.rate_per_sec", newCfg.Telegram.RatePerSec),
		)
	}
	if oldCfg.Supplier != newCfg.Supplier || oldCfg.Pricing != newCfg.Pricing {
		changed = append(changed, "pricing")
		attrs = append(attrs,
			logx.String("supplier.url", newCfg.Supplier.URL),
			logx.Float64("pricing.margin", newCfg.Pricing.MinProfitMargin),
			logx.Int("pricing.decimals", newCfg.Pricing.CurrencyDecimals),
		)
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File != ""),
		)
	}
	if oldCfg.DashboardPIN != newCfg.DashboardPIN {
		changed = append(changed, "auth")
	}
	// Sessions are signed with the secret read at startup.
	if oldCfg.SessionSecret != newCfg.SessionSecret {
		changed = append(changed, "session")
	}
	if oldCfg.Schedule != newCfg.Schedule {
		changed = append(changed, "schedule")
	}
	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
	}
	if oldCfg.MetricsEnabled != newCfg.MetricsEnabled {
		changed = append(changed, "metrics")
	}
	return changed, attrs
}

// Summary is the dashboard's environment view. Secrets are reduced to set/unset.
type Summary struct {
	Key   string
	Value string
}

func (c *Config) Summary() []Summary {
	set := func(s string) string {
		if s == "" {
			return "(not set)"
		}
		return "(set)"
	}
	orDash := func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "-"
		}
		return s
	}
	tz := c.Schedule.Timezone
	if tz == "" {
		tz = "Local"
	}
	return []Summary{
		{KeyShopName, orDash(c.Shopify.ShopName)},
		{KeyShopifyToken, set(c.Shopify.AccessToken)},
		{KeyShopifyVersion, c.Shopify.APIVersion},
		{KeyShopifyLocation, orDash(c.Shopify.LocationID)},
		{KeySupplierURL, c.Supplier.URL},
		{KeyTelegramToken, set(c.Telegram.BotToken)},
		{KeyTelegramChat, orDash(c.Telegram.ChatID)},
		{KeySyncHours, fmt.Sprint(c.Schedule.SyncEveryHours)},
		{KeyScanHours, fmt.Sprint(c.Schedule.ScanEveryHours)},
		{"REPORT_TIME", fmt.Sprintf("%02d:%02d %s", c.Schedule.ReportHour, c.Schedule.ReportMinute, tz)},
		{KeyCurrencyDecimals, fmt.Sprint(c.Pricing.CurrencyDecimals)},
		{KeyMinProfitMargin, fmt.Sprint(c.Pricing.MinProfitMargin)},
		{KeyStorageDriver, c.Storage.Driver},
	}
}
