package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	logx "whoten/pkg/logx"
)

// Validate reports every out-of-range value at once, wrapped in ErrInvalid.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalid)
	}
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(cfg.DashboardPIN) == "" {
		bad("%s must not be empty", KeyDashboardPIN)
	}
	for _, iv := range []struct {
		key   string
		hours float64
	}{
		{KeySyncHours, cfg.Schedule.SyncEveryHours},
		{KeyScanHours, cfg.Schedule.ScanEveryHours},
	} {
		if math.IsNaN(iv.hours) || math.IsInf(iv.hours, 0) || iv.hours < 0 {
			bad("%s must be a finite number >= 0 (got %v)", iv.key, iv.hours)
		}
	}
	if cfg.Schedule.ReportHour < 0 || cfg.Schedule.ReportHour > 23 {
		bad("%s must be 0..23 (got %d)", KeyReportHour, cfg.Schedule.ReportHour)
	}
	if cfg.Schedule.ReportMinute < 0 || cfg.Schedule.ReportMinute > 59 {
		bad("%s must be 0..59 (got %d)", KeyReportMinute, cfg.Schedule.ReportMinute)
	}
	if tz := cfg.Schedule.Timezone; tz != "" && !strings.EqualFold(tz, "local") {
		if _, err := time.LoadLocation(tz); err != nil {
			bad("%s: %v", KeyReportTimezone, err)
		}
	}
	if cfg.Pricing.CurrencyDecimals < 0 || cfg.Pricing.CurrencyDecimals > 8 {
		bad("%s must be 0..8", KeyCurrencyDecimals)
	}
	if m := cfg.Pricing.MinProfitMargin; math.IsNaN(m) || math.IsInf(m, 0) || m < 0 {
		bad("%s must be >= 0", KeyMinProfitMargin)
	}
	if strings.TrimSpace(cfg.HTTP.Addr) == "" {
		bad("%s must not be empty", KeyHTTPAddr)
	}
	if cfg.Telegram.RatePerSec < 0 {
		bad("%s must be >= 0", KeyNotifyRate)
	}
	if src := cfg.Supplier.URL; src != DefaultSupplierURL {
		u, err := url.Parse(src)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			bad("%s must be %q or an http(s) URL", KeySupplierURL, DefaultSupplierURL)
		}
	}
	if !logx.ValidLevel(cfg.Logging.Level) {
		bad("%s: unknown level %q", KeyLogLevel, cfg.Logging.Level)
	}
	switch cfg.Storage.Driver {
	case "", "none":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			bad("%s is required when %s=%s", KeyStoragePath, KeyStorageDriver, cfg.Storage.Driver)
		}
	default:
		bad("%s: unknown driver %q", KeyStorageDriver, cfg.Storage.Driver)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}
