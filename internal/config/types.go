package config

import (
	"errors"
	"time"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the fully resolved process configuration.
//
// Values come from the process environment first, then the config file, then
// the defaults below. Secrets never appear in Summary output.
type Config struct {
	SessionSecret string `json:"session_secret"`
	// SessionSecretGenerated is set when no secret was configured and a random
	// one was generated for this process.
	SessionSecretGenerated bool   `json:"session_secret_generated"`
	DashboardPIN           string `json:"dashboard_pin"`

	Shopify  ShopifyConfig  `json:"shopify"`
	Supplier SupplierConfig `json:"supplier"`
	Telegram TelegramConfig `json:"telegram"`
	Schedule ScheduleConfig `json:"schedule"`
	Pricing  PricingConfig  `json:"pricing"`
	HTTP     HTTPConfig     `json:"http"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`

	MetricsEnabled bool `json:"metrics_enabled"`
}

type ShopifyConfig struct {
	ShopName    string `json:"shop_name"`
	AccessToken string `json:"access_token"`
	APIVersion  string `json:"api_version"`
	LocationID  string `json:"location_id"`
}

type SupplierConfig struct {
	// URL is "local" for built-in sample data or an http(s) endpoint.
	URL string `json:"url"`
}

type TelegramConfig struct {
	BotToken   string        `json:"bot_token"`
	ChatID     string        `json:"chat_id"`
	APIURL     string        `json:"api_url"`
	Timeout    time.Duration `json:"timeout"`
	RatePerSec int           `json:"rate_per_sec"`
}

// ScheduleConfig is read once at startup.
type ScheduleConfig struct {
	SyncEveryHours float64 `json:"sync_every_hours"`
	ScanEveryHours float64 `json:"scan_every_hours"`
	ReportHour     int     `json:"report_hour"`
	ReportMinute   int     `json:"report_minute"`
	Timezone       string  `json:"timezone"`
}

type PricingConfig struct {
	CurrencyDecimals int     `json:"currency_decimals"`
	MinProfitMargin  float64 `json:"min_profit_margin"`
}

type HTTPConfig struct {
	Addr string `json:"addr"`
	// Timeout bounds every outbound call to the store and supplier.
	Timeout time.Duration `json:"timeout"`
}

type LoggingConfig struct {
	Level   string `json:"level"`
	Console bool   `json:"console"`
	// File enables the JSON file sink when non-empty.
	File string `json:"file"`
}

type StorageConfig struct {
	Driver      string        `json:"driver"` // none | file | sqlite
	Path        string        `json:"path"`
	BusyTimeout time.Duration `json:"busy_timeout"`
}

// Environment keys.
const (
	KeyFlaskSecret      = "FLASK_SECRET"
	KeySessionSecret    = "SESSION_SECRET"
	KeyDashboardPIN     = "DASHBOARD_PIN"
	KeyShopName         = "SHOP_NAME"
	KeyShopifyToken     = "SHOPIFY_ACCESS_TOKEN"
	KeyShopifyVersion   = "SHOPIFY_API_VERSION"
	KeyShopifyLocation  = "SHOPIFY_LOCATION_ID"
	KeySupplierURL      = "SUPPLIER_API_URL"
	KeyTelegramToken    = "TELEGRAM_BOT_TOKEN"
	KeyTelegramChat     = "TELEGRAM_CHAT_ID"
	KeyTelegramAPI      = "TELEGRAM_API_URL"
	KeySyncHours        = "SYNC_INTERVAL_HOURS"
	KeyScanHours        = "MARKET_SCAN_INTERVAL_HOURS"
	KeyReportHour       = "REPORT_HOUR_LOCAL"
	KeyReportMinute     = "REPORT_MIN_LOCAL"
	KeyReportTimezone   = "REPORT_TIMEZONE"
	KeyCurrencyDecimals = "CURRENCY_DECIMALS"
	KeyMinProfitMargin  = "MIN_PROFIT_MARGIN"
	KeyHTTPAddr         = "HTTP_ADDR"
	KeyHTTPTimeout      = "HTTP_TIMEOUT"
	KeyNotifyTimeout    = "NOTIFY_TIMEOUT"
	KeyNotifyRate       = "NOTIFY_RATE_PER_SEC"
	KeyLogLevel         = "LOG_LEVEL"
	KeyLogConsole       = "LOG_CONSOLE"
	KeyLogFile          = "LOG_FILE"
	KeyStorageDriver    = "STORAGE_DRIVER"
	KeyStoragePath      = "STORAGE_PATH"
	KeyStorageBusy      = "STORAGE_BUSY_TIMEOUT"
	KeyMetricsEnabled   = "METRICS_ENABLED"
)

const (
	DefaultPIN              = "5631"
	DefaultAPIVersion       = "2024-10"
	DefaultSupplierURL      = "local"
	DefaultSyncHours        = 3.0
	DefaultScanHours        = 6.0
	DefaultReportHour       = 15
	DefaultReportMinute     = 0
	DefaultCurrencyDecimals = 2
	DefaultMinProfitMargin  = 0.20
	DefaultHTTPAddr         = "0.0.0.0:80"
	DefaultHTTPTimeout      = 30 * time.Second
	DefaultNotifyTimeout    = 15 * time.Second
	DefaultNotifyRate       = 1
	DefaultLogLevel         = "INFO"
	DefaultStorageDriver    = "none"
)

// ShopifyConfigured reports whether both the shop domain and token are set.
func (c *Config) ShopifyConfigured() bool {
	return c.Shopify.ShopName != "" && c.Shopify.AccessToken != ""
}

// TelegramConfigured reports whether notifications go to Telegram.
func (c *Config) TelegramConfigured() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}
