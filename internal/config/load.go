package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "go.yaml.in/yaml/v3"
)

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// ReadFile returns the raw key/value pairs of a config file.
// A missing file yields an empty map. ".yaml"/".yml" files are a flat map of
// the same keys; anything else is parsed as a dotenv file.
func ReadFile(path string) (map[string]string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return map[string]string{}, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		return parseYAML(b)
	}
	m, err := godotenv.UnmarshalBytes(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func parseYAML(b []byte) (map[string]string, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch x := v.(type) {
		case nil:
			out[k] = ""
		case map[string]any, []any:
			return nil, fmt.Errorf("yaml: key %s must be a scalar", k)
		default:
			out[k] = fmt.Sprint(x)
		}
	}
	return out, nil
}

// resolver layers the environment over the file and collects parse warnings.
type resolver struct {
	file     map[string]string
	lookup   LookupFunc
	warnings []string
}

func (r *resolver) get(key string) string {
	if r.lookup != nil {
		if v, ok := r.lookup(key); ok {
			return strings.TrimSpace(v)
		}
	}
	return strings.TrimSpace(r.file[key])
}

func (r *resolver) str(key, def string) string {
	if v := r.get(key); v != "" {
		return v
	}
	return def
}

func (r *resolver) warn(key, raw string, def any) {
	r.warnings = append(r.warnings, fmt.Sprintf("%s=%q is not valid; using default %v", key, raw, def))
}

func (r *resolver) getInt(key string, def int) int {
	raw := r.get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		r.warn(key, raw, def)
		return def
	}
	return n
}

func (r *resolver) getFloat(key string, def float64) float64 {
	raw := r.get(key)
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		r.warn(key, raw, def)
		return def
	}
	return f
}

func (r *resolver) getBool(key string, def bool) bool {
	raw := r.get(key)
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		r.warn(key, raw, def)
		return def
	}
	return b
}

func (r *resolver) getDuration(key string, def time.Duration) time.Duration {
	raw := r.get(key)
	d, err := ParseDurationOrDefault(key, raw, def)
	if err != nil {
		r.warn(key, raw, def)
		return def
	}
	return d
}

// Resolve builds a Config from file values and the environment. It never
// fails: malformed values fall back to defaults and are returned as warnings.
// Call Validate on the result.
func Resolve(file map[string]string, lookup LookupFunc) (*Config, []string) {
	r := &resolver{file: file, lookup: lookup}

	cfg := &Config{
		SessionSecret: r.str(KeyFlaskSecret, r.get(KeySessionSecret)),
		DashboardPIN:  r.str(KeyDashboardPIN, DefaultPIN),
		Shopify: ShopifyConfig{
			ShopName:    r.get(KeyShopName),
			AccessToken: r.get(KeyShopifyToken),
			APIVersion:  r.str(KeyShopifyVersion, DefaultAPIVersion),
			LocationID:  r.get(KeyShopifyLocation),
		},
		Supplier: SupplierConfig{URL: r.str(KeySupplierURL, DefaultSupplierURL)},
		Telegram: TelegramConfig{
			BotToken:   r.get(KeyTelegramToken),
			ChatID:     r.get(KeyTelegramChat),
			APIURL:     r.get(KeyTelegramAPI),
			Timeout:    r.getDuration(KeyNotifyTimeout, DefaultNotifyTimeout),
			RatePerSec: r.getInt(KeyNotifyRate, DefaultNotifyRate),
		},
		Schedule: ScheduleConfig{
			SyncEveryHours: r.getFloat(KeySyncHours, DefaultSyncHours),
			ScanEveryHours: r.getFloat(KeyScanHours, DefaultScanHours),
			ReportHour:     r.getInt(KeyReportHour, DefaultReportHour),
			ReportMinute:   r.getInt(KeyReportMinute, DefaultReportMinute),
			Timezone:       r.get(KeyReportTimezone),
		},
		Pricing: PricingConfig{
			CurrencyDecimals: r.getInt(KeyCurrencyDecimals, DefaultCurrencyDecimals),
			MinProfitMargin:  r.getFloat(KeyMinProfitMargin, DefaultMinProfitMargin),
		},
		HTTP: HTTPConfig{
			Addr:    r.str(KeyHTTPAddr, DefaultHTTPAddr),
			Timeout: r.getDuration(KeyHTTPTimeout, DefaultHTTPTimeout),
		},
		Logging: LoggingConfig{
			Level:   r.str(KeyLogLevel, DefaultLogLevel),
			Console: r.getBool(KeyLogConsole, true),
			File:    r.get(KeyLogFile),
		},
		Storage: StorageConfig{
			Driver:      strings.ToLower(r.str(KeyStorageDriver, DefaultStorageDriver)),
			Path:        r.get(KeyStoragePath),
			BusyTimeout: r.getDuration(KeyStorageBusy, 0),
		},
		MetricsEnabled: r.getBool(KeyMetricsEnabled, false),
	}

	if strings.EqualFold(cfg.Schedule.Timezone, "local") {
		cfg.Schedule.Timezone = ""
	}
	if cfg.SessionSecret == "" {
		cfg.SessionSecret = randomSecret()
		cfg.SessionSecretGenerated = true
	}
	sort.Strings(r.warnings)
	return cfg, r.warnings
}

// Load reads path, layers the process environment over it and validates.
func Load(path string) (*Config, []string, error) {
	file, err := ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	cfg, warnings := Resolve(file, os.LookupEnv)
	if err := Validate(cfg); err != nil {
		return nil, warnings, err
	}
	return cfg, warnings, nil
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return hex.EncodeToString(b)
}
