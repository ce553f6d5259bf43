package app

import (
	"whoten/internal/config"
	"whoten/internal/jobs"
	"whoten/internal/notifier"
	"whoten/internal/shopify"
	"whoten/internal/storage"
	"whoten/internal/task/scheduler"
	logx "whoten/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File != "",
			Path:    cfg.Logging.File,
		},
	}
}

func mapShopify(cfg *config.Config) shopify.Config {
	return shopify.Config{
		ShopDomain:  cfg.Shopify.ShopName,
		AccessToken: cfg.Shopify.AccessToken,
		APIVersion:  cfg.Shopify.APIVersion,
		LocationID:  cfg.Shopify.LocationID,
		Timeout:     cfg.HTTP.Timeout,
	}
}

func mapNotifier(cfg *config.Config) notifier.Config {
	return notifier.Config{
		BotToken:   cfg.Telegram.BotToken,
		ChatID:     cfg.Telegram.ChatID,
		APIURL:     cfg.Telegram.APIURL,
		Timeout:    cfg.Telegram.Timeout,
		RatePerSec: cfg.Telegram.RatePerSec,
	}
}

func mapSupplier(cfg *config.Config) (jobs.Source, jobs.Pricing) {
	return jobs.NewSource(cfg.Supplier.URL, cfg.HTTP.Timeout), jobs.Pricing{
		Margin:   cfg.Pricing.MinProfitMargin,
		Decimals: cfg.Pricing.CurrencyDecimals,
	}
}

func mapScheduler(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		SyncEveryHours: cfg.Schedule.SyncEveryHours,
		ScanEveryHours: cfg.Schedule.ScanEveryHours,
		ReportHour:     cfg.Schedule.ReportHour,
		ReportMinute:   cfg.Schedule.ReportMinute,
		Timezone:       cfg.Schedule.Timezone,
	}
}

func mapStorage(cfg *config.Config) storage.Config {
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.Storage.BusyTimeout,
	}
}
