// Package config loads papertrader settings from the environment (and an
// optional config file) with defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	// HTTP
	HTTPAddr       string
	MetricsAddr    string // separate metrics/health listener; empty serves them on HTTPAddr only
	AllowedOrigins []string
	ControlSecret  string // TOTP secret guarding /start and /stop; empty disables

	LogLevel string

	// Session
	BufferCapacity int
	SMAShort       int
	SMALong        int
	RSIPeriod      int
	ATRPeriod      int
	RSIOverbought  float64
	RSIOversold    float64
	FetchTimeout   time.Duration
	TickInterval   time.Duration // auto tick period; 0 disables
	AutoSymbol     string        // start a session at boot when set
	AutoCapital    float64

	// Binance
	BinanceAPIKey    string
	BinanceAPISecret string
	BinanceBaseURL   string
	BinanceTestnet   bool
	KlineInterval    string

	// Infrastructure (each optional)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string

	// Alerts (each optional)
	WebhookURL     string
	TelegramToken  string
	TelegramChatID int64
}

var defaults = map[string]interface{}{
	"HTTP_ADDR":          ":3000",
	"METRICS_ADDR":       "",
	"ALLOWED_ORIGINS":    "*",
	"LOG_LEVEL":          "info",
	"BUFFER_CAPACITY":    192,
	"SMA_SHORT":          5,
	"SMA_LONG":           16,
	"RSI_PERIOD":         14,
	"ATR_PERIOD":         14,
	"RSI_OVERBOUGHT":     70.0,
	"RSI_OVERSOLD":       30.0,
	"FETCH_TIMEOUT":      "10s",
	"TICK_INTERVAL":      "0s",
	"AUTO_START_CAPITAL": 1000.0,
	"KLINE_INTERVAL":     "15m",
	"BINANCE_TESTNET":    false,
	"REDIS_DB":           0,
}

// Load reads configuration. Environment variables win over CONFIG_FILE
// entries, which win over defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
	}

	cfg := &Config{
		HTTPAddr:       v.GetString("HTTP_ADDR"),
		MetricsAddr:    v.GetString("METRICS_ADDR"),
		AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),
		ControlSecret:  v.GetString("CONTROL_TOTP_SECRET"),
		LogLevel:       v.GetString("LOG_LEVEL"),

		BufferCapacity: v.GetInt("BUFFER_CAPACITY"),
		SMAShort:       v.GetInt("SMA_SHORT"),
		SMALong:        v.GetInt("SMA_LONG"),
		RSIPeriod:      v.GetInt("RSI_PERIOD"),
		ATRPeriod:      v.GetInt("ATR_PERIOD"),
		RSIOverbought:  v.GetFloat64("RSI_OVERBOUGHT"),
		RSIOversold:    v.GetFloat64("RSI_OVERSOLD"),
		FetchTimeout:   v.GetDuration("FETCH_TIMEOUT"),
		TickInterval:   v.GetDuration("TICK_INTERVAL"),
		AutoSymbol:     strings.ToUpper(v.GetString("AUTO_START_SYMBOL")),
		AutoCapital:    v.GetFloat64("AUTO_START_CAPITAL"),

		BinanceAPIKey:    v.GetString("BINANCE_API_KEY"),
		BinanceAPISecret: v.GetString("BINANCE_API_SECRET"),
		BinanceBaseURL:   v.GetString("BINANCE_BASE_URL"),
		BinanceTestnet:   v.GetBool("BINANCE_TESTNET"),
		KlineInterval:    v.GetString("KLINE_INTERVAL"),

		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),
		SQLitePath:    v.GetString("SQLITE_PATH"),

		WebhookURL:     v.GetString("WEBHOOK_URL"),
		TelegramToken:  v.GetString("TELEGRAM_TOKEN"),
		TelegramChatID: v.GetInt64("TELEGRAM_CHAT_ID"),
	}
	return cfg, cfg.Validate()
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	var problems []string
	if c.HTTPAddr == "" {
		problems = append(problems, "HTTP_ADDR is empty")
	}
	if c.SMAShort <= 0 || c.SMALong <= 0 || c.RSIPeriod <= 0 || c.ATRPeriod <= 0 {
		problems = append(problems, "indicator periods must be positive")
	} else if c.SMAShort >= c.SMALong {
		problems = append(problems, fmt.Sprintf("SMA_SHORT (%d) must be below SMA_LONG (%d)", c.SMAShort, c.SMALong))
	}
	if c.BufferCapacity < 0 {
		problems = append(problems, "BUFFER_CAPACITY must not be negative")
	}
	if c.RSIOversold < 0 || c.RSIOverbought > 100 || c.RSIOversold >= c.RSIOverbought {
		problems = append(problems, fmt.Sprintf("RSI thresholds must satisfy 0 <= oversold (%g) < overbought (%g) <= 100", c.RSIOversold, c.RSIOverbought))
	}
	if c.FetchTimeout <= 0 {
		problems = append(problems, "FETCH_TIMEOUT must be positive")
	}
	if c.TickInterval < 0 {
		problems = append(problems, "TICK_INTERVAL must not be negative")
	}
	if c.AutoSymbol != "" && c.AutoCapital <= 0 {
		problems = append(problems, "AUTO_START_CAPITAL must be positive")
	}
	if c.KlineInterval == "" {
		problems = append(problems, "KLINE_INTERVAL is empty")
	}
	if (c.TelegramToken == "") != (c.TelegramChatID == 0) {
		problems = append(problems, "TELEGRAM_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
