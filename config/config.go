package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full configuration for the sentinel daemon.
type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	Universe UniverseConfig `yaml:"universe"`
	Workers  WorkersConfig  `yaml:"workers"`
	Trading  TradingConfig  `yaml:"trading"`
	Market   MarketConfig   `yaml:"market"`
	Committee CommitteeConfig `yaml:"committee"`
	Broker   BrokerConfig   `yaml:"broker"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

// LLMConfig controls the shared LLM adapter and budget.
type LLMConfig struct {
	Provider     string  `yaml:"provider"` // ollama | openrouter
	URL          string  `yaml:"url"`
	APIKey       string  `yaml:"api_key"`
	Model        string  `yaml:"model"`
	CallsPerMin  int     `yaml:"calls_per_min"`
	Timeout      int     `yaml:"timeout_seconds"`
	Temperature  float64 `yaml:"temperature"`
	MaxReask     int     `yaml:"max_reask"`
	MaxTokens    int     `yaml:"max_tokens"`
}

// UniverseConfig lists the tradable instruments and reference bellwethers.
type UniverseConfig struct {
	Investibles   []string `yaml:"investibles"`
	Bellwethers   []string `yaml:"bellwethers"`
	BellwethersYF []string `yaml:"bellwethers_yf"`
}

// WorkersConfig controls the supervisor's worker cadence and auto-run flags.
type WorkersConfig struct {
	MarketSpeed float64 `yaml:"market_speed"` // ticks/min
	DreamSpeed  float64 `yaml:"dream_speed"`
	ThinkSpeed  float64 `yaml:"think_speed"`
	AutoMarket  bool    `yaml:"auto_market"`
	AutoDream   bool    `yaml:"auto_dream"`
	AutoThink   bool    `yaml:"auto_think"`
	AutoTrade   bool    `yaml:"auto_trade"`
	Options     bool    `yaml:"options_enabled"`
}

// TradingConfig holds the executor's guard-rail parameters.
type TradingConfig struct {
	StartCash                float64 `yaml:"start_cash"`
	MinTradeNotional         float64 `yaml:"min_trade_notional"`
	MaxBuyEquityPctPerCycle  float64 `yaml:"max_buy_equity_pct_per_cycle"`
	MaxSellHoldingPctPerCycle float64 `yaml:"max_sell_holding_pct_per_cycle"`
	MaxSymbolWeightPct       float64 `yaml:"max_symbol_weight_pct"`
	MinCashBufferPct         float64 `yaml:"min_cash_buffer_pct"`
	TradeAnytime             bool    `yaml:"trade_anytime"`
}

// MarketConfig holds market-data provider settings.
type MarketConfig struct {
	DataProvider string `yaml:"data_provider"` // yahoo | alpaca
	YahooTimeout int    `yaml:"yahoo_timeout_seconds"`
	YahooRangeDays int  `yaml:"yahoo_range_days"`
	YahooCacheSeconds int `yaml:"yahoo_cache_seconds"`
}

// CommitteeConfig holds the quality-gate thresholds.
type CommitteeConfig struct {
	StarThreshold        float64 `yaml:"star_threshold"`
	ExplanationMinLength int     `yaml:"explanation_min_length"`
}

// BrokerConfig selects and configures the trade executor backend.
type BrokerConfig struct {
	Provider string `yaml:"provider"` // paper | alpaca
	KeyID    string `yaml:"key_id"`
	Secret   string `yaml:"secret"`
	BaseURL  string `yaml:"base_url"`
	Mode     string `yaml:"mode"` // paper | live, for alpaca's own sandbox switch
}

// StorageConfig controls where the embedded store persists data.
type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

// LogConfig controls log format and verbosity.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the YAML config at path, applies .env overrides (if present),
// then fills in defaults for anything left unset.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// MarketInterval returns the Market worker's tick interval.
func (c *Config) MarketInterval() time.Duration { return speedToInterval(c.Workers.MarketSpeed) }

// DreamInterval returns the Dream worker's tick interval.
func (c *Config) DreamInterval() time.Duration { return speedToInterval(c.Workers.DreamSpeed) }

// ThinkInterval returns the Think worker's tick interval.
func (c *Config) ThinkInterval() time.Duration { return speedToInterval(c.Workers.ThinkSpeed) }

func speedToInterval(ticksPerMin float64) time.Duration {
	if ticksPerMin <= 0 {
		return time.Minute
	}
	return time.Duration(60.0 / ticksPerMin * float64(time.Second))
}

// applyEnvOverrides overrides select fields from the process environment.
// Only the keys most often overridden per-deployment are wired here; the
// rest come from the YAML file, matching the teacher's minimal-override
// convention rather than mapping every key through env.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("INVESTIBLES"); v != "" {
		cfg.Universe.Investibles = splitCSV(v)
	}
	if v := os.Getenv("BELLWETHERS"); v != "" {
		cfg.Universe.Bellwethers = splitCSV(v)
	}
	if v := os.Getenv("BELLWETHERS_YF"); v != "" {
		cfg.Universe.BellwethersYF = splitCSV(v)
	}
	if v := os.Getenv("TRADE_ANYTIME"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Trading.TradeAnytime = b
		}
	}
	if v := os.Getenv("BROKER_PROVIDER"); v != "" {
		cfg.Broker.Provider = v
	}
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// setDefaults ensures every required value has a sane fallback.
func setDefaults(cfg *Config) {
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "ollama"
	}
	if cfg.LLM.CallsPerMin <= 0 {
		cfg.LLM.CallsPerMin = 20
	}
	if cfg.LLM.Timeout <= 0 {
		cfg.LLM.Timeout = 45
	}
	if cfg.LLM.Temperature <= 0 {
		cfg.LLM.Temperature = 0.2
	}
	if cfg.LLM.MaxReask <= 0 {
		cfg.LLM.MaxReask = 2
	}
	if cfg.LLM.MaxTokens <= 0 {
		cfg.LLM.MaxTokens = 1200
	}
	if len(cfg.Universe.Investibles) == 0 {
		cfg.Universe.Investibles = []string{"AAPL", "MSFT", "NVDA", "AMZN", "GOOGL", "META", "TSM", "XLV"}
	}
	if len(cfg.Universe.Bellwethers) == 0 {
		cfg.Universe.Bellwethers = []string{"SPY", "QQQ"}
	}
	if len(cfg.Universe.BellwethersYF) == 0 {
		cfg.Universe.BellwethersYF = []string{"^VIX", "^TNX", "DX-Y.NYB", "CL=F", "TLT"}
	}
	if cfg.Workers.MarketSpeed <= 0 {
		cfg.Workers.MarketSpeed = 1.0 / 3.0 // ~3 min
	}
	if cfg.Workers.DreamSpeed <= 0 {
		cfg.Workers.DreamSpeed = 1.0 / 4.0 // ~4 min
	}
	if cfg.Workers.ThinkSpeed <= 0 {
		cfg.Workers.ThinkSpeed = 1.0 / 5.0 // ~5 min
	}
	if cfg.Trading.StartCash <= 0 {
		cfg.Trading.StartCash = 100000
	}
	if cfg.Trading.MinTradeNotional <= 0 {
		cfg.Trading.MinTradeNotional = 25
	}
	if cfg.Trading.MaxBuyEquityPctPerCycle <= 0 {
		cfg.Trading.MaxBuyEquityPctPerCycle = 10
	}
	if cfg.Trading.MaxSellHoldingPctPerCycle <= 0 {
		cfg.Trading.MaxSellHoldingPctPerCycle = 25
	}
	if cfg.Trading.MaxSymbolWeightPct <= 0 {
		cfg.Trading.MaxSymbolWeightPct = 14
	}
	if cfg.Trading.MinCashBufferPct <= 0 {
		cfg.Trading.MinCashBufferPct = 5
	}
	if cfg.Market.DataProvider == "" {
		cfg.Market.DataProvider = "yahoo"
	}
	if cfg.Market.YahooTimeout <= 0 {
		cfg.Market.YahooTimeout = 12
	}
	if cfg.Market.YahooRangeDays <= 0 {
		cfg.Market.YahooRangeDays = 90
	}
	if cfg.Market.YahooCacheSeconds <= 0 {
		cfg.Market.YahooCacheSeconds = 60
	}
	if cfg.Committee.StarThreshold <= 0 {
		cfg.Committee.StarThreshold = 0.68
	}
	if cfg.Committee.ExplanationMinLength <= 0 {
		cfg.Committee.ExplanationMinLength = 180
	}
	if cfg.Broker.Provider == "" {
		cfg.Broker.Provider = "paper"
	}
	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = "sentinel.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
