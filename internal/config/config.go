// Package config provides configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Chains    []ChainConfig   `mapstructure:"chains"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	TUIMode  bool `mapstructure:"-"` // set at runtime
	DemoMode bool `mapstructure:"-"` // set at runtime
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// EngineConfig tunes price acquisition.
type EngineConfig struct {
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryLimit     int           `mapstructure:"retry_limit"` // backup endpoint attempts after a primary failure
	MaxParallel    int           `mapstructure:"max_parallel"`
}

// ChainConfig describes how to price the pair on one chain.
type ChainConfig struct {
	Name   string        `mapstructure:"name"`
	Pair   string        `mapstructure:"pair"`
	RPC    RPCConfig     `mapstructure:"rpc"`
	Pool   *PoolConfig   `mapstructure:"pool"`
	Oracle *OracleConfig `mapstructure:"oracle"`
	Api    *ApiConfig    `mapstructure:"api"`
}

// RPCConfig holds a chain's JSON-RPC endpoints.
type RPCConfig struct {
	Primary string `mapstructure:"primary"`
	Backup  string `mapstructure:"backup"`
}

// PoolConfig identifies the reference AMM pool.
type PoolConfig struct {
	Address       string `mapstructure:"address"`
	Variant       string `mapstructure:"variant"` // v2 | v3
	BaseDecimals  uint8  `mapstructure:"base_decimals"`
	QuoteDecimals uint8  `mapstructure:"quote_decimals"`
	BaseIsToken0  bool   `mapstructure:"base_is_token0"`
}

// OracleConfig identifies a price feed.
type OracleConfig struct {
	FeedAddress string `mapstructure:"feed_address"`
}

// ApiConfig carries per-chain identifiers for the aggregator APIs.
type ApiConfig struct {
	Network      string `mapstructure:"network"`
	TokenAddress string `mapstructure:"token_address"`
	DexChainID   string `mapstructure:"dex_chain_id"`
	PairAddress  string `mapstructure:"pair_address"`
	SubgraphURL  string `mapstructure:"subgraph_url"`
	PoolID       string `mapstructure:"pool_id"`
}

// SourcesConfig selects and configures price sources.
type SourcesConfig struct {
	Enabled []string          `mapstructure:"enabled"`
	Api     ApiEndpoints      `mapstructure:"api"`
	Index   IndexSourceConfig `mapstructure:"index"`
}

// ApiEndpoints holds base URLs of the hosted aggregators.
type ApiEndpoints struct {
	TokenPriceURL string `mapstructure:"token_price_url"`
	DexPairURL    string `mapstructure:"dex_pair_url"`

	RequestsPerMinute int `mapstructure:"requests_per_minute"` // shared by all lookups, 0 = unlimited
}

// IndexSourceConfig configures the chain-agnostic spot price index.
type IndexSourceConfig struct {
	URL        string        `mapstructure:"url"`
	CoinID     string        `mapstructure:"coin_id"`
	VsCurrency string        `mapstructure:"vs_currency"`
	Interval   time.Duration `mapstructure:"interval"` // minimum spacing between requests
}

// MonitorConfig holds the polling defaults and tasks started at boot.
type MonitorConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Tasks    []TaskConfig  `mapstructure:"tasks"`
}

// TaskConfig is a monitoring task declared in configuration.
type TaskConfig struct {
	ID               string        `mapstructure:"id"`
	ChainA           string        `mapstructure:"chain_a"` // "chain:pair"
	ChainB           string        `mapstructure:"chain_b"`
	ThresholdPercent float64       `mapstructure:"threshold_percent"`
	CooldownSeconds  int64         `mapstructure:"cooldown_seconds"`
	Interval         time.Duration `mapstructure:"interval"`
	Active           *bool         `mapstructure:"active"` // nil means active
}

// NotifyConfig selects alert sinks.
type NotifyConfig struct {
	Console   bool            `mapstructure:"console"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Redis     RedisConfig     `mapstructure:"redis"`
}

// WebhookConfig posts alerts as JSON.
type WebhookConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// WebSocketConfig pushes alerts to a websocket endpoint.
type WebSocketConfig struct {
	URL string `mapstructure:"url"`
}

// RedisConfig publishes alerts on a channel.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// HTTPConfig holds listener ports. Zero disables a listener.
type HTTPConfig struct {
	APIPort    int `mapstructure:"api_port"`
	HealthPort int `mapstructure:"health_port"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	TraceProvider  string `mapstructure:"trace_provider"` // zipkin | stdout | otlp-grpc | otlp-http
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string `mapstructure:"otlp_headers"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// Chain returns the configuration of the named chain.
func (c *Config) Chain(name string) (ChainConfig, bool) {
	for _, ch := range c.Chains {
		if ch.Name == name {
			return ch, true
		}
	}
	return ChainConfig{}, false
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("PGM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyRPCOverrides(v, &cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "PGM_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "PGM_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "PGM_LOG_LEVEL", "LOG_LEVEL")

	// Notify
	v.BindEnv("notify.webhook.url", "PGM_WEBHOOK_URL")
	v.BindEnv("notify.websocket.url", "PGM_WEBSOCKET_URL")
	v.BindEnv("notify.redis.addr", "PGM_REDIS_ADDR", "REDIS_ADDR")
	v.BindEnv("notify.redis.password", "PGM_REDIS_PASSWORD", "REDIS_PASSWORD")

	// Telemetry
	v.BindEnv("telemetry.enabled", "PGM_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "PGM_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "PGM_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// applyRPCOverrides lets PGM_RPC_<CHAIN>_PRIMARY / _BACKUP replace configured endpoints.
func applyRPCOverrides(v *viper.Viper, cfg *Config) {
	for i := range cfg.Chains {
		name := strings.ToLower(cfg.Chains[i].Name)
		if url := v.GetString("rpc_" + name + "_primary"); url != "" {
			cfg.Chains[i].RPC.Primary = url
		}
		if url := v.GetString("rpc_" + name + "_backup"); url != "" {
			cfg.Chains[i].RPC.Backup = url
		}
	}
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "pricegap-monitor")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Engine defaults
	v.SetDefault("engine.cache_ttl", "30s")
	v.SetDefault("engine.request_timeout", "10s")
	v.SetDefault("engine.retry_limit", 1)
	v.SetDefault("engine.max_parallel", 4)

	v.SetDefault("chains", defaultChains())

	// Sources, tried in this order unless priorities say otherwise
	v.SetDefault("sources.enabled", []string{"pool", "oracle", "api", "index"})
	v.SetDefault("sources.api.token_price_url", "https://coins.llama.fi")
	v.SetDefault("sources.api.dex_pair_url", "https://api.dexscreener.com")
	v.SetDefault("sources.api.requests_per_minute", 300)
	v.SetDefault("sources.index.url", "https://api.coingecko.com/api/v3")
	v.SetDefault("sources.index.coin_id", "ethereum")
	v.SetDefault("sources.index.vs_currency", "usd")
	v.SetDefault("sources.index.interval", "1500ms")

	// Monitor defaults
	v.SetDefault("monitor.interval", "15s")

	// Notify defaults
	v.SetDefault("notify.console", true)
	v.SetDefault("notify.webhook.timeout", "5s")
	v.SetDefault("notify.redis.channel", "pricegap:alerts")

	// HTTP defaults
	v.SetDefault("http.api_port", 8080)
	v.SetDefault("http.health_port", 8081)

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "pricegap-monitor")
	v.SetDefault("telemetry.trace_provider", "zipkin")
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// defaultChains returns WETH/USDC references on four chains.
func defaultChains() []map[string]any {
	return []map[string]any{
		{
			"name": "ethereum",
			"pair": "ETH/USDC",
			"rpc": map[string]any{
				"primary": "https://eth.llamarpc.com",
				"backup":  "https://rpc.ankr.com/eth",
			},
			"pool": map[string]any{
				"address":        "0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640",
				"variant":        "v3",
				"base_decimals":  18,
				"quote_decimals": 6,
				"base_is_token0": false,
			},
			"oracle": map[string]any{"feed_address": "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"},
			"api": map[string]any{
				"network":       "ethereum",
				"token_address": "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
				"dex_chain_id":  "ethereum",
				"pair_address":  "0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640",
			},
		},
		{
			"name": "arbitrum",
			"pair": "ETH/USDC",
			"rpc": map[string]any{
				"primary": "https://arb1.arbitrum.io/rpc",
				"backup":  "https://rpc.ankr.com/arbitrum",
			},
			"pool": map[string]any{
				"address":        "0xC6962004f452bE9203591991D15f6b388e09E8D0",
				"variant":        "v3",
				"base_decimals":  18,
				"quote_decimals": 6,
				"base_is_token0": true,
			},
			"oracle": map[string]any{"feed_address": "0x639Fe6ab55C921f74e7fac1ee960C0B6293ba612"},
			"api": map[string]any{
				"network":       "arbitrum",
				"token_address": "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1",
				"dex_chain_id":  "arbitrum",
				"pair_address":  "0xC6962004f452bE9203591991D15f6b388e09E8D0",
			},
		},
		{
			"name": "base",
			"pair": "ETH/USDC",
			"rpc": map[string]any{
				"primary": "https://mainnet.base.org",
				"backup":  "https://base.llamarpc.com",
			},
			"pool": map[string]any{
				"address":        "0xd0b53D9277642d899DF5C87A3966A349A798F224",
				"variant":        "v3",
				"base_decimals":  18,
				"quote_decimals": 6,
				"base_is_token0": true,
			},
			"oracle": map[string]any{"feed_address": "0x71041dddad3595F9CEd3DcCFBe3D1F4b0a16Bb70"},
			"api": map[string]any{
				"network":       "base",
				"token_address": "0x4200000000000000000000000000000000000006",
				"dex_chain_id":  "base",
				"pair_address":  "0xd0b53D9277642d899DF5C87A3966A349A798F224",
			},
		},
		{
			"name": "polygon",
			"pair": "ETH/USDC",
			"rpc": map[string]any{
				"primary": "https://polygon-rpc.com",
				"backup":  "https://rpc.ankr.com/polygon",
			},
			"pool": map[string]any{
				"address":        "0x45dDa9cb7c25131DF268515131f647d726f50608",
				"variant":        "v3",
				"base_decimals":  18,
				"quote_decimals": 6,
				"base_is_token0": false,
			},
			"oracle": map[string]any{"feed_address": "0xF9680D99D6C9589e2a93a78A04A279e509205945"},
			"api": map[string]any{
				"network":       "polygon",
				"token_address": "0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619",
				"dex_chain_id":  "polygon",
				"pair_address":  "0x45dDa9cb7c25131DF268515131f647d726f50608",
			},
		},
	}
}

var knownSources = map[string]bool{"pool": true, "oracle": true, "api": true, "index": true}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Chains) == 0 {
		return fmt.Errorf("at least one chain is required")
	}
	if c.Engine.MaxParallel < 0 {
		return fmt.Errorf("engine.max_parallel must not be negative")
	}
	if c.Engine.RetryLimit < 0 {
		return fmt.Errorf("engine.retry_limit must not be negative")
	}

	seen := make(map[string]bool, len(c.Chains))
	for i, ch := range c.Chains {
		if ch.Name == "" {
			return fmt.Errorf("chains[%d].name is required", i)
		}
		if seen[ch.Name] {
			return fmt.Errorf("chain %q declared twice", ch.Name)
		}
		seen[ch.Name] = true

		if err := ch.validate(); err != nil {
			return fmt.Errorf("chain %q: %w", ch.Name, err)
		}
	}

	for _, s := range c.Sources.Enabled {
		if !knownSources[s] {
			return fmt.Errorf("unknown source %q in sources.enabled", s)
		}
	}

	ids := make(map[string]bool, len(c.Monitor.Tasks))
	for i, t := range c.Monitor.Tasks {
		if t.ID == "" {
			return fmt.Errorf("monitor.tasks[%d].id is required", i)
		}
		if ids[t.ID] {
			return fmt.Errorf("monitor task %q declared twice", t.ID)
		}
		ids[t.ID] = true

		for _, side := range []string{t.ChainA, t.ChainB} {
			chain, _, _ := strings.Cut(side, ":")
			if !seen[strings.TrimSpace(chain)] {
				return fmt.Errorf("monitor task %q references unknown chain %q", t.ID, side)
			}
		}
		if t.ThresholdPercent < 0 {
			return fmt.Errorf("monitor task %q: threshold_percent must not be negative", t.ID)
		}
		if t.CooldownSeconds < 0 {
			return fmt.Errorf("monitor task %q: cooldown_seconds must not be negative", t.ID)
		}
	}

	return nil
}

func (ch ChainConfig) validate() error {
	if ch.Pool != nil && ch.Pool.Address != "" {
		if !common.IsHexAddress(ch.Pool.Address) {
			return fmt.Errorf("invalid pool.address: %s", ch.Pool.Address)
		}
		switch strings.ToLower(ch.Pool.Variant) {
		case "v2", "v3", "constant_product", "concentrated_liquidity", "cpmm", "clmm":
		default:
			return fmt.Errorf("invalid pool.variant: %q", ch.Pool.Variant)
		}
	}
	if ch.Oracle != nil && ch.Oracle.FeedAddress != "" && !common.IsHexAddress(ch.Oracle.FeedAddress) {
		return fmt.Errorf("invalid oracle.feed_address: %s", ch.Oracle.FeedAddress)
	}
	if ch.Api != nil {
		for field, addr := range map[string]string{
			"api.token_address": ch.Api.TokenAddress,
			"api.pair_address":  ch.Api.PairAddress,
		} {
			if addr != "" && !common.IsHexAddress(addr) {
				return fmt.Errorf("invalid %s: %s", field, addr)
			}
		}
	}
	if (ch.Pool != nil || ch.Oracle != nil) && ch.RPC.Primary == "" {
		return fmt.Errorf("rpc.primary is required for on-chain sources")
	}
	return nil
}
