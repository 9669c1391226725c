// Package config loads agent runtime configuration from environment
// variables. There is no config file format: every setting is an env var,
// parsed once at startup into a typed, immutable Config.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/bobbyswhip/x402c/internal/model"

	"github.com/ethereum/go-ethereum/common"
)

// ContractsConfig holds every on-chain contract address the agent reads
// from or writes to. A zero address means the module is unconfigured; the
// components that depend on it degrade rather than fail startup, except
// where validate() requires the address.
type ContractsConfig struct {
	Hub           common.Address
	KeepAlive     common.Address
	Staking       common.Address
	USDC          common.Address
	BuybackModule common.Address
	PriceOracle   common.Address
	Token         common.Address
	SwapRouter    common.Address
}

// ChainConfig holds the RPC endpoint and rate-limit budget for the single
// pinned chain this agent operates against.
type ChainConfig struct {
	RPCURL             string
	ChainID            int64
	RPCRateLimitPerSec int
}

// ServerConfig holds the admin/read HTTP surface's listen settings.
type ServerConfig struct {
	HealthPort int
}

// LogConfig holds structured-logging output settings.
type LogConfig struct {
	Level  string
	Format string
}

// HandlersConfig holds the upstream base URLs the two built-in HTTP
// handler classes forward request params to.
type HandlersConfig struct {
	AlchemyBaseURL string
	OpenSeaBaseURL string
}

// AlertConfig holds outbound alert-channel settings. Both may be empty, in
// which case alerts are only logged.
type AlertConfig struct {
	SlackWebhookURL   string
	GenericWebhookURL string
	CooldownSeconds   int
}

// Config is the fully-loaded, validated runtime configuration.
type Config struct {
	Contracts ContractsConfig
	Chain     ChainConfig
	Server    ServerConfig
	Log       LogConfig
	Handlers  HandlersConfig
	Alert     AlertConfig

	AdminPrivateKey string // hex, no 0x prefix required; empty disables writes
	RedisURL        string // empty selects the in-process LocalSink
	OTLPEndpoint    string // empty selects the no-op tracer

	DataDir                  string // cursor files live under here
	SenderQueueDepth         int
	ReconcileIntervalSeconds int
	IdentityMap              string // "addr=name,addr=name", seeds the static identity resolver
	EndpointClassMap         string // "0xendpointId=alchemy,0xendpointId=opensea", seeds the router's static classifier
	DefaultLookbackBlocks    uint64 // fresh-install watcher cursors seed at current_block - this, instead of genesis

	WritesEnabled bool // derived: true iff AdminPrivateKey is set
}

// Load reads Config from the process environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Contracts: ContractsConfig{
			Hub:           common.HexToAddress(getEnv("HUB_CONTRACT", "")),
			KeepAlive:     common.HexToAddress(getEnv("KEEPALIVE_CONTRACT", "")),
			Staking:       common.HexToAddress(getEnv("STAKING_CONTRACT", "")),
			USDC:          common.HexToAddress(getEnv("USDC_CONTRACT", "")),
			BuybackModule: common.HexToAddress(getEnv("BUYBACK_MODULE", "")),
			PriceOracle:   common.HexToAddress(getEnv("PRICE_ORACLE", "")),
			Token:         common.HexToAddress(getEnv("TOKEN_CONTRACT", "")),
			SwapRouter:    common.HexToAddress(getEnv("SWAP_ROUTER", "")),
		},
		Chain: ChainConfig{
			RPCURL:             getEnv("RPC_URL", "https://mainnet.base.org"),
			ChainID:            int64(getEnvInt("CHAIN_ID", 8453)),
			RPCRateLimitPerSec: getEnvInt("RPC_RATE_LIMIT_PER_SEC", 20),
		},
		Server: ServerConfig{
			HealthPort: getEnvInt("HEALTH_PORT", 8080),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Handlers: HandlersConfig{
			AlchemyBaseURL: getEnv("ALCHEMY_BASE_URL", ""),
			OpenSeaBaseURL: getEnv("OPENSEA_BASE_URL", ""),
		},
		Alert: AlertConfig{
			SlackWebhookURL:   getEnv("ALERT_SLACK_WEBHOOK_URL", ""),
			GenericWebhookURL: getEnv("ALERT_WEBHOOK_URL", ""),
			CooldownSeconds:   getEnvInt("ALERT_COOLDOWN_SECONDS", 300),
		},
		AdminPrivateKey:          getEnv("ADMIN_PRIVATE_KEY", ""),
		RedisURL:                 getEnv("REDIS_URL", ""),
		OTLPEndpoint:             getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		DataDir:                  getEnv("DATA_DIR", "./data"),
		SenderQueueDepth:         getEnvInt("SENDER_QUEUE_DEPTH", 64),
		ReconcileIntervalSeconds: getEnvInt("RECONCILE_INTERVAL_SECONDS", 120),
		IdentityMap:              getEnv("IDENTITY_MAP", ""),
		EndpointClassMap:         getEnv("ENDPOINT_CLASS_MAP", ""),
		DefaultLookbackBlocks:    uint64(getEnvInt("DEFAULT_LOOKBACK_BLOCKS", 5000)),
	}
	cfg.WritesEnabled = cfg.AdminPrivateKey != ""

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Contracts.Hub == (common.Address{}) {
		return fmt.Errorf("config: HUB_CONTRACT is required")
	}
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("config: RPC_URL is required")
	}
	if c.Chain.ChainID <= 0 {
		return fmt.Errorf("config: CHAIN_ID must be positive, got %d", c.Chain.ChainID)
	}
	if c.Chain.RPCRateLimitPerSec <= 0 {
		return fmt.Errorf("config: RPC_RATE_LIMIT_PER_SEC must be positive, got %d", c.Chain.RPCRateLimitPerSec)
	}
	if c.Server.HealthPort <= 0 || c.Server.HealthPort > 65535 {
		return fmt.Errorf("config: HEALTH_PORT out of range, got %d", c.Server.HealthPort)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: LOG_LEVEL must be one of debug|info|warn|error, got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("config: LOG_FORMAT must be one of json|text, got %q", c.Log.Format)
	}
	return nil
}

// ParseIdentityMap decodes IdentityMap ("addr=name,addr=name") into a
// lookup table suitable for seeding identity.NewStaticResolver. Malformed
// entries are skipped rather than failing startup.
func (c *Config) ParseIdentityMap() map[common.Address]string {
	out := make(map[common.Address]string)
	for _, pair := range strings.Split(c.IdentityMap, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		out[common.HexToAddress(parts[0])] = parts[1]
	}
	return out
}

// ParseEndpointClassMap decodes EndpointClassMap ("0xid=class,0xid=class")
// into a lookup table suitable for router.StaticClassifier. Malformed
// entries are skipped rather than failing startup.
func (c *Config) ParseEndpointClassMap() map[common.Hash]model.HandlerClass {
	out := make(map[common.Hash]model.HandlerClass)
	for _, pair := range strings.Split(c.EndpointClassMap, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		out[common.HexToHash(parts[0])] = model.HandlerClass(parts[1])
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
