package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/viper"
)

// Config holds all daemon configuration.
type Config struct {
	Env                string `mapstructure:"env"`
	LogLevel           string `mapstructure:"log_level"`
	LocalStackEndpoint string `mapstructure:"localstack_endpoint"`
	Exchange           ExchangeConfig
	Ledger             LedgerConfig
	Signer             SignerConfig
	RPC                RPCConfig
	Metrics            MetricsConfig
	Redis              RedisConfig
}

// ExchangeConfig describes the pool.
type ExchangeConfig struct {
	Owner           string `mapstructure:"owner"`
	AssetA          string `mapstructure:"asset_a"`
	AssetB          string `mapstructure:"asset_b"`
	Self            string `mapstructure:"self"`
	RegistrationFee string `mapstructure:"registration_fee"`
	StateKey        string `mapstructure:"state_key"`
}

// Validate checks that every identity is a well-formed address and the fee
// parses.
func (e ExchangeConfig) Validate() error {
	var errs []error
	for name, v := range map[string]string{"owner": e.Owner, "asset_a": e.AssetA, "asset_b": e.AssetB} {
		if !common.IsHexAddress(v) {
			errs = append(errs, fmt.Errorf("exchange.%s: invalid address %q", name, v))
		}
	}
	if e.Self != "" && !common.IsHexAddress(e.Self) {
		errs = append(errs, fmt.Errorf("exchange.self: invalid address %q", e.Self))
	}
	if e.AssetA != "" && strings.EqualFold(e.AssetA, e.AssetB) {
		errs = append(errs, errors.New("exchange: asset_a and asset_b must differ"))
	}
	if _, err := e.Fee(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Fee parses RegistrationFee as a decimal amount.
func (e ExchangeConfig) Fee() (*uint256.Int, error) {
	fee, err := uint256.FromDecimal(e.RegistrationFee)
	if err != nil {
		return nil, fmt.Errorf("exchange.registration_fee: %w", err)
	}
	return fee, nil
}

// LedgerConfig holds the websocket ledger connection settings.
type LedgerConfig struct {
	URL                string `mapstructure:"url"`
	CallTimeoutMs      int    `mapstructure:"call_timeout_ms"`
	HeartbeatTimeoutMs int    `mapstructure:"heartbeat_timeout_ms"`
}

func (l LedgerConfig) CallTimeout() time.Duration {
	return time.Duration(l.CallTimeoutMs) * time.Millisecond
}

func (l LedgerConfig) HeartbeatTimeout() time.Duration {
	return time.Duration(l.HeartbeatTimeoutMs) * time.Millisecond
}

// SignerConfig selects where the exchange key comes from: KeyHex for local
// runs, or a KMS-sealed KeyCiphertextFile.
type SignerConfig struct {
	KeyHex            string `mapstructure:"key_hex"`
	KeyCiphertextFile string `mapstructure:"key_ciphertext_file"`
	KMSKeyID          string `mapstructure:"kms_key_id"`
	AWSRegion         string `mapstructure:"aws_region"`
}

// RPCConfig holds the gRPC socket settings.
type RPCConfig struct {
	SocketPath string `mapstructure:"socket_path"`
}

// MetricsConfig holds the Prometheus listener settings.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Load reads configuration from environment variables prefixed with AMM_.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AMM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("env", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("exchange.registration_fee", "1")

	v.SetDefault("ledger.url", "ws://localhost:8546/ledger")
	v.SetDefault("ledger.call_timeout_ms", 5000)
	v.SetDefault("ledger.heartbeat_timeout_ms", 10000)

	v.SetDefault("signer.aws_region", "us-east-1")

	v.SetDefault("rpc.socket_path", "/var/run/amm/exchange.sock")
	v.SetDefault("metrics.addr", ":9464")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	cfg := &Config{}

	cfg.Env = v.GetString("env")
	cfg.LogLevel = v.GetString("log_level")
	cfg.LocalStackEndpoint = v.GetString("localstack_endpoint")

	cfg.Exchange = ExchangeConfig{
		Owner:           v.GetString("exchange.owner"),
		AssetA:          v.GetString("exchange.asset_a"),
		AssetB:          v.GetString("exchange.asset_b"),
		Self:            v.GetString("exchange.self"),
		RegistrationFee: v.GetString("exchange.registration_fee"),
		StateKey:        v.GetString("exchange.state_key"),
	}

	cfg.Ledger = LedgerConfig{
		URL:                v.GetString("ledger.url"),
		CallTimeoutMs:      v.GetInt("ledger.call_timeout_ms"),
		HeartbeatTimeoutMs: v.GetInt("ledger.heartbeat_timeout_ms"),
	}

	cfg.Signer = SignerConfig{
		KeyHex:            v.GetString("signer.key_hex"),
		KeyCiphertextFile: v.GetString("signer.key_ciphertext_file"),
		KMSKeyID:          v.GetString("signer.kms_key_id"),
		AWSRegion:         v.GetString("signer.aws_region"),
	}

	cfg.RPC = RPCConfig{SocketPath: v.GetString("rpc.socket_path")}
	cfg.Metrics = MetricsConfig{Addr: v.GetString("metrics.addr")}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("redis.enabled"),
		Addr:     v.GetString("redis.addr"),
		Password: v.GetString("redis.password"),
		DB:       v.GetInt("redis.db"),
	}

	if cfg.Ledger.CallTimeoutMs <= 0 {
		return nil, fmt.Errorf("config: ledger.call_timeout_ms must be positive, got %d", cfg.Ledger.CallTimeoutMs)
	}
	if cfg.Ledger.HeartbeatTimeoutMs <= 0 {
		return nil, fmt.Errorf("config: ledger.heartbeat_timeout_ms must be positive, got %d", cfg.Ledger.HeartbeatTimeoutMs)
	}

	return cfg, nil
}
