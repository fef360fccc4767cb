package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/polyexit/internal/domain"
	"github.com/alejandrodnm/polyexit/internal/domain/strategy"
)

// Config is the full exit bot configuration.
type Config struct {
	IntervalSeconds int              `yaml:"interval_seconds"`
	Exit            ExitConfig       `yaml:"exit"`
	Redemption      RedemptionConfig `yaml:"redemption"`
	Wallet          WalletConfig     `yaml:"wallet"`
	API             APIConfig        `yaml:"api"`
	Chain           ChainConfig      `yaml:"chain"`
	Storage         StorageConfig    `yaml:"storage"`
	Log             LogConfig        `yaml:"log"`
}

// ExitConfig holds the strategy thresholds. They start from Preset and
// any field present in the YAML overrides it.
type ExitConfig struct {
	Preset string `yaml:"preset"` // conservative | balanced | aggressive

	strategy.Config `yaml:",inline"`

	SizeTolerance     float64 `yaml:"size_tolerance"`     // shares of growth before entry metadata is untrusted
	MinPositionSize   float64 `yaml:"min_position_size"`  // Data API sizeThreshold
	EvalWorkers       int     `yaml:"eval_workers"`       // 0 = NumCPU*2
	LookupParallelism int     `yaml:"lookup_parallelism"` // concurrent payout reads
}

// RedemptionConfig controls eligibility and the attempt ledger.
type RedemptionConfig struct {
	MinPositionUSD        float64 `yaml:"min_position_usd"`
	IncludeLosses         bool    `yaml:"include_losses"`
	CooldownSeconds       int     `yaml:"cooldown_seconds"`
	MaxFailures           int     `yaml:"max_failures"`
	BackoffBaseSeconds    int     `yaml:"backoff_base_seconds"`
	BackoffMaxSeconds     int     `yaml:"backoff_max_seconds"`
	ReceiptTimeoutSeconds int     `yaml:"receipt_timeout_seconds"`
}

// WalletConfig describes the signing key and the account holding the positions.
type WalletConfig struct {
	PrivateKey    string `yaml:"-"`              // POLY_PRIVATE_KEY only
	SignatureType int    `yaml:"signature_type"` // 0 EOA, 1 proxy, 2 Gnosis Safe
	Funder        string `yaml:"funder"`         // required unless EOA
	OrderType     string `yaml:"order_type"`     // GTC | FOK
}

// APIConfig holds the Polymarket base URLs.
type APIConfig struct {
	CLOBBase  string `yaml:"clob_base"`
	GammaBase string `yaml:"gamma_base"`
	DataBase  string `yaml:"data_base"`
}

// ChainConfig holds the Polygon RPC endpoint.
type ChainConfig struct {
	RPCURL string `yaml:"rpc_url"`
}

// StorageConfig selects where the ledger lives. The journal and acquisition
// tracker always use SQLite.
type StorageConfig struct {
	Backend string      `yaml:"backend"` // sqlite | redis
	Path    string      `yaml:"path"`    // SQLite file, or ":memory:"
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig is used when Backend is redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// LogConfig controls log format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML file and a .env file if present. Environment
// variables override YAML for secrets and endpoints.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %q: %w", path, err)
	}
	return cfg, nil
}

// Parse builds a Config from YAML bytes, applying env overrides and defaults.
func Parse(data []byte) (*Config, error) {
	var head struct {
		Exit struct {
			Preset string `yaml:"preset"`
		} `yaml:"exit"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	base, err := Preset(head.Exit.Preset)
	if err != nil {
		return nil, err
	}

	// Decoding over the preset keeps preset values for absent keys.
	cfg := Config{Exit: ExitConfig{Config: base}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	setDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Preset returns the named strategy thresholds. An empty name is balanced.
func Preset(name string) (strategy.Config, error) {
	cfg := strategy.Defaults()
	switch strings.ToLower(name) {
	case "", "balanced":
		return cfg, nil
	case "conservative":
		cfg.MinHoldSeconds = 300
		cfg.QuickWinEnabled = false
		cfg.StalePositionHours = 72
		cfg.StaleExpiryHoldHours = 96
		cfg.OversizedExitThresholdUSD = 50
		cfg.OversizedExitBreakevenTolerancePct = 1
		return cfg, nil
	case "aggressive":
		cfg.MinHoldSeconds = 30
		cfg.QuickWinEnabled = true
		cfg.QuickWinMaxHoldMinutes = 120
		cfg.QuickWinProfitPct = 50
		cfg.StalePositionHours = 12
		cfg.StaleExpiryHoldHours = 24
		cfg.OversizedExitThresholdUSD = 15
		cfg.OversizedExitBreakevenTolerancePct = 3
		cfg.OversizedExitHoursBeforeEvent = 3
		return cfg, nil
	default:
		return strategy.Config{}, fmt.Errorf("config.Preset: unknown preset %q", name)
	}
}

// Interval is the polling period.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Cooldown is the minimum wait between attempts on one ledger key.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Redemption.CooldownSeconds) * time.Second
}

// Backoff returns the rate-limit backoff bounds.
func (c *Config) Backoff() (base, ceiling time.Duration) {
	return time.Duration(c.Redemption.BackoffBaseSeconds) * time.Second,
		time.Duration(c.Redemption.BackoffMaxSeconds) * time.Second
}

// ReceiptTimeout bounds the wait for a mined redemption.
func (c *Config) ReceiptTimeout() time.Duration {
	return time.Duration(c.Redemption.ReceiptTimeoutSeconds) * time.Second
}

// SignatureType returns the wallet signature type.
func (c *Config) SignatureType() domain.SignatureType {
	return domain.SignatureType(c.Wallet.SignatureType)
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	var errs []error
	st := c.SignatureType()
	if !st.Valid() {
		errs = append(errs, fmt.Errorf("wallet.signature_type %d is not 0, 1 or 2", c.Wallet.SignatureType))
	}
	if st != domain.SigEOA && c.Wallet.Funder == "" {
		errs = append(errs, fmt.Errorf("wallet.funder is required for %s wallets", st))
	}
	switch strings.ToUpper(c.Wallet.OrderType) {
	case "GTC", "FOK":
	default:
		errs = append(errs, fmt.Errorf("wallet.order_type %q is not GTC or FOK", c.Wallet.OrderType))
	}
	switch c.Storage.Backend {
	case "sqlite":
	case "redis":
		if c.Storage.Redis.Addr == "" {
			errs = append(errs, errors.New("storage.redis.addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is not sqlite or redis", c.Storage.Backend))
	}
	s := c.Exit.Config
	if s.AutoSellThreshold <= 0 || s.AutoSellThreshold > 1 {
		errs = append(errs, fmt.Errorf("exit.auto_sell_threshold %.4f must be in (0, 1]", s.AutoSellThreshold))
	}
	if s.DisputeWindowExitPrice <= 0 || s.DisputeWindowExitPrice > 1 {
		errs = append(errs, fmt.Errorf("exit.dispute_window_exit_price %.4f must be in (0, 1]", s.DisputeWindowExitPrice))
	}
	return errors.Join(errs...)
}

// applyEnvOverrides replaces values with environment variables when set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("POLY_PRIVATE_KEY"); v != "" {
		cfg.Wallet.PrivateKey = v
	}
	if v := os.Getenv("POLY_FUNDER_ADDRESS"); v != "" {
		cfg.Wallet.Funder = v
	}
	if v := os.Getenv("POLY_SIGNATURE_TYPE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("POLY_SIGNATURE_TYPE %q: %w", v, err)
		}
		cfg.Wallet.SignatureType = n
	}
	if v := os.Getenv("POLYGON_RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Storage.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Storage.Redis.Password = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	return nil
}

// setDefaults fills zero values with working defaults.
func setDefaults(cfg *Config) {
	if cfg.IntervalSeconds <= 0 {
		cfg.IntervalSeconds = 60
	}
	if cfg.Exit.SizeTolerance <= 0 {
		cfg.Exit.SizeTolerance = 0.01
	}
	if cfg.Exit.MinPositionSize <= 0 {
		cfg.Exit.MinPositionSize = 0.01
	}
	if cfg.Redemption.MinPositionUSD <= 0 {
		cfg.Redemption.MinPositionUSD = 0.10
	}
	if cfg.Redemption.CooldownSeconds <= 0 {
		cfg.Redemption.CooldownSeconds = 300
	}
	if cfg.Redemption.MaxFailures <= 0 {
		cfg.Redemption.MaxFailures = 5
	}
	if cfg.Redemption.BackoffBaseSeconds <= 0 {
		cfg.Redemption.BackoffBaseSeconds = 30
	}
	if cfg.Redemption.BackoffMaxSeconds <= 0 {
		cfg.Redemption.BackoffMaxSeconds = 600
	}
	if cfg.Redemption.ReceiptTimeoutSeconds <= 0 {
		cfg.Redemption.ReceiptTimeoutSeconds = 90
	}
	if cfg.Wallet.OrderType == "" {
		cfg.Wallet.OrderType = "GTC"
	}
	if cfg.Chain.RPCURL == "" {
		cfg.Chain.RPCURL = "https://polygon-rpc.com"
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "sqlite"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "polyexit.db"
	}
	if cfg.Storage.Redis.Prefix == "" {
		cfg.Storage.Redis.Prefix = "polyexit"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
