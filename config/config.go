package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"agent-swap/pkg/safety"
)

const (
	configName = ".agent-swap"
	envPrefix  = "AGENT_SWAP"
)

// Config holds the application configuration
type Config struct {
	RPC        RPCConfig        `mapstructure:"rpc"`
	Signer     SignerConfig     `mapstructure:"signer"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	Execution  ExecutionConfig  `mapstructure:"execution"`
	Safety     SafetyConfig     `mapstructure:"safety"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// RPCConfig points at the chain RPC used for broadcast and confirmation
type RPCConfig struct {
	URL            string        `mapstructure:"url"`
	Commitment     string        `mapstructure:"commitment"`
	SkipPreflight  bool          `mapstructure:"skip_preflight"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
	ConfirmPoll    time.Duration `mapstructure:"confirm_poll"`
}

// SignerConfig selects the signing authority
type SignerConfig struct {
	Mode            string          `mapstructure:"mode"` // local | delegated
	PrivateKey      string          `mapstructure:"private_key"`
	PayerPrivateKey string          `mapstructure:"payer_private_key"`
	Delegated       DelegatedConfig `mapstructure:"delegated"`
}

// DelegatedConfig configures the custodial wallet service
type DelegatedConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	AuthURL          string        `mapstructure:"auth_url"`
	AppID            string        `mapstructure:"app_id"`
	AppSecret        string        `mapstructure:"app_secret"`
	AuthorizationKey string        `mapstructure:"authorization_key"`
	WalletID         string        `mapstructure:"wallet_id"`
	PublicKey        string        `mapstructure:"public_key"`
	CAIP2            string        `mapstructure:"caip2"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// AggregatorConfig selects and configures the quote provider
type AggregatorConfig struct {
	Provider       string         `mapstructure:"provider"` // dflow | jupiter | oneclick
	SlippageBps    int            `mapstructure:"slippage_bps"`
	PlatformFeeBps int            `mapstructure:"platform_fee_bps"`
	FeeAccount     string         `mapstructure:"fee_account"`
	HTTPTimeout    time.Duration  `mapstructure:"http_timeout"`
	DFlow          DFlowConfig    `mapstructure:"dflow"`
	Jupiter        JupiterConfig  `mapstructure:"jupiter"`
	OneClick       OneClickConfig `mapstructure:"oneclick"`
}

// DFlowConfig configures the DFlow trade and metadata APIs
type DFlowConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	MetadataURL string `mapstructure:"metadata_url"`
	APIKey      string `mapstructure:"api_key"`
}

// JupiterConfig configures the Jupiter order APIs
type JupiterConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	APIKey          string `mapstructure:"api_key"`
	ReferralAccount string `mapstructure:"referral_account"`
	ReferralFeeBps  int    `mapstructure:"referral_fee_bps"`
}

// OneClickConfig configures the 1Click cross-chain API
type OneClickConfig struct {
	JWTToken string `mapstructure:"jwt_token"`
	BaseURL  string `mapstructure:"base_url"`
}

// ExecutionConfig bounds the async polling loop
type ExecutionConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxWait      time.Duration `mapstructure:"max_wait"`
}

// SafetyConfig controls discovery filtering and scoring inputs
type SafetyConfig struct {
	MinVolumeUSD    float64       `mapstructure:"min_volume_usd"`
	MinLiquidityUSD float64       `mapstructure:"min_liquidity_usd"`
	MinAge          time.Duration `mapstructure:"min_age"`
	VerifiedOnly    bool          `mapstructure:"verified_only"`
	IncludeRisky    bool          `mapstructure:"include_risky"`
	SeriesTTL       time.Duration `mapstructure:"series_ttl"`
	VerifiedSeries  []string      `mapstructure:"verified_series"`
	MinRulesLength  int           `mapstructure:"min_rules_length"`
}

// Filter converts the config into a discovery filter
func (c SafetyConfig) Filter() safety.Filter {
	return safety.Filter{
		MinVolumeUSD:    c.MinVolumeUSD,
		MinLiquidityUSD: c.MinLiquidityUSD,
		MinAge:          c.MinAge,
		VerifiedOnly:    c.VerifiedOnly,
		IncludeRisky:    c.IncludeRisky,
	}
}

// LoggingConfig configures the zap logger
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// Load reads configuration from an optional file and environment variables.
// An empty path searches $HOME and the working directory for .agent-swap.yaml.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath("$HOME")
		v.AddConfigPath(".")
	}
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rpc.url", "https://api.mainnet-beta.solana.com")
	v.SetDefault("rpc.commitment", "confirmed")
	v.SetDefault("rpc.skip_preflight", false)
	v.SetDefault("rpc.confirm_timeout", "30s")
	v.SetDefault("rpc.confirm_poll", "500ms")

	v.SetDefault("signer.mode", "local")
	v.SetDefault("signer.delegated.base_url", "https://api.privy.io/v1")
	v.SetDefault("signer.delegated.auth_url", "https://auth.privy.io/api/v1")
	v.SetDefault("signer.delegated.caip2", "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp")
	v.SetDefault("signer.delegated.timeout", "20s")

	v.SetDefault("aggregator.provider", "dflow")
	v.SetDefault("aggregator.slippage_bps", 100)
	v.SetDefault("aggregator.platform_fee_bps", 0)
	v.SetDefault("aggregator.http_timeout", "30s")
	v.SetDefault("aggregator.dflow.base_url", "https://quote-api.dflow.net")
	v.SetDefault("aggregator.dflow.metadata_url", "https://prediction-markets-api.dflow.net/api/v1")
	v.SetDefault("aggregator.jupiter.base_url", "https://api.jup.ag")
	v.SetDefault("aggregator.oneclick.base_url", "https://1click.chaindefuser.com")

	v.SetDefault("execution.poll_interval", "2s")
	v.SetDefault("execution.max_wait", "90s")

	v.SetDefault("safety.min_volume_usd", 1000)
	v.SetDefault("safety.min_liquidity_usd", 500)
	v.SetDefault("safety.min_age", "24h")
	v.SetDefault("safety.verified_only", false)
	v.SetDefault("safety.include_risky", false)
	v.SetDefault("safety.series_ttl", "1h")
	v.SetDefault("safety.verified_series", safety.DefaultVerifiedSeries)
	v.SetDefault("safety.min_rules_length", safety.DefaultMinRulesLength)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.output_paths", []string{"stderr"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate reports every configuration problem at once
func (c *Config) Validate() error {
	var err error

	if c.RPC.URL == "" {
		err = multierr.Append(err, errors.New("rpc.url is required"))
	}
	switch strings.ToLower(c.RPC.Commitment) {
	case "processed", "confirmed", "finalized":
	default:
		err = multierr.Append(err, fmt.Errorf("rpc.commitment %q must be processed, confirmed or finalized", c.RPC.Commitment))
	}
	if c.RPC.ConfirmTimeout <= 0 {
		err = multierr.Append(err, errors.New("rpc.confirm_timeout must be positive"))
	}
	if c.RPC.ConfirmPoll <= 0 {
		err = multierr.Append(err, errors.New("rpc.confirm_poll must be positive"))
	}

	switch c.Signer.Mode {
	case "local", "":
	case "delegated":
		d := c.Signer.Delegated
		if d.AppID == "" || d.AppSecret == "" {
			err = multierr.Append(err, errors.New("signer.delegated.app_id and app_secret are required in delegated mode"))
		}
		if d.AuthorizationKey == "" {
			err = multierr.Append(err, errors.New("signer.delegated.authorization_key is required in delegated mode"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("signer.mode %q must be local or delegated", c.Signer.Mode))
	}

	switch c.Aggregator.Provider {
	case "dflow", "jupiter":
	case "oneclick":
		if c.Aggregator.OneClick.JWTToken == "" {
			err = multierr.Append(err, errors.New("aggregator.oneclick.jwt_token is required for the oneclick provider"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("aggregator.provider %q must be dflow, jupiter or oneclick", c.Aggregator.Provider))
	}
	if c.Aggregator.SlippageBps < 0 || c.Aggregator.SlippageBps > 10000 {
		err = multierr.Append(err, fmt.Errorf("aggregator.slippage_bps %d out of range", c.Aggregator.SlippageBps))
	}
	if c.Aggregator.PlatformFeeBps < 0 || c.Aggregator.PlatformFeeBps > 10000 {
		err = multierr.Append(err, fmt.Errorf("aggregator.platform_fee_bps %d out of range", c.Aggregator.PlatformFeeBps))
	}
	if c.Aggregator.HTTPTimeout <= 0 {
		err = multierr.Append(err, errors.New("aggregator.http_timeout must be positive"))
	}

	if c.Execution.PollInterval <= 0 {
		err = multierr.Append(err, errors.New("execution.poll_interval must be positive"))
	}
	if c.Execution.MaxWait <= c.Execution.PollInterval {
		err = multierr.Append(err, errors.New("execution.max_wait must be longer than execution.poll_interval"))
	}

	if c.Safety.MinVolumeUSD < 0 || c.Safety.MinLiquidityUSD < 0 {
		err = multierr.Append(err, errors.New("safety minimums must not be negative"))
	}

	return err
}
