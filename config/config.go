// Package config loads the node configuration from an optional .env file,
// a YAML file and AETHERCORE_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aethercore-labs/aethercore/bridge"
	"github.com/aethercore-labs/aethercore/consensus/certification"
	"github.com/aethercore-labs/aethercore/crypto"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvPrefix      = "AETHERCORE"
	configName     = "aethercore"
	defaultEnvFile = ".env"
)

type Config struct {
	App           AppConfig              `mapstructure:"app"`
	Storage       StorageConfig          `mapstructure:"storage"`
	Bridge        BridgeConfig           `mapstructure:"bridge"`
	Chains        map[string]ChainConfig `mapstructure:"chains"`
	Auth          AuthConfig             `mapstructure:"auth"`
	NATS          NATSConfig             `mapstructure:"nats"`
	Metrics       MetricsConfig          `mapstructure:"metrics"`
	Certification CertificationConfig    `mapstructure:"certification"`
}

type AppConfig struct {
	Env            string   `mapstructure:"env"`
	LogLevel       string   `mapstructure:"log_level"`
	HTTPAddr       string   `mapstructure:"http_addr"`
	CertPath       string   `mapstructure:"cert_path"`
	KeyPath        string   `mapstructure:"key_path"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// TLSEnabled reports whether both certificate and key are configured.
func (a AppConfig) TLSEnabled() bool {
	return a.CertPath != "" && a.KeyPath != ""
}

type StorageConfig struct {
	Path      string `mapstructure:"path"`
	InMemory  bool   `mapstructure:"in_memory"`
	CacheSize int    `mapstructure:"cache_size"`
}

// RouteOverride replaces the set fields of a default route.
type RouteOverride struct {
	MinTransactionAmount  string `mapstructure:"min_transaction_amount"`
	MaxTransactionAmount  string `mapstructure:"max_transaction_amount"`
	BridgeFeePercent      string `mapstructure:"bridge_fee_percent"`
	MaxFeePercent         string `mapstructure:"max_fee_percent"`
	RequiredConfirmations int    `mapstructure:"required_confirmations"`
	Enabled               *bool  `mapstructure:"enabled"`
}

type BridgeConfig struct {
	ConfirmationTimeout   time.Duration `mapstructure:"confirmation_timeout"`
	PollInterval          time.Duration `mapstructure:"poll_interval"`
	RetryAttempts         int           `mapstructure:"retry_attempts"`
	RetryInitialInterval  time.Duration `mapstructure:"retry_initial_interval"`
	RetryMaxInterval      time.Duration `mapstructure:"retry_max_interval"`
	ScreeningLevel        int           `mapstructure:"screening_level"`
	OperatorSecurityLevel int           `mapstructure:"operator_security_level"`
	// OperatorMnemonic seeds the operator signing key. A random key is
	// generated when empty, which is only suitable for development.
	OperatorMnemonic   string                   `mapstructure:"operator_mnemonic"`
	OperatorPassphrase string                   `mapstructure:"operator_passphrase"`
	Routes             map[string]RouteOverride `mapstructure:"routes"`
}

// ChainConfig points at the ledger gateway of one network. Networks without
// a URL use the in-memory ledger.
type ChainConfig struct {
	URL     string        `mapstructure:"url"`
	RPS     int           `mapstructure:"rps"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type NATSConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	URL               string        `mapstructure:"url"`
	Subject           string        `mapstructure:"subject"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// CertificationConfig overrides the certifier defaults. Zero values keep
// the default.
type CertificationConfig struct {
	Weights          *certification.Weights         `mapstructure:"weights"`
	Grades           []certification.GradeThreshold `mapstructure:"grades"`
	Minimums         map[string]float64             `mapstructure:"minimums"`
	CategoryFloor    float64                        `mapstructure:"category_floor"`
	QuantumCryptoMin float64                        `mapstructure:"quantum_crypto_min"`
}

// Load reads the configuration. path may name a YAML file; when empty the
// file aethercore.yaml is searched for in ., ./config and /etc/aethercore
// and is optional.
func Load(path string) (*Config, error) {
	if err := loadEnvFile(defaultEnvFile); err != nil {
		return nil, err
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/aethercore")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadEnvFile loads name into the process environment if it exists.
// Variables already set win.
func loadEnvFile(name string) error {
	if _, err := os.Stat(name); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(name); err != nil {
		return fmt.Errorf("error loading %s: %w", name, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.http_addr", ":8080")
	v.SetDefault("app.cert_path", "")
	v.SetDefault("app.key_path", "")
	v.SetDefault("app.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("storage.path", "./data/aethercore")
	v.SetDefault("storage.in_memory", false)
	v.SetDefault("storage.cache_size", 1024)

	bc := bridge.DefaultConfig()
	v.SetDefault("bridge.confirmation_timeout", bc.ConfirmationTimeout)
	v.SetDefault("bridge.poll_interval", bc.PollInterval)
	v.SetDefault("bridge.retry_attempts", bc.RetryAttempts)
	v.SetDefault("bridge.retry_initial_interval", bc.RetryInitialInterval)
	v.SetDefault("bridge.retry_max_interval", bc.RetryMaxInterval)
	v.SetDefault("bridge.screening_level", int(bc.ScreeningLevel))
	v.SetDefault("bridge.operator_security_level", 3)
	v.SetDefault("bridge.operator_mnemonic", "")
	v.SetDefault("bridge.operator_passphrase", "")

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject", "aethercore.bridge.status")
	v.SetDefault("nats.connect_timeout", "10s")
	v.SetDefault("nats.reconnect_attempts", 5)
	v.SetDefault("nats.reconnect_delay", "2s")

	v.SetDefault("metrics.enabled", true)
}

func (c *Config) Validate() error {
	if c.App.HTTPAddr == "" {
		return errors.New("app.http_addr is required")
	}
	if (c.App.CertPath == "") != (c.App.KeyPath == "") {
		return errors.New("app.cert_path and app.key_path must be set together")
	}
	if !c.Storage.InMemory && c.Storage.Path == "" {
		return errors.New("storage.path is required unless storage.in_memory is set")
	}
	if !crypto.SecurityLevel(c.Bridge.OperatorSecurityLevel).Valid() {
		return fmt.Errorf("bridge.operator_security_level %d is out of range", c.Bridge.OperatorSecurityLevel)
	}
	if _, err := c.BridgeManagerConfig(); err != nil {
		return err
	}
	for name := range c.Chains {
		if _, err := bridge.ParseNetwork(name); err != nil {
			return fmt.Errorf("chains: %w", err)
		}
	}
	if c.App.Env == "production" && c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required in production")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return errors.New("nats.url is required when nats is enabled")
	}
	if _, err := c.CertifierConfig(); err != nil {
		return err
	}
	return nil
}

// BridgeManagerConfig applies the bridge section on top of the defaults.
func (c *Config) BridgeManagerConfig() (bridge.Config, error) {
	out := bridge.DefaultConfig()
	b := c.Bridge
	if b.ConfirmationTimeout > 0 {
		out.ConfirmationTimeout = b.ConfirmationTimeout
	}
	if b.PollInterval > 0 {
		out.PollInterval = b.PollInterval
	}
	if b.RetryAttempts > 0 {
		out.RetryAttempts = b.RetryAttempts
	}
	if b.RetryInitialInterval > 0 {
		out.RetryInitialInterval = b.RetryInitialInterval
	}
	if b.RetryMaxInterval > 0 {
		out.RetryMaxInterval = b.RetryMaxInterval
	}
	if b.ScreeningLevel != 0 {
		out.ScreeningLevel = crypto.SecurityLevel(b.ScreeningLevel)
	}
	for name, o := range b.Routes {
		d, err := bridge.ParseDirection(name)
		if err != nil {
			return bridge.Config{}, fmt.Errorf("bridge.routes: %w", err)
		}
		route := out.Routes[d]
		if o.MinTransactionAmount != "" {
			route.MinTransactionAmount = o.MinTransactionAmount
		}
		if o.MaxTransactionAmount != "" {
			route.MaxTransactionAmount = o.MaxTransactionAmount
		}
		if o.BridgeFeePercent != "" {
			route.BridgeFeePercent = o.BridgeFeePercent
		}
		if o.MaxFeePercent != "" {
			route.MaxFeePercent = o.MaxFeePercent
		}
		if o.RequiredConfirmations > 0 {
			route.RequiredConfirmations = o.RequiredConfirmations
		}
		if o.Enabled != nil {
			route.Enabled = *o.Enabled
		}
		out.Routes[d] = route
	}
	if err := out.Validate(); err != nil {
		return bridge.Config{}, fmt.Errorf("bridge: %w", err)
	}
	return out, nil
}

// CertifierConfig applies the certification section on top of the
// defaults.
func (c *Config) CertifierConfig() (certification.Config, error) {
	out := certification.DefaultConfig()
	cc := c.Certification
	if cc.Weights != nil {
		out.Weights = *cc.Weights
	}
	if len(cc.Grades) > 0 {
		out.Grades = cc.Grades
	}
	for name, score := range cc.Minimums {
		level, err := certification.ParseLevel(name)
		if err != nil {
			return certification.Config{}, fmt.Errorf("certification.minimums: %w", err)
		}
		out.Minimums[level] = score
	}
	if cc.CategoryFloor > 0 {
		out.CategoryFloor = cc.CategoryFloor
	}
	if cc.QuantumCryptoMin > 0 {
		out.QuantumCryptoMin = cc.QuantumCryptoMin
	}
	if err := out.Validate(); err != nil {
		return certification.Config{}, fmt.Errorf("certification: %w", err)
	}
	return out, nil
}
