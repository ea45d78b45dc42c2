package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Database       DatabaseConfig       `mapstructure:"database"`
	Server         ServerConfig         `mapstructure:"server"`
	Chain          ChainConfig          `mapstructure:"chain"`
	Webhook        WebhookConfig        `mapstructure:"webhook"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
	Scheduler      SchedulerConfig      `mapstructure:"scheduler"`
	Poller         PollerConfig         `mapstructure:"poller"`
	Admin          AdminConfig          `mapstructure:"admin"`
	Logging        LoggingConfig        `mapstructure:"logging"`
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	Path            string `mapstructure:"path"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
}

func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		sslMode := d.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			d.Host, d.Port, d.User, d.Password, d.DBName, sslMode)
	case "sqlite":
		return d.Path
	default:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			d.User, d.Password, d.Host, d.Port, d.DBName)
	}
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type ChainConfig struct {
	Name             string `mapstructure:"name"`
	RPCURL           string `mapstructure:"rpc_url"`
	ChainID          uint64 `mapstructure:"chain_id"`
	ContractAddress  string `mapstructure:"contract_address"`
	TokenDecimals    int32  `mapstructure:"token_decimals"`
	OwnerPrivateKey  string `mapstructure:"owner_private_key"`
	GasLimitFallback uint64 `mapstructure:"gas_limit_fallback"`
	GasBufferPercent uint64 `mapstructure:"gas_buffer_percent"`
	MaxRetries       int    `mapstructure:"max_retries"`
	RetryDelayMillis int    `mapstructure:"retry_delay_ms"`
	CallTimeout      int    `mapstructure:"call_timeout"`
}

type WebhookConfig struct {
	SigningKey      string `mapstructure:"signing_key"`
	SignatureHeader string `mapstructure:"signature_header"`
	MaxBodyBytes    int64  `mapstructure:"max_body_bytes"`
}

type ReconciliationConfig struct {
	AutoFinalize bool `mapstructure:"auto_finalize"`
}

type SchedulerConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	DriftCron string `mapstructure:"drift_cron"`
}

// PollerConfig controls the optional eth_getLogs backfill that feeds the
// same pipeline as the webhook.
type PollerConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	PullInterval int    `mapstructure:"pull_interval"`
	BatchSize    uint64 `mapstructure:"batch_size"`
	StartBlock   uint64 `mapstructure:"start_block"`
}

type AdminConfig struct {
	Token string `mapstructure:"token"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 30)

	v.SetDefault("chain.name", "polygon")
	v.SetDefault("chain.token_decimals", 6)
	v.SetDefault("chain.gas_limit_fallback", 500000)
	v.SetDefault("chain.gas_buffer_percent", 20)
	v.SetDefault("chain.max_retries", 3)
	v.SetDefault("chain.retry_delay_ms", 1000)
	v.SetDefault("chain.call_timeout", 15)

	v.SetDefault("webhook.signature_header", "X-Alchemy-Signature")
	v.SetDefault("webhook.max_body_bytes", 5<<20)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.drift_cron", "0 */15 * * * *")

	v.SetDefault("poller.enabled", false)
	v.SetDefault("poller.pull_interval", 15)
	v.SetDefault("poller.batch_size", 500)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")
}

// Load reads the YAML file at configPath, then applies U4C_* environment
// overrides. A missing file is tolerated so the service can run on env alone.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("U4C")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// The signing key never lives in the config file.
	config.Chain.OwnerPrivateKey = os.Getenv("OWNER_PRIVATE_KEY")
	if key := os.Getenv("WEBHOOK_SIGNING_KEY"); key != "" {
		config.Webhook.SigningKey = key
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if c.Chain.TokenDecimals < 0 || c.Chain.TokenDecimals > 36 {
		return fmt.Errorf("token_decimals out of range: %d", c.Chain.TokenDecimals)
	}
	if c.Chain.ContractAddress != "" && !common.IsHexAddress(c.Chain.ContractAddress) {
		return fmt.Errorf("invalid contract address: %s", c.Chain.ContractAddress)
	}
	return nil
}
