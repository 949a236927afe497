package config

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	MySQL  MySQLConfig  `mapstructure:"mysql"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Kafka  KafkaConfig  `mapstructure:"kafka"`
	Log    LogConfig    `mapstructure:"log"`
	Ledger LedgerConfig `mapstructure:"ledger"`
	Oracle OracleConfig `mapstructure:"oracle"`
}

type ServerConfig struct {
	Port     int   `mapstructure:"port"`
	WorkerID int64 `mapstructure:"worker_id"` // 雪花算法机器ID
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers       []string         `mapstructure:"brokers"`
	Topic         KafkaTopicConfig `mapstructure:"topic"`
	MaxRetryCount int              `mapstructure:"max_retry_count"`
}

type KafkaTopicConfig struct {
	LedgerEvent string `mapstructure:"ledger_event"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// LedgerConfig 账本业务配置
// 金额类配置在 YAML 中写成字符串，避免浮点精度问题，使用前调用 Parse
type LedgerConfig struct {
	InitialCashBalance         string   `mapstructure:"initial_cash_balance"`
	MinimumRedemption          string   `mapstructure:"minimum_redemption"`
	LoanCurrencies             []string `mapstructure:"loan_currencies"`
	DefaultLoanToValue         string   `mapstructure:"default_loan_to_value"`
	DefaultAnnualInterestRate  string   `mapstructure:"default_annual_interest_rate"`
	MaxTermDays                int      `mapstructure:"max_term_days"`
	LiquidationLoanToValue     string   `mapstructure:"liquidation_loan_to_value"`
	LockBackend                string   `mapstructure:"lock_backend"` // local | redis
	LockTTLSeconds             int      `mapstructure:"lock_ttl_seconds"`
	LoanMonitorIntervalSeconds int      `mapstructure:"loan_monitor_interval_seconds"`
}

// LedgerParams 解析后的账本参数
type LedgerParams struct {
	InitialCashBalance        decimal.Decimal
	MinimumRedemption         decimal.Decimal
	LoanCurrencies            []string
	DefaultLoanToValue        decimal.Decimal
	DefaultAnnualInterestRate decimal.Decimal
	MaxTermDays               int
	LiquidationLoanToValue    decimal.Decimal
}

// DefaultLedgerParams 默认参数：注册赠送 10000，最小赎回 1 盎司，
// LTV 70%，年化 5%
func DefaultLedgerParams() LedgerParams {
	return LedgerParams{
		InitialCashBalance:        decimal.NewFromInt(10000),
		MinimumRedemption:         decimal.NewFromInt(1),
		LoanCurrencies:            []string{"USDC", "BTC"},
		DefaultLoanToValue:        decimal.RequireFromString("0.7"),
		DefaultAnnualInterestRate: decimal.RequireFromString("0.05"),
		MaxTermDays:               365,
		LiquidationLoanToValue:    decimal.RequireFromString("0.85"),
	}
}

// Parse 将字符串配置解析为 decimal，未配置的项使用默认值
func (c LedgerConfig) Parse() (LedgerParams, error) {
	p := DefaultLedgerParams()

	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"initial_cash_balance", c.InitialCashBalance, &p.InitialCashBalance},
		{"minimum_redemption", c.MinimumRedemption, &p.MinimumRedemption},
		{"default_loan_to_value", c.DefaultLoanToValue, &p.DefaultLoanToValue},
		{"default_annual_interest_rate", c.DefaultAnnualInterestRate, &p.DefaultAnnualInterestRate},
		{"liquidation_loan_to_value", c.LiquidationLoanToValue, &p.LiquidationLoanToValue},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return LedgerParams{}, errors.Wrapf(err, "ledger.%s", f.name)
		}
		if v.IsNegative() {
			return LedgerParams{}, errors.Errorf("ledger.%s 不能为负数: %s", f.name, f.raw)
		}
		*f.dst = v
	}

	// 抵押率是比例，必须落在 (0, 1]
	ratios := []struct {
		name string
		v    decimal.Decimal
	}{
		{"default_loan_to_value", p.DefaultLoanToValue},
		{"liquidation_loan_to_value", p.LiquidationLoanToValue},
	}
	for _, r := range ratios {
		if !r.v.IsPositive() || r.v.GreaterThan(decimal.NewFromInt(1)) {
			return LedgerParams{}, errors.Errorf("ledger.%s 必须在 (0, 1] 之间: %s", r.name, r.v.String())
		}
	}

	if len(c.LoanCurrencies) > 0 {
		p.LoanCurrencies = c.LoanCurrencies
	}
	if c.MaxTermDays > 0 {
		p.MaxTermDays = c.MaxTermDays
	}
	return p, nil
}

type OracleConfig struct {
	Mode        string `mapstructure:"mode"` // static | simulated | redis
	StaticPrice string `mapstructure:"static_price"`
	SeedPrice   string `mapstructure:"seed_price"`
	Volatility  string `mapstructure:"volatility"`
	RedisKey    string `mapstructure:"redis_key"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.worker_id", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("kafka.topic.ledger_event", "ledger_event")
	v.SetDefault("kafka.max_retry_count", 5)
	v.SetDefault("ledger.lock_backend", "local")
	v.SetDefault("ledger.lock_ttl_seconds", 30)
	v.SetDefault("ledger.loan_monitor_interval_seconds", 60)
	v.SetDefault("oracle.mode", "simulated")
	v.SetDefault("oracle.seed_price", "2000")
	v.SetDefault("oracle.volatility", "0.002")
	v.SetDefault("oracle.redis_key", "gold:price:usd")

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "读取配置文件失败")
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errors.Wrap(err, "解析配置文件失败")
	}

	return config, nil
}
