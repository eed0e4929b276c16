package config

import (
	"fmt"
	"log"
	"strings"

	"loyaltyledger/pkg/idgen"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Log      LogConfig      `mapstructure:"log"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port         int     `mapstructure:"port"`
	RateLimitRPS float64 `mapstructure:"rate_limit_rps"` // 每个客户端每秒请求数，0 表示不限流
	RateBurst    int     `mapstructure:"rate_burst"`
	WorkerID     int64   `mapstructure:"worker_id"` // 雪花算法机器ID，多实例部署时必须不同
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"` // silent / error / warn / info
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	LedgerEvents string `mapstructure:"ledger_events"`
}

type LogConfig struct {
	File       string `mapstructure:"file"` // 为空时只输出到 stdout
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type BusinessConfig struct {
	LeaderboardLimit         int    `mapstructure:"leaderboard_limit"`
	MaxRetryCount            int    `mapstructure:"max_retry_count"`
	LockTTLSeconds           int    `mapstructure:"lock_ttl_seconds"`
	ReconcileIntervalSeconds int    `mapstructure:"reconcile_interval_seconds"` // 0 表示关闭对账任务
	AdminPassword            string `mapstructure:"admin_password"`
	SeedCatalog              bool   `mapstructure:"seed_catalog"`
}

var GlobalConfig *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit_rps", 0)
	v.SetDefault("server.rate_burst", 20)
	v.SetDefault("server.worker_id", 1)

	v.SetDefault("mysql.host", "127.0.0.1")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.log_level", "warn")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic.ledger_events", "loyalty.ledger.events")

	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)

	v.SetDefault("business.leaderboard_limit", 50)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.lock_ttl_seconds", 10)
	v.SetDefault("business.reconcile_interval_seconds", 0)
	v.SetDefault("business.seed_catalog", true)
}

// Load 读取配置文件，环境变量 LEDGER_* 可覆盖同名配置项
// 例如 LEDGER_MYSQL_PASSWORD 覆盖 mysql.password
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置项
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port 不合法: %d", c.Server.Port)
	}
	if c.Server.WorkerID < 0 || c.Server.WorkerID > idgen.MaxWorkerID {
		return fmt.Errorf("server.worker_id 必须在 0-%d 之间: %d", idgen.MaxWorkerID, c.Server.WorkerID)
	}
	if c.Business.LeaderboardLimit < 0 {
		return fmt.Errorf("business.leaderboard_limit 不能为负数")
	}
	if c.Business.LockTTLSeconds <= 0 {
		return fmt.Errorf("business.lock_ttl_seconds 必须大于0")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.enabled 为 true 时必须配置 kafka.brokers")
	}
	return nil
}

// LoadConfig 加载配置文件，失败时直接退出
func LoadConfig(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("%v", err)
	}

	GlobalConfig = cfg
	return cfg
}
