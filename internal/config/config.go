package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	Redis   RedisConfig
	Worker  WorkerConfig
	Broker  BrokerConfig
	Metrics MetricsConfig
	Auth    AuthConfig

	LogLevel string
}

type ServerConfig struct {
	Host         string
	Port         int
	AdminPort    int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// WorkerConfig configures a single worker pool process.
type WorkerConfig struct {
	ID                string
	Queues            []string
	Concurrency       int
	TaskTimeout       time.Duration
	HeartbeatInterval time.Duration
	DequeueTimeout    time.Duration
	ShutdownTimeout   time.Duration
}

// BrokerConfig configures the queue engine itself — its defaults and the
// thresholds used for liveness and orphan recovery.
type BrokerConfig struct {
	DefaultQueue     string
	MaxRetries       int
	ActiveTimeout    time.Duration
	StaleTimeout     time.Duration
	RecoveryInterval time.Duration
	TaskRetentionTTL time.Duration
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	APIKeys   []string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/taskqueue")

	setDefaults()

	viper.SetEnvPrefix("TASKQUEUE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.adminport", 8081)
	viper.SetDefault("server.readtimeout", 30*time.Second)
	viper.SetDefault("server.writetimeout", 30*time.Second)
	viper.SetDefault("server.idletimeout", 120*time.Second)

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.poolsize", 100)
	viper.SetDefault("redis.minidleconns", 10)
	viper.SetDefault("redis.maxretries", 3)
	viper.SetDefault("redis.dialtimeout", 5*time.Second)
	viper.SetDefault("redis.readtimeout", 3*time.Second)
	viper.SetDefault("redis.writetimeout", 3*time.Second)

	viper.SetDefault("worker.id", "")
	viper.SetDefault("worker.queues", []string{"default"})
	viper.SetDefault("worker.concurrency", 10)
	viper.SetDefault("worker.tasktimeout", 300*time.Second)
	viper.SetDefault("worker.heartbeatinterval", 10*time.Second)
	viper.SetDefault("worker.dequeuetimeout", 1*time.Second)
	viper.SetDefault("worker.shutdowntimeout", 30*time.Second)

	viper.SetDefault("broker.defaultqueue", "default")
	viper.SetDefault("broker.maxretries", 3)
	viper.SetDefault("broker.activetimeout", 30*time.Second)
	viper.SetDefault("broker.staletimeout", 60*time.Second)
	viper.SetDefault("broker.recoveryinterval", 20*time.Second)
	viper.SetDefault("broker.taskretentionttl", 0)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	viper.SetDefault("auth.enabled", false)
	viper.SetDefault("auth.jwtsecret", "")
	viper.SetDefault("auth.apikeys", []string{})

	viper.SetDefault("loglevel", "info")
}
