package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	TCPPort     string
	MetricsPort string
	GRPCServer  string
	RedisAddr   string
	RedisDB     int
	ProxyAddr   string

	AMQPURL      string
	AMQPExchange string
	AMQPEncoding string

	SessionTimeout time.Duration
	BatchSize      int
	BatchBudget    time.Duration
	MaxBuffered    int
	QueueSize      int

	LogLevel string
}

// Load reads the environment. Empty sink addresses leave that sink disabled.
func Load() (Config, error) {
	cfg := Config{
		TCPPort:      getEnv("TCP_PORT", "8001"),
		MetricsPort:  getEnv("METRICS_PORT", "9000"),
		GRPCServer:   getEnv("GRPC_SERVER", ""),
		RedisAddr:    getEnv("REDIS_ADDR", ""),
		ProxyAddr:    getEnv("PROXY_ADDR", ""),
		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "avl.records"),
		AMQPEncoding: getEnv("AMQP_ENCODING", "json"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.SessionTimeout, err = getEnvDuration("SESSION_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.BatchSize, err = getEnvInt("BATCH_SIZE", 16); err != nil {
		return Config{}, err
	}
	if cfg.BatchBudget, err = getEnvDuration("BATCH_BUDGET", 0); err != nil {
		return Config{}, err
	}
	if cfg.MaxBuffered, err = getEnvInt("MAX_BUFFERED", 64*1024); err != nil {
		return Config{}, err
	}
	if cfg.QueueSize, err = getEnvInt("DISPATCH_QUEUE", 1024); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("session timeout must be positive, got %s", c.SessionTimeout)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1, got %d", c.BatchSize)
	}
	if c.MaxBuffered < 45 {
		return fmt.Errorf("max buffered must hold at least one frame, got %d", c.MaxBuffered)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(val))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

type fileConfig struct {
	TCPPort        string `toml:"tcp_port"`
	MetricsPort    string `toml:"metrics_port"`
	GRPCServer     string `toml:"grpc_server"`
	RedisAddr      string `toml:"redis_addr"`
	RedisDB        int    `toml:"redis_db"`
	ProxyAddr      string `toml:"proxy_addr"`
	AMQPURL        string `toml:"amqp_url"`
	AMQPExchange   string `toml:"amqp_exchange"`
	AMQPEncoding   string `toml:"amqp_encoding"`
	SessionTimeout string `toml:"session_timeout"`
	BatchSize      int    `toml:"batch_size"`
	BatchBudget    string `toml:"batch_budget"`
	MaxBuffered    int    `toml:"max_buffered"`
	QueueSize      int    `toml:"dispatch_queue"`
	LogLevel       string `toml:"log_level"`
}

// LoadFile overlays the keys present in the TOML file at path on base.
func LoadFile(path string, base Config) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config %s: unknown key %q", path, undecoded[0].String())
	}

	cfg := base
	setString := func(key string, dst *string, v string) {
		if meta.IsDefined(key) {
			*dst = strings.TrimSpace(v)
		}
	}
	setString("tcp_port", &cfg.TCPPort, raw.TCPPort)
	setString("metrics_port", &cfg.MetricsPort, raw.MetricsPort)
	setString("grpc_server", &cfg.GRPCServer, raw.GRPCServer)
	setString("redis_addr", &cfg.RedisAddr, raw.RedisAddr)
	setString("proxy_addr", &cfg.ProxyAddr, raw.ProxyAddr)
	setString("amqp_url", &cfg.AMQPURL, raw.AMQPURL)
	setString("amqp_exchange", &cfg.AMQPExchange, raw.AMQPExchange)
	setString("amqp_encoding", &cfg.AMQPEncoding, raw.AMQPEncoding)
	setString("log_level", &cfg.LogLevel, raw.LogLevel)

	if meta.IsDefined("redis_db") {
		cfg.RedisDB = raw.RedisDB
	}
	if meta.IsDefined("batch_size") {
		cfg.BatchSize = raw.BatchSize
	}
	if meta.IsDefined("max_buffered") {
		cfg.MaxBuffered = raw.MaxBuffered
	}
	if meta.IsDefined("dispatch_queue") {
		cfg.QueueSize = raw.QueueSize
	}
	if meta.IsDefined("session_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.SessionTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse session_timeout: %w", err)
		}
		cfg.SessionTimeout = d
	}
	if meta.IsDefined("batch_budget") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.BatchBudget))
		if err != nil {
			return Config{}, fmt.Errorf("parse batch_budget: %w", err)
		}
		cfg.BatchBudget = d
	}
	return cfg, cfg.Validate()
}
