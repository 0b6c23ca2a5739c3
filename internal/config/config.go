package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	// RedisURL enables the cluster backplane; empty keeps fan-out
	// process-local.
	RedisURL string `mapstructure:"redis_url" yaml:"redis_url"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	// SessionQueueSize bounds each session's outbound queue; beyond it
	// the backpressure policy kicks in.
	SessionQueueSize int           `mapstructure:"session_queue_size" yaml:"session_queue_size"`
	PersistTimeout   time.Duration `mapstructure:"persist_timeout" yaml:"persist_timeout"`
	PingInterval     time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		DatabasePath:      "chatgate.db",
		LogLevel:          "info",
		LogFormat:         "console",
		SessionQueueSize:  64,
		PersistTimeout:    5 * time.Second,
		PingInterval:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
		JWTIssuer:         "chatgate",
		JWTAudience:       "chatgate",
	}
}
