package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	JWT      JWTConfig      `mapstructure:"jwt" validate:"required"`
	Liveness LivenessConfig `mapstructure:"liveness" validate:"required"`
	Authz    AuthzConfig    `mapstructure:"authz"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           string        `mapstructure:"port" validate:"required,numeric"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout" validate:"gte=0"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	// TriggerRateLimit caps event trigger requests per caller per minute when
	// Redis is enabled. Zero disables the limit.
	TriggerRateLimit int `mapstructure:"trigger_rate_limit" validate:"gte=0"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret" validate:"required,min=8"`
}

// LivenessConfig controls the liveness monitor: sweep every SweepInterval,
// ping connections idle past PingInterval, evict past Timeout.
// HeartbeatInterval paces the presence refresh of authenticated connections.
type LivenessConfig struct {
	SweepInterval     time.Duration `mapstructure:"sweep_interval" validate:"gt=0"`
	PingInterval      time.Duration `mapstructure:"ping_interval" validate:"gt=0"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gt=0"`
	WriteWait         time.Duration `mapstructure:"write_wait" validate:"gt=0"`
	MaxMessageSize    int64         `mapstructure:"max_message_size" validate:"gt=0"`
	SendBuffer        int           `mapstructure:"send_buffer" validate:"gt=0"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" validate:"gte=0"`
}

type AuthzConfig struct {
	LookupTimeout time.Duration       `mapstructure:"lookup_timeout" validate:"gt=0"`
	RoleStreams   map[string][]string `mapstructure:"role_streams"`
}

type DatabaseConfig struct {
	Driver      string `mapstructure:"driver" validate:"oneof=postgres mysql"`
	DSN         string `mapstructure:"dsn" validate:"required"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url" validate:"required_if=Enabled true"`
	PresenceTTL   time.Duration `mapstructure:"presence_ttl" validate:"gte=0"`
	IngestChannel string        `mapstructure:"ingest_channel"`
}

type KafkaConfig struct {
	Brokers      []string `mapstructure:"brokers"`
	IngestTopic  string   `mapstructure:"ingest_topic"`
	GroupID      string   `mapstructure:"group_id"`
	AuditTopic   string   `mapstructure:"audit_topic"`
	ClientID     string   `mapstructure:"client_id"`
	IngestEnable bool     `mapstructure:"ingest_enabled"`
	AuditEnable  bool     `mapstructure:"audit_enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// Flags returns the command-line flags understood by LoadConfig.
func Flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "path to a config file (yaml, json or toml)")
	fs.String("server.port", "", "port to listen on")
	fs.String("log.level", "", "log level (debug, info, warn, error)")
	fs.String("database.dsn", "", "identity database DSN")
	return fs
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://127.0.0.1:3000"})
	v.SetDefault("server.trigger_rate_limit", 120)

	v.SetDefault("jwt.secret", "")

	v.SetDefault("liveness.sweep_interval", 10*time.Second)
	v.SetDefault("liveness.ping_interval", 30*time.Second)
	v.SetDefault("liveness.timeout", 60*time.Second)
	v.SetDefault("liveness.write_wait", 10*time.Second)
	v.SetDefault("liveness.max_message_size", 64*1024)
	v.SetDefault("liveness.send_buffer", 256)
	v.SetDefault("liveness.heartbeat_interval", 60*time.Second)

	v.SetDefault("authz.lookup_timeout", 5*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=postgres password=password dbname=postgres port=5432 sslmode=disable")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://127.0.0.1:6379/0")
	v.SetDefault("redis.presence_ttl", 5*time.Minute)
	v.SetDefault("redis.ingest_channel", "gateway:events")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.ingest_topic", "gateway.events")
	v.SetDefault("kafka.group_id", "stream-gateway")
	v.SetDefault("kafka.audit_topic", "gateway.audit")
	v.SetDefault("kafka.client_id", "stream-gateway")
	v.SetDefault("kafka.ingest_enabled", false)
	v.SetDefault("kafka.audit_enabled", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadConfig reads defaults, an optional config file, GATEWAY_* environment
// variables and any set flags, in increasing order of precedence.
func LoadConfig(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
		if path, _ := flags.GetString("config"); path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and the liveness interval ordering.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	l := c.Liveness
	if !(l.SweepInterval < l.PingInterval && l.PingInterval < l.Timeout) {
		return fmt.Errorf("invalid config: liveness intervals must satisfy sweep_interval < ping_interval < timeout (got %s, %s, %s)",
			l.SweepInterval, l.PingInterval, l.Timeout)
	}
	if c.Redis.Enabled {
		ttl := c.Redis.PresenceTTL
		if ttl == 0 {
			ttl = 5 * time.Minute
		}
		if l.HeartbeatInterval <= 0 || l.HeartbeatInterval >= ttl {
			return fmt.Errorf("invalid config: liveness.heartbeat_interval must be positive and below redis.presence_ttl (got %s, %s)",
				l.HeartbeatInterval, ttl)
		}
	}
	if c.Kafka.IngestEnable || c.Kafka.AuditEnable {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("invalid config: kafka.brokers is required when kafka is enabled")
		}
	}
	return nil
}
