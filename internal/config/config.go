// Package config loads shopbot settings from defaults, an optional file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"shopbot/internal/logger"
)

// Config is the root configuration.
type Config struct {
	HTTP  HTTPConfig       `mapstructure:"http"`
	Line  LineConfig       `mapstructure:"line"`
	PAAPI PAAPIConfig      `mapstructure:"paapi"`
	Bitly BitlyConfig      `mapstructure:"bitly"`
	Redis RedisConfig      `mapstructure:"redis"`
	Kafka KafkaConfig      `mapstructure:"kafka"`
	Audit AuditConfig      `mapstructure:"audit"`
	Log   logger.LogConfig `mapstructure:"log"`
}

type HTTPConfig struct {
	Addr           string        `mapstructure:"addr" validate:"required"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	ClientTimeout  time.Duration `mapstructure:"client_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes" validate:"gt=0"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type LineConfig struct {
	ChannelSecret string `mapstructure:"channel_secret" validate:"required"`
	ChannelToken  string `mapstructure:"channel_token" validate:"required"`
	Endpoint      string `mapstructure:"endpoint" validate:"required,url"`
}

type PAAPIConfig struct {
	AccessKey   string `mapstructure:"access_key" validate:"required"`
	SecretKey   string `mapstructure:"secret_key" validate:"required"`
	PartnerTag  string `mapstructure:"partner_tag" validate:"required"`
	Host        string `mapstructure:"host" validate:"required,hostname"`
	Region      string `mapstructure:"region" validate:"required"`
	Marketplace string `mapstructure:"marketplace" validate:"required"`
}

// BitlyConfig leaves Token empty to disable shortening.
type BitlyConfig struct {
	Token    string        `mapstructure:"token"`
	Endpoint string        `mapstructure:"endpoint" validate:"required,url"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// RedisConfig leaves Addr empty to use in-memory dedupe and no link memo.
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	DedupeTTL time.Duration `mapstructure:"dedupe_ttl"`
}

// KafkaConfig leaves Broker empty to disable outcome publishing.
type KafkaConfig struct {
	Broker  string `mapstructure:"broker"`
	Topic   string `mapstructure:"topic" validate:"required"`
	GroupID string `mapstructure:"group_id" validate:"required"`
}

type AuditConfig struct {
	Dir string `mapstructure:"dir" validate:"required"`
}

// envAliases maps config keys to the variable names the bot was originally
// deployed with. SHOPBOT_* names always win.
var envAliases = map[string]string{
	"line.channel_secret": "LINE_CHANNEL_SECRET",
	"line.channel_token":  "LINE_CHANNEL_TOKEN",
	"paapi.access_key":    "AMAZON_API_ACCESS_KEY",
	"paapi.secret_key":    "AMAZON_API_SECRET_KEY",
	"paapi.partner_tag":   "ASSOCIATE_TAG",
	"bitly.token":         "BITLY_TOKEN",
	"redis.addr":          "REDIS_ADDR",
	"kafka.broker":        "KAFKA_BROKER",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.client_timeout", 10*time.Second)
	v.SetDefault("http.max_body_bytes", 1<<20)
	v.SetDefault("http.request_timeout", 25*time.Second)

	v.SetDefault("line.channel_secret", "")
	v.SetDefault("line.channel_token", "")
	v.SetDefault("line.endpoint", "https://api.line.me")

	v.SetDefault("paapi.access_key", "")
	v.SetDefault("paapi.secret_key", "")
	v.SetDefault("paapi.partner_tag", "")
	v.SetDefault("paapi.host", "webservices.amazon.co.jp")
	v.SetDefault("paapi.region", "us-west-2")
	v.SetDefault("paapi.marketplace", "www.amazon.co.jp")

	v.SetDefault("bitly.token", "")
	v.SetDefault("bitly.endpoint", "https://api-ssl.bitly.com")
	v.SetDefault("bitly.cache_ttl", 24*time.Hour)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dedupe_ttl", 24*time.Hour)

	v.SetDefault("kafka.broker", "")
	v.SetDefault("kafka.topic", "shopbot.replies")
	v.SetDefault("kafka.group_id", "shopbot-audit")

	v.SetDefault("audit.dir", "./data/audit")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
}

// Load reads configuration. An empty path skips the config file; a missing
// file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SHOPBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, alias := range envAliases {
		envKey := "SHOPBOT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, alias); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks the settings the webhook server needs.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ValidateSearch checks only the product search settings.
func (c *Config) ValidateSearch() error {
	if err := validate.Struct(c.PAAPI); err != nil {
		return fmt.Errorf("invalid paapi config: %w", err)
	}
	return nil
}
