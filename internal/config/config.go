// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "DELIVERY"

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name" validate:"required"`
	SSLMode  string `mapstructure:"sslmode" validate:"oneof=disable require verify-ca verify-full"`
}

// DSN returns the connection string for the gorm postgres driver.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// URL returns the connection URL used by the migration runner.
func (c DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.Name,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

// KafkaConfig holds broker and topic settings.
type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers" validate:"min=1,dive,required"`
	GroupPrefix    string   `mapstructure:"group_prefix"`
	EventsTopic    string   `mapstructure:"events_topic" validate:"required"`
	LocationsTopic string   `mapstructure:"locations_topic" validate:"required"`
}

// JWTConfig holds token settings.
type JWTConfig struct {
	Secret     string        `mapstructure:"secret" validate:"required,min=16"`
	AccessTTL  time.Duration `mapstructure:"access_ttl" validate:"gt=0"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl" validate:"gt=0"`
}

// RedisConfig holds the route cache settings. The cache is skipped when disabled.
type RedisConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Addr      string        `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db" validate:"min=0"`
	TTL       time.Duration `mapstructure:"ttl"`
	Precision int           `mapstructure:"precision" validate:"min=0,max=7"`
}

// RoutingConfig holds the routing service and coordinator settings.
type RoutingConfig struct {
	BaseURL          string        `mapstructure:"base_url" validate:"required,url"`
	Profile          string        `mapstructure:"profile" validate:"required"`
	Timeout          time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Debounce         time.Duration `mapstructure:"debounce" validate:"min=0"`
	CancelSuperseded bool          `mapstructure:"cancel_superseded"`
}

// ServiceConfig holds all configuration for the delivery service.
type ServiceConfig struct {
	Port        string         `mapstructure:"port" validate:"required"`
	AppEnv      string         `mapstructure:"app_env" validate:"oneof=development test staging production"`
	CORSOrigins []string       `mapstructure:"cors_origins"`
	DB          DatabaseConfig `mapstructure:"db"`
	Kafka       KafkaConfig    `mapstructure:"kafka"`
	JWT         JWTConfig      `mapstructure:"jwt"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Routing     RoutingConfig  `mapstructure:"routing"`
}

// IsDevelopment reports whether the service runs in development mode.
func (c *ServiceConfig) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", ":8085")
	v.SetDefault("app_env", "production")
	v.SetDefault("cors_origins", []string{"*"})

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "delivery_db")
	v.SetDefault("db.sslmode", "disable")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.group_prefix", "bloodlink-")
	v.SetDefault("kafka.events_topic", "delivery.events")
	v.SetDefault("kafka.locations_topic", "courier.locations")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.access_ttl", 15*time.Minute)
	v.SetDefault("jwt.refresh_ttl", 7*24*time.Hour)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 10*time.Minute)
	v.SetDefault("redis.precision", 4)

	v.SetDefault("routing.base_url", "https://router.project-osrm.org")
	v.SetDefault("routing.profile", "driving")
	v.SetDefault("routing.timeout", 10*time.Second)
	v.SetDefault("routing.debounce", time.Duration(0))
	v.SetDefault("routing.cancel_superseded", false)
}

// Load reads configuration from DELIVERY_* environment variables, an optional .env file and
// an optional config file named by DELIVERY_CONFIG_FILE, then validates it.
func Load() (*ServiceConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	var cfg ServiceConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the struct tags of cfg.
func Validate(cfg *ServiceConfig) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
