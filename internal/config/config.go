package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func getConfigLocations() []string {
	return []string{
		// Relative paths
		".env",
		".webhookhub.yaml",
		"config/webhookhub.yaml",

		// Container-friendly absolute paths
		"/config/webhookhub.yaml",
		"/config/webhookhub/.env",
	}
}

type Config struct {
	// API
	Port     int    `yaml:"port" env:"PORT"`
	GinMode  string `yaml:"gin_mode" env:"GIN_MODE"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	// Infrastructure
	Postgres PostgresConfig `yaml:"postgres"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`

	// Delivery pipeline
	Delivery DeliveryConfig `yaml:"delivery"`
}

type PostgresConfig struct {
	URL      string `yaml:"url" env:"DB_URL"`
	User     string `yaml:"user" env:"DB_USER"`
	Password string `yaml:"password" env:"DB_PASSWORD"`
}

type RabbitMQConfig struct {
	Host     string `yaml:"host" env:"RABBITMQ_HOST"`
	Port     int    `yaml:"port" env:"RABBITMQ_PORT"`
	User     string `yaml:"user" env:"RABBITMQ_USER"`
	Password string `yaml:"password" env:"RABBITMQ_PASSWORD"`
	VHost    string `yaml:"vhost" env:"RABBITMQ_VHOST"`
}

// ServerURL assembles the amqp:// URL for the broker connection.
func (c *RabbitMQConfig) ServerURL() string {
	u := url.URL{
		Scheme: "amqp",
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + strings.TrimPrefix(c.VHost, "/"),
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	return u.String()
}

type DeliveryConfig struct {
	BaseDelayMS   int `yaml:"base_delay_ms" env:"BASE_DELAY_MS"`
	MaxDelayMS    int `yaml:"max_delay_ms" env:"MAX_DELAY_MS"`
	MaxAttempts   int `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	Prefetch      int `yaml:"prefetch" env:"PREFETCH"`
	HTTPTimeoutMS int `yaml:"http_timeout_ms" env:"HTTP_TIMEOUT_MS"`
}

func (c *DeliveryConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMS) * time.Millisecond
}

func (c *DeliveryConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMS) * time.Millisecond
}

func (c *DeliveryConfig) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutMS) * time.Millisecond
}

func (c *Config) initDefaults() {
	c.Port = 3333
	c.LogLevel = "info"
	c.RabbitMQ = RabbitMQConfig{
		Host:  "localhost",
		Port:  5672,
		VHost: "/",
	}
	c.Delivery = DeliveryConfig{
		BaseDelayMS:   5000,
		MaxDelayMS:    1_800_000,
		MaxAttempts:   5,
		Prefetch:      5,
		HTTPTimeoutMS: 10_000,
	}
}

// Parse builds the runtime configuration: defaults, then an optional
// config file (yaml or .env), then the environment on top.
func Parse(flagPath string) (*Config, error) {
	return parse(flagPath, defaultOS)
}

func parse(flagPath string, osInterface OSInterface) (*Config, error) {
	cfg := &Config{}
	cfg.initDefaults()

	if err := cfg.parseConfigFile(flagPath, osInterface); err != nil {
		return nil, err
	}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) parseConfigFile(flagPath string, osInterface OSInterface) error {
	configPath := flagPath
	if envPath := osInterface.Getenv("CONFIG"); envPath != "" {
		if configPath != "" && configPath != envPath {
			return fmt.Errorf("conflicting config paths: flag=%s env=%s", configPath, envPath)
		}
		configPath = envPath
	}

	if configPath == "" {
		for _, loc := range getConfigLocations() {
			if _, err := osInterface.Stat(loc); err == nil {
				configPath = loc
				break
			}
		}
	}
	if configPath == "" {
		return nil
	}

	if strings.HasSuffix(configPath, ".yaml") || strings.HasSuffix(configPath, ".yml") {
		data, err := osInterface.ReadFile(configPath)
		if err != nil {
			return fmt.Errorf("read config file %s: %w", configPath, err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse config file %s: %w", configPath, err)
		}
		return nil
	}

	// Anything else is treated as dotenv; values land in the process
	// environment and are picked up by env.Parse.
	if err := godotenv.Load(configPath); err != nil {
		return fmt.Errorf("load env file %s: %w", configPath, err)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Postgres.URL == "" {
		return errors.New("DB_URL is required")
	}
	if c.RabbitMQ.Host == "" {
		return errors.New("RABBITMQ_HOST is required")
	}
	if c.Delivery.MaxAttempts <= 0 {
		return errors.New("MAX_ATTEMPTS must be positive")
	}
	if c.Delivery.Prefetch <= 0 {
		return errors.New("PREFETCH must be positive")
	}
	if c.Delivery.BaseDelayMS <= 0 {
		return errors.New("BASE_DELAY_MS must be positive")
	}
	if c.Delivery.HTTPTimeoutMS <= 0 {
		return errors.New("HTTP_TIMEOUT_MS must be positive")
	}
	return nil
}
