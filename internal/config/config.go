package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override values from the config file
const (
	EnvConfigPath   = "RIDEPOOL_CONFIG"
	EnvJWTSecret    = "RIDEPOOL_JWT_SECRET"
	EnvDBPassword   = "RIDEPOOL_DB_PASSWORD"
	EnvRedisURL     = "RIDEPOOL_REDIS_URL"
	EnvAWSSecretKey = "RIDEPOOL_AWS_SECRET_KEY"
	EnvGoogleClient = "RIDEPOOL_GOOGLE_CLIENT_ID"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	AWS       AWSConfig       `yaml:"aws"`
	APNs      APNsConfig      `yaml:"apns"`
	JWT       JWTConfig       `yaml:"jwt"`
	Google    GoogleConfig    `yaml:"google"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns"`
	InMemory bool   `yaml:"in_memory"`
}

// RedisConfig holds Redis configuration. An empty URL disables rate limiting.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// RateLimitConfig bounds how many state-changing ride requests a user may send per window
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// AWSConfig holds AWS configuration. An empty bucket disables profile picture uploads.
type AWSConfig struct {
	Region    string `yaml:"region"`
	S3Bucket  string `yaml:"s3_bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Endpoint  string `yaml:"endpoint"`
}

// APNsConfig holds Apple Push Notification configuration. An empty key path disables push.
type APNsConfig struct {
	KeyPath    string `yaml:"key_path"`
	KeyID      string `yaml:"key_id"`
	TeamID     string `yaml:"team_id"`
	Topic      string `yaml:"topic"`
	Production bool   `yaml:"production"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// GoogleConfig holds the OAuth client sign-in ID tokens must be issued to.
// A non-empty HostedDomain restricts sign-in to that Workspace domain.
type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	HostedDomain string `yaml:"hosted_domain"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file. A .env file in the working
// directory, if present, is loaded into the environment first, and the
// RIDEPOOL_* variables take precedence over the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	if p := os.Getenv(EnvConfigPath); p != "" {
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server:    ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database:  DatabaseConfig{Host: "localhost", Port: 5432, SSLMode: "disable", MaxConns: 10},
		RateLimit: RateLimitConfig{Requests: 30, Window: time.Minute},
		AWS:       AWSConfig{Region: "us-east-1"},
		Log:       LogConfig{Level: "info"},
	}
}

func (c *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	override(&c.JWT.Secret, EnvJWTSecret)
	override(&c.Database.Password, EnvDBPassword)
	override(&c.Redis.URL, EnvRedisURL)
	override(&c.AWS.SecretKey, EnvAWSSecretKey)
	override(&c.Google.ClientID, EnvGoogleClient)
}

// Validate reports the first setting the server cannot start with
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt secret is required (set jwt.secret or %s)", EnvJWTSecret)
	}
	if c.Google.ClientID == "" {
		return fmt.Errorf("google client_id is required to verify sign-in tokens (set google.client_id or %s)", EnvGoogleClient)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if !c.Database.InMemory && c.Database.DBName == "" {
		return errors.New("database.dbname is required unless database.in_memory is set")
	}
	if c.Redis.URL != "" && (c.RateLimit.Requests <= 0 || c.RateLimit.Window < time.Second) {
		return errors.New("ratelimit needs a positive request count and a window of at least 1s")
	}
	if c.APNs.KeyPath != "" && (c.APNs.KeyID == "" || c.APNs.TeamID == "" || c.APNs.Topic == "") {
		return errors.New("apns key_id, team_id and topic are required with key_path")
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
