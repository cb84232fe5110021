package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// minAgentCooldown is the shortest pause allowed after a model failure
const minAgentCooldown = 5 * time.Second

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	JWT      JWTConfig      `yaml:"jwt"`
	Log      LogConfig      `yaml:"log"`
	Redis    RedisConfig    `yaml:"redis"`
	AWS      AWSConfig      `yaml:"aws"`
	APNs     APNsConfig     `yaml:"apns"`
	Email    EmailConfig    `yaml:"email"`
	Agent    AgentConfig    `yaml:"agent"`
	Worker   WorkerConfig   `yaml:"worker"`
	CORS     CORSConfig     `yaml:"cors"`
	Internal InternalConfig `yaml:"internal"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	Host            string        `yaml:"host"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// RedisConfig holds the cache connection. An empty Addr disables caching.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AWSConfig holds object storage configuration for avatar uploads
type AWSConfig struct {
	Region    string `yaml:"region"`
	S3Bucket  string `yaml:"s3_bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Endpoint  string `yaml:"endpoint"`
	PublicURL string `yaml:"public_url"`
}

// APNsConfig holds Apple push notification settings
type APNsConfig struct {
	CertPath   string `yaml:"cert_path"`
	CertPass   string `yaml:"cert_password"`
	Topic      string `yaml:"topic"`
	Production bool   `yaml:"production"`
}

// EmailConfig holds transactional email settings
type EmailConfig struct {
	SendGridAPIKey string        `yaml:"sendgrid_api_key"`
	BaseURL        string        `yaml:"base_url"`
	FromEmail      string        `yaml:"from_email"`
	FromName       string        `yaml:"from_name"`
	AppURL         string        `yaml:"app_url"`
	Timeout        time.Duration `yaml:"timeout"`
}

// AgentConfig holds language model and cache lifetimes for the agent layer
type AgentConfig struct {
	Enabled            bool          `yaml:"enabled"`
	APIKey             string        `yaml:"api_key"`
	Model              string        `yaml:"model"`
	Timeout            time.Duration `yaml:"timeout"`
	Cooldown           time.Duration `yaml:"cooldown"`
	ToneCacheTTL       time.Duration `yaml:"tone_cache_ttl"`
	SuggestionCacheTTL time.Duration `yaml:"suggestion_cache_ttl"`
	StyleCacheTTL      time.Duration `yaml:"style_cache_ttl"`
	DecisionBatchSize  int           `yaml:"decision_batch_size"`
	ActivityRetention  time.Duration `yaml:"activity_retention"`
}

// WorkerConfig holds scheduled message dispatcher settings
type WorkerConfig struct {
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
}

// CORSConfig holds allowed origins
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// InternalConfig guards the service-to-service endpoints. They stay closed
// while Token is empty.
type InternalConfig struct {
	Token string `yaml:"token"`
}

// Load reads configuration from a YAML file, applies environment overrides
// and fills in defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	setString("TOGETHER_DATABASE_URL", &c.Database.URL)
	setString("TOGETHER_JWT_SECRET", &c.JWT.Secret)
	setString("TOGETHER_LOG_LEVEL", &c.Log.Level)
	setString("TOGETHER_REDIS_ADDR", &c.Redis.Addr)
	setString("TOGETHER_REDIS_PASSWORD", &c.Redis.Password)
	setString("TOGETHER_AWS_ACCESS_KEY", &c.AWS.AccessKey)
	setString("TOGETHER_AWS_SECRET_KEY", &c.AWS.SecretKey)
	setString("TOGETHER_S3_BUCKET", &c.AWS.S3Bucket)
	setString("TOGETHER_S3_ENDPOINT", &c.AWS.Endpoint)
	setString("TOGETHER_GENAI_API_KEY", &c.Agent.APIKey)
	setString("TOGETHER_SENDGRID_API_KEY", &c.Email.SendGridAPIKey)
	setString("TOGETHER_INTERNAL_TOKEN", &c.Internal.Token)

	if v, ok := os.LookupEnv("TOGETHER_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid TOGETHER_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v, ok := os.LookupEnv("TOGETHER_AGENT_ENABLED"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid TOGETHER_AGENT_ENABLED %q: %w", v, err)
		}
		c.Agent.Enabled = enabled
	}
	if v, ok := os.LookupEnv("TOGETHER_CORS_ORIGINS"); ok {
		c.CORS.AllowedOrigins = splitList(v)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.JWT.TTL == 0 {
		c.JWT.TTL = 7 * 24 * time.Hour
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.AWS.Region == "" {
		c.AWS.Region = "us-east-1"
	}
	if c.Email.BaseURL == "" {
		c.Email.BaseURL = "https://api.sendgrid.com"
	}
	if c.Email.FromName == "" {
		c.Email.FromName = "Together"
	}
	if c.Email.Timeout == 0 {
		c.Email.Timeout = 10 * time.Second
	}
	if c.Agent.Model == "" {
		c.Agent.Model = "gemini-2.0-flash"
	}
	if c.Agent.Timeout == 0 {
		c.Agent.Timeout = 20 * time.Second
	}
	if c.Agent.Cooldown == 0 {
		c.Agent.Cooldown = 60 * time.Second
	}
	if c.Agent.ToneCacheTTL == 0 {
		c.Agent.ToneCacheTTL = 3 * time.Hour
	}
	if c.Agent.SuggestionCacheTTL == 0 {
		c.Agent.SuggestionCacheTTL = 6 * time.Hour
	}
	if c.Agent.StyleCacheTTL == 0 {
		c.Agent.StyleCacheTTL = 24 * time.Hour
	}
	if c.Agent.DecisionBatchSize == 0 {
		c.Agent.DecisionBatchSize = 25
	}
	if c.Agent.ActivityRetention == 0 {
		c.Agent.ActivityRetention = 30 * 24 * time.Hour
	}
	if c.Worker.Interval == 0 {
		c.Worker.Interval = 60 * time.Second
	}
	if c.Worker.BatchSize == 0 {
		c.Worker.BatchSize = 100
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
}

// Validate checks settings the server cannot start without
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	if c.Database.URL == "" && c.Database.Host == "" {
		return errors.New("database.url or database.host is required")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	if c.Agent.Cooldown < minAgentCooldown {
		return fmt.Errorf("agent.cooldown must be at least %s", minAgentCooldown)
	}
	if c.Agent.DecisionBatchSize < 1 {
		return errors.New("agent.decision_batch_size must be positive")
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// AgentAvailable reports whether the language model may be called at all
func (c *AgentConfig) AgentAvailable() bool {
	return c.Enabled && c.APIKey != ""
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
