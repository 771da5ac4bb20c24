package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `json:"server"`
	Database     DatabaseConfig     `json:"database"`
	Security     SecurityConfig     `json:"security"`
	AWS          AWSConfig          `json:"aws"`
	Platform     PlatformConfig     `json:"platform"`
	Bulk         BulkConfig         `json:"bulk"`
	Verification VerificationConfig `json:"verification"`
	Logging      LoggingConfig      `json:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	User           string        `json:"user"`
	Password       string        `json:"password"`
	DBName         string        `json:"db_name"`
	SSLMode        string        `json:"ssl_mode"`
	MaxConnections int           `json:"max_connections"`
	MaxIdleConns   int           `json:"max_idle_conns"`
	MaxLifetime    time.Duration `json:"max_lifetime"`
	MigrationsPath string        `json:"migrations_path"`
}

// SecurityConfig
type SecurityConfig struct {
	JWTSecret string `json:"jwt_secret"`
}

// AWSConfig holds credentials and resource names for S3 exports and
// SES/SNS message delivery.
type AWSConfig struct {
	Region          string `json:"region"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	ExportBucket    string `json:"export_bucket"`
	SenderEmail     string `json:"sender_email"`
	SMSEnabled      bool   `json:"sms_enabled"`
}

// PlatformConfig points at the main marketplace API that owns account
// state transitions and the verification status endpoint.
type PlatformConfig struct {
	BaseURL        string `json:"base_url"`
	APIKey         string `json:"api_key"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

func (c *PlatformConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BulkConfig tunes the bulk operation orchestrator.
type BulkConfig struct {
	WorkerCount        int `json:"worker_count"`
	ItemTimeoutSeconds int `json:"item_timeout_seconds"`
	RetentionHours     int `json:"retention_hours"`
	PollSeconds        int `json:"poll_seconds"`
	LeaseSeconds       int `json:"lease_seconds"`
}

func (c *BulkConfig) ItemTimeout() time.Duration {
	if c.ItemTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.ItemTimeoutSeconds) * time.Second
}

func (c *BulkConfig) Retention() time.Duration {
	if c.RetentionHours <= 0 {
		return 72 * time.Hour
	}
	return time.Duration(c.RetentionHours) * time.Hour
}

func (c *BulkConfig) PollInterval() time.Duration {
	if c.PollSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.PollSeconds) * time.Second
}

// LeaseTTL is how long a job's run lease holds between renewals.
func (c *BulkConfig) LeaseTTL() time.Duration {
	if c.LeaseSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.LeaseSeconds) * time.Second
}

// VerificationConfig holds queue urgency thresholds in waiting days.
type VerificationConfig struct {
	CriticalDays int `json:"critical_days"`
	HighDays     int `json:"high_days"`
	MediumDays   int `json:"medium_days"`
}

// LoggingConfig
type LoggingConfig struct {
	Level string `json:"level"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	// Default config
	config := &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    os.Getenv("USER"),
			DBName:  "aaroth_admin",
			SSLMode: "disable",
		},
		AWS: AWSConfig{
			Region:       "ap-southeast-1",
			ExportBucket: "aaroth-admin-exports",
		},
		Platform: PlatformConfig{
			BaseURL:        "http://localhost:5000/api/v1",
			TimeoutSeconds: 10,
		},
		Bulk: BulkConfig{
			WorkerCount:        4,
			ItemTimeoutSeconds: 15,
			RetentionHours:     72,
			PollSeconds:        30,
			LeaseSeconds:       60,
		},
		Verification: VerificationConfig{
			CriticalDays: 7,
			HighDays:     5,
			MediumDays:   3,
		},
	}

	// Load from file if exists
	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Override with environment variables
	overrideWithEnv(config)

	return config, nil
}

func overrideWithEnv(config *Config) {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if dbHost := os.Getenv("DATABASE_HOST"); dbHost != "" {
		config.Database.Host = dbHost
	}
	if dbUser := os.Getenv("DATABASE_USER"); dbUser != "" {
		config.Database.User = dbUser
	}
	if dbPass := os.Getenv("DATABASE_PASSWORD"); dbPass != "" {
		config.Database.Password = dbPass
	}
	if dbName := os.Getenv("DATABASE_DBNAME"); dbName != "" {
		config.Database.DBName = dbName
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Security.JWTSecret = secret
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		config.AWS.Region = region
	}
	if key := os.Getenv("AWS_ACCESS_KEY_ID"); key != "" {
		config.AWS.AccessKeyID = key
	}
	if secret := os.Getenv("AWS_SECRET_ACCESS_KEY"); secret != "" {
		config.AWS.SecretAccessKey = secret
	}
	if bucket := os.Getenv("EXPORT_BUCKET"); bucket != "" {
		config.AWS.ExportBucket = bucket
	}
	if sender := os.Getenv("SENDER_EMAIL"); sender != "" {
		config.AWS.SenderEmail = sender
	}
	if base := os.Getenv("PLATFORM_BASE_URL"); base != "" {
		config.Platform.BaseURL = base
	}
	if apiKey := os.Getenv("PLATFORM_API_KEY"); apiKey != "" {
		config.Platform.APIKey = apiKey
	}
	if workers := os.Getenv("BULK_WORKER_COUNT"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil && n > 0 {
			config.Bulk.WorkerCount = n
		}
	}
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
