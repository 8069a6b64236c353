package config

import (
	"errors"
	"fmt"
	"os"

	"taurean/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	AMQP       AMQPConfig       `yaml:"amqp"`
	Settlement SettlementConfig `yaml:"settlement"`
	Worker     WorkerConfig     `yaml:"worker"`
	Exports    ExportConfig     `yaml:"exports"`
	Companies  []models.Company `yaml:"companies"`
	Resources  []models.Resource `yaml:"resources"`
	Taxes      []models.Tax     `yaml:"taxes"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	StaffID     string   `yaml:"staff_id"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// GatewayConfig describes the payment gateway webhook channel.
type GatewayConfig struct {
	Provider        string `yaml:"provider"`
	Secret          string `yaml:"secret"`
	SignatureHeader string `yaml:"signature_header"`
	EventIDHeader   string `yaml:"event_id_header"`
}

type AMQPConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Queue   string `yaml:"queue"`
}

// SettlementConfig carries payment policy knobs.
type SettlementConfig struct {
	Currency      string `yaml:"currency"`
	MinAdvanceBps int64  `yaml:"min_advance_bps"`
}

type WorkerConfig struct {
	PollIntervalSec int `yaml:"poll_interval_sec"`
	BatchSize       int `yaml:"batch_size"`
	MaxRetries      int `yaml:"max_retries"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

// Load reads the YAML config at path, expanding ${ENV} references after
// merging an optional .env file.
func Load(configPath string) (*Config, error) {
	// .env is optional outside local development
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Gateway.Secret == "" {
		return errors.New("gateway secret is required")
	}
	if err := ValidateResources(c.Resources); err != nil {
		return err
	}
	return ValidateTaxes(c.Taxes)
}

// ValidateResources rejects duplicate or zero resource IDs in the seed set.
func ValidateResources(resources []models.Resource) error {
	seen := make(map[int64]bool)
	for _, r := range resources {
		if r.ID == 0 {
			return fmt.Errorf("resource %q has invalid ID 0", r.Name)
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate resource ID found: %d", r.ID)
		}
		seen[r.ID] = true

		switch r.Kind {
		case models.KindFacility, models.KindInventory:
		default:
			return fmt.Errorf("resource %q has unknown kind %q", r.Name, r.Kind)
		}
	}
	return nil
}

// ValidateTaxes rejects negative rates and duplicate names per company.
func ValidateTaxes(taxes []models.Tax) error {
	seen := make(map[string]bool)
	for _, t := range taxes {
		if t.RateBps < 0 {
			return fmt.Errorf("tax %q has negative rate", t.Name)
		}
		key := fmt.Sprintf("%d/%s", t.CompanyID, t.Name)
		if seen[key] {
			return fmt.Errorf("duplicate tax name %q for company %d", t.Name, t.CompanyID)
		}
		seen[key] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Gateway.Provider == "" {
		c.Gateway.Provider = "gateway"
	}
	if c.Gateway.SignatureHeader == "" {
		c.Gateway.SignatureHeader = "x-gateway-signature"
	}
	if c.Gateway.EventIDHeader == "" {
		c.Gateway.EventIDHeader = "x-gateway-event-id"
	}
	if c.Settlement.Currency == "" {
		c.Settlement.Currency = "USD"
	}
	if c.Settlement.MinAdvanceBps == 0 {
		c.Settlement.MinAdvanceBps = models.DefaultMinAdvanceBps
	}
	if c.Worker.PollIntervalSec == 0 {
		c.Worker.PollIntervalSec = models.DefaultWebhookPollIntervalSec
	}
	if c.Worker.BatchSize == 0 {
		c.Worker.BatchSize = 20
	}
	if c.Worker.MaxRetries == 0 {
		c.Worker.MaxRetries = 5
	}
	if c.AMQP.Queue == "" {
		c.AMQP.Queue = "taurean.events"
	}
}
