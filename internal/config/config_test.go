package config

import (
	"os"
	"path/filepath"
	"testing"

	"taurean/internal/models"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
app:
  name: "taurean"
database:
  path: "test.db"
gateway:
  secret: "${GATEWAY_SECRET}"
settlement:
  currency: "GHS"
resources:
  - id: 1
    company_id: 1
    name: "Main Hall"
    kind: "facility"
taxes:
  - company_id: 1
    name: "VAT"
    rate_bps: 500
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	t.Setenv("GATEWAY_SECRET", "s3cret")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Gateway.Secret != "s3cret" {
		t.Errorf("expected env-expanded secret, got %q", cfg.Gateway.Secret)
	}
	if cfg.Settlement.Currency != "GHS" {
		t.Errorf("expected currency GHS, got %s", cfg.Settlement.Currency)
	}
	if len(cfg.Resources) != 1 || cfg.Resources[0].Kind != models.KindFacility {
		t.Errorf("expected 1 facility resource, got %+v", cfg.Resources)
	}
	if len(cfg.Taxes) != 1 || cfg.Taxes[0].RateBps != 500 {
		t.Errorf("expected 1 tax at 500 bps, got %+v", cfg.Taxes)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
database:
  path: "test.db"
gateway:
  secret: "s"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.API.HTTP.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.API.HTTP.Port)
	}
	if cfg.API.Auth.HeaderAPIKey != "x-api-key" {
		t.Errorf("expected default api key header, got %q", cfg.API.Auth.HeaderAPIKey)
	}
	if cfg.Gateway.SignatureHeader != "x-gateway-signature" {
		t.Errorf("expected default signature header, got %q", cfg.Gateway.SignatureHeader)
	}
	if cfg.Settlement.Currency != "USD" {
		t.Errorf("expected default currency USD, got %s", cfg.Settlement.Currency)
	}
	if cfg.Settlement.MinAdvanceBps != models.DefaultMinAdvanceBps {
		t.Errorf("expected default min advance, got %d", cfg.Settlement.MinAdvanceBps)
	}
	if cfg.Worker.BatchSize != 20 || cfg.Worker.MaxRetries != 5 {
		t.Errorf("expected worker defaults, got %+v", cfg.Worker)
	}
}

func TestValidateConfig(t *testing.T) {
	base := func() Config {
		return Config{
			Database: DatabaseConfig{Path: "test.db"},
			Gateway:  GatewayConfig{Secret: "s"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "missing gateway secret",
			mutate:  func(c *Config) { c.Gateway.Secret = "" },
			wantErr: true,
		},
		{
			name: "duplicate resource id",
			mutate: func(c *Config) {
				c.Resources = []models.Resource{
					{ID: 1, Name: "Hall A", Kind: models.KindFacility},
					{ID: 1, Name: "Hall B", Kind: models.KindFacility},
				}
			},
			wantErr: true,
		},
		{
			name: "zero resource id",
			mutate: func(c *Config) {
				c.Resources = []models.Resource{{ID: 0, Name: "Hall", Kind: models.KindFacility}}
			},
			wantErr: true,
		},
		{
			name: "unknown resource kind",
			mutate: func(c *Config) {
				c.Resources = []models.Resource{{ID: 1, Name: "Hall", Kind: "warehouse"}}
			},
			wantErr: true,
		},
		{
			name: "negative tax rate",
			mutate: func(c *Config) {
				c.Taxes = []models.Tax{{CompanyID: 1, Name: "VAT", RateBps: -1}}
			},
			wantErr: true,
		},
		{
			name: "duplicate tax name per company",
			mutate: func(c *Config) {
				c.Taxes = []models.Tax{
					{CompanyID: 1, Name: "VAT", RateBps: 500},
					{CompanyID: 1, Name: "VAT", RateBps: 700},
				}
			},
			wantErr: true,
		},
		{
			name: "same tax name different companies",
			mutate: func(c *Config) {
				c.Taxes = []models.Tax{
					{CompanyID: 1, Name: "VAT", RateBps: 500},
					{CompanyID: 2, Name: "VAT", RateBps: 500},
				}
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
