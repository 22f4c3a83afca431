package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends understood by STORE_BACKEND.
const (
	BackendXLSX     = "xlsx"
	BackendBolt     = "bolt"
	BackendPostgres = "postgres"
	BackendMySQL    = "mysql"
	BackendMemory   = "memory"
)

// Session backends understood by SESSION_BACKEND.
const (
	SessionMemory = "memory"
	SessionRedis  = "redis"
)

type Config struct {
	Port                string        `mapstructure:"PORT"`
	Env                 string        `mapstructure:"ENV"`
	StoreBackend        string        `mapstructure:"STORE_BACKEND"`
	DataDir             string        `mapstructure:"DATA_DIR"`
	AssetDir            string        `mapstructure:"ASSET_DIR"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	MySQLDSN            string        `mapstructure:"MYSQL_DSN"`
	DBMaxConns          int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32         `mapstructure:"DB_MIN_CONNS"`
	SessionBackend      string        `mapstructure:"SESSION_BACKEND"`
	RedisURL            string        `mapstructure:"REDIS_URL"`
	SessionSecret       string        `mapstructure:"SESSION_SECRET"`
	SessionTTL          time.Duration `mapstructure:"SESSION_TTL"`
	ClinicBrand         string        `mapstructure:"CLINIC_BRAND"`
	ClinicAddress       string        `mapstructure:"CLINIC_ADDRESS"`
	SlotMinutes         int           `mapstructure:"SLOT_MINUTES"`
	WriteBufferCapacity int           `mapstructure:"WRITE_BUFFER_CAPACITY"`
	PreventDoubleBook   bool          `mapstructure:"BOOKING_PREVENT_DOUBLE_BOOKING"`
	SMTPHost            string        `mapstructure:"SMTP_HOST"`
	SMTPPort            int           `mapstructure:"SMTP_PORT"`
	SMTPUser            string        `mapstructure:"SMTP_USER"`
	SMTPPassword        string        `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom            string        `mapstructure:"SMTP_FROM"`
	CORSOrigins         []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS        float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst      int           `mapstructure:"RATE_LIMIT_BURST"`
}

var envKeys = []string{
	"PORT", "ENV", "STORE_BACKEND", "DATA_DIR", "ASSET_DIR", "DATABASE_URL", "MYSQL_DSN",
	"DB_MAX_CONNS", "DB_MIN_CONNS", "SESSION_BACKEND", "REDIS_URL", "SESSION_SECRET",
	"SESSION_TTL", "CLINIC_BRAND", "CLINIC_ADDRESS", "SLOT_MINUTES", "WRITE_BUFFER_CAPACITY",
	"BOOKING_PREVENT_DOUBLE_BOOKING", "SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASSWORD",
	"SMTP_FROM", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE_BACKEND", BackendXLSX)
	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("ASSET_DIR", "./static/generated")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("SESSION_BACKEND", SessionMemory)
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("CLINIC_BRAND", "LimaMedic")
	v.SetDefault("CLINIC_ADDRESS", "Av. Ejemplo 123, Lima - Tel: (01) 555-5555")
	v.SetDefault("SLOT_MINUTES", 30)
	v.SetDefault("WRITE_BUFFER_CAPACITY", 256)
	v.SetDefault("BOOKING_PREVENT_DOUBLE_BOOKING", true)
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.IsDev() && cfg.SessionSecret == "" {
		log.Println("WARNING: SESSION_SECRET is empty, using an insecure development secret.")
		cfg.SessionSecret = "development-only-session-secret-change-me"
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks backend selection and the settings each backend needs.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendXLSX, BackendBolt, BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND is %q", BackendPostgres)
		}
	case BackendMySQL:
		if c.MySQLDSN == "" {
			return fmt.Errorf("MYSQL_DSN is required when STORE_BACKEND is %q", BackendMySQL)
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be one of xlsx, bolt, postgres, mysql, memory, got %q", c.StoreBackend)
	}

	switch c.SessionBackend {
	case SessionMemory:
	case SessionRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when SESSION_BACKEND is %q", SessionRedis)
		}
	default:
		return fmt.Errorf("SESSION_BACKEND must be \"memory\" or \"redis\", got %q", c.SessionBackend)
	}

	if c.IsProduction() && len(c.SessionSecret) < 32 {
		return fmt.Errorf("SESSION_SECRET must be at least 32 characters in production")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.SlotMinutes <= 0 {
		return fmt.Errorf("SLOT_MINUTES must be positive, got %d", c.SlotMinutes)
	}
	if c.WriteBufferCapacity <= 0 {
		return fmt.Errorf("WRITE_BUFFER_CAPACITY must be positive, got %d", c.WriteBufferCapacity)
	}
	return nil
}

// MailEnabled reports whether SMTP delivery is configured.
func (c *Config) MailEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
}
