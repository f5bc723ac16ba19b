package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port                string   `mapstructure:"PORT"`
	Env                 string   `mapstructure:"ENV"`
	DatabaseURL         string   `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL            string   `mapstructure:"REDIS_URL"`
	JWTSecret           string   `mapstructure:"JWT_SECRET"`
	JWTIssuer           string   `mapstructure:"JWT_ISSUER"`
	CORSOrigins         []string `mapstructure:"CORS_ORIGINS"`
	SlotDurationMinutes int      `mapstructure:"SLOT_DURATION_MINUTES"`
	GridCacheTTLSeconds int      `mapstructure:"GRID_CACHE_TTL_SECONDS"`
	HorizonIntervalDays int      `mapstructure:"HORIZON_INTERVAL_DAYS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("SLOT_DURATION_MINUTES", 30)
	v.SetDefault("GRID_CACHE_TTL_SECONDS", 60)
	v.SetDefault("HORIZON_INTERVAL_DAYS", 7)
	v.SetDefault("JWT_ISSUER", "clinica-agenda")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("REDIS_URL")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("JWT_ISSUER")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("SLOT_DURATION_MINUTES")
	v.BindEnv("GRID_CACHE_TTL_SECONDS")
	v.BindEnv("HORIZON_INTERVAL_DAYS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active — all requests get admin access.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: Set ENV=production and configure JWT_SECRET for production.")
		log.Println("WARNING: ============================================================")
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

// Validate checks that the configuration is safe to run. Outside development
// a JWT secret must be set so that real authentication is enforced.
func (c *Config) Validate() error {
	if !c.IsDev() && c.JWTSecret == "" {
		return fmt.Errorf(
			"JWT_SECRET must be set when ENV=%q. "+
				"Refusing to start without authentication configuration", c.Env)
	}
	if c.SlotDurationMinutes <= 0 {
		return fmt.Errorf("SLOT_DURATION_MINUTES must be positive, got %d", c.SlotDurationMinutes)
	}
	if c.GridCacheTTLSeconds < 0 {
		return fmt.Errorf("GRID_CACHE_TTL_SECONDS must not be negative, got %d", c.GridCacheTTLSeconds)
	}
	if c.HorizonIntervalDays <= 0 {
		return fmt.Errorf("HORIZON_INTERVAL_DAYS must be positive, got %d", c.HorizonIntervalDays)
	}
	return nil
}
