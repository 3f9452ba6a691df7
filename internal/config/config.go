package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	API      APIConfig
	Gateway  GatewayConfig
	Site     SiteConfig
	Telegram TelegramConfig
	Cron     CronConfig
}

type ServerConfig struct {
	Port int
	Env  string // "development", "production"
}

type DatabaseConfig struct {
	Host    string
	Port    string
	Name    string
	User    string
	Pass    string
	Charset string
}

type RedisConfig struct {
	Addr string
	Pass string
	DB   int
}

type APIConfig struct {
	Key      string
	HashFile string
}

// GatewayConfig holds process-wide settings for the hosted payment page
// processor. Per-payable credentials live in the gateway_accounts table.
type GatewayConfig struct {
	Name             string
	Mode             string // "redirect" or "sdk"
	SandboxURL       string
	LiveURL          string
	Timeout          time.Duration
	Retries          int
	WebhookTolerance time.Duration
	SurchargePercent float64
}

type SiteConfig struct {
	PublicURL string
	ResultURL string
}

type TelegramConfig struct {
	Token   string
	Channel int64
}

type CronConfig struct {
	Enabled     bool
	SweepSpec   string
	SweepMinAge time.Duration
	AttemptTTL  time.Duration
	PurgeSpec   string
	PurgeAfter  time.Duration
}

// Load reads configuration from .env file and environment variables.
func Load() (*Config, error) {
	// Load .env file (ignore error if missing)
	_ = godotenv.Load()

	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("APP_PORT", 8080)
	viper.SetDefault("APP_ENV", "production")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "3306")
	viper.SetDefault("DB_CHARSET", "utf8mb4")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("API_HASH_FILE", "hash.txt")
	viper.SetDefault("GATEWAY_NAME", "hpp")
	viper.SetDefault("GATEWAY_MODE", "redirect")
	viper.SetDefault("GATEWAY_SANDBOX_URL", "https://api-demo.airwallex.com")
	viper.SetDefault("GATEWAY_LIVE_URL", "https://api.airwallex.com")
	viper.SetDefault("GATEWAY_TIMEOUT", "30s")
	viper.SetDefault("GATEWAY_RETRIES", 2)
	viper.SetDefault("GATEWAY_WEBHOOK_TOLERANCE", "5m")
	viper.SetDefault("GATEWAY_SURCHARGE_PERCENT", 0)
	viper.SetDefault("SITE_PUBLIC_URL", "http://localhost:8080")
	viper.SetDefault("CRON_ENABLED", true)
	viper.SetDefault("CRON_SWEEP_SPEC", "0 */10 * * * *")
	viper.SetDefault("CRON_SWEEP_MIN_AGE", "15m")
	viper.SetDefault("CRON_ATTEMPT_TTL", "24h")
	viper.SetDefault("CRON_PURGE_SPEC", "0 30 3 * * *")
	viper.SetDefault("CRON_PURGE_AFTER", "720h")

	publicURL := strings.TrimRight(viper.GetString("SITE_PUBLIC_URL"), "/")
	resultURL := viper.GetString("PAYMENT_RESULT_URL")
	if resultURL == "" {
		resultURL = publicURL + "/payment/result"
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetInt("APP_PORT"),
			Env:  viper.GetString("APP_ENV"),
		},
		Database: DatabaseConfig{
			Host:    viper.GetString("DB_HOST"),
			Port:    viper.GetString("DB_PORT"),
			Name:    viper.GetString("DB_NAME"),
			User:    viper.GetString("DB_USER"),
			Pass:    viper.GetString("DB_PASS"),
			Charset: viper.GetString("DB_CHARSET"),
		},
		Redis: RedisConfig{
			Addr: viper.GetString("REDIS_ADDR"),
			Pass: viper.GetString("REDIS_PASS"),
			DB:   viper.GetInt("REDIS_DB"),
		},
		API: APIConfig{
			Key:      viper.GetString("API_KEY"),
			HashFile: viper.GetString("API_HASH_FILE"),
		},
		Gateway: GatewayConfig{
			Name:             viper.GetString("GATEWAY_NAME"),
			Mode:             strings.ToLower(viper.GetString("GATEWAY_MODE")),
			SandboxURL:       viper.GetString("GATEWAY_SANDBOX_URL"),
			LiveURL:          viper.GetString("GATEWAY_LIVE_URL"),
			Timeout:          parseDuration(viper.GetString("GATEWAY_TIMEOUT"), 30*time.Second),
			Retries:          viper.GetInt("GATEWAY_RETRIES"),
			WebhookTolerance: parseDuration(viper.GetString("GATEWAY_WEBHOOK_TOLERANCE"), 5*time.Minute),
			SurchargePercent: viper.GetFloat64("GATEWAY_SURCHARGE_PERCENT"),
		},
		Site: SiteConfig{
			PublicURL: publicURL,
			ResultURL: resultURL,
		},
		Telegram: TelegramConfig{
			Token:   viper.GetString("TELEGRAM_TOKEN"),
			Channel: viper.GetInt64("TELEGRAM_CHANNEL"),
		},
		Cron: CronConfig{
			Enabled:     viper.GetBool("CRON_ENABLED"),
			SweepSpec:   viper.GetString("CRON_SWEEP_SPEC"),
			SweepMinAge: parseDuration(viper.GetString("CRON_SWEEP_MIN_AGE"), 15*time.Minute),
			AttemptTTL:  parseDuration(viper.GetString("CRON_ATTEMPT_TTL"), 24*time.Hour),
			PurgeSpec:   viper.GetString("CRON_PURGE_SPEC"),
			PurgeAfter:  parseDuration(viper.GetString("CRON_PURGE_AFTER"), 30*24*time.Hour),
		},
	}

	if cfg.Gateway.Mode != "redirect" && cfg.Gateway.Mode != "sdk" {
		log.Printf("WARNING: unknown GATEWAY_MODE %q, using redirect", cfg.Gateway.Mode)
		cfg.Gateway.Mode = "redirect"
	}
	if cfg.Database.Name == "" {
		log.Println("WARNING: DB_NAME is not set")
	}
	if cfg.API.Key == "" {
		log.Println("WARNING: API_KEY is not set")
	}

	return cfg, nil
}

// LoadDatabaseOnly reads just the database section, for the bootstrap command.
func LoadDatabaseOnly() (*DatabaseConfig, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	return &cfg.Database, nil
}

// DSN returns the MySQL DSN string for GORM.
func (d *DatabaseConfig) DSN() string {
	return d.User + ":" + d.Pass + "@tcp(" + d.Host + ":" + d.Port + ")/" + d.Name + "?charset=" + d.Charset + "&parseTime=True&loc=Local"
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
