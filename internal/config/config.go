/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the agenda-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                string `mapstructure:"SERVER_PORT"`
	DatabaseURL               string `mapstructure:"DATABASE_URL"`
	RedisURL                  string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix      string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL               string `mapstructure:"RABBITMQ_URL"`
	AgendaEventQueue          string `mapstructure:"AGENDA_EVENT_QUEUE"`
	JWKSURL                   string `mapstructure:"JWKS_URL"`
	CORSAllowedOrigins        string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	PaymentRateLimitPerMinute int    `mapstructure:"PAYMENT_RATE_LIMIT_PER_MINUTE"`
	SeedCronSpec              string `mapstructure:"SEED_CRON_SPEC"`
	SeedHorizonDays           int    `mapstructure:"SEED_HORIZON_DAYS"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("AGENDA_EVENT_QUEUE", "agenda_service.day_updates")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "agenda:rate_limit")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	viper.SetDefault("PAYMENT_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("SEED_CRON_SPEC", "0 3 * * *")
	viper.SetDefault("SEED_HORIZON_DAYS", 7)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "AGENDA_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("AGENDA_EVENT_QUEUE")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("PAYMENT_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("SEED_CRON_SPEC")
	_ = viper.BindEnv("SEED_HORIZON_DAYS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "agenda:rate_limit"
	}

	if config.PaymentRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative payment rate limit configured; coercing to zero\" limit=%d", config.PaymentRateLimitPerMinute)
		config.PaymentRateLimitPerMinute = 0
	}
	if config.SeedHorizonDays <= 0 {
		config.SeedHorizonDays = 7
	}
	if config.SeedHorizonDays > 60 {
		log.Printf("level=warn component=config msg=\"seed horizon too large; capping at 60\" days=%d", config.SeedHorizonDays)
		config.SeedHorizonDays = 60
	}
	if strings.TrimSpace(config.SeedCronSpec) == "" {
		config.SeedCronSpec = "0 3 * * *"
	}

	return
}
