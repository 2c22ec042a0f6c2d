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

// Config holds all the configuration variables for the commission-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                  string  `mapstructure:"SERVER_PORT"`
	DatabaseURL                 string  `mapstructure:"DATABASE_URL"`
	RedisURL                    string  `mapstructure:"REDIS_URL"`
	RabbitMQURL                 string  `mapstructure:"RABBITMQ_URL"`
	JWTSecret                   string  `mapstructure:"JWT_SECRET"`
	TierCachePrefix             string  `mapstructure:"TIER_CACHE_PREFIX"`
	TierCacheTTLMinutes         int     `mapstructure:"TIER_CACHE_TTL_MINUTES"`
	ThresholdCheckSchedule      string  `mapstructure:"THRESHOLD_CHECK_SCHEDULE"`
	ThresholdCheckWindowMinutes int     `mapstructure:"THRESHOLD_CHECK_WINDOW_MINUTES"`
	ThresholdHardCancelPercent  float64 `mapstructure:"THRESHOLD_HARD_CANCEL_PERCENT"`
	ThresholdJobTimeoutMinutes  int     `mapstructure:"THRESHOLD_JOB_TIMEOUT_MINUTES"`
	ProjectionWindowDays        int     `mapstructure:"PROJECTION_WINDOW_DAYS"`
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
	viper.SetDefault("SERVER_PORT", "8086")
	viper.SetDefault("TIER_CACHE_PREFIX", "learnsphere:tiers")
	viper.SetDefault("TIER_CACHE_TTL_MINUTES", 5)
	viper.SetDefault("THRESHOLD_CHECK_SCHEDULE", "*/10 * * * *")
	viper.SetDefault("THRESHOLD_CHECK_WINDOW_MINUTES", 30)
	viper.SetDefault("THRESHOLD_HARD_CANCEL_PERCENT", 50.0)
	viper.SetDefault("THRESHOLD_JOB_TIMEOUT_MINUTES", 5)
	viper.SetDefault("PROJECTION_WINDOW_DAYS", 30)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "COMMISSION_REDIS_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("JWT_SECRET", "JWT_SECRET", "PLATFORM_JWT_SECRET")
	_ = viper.BindEnv("TIER_CACHE_PREFIX")
	_ = viper.BindEnv("TIER_CACHE_TTL_MINUTES")
	_ = viper.BindEnv("THRESHOLD_CHECK_SCHEDULE")
	_ = viper.BindEnv("THRESHOLD_CHECK_WINDOW_MINUTES")
	_ = viper.BindEnv("THRESHOLD_HARD_CANCEL_PERCENT")
	_ = viper.BindEnv("THRESHOLD_JOB_TIMEOUT_MINUTES")
	_ = viper.BindEnv("PROJECTION_WINDOW_DAYS")

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
	config.TierCachePrefix = strings.TrimSpace(config.TierCachePrefix)
	if config.TierCachePrefix == "" {
		config.TierCachePrefix = "learnsphere:tiers"
	}
	if config.TierCacheTTLMinutes <= 0 {
		config.TierCacheTTLMinutes = 5
	}
	if strings.TrimSpace(config.ThresholdCheckSchedule) == "" {
		config.ThresholdCheckSchedule = "*/10 * * * *"
	}
	if config.ThresholdCheckWindowMinutes <= 0 {
		config.ThresholdCheckWindowMinutes = 30
	}
	if config.ThresholdHardCancelPercent <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive hard cancel percent; using default\" percent=%f", config.ThresholdHardCancelPercent)
		config.ThresholdHardCancelPercent = 50.0
	}
	if config.ThresholdHardCancelPercent > 100 {
		log.Printf("level=warn component=config msg=\"hard cancel percent too high; capping at 100\" percent=%f", config.ThresholdHardCancelPercent)
		config.ThresholdHardCancelPercent = 100
	}
	if config.ThresholdJobTimeoutMinutes <= 0 {
		config.ThresholdJobTimeoutMinutes = 5
	}
	if config.ProjectionWindowDays <= 0 {
		config.ProjectionWindowDays = 30
	}

	return
}
