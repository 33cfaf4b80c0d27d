/**
 * @description
 * This file handles the configuration management for the compte-service.
 * It uses the Viper library to read settings from environment variables or a .env file.
 *
 * @dependencies
 * - github.com/spf13/viper: For configuration management.
 */
package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
type Config struct {
	ServerPort         string `mapstructure:"SERVER_PORT"`
	DatabaseURL        string `mapstructure:"DATABASE_URL"`
	RedisURL           string `mapstructure:"REDIS_URL"`
	RedisKeyPrefix     string `mapstructure:"REDIS_KEY_PREFIX"`
	RabbitMQURL        string `mapstructure:"RABBITMQ_URL"`
	EventExchange      string `mapstructure:"EVENT_EXCHANGE"`
	JWTSecret          string `mapstructure:"JWT_SECRET"`
	TokenTTLSeconds    int    `mapstructure:"TOKEN_TTL_SECONDS"`
	RateLimitPerDay    int    `mapstructure:"RATE_LIMIT_PER_DAY"`
	CacheCompteTTLSecs int    `mapstructure:"CACHE_COMPTE_TTL_SECONDS"`
	CacheListTTLSecs   int    `mapstructure:"CACHE_LIST_TTL_SECONDS"`
	Debug              bool   `mapstructure:"DEBUG"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_KEY_PREFIX", "banque")
	viper.SetDefault("EVENT_EXCHANGE", "banque.events")
	viper.SetDefault("TOKEN_TTL_SECONDS", 3600)
	viper.SetDefault("RATE_LIMIT_PER_DAY", 10)
	viper.SetDefault("CACHE_COMPTE_TTL_SECONDS", 1800)
	viper.SetDefault("CACHE_LIST_TTL_SECONDS", 3600)
	viper.SetDefault("DEBUG", false)

	// Bind envs explicitly so containers pick them up reliably
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_KEY_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENT_EXCHANGE")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("TOKEN_TTL_SECONDS")
	_ = viper.BindEnv("RATE_LIMIT_PER_DAY")
	_ = viper.BindEnv("CACHE_COMPTE_TTL_SECONDS")
	_ = viper.BindEnv("CACHE_LIST_TTL_SECONDS")
	_ = viper.BindEnv("DEBUG")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("Warning: Error reading config file: %s", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
