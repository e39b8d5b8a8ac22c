package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string
	Environment string
	Database    DatabaseConfig
	Payment     PaymentConfig
	Pricing     PricingConfig
	AMQP        AMQPConfig
	Auth        AuthConfig
	LogLevel    string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// PaymentConfig configures the payment processor boundary
type PaymentConfig struct {
	BaseURL          string
	APIKey           string
	WebhookSecret    string
	WebhookTolerance int     // seconds, replay mitigation window
	MaxChargeAmount  float64 // sanity ceiling for intent creation
}

// PricingConfig carries the checkout pricing policy
type PricingConfig struct {
	TaxRate               float64 // flat percentage of items price
	ShippingFlatRate      float64
	FreeShippingThreshold float64
	ReturnWindowDays      int
}

type AMQPConfig struct {
	URL      string
	Exchange string
}

type AuthConfig struct {
	JWTSecret string
}

func Load() (*Config, error) {
	viper.SetConfigType("env")
	viper.SetConfigName(".env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")

	// Set defaults
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("LOG_LEVEL", "info")

	// Read from environment variables
	viper.AutomaticEnv()

	// Try to read .env file (optional)
	if err := viper.ReadInConfig(); err != nil {
		// It's okay if .env doesn't exist, we'll use env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{
		Port:        getEnvOrViper("PORT", "8080"),
		Environment: getEnvOrViper("ENVIRONMENT", "development"),
		Database: DatabaseConfig{
			Host:     getEnvOrViper("DB_HOST", "localhost"),
			Port:     getEnvOrViper("DB_PORT", "5432"),
			User:     getEnvOrViper("DB_USER", "postgres"),
			Password: getEnvOrViper("DB_PASSWORD", "postgres"),
			DBName:   getEnvOrViper("DB_NAME", "storefront"),
			SSLMode:  getEnvOrViper("DB_SSLMODE", "disable"),
		},
		Payment: PaymentConfig{
			BaseURL:          getEnvOrViper("PAYMENT_BASE_URL", "https://api.payment.example.com"),
			APIKey:           getEnvOrViper("PAYMENT_API_KEY", ""),
			WebhookSecret:    getEnvOrViper("PAYMENT_WEBHOOK_SECRET", ""),
			WebhookTolerance: getIntEnv("PAYMENT_WEBHOOK_TOLERANCE", 300),
			MaxChargeAmount:  getFloatEnv("PAYMENT_MAX_CHARGE", 100000),
		},
		Pricing: PricingConfig{
			TaxRate:               getFloatEnv("PRICING_TAX_RATE", 0.10),
			ShippingFlatRate:      getFloatEnv("PRICING_SHIPPING_FLAT_RATE", 10),
			FreeShippingThreshold: getFloatEnv("PRICING_FREE_SHIPPING_THRESHOLD", 100),
			ReturnWindowDays:      getIntEnv("PRICING_RETURN_WINDOW_DAYS", 30),
		},
		AMQP: AMQPConfig{
			URL:      getEnvOrViper("AMQP_URL", ""),
			Exchange: getEnvOrViper("AMQP_EXCHANGE", "storefront.orders"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnvOrViper("JWT_SECRET", ""),
		},
		LogLevel: getEnvOrViper("LOG_LEVEL", "info"),
	}

	// Validate required fields
	if cfg.Payment.APIKey == "" {
		return nil, fmt.Errorf("PAYMENT_API_KEY is required")
	}
	if cfg.Payment.WebhookSecret == "" {
		return nil, fmt.Errorf("PAYMENT_WEBHOOK_SECRET is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func getEnvOrViper(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if val := getEnvOrViper(key, ""); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if val := getEnvOrViper(key, ""); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
