package config

import (
	"fmt"
	"monallopay/internal/models"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	LogLevel  string
	LogFormat string
	Language  string
	HTTP      HTTPConfig
	API       APIConfig
	Kafka     KafkaConfig
	Database  DatabaseConfig
	Chain     ChainConfig
	Wallet    WalletConfig
	Rates     RatesConfig
	Assets    map[models.Asset]AssetConfig
}

// HTTPConfig holds outbound HTTP client configuration
type HTTPConfig struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	RateLimit  float64
}

// APIConfig holds the HTTP API server and the base URL clients use to reach it
type APIConfig struct {
	ListenAddr string
	BaseURL    string
	RateLimit  float64
	Burst      int
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Enabled       bool
	BrokerAddress string
	Topic         string
	BatchSize     int
	BatchTimeout  time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN renders the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// ChainConfig describes the single EVM chain the wallet talks to
type ChainConfig struct {
	Name            string
	ChainID         int64
	RpcEndpoint     string
	AddressPrefix   string
	ExplorerBaseURL string
	PollInterval    time.Duration
}

// WalletConfig selects the signing key for CLI transfers
type WalletConfig struct {
	KeystorePath string
	Passphrase   string
	PrivateKey   string
}

// RatesConfig holds the exchange-rate API credentials. They never leave the
// server process.
type RatesConfig struct {
	Enabled    bool
	BaseURL    string
	Pair       string
	APIKey     string
	SecretKey  string
	Passphrase string
	Interval   time.Duration
}

// AssetConfig binds an asset to its token contract
type AssetConfig struct {
	Contract string `yaml:"contract"`
	Decimals uint8  `yaml:"decimals"`
}

type assetFile struct {
	Assets map[string]AssetConfig `yaml:"assets"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// A missing .env is fine, variables may be set externally.
	_ = godotenv.Load()

	config := &Config{
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
		Language:  getEnv("LANGUAGE", "en"),
		HTTP: HTTPConfig{
			Timeout:    time.Duration(getEnvAsInt("HTTP_TIMEOUT", 30)) * time.Second,
			MaxRetries: getEnvAsInt("MAX_RETRIES", 2),
			RetryDelay: time.Duration(getEnvAsInt("RETRY_DELAY_MS", 500)) * time.Millisecond,
			RateLimit:  getEnvAsFloat("HTTP_RATE_LIMIT", 10),
		},
		API: APIConfig{
			ListenAddr: getEnv("API_LISTEN_ADDR", ":8080"),
			BaseURL:    getEnv("API_BASE_URL", "http://localhost:8080"),
			RateLimit:  getEnvAsFloat("API_RATE_LIMIT", 50),
			Burst:      getEnvAsInt("API_BURST", 100),
		},
		Kafka: KafkaConfig{
			Enabled:       getEnvAsBool("KAFKA_ENABLED", false),
			BrokerAddress: getEnv("KAFKA_BROKER_ADDRESS", "localhost:9092"),
			Topic:         getEnv("KAFKA_TOPIC", "monallopay-transfers"),
			BatchSize:     getEnvAsInt("KAFKA_BATCH_SIZE", 10),
			BatchTimeout:  time.Duration(getEnvAsInt("KAFKA_BATCH_TIMEOUT", 5)) * time.Second,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "monallopay"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Chain: ChainConfig{
			Name:            getEnv("CHAIN_NAME", "Imuachain Testnet"),
			ChainID:         int64(getEnvAsInt("CHAIN_ID", 233)),
			RpcEndpoint:     getEnv("CHAIN_RPC_ENDPOINT", "https://api-eth.exocore-restaking.com"),
			AddressPrefix:   getEnv("CHAIN_ADDRESS_PREFIX", "imua"),
			ExplorerBaseURL: getEnv("CHAIN_EXPLORER_URL", "https://exoscan.org/tx"),
			PollInterval:    time.Duration(getEnvAsInt("BALANCE_POLL_INTERVAL", 10)) * time.Second,
		},
		Wallet: WalletConfig{
			KeystorePath: getEnv("WALLET_KEYSTORE", ""),
			Passphrase:   getEnv("WALLET_PASSPHRASE", ""),
			PrivateKey:   getEnv("WALLET_PRIVATE_KEY", ""),
		},
		Rates: RatesConfig{
			Enabled:    getEnvAsBool("RATES_ENABLED", false),
			BaseURL:    getEnv("RATES_BASE_URL", "https://www.okx.com"),
			Pair:       getEnv("RATES_PAIR", "IMUA-maoUSDT"),
			APIKey:     getEnv("RATES_API_KEY", ""),
			SecretKey:  getEnv("RATES_SECRET_KEY", ""),
			Passphrase: getEnv("RATES_PASSPHRASE", ""),
			Interval:   time.Duration(getEnvAsInt("RATES_INTERVAL", 60)) * time.Second,
		},
		Assets: map[models.Asset]AssetConfig{
			models.MaoUSDT: {Contract: getEnv("MAOUSDT_CONTRACT", "0xfa4b837d43f2519279fdcc14529d2fa0a2366c4c")},
			models.MaoUSDC: {Contract: getEnv("MAOUSDC_CONTRACT", "0xe5a26a2c90b6e629861bb25f10177f06720e5335")},
		},
	}

	if path := getEnv("ASSETS_FILE", ""); path != "" {
		if err := config.loadAssetFile(path); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// loadAssetFile overrides contract bindings from a YAML file:
//
//	assets:
//	  maoUSDT: {contract: "0x...", decimals: 6}
func (c *Config) loadAssetFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read asset file: %w", err)
	}

	var f assetFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse asset file %s: %w", path, err)
	}

	for sym, ac := range f.Assets {
		asset, err := models.ParseAsset(sym)
		if err != nil {
			return fmt.Errorf("asset file %s: %w", path, err)
		}
		if asset.IsNative() {
			return fmt.Errorf("asset file %s: %s is the native coin and has no contract", path, asset)
		}
		c.Assets[asset] = ac
	}
	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as int or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsFloat gets an environment variable as float64 or returns a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}
