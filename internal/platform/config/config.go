// Package config loads process configuration from the environment,
// mirroring the flat getEnv-with-default pattern used across the sibling
// services in this pipeline. Configuration loading itself carries no
// business logic; it just assembles the typed structs each service needs.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

func init() {
	// Best effort: a missing .env is normal outside local development.
	_ = godotenv.Load()
}

// VerificationConfig configures the verification service process.
type VerificationConfig struct {
	Environment string
	HTTPPort    int

	DatabaseURL string
	DBPoolSize  int

	KafkaBootstrapServers []string
	UserVerifiedTopic     string

	MaxConcurrentVerifications int
	VerificationDelaySeconds   int
	MaxDocumentSizeMB          int
}

// WalletConfig configures the wallet service process.
type WalletConfig struct {
	Environment string
	HTTPPort    int

	DatabaseURL string
	DBPoolSize  int

	KafkaBootstrapServers []string
	KafkaConsumerGroup    string
	UserVerifiedTopic     string
	WalletCreatedTopic    string

	Mnemonic           string
	MnemonicEncrypted  string
	EncryptionKey      string

	MaxConcurrentGenerations int
	CacheTTLSeconds          int
	BatchProcessingSize      int
	ConsumerPollTimeoutMS    int
}

// LoadVerification assembles VerificationConfig from the environment.
func LoadVerification() (*VerificationConfig, error) {
	return &VerificationConfig{
		Environment:                getEnv("ENVIRONMENT", "development"),
		HTTPPort:                   getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:                getEnv("DATABASE_URL", ""),
		DBPoolSize:                 getEnvInt("DB_POOL_SIZE", 10),
		KafkaBootstrapServers:      getEnvList("KAFKA_BOOTSTRAP_SERVERS", []string{"localhost:9092"}),
		UserVerifiedTopic:          getEnv("USER_VERIFIED_TOPIC", "user.verified"),
		MaxConcurrentVerifications: getEnvInt("MAX_CONCURRENT_VERIFICATIONS", 50),
		VerificationDelaySeconds:   getEnvInt("VERIFICATION_DELAY_SECONDS", 2),
		MaxDocumentSizeMB:          getEnvInt("MAX_DOCUMENT_SIZE_MB", 5),
	}, nil
}

// LoadWallet assembles WalletConfig from the environment. The mnemonic is
// returned as read from config; decryption (when MnemonicEncrypted is set)
// happens once at startup in internal/platform/secrets.
func LoadWallet() (*WalletConfig, error) {
	return &WalletConfig{
		Environment:              getEnv("ENVIRONMENT", "development"),
		HTTPPort:                 getEnvInt("HTTP_PORT", 8081),
		DatabaseURL:              getEnv("DATABASE_URL", ""),
		DBPoolSize:               getEnvInt("DB_POOL_SIZE", 10),
		KafkaBootstrapServers:    getEnvList("KAFKA_BOOTSTRAP_SERVERS", []string{"localhost:9092"}),
		KafkaConsumerGroup:       getEnv("KAFKA_CONSUMER_GROUP", "wallet-service-group"),
		UserVerifiedTopic:        getEnv("USER_VERIFIED_TOPIC", "user.verified"),
		WalletCreatedTopic:       getEnv("WALLET_CREATED_TOPIC", "wallet.created"),
		Mnemonic:                 getEnv("MNEMONIC", ""),
		MnemonicEncrypted:        getEnv("MNEMONIC_ENCRYPTED", ""),
		EncryptionKey:            getEnv("ENCRYPTION_KEY", ""),
		MaxConcurrentGenerations: getEnvInt("MAX_CONCURRENT_GENERATIONS", 20),
		CacheTTLSeconds:          getEnvInt("CACHE_TTL_SECONDS", 600),
		BatchProcessingSize:      getEnvInt("BATCH_PROCESSING_SIZE", 100),
		ConsumerPollTimeoutMS:    getEnvInt("CONSUMER_POLL_TIMEOUT_MS", 5000),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
