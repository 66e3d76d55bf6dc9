package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/joho/godotenv"
)

// DefaultEscrowAddress is the escrow account used when ESCROW_ADDRESS is unset.
const DefaultEscrowAddress = "0x000000000000000000000000000000000000E5C0"

// Config holds all runtime configuration for the token exchange.
type Config struct {
	Port            int
	LogLevel        string
	WebhookTimeout  time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	DataDir       string // empty keeps the event journal in memory
	EscrowAddress common.Address
	CORSOrigins   []string
	KafkaBrokers  []string // empty disables the kafka publisher
	KafkaTopic    string

	DevLedger        bool
	DevTokens        []string
	DevAccounts      []common.Address
	DevNativeBalance uint256.Int
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
// Variables from the dotenv file named by ENV_FILE (default ".env") are
// loaded first without overriding the real environment; a missing file
// is ignored.
func Load() (*Config, error) {
	envFile := getStr("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("invalid ENV_FILE %q: %w", envFile, err)
	}

	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	webhookTimeout, err := getDuration("WEBHOOK_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WEBHOOK_TIMEOUT: %w", err)
	}

	readTimeout, err := getDuration("READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}

	writeTimeout, err := getDuration("WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}

	idleTimeout, err := getDuration("IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	escrow, err := getAddress("ESCROW_ADDRESS", DefaultEscrowAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid ESCROW_ADDRESS: %w", err)
	}

	devLedger, err := getBool("DEV_LEDGER", true)
	if err != nil {
		return nil, fmt.Errorf("invalid DEV_LEDGER: %w", err)
	}

	devAccounts := make([]common.Address, 0)
	for _, s := range getList("DEV_ACCOUNTS", nil) {
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("invalid DEV_ACCOUNTS: %q is not a hex address", s)
		}
		devAccounts = append(devAccounts, common.HexToAddress(s))
	}

	devBalance, err := uint256.FromDecimal(getStr("DEV_NATIVE_BALANCE", "1000000000000000000000"))
	if err != nil {
		return nil, fmt.Errorf("invalid DEV_NATIVE_BALANCE: %w", err)
	}

	return &Config{
		Port:             port,
		LogLevel:         logLevel,
		WebhookTimeout:   webhookTimeout,
		ReadTimeout:      readTimeout,
		WriteTimeout:     writeTimeout,
		IdleTimeout:      idleTimeout,
		ShutdownTimeout:  shutdownTimeout,
		DataDir:          os.Getenv("DATA_DIR"),
		EscrowAddress:    escrow,
		CORSOrigins:      getList("CORS_ORIGINS", []string{"*"}),
		KafkaBrokers:     getList("KAFKA_BROKERS", nil),
		KafkaTopic:       getStr("KAFKA_TOPIC", "exchange.events"),
		DevLedger:        devLedger,
		DevTokens:        getList("DEV_TOKENS", []string{"FIXED"}),
		DevAccounts:      devAccounts,
		DevNativeBalance: *devBalance,
	}, nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseBool(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

func getAddress(key, defaultVal string) (common.Address, error) {
	v := getStr(key, defaultVal)
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("%q is not a hex address", v)
	}
	return common.HexToAddress(v), nil
}

// getList splits a comma-separated value, dropping empty items.
func getList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		if defaultVal == nil {
			return []string{}
		}
		return defaultVal
	}
	out := make([]string, 0)
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
