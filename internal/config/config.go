package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port               string
	SheetsEndpoint     string
	SheetsTimeout      time.Duration
	LoadFallback       time.Duration
	SettleDelay        time.Duration
	ToastTTL           time.Duration
	PollInterval       time.Duration
	PhoneCountryCode   string
	PhoneDigits        int
	Location           *time.Location
	DatabaseURL        string
	RateLimitPerMinute int
	RateLimitBurst     int
	OTLPEndpoint       string
	OTLPInsecure       bool
}

// Load reads the environment after applying the optional .env file named by
// ENV_FILE. Variables already set in the environment win over the file.
func Load() Config {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("env file %s not loaded: %v", envFile, err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	countryCode := strings.TrimSpace(os.Getenv("PHONE_COUNTRY_CODE"))
	if countryCode == "" {
		countryCode = "27"
	}

	return Config{
		Port:               port,
		SheetsEndpoint:     strings.TrimSpace(os.Getenv("SHEETS_ENDPOINT")),
		SheetsTimeout:      readDurationSeconds("SHEETS_TIMEOUT_SECONDS", 8),
		LoadFallback:       readDurationSeconds("LOAD_FALLBACK_SECONDS", 7),
		SettleDelay:        readDurationMillis("SETTLE_DELAY_MS", 1500),
		ToastTTL:           readDurationSeconds("TOAST_SECONDS", 5),
		PollInterval:       readDurationSeconds("POLL_INTERVAL_SECONDS", 60),
		PhoneCountryCode:   countryCode,
		PhoneDigits:        readInt("PHONE_DIGITS", 9),
		Location:           readLocation("TIMEZONE", "Africa/Johannesburg"),
		DatabaseURL:        os.Getenv("DB_DSN"),
		RateLimitPerMinute: readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:     readInt("RATE_LIMIT_BURST", 30),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPInsecure:       readBool("OTEL_EXPORTER_OTLP_INSECURE", false),
	}
}

func (c Config) Validate() error {
	if c.SheetsEndpoint == "" {
		return errors.New("SHEETS_ENDPOINT is required")
	}
	return nil
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readDurationMillis(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Millisecond
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readLocation(key, fallback string) *time.Location {
	name := strings.TrimSpace(os.Getenv(key))
	if name == "" {
		name = fallback
	}
	location, err := time.LoadLocation(name)
	if err != nil {
		log.Printf("unknown timezone %q, using UTC: %v", name, err)
		return time.UTC
	}
	return location
}
