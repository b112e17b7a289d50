package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Config holds all server configuration
type Config struct {
	Port            int
	RedisURL        string
	RedisPassword   string
	MaxSessions     int
	SessionTimeout  time.Duration
	AllowedOrigins  []string
	KeepAlivePeriod time.Duration
	MaxBufferSize   int // Maximum pending microphone samples per session

	GeminiAPIKey string
	GeminiModel  string
	GeminiVoice  string

	SGPBaseURL      string
	SGPURAURL       string
	SGPRadiusURL    string
	SGPApp          string
	SGPToken        string
	DeezerBaseURL   string
	HTTPTimeout     time.Duration
	InvoiceCacheTTL time.Duration

	Timezone string
	Location *time.Location // Zone the greeting is computed in

	ConnectRate  float64 // WebSocket connects per second per IP
	ConnectBurst int

	LogLevel  string
	LogFormat string // "json" or "console"
}

// LoadConfig loads configuration from environment variables with defaults
func LoadConfig() (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	config := &Config{
		Port:            8080,
		RedisURL:        "localhost:6379",
		RedisPassword:   "",
		MaxSessions:     100,
		SessionTimeout:  30 * time.Minute,
		AllowedOrigins:  []string{"*"},
		KeepAlivePeriod: 30 * time.Second,
		MaxBufferSize:   16000 * 30, // 30s of 16kHz audio
		HTTPTimeout:     15 * time.Second,
		InvoiceCacheTTL: 24 * time.Hour,
		Timezone:        "America/Sao_Paulo",
		ConnectRate:     1,
		ConnectBurst:    5,
		LogLevel:        "info",
		LogFormat:       "json",
	}

	// Required: GEMINI_API_KEY
	config.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	if config.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	// Optional: PORT
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		config.Port = p
	}

	// Optional: REDIS_URL
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		config.RedisURL = redisURL
	}

	// Optional: REDIS_PASSWORD
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		config.RedisPassword = redisPassword
	}

	// Optional: MAX_SESSIONS
	if maxSessions := os.Getenv("MAX_SESSIONS"); maxSessions != "" {
		m, err := strconv.Atoi(maxSessions)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_SESSIONS: %w", err)
		}
		config.MaxSessions = m
	}

	// Optional: SESSION_TIMEOUT (in minutes)
	if timeout := os.Getenv("SESSION_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid SESSION_TIMEOUT: %w", err)
		}
		config.SessionTimeout = time.Duration(t) * time.Minute
	}

	// Optional: ALLOWED_ORIGINS (comma-separated)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = splitList(origins)
	}

	// Optional: KEEPALIVE_PERIOD (in seconds)
	if keepalive := os.Getenv("KEEPALIVE_PERIOD"); keepalive != "" {
		k, err := strconv.Atoi(keepalive)
		if err != nil {
			return nil, fmt.Errorf("invalid KEEPALIVE_PERIOD: %w", err)
		}
		config.KeepAlivePeriod = time.Duration(k) * time.Second
	}

	// Optional: MAX_BUFFER_SIZE (in samples)
	if bufferSize := os.Getenv("MAX_BUFFER_SIZE"); bufferSize != "" {
		b, err := strconv.Atoi(bufferSize)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_BUFFER_SIZE: %w", err)
		}
		config.MaxBufferSize = b
	}

	// Optional: GEMINI_MODEL, GEMINI_VOICE
	config.GeminiModel = os.Getenv("GEMINI_MODEL")
	config.GeminiVoice = os.Getenv("GEMINI_VOICE")

	// Optional: provider API endpoints and app token
	config.SGPBaseURL = os.Getenv("SGP_BASE_URL")
	config.SGPURAURL = os.Getenv("SGP_URA_URL")
	config.SGPRadiusURL = os.Getenv("SGP_RADIUS_URL")
	config.SGPApp = os.Getenv("SGP_APP")
	config.SGPToken = os.Getenv("SGP_TOKEN")
	config.DeezerBaseURL = os.Getenv("DEEZER_BASE_URL")

	// Optional: HTTP_TIMEOUT (in seconds)
	if httpTimeout := os.Getenv("HTTP_TIMEOUT"); httpTimeout != "" {
		t, err := strconv.Atoi(httpTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
		}
		config.HTTPTimeout = time.Duration(t) * time.Second
	}

	// Optional: INVOICE_CACHE_TTL (in hours)
	if ttl := os.Getenv("INVOICE_CACHE_TTL"); ttl != "" {
		h, err := strconv.Atoi(ttl)
		if err != nil {
			return nil, fmt.Errorf("invalid INVOICE_CACHE_TTL: %w", err)
		}
		config.InvoiceCacheTTL = time.Duration(h) * time.Hour
	}

	// Optional: TIMEZONE (IANA name)
	if tz := os.Getenv("TIMEZONE"); tz != "" {
		config.Timezone = tz
	}
	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	config.Location = loc

	// Optional: CONNECT_RATE (per second), CONNECT_BURST
	if rate := os.Getenv("CONNECT_RATE"); rate != "" {
		r, err := strconv.ParseFloat(rate, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid CONNECT_RATE: %w", err)
		}
		config.ConnectRate = r
	}
	if burst := os.Getenv("CONNECT_BURST"); burst != "" {
		b, err := strconv.Atoi(burst)
		if err != nil {
			return nil, fmt.Errorf("invalid CONNECT_BURST: %w", err)
		}
		config.ConnectBurst = b
	}

	// Optional: LOG_LEVEL, LOG_FORMAT
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.LogLevel = strings.ToLower(level)
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		switch format {
		case "json", "console":
			config.LogFormat = format
		default:
			return nil, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'console'")
		}
	}

	return config, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
