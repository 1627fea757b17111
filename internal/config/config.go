package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	Gateway   GatewayConfig
	Interview InterviewConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name    string
	Env     string
	Host    string
	Port    string
	Version string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines webhook authentication parameters.
type AuthConfig struct {
	JWTSecret string
}

// GatewayConfig points at the messaging gateway sidecar.
type GatewayConfig struct {
	BaseURL               string
	Token                 string
	ReviewChannelID       string
	RequestTimeoutSeconds int
}

// InterviewConfig drives the question/answer exchange.
type InterviewConfig struct {
	Questions            []string
	AnswerTimeoutSeconds int
	ReasonTimeoutSeconds int
	SessionBackend       string
	SessionTTLMinutes    int
}

const questionSeparator = "|"

var defaultQuestions = []string{
	"How did you find this community?",
	"What brings you here?",
	"How old are you?",
	"Have you read and agreed to the rules?",
	"Is there anything else you would like us to know?",
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	questions := defaultQuestions
	if raw := os.Getenv("INTERVIEW_QUESTIONS"); raw != "" {
		questions = nil
		for _, q := range strings.Split(raw, questionSeparator) {
			q = strings.TrimSpace(q)
			if q != "" {
				questions = append(questions, q)
			}
		}
		if len(questions) == 0 {
			return nil, fmt.Errorf("INTERVIEW_QUESTIONS contains no questions")
		}
	}

	backend := strings.ToLower(getEnv("SESSION_BACKEND", "memory"))
	if backend != "memory" && backend != "redis" {
		return nil, fmt.Errorf("invalid SESSION_BACKEND %q (want memory or redis)", backend)
	}

	cfg := &Config{
		App: AppConfig{
			Name:    getEnv("APP_NAME", "verification-service"),
			Env:     getEnv("APP_ENV", "development"),
			Host:    getEnv("APP_HOST", "0.0.0.0"),
			Port:    getEnv("APP_PORT", "8080"),
			Version: getEnv("APP_VERSION", "dev"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", "dev-secret"),
		},
		Gateway: GatewayConfig{
			BaseURL:               getEnv("GATEWAY_BASE_URL", "http://127.0.0.1:9090"),
			Token:                 os.Getenv("GATEWAY_TOKEN"),
			ReviewChannelID:       os.Getenv("GATEWAY_REVIEW_CHANNEL_ID"),
			RequestTimeoutSeconds: getEnvAsInt("GATEWAY_REQUEST_TIMEOUT_SECONDS", 15),
		},
		Interview: InterviewConfig{
			Questions:            questions,
			AnswerTimeoutSeconds: getEnvAsInt("INTERVIEW_ANSWER_TIMEOUT_SECONDS", 180),
			ReasonTimeoutSeconds: getEnvAsInt("DECLINE_REASON_TIMEOUT_SECONDS", 300),
			SessionBackend:       backend,
			SessionTTLMinutes:    getEnvAsInt("SESSION_TTL_MINUTES", 30),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the gateway HTTP timeout duration.
func (g GatewayConfig) RequestTimeout() time.Duration {
	if g.RequestTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(g.RequestTimeoutSeconds) * time.Second
}

// AnswerTimeout returns the per-question deadline.
func (i InterviewConfig) AnswerTimeout() time.Duration {
	if i.AnswerTimeoutSeconds <= 0 {
		return 180 * time.Second
	}
	return time.Duration(i.AnswerTimeoutSeconds) * time.Second
}

// ReasonTimeout returns the decline-reason deadline.
func (i InterviewConfig) ReasonTimeout() time.Duration {
	if i.ReasonTimeoutSeconds <= 0 {
		return 300 * time.Second
	}
	return time.Duration(i.ReasonTimeoutSeconds) * time.Second
}

// SessionTTL returns the safety expiry for session locks.
func (i InterviewConfig) SessionTTL() time.Duration {
	if i.SessionTTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(i.SessionTTLMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
