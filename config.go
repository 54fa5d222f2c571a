package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/joho/godotenv"

	"krishismart/pkg/advisor"
)

const devJWTSecret = "dev-insecure-secret-change"

// Config is read from the environment, after ./.env has filled in anything unset.
type Config struct {
	Port          string
	DSN           string
	AutoMigrate   bool
	JWTSecret     []byte
	UploadBase    string
	PublicBaseURL string
	Advisor       advisor.Config
	LogLevel      string

	// QueryStaleTime bounds how long cached reads may miss writes made by
	// other processes. QueryIdleTTL drops cache entries nobody reads.
	QueryStaleTime time.Duration
	QueryIdleTTL   time.Duration

	// InboxDir, when set, makes serve analyze photos dropped there for the
	// InboxEmail account.
	InboxDir     string
	InboxEmail   string
	InboxWorkers int
}

func loadConfig() Config {
	// a missing .env is fine; variables already set are never overridden
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("could not read .env")
	}
	cfg := Config{
		Port:          getEnv("PORT", "8081"),
		DSN:           getEnv("DB_DSN", "sqlite:krishismart.db"),
		AutoMigrate:   getBool("DB_AUTO_MIGRATE", true),
		UploadBase:    uploadBaseDir(),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		Advisor: advisor.Config{
			InferenceEndpoint: os.Getenv("INFERENCE_ENDPOINT"),
			InferenceAPIKey:   os.Getenv("INFERENCE_API_KEY"),
			AnalysisDelay:     getDuration("ANALYSIS_DELAY", advisor.DefaultAnalysisDelay),
			RecommendDelay:    getDuration("RECOMMEND_DELAY", advisor.DefaultRecommendDelay),
		},
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		QueryStaleTime: getDuration("QUERY_STALE_TIME", 30*time.Second),
		QueryIdleTTL:   getDuration("QUERY_IDLE_TTL", 5*time.Minute),
		InboxDir:       os.Getenv("INBOX_DIR"),
		InboxEmail:     os.Getenv("INBOX_EMAIL"),
		InboxWorkers:   getInt("INBOX_WORKERS", 0),
	}
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = "http://localhost:" + cfg.Port + "/public"
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Warn("JWT_SECRET not set, using development secret")
		secret = devJWTSecret
	}
	cfg.JWTSecret = []byte(secret)
	return cfg
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// getBool accepts the strconv.ParseBool forms; anything else keeps def.
func getBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.WithField(key, v).Warnf("invalid boolean, using default %t", def)
		return def
	}
	return b
}

func getInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.WithField(key, v).Warn("invalid integer, using default")
		return def
	}
	return n
}

// getDuration accepts Go durations ("2s", "1500ms") or plain milliseconds.
func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	log.WithField(key, v).Warn("invalid duration, using default")
	return def
}

// uploadBaseDir returns the base directory for local uploads (configurable via UPLOAD_BASE env)
func uploadBaseDir() string {
	return getEnv("UPLOAD_BASE", "uploads")
}
