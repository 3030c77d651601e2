package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	Port            string
	CORSAllowOrigin []string
	Env             string

	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	GeminiAPIKey    string
	LLMModel        string
	AnalysisVersion string
	BulletinBaseURL string

	AnalyzeAttempts int
	OpinionAttempts int
	RequestTimeout  time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	_ = godotenv.Load(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	mongoURI := os.Getenv("MONGODB_URI")

	if env == "production" && mongoURI == "" {
		log.Printf("MONGODB_URI is required in production")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		Env:             env,
		MongoURI:        mongoURI,
		MongoDatabase:   getEnv("MONGODB_DATABASE", "boletin_oficial"),
		MongoCollection: getEnv("MONGODB_COLLECTION", "analysis"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		LLMModel:        getEnv("LLM_MODEL", "gemini-2.5-flash"),
		AnalysisVersion: getEnv("ANALYSIS_VERSION", "2.0"),
		BulletinBaseURL: getEnv("BULLETIN_BASE_URL", "https://www.boletinoficial.gob.ar"),
		AnalyzeAttempts: getEnvInt("MAX_RETRY_ATTEMPTS", 3),
		OpinionAttempts: getEnvInt("OPINION_RETRY_ATTEMPTS", 2),
		RequestTimeout:  time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 300)) * time.Second,
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		log.Printf("ignoring invalid %s=%q", key, raw)
		return def
	}
	return parsed
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}
