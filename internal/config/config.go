// Package config loads the pipeline's configuration from environment
// variables, following the teacher's getEnv/getEnvInt/getEnvBool style
// (configs/config.go) expanded to the full key set spec.md §6 enumerates.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the process-wide configuration, loaded once at startup and
// passed by value/pointer to collaborators. No component mutates it after
// Load returns.
type Config struct {
	// Inbound API gating
	OCRAPIKey         string
	APIKeyHeaderName  string
	Environment       string
	AllowedOrigins    []string

	// Object store (C7)
	S3BucketName string
	OutputPrefix string
	AWSRegion    string
	AWSMaxRetries int

	// Engine (C9)
	EnableReconstruction bool
	OCRIterations        int
	ConfidenceThreshold  float64
	MaxUploadMB          int

	// Vision providers (C6)
	OpenAIAPIKey     string
	GeminiAPIKey     string
	GeminiModel      string
	HuggingFaceAPIKey string
	PerplexityAPIKey string
	MistralAPIKey    string
	MistralModel     string

	// Pattern store (C5)
	SupabaseURL         string
	SupabaseServiceRole string
	UseLocalFallback    bool
	LocalDataPath       string
	CloudWriteDeadlineMS int

	// Redis queue (C11)
	RedisURL  string
	QueueName string

	// Mongo (jobstore / pattern-store cloud backend)
	MongoURI    string
	MongoDBName string

	// Observability (out of core scope, still loaded so collaborators can
	// wire it — never referenced by the Engine itself)
	SentryDSN                            string
	AzureAppInsightsConnectionString     string

	// Active-learning offline job (out of core scope, config passthrough)
	ALCycleSamples     int
	ALNClusters        int
	ReferenceBaselinePath string
	DriftReportPath    string
}

// Load reads configuration from the environment, applying defaults per
// spec.md §6. A .env file is loaded first if present, matching the
// teacher's godotenv.Load() call in configs/config.go.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	cfg := &Config{
		OCRAPIKey:        getEnv("OCR_API_KEY", ""),
		APIKeyHeaderName: getEnv("API_KEY_HEADER_NAME", "X-API-KEY"),
		Environment:      getEnv("ENVIRONMENT", "development"),
		AllowedOrigins:   splitCSV(getEnv("ALLOWED_ORIGINS", "*")),

		S3BucketName:  getEnv("S3_BUCKET_NAME", ""),
		OutputPrefix:  getEnv("OUTPUT_PREFIX", "textract_outputs/"),
		AWSRegion:     getEnv("AWS_REGION", "us-east-1"),
		AWSMaxRetries: maxInt(getEnvInt("AWS_MAX_RETRIES", 3), 1),

		EnableReconstruction: getEnvBool("ENABLE_RECONSTRUCTION", false),
		OCRIterations:        getEnvInt("OCR_ITERATIONS", 3),
		ConfidenceThreshold:  getEnvFloat("CONFIDENCE_THRESHOLD", 0.5),
		MaxUploadMB:          getEnvInt("MAX_UPLOAD_MB", 10),

		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		HuggingFaceAPIKey: getEnv("HUGGING_FACE_API_KEY", ""),
		PerplexityAPIKey:  getEnv("PERPLEXITY_API_KEY", ""),
		MistralAPIKey:     getEnv("MISTRAL_API_KEY", ""),
		MistralModel:      getEnv("MISTRAL_MODEL", "mistral-ocr-latest"),

		SupabaseURL:          getEnv("SUPABASE_URL", ""),
		SupabaseServiceRole:  getEnv("SUPABASE_SERVICE_ROLE", ""),
		UseLocalFallback:     getEnvBool("USE_LOCAL_FALLBACK", true),
		LocalDataPath:        getEnv("LOCAL_DATA_PATH", "data/learning_patterns.json"),
		CloudWriteDeadlineMS: getEnvInt("CLOUD_WRITE_DEADLINE_MS", 2000),

		RedisURL:  getEnv("REDIS_URL", "redis://localhost:6379/0"),
		QueueName: getEnv("QUEUE_NAME", "ocr_tasks"),

		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName: getEnv("MONGO_DB_NAME", "docintel"),

		SentryDSN:                        getEnv("SENTRY_DSN", ""),
		AzureAppInsightsConnectionString: getEnv("AZURE_APPLICATION_INSIGHTS_CONNECTION_STRING", ""),

		ALCycleSamples:        getEnvInt("AL_CYCLE_SAMPLES", 500),
		ALNClusters:           getEnvInt("AL_N_CLUSTERS", 8),
		ReferenceBaselinePath: getEnv("REFERENCE_BASELINE_PATH", ""),
		DriftReportPath:       getEnv("DRIFT_REPORT_PATH", ""),
	}

	if cfg.Environment == "production" {
		for _, origin := range cfg.AllowedOrigins {
			if origin == "*" {
				return nil, &configError{"allowed_origins may not be '*' in production"}
			}
		}
	}

	return cfg, nil
}

type configError struct{ msg string }

func (e *configError) Error() string { return e.msg }

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
