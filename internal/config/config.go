package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	GeminiAPIKey string
	DatabaseURL  string
	HTTPPort     string
	LogLevel     string
	JWTSecret    string

	ChatModel   string
	DesignModel string
	ImageModel  string

	ModelTimeoutSeconds int
	ToolTimeoutSeconds  int
	TokenTTLHours       int
	RenderImages        bool

	AllowedOrigins string
	ProductsDir    string

	S3 S3Config
}

// S3Config points image bytes at an object store. Empty Endpoint keeps images inline in the database.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func (c S3Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		DatabaseURL:  getEnv("DATABASE_URL", "jewelry_designer.db"),
		HTTPPort:     getEnv("HTTP_PORT", "8080"),
		LogLevel:     getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:    getEnv("JWT_SECRET", ""),

		ChatModel:   getEnv("CHAT_MODEL", "gemini-2.0-flash"),
		DesignModel: getEnv("DESIGN_MODEL", "gemini-2.5-flash"),
		ImageModel:  getEnv("IMAGE_MODEL", "gemini-2.5-flash-image"),

		ModelTimeoutSeconds: getEnvAsInt("MODEL_TIMEOUT_SECONDS", 60),
		ToolTimeoutSeconds:  getEnvAsInt("TOOL_TIMEOUT_SECONDS", 120),
		TokenTTLHours:       getEnvAsInt("TOKEN_TTL_HOURS", 24*7),
		RenderImages:        getEnvAsBool("RENDER_IMAGES", true),

		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "*"),
		ProductsDir:    getEnv("PRODUCTS_DIR", "data/processed_products"),

		S3: S3Config{
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			Region:    getEnv("S3_REGION", "us-east-1"),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
			Bucket:    getEnv("S3_BUCKET", "jewelry-images"),
			UseSSL:    getEnvAsBool("S3_USE_SSL", false),
		},
	}

	if AppConfig.GeminiAPIKey == "" {
		log.Fatal("GEMINI_API_KEY environment variable is required")
	}

	if AppConfig.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
