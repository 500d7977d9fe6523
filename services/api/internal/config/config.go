package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPath is read when LEGALMITRA_CONFIG is unset.
	DefaultPath = "config.yaml"
	pathEnv     = "LEGALMITRA_CONFIG"

	defaultSessionTTL     = 30 * 24 * time.Hour
	defaultAITimeout      = 60 * time.Second
	defaultPresignExpiry  = 7 * 24 * time.Hour
	defaultMaxUploadBytes = 25 << 20
	defaultMaxFiles       = 5
	defaultRateLimit      = 20
)

// FileConfig is loaded from YAML and then overridden from the environment.
type FileConfig struct {
	Port     string `yaml:"port" env:"PORT"`
	LogLevel string `yaml:"logLevel" env:"LOG_LEVEL"`

	DatabaseURL string `yaml:"databaseURL" env:"DATABASE_URL"`

	JWTSecret   string        `yaml:"jwtSecret" env:"JWT_SECRET"`
	JWTIssuer   string        `yaml:"jwtIssuer" env:"JWT_ISSUER"`
	JWTAudience string        `yaml:"jwtAudience" env:"JWT_AUDIENCE"`
	SessionTTL  time.Duration `yaml:"sessionTTL" env:"API_SESSION_TTL"`
	RequireAuth bool          `yaml:"requireAuth" env:"API_REQUIRE_AUTH"`

	AIBaseURL string        `yaml:"aiBaseURL" env:"AI_BASE_URL"`
	AITimeout time.Duration `yaml:"aiTimeout" env:"API_AI_TIMEOUT"`

	MinioEndpoint  string        `yaml:"minioEndpoint" env:"MINIO_ENDPOINT"`
	MinioAccessKey string        `yaml:"minioAccessKey" env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string        `yaml:"minioSecretKey" env:"MINIO_SECRET_KEY"`
	MinioBucket    string        `yaml:"minioBucket" env:"MINIO_BUCKET"`
	MinioUseSSL    bool          `yaml:"minioUseSSL" env:"MINIO_USE_SSL"`
	PublicBaseURL  string        `yaml:"publicBaseURL" env:"MINIO_PUBLIC_BASE_URL"`
	PresignExpiry  time.Duration `yaml:"presignExpiry" env:"MINIO_PRESIGN_EXPIRY"`

	RedisAddr                string   `yaml:"redisAddr" env:"REDIS_ADDR"`
	RedisPassword            string   `yaml:"redisPassword" env:"REDIS_PASSWORD"`
	SignupRateLimitPerMinute int      `yaml:"signupRateLimitPerMinute" env:"API_SIGNUP_RATE_LIMIT_PER_MINUTE"`
	LoginRateLimitPerMinute  int      `yaml:"loginRateLimitPerMinute" env:"API_LOGIN_RATE_LIMIT_PER_MINUTE"`
	TrustedProxyCIDRs        []string `yaml:"trustedProxyCidrs" env:"API_TRUSTED_PROXY_CIDRS" envSeparator:","`
	AllowedOrigins           []string `yaml:"allowedOrigins" env:"API_ALLOWED_ORIGINS" envSeparator:","`

	MaxUploadBytes int64 `yaml:"maxUploadBytes" env:"API_MAX_UPLOAD_BYTES"`
	MaxFiles       int   `yaml:"maxFiles" env:"API_MAX_FILES"`

	// AvatarTemplate is a URL with a single %d for the portrait number.
	AvatarTemplate string `yaml:"avatarTemplate" env:"API_AVATAR_TEMPLATE"`
}

// Path returns the config file location.
func Path() string {
	if v := strings.TrimSpace(os.Getenv(pathEnv)); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads .env, the YAML file at path and the environment, in that order
// of increasing precedence. A missing file is tolerated only for the default
// path so that container deployments can rely on the environment alone.
func Load(path string) (FileConfig, error) {
	_ = godotenv.Load()

	cfg := FileConfig{}
	explicit := path != ""
	if path == "" {
		path = Path()
		explicit = path != DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("read env config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.AITimeout == 0 {
		cfg.AITimeout = defaultAITimeout
	}
	if cfg.PresignExpiry == 0 {
		cfg.PresignExpiry = defaultPresignExpiry
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.MaxFiles == 0 {
		cfg.MaxFiles = defaultMaxFiles
	}
	if cfg.SignupRateLimitPerMinute == 0 {
		cfg.SignupRateLimitPerMinute = defaultRateLimit
	}
	if cfg.LoginRateLimitPerMinute == 0 {
		cfg.LoginRateLimitPerMinute = defaultRateLimit
	}
	cfg.AvatarTemplate = strings.TrimSpace(cfg.AvatarTemplate)
	cfg.TrustedProxyCIDRs = trimList(cfg.TrustedProxyCIDRs)
	cfg.AllowedOrigins = trimList(cfg.AllowedOrigins)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
}

func validateConfig(cfg FileConfig) error {
	required := []struct {
		value string
		name  string
		env   string
	}{
		{cfg.Port, "port", "PORT"},
		{cfg.DatabaseURL, "databaseURL", "DATABASE_URL"},
		{cfg.JWTSecret, "jwtSecret", "JWT_SECRET"},
		{cfg.AIBaseURL, "aiBaseURL", "AI_BASE_URL"},
		{cfg.MinioEndpoint, "minioEndpoint", "MINIO_ENDPOINT"},
		{cfg.MinioAccessKey, "minioAccessKey", "MINIO_ACCESS_KEY"},
		{cfg.MinioSecretKey, "minioSecretKey", "MINIO_SECRET_KEY"},
		{cfg.MinioBucket, "minioBucket", "MINIO_BUCKET"},
		{cfg.RedisAddr, "redisAddr", "REDIS_ADDR"},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("config: %s is required (set in config.yaml or %s)", r.name, r.env)
		}
	}
	if cfg.SessionTTL < 0 || cfg.AITimeout < 0 || cfg.PresignExpiry < 0 {
		return errors.New("config: durations must be positive")
	}
	if cfg.MaxUploadBytes < 0 || cfg.MaxFiles < 0 {
		return errors.New("config: upload limits must be >= 0")
	}
	if cfg.SignupRateLimitPerMinute < 0 || cfg.LoginRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if cfg.AvatarTemplate != "" && strings.Count(cfg.AvatarTemplate, "%d") != 1 {
		return errors.New("config: avatarTemplate must contain exactly one %d")
	}
	return nil
}

func trimList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
