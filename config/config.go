package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the backend server configuration.
type Config struct {
	ServerPort     int
	Debug          bool
	PublicURL      string
	JWTSecret      string
	SessionSecret  string
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	MaxUploadBytes int64
	LoginRateLimit int
	MigrationsPath string
	Database       DatabaseConfig
	Storage        StorageConfig
	MQ             MQConfig
}

type DatabaseConfig struct {
	// Backend is "postgres" or "memory"; memory keeps nothing across restarts.
	Backend  string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

// StorageConfig selects and configures the object store for file content.
type StorageConfig struct {
	Backend string
	Minio   MinioConfig
	GCS     GCSConfig
	S3      S3Config
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	ProjectID       string
	CredentialsFile string
}

type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PathStyle bool
}

// MQConfig selects the broker file and user events go to. An empty backend
// disables events.
type MQConfig struct {
	Backend  string
	Channel  string
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL             string
	QueueDurable    bool
	QueueAutoDelete bool
	PrefetchCount   int
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Backend:  getEnv("DB_BACKEND", "postgres"),
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "mycloud"),
		Password: getEnv("DB_PASSWORD", "password"),
		DBName:   getEnv("DB_NAME", "mycloud_db"),
		UseSSL:   getEnvBool("DB_USE_SSL", false),
	}

	storageConfig := StorageConfig{
		Backend: getEnv("STORAGE_BACKEND", "minio"),
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "mycloud"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		GCS: GCSConfig{
			Bucket:          getEnv("GCS_BUCKET", ""),
			ProjectID:       getEnv("GCS_PROJECT_ID", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		},
		S3: S3Config{
			Bucket:    getEnv("S3_BUCKET", ""),
			Region:    getEnv("S3_REGION", "us-east-1"),
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
			PathStyle: getEnvBool("S3_PATH_STYLE", false),
		},
	}

	mqConfig := MQConfig{
		Backend: getEnv("MQ_BACKEND", ""),
		Channel: getEnv("MQ_CHANNEL", "mycloud-events"),
		RabbitMQ: RabbitMQConfig{
			URL:             getEnv("RABBITMQ_URL", ""),
			QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
			QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
			PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 10),
		},
		PubSub: PubSubConfig{
			ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
			CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
			SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
		},
	}

	return Config{
		ServerPort:     getEnvInt("SERVER_PORT", 8000),
		Debug:          getEnvBool("DEBUG", false),
		PublicURL:      getEnv("PUBLIC_URL", "http://localhost:8000"),
		JWTSecret:      strings.TrimSpace(getEnv("JWT_SECRET", "")),
		SessionSecret:  strings.TrimSpace(getEnv("SESSION_SECRET", "")),
		AccessTTL:      getEnvDuration("ACCESS_TOKEN_TTL", 24*time.Hour),
		RefreshTTL:     getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),
		LoginRateLimit: getEnvInt("LOGIN_RATE_LIMIT", 10),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "internal/db/migrations"),
		Database:       dbConfig,
		Storage:        storageConfig,
		MQ:             mqConfig,
	}
}

// ClientConfig configures the command line client.
type ClientConfig struct {
	APIURL      string        `yaml:"api_url"`
	AuthMode    string        `yaml:"auth_mode"`
	StatePath   string        `yaml:"state_path"`
	DownloadDir string        `yaml:"download_dir"`
	Timeout     time.Duration `yaml:"timeout"`
	Debug       bool          `yaml:"debug"`
}

// LoadClientConfig reads the client settings from the environment, then
// lets the YAML profile named by MYCLOUD_CONFIG override them.
func LoadClientConfig() (ClientConfig, error) {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	cfg := ClientConfig{
		APIURL:      getEnv("MYCLOUD_API_URL", "http://localhost:8000/api/"),
		AuthMode:    getEnv("MYCLOUD_AUTH_MODE", "bearer"),
		StatePath:   getEnv("MYCLOUD_STATE", defaultStatePath()),
		DownloadDir: getEnv("MYCLOUD_DOWNLOAD_DIR", "."),
		Timeout:     getEnvDuration("MYCLOUD_TIMEOUT", 30*time.Second),
		Debug:       getEnvBool("MYCLOUD_DEBUG", false),
	}

	path := strings.TrimSpace(os.Getenv("MYCLOUD_CONFIG"))
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read client config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse client config: %w", err)
	}
	return cfg, nil
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".mycloud", "state.db")
	}
	return filepath.Join(dir, "mycloud", "state.db")
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		fmt.Sscanf(valueStr, "%d", &value)
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		switch strings.ToLower(strings.TrimSpace(valueStr)) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(strings.TrimSpace(valueStr)); err == nil {
			return d
		}
	}
	return defaultValue
}
