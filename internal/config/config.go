package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port                int               `yaml:"port"`
		APIKeys             map[string]string `yaml:"apiKeys"` // client name -> key; empty disables auth
		AllowPrivateTargets bool              `yaml:"allowPrivateTargets"`
		RateLimit           struct {
			RequestsPerMinute int `yaml:"requestsPerMinute"`
			Burst             int `yaml:"burst"`
		} `yaml:"rateLimit"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // sqlite | mysql | postgres
		DSN      string `yaml:"dsn"`    // sqlite: file path; others: full DSN, overrides the fields below
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Engine struct {
		BaseURL            string        `yaml:"baseURL"`
		APIKey             string        `yaml:"apiKey"`
		SpiderInterval     time.Duration `yaml:"spiderInterval"`
		ActiveScanInterval time.Duration `yaml:"activeScanInterval"`
		RequestTimeout     time.Duration `yaml:"requestTimeout"`
		Launch             struct {
			Enabled       bool   `yaml:"enabled"`
			Image         string `yaml:"image"`
			Port          int    `yaml:"port"`
			ContainerName string `yaml:"containerName"`
		} `yaml:"launch"`
	} `yaml:"engine"`

	Dataset struct {
		SnapshotPath string `yaml:"snapshotPath"`
	} `yaml:"dataset"`

	Training struct {
		Backend         string        `yaml:"backend"` // local | minio
		ArtifactDir     string        `yaml:"artifactDir"`
		MaxFeatures     int           `yaml:"maxFeatures"`
		TestSize        float64       `yaml:"testSize"`
		Seed            uint64        `yaml:"seed"`
		Estimators      int           `yaml:"estimators"`
		LearningRate    float64       `yaml:"learningRate"`
		MaxDepth        int           `yaml:"maxDepth"`
		MinSamplesSplit int           `yaml:"minSamplesSplit"`
		MinSamplesLeaf  int           `yaml:"minSamplesLeaf"`
		LockTTL         time.Duration `yaml:"lockTTL"`
	} `yaml:"training"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
		Prefix     string `yaml:"prefix"`
	} `yaml:"minio"`

	Redis struct {
		Addr     string `yaml:"addr"` // empty: in-process training lock
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	RabbitMQ struct {
		URL     string `yaml:"url"` // empty: API runs scans in-process
		Queue   string `yaml:"queue"`
		Workers int    `yaml:"workers"`
	} `yaml:"rabbitmq"`

	OpenAI struct {
		APIKey string `yaml:"apiKey"` // empty disables triage analysis
		Model  string `yaml:"model"`
	} `yaml:"openai"`

	Logging struct {
		Format string `yaml:"format"` // "json"|"text"
		Level  string `yaml:"level"`  // "info"|"debug"|"warn"|"error"
	} `yaml:"logging"`

	Tracing struct {
		Exporter    string  `yaml:"exporter"` // none | stdout | otlphttp
		Endpoint    string  `yaml:"endpoint"`
		Insecure    bool    `yaml:"insecure"`
		SampleRatio float64 `yaml:"sampleRatio"`
	} `yaml:"tracing"`
}

func Default() Config {
	var c Config
	c.Server.Port = 8080
	c.Server.RateLimit.RequestsPerMinute = 120
	c.Server.RateLimit.Burst = 20

	c.Database.Driver = "sqlite"
	c.Database.DSN = "./scanner.db"

	c.Engine.BaseURL = "http://localhost:8090"
	c.Engine.SpiderInterval = 2 * time.Second
	c.Engine.ActiveScanInterval = 5 * time.Second
	c.Engine.RequestTimeout = 30 * time.Second
	c.Engine.Launch.Image = "owasp/zap2docker-stable"
	c.Engine.Launch.Port = 8090
	c.Engine.Launch.ContainerName = "riskscan-zap"

	c.Dataset.SnapshotPath = "reports/scan_results.json"

	c.Training.Backend = "local"
	c.Training.ArtifactDir = "models"
	c.Training.MaxFeatures = 2000
	c.Training.TestSize = 0.2
	c.Training.Seed = 42
	c.Training.Estimators = 200
	c.Training.LearningRate = 0.1
	c.Training.MaxDepth = 6
	c.Training.MinSamplesSplit = 2
	c.Training.MinSamplesLeaf = 1
	c.Training.LockTTL = 30 * time.Minute

	c.Minio.BucketName = "riskscan-models"
	c.Minio.Prefix = "models/"

	c.RabbitMQ.Queue = "scan_requests"
	c.RabbitMQ.Workers = 2

	c.OpenAI.Model = "gpt-4o-mini"

	c.Logging.Format = "json"
	c.Logging.Level = "info"

	c.Tracing.Exporter = "none"
	c.Tracing.Insecure = true
	c.Tracing.SampleRatio = 1.0
	return c
}

// Load baca file config.yaml di atas Default(), lalu env override.
// File yang tidak ada bukan error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Env overrides (simple, explicit)
func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("RISKSCAN_DB_DRIVER", &c.Database.Driver)
	str("RISKSCAN_DB_DSN", &c.Database.DSN)
	str("RISKSCAN_ENGINE_URL", &c.Engine.BaseURL)
	str("RISKSCAN_ENGINE_API_KEY", &c.Engine.APIKey)
	str("RISKSCAN_SNAPSHOT_PATH", &c.Dataset.SnapshotPath)
	str("RISKSCAN_ARTIFACT_DIR", &c.Training.ArtifactDir)
	str("RISKSCAN_TRAINING_BACKEND", &c.Training.Backend)
	str("RISKSCAN_MINIO_ENDPOINT", &c.Minio.Endpoint)
	str("RISKSCAN_MINIO_ACCESS_KEY", &c.Minio.AccessKey)
	str("RISKSCAN_MINIO_SECRET_KEY", &c.Minio.SecretKey)
	str("RISKSCAN_REDIS_ADDR", &c.Redis.Addr)
	str("RISKSCAN_RABBITMQ_URL", &c.RabbitMQ.URL)
	str("RISKSCAN_OPENAI_API_KEY", &c.OpenAI.APIKey)
	str("RISKSCAN_LOG_FORMAT", &c.Logging.Format)
	str("RISKSCAN_LOG_LEVEL", &c.Logging.Level)
	str("RISKSCAN_OTEL_EXPORTER", &c.Tracing.Exporter)
	str("RISKSCAN_OTEL_ENDPOINT", &c.Tracing.Endpoint)

	if v := os.Getenv("RISKSCAN_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RISKSCAN_PORT: %w", err)
		}
		c.Server.Port = p
	}
	if v := os.Getenv("RISKSCAN_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RISKSCAN_WORKERS: %w", err)
		}
		c.RabbitMQ.Workers = n
	}
	if v := os.Getenv("RISKSCAN_ALLOW_PRIVATE_TARGETS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RISKSCAN_ALLOW_PRIVATE_TARGETS: %w", err)
		}
		c.Server.AllowPrivateTargets = b
	}
	return nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("database.driver: unsupported %q (sqlite, mysql, postgres)", c.Database.Driver)
	}
	switch strings.ToLower(c.Training.Backend) {
	case "local", "minio":
	default:
		return fmt.Errorf("training.backend: unsupported %q (local, minio)", c.Training.Backend)
	}
	if c.Training.TestSize < 0 || c.Training.TestSize >= 1 {
		return fmt.Errorf("training.testSize must be in [0,1), got %v", c.Training.TestSize)
	}
	if c.Engine.SpiderInterval <= 0 || c.Engine.ActiveScanInterval <= 0 {
		return errors.New("engine poll intervals must be positive")
	}
	return nil
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	if c.Database.DSN != "" && c.Database.Host == "" {
		return c.Database.DSN
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// Helper untuk build DSN Postgres
func (c *Config) PostgresDSN() string {
	if c.Database.DSN != "" && c.Database.Host == "" {
		return c.Database.DSN
	}
	ssl := c.Database.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		ssl,
	)
}
