package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	OCR        OCRConfig        `mapstructure:"ocr"`
	Download   DownloadConfig   `mapstructure:"download"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Index      IndexConfig      `mapstructure:"index"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

// DatabaseConfig selects the job store backend. Driver is "sqlite" or "postgres".
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LogLevel        string        `mapstructure:"log_level"`
}

// DSN returns the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
	return c.Path
}

// ExtractionConfig holds pipeline defaults. FrameStride and ConfidenceThreshold apply when a
// start request leaves them unset.
type ExtractionConfig struct {
	FrameStride         int     `mapstructure:"frame_stride"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	MinTextDuration     float64 `mapstructure:"min_text_duration"`
	CropFraction        float64 `mapstructure:"crop_fraction"`
	MaxWidth            int     `mapstructure:"max_width"`
	EventBuffer         int     `mapstructure:"event_buffer"`
	TailSeconds         float64 `mapstructure:"tail_seconds"`
	TailFrames          int64   `mapstructure:"tail_frames"`
}

type OCRConfig struct {
	Backends []OCRBackendConfig `mapstructure:"backends"`
}

// OCRBackendConfig configures one detection backend. Type is "http", "vlm" or "static".
// The first entry is the primary; the rest are fallbacks.
type OCRBackendConfig struct {
	Name              string        `mapstructure:"name"`
	Type              string        `mapstructure:"type"`
	BaseURL           string        `mapstructure:"base_url"`
	Path              string        `mapstructure:"path"`
	Languages         []string      `mapstructure:"languages"`
	Model             string        `mapstructure:"model"`
	APIKey            string        `mapstructure:"api_key"`
	APIKeyEnv         string        `mapstructure:"api_key_env"`
	Timeout           time.Duration `mapstructure:"timeout"`
	DefaultConfidence float64       `mapstructure:"default_confidence"`
}

type DownloadConfig struct {
	WorkDir   string        `mapstructure:"work_dir"`
	YtDlpPath string        `mapstructure:"ytdlp_path"`
	Format    string        `mapstructure:"format"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type StorageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Type      string `mapstructure:"type"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
	Prefix    string `mapstructure:"prefix"`
}

type IndexConfig struct {
	Enabled        bool            `mapstructure:"enabled"`
	Qdrant         QdrantConfig    `mapstructure:"qdrant"`
	Embedding      EmbeddingConfig `mapstructure:"embedding"`
	BatchSize      int             `mapstructure:"batch_size"`
	ScoreThreshold float32         `mapstructure:"score_threshold"`
}

type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
	Collection string `mapstructure:"collection"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("storage.bucket", "STORAGE_BUCKET")
	v.BindEnv("storage.public_url", "STORAGE_PUBLIC_URL")
	v.BindEnv("index.qdrant.host", "QDRANT_HOST")
	v.BindEnv("index.qdrant.port", "QDRANT_PORT")
	v.BindEnv("index.qdrant.api_key", "QDRANT_API_KEY")
	v.BindEnv("index.embedding.api_key", "JINA_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for i := range cfg.OCR.Backends {
		cfg.OCR.Backends[i].ResolveEnvVars()
	}
	cfg.Index.Embedding.ResolveEnvVars()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/textrun.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("extraction.frame_stride", 30)
	v.SetDefault("extraction.confidence_threshold", 0.6)
	v.SetDefault("extraction.min_text_duration", 0.5)
	v.SetDefault("extraction.crop_fraction", 0.3)
	v.SetDefault("extraction.max_width", 1280)
	v.SetDefault("extraction.event_buffer", 500)
	v.SetDefault("extraction.tail_seconds", 2.0)
	v.SetDefault("extraction.tail_frames", 60)

	v.SetDefault("download.work_dir", "./data/downloads")
	v.SetDefault("download.ytdlp_path", "yt-dlp")
	v.SetDefault("download.format", "bestvideo[ext=mp4]")
	v.SetDefault("download.timeout", 30*time.Minute)

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "textrun")
	v.SetDefault("storage.prefix", "exports")

	v.SetDefault("index.enabled", false)
	v.SetDefault("index.qdrant.host", "localhost")
	v.SetDefault("index.qdrant.port", 6334)
	v.SetDefault("index.qdrant.collection", "text_runs")
	v.SetDefault("index.embedding.name", "jina")
	v.SetDefault("index.embedding.provider", "jina")
	v.SetDefault("index.embedding.model", "jina-embeddings-v3")
	v.SetDefault("index.embedding.dimensions", 1024)
	v.SetDefault("index.batch_size", 32)
	v.SetDefault("index.score_threshold", 0.0)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate checks value ranges that would otherwise surface as confusing runtime failures.
func (c *Config) Validate() error {
	if c.Extraction.FrameStride < 1 {
		return fmt.Errorf("extraction.frame_stride must be >= 1, got %d", c.Extraction.FrameStride)
	}
	if c.Extraction.ConfidenceThreshold < 0 || c.Extraction.ConfidenceThreshold > 1 {
		return fmt.Errorf("extraction.confidence_threshold must be in [0, 1], got %v", c.Extraction.ConfidenceThreshold)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres", "":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	for i, b := range c.OCR.Backends {
		switch b.Type {
		case "http", "vlm", "static":
		default:
			return fmt.Errorf("ocr.backends[%d]: unknown type %q", i, b.Type)
		}
	}
	if c.Index.Enabled {
		if err := c.Index.Embedding.Validate(); err != nil {
			return err
		}
	}
	return nil
}
