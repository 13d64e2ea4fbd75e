// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Environment string `validate:"oneof=development test production"`
	Server      ServerConfig
	Database    DatabaseConfig
	Browser     BrowserConfig
	Gemini      GeminiConfig
	Hazard      HazardConfig
	Pipeline    PipelineConfig
	AWS         AWSConfig
	Storage     StorageConfig
	Log         LogConfig
	Diagnostics DiagnosticsConfig
}

type ServerConfig struct {
	Port         string `validate:"required"`
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
	RateLimit    int `validate:"min=1"` // requests per second per client IP
}

type BrowserConfig struct {
	Headless    bool
	NoSandbox   bool
	WindowSize  string
	Language    string
	MinInterval time.Duration // spacing between navigations
	PageTimeout time.Duration
	BinPath     string
}

type GeminiConfig struct {
	APIKey  string
	Model   string `validate:"required"`
	Timeout time.Duration
}

type HazardConfig struct {
	CSVPath    string `validate:"required"`
	TempDir    string
	MFDSAPIKey string
	MFDSURL    string `validate:"required,url"`
	ServiceID  string
	PageSize   int `validate:"min=1,max=1000"`
	FetchLimit int `validate:"min=0"`
	WindowDays int `validate:"min=1"`
}

type PipelineConfig struct {
	LockTTL         time.Duration
	TopN            int `validate:"min=1,max=100"`
	MatchCandidates int `validate:"min=1,max=20"`
	ArchiveImages   bool
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	CloudFrontURL   string
}

type StorageConfig struct {
	LocalDir string
}

type LogConfig struct {
	Level      string `validate:"oneof=trace debug info warn warning error fatal panic"`
	Format     string `validate:"oneof=text json"`
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type DiagnosticsConfig struct {
	Host    string
	Samples int `validate:"min=1"`
	Timeout time.Duration
	LogDir  string
}

// setting ties a viper key to its environment variable and default.
type setting struct {
	key, env string
	def      interface{}
}

var settings = []setting{
	{"environment", "ENVIRONMENT", "development"},

	{"server.port", "SERVER_PORT", "8080"},
	{"server.host", "SERVER_HOST", "localhost"},
	{"server.read_timeout", "SERVER_READ_TIMEOUT", 15},
	{"server.write_timeout", "SERVER_WRITE_TIMEOUT", 15},
	{"server.idle_timeout", "SERVER_IDLE_TIMEOUT", 60},
	{"server.rate_limit", "SERVER_RATE_LIMIT", 10},

	{"database.driver", "DB_DRIVER", "sqlite"},
	{"database.path", "DB_PATH", "data/products.db"},
	{"database.dsn", "DB_DSN", ""},
	{"database.host", "DB_HOST", "localhost"},
	{"database.port", "DB_PORT", "5432"},
	{"database.user", "DB_USER", "postgres"},
	{"database.password", "DB_PASSWORD", ""},
	{"database.name", "DB_NAME", "pricematch"},
	{"database.ssl_mode", "DB_SSL_MODE", "disable"},
	{"database.max_open_conns", "DB_MAX_OPEN_CONNS", 10},
	{"database.max_idle_conns", "DB_MAX_IDLE_CONNS", 5},
	{"database.max_lifetime", "DB_MAX_LIFETIME", 300},
	{"database.log_level", "DB_LOG_LEVEL", "silent"},

	{"browser.headless", "BROWSER_HEADLESS", false},
	{"browser.no_sandbox", "BROWSER_NO_SANDBOX", true},
	{"browser.window_size", "BROWSER_WINDOW_SIZE", "1920,1080"},
	{"browser.language", "BROWSER_LANGUAGE", "ko-KR"},
	{"browser.min_interval", "BROWSER_MIN_INTERVAL", "2s"},
	{"browser.page_timeout", "BROWSER_PAGE_TIMEOUT", "30s"},
	{"browser.bin_path", "BROWSER_BIN", ""},

	{"gemini.api_key", "GEMINI_API_KEY", ""},
	{"gemini.model", "GEMINI_MODEL", "gemini-2.5-flash"},
	{"gemini.timeout", "GEMINI_TIMEOUT", "60s"},

	{"hazard.csv_path", "HAZARD_CSV", "data/hazard_iherb_matched.csv"},
	{"hazard.temp_dir", "HAZARD_TEMP_DIR", ""},
	{"hazard.mfds_api_key", "MFDS_API_KEY", ""},
	{"hazard.mfds_url", "MFDS_API_URL", "http://openapi.foodsafetykorea.go.kr/api"},
	{"hazard.service_id", "MFDS_SERVICE_ID", "I2715"},
	{"hazard.page_size", "MFDS_PAGE_SIZE", 1000},
	{"hazard.fetch_limit", "MFDS_FETCH_LIMIT", 0},
	{"hazard.window_days", "HAZARD_WINDOW_DAYS", 7},

	{"pipeline.lock_ttl", "PIPELINE_LOCK_TTL", "10m"},
	{"pipeline.top_n", "PIPELINE_TOP_N", 20},
	{"pipeline.match_candidates", "PIPELINE_MATCH_CANDIDATES", 5},
	{"pipeline.archive_images", "PIPELINE_ARCHIVE_IMAGES", false},

	{"aws.region", "AWS_REGION", "ap-northeast-2"},
	{"aws.access_key_id", "AWS_ACCESS_KEY_ID", ""},
	{"aws.secret_access_key", "AWS_SECRET_ACCESS_KEY", ""},
	{"aws.s3_bucket", "AWS_S3_BUCKET", "pricematch-images"},
	{"aws.cloudfront_url", "AWS_CLOUDFRONT_URL", ""},

	{"storage.local_dir", "STORAGE_LOCAL_DIR", "data/images"},

	{"log.level", "LOG_LEVEL", "info"},
	{"log.format", "LOG_FORMAT", "text"},
	{"log.file", "LOG_FILE", ""},
	{"log.max_size_mb", "LOG_MAX_SIZE_MB", 50},
	{"log.max_backups", "LOG_MAX_BACKUPS", 5},
	{"log.max_age_days", "LOG_MAX_AGE_DAYS", 30},
	{"log.compress", "LOG_COMPRESS", true},

	{"diagnostics.host", "DIAG_HOST", "www.coupang.com"},
	{"diagnostics.samples", "DIAG_SAMPLES", 5},
	{"diagnostics.timeout", "DIAG_TIMEOUT", "10s"},
	{"diagnostics.log_dir", "DIAG_LOG_DIR", "logs"},
}

// Load reads .env, an optional settings file and the environment, in
// increasing order of precedence. An empty settingsFile looks for
// settings.yaml in the working directory and ./configs.
func Load(settingsFile string) (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	v := viper.New()
	for _, s := range settings {
		v.SetDefault(s.key, s.def)
		if err := v.BindEnv(s.key, s.env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", s.env, err)
		}
	}

	if settingsFile != "" {
		v.SetConfigFile(settingsFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read settings file %s: %w", settingsFile, err)
		}
	} else {
		v.SetConfigName("settings")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read settings file: %w", err)
			}
		}
	}

	config := fromViper(v)
	return config, config.Validate()
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Environment: strings.ToLower(v.GetString("environment")),
		Server: ServerConfig{
			Port:         v.GetString("server.port"),
			Host:         v.GetString("server.host"),
			ReadTimeout:  v.GetInt("server.read_timeout"),
			WriteTimeout: v.GetInt("server.write_timeout"),
			IdleTimeout:  v.GetInt("server.idle_timeout"),
			RateLimit:    v.GetInt("server.rate_limit"),
		},
		Database: DatabaseConfig{
			Driver:       strings.ToLower(v.GetString("database.driver")),
			Path:         v.GetString("database.path"),
			RawDSN:       v.GetString("database.dsn"),
			Host:         v.GetString("database.host"),
			Port:         v.GetString("database.port"),
			User:         v.GetString("database.user"),
			Password:     v.GetString("database.password"),
			Database:     v.GetString("database.name"),
			SSLMode:      v.GetString("database.ssl_mode"),
			MaxOpenConns: v.GetInt("database.max_open_conns"),
			MaxIdleConns: v.GetInt("database.max_idle_conns"),
			MaxLifetime:  v.GetInt("database.max_lifetime"),
			LogLevel:     v.GetString("database.log_level"),
		},
		Browser: BrowserConfig{
			Headless:    v.GetBool("browser.headless"),
			NoSandbox:   v.GetBool("browser.no_sandbox"),
			WindowSize:  v.GetString("browser.window_size"),
			Language:    v.GetString("browser.language"),
			MinInterval: v.GetDuration("browser.min_interval"),
			PageTimeout: v.GetDuration("browser.page_timeout"),
			BinPath:     v.GetString("browser.bin_path"),
		},
		Gemini: GeminiConfig{
			APIKey:  v.GetString("gemini.api_key"),
			Model:   v.GetString("gemini.model"),
			Timeout: v.GetDuration("gemini.timeout"),
		},
		Hazard: HazardConfig{
			CSVPath:    v.GetString("hazard.csv_path"),
			TempDir:    v.GetString("hazard.temp_dir"),
			MFDSAPIKey: v.GetString("hazard.mfds_api_key"),
			MFDSURL:    v.GetString("hazard.mfds_url"),
			ServiceID:  v.GetString("hazard.service_id"),
			PageSize:   v.GetInt("hazard.page_size"),
			FetchLimit: v.GetInt("hazard.fetch_limit"),
			WindowDays: v.GetInt("hazard.window_days"),
		},
		Pipeline: PipelineConfig{
			LockTTL:         v.GetDuration("pipeline.lock_ttl"),
			TopN:            v.GetInt("pipeline.top_n"),
			MatchCandidates: v.GetInt("pipeline.match_candidates"),
			ArchiveImages:   v.GetBool("pipeline.archive_images"),
		},
		AWS: AWSConfig{
			Region:          v.GetString("aws.region"),
			AccessKeyID:     v.GetString("aws.access_key_id"),
			SecretAccessKey: v.GetString("aws.secret_access_key"),
			S3Bucket:        v.GetString("aws.s3_bucket"),
			CloudFrontURL:   v.GetString("aws.cloudfront_url"),
		},
		Storage: StorageConfig{
			LocalDir: v.GetString("storage.local_dir"),
		},
		Log: LogConfig{
			Level:      strings.ToLower(v.GetString("log.level")),
			Format:     strings.ToLower(v.GetString("log.format")),
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
			Compress:   v.GetBool("log.compress"),
		},
		Diagnostics: DiagnosticsConfig{
			Host:    v.GetString("diagnostics.host"),
			Samples: v.GetInt("diagnostics.samples"),
			Timeout: v.GetDuration("diagnostics.timeout"),
			LogDir:  v.GetString("diagnostics.log_dir"),
		},
	}
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := c.Database.Validate(); err != nil {
		return err
	}

	if c.Pipeline.LockTTL <= 0 {
		return fmt.Errorf("pipeline lock TTL must be positive")
	}

	if c.Browser.MinInterval < 0 {
		return fmt.Errorf("browser min interval must not be negative")
	}

	if c.Database.Driver == "postgres" && c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	return nil
}

// RequireGemini reports whether the LLM client can be built.
func (c *Config) RequireGemini() error {
	if strings.TrimSpace(c.Gemini.APIKey) == "" {
		return ErrMissingGeminiKey
	}
	return nil
}

var ErrMissingGeminiKey = errors.New("GEMINI_API_KEY is not set (environment, .env or settings file)")
