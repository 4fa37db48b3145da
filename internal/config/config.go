package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Environment string `toml:"-"`

	Host string `toml:"host"`
	Port int    `toml:"port"`

	// logging
	LogLevel      string `toml:"log_level"`
	LogsPath      string `toml:"logs_path"`
	LogToStdout   bool   `toml:"log_to_stdout"`
	LogFormatJSON bool   `toml:"log_format_json"`
	SentryEnabled bool   `toml:"sentry_enabled"`

	// metrics
	PrometheusMetricsHost string `toml:"prometheus_metrics_host"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port"`

	// storage
	RedisHost      string `toml:"redis_host"`
	RedisPort      string `toml:"redis_port"`
	PostgresHost   string `toml:"postgres_host"`
	PostgresPort   string `toml:"postgres_port"`
	PostgresDBName string `toml:"postgres_db_name"`

	// auth
	SessionTTLHours             int `toml:"session_ttl_hours"`
	LoginRateLimitAllowedPerMin int `toml:"login_rate_limit_allowed_per_min"`

	// remote analysis services
	FaceServiceURL            string `toml:"face_service_url"`
	AnalysisServiceURL        string `toml:"analysis_service_url"`
	SkipNgrokBrowserWarning   bool   `toml:"skip_ngrok_browser_warning"`
	VerificationTimeoutSec    int    `toml:"verification_timeout_sec"`
	SubmissionTimeoutSec      int    `toml:"submission_timeout_sec"`
	SubmitPolicy              string `toml:"submit_policy"`
	FlowTTLMinutes            int    `toml:"flow_ttl_minutes"`
	ResultsCacheSizeMegabytes int    `toml:"results_cache_size_mb"`

	// capture device
	MediaDir          string `toml:"media_dir"`
	FFmpegPath        string `toml:"ffmpeg_path"`
	FFmpegInputFormat string `toml:"ffmpeg_input_format"`
	FrontCameraInput  string `toml:"front_camera_input"`
	BackCameraInput   string `toml:"back_camera_input"`
	AudioInput        string `toml:"audio_input"`
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	var cfg *Config
	switch strings.ToLower(env) {
	case "dev", "development":
		cfg = t.Development
	case "prod", "production":
		cfg = t.Production
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
	if cfg == nil {
		return nil, fmt.Errorf("config section for env [%s] missing", env)
	}
	cfg.Environment = strings.ToLower(env)
	return cfg, nil
}

// Load reads the TOML file at path and returns the section for env,
// with defaults applied to every unset value.
func Load(env, path string) (*Config, error) {
	tomlBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(env, string(tomlBytes))
}

func Parse(env, tomlData string) (*Config, error) {
	var t Toml
	if _, err := toml.Decode(tomlData, &t); err != nil {
		return nil, fmt.Errorf("decode toml: %w", err)
	}

	cfg, err := t.Get(env)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 9000
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.PrometheusMetricsHost == "" {
		c.PrometheusMetricsHost = "localhost"
	}
	if c.PrometheusMetricsPort == "" {
		c.PrometheusMetricsPort = "2112"
	}
	if c.SessionTTLHours == 0 {
		c.SessionTTLHours = 24 * 7
	}
	if c.LoginRateLimitAllowedPerMin == 0 {
		c.LoginRateLimitAllowedPerMin = 15
	}
	if c.VerificationTimeoutSec == 0 {
		c.VerificationTimeoutSec = 60
	}
	if c.SubmissionTimeoutSec == 0 {
		c.SubmissionTimeoutSec = 180
	}
	if c.SubmitPolicy == "" {
		c.SubmitPolicy = "auto"
	}
	if c.FlowTTLMinutes == 0 {
		c.FlowTTLMinutes = 30
	}
	if c.ResultsCacheSizeMegabytes == 0 {
		c.ResultsCacheSizeMegabytes = 10
	}
	if c.MediaDir == "" {
		c.MediaDir = os.TempDir()
	}
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.FFmpegInputFormat == "" {
		c.FFmpegInputFormat = "v4l2"
	}
}

func (c *Config) Validate() error {
	if c.FaceServiceURL == "" {
		return errors.New("face_service_url not set")
	}
	if c.AnalysisServiceURL == "" {
		return errors.New("analysis_service_url not set")
	}
	switch c.SubmitPolicy {
	case "auto", "manual":
	default:
		return fmt.Errorf("invalid submit_policy [%s], use auto or manual", c.SubmitPolicy)
	}
	return nil
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

func (c *Config) VerificationTimeout() time.Duration {
	return time.Duration(c.VerificationTimeoutSec) * time.Second
}

func (c *Config) SubmissionTimeout() time.Duration {
	return time.Duration(c.SubmissionTimeoutSec) * time.Second
}

func (c *Config) FlowTTL() time.Duration {
	return time.Duration(c.FlowTTLMinutes) * time.Minute
}
