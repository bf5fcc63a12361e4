// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sources understood by the harvester.
const (
	SourceVendr = "vendr"
	SourceBooks = "books"
)

// Isolation modes of supervised units.
const (
	IsolationGoroutine = "goroutine"
	IsolationProcess   = "process"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Harvest    HarvestConfig    `mapstructure:"harvest"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	DB         DBConfig         `mapstructure:"db"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Output     OutputConfig     `mapstructure:"output"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// HarvestConfig selects what is harvested.
type HarvestConfig struct {
	Source string `mapstructure:"source"`
	// Categories overrides the source's default category list.
	Categories []string `mapstructure:"categories"`
	BaseURL    string   `mapstructure:"base_url"`
}

// PipelineConfig governs the intra-process worker pool.
type PipelineConfig struct {
	Workers              int           `mapstructure:"workers"`
	PullTimeout          time.Duration `mapstructure:"pull_timeout"`
	ResultBuffer         int           `mapstructure:"result_buffer"`
	DiscoveryConcurrency int           `mapstructure:"discovery_concurrency"`
}

// SupervisorConfig governs supervised units.
type SupervisorConfig struct {
	Workers      int           `mapstructure:"workers"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// MaxRestarts caps restarts per worker index; -1 is unbounded.
	MaxRestarts int    `mapstructure:"max_restarts"`
	Isolation   string `mapstructure:"isolation"`
}

// HTTPConfig configures the static HTML fetcher.
type HTTPConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	RespectRobots  bool   `mapstructure:"respect_robots"`
	APIKey         string `mapstructure:"api_key"`
	// RatePerSecond paces requests per host; 0 is unlimited.
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
}

// BrowserConfig configures the headless browser.
type BrowserConfig struct {
	// CDPEndpoint attaches to a remote browser instead of launching one.
	CDPEndpoint   string `mapstructure:"cdp_endpoint"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	UserAgent     string `mapstructure:"user_agent"`
	// Promote retries client-rendered static pages in the browser.
	Promote          bool `mapstructure:"promote"`
	PromoteThreshold int  `mapstructure:"promote_threshold"`
}

// DBConfig controls access to the relational sink. DSN wins over the parts.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Name         string `mapstructure:"name"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	SSLMode      string `mapstructure:"sslmode"`
	Table        string `mapstructure:"table"`
	MaxConns     int32  `mapstructure:"max_conns"`
	EnsureSchema bool   `mapstructure:"ensure_schema"`
}

// PubSubConfig holds metadata for the record fan-out topic.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// OutputConfig selects where the output artifact is written. GCS wins over
// the local directory; with neither the artifact stays in memory.
type OutputConfig struct {
	Path      string `mapstructure:"path"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// ServerConfig controls the status HTTP server; port 0 disables it.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// legacyEnv maps keys to the environment names of earlier deployments.
var legacyEnv = map[string]string{
	"pipeline.workers":     "THREAD_COUNT",
	"supervisor.workers":   "PROCESS_COUNT",
	"browser.cdp_endpoint": "CDP_ENDPOINT",
	"http.api_key":         "API_KEY",
	"db.host":              "DB_HOST",
	"db.port":              "DB_PORT",
	"db.name":              "DB_NAME",
	"db.user":              "DB_USER",
	"db.password":          "DB_PASSWORD",
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		primary := "HARVESTER_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, primary, legacy); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("harvest.source", SourceVendr)
	v.SetDefault("pipeline.workers", 5)
	v.SetDefault("pipeline.pull_timeout", time.Second)
	v.SetDefault("pipeline.result_buffer", 64)
	v.SetDefault("pipeline.discovery_concurrency", 1)
	v.SetDefault("supervisor.workers", 3)
	v.SetDefault("supervisor.poll_interval", time.Second)
	v.SetDefault("supervisor.max_restarts", -1)
	v.SetDefault("supervisor.isolation", IsolationGoroutine)
	v.SetDefault("http.user_agent", "Mozilla/5.0 (compatible; catalog-harvester/0.1)")
	v.SetDefault("http.timeout_seconds", 10)
	v.SetDefault("http.rate_per_second", 0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("browser.nav_timeout_seconds", 30)
	v.SetDefault("browser.promote", false)
	v.SetDefault("browser.promote_threshold", 2048)
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.table", "products")
	v.SetDefault("db.ensure_schema", true)
	v.SetDefault("output.path", "books.json")
	v.SetDefault("output.local_dir", ".")
	v.SetDefault("server.port", 0)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if !slices.Contains([]string{SourceVendr, SourceBooks}, c.Harvest.Source) {
		return fmt.Errorf("harvest.source must be %q or %q", SourceVendr, SourceBooks)
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be > 0")
	}
	if c.Pipeline.PullTimeout <= 0 {
		return fmt.Errorf("pipeline.pull_timeout must be > 0")
	}
	if c.Pipeline.ResultBuffer < 0 {
		return fmt.Errorf("pipeline.result_buffer must be >= 0")
	}
	if c.Pipeline.DiscoveryConcurrency <= 0 {
		return fmt.Errorf("pipeline.discovery_concurrency must be > 0")
	}
	if c.Supervisor.Workers <= 0 {
		return fmt.Errorf("supervisor.workers must be > 0")
	}
	if c.Supervisor.PollInterval <= 0 {
		return fmt.Errorf("supervisor.poll_interval must be > 0")
	}
	if c.Supervisor.MaxRestarts < -1 {
		return fmt.Errorf("supervisor.max_restarts must be >= -1")
	}
	if !slices.Contains([]string{IsolationGoroutine, IsolationProcess}, c.Supervisor.Isolation) {
		return fmt.Errorf("supervisor.isolation must be %q or %q", IsolationGoroutine, IsolationProcess)
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.RatePerSecond < 0 {
		return fmt.Errorf("http.rate_per_second must be >= 0")
	}
	if c.HTTP.Burst < 0 {
		return fmt.Errorf("http.burst must be >= 0")
	}
	if c.Server.Port < 0 {
		return fmt.Errorf("server.port must be >= 0")
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	return nil
}

// DSN returns db.dsn, or a postgres URL composed from the parts. It is empty
// when no database is configured.
func (c Config) DSN() string {
	if c.DB.DSN != "" {
		return c.DB.DSN
	}
	if c.DB.Host == "" {
		return ""
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.DB.Host, strconv.Itoa(c.DB.Port)),
		Path:   "/" + c.DB.Name,
	}
	if c.DB.User != "" {
		if c.DB.Password != "" {
			u.User = url.UserPassword(c.DB.User, c.DB.Password)
		} else {
			u.User = url.User(c.DB.User)
		}
	}
	if c.DB.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.DB.SSLMode}}.Encode()
	}
	return u.String()
}

// HTTPTimeout returns the fetch timeout as a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// NavTimeout returns the browser navigation timeout as a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSec) * time.Second
}
