// Package config provides configuration management for the studio agent.
// Values come from built-in defaults, an optional YAML file, an optional .env
// file and the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// Default values
	DefaultPort             = 8790
	DefaultLogLevel         = "info"
	DefaultDataDir          = ".framecraft"
	DefaultGatewayTimeout   = 120 // seconds
	DefaultOpenAIModel      = "gpt-4.1-mini"
	DefaultConfigFilename   = "studio.yaml"
	DefaultEnvFile          = ".env"
	DefaultAnalysisProvider = ProviderGateway

	// Environment variable names
	EnvPort             = "FRAMECRAFT_PORT"
	EnvLogLevel         = "FRAMECRAFT_LOG_LEVEL"
	EnvDataDir          = "FRAMECRAFT_DATA_DIR"
	EnvConfigFile       = "FRAMECRAFT_CONFIG"
	EnvHeadless         = "FRAMECRAFT_HEADLESS"
	EnvGatewayMode      = "FRAMECRAFT_GATEWAY_MODE"
	EnvGatewayURL       = "FRAMECRAFT_GATEWAY_URL"
	EnvGatewayKey       = "FRAMECRAFT_GATEWAY_KEY"
	EnvGatewayTimeout   = "FRAMECRAFT_GATEWAY_TIMEOUT"
	EnvAnalysisProvider = "FRAMECRAFT_ANALYSIS_PROVIDER"
	EnvOpenAIKey        = "FRAMECRAFT_OPENAI_API_KEY"
	EnvOpenAIBaseURL    = "FRAMECRAFT_OPENAI_BASE_URL"
	EnvOpenAIModel      = "FRAMECRAFT_OPENAI_MODEL"
	EnvPostgresDSN      = "FRAMECRAFT_POSTGRES_DSN"
	EnvAllowedOrigins   = "FRAMECRAFT_ALLOWED_ORIGINS"

	// Database filename
	DBFilename = "studio.db"

	GatewayHTTP = "http"
	GatewayStub = "stub"

	ProviderGateway = "gateway"
	ProviderOpenAI  = "openai"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	Headless() bool
	GatewayMode() string
	GatewayURL() string
	GatewayKey() string
	GatewayTimeout() time.Duration
	AnalysisProvider() string
	OpenAIKey() string
	OpenAIBaseURL() string
	OpenAIModel() string
	PostgresDSN() string
	AllowedOrigins() []string
}

// fileConfig is the YAML file layout. Unset fields keep their defaults.
type fileConfig struct {
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	Headless *bool  `yaml:"headless"`
	Gateway  struct {
		Mode    string `yaml:"mode"`
		URL     string `yaml:"url"`
		Key     string `yaml:"key"`
		Timeout int    `yaml:"timeout_seconds"`
	} `yaml:"gateway"`
	Analysis struct {
		Provider string `yaml:"provider"`
		OpenAI   struct {
			APIKey  string `yaml:"api_key"`
			BaseURL string `yaml:"base_url"`
			Model   string `yaml:"model"`
		} `yaml:"openai"`
	} `yaml:"analysis"`
	PostgresDSN    string   `yaml:"postgres_dsn"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// EnvConfig holds the resolved configuration
type EnvConfig struct {
	port     int
	logLevel string
	dataDir  string
	headless bool

	gatewayMode    string
	gatewayURL     string
	gatewayKey     string
	gatewayTimeout time.Duration

	analysisProvider string
	openAIKey        string
	openAIBaseURL    string
	openAIModel      string

	postgresDSN    string
	allowedOrigins []string
}

// New loads configuration using .env in the working directory.
func New() (*EnvConfig, error) {
	return Load(DefaultEnvFile)
}

// Load resolves configuration with envFile as the .env source. A missing
// .env or YAML file is not an error.
func Load(envFile string) (*EnvConfig, error) {
	dotenv := map[string]string{}
	if envFile != "" {
		vals, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			dotenv = vals
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("read %s: %w", envFile, err)
		}
	}
	lookup := func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return dotenv[key]
	}

	cfg := &EnvConfig{
		port:             DefaultPort,
		logLevel:         DefaultLogLevel,
		dataDir:          defaultDataDir(),
		gatewayTimeout:   DefaultGatewayTimeout * time.Second,
		analysisProvider: DefaultAnalysisProvider,
		openAIModel:      DefaultOpenAIModel,
	}
	if dd := lookup(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	path := lookup(EnvConfigFile)
	if path == "" {
		path = filepath.Join(cfg.dataDir, DefaultConfigFilename)
	}
	if err := cfg.applyFile(path); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *EnvConfig) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if fc.Port != 0 {
		c.port = fc.Port
	}
	if fc.LogLevel != "" {
		c.logLevel = fc.LogLevel
	}
	if fc.Headless != nil {
		c.headless = *fc.Headless
	}
	if fc.Gateway.Mode != "" {
		c.gatewayMode = fc.Gateway.Mode
	}
	if fc.Gateway.URL != "" {
		c.gatewayURL = fc.Gateway.URL
	}
	if fc.Gateway.Key != "" {
		c.gatewayKey = fc.Gateway.Key
	}
	if fc.Gateway.Timeout > 0 {
		c.gatewayTimeout = time.Duration(fc.Gateway.Timeout) * time.Second
	}
	if fc.Analysis.Provider != "" {
		c.analysisProvider = fc.Analysis.Provider
	}
	if fc.Analysis.OpenAI.APIKey != "" {
		c.openAIKey = fc.Analysis.OpenAI.APIKey
	}
	if fc.Analysis.OpenAI.BaseURL != "" {
		c.openAIBaseURL = fc.Analysis.OpenAI.BaseURL
	}
	if fc.Analysis.OpenAI.Model != "" {
		c.openAIModel = fc.Analysis.OpenAI.Model
	}
	if fc.PostgresDSN != "" {
		c.postgresDSN = fc.PostgresDSN
	}
	if len(fc.AllowedOrigins) > 0 {
		c.allowedOrigins = fc.AllowedOrigins
	}
	return nil
}

func (c *EnvConfig) applyEnv(lookup func(string) string) error {
	// Override port from environment
	if p := lookup(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		c.port = port
	}
	if ll := lookup(EnvLogLevel); ll != "" {
		c.logLevel = ll
	}
	if h := lookup(EnvHeadless); h != "" {
		b, err := strconv.ParseBool(h)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		c.headless = b
	}
	if m := lookup(EnvGatewayMode); m != "" {
		c.gatewayMode = strings.ToLower(m)
	}
	if u := lookup(EnvGatewayURL); u != "" {
		c.gatewayURL = u
	}
	if k := lookup(EnvGatewayKey); k != "" {
		c.gatewayKey = k
	}
	if s := lookup(EnvGatewayTimeout); s != "" {
		secs, err := strconv.Atoi(s)
		if err != nil || secs <= 0 {
			return fmt.Errorf("invalid %s: want a positive number of seconds", EnvGatewayTimeout)
		}
		c.gatewayTimeout = time.Duration(secs) * time.Second
	}
	if p := lookup(EnvAnalysisProvider); p != "" {
		c.analysisProvider = strings.ToLower(p)
	}
	if k := lookup(EnvOpenAIKey); k != "" {
		c.openAIKey = k
	}
	if u := lookup(EnvOpenAIBaseURL); u != "" {
		c.openAIBaseURL = u
	}
	if m := lookup(EnvOpenAIModel); m != "" {
		c.openAIModel = m
	}
	if dsn := lookup(EnvPostgresDSN); dsn != "" {
		c.postgresDSN = dsn
	}
	if o := lookup(EnvAllowedOrigins); o != "" {
		c.allowedOrigins = splitList(o)
	}
	return nil
}

func (c *EnvConfig) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port %d: port must be between 1 and 65535", c.port)
	}
	if c.gatewayMode == "" {
		c.gatewayMode = GatewayStub
		if c.gatewayURL != "" {
			c.gatewayMode = GatewayHTTP
		}
	}
	switch c.gatewayMode {
	case GatewayStub:
	case GatewayHTTP:
		if c.gatewayURL == "" {
			return fmt.Errorf("gateway mode %q requires %s", GatewayHTTP, EnvGatewayURL)
		}
	default:
		return fmt.Errorf("invalid gateway mode %q: want %s or %s", c.gatewayMode, GatewayHTTP, GatewayStub)
	}
	switch c.analysisProvider {
	case ProviderGateway:
	case ProviderOpenAI:
		if c.openAIKey == "" {
			return fmt.Errorf("analysis provider %q requires %s", ProviderOpenAI, EnvOpenAIKey)
		}
	default:
		return fmt.Errorf("invalid analysis provider %q: want %s or %s", c.analysisProvider, ProviderGateway, ProviderOpenAI)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

func (c *EnvConfig) Headless() bool {
	return c.headless
}

// GatewayMode is http or stub.
func (c *EnvConfig) GatewayMode() string {
	return c.gatewayMode
}

func (c *EnvConfig) GatewayURL() string {
	return c.gatewayURL
}

func (c *EnvConfig) GatewayKey() string {
	return c.gatewayKey
}

func (c *EnvConfig) GatewayTimeout() time.Duration {
	return c.gatewayTimeout
}

// AnalysisProvider is gateway or openai.
func (c *EnvConfig) AnalysisProvider() string {
	return c.analysisProvider
}

func (c *EnvConfig) OpenAIKey() string {
	return c.openAIKey
}

func (c *EnvConfig) OpenAIBaseURL() string {
	return c.openAIBaseURL
}

func (c *EnvConfig) OpenAIModel() string {
	return c.openAIModel
}

// PostgresDSN switches project storage to Postgres when set.
func (c *EnvConfig) PostgresDSN() string {
	return c.postgresDSN
}

// AllowedOrigins are extra CORS origins; localhost is always allowed.
func (c *EnvConfig) AllowedOrigins() []string {
	return append([]string(nil), c.allowedOrigins...)
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
