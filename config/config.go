package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the dugout agent system
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Sandbox   SandboxConfig   `mapstructure:"sandbox"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Media     MediaConfig     `mapstructure:"media"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Lookup    LookupConfig    `mapstructure:"lookup"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug           bool   `mapstructure:"debug"`
	LogLevel        string `mapstructure:"log_level"`
	DefaultLanguage string `mapstructure:"default_language"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LLMConfig contains the completion provider configuration
type LLMConfig struct {
	Provider string              `mapstructure:"provider"`
	APIKey   string              `mapstructure:"api_key"`
	BaseURL  string              `mapstructure:"base_url"`
	Timeout  time.Duration       `mapstructure:"timeout"`
	Models   map[string]LLMModel `mapstructure:"models"`

	// Hierarchy orders model keys cheapest first. The adapter walks it
	// top to bottom when a model keeps rate limiting.
	Hierarchy []string `mapstructure:"hierarchy"`

	RateLimitRetries int           `mapstructure:"rate_limit_retries"`
	RetryBackoff     time.Duration `mapstructure:"retry_backoff"`
	RetryBackoffCap  time.Duration `mapstructure:"retry_backoff_cap"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name            string  `mapstructure:"name"`
	APIName         string  `mapstructure:"api_name"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	CostPer1K       float64 `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64 `mapstructure:"cost_per_1k_output"`
}

func (l LLMConfig) Validate() error {
	if len(l.Hierarchy) == 0 {
		return fmt.Errorf("llm.hierarchy must list at least one model")
	}
	for _, key := range l.Hierarchy {
		if _, ok := l.Models[key]; !ok {
			return fmt.Errorf("llm.hierarchy references unknown model %q", key)
		}
	}
	return nil
}

// Normalize applies retry defaults mirroring the upstream completion service.
func (l LLMConfig) Normalize() LLMConfig {
	if l.RateLimitRetries <= 0 {
		l.RateLimitRetries = 4
	}
	if l.RetryBackoff <= 0 {
		l.RetryBackoff = 4 * time.Second
	}
	if l.RetryBackoffCap <= 0 {
		l.RetryBackoffCap = 10 * time.Second
	}
	if l.Timeout <= 0 {
		l.Timeout = 60 * time.Second
	}
	return l
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	MetricsPort  int    `mapstructure:"metrics_port"`
	LogFile      string `mapstructure:"log_file"`
	CostTracking bool   `mapstructure:"cost_tracking"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && t.MetricsPort < 0 {
		return fmt.Errorf("telemetry.metrics_port must be >= 0 when telemetry is enabled")
	}
	return nil
}

// SandboxConfig declares execution policy defaults for generated code.
type SandboxConfig struct {
	Provider       string        `mapstructure:"provider"`
	PolicyFile     string        `mapstructure:"policy_file"`
	PythonBinary   string        `mapstructure:"python_binary"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	DefaultCPU     float64       `mapstructure:"default_cpu"`
	DefaultMemory  string        `mapstructure:"default_memory"`
}

func (s SandboxConfig) Validate() error {
	if strings.TrimSpace(s.PythonBinary) == "" {
		return fmt.Errorf("sandbox.python_binary is required")
	}
	if s.DefaultCPU < 0 {
		return fmt.Errorf("sandbox.default_cpu cannot be negative")
	}
	return nil
}

// Normalize applies sandbox defaults when values are omitted.
func (s SandboxConfig) Normalize() SandboxConfig {
	if strings.TrimSpace(s.PythonBinary) == "" {
		s.PythonBinary = "python3"
	}
	if s.DefaultTimeout <= 0 {
		s.DefaultTimeout = 8 * time.Second
	}
	if strings.TrimSpace(s.Provider) == "" {
		s.Provider = "subprocess"
	}
	return s
}

// CatalogConfig points at the statistics catalog documents loaded at startup.
type CatalogConfig struct {
	FunctionsFile string `mapstructure:"functions_file"`
	EndpointsFile string `mapstructure:"endpoints_file"`
	ChartDocsFile string `mapstructure:"chart_docs_file"`
}

func (c CatalogConfig) Validate() error {
	if strings.TrimSpace(c.FunctionsFile) == "" {
		return fmt.Errorf("catalog.functions_file is required")
	}
	if strings.TrimSpace(c.EndpointsFile) == "" {
		return fmt.Errorf("catalog.endpoints_file is required")
	}
	return nil
}

// MediaConfig configures the home run search index.
type MediaConfig struct {
	IndexPath   string `mapstructure:"index_path"`
	HomerunsCSV string `mapstructure:"homeruns_csv"`
	MaxResults  int    `mapstructure:"max_results"`
}

// Normalize applies media defaults.
func (m MediaConfig) Normalize() MediaConfig {
	if m.MaxResults <= 0 {
		m.MaxResults = 5
	}
	return m
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings for conversation history
type RedisConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Host       string        `mapstructure:"host"`
	Port       string        `mapstructure:"port"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	Timeout    time.Duration `mapstructure:"timeout"`
	HistoryTTL time.Duration `mapstructure:"history_ttl"`
	HistoryMax int           `mapstructure:"history_max"`
}

func (r RedisConfig) Validate() error {
	if !r.Enabled {
		return nil
	}
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required when redis is enabled")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required when redis is enabled")
	}
	return nil
}

// PostgresConfig contains Postgres connection settings for the chat archive
type PostgresConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if !p.Enabled {
		return nil
	}
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.Port) == "" {
		return fmt.Errorf("storage.postgres.port required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// LookupConfig controls the memoized entity lookup layer.
type LookupConfig struct {
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
	MaxWorkers int           `mapstructure:"max_workers"`
}

// Normalize applies lookup defaults.
func (l LookupConfig) Normalize() LookupConfig {
	if l.CacheTTL <= 0 {
		l.CacheTTL = 15 * time.Minute
	}
	if l.MaxWorkers <= 0 {
		l.MaxWorkers = 4
	}
	return l
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("json")   // REQUIRED if the config file does not have the extension in the name
	viper.SetDefault("general.default_language", "en")
	viper.SetDefault("server.address", ":10010")
	viper.SetDefault("llm.provider", "gemini")
	viper.SetDefault("sandbox.python_binary", "python3")
	viper.SetDefault("media.max_results", 5)

	if path == "" {
		viper.AddConfigPath("./app/config") // path to look for the config file in
		viper.AddConfigPath("./config")     // path to look for the config file in
		viper.AddConfigPath(".")            // optionally look for config in the working directory
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)                                // bin/
		viper.AddConfigPath(filepath.Join(exeDir, ".."))           // repo root
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config")) // repo root/config
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("DUGOUT")
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)

	viper.AutomaticEnv() // read in environment variables that match (DUGOUT_*)

	err := viper.ReadInConfig() // Find and read the config file
	if err != nil {             // Handle errors reading the config file
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	// unmarshal config
	var config Config

	if err = viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	config.LLM = config.LLM.Normalize()
	config.Sandbox = config.Sandbox.Normalize()
	config.Media = config.Media.Normalize()
	config.Lookup = config.Lookup.Normalize()

	if err := config.LLM.Validate(); err != nil {
		panic(err)
	}
	if err := config.Telemetry.Validate(); err != nil {
		panic(err)
	}
	if err := config.Sandbox.Validate(); err != nil {
		panic(err)
	}
	if err := config.Catalog.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Redis.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Postgres.Validate(); err != nil {
		panic(err)
	}
	return &config
}
