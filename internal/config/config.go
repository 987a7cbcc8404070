package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeGCP   Mode = "gcp"
)

const (
	StorageMemory    = "memory"
	StorageFirestore = "firestore"
	StorageSQLite    = "sqlite"
)

const (
	ProviderMock      = "mock"
	ProviderVertex    = "vertex"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

type Config struct {
	Mode Mode `yaml:"mode"`

	Port           string        `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	StorageBackend string `yaml:"storage_backend"` // memory, firestore or sqlite
	SQLitePath     string `yaml:"sqlite_path"`
	SQLiteDriver   string `yaml:"sqlite_driver"` // sqlite (pure Go) or sqlite3 (cgo)

	LLMProvider      string  `yaml:"llm_provider"` // mock, vertex, openai or anthropic
	GCPProjectID     string  `yaml:"gcp_project"`
	GCPLocation      string  `yaml:"gcp_location"`
	ModelName        string  `yaml:"model_name"`
	OpenAIAPIKey     string  `yaml:"openai_api_key"`
	OpenAIBaseURL    string  `yaml:"openai_base_url"`
	AnthropicAPIKey  string  `yaml:"anthropic_api_key"`
	AnthropicBaseURL string  `yaml:"anthropic_base_url"`
	MaxTokens        int     `yaml:"max_tokens"`
	Temperature      float32 `yaml:"temperature"`
	TopP             float32 `yaml:"top_p"`
	RetryAttempts    int     `yaml:"retry_attempts"`
	SystemPrompt     string  `yaml:"system_prompt"`

	LogLevel         string `yaml:"log_level"`
	LogFile          string `yaml:"log_file"`
	TelemetryEnabled bool   `yaml:"telemetry_enabled"`
	TelemetryDir     string `yaml:"telemetry_dir"`
}

func defaults() *Config {
	return &Config{
		Mode:           ModeLocal,
		Port:           "8080",
		RequestTimeout: 60 * time.Second,
		StorageBackend: StorageMemory,
		SQLitePath:     "farum-chat.db",
		SQLiteDriver:   "sqlite",
		GCPLocation:    "us-central1",
		MaxTokens:      4000,
		Temperature:    0.5,
		TopP:           0.95,
		RetryAttempts:  3,
		LogLevel:       "info",
		TelemetryDir:   "logs",
	}
}

// Load builds the configuration from, in increasing priority: built-in
// defaults, the YAML file named by FARUM_CONFIG_FILE, and FARUM_*
// environment variables. A .env file in the working directory is loaded
// into the environment first, without overriding variables already set.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFile(os.Getenv("FARUM_CONFIG_FILE"))
}

// LoadFile is Load with an explicit YAML file; an empty path skips it.
func LoadFile(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.LLMProvider == "" {
		cfg.LLMProvider = ProviderMock
		if cfg.Mode == ModeGCP {
			cfg.LLMProvider = ProviderVertex
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if v := getEnv("FARUM_MODE", ""); v != "" {
		c.Mode = Mode(strings.ToLower(v))
	}

	setString(&c.Port, "FARUM_PORT")
	collect(setDuration(&c.RequestTimeout, "FARUM_REQUEST_TIMEOUT"))

	setString(&c.StorageBackend, "FARUM_STORAGE_BACKEND")
	setString(&c.SQLitePath, "FARUM_SQLITE_PATH")
	setString(&c.SQLiteDriver, "FARUM_SQLITE_DRIVER")

	setString(&c.LLMProvider, "FARUM_LLM_PROVIDER")
	setString(&c.GCPProjectID, "FARUM_GCP_PROJECT")
	setString(&c.GCPLocation, "FARUM_GCP_LOCATION")
	setString(&c.ModelName, "FARUM_MODEL_NAME")
	setString(&c.OpenAIAPIKey, "FARUM_OPENAI_API_KEY")
	setString(&c.OpenAIBaseURL, "FARUM_OPENAI_BASE_URL")
	setString(&c.AnthropicAPIKey, "FARUM_ANTHROPIC_API_KEY")
	setString(&c.AnthropicBaseURL, "FARUM_ANTHROPIC_BASE_URL")
	collect(setInt(&c.MaxTokens, "FARUM_MAX_TOKENS"))
	collect(setFloat(&c.Temperature, "FARUM_TEMPERATURE"))
	collect(setFloat(&c.TopP, "FARUM_TOP_P"))
	collect(setInt(&c.RetryAttempts, "FARUM_RETRY_ATTEMPTS"))
	setString(&c.SystemPrompt, "FARUM_SYSTEM_PROMPT")

	setString(&c.LogLevel, "FARUM_LOG_LEVEL")
	setString(&c.LogFile, "FARUM_LOG_FILE")
	c.TelemetryEnabled = getBoolEnv("FARUM_TELEMETRY", c.TelemetryEnabled)
	setString(&c.TelemetryDir, "FARUM_TELEMETRY_DIR")

	return errors.Join(errs...)
}

// Validate reports every inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Mode {
	case ModeLocal, ModeGCP:
	default:
		errs = append(errs, fmt.Errorf("unknown mode %q", c.Mode))
	}

	switch c.StorageBackend {
	case StorageMemory, StorageSQLite:
	case StorageFirestore:
		if c.GCPProjectID == "" {
			errs = append(errs, errors.New("FARUM_GCP_PROJECT must be set for firestore storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.StorageBackend))
	}

	switch c.LLMProvider {
	case ProviderMock:
	case ProviderVertex:
		if c.GCPProjectID == "" || c.GCPLocation == "" {
			errs = append(errs, errors.New("FARUM_GCP_PROJECT and FARUM_GCP_LOCATION must be set for vertex"))
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("FARUM_OPENAI_API_KEY must be set for openai"))
		}
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			errs = append(errs, errors.New("FARUM_ANTHROPIC_API_KEY must be set for anthropic"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown llm provider %q", c.LLMProvider))
	}

	if c.Mode == ModeGCP && c.GCPProjectID == "" {
		errs = append(errs, errors.New("FARUM_GCP_PROJECT must be set in gcp mode"))
	}
	if c.MaxTokens < 2 {
		errs = append(errs, fmt.Errorf("max tokens must be at least 2, got %d", c.MaxTokens))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature must be within [0, 2], got %v", c.Temperature))
	}
	if c.TopP <= 0 || c.TopP > 1 {
		errs = append(errs, fmt.Errorf("top-p must be within (0, 1], got %v", c.TopP))
	}
	if c.RetryAttempts < 0 {
		errs = append(errs, fmt.Errorf("retry attempts must not be negative, got %d", c.RetryAttempts))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("request timeout must not be negative, got %s", c.RequestTimeout))
	}

	return errors.Join(errs...)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if v == "1" || v == "true" || v == "TRUE" {
		return true
	}
	return false
}

func setString(dst *string, key string) {
	*dst = getEnv(key, *dst)
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float32, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = float32(f)
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
