package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	ModelSourceHuggingFace = "huggingface"
	ModelSourceS3          = "s3"
	ModelSourceNone        = "none"
)

const (
	// ModelRuntimeKronk loads the weights in process.
	ModelRuntimeKronk = "kronk"
	// ModelRuntimeExternal talks to an already running llama.cpp-style server
	// at the LLM base URL.
	ModelRuntimeExternal = "external"
)

type Config struct {
	Profile       Profile             `yaml:"-"`
	Service       ServiceConfig       `yaml:"service"`
	Database      DatabaseConfig      `yaml:"database"`
	Model         ModelConfig         `yaml:"model"`
	LLM           LLMConfig           `yaml:"llm"`
	Prompt        PromptConfig        `yaml:"prompt"`
	Sampler       SamplerConfig       `yaml:"sampler"`
	CLI           CLIConfig           `yaml:"cli"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServiceConfig struct {
	Name string `yaml:"name"`
}

type DatabaseConfig struct {
	Driver         string        `yaml:"driver"`
	DSN            string        `yaml:"dsn"`
	Host           string        `yaml:"host"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	Name           string        `yaml:"name"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

type ObjectStoreConfig struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key"`
	SecretAccessKey string `yaml:"secret_key"`
	UseSSL          bool   `yaml:"use_ssl"`
	Prefix          string `yaml:"prefix"`
}

type ModelConfig struct {
	Runtime        string            `yaml:"runtime"`
	Source         string            `yaml:"source"`
	Repo           string            `yaml:"repo"`
	Filename       string            `yaml:"filename"`
	CacheDir       string            `yaml:"cache_dir"`
	HubBaseURL     string            `yaml:"hub_base_url"`
	ObjectStore    ObjectStoreConfig `yaml:"object_store"`
	StartupTimeout time.Duration     `yaml:"startup_timeout"`
}

type LLMConfig struct {
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	Model             string        `yaml:"model"`
	MaxTokens         int           `yaml:"max_tokens"`
	SQLTemperature    float64       `yaml:"sql_temperature"`
	AnswerTemperature float64       `yaml:"answer_temperature"`
	Timeout           time.Duration `yaml:"timeout"`
}

type PromptConfig struct {
	Table string `yaml:"table"`
}

type SamplerConfig struct {
	RowsPerTable int           `yaml:"rows_per_table"`
	Workers      int           `yaml:"workers"`
	WaitTimeout  time.Duration `yaml:"wait_timeout"`
	ExportPath   string        `yaml:"export_path"`
	ExportKey    string        `yaml:"export_key"`
}

type CLIConfig struct {
	Question       string `yaml:"question"`
	AssistantName  string `yaml:"assistant_name"`
	HistoryFile    string `yaml:"history_file"`
	RenderMarkdown bool   `yaml:"render_markdown"`
}

type ObservabilityConfig struct {
	LogLevel    slog.Level `yaml:"log_level"`
	LogJSON     bool       `yaml:"log_json"`
	MetricsAddr string     `yaml:"metrics_addr"`
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("ASKDB_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid ASKDB_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if path, ok := lookup("ASKDB_CONFIG_FILE"); ok && strings.TrimSpace(path) != "" {
		if err := applyFile(strings.TrimSpace(path), &cfg); err != nil {
			return Config{}, err
		}
	}

	steps := []func() error{
		func() error { return applyString(lookup, "ASKDB_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "ASKDB_DB_DRIVER", &cfg.Database.Driver) },
		func() error { return applyString(lookup, "ASKDB_DB_DSN", &cfg.Database.DSN) },
		func() error { return applyString(lookup, "ASKDB_DB_HOST", &cfg.Database.Host) },
		func() error { return applyString(lookup, "ASKDB_DB_USER", &cfg.Database.User) },
		func() error { return applyString(lookup, "ASKDB_DB_PASSWORD", &cfg.Database.Password) },
		func() error { return applyString(lookup, "ASKDB_DB_NAME", &cfg.Database.Name) },
		func() error { return applyDuration(lookup, "ASKDB_DB_CONNECT_TIMEOUT", &cfg.Database.ConnectTimeout) },
		func() error { return applyString(lookup, "ASKDB_MODEL_RUNTIME", &cfg.Model.Runtime) },
		func() error { return applyString(lookup, "ASKDB_MODEL_SOURCE", &cfg.Model.Source) },
		func() error { return applyString(lookup, "ASKDB_MODEL_REPO", &cfg.Model.Repo) },
		func() error { return applyString(lookup, "ASKDB_MODEL_FILENAME", &cfg.Model.Filename) },
		func() error { return applyString(lookup, "ASKDB_MODEL_CACHE_DIR", &cfg.Model.CacheDir) },
		func() error { return applyString(lookup, "ASKDB_MODEL_HUB_BASE_URL", &cfg.Model.HubBaseURL) },
		func() error { return applyString(lookup, "ASKDB_MODEL_OBJECTSTORE_ENDPOINT", &cfg.Model.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "ASKDB_MODEL_OBJECTSTORE_REGION", &cfg.Model.ObjectStore.Region) },
		func() error { return applyString(lookup, "ASKDB_MODEL_OBJECTSTORE_BUCKET", &cfg.Model.ObjectStore.Bucket) },
		func() error { return applyString(lookup, "ASKDB_MODEL_OBJECTSTORE_ACCESS_KEY", &cfg.Model.ObjectStore.AccessKeyID) },
		func() error { return applyString(lookup, "ASKDB_MODEL_OBJECTSTORE_SECRET_KEY", &cfg.Model.ObjectStore.SecretAccessKey) },
		func() error { return applyBool(lookup, "ASKDB_MODEL_OBJECTSTORE_USE_SSL", &cfg.Model.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "ASKDB_MODEL_OBJECTSTORE_PREFIX", &cfg.Model.ObjectStore.Prefix) },
		func() error { return applyDuration(lookup, "ASKDB_MODEL_STARTUP_TIMEOUT", &cfg.Model.StartupTimeout) },
		func() error { return applyString(lookup, "ASKDB_LLM_BASE_URL", &cfg.LLM.BaseURL) },
		func() error { return applyString(lookup, "ASKDB_LLM_API_KEY", &cfg.LLM.APIKey) },
		func() error { return applyString(lookup, "ASKDB_LLM_MODEL", &cfg.LLM.Model) },
		func() error { return applyInt(lookup, "ASKDB_LLM_MAX_TOKENS", &cfg.LLM.MaxTokens) },
		func() error { return applyFloat(lookup, "ASKDB_LLM_SQL_TEMPERATURE", &cfg.LLM.SQLTemperature) },
		func() error { return applyFloat(lookup, "ASKDB_LLM_ANSWER_TEMPERATURE", &cfg.LLM.AnswerTemperature) },
		func() error { return applyDuration(lookup, "ASKDB_LLM_TIMEOUT", &cfg.LLM.Timeout) },
		func() error { return applyString(lookup, "ASKDB_PROMPT_TABLE", &cfg.Prompt.Table) },
		func() error { return applyInt(lookup, "ASKDB_SAMPLER_ROWS_PER_TABLE", &cfg.Sampler.RowsPerTable) },
		func() error { return applyInt(lookup, "ASKDB_SAMPLER_WORKERS", &cfg.Sampler.Workers) },
		func() error { return applyDuration(lookup, "ASKDB_SAMPLER_WAIT_TIMEOUT", &cfg.Sampler.WaitTimeout) },
		func() error { return applyString(lookup, "ASKDB_SAMPLER_EXPORT_PATH", &cfg.Sampler.ExportPath) },
		func() error { return applyString(lookup, "ASKDB_SAMPLER_EXPORT_KEY", &cfg.Sampler.ExportKey) },
		func() error { return applyString(lookup, "ASKDB_CLI_QUESTION", &cfg.CLI.Question) },
		func() error { return applyString(lookup, "ASKDB_CLI_ASSISTANT_NAME", &cfg.CLI.AssistantName) },
		func() error { return applyString(lookup, "ASKDB_CLI_HISTORY_FILE", &cfg.CLI.HistoryFile) },
		func() error { return applyBool(lookup, "ASKDB_CLI_RENDER_MARKDOWN", &cfg.CLI.RenderMarkdown) },
		func() error { return applyBool(lookup, "ASKDB_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "ASKDB_LOG_LEVEL", &cfg.Observability.LogLevel) },
		func() error { return applyString(lookup, "ASKDB_METRICS_ADDR", &cfg.Observability.MetricsAddr) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	switch c.Database.Driver {
	case "mysql", "pgx", "duckdb":
	default:
		return fmt.Errorf("database.driver must be one of mysql, pgx, duckdb: %q", c.Database.Driver)
	}
	if c.Database.Driver == "duckdb" {
		// An empty duckdb dsn opens a new in-memory database per connection.
		if c.Database.DSN == "" && c.Profile != ProfileTest {
			return fmt.Errorf("database dsn is required for duckdb")
		}
	} else if c.Database.DSN == "" && c.Database.Host == "" {
		return fmt.Errorf("database host or dsn is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	switch c.Model.Source {
	case ModelSourceHuggingFace:
		if c.Model.Repo == "" || c.Model.Filename == "" {
			return fmt.Errorf("model repo and filename are required for source %q", c.Model.Source)
		}
	case ModelSourceS3:
		if c.Model.Filename == "" || c.Model.ObjectStore.Bucket == "" {
			return fmt.Errorf("model filename and object store bucket are required for source %q", c.Model.Source)
		}
	case ModelSourceNone:
	default:
		return fmt.Errorf("invalid model source: %q", c.Model.Source)
	}
	switch c.Model.Runtime {
	case ModelRuntimeKronk:
	case ModelRuntimeExternal:
		if c.LLM.BaseURL == "" {
			return fmt.Errorf("llm base url is required for runtime %q", c.Model.Runtime)
		}
	default:
		return fmt.Errorf("invalid model runtime: %q", c.Model.Runtime)
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm max tokens must be positive")
	}
	if c.Sampler.RowsPerTable <= 0 {
		return fmt.Errorf("sampler rows per table must be positive")
	}
	if c.Sampler.Workers <= 0 {
		return fmt.Errorf("sampler workers must be positive")
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "askdb"},
		Database: DatabaseConfig{
			Driver:         "mysql",
			Host:           "localhost:3306",
			User:           "web",
			Password:       "web",
			Name:           "webcfc_go_jaguar",
			ConnectTimeout: 10 * time.Second,
		},
		Model: ModelConfig{
			Runtime:        ModelRuntimeKronk,
			Source:         ModelSourceHuggingFace,
			Repo:           "bartowski/DeepSeek-Coder-V2-Lite-Instruct-GGUF",
			Filename:       "DeepSeek-Coder-V2-Lite-Instruct-Q4_K_M.gguf",
			CacheDir:       "models",
			HubBaseURL:     "https://huggingface.co",
			StartupTimeout: 5 * time.Minute,
			ObjectStore: ObjectStoreConfig{
				Endpoint: "localhost:9000",
				Region:   "us-east-1",
				Bucket:   "models",
			},
		},
		LLM: LLMConfig{
			BaseURL:           "http://localhost:8080",
			Model:             "local",
			MaxTokens:         500,
			SQLTemperature:    0,
			AnswerTemperature: 0.2,
			Timeout:           5 * time.Minute,
		},
		Prompt: PromptConfig{
			Table: "aulas_praticas",
		},
		Sampler: SamplerConfig{
			RowsPerTable: 5,
			Workers:      5,
			WaitTimeout:  30 * time.Second,
		},
		CLI: CLIConfig{
			Question:      "Ask a question about the practical classes (or 'sair'): ",
			AssistantName: "DeepSeek",
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  false,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.Model.Source = ModelSourceNone
		cfg.Model.Runtime = ModelRuntimeExternal
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Observability.LogJSON = true
		cfg.Model.ObjectStore.UseSSL = true
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
