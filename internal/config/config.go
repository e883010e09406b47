// Package config layers defaults, an optional YAML file, a .env file and the
// environment into the finchat configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aretw0/finchat/internal/logging"
	"github.com/aretw0/finchat/pkg/persistence/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. FINCHAT_LLM_MODEL.
const EnvPrefix = "FINCHAT"

// Config is the complete runtime configuration.
type Config struct {
	LLM     LLMConfig     `mapstructure:"llm"`
	Agent   AgentConfig   `mapstructure:"agent"`
	MCP     MCPConfig     `mapstructure:"mcp"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Store   StoreConfig   `mapstructure:"store"`
	Speech  SpeechConfig  `mapstructure:"speech"`
	Intents IntentsConfig `mapstructure:"intents"`
	Log     LogConfig     `mapstructure:"log"`
}

type LLMConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature *float64      `mapstructure:"temperature"`
	MaxTokens   int64         `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type AgentConfig struct {
	MaxHops          int           `mapstructure:"max_hops"`
	ToolTimeout      time.Duration `mapstructure:"tool_timeout"`
	ToolConcurrency  int           `mapstructure:"tool_concurrency"`
	SystemPromptFile string        `mapstructure:"system_prompt_file"`
}

type MCPConfig struct {
	Command      string            `mapstructure:"command"`
	Args         []string          `mapstructure:"args"`
	Dir          string            `mapstructure:"dir"`
	Env          map[string]string `mapstructure:"env"`
	ToolCacheTTL time.Duration     `mapstructure:"tool_cache_ttl"`
}

// LaunchArgs returns Args, or the uv invocation of the server in Dir when Args is empty.
func (c MCPConfig) LaunchArgs() []string {
	if len(c.Args) > 0 || c.Dir == "" {
		return c.Args
	}
	return []string{"--directory", c.Dir, "run", "src/spendcast_mcp/server.py"}
}

type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	StaticDir    string        `mapstructure:"static_dir"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

// StoreConfig selects the conversation store. EncryptionKeyset is the path of
// a cleartext JSON keyset, as written by `finchat keyset new`.
type StoreConfig struct {
	Driver           string      `mapstructure:"driver"`
	Redis            RedisConfig `mapstructure:"redis"`
	File             FileConfig  `mapstructure:"file"`
	Redact           bool        `mapstructure:"redact"`
	EncryptionKeyset string      `mapstructure:"encryption_keyset"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

type FileConfig struct {
	Dir string `mapstructure:"dir"`
}

type SpeechConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	DefaultLang string `mapstructure:"default_lang"`
}

type IntentsConfig struct {
	File string `mapstructure:"file"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Store drivers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverFile   = "file"
)

// New returns a viper instance with defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("llm.model", "gpt-5-nano")
	v.SetDefault("llm.max_tokens", 0)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("agent.max_hops", 4)
	v.SetDefault("agent.tool_timeout", 30*time.Second)
	v.SetDefault("agent.tool_concurrency", 1)
	v.SetDefault("agent.system_prompt_file", "")
	v.SetDefault("mcp.command", "uv")
	v.SetDefault("mcp.args", []string{})
	v.SetDefault("mcp.dir", "")
	v.SetDefault("mcp.env", map[string]string{})
	v.SetDefault("mcp.tool_cache_ttl", 0)
	v.SetDefault("http.addr", ":5000")
	v.SetDefault("http.static_dir", "static")
	v.SetDefault("http.query_timeout", 3*time.Minute)
	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", "finchat:")
	v.SetDefault("store.redis.ttl", 24*time.Hour)
	v.SetDefault("store.redis.lock_ttl", 2*time.Minute)
	v.SetDefault("store.file.dir", ".finchat/conversations")
	v.SetDefault("store.redact", true)
	v.SetDefault("store.encryption_keyset", "")
	v.SetDefault("speech.enabled", false)
	v.SetDefault("speech.endpoint", "")
	v.SetDefault("speech.default_lang", "en")
	v.SetDefault("intents.file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Names used by the original deployment.
	_ = v.BindEnv("llm.api_key", EnvPrefix+"_LLM_API_KEY", "OPENROUTER_API_KEY")
	_ = v.BindEnv("mcp.dir", EnvPrefix+"_MCP_DIR", "SPENDCAST_MCP_DIR")

	return v
}

// LoadDotEnv loads variables from the given .env files that exist.
// Variables already present in the environment win.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the optional config file into v and decodes the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	var errs []error
	if c.Agent.MaxHops < 1 {
		errs = append(errs, fmt.Errorf("agent.max_hops must be at least 1"))
	}
	if c.Agent.ToolConcurrency < 1 {
		errs = append(errs, fmt.Errorf("agent.tool_concurrency must be at least 1"))
	}
	switch c.Store.Driver {
	case DriverMemory, DriverRedis, DriverFile:
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not one of memory, redis, file", c.Store.Driver))
	}
	if c.Store.EncryptionKeyset != "" {
		if _, err := middleware.LoadKeyset(c.Store.EncryptionKeyset); err != nil {
			errs = append(errs, fmt.Errorf("store.encryption_keyset: %w", err))
		}
	}
	if c.HTTP.QueryTimeout < 0 {
		errs = append(errs, fmt.Errorf("http.query_timeout must not be negative"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q is not one of text, json", c.Log.Format))
	}
	return errors.Join(errs...)
}

// RequireLLM reports whether the chat-completion service can be reached.
func (c *Config) RequireLLM() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is not set (use %s_LLM_API_KEY or OPENROUTER_API_KEY)", EnvPrefix)
	}
	return nil
}

// RequireMCP reports whether a tool-provider launch command is configured.
func (c *Config) RequireMCP() error {
	if c.MCP.Command == "" {
		return fmt.Errorf("mcp.command is not set")
	}
	if c.MCP.Command == "uv" && len(c.MCP.LaunchArgs()) == 0 {
		return fmt.Errorf("mcp.dir is not set (use %s_MCP_DIR or SPENDCAST_MCP_DIR)", EnvPrefix)
	}
	return nil
}
