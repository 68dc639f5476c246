package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config holds runtime configuration. Secrets (API keys, JWT secret) come from
// the environment or a local config file; never committed.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	UAZAPI    UAZAPIConfig    `mapstructure:"uazapi"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// PublicURL is the externally reachable base, advertised by discovery and
	// used for UAZAPI webhooks. Defaults to InternalURL.
	PublicURL string `mapstructure:"public_url"`
	// InternalURL is where the agent dispatches its tool calls, carrying the
	// internal secret. Defaults to the loopback form of Addr.
	InternalURL     string        `mapstructure:"internal_url"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite or postgres
	DSN    string `mapstructure:"dsn"`
}

type LLMConfig struct {
	Provider string `mapstructure:"provider"` // openrouter or openai
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	BaseURL  string `mapstructure:"base_url"`
}

type AgentConfig struct {
	// MaxRounds caps tool rounds per turn; 0 = unbounded.
	MaxRounds        int    `mapstructure:"max_rounds"`
	SystemPromptPath string `mapstructure:"system_prompt_path"`
	SessionListLimit int    `mapstructure:"session_list_limit"`
}

type AuthConfig struct {
	JWTSecret      string `mapstructure:"jwt_secret"`
	InternalSecret string `mapstructure:"internal_secret"`
}

type ToolsConfig struct {
	// Timeout per internal tool call; 0 = transport default.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxResultRunes caps tool result data handed back to the model; 0 = no cap.
	MaxResultRunes int `mapstructure:"max_result_runes"`
}

type UAZAPIConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	AdminToken    string        `mapstructure:"admin_token"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	// WebhookBaseURL is the externally reachable address UAZAPI posts events to.
	WebhookBaseURL string `mapstructure:"webhook_base_url"`
}

type SchedulerConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Spec      string `mapstructure:"spec"`
	Workers   int    `mapstructure:"workers"`
	BatchSize int    `mapstructure:"batch_size"`
	// ClaimLease is how long a claimed message may stay in "sending" before
	// the next tick fails it as interrupted.
	ClaimLease time.Duration `mapstructure:"claim_lease"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
	File   string `mapstructure:"file"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "wagroups.db")
	v.SetDefault("llm.provider", "openrouter")
	v.SetDefault("llm.model", "openai/gpt-4o-mini")
	v.SetDefault("agent.max_rounds", 10)
	v.SetDefault("agent.session_list_limit", 20)
	v.SetDefault("uazapi.base_url", "https://free.uazapi.com")
	v.SetDefault("uazapi.timeout", 35*time.Second)
	v.SetDefault("uazapi.rate_per_second", 2.0)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.spec", "@every 30s")
	v.SetDefault("scheduler.workers", 4)
	v.SetDefault("scheduler.batch_size", 50)
	v.SetDefault("scheduler.claim_lease", 10*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Unmarshal only sees keys viper knows about; register the rest so
	// WAGROUPS_* overrides reach them.
	for _, key := range []string{
		"server.public_url", "server.internal_url", "llm.api_key", "llm.base_url", "agent.system_prompt_path",
		"auth.jwt_secret", "auth.internal_secret", "uazapi.admin_token",
		"uazapi.webhook_base_url", "log.file",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("tools.timeout", time.Duration(0))
	v.SetDefault("tools.max_result_runes", 8000)
}

// Load reads .env (if present), the optional config file and WAGROUPS_* env
// vars, in increasing priority. configFile may be empty.
func Load(configFile string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("WAGROUPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Legacy names kept so existing deployments keep working.
	_ = v.BindEnv("llm.api_key", "WAGROUPS_LLM_API_KEY", "OPENROUTER_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("auth.jwt_secret", "WAGROUPS_AUTH_JWT_SECRET", "SUPABASE_JWT_SECRET")
	_ = v.BindEnv("database.dsn", "WAGROUPS_DATABASE_DSN", "DATABASE_URL")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".wagroups"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config")
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	cfg.fill()
	return cfg, nil
}

func (c *Config) fill() {
	if c.Server.InternalURL == "" {
		addr := c.Server.Addr
		if strings.HasPrefix(addr, ":") {
			addr = "127.0.0.1" + addr
		}
		c.Server.InternalURL = "http://" + addr
	}
	c.Server.InternalURL = strings.TrimRight(c.Server.InternalURL, "/")
	if c.Server.PublicURL == "" {
		c.Server.PublicURL = c.Server.InternalURL
	}
	c.Server.PublicURL = strings.TrimRight(c.Server.PublicURL, "/")
	if c.Auth.InternalSecret == "" {
		c.Auth.InternalSecret = randomSecret()
	}
	if c.UAZAPI.WebhookBaseURL == "" {
		c.UAZAPI.WebhookBaseURL = c.Server.PublicURL
	}
}

// Validate reports settings that must be present before serving traffic.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return errors.New("LLM API key not set: set llm.api_key or OPENROUTER_API_KEY")
	}
	if c.LLM.Model == "" {
		return errors.New("model not set: set llm.model")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("session JWT secret not set: set auth.jwt_secret or SUPABASE_JWT_SECRET")
	}
	return nil
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
