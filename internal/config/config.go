package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           int   `yaml:"port"`
		MaxUploadBytes int64 `yaml:"maxUploadBytes"`
	} `yaml:"server"`

	CORS struct {
		Origins []string `yaml:"origins"`
	} `yaml:"cors"`

	Analyzer struct {
		Binary    string        `yaml:"binary"`
		Timeout   time.Duration `yaml:"timeout"`
		TempDir   string        `yaml:"tempDir"`
		ExtraArgs []string      `yaml:"extraArgs"`
	} `yaml:"analyzer"`

	AI struct {
		APIKey  string        `yaml:"apiKey"`
		BaseURL string        `yaml:"baseURL"`
		Model   string        `yaml:"model"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"ai"`

	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
}

// Default values used for anything the file and environment leave unset.
func Default() *Config {
	var cfg Config
	cfg.Server.Port = 8000
	cfg.Server.MaxUploadBytes = 5 << 20
	cfg.CORS.Origins = []string{"http://localhost:3000"}
	cfg.Analyzer.Binary = "slither"
	cfg.Analyzer.Timeout = 30 * time.Second
	cfg.AI.BaseURL = "https://api.groq.com/openai/v1"
	cfg.AI.Model = "llama-3.3-70b-versatile"
	cfg.AI.Timeout = 120 * time.Second
	cfg.Log.Level = "info"
	return &cfg
}

// Load reads the yaml file at path on top of the defaults, then applies .env
// and environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	_ = godotenv.Load()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	if v := env("GROQ_API_KEY"); v != "" {
		c.AI.APIKey = v
	}
	if v := env("AI_BASE_URL"); v != "" {
		c.AI.BaseURL = v
	}
	if v := env("AI_MODEL"); v != "" {
		c.AI.Model = v
	}
	if v := env("SLITHER_BIN"); v != "" {
		c.Analyzer.Binary = v
	}
	if v := env("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := env("CORS_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.CORS.Origins = origins
	}
	if v := env("PORT"); v != "" {
		port, err := strconv.Atoi(strings.TrimPrefix(v, ":"))
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = port
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.maxUploadBytes must be positive")
	}
	if c.Analyzer.Timeout <= 0 || c.AI.Timeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
