// Package config loads the processor configuration: a YAML file merged
// with .env and ETYGRAPH_* environment overrides. CLI flags override both
// at the command layer.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Embeddings struct {
		Provider  string `yaml:"provider"`   // ollama | openai | gemini
		Model     string `yaml:"model"`      // embedding model identifier
		APIKey    string `yaml:"api_key"`
		BaseURL   string `yaml:"base_url"`
		Dimension int    `yaml:"dimension"`
		BatchSize int    `yaml:"batch_size"`
		CacheDir  string `yaml:"cache_dir"`
	} `yaml:"embeddings"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	LanguageData string `yaml:"language_data"`
}

// Defaults returns the configuration used when no file is present.
func Defaults() *Config {
	var cfg Config
	cfg.Embeddings.Provider = "ollama"
	cfg.Embeddings.BatchSize = 800
	cfg.Embeddings.CacheDir = "data/embeddings_cache"
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.LanguageData = "data/languages.jsonl"
	return &cfg
}

// Load reads the YAML config at path (missing file is fine: defaults
// apply), then .env, then environment overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if v := os.Getenv("ETYGRAPH_EMBEDDINGS_PROVIDER"); v != "" {
		cfg.Embeddings.Provider = v
	}
	if v := os.Getenv("ETYGRAPH_EMBEDDINGS_MODEL"); v != "" {
		cfg.Embeddings.Model = v
	}
	if v := os.Getenv("ETYGRAPH_API_KEY"); v != "" {
		cfg.Embeddings.APIKey = v
	}
	if v := os.Getenv("ETYGRAPH_EMBEDDINGS_BASE_URL"); v != "" {
		cfg.Embeddings.BaseURL = v
	}
	if v := os.Getenv("ETYGRAPH_EMBEDDINGS_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Embeddings.BatchSize = n
		}
	}
	if v := os.Getenv("ETYGRAPH_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return cfg, nil
}
