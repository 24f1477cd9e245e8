package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// envPrefix scopes which environment variables the loader reads.
const envPrefix = "MAKANRAG_"

// Load loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (MAKANRAG_LLM_API_KEY, MAKANRAG_RETRIEVAL_TOP_K, ...)
//  2. YAML config file (~/.config/makanrag/config.yaml by default)
//  3. Hardcoded defaults
//
// Environment variables are uppercased with the MAKANRAG_ prefix; the first
// underscore after the prefix separates the section from the field:
//
//	MAKANRAG_LLM_API_KEY          -> llm.api_key
//	MAKANRAG_VECTORSTORE_PROVIDER -> vectorstore.provider
//	MAKANRAG_INDEXING_BATCH_SIZE  -> indexing.batch_size
//
// A missing config file is not an error; defaults and environment variables
// still apply.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "makanrag", "config.yaml")
	}

	if content, err := os.ReadFile(configPath); err == nil {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", configPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		// MAKANRAG_LLM_API_KEY -> llm.api_key: the first underscore
		// after the prefix splits section from field; field names keep
		// their underscores.
		trimmed := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(trimmed, "_", 2)
		if len(parts) == 1 {
			return trimmed
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the configuration with every default applied and no file
// or environment input.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}
