package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BLINDBOX_"

// FileEnv names the variable holding the optional YAML config path.
const FileEnv = EnvPrefix + "CONFIG"

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if BLINDBOX_CONFIG is set
//  3. env (prefix BLINDBOX_)
func Load(_ context.Context) (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(FileEnv); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// BLINDBOX_STORE_BACKEND -> store_backend. Keys stay flat; underscores
	// match the koanf tags.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	if err := checkSeed(k.Get("seed")); err != nil {
		return nil, err
	}

	cfg := New()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// checkSeed rejects seeds the YAML parser already decoded lossily. An
// unquoted decimal wider than 64 bits arrives as a float64 whose low digits
// are gone; integers that fit are exact.
func checkSeed(raw any) error {
	switch v := raw.(type) {
	case nil, string, int, int64, uint64:
		return nil
	case float64:
		return fmt.Errorf("%w: seed %v is not exact; quote it as a string", ErrInvalidConfig, v)
	default:
		return fmt.Errorf("%w: seed must be a decimal or 0x-prefixed string, got %T", ErrInvalidConfig, raw)
	}
}
