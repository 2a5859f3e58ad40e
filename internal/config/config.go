// Package config loads CLI configuration from defaults, an optional
// config file and LOOM_* environment variables, in increasing priority.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/loom-ml/loom/internal/generate"
)

// Config is the full CLI configuration.
type Config struct {
	TokenizerPath string           `mapstructure:"tokenizer_path"`
	ModelPath     string           `mapstructure:"model_path"`
	Generation    GenerationConfig `mapstructure:"generation"`
	Context       ContextConfig    `mapstructure:"context"`
}

// GenerationConfig holds decoding defaults.
type GenerationConfig struct {
	Method        string  `mapstructure:"method"` // greedy | beam | sample
	MaxLen        int     `mapstructure:"max_len"`
	BeamSize      int     `mapstructure:"beam_size"`
	LengthPenalty float64 `mapstructure:"length_penalty"`
	Temperature   float32 `mapstructure:"temperature"`
	TopK          int     `mapstructure:"top_k"`
	TopP          float32 `mapstructure:"top_p"`
}

// ContextConfig bounds conversation history.
type ContextConfig struct {
	MaxTurns  int `mapstructure:"max_turns"`
	MaxTokens int `mapstructure:"max_tokens"`
}

// Load reads configuration. With an empty path only defaults and
// environment variables apply; a named file that cannot be read is an
// error.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("tokenizer_path", "tokenizer.json")
	v.SetDefault("model_path", "model.loom")
	v.SetDefault("generation.method", "sample")
	v.SetDefault("generation.max_len", 64)
	v.SetDefault("generation.beam_size", 3)
	v.SetDefault("generation.length_penalty", 0.6)
	v.SetDefault("generation.temperature", 1.0)
	v.SetDefault("generation.top_k", 0)
	v.SetDefault("generation.top_p", 0.9)
	v.SetDefault("context.max_turns", 10)
	v.SetDefault("context.max_tokens", 512)

	v.SetEnvPrefix("LOOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	return &cfg, nil
}

// DecodingMethod maps the configured method name onto a decoding method.
// The seed parameterizes sampling only.
func (g GenerationConfig) DecodingMethod(seed int64) (generate.Method, error) {
	switch g.Method {
	case "greedy":
		return generate.Greedy{}, nil
	case "beam":
		return generate.BeamSearch{BeamSize: g.BeamSize, LengthPenalty: g.LengthPenalty}, nil
	case "sample":
		return generate.Sample{Temperature: g.Temperature, TopK: g.TopK, TopP: g.TopP, Seed: seed}, nil
	default:
		return nil, fmt.Errorf("config: unknown generation method %q", g.Method)
	}
}
