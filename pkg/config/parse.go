package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseRunConfigYAML parses a RunConfig from YAML bytes, applies defaults and
// validates it. Unknown keys are rejected.
func ParseRunConfigYAML(data []byte) (*RunConfig, error) {
	var cfg RunConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config yaml: document is empty")
		}
		return nil, fmt.Errorf("failed to parse config yaml: %w", err)
	}

	applyDefaults(&cfg)
	if err := validateRunConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// ParseRunConfigYAMLString parses a RunConfig from a YAML string.
func ParseRunConfigYAMLString(yamlText string) (*RunConfig, error) {
	return ParseRunConfigYAML([]byte(yamlText))
}

// Marshal renders the configuration as YAML.
func (c *RunConfig) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

const defaultGridResolution = 3

func applyDefaults(cfg *RunConfig) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Direction == "" {
		cfg.Direction = "minimize"
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 1
	}
	if cfg.Parallelism == 0 {
		cfg.Parallelism = 1
	}
	if cfg.RefitEvery == 0 {
		cfg.RefitEvery = 1
	}
	if cfg.InitialDesign == nil {
		cfg.InitialDesign = &InitialDesign{Strategy: "lhs"}
	}
	if strings.EqualFold(cfg.InitialDesign.Strategy, "grid") && cfg.InitialDesign.Resolution == 0 {
		cfg.InitialDesign.Resolution = defaultGridResolution
	}
	if cfg.Extractor == nil {
		cfg.Extractor = &Extractor{Kind: "marker"}
	}
	if cfg.Surrogate == nil {
		cfg.Surrogate = &Surrogate{Kind: "gp"}
	}
	if cfg.Acquisition == nil {
		cfg.Acquisition = &Acquisition{Kind: "ei"}
	}
}
