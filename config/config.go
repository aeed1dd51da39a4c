package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/mtkallio/spotcharge/core/metrics"
	"github.com/mtkallio/spotcharge/infra/mail"
)

// Config is the full runtime configuration for one invocation.
type Config struct {
	Market  MarketConfig   `json:"market"`
	Charge  ChargeConfig   `json:"charge"`
	Charger ChargerConfig  `json:"charger"`
	SMTP    mail.Config    `json:"smtp"`
	Metrics metrics.Config `json:"metrics"`
}

// Load reads a YAML or JSON configuration file, applies SC_ environment
// overrides (SC_market__zone=FI), fills defaults and validates.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("SC_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "sc_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Market.SetDefaults()
	cfg.Charger.SetDefaults()
	cfg.SMTP.SetDefaults()
	if err := cfg.Market.Validate(); err != nil {
		return nil, fmt.Errorf("market: %w", err)
	}
	if err := cfg.Charge.Validate(); err != nil {
		return nil, fmt.Errorf("charge: %w", err)
	}
	if err := cfg.Charger.Validate(); err != nil {
		return nil, fmt.Errorf("charger: %w", err)
	}
	if err := cfg.SMTP.Validate(); err != nil {
		return nil, fmt.Errorf("smtp: %w", err)
	}
	return &cfg, nil
}
