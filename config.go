package main

import (
	"flag"
	"fmt"
	"os"

	yamlv3 "gopkg.in/yaml.v3"
)

// Config is the optional yaml config file. Command line flags that were
// set explicitly win over file values.
type Config struct {
	Addr        string            `yaml:"addr"`
	RelayURL    string            `yaml:"relay_url"`
	RelayAPIKey string            `yaml:"relay_api_key"`
	SelfNumber  string            `yaml:"self_number"`
	AuthTokens  map[string]string `yaml:"auth_tokens"`
}

func loadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read `%s`: %v", path, err)
	}
	if err := yamlv3.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse `%s`: %v", path, err)
	}
	return cfg, nil
}

// overlayFlags resolves each setting: an explicitly set flag wins, then a
// non-empty file value, then the flag default.
func (cfg *Config) overlayFlags() {
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["addr"] || cfg.Addr == "" {
		cfg.Addr = *flagAddr
	}
	if set["relay-url"] || cfg.RelayURL == "" {
		cfg.RelayURL = *flagRelayURL
	}
	if set["relay-api-key"] || cfg.RelayAPIKey == "" {
		cfg.RelayAPIKey = *flagRelayAPIKey
	}
	if set["self-number"] || cfg.SelfNumber == "" {
		cfg.SelfNumber = *flagSelfNumber
	}
}
