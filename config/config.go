package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Load loads the process configuration from path, creating a default file
// in its place when no file exists at path.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := ValidateConfig(*cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// createDefault writes and returns the out-of-the-box configuration: an
// engine with engine.DefaultParams, logging to stdout, no OTLP exporter.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress: ":8090",
		DataDir:       "./perpkernel-data",
		LogLevel:      "info",
		LogPath:       "",
		OTLPEndpoint:  "",
		Risk:          defaultRiskParams(),
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
