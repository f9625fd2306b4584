package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the config search paths when set.
const EnvConfigPath = "DBROUTE_CONFIG"

type LoggingConfig struct {
	Level      string `json:"level" yaml:"level"`
	OutputFile string `json:"output_file" yaml:"output_file"`
	MaxSizeMB  int64  `json:"max_size_mb" yaml:"max_size_mb"`
	Console    bool   `json:"console" yaml:"console"`
}

type Config struct {
	Connections       map[string]ConnectionConfig `json:"connections" yaml:"connections"`
	DefaultConnection string                      `json:"default_connection" yaml:"default_connection"`
	Logging           LoggingConfig               `json:"logging" yaml:"logging"`
}

// LoadConfig returns the first config file found on the search path, or an
// empty config when none exists.
func LoadConfig() (*Config, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return LoadFile(path)
	}

	for _, path := range getConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			config, err := LoadFile(path)
			if err != nil {
				continue
			}
			return config, nil
		}
	}

	return &Config{
		Connections: make(map[string]ConnectionConfig),
	}, nil
}

// LoadFile reads a JSON or YAML connections file. The format is chosen by
// extension.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if config.Connections == nil {
		config.Connections = make(map[string]ConnectionConfig)
	}

	for name, conn := range config.Connections {
		conn = conn.ExpandCompoundURL()
		if err := conn.Validate(); err != nil {
			return nil, fmt.Errorf("invalid connection %s: %w", name, err)
		}
		config.Connections[name] = conn
	}

	if config.DefaultConnection != "" {
		if _, ok := config.Connections[config.DefaultConnection]; !ok {
			return nil, fmt.Errorf("default connection %q is not defined", config.DefaultConnection)
		}
	}

	return &config, nil
}

func (c *Config) GetConnection(name string) (ConnectionConfig, bool) {
	conn, exists := c.Connections[name]
	return conn, exists
}

func (c *Config) ListConnections() map[string]ConnectionConfig {
	return c.Connections
}

func getConfigPaths() []string {
	var dirs []string

	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			dirs = append(dirs, filepath.Join(appData, "dbroute"))
		}
	default:
		homeDir := os.Getenv("HOME")
		if homeDir != "" {
			dirs = append(dirs, filepath.Join(homeDir, ".config", "dbroute"))
		}
	}

	if pwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, pwd)
	}

	var paths []string
	for _, dir := range dirs {
		for _, name := range []string{"connections.json", "connections.yaml", "connections.yml"} {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	return paths
}
