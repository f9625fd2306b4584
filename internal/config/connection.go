package config

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConnParams are the physical connection parameters of one database host.
// URL, when set, is handed to the driver untouched and wins over the
// individual fields.
type ConnParams struct {
	URL      string            `json:"url,omitempty" yaml:"url,omitempty"`
	Host     string            `json:"host,omitempty" yaml:"host,omitempty"`
	Port     int               `json:"port,omitempty" yaml:"port,omitempty"`
	User     string            `json:"user,omitempty" yaml:"user,omitempty"`
	Password string            `json:"password,omitempty" yaml:"password,omitempty"`
	Database string            `json:"database,omitempty" yaml:"database,omitempty"`
	Filename string            `json:"filename,omitempty" yaml:"filename,omitempty"`
	Options  map[string]string `json:"options,omitempty" yaml:"options,omitempty"`
}

// IsZero reports whether no parameter is set.
func (p ConnParams) IsZero() bool {
	return p.URL == "" && p.Host == "" && p.Port == 0 && p.User == "" &&
		p.Password == "" && p.Database == "" && p.Filename == "" && len(p.Options) == 0
}

// Merge returns p overlaid with every non-zero field of override. Options are
// merged key by key.
func (p ConnParams) Merge(override ConnParams) ConnParams {
	out := p
	if override.URL != "" {
		out.URL = override.URL
	}
	if override.Host != "" {
		out.Host = override.Host
	}
	if override.Port != 0 {
		out.Port = override.Port
	}
	if override.User != "" {
		out.User = override.User
	}
	if override.Password != "" {
		out.Password = override.Password
	}
	if override.Database != "" {
		out.Database = override.Database
	}
	if override.Filename != "" {
		out.Filename = override.Filename
	}
	if len(p.Options) > 0 || len(override.Options) > 0 {
		out.Options = make(map[string]string, len(p.Options)+len(override.Options))
		maps.Copy(out.Options, p.Options)
		maps.Copy(out.Options, override.Options)
	}
	return out
}

// Duration is a time.Duration that decodes from "5m"-style strings or from
// integer nanoseconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var v any
	if err := value.Decode(&v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) set(v any) error {
	switch val := v.(type) {
	case float64:
		*d = Duration(time.Duration(val))
	case int:
		*d = Duration(time.Duration(val))
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		*d = Duration(parsed)
	case nil:
		*d = 0
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

// PoolConfig tunes the database/sql pool of a driver client. Zero values fall
// back to the client defaults.
type PoolConfig struct {
	MaxOpen     int      `json:"max_open,omitempty" yaml:"max_open,omitempty"`
	MaxIdle     int      `json:"max_idle,omitempty" yaml:"max_idle,omitempty"`
	MaxLifetime Duration `json:"max_lifetime,omitempty" yaml:"max_lifetime,omitempty"`
	MaxIdleTime Duration `json:"max_idle_time,omitempty" yaml:"max_idle_time,omitempty"`
}

// ReplicaConfig is one replica slot. Pool and Debug override the top-level
// values when set.
type ReplicaConfig struct {
	Connection ConnParams  `json:"connection" yaml:"connection"`
	Pool       *PoolConfig `json:"pool,omitempty" yaml:"pool,omitempty"`
	Debug      *bool       `json:"debug,omitempty" yaml:"debug,omitempty"`
}

type ReplicasConfig struct {
	Write ReplicaConfig   `json:"write" yaml:"write"`
	Read  []ReplicaConfig `json:"read" yaml:"read"`
}

// ConnectionConfig describes one named connection.
type ConnectionConfig struct {
	Client      string          `json:"client" yaml:"client"`
	Connection  ConnParams      `json:"connection" yaml:"connection"`
	Replicas    *ReplicasConfig `json:"replicas,omitempty" yaml:"replicas,omitempty"`
	HealthCheck bool            `json:"health_check,omitempty" yaml:"health_check,omitempty"`
	Debug       bool            `json:"debug,omitempty" yaml:"debug,omitempty"`
	Pool        PoolConfig      `json:"pool,omitempty" yaml:"pool,omitempty"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
}

// NodeConfig is the fully merged configuration of a single physical client.
type NodeConfig struct {
	Client     string
	Connection ConnParams
	Pool       PoolConfig
	Debug      bool
}

// HasReadReplicas reports whether reads are served by dedicated replicas.
func (c ConnectionConfig) HasReadReplicas() bool {
	return c.Replicas != nil && len(c.Replicas.Read) > 0
}

// WriteConfig merges the top-level connection with replicas.write.
func (c ConnectionConfig) WriteConfig() NodeConfig {
	if c.Replicas == nil {
		return c.node(ReplicaConfig{})
	}
	return c.node(c.Replicas.Write)
}

// ReadConfigs merges the top-level connection with each replicas.read entry.
// It returns nil when no read replicas are configured.
func (c ConnectionConfig) ReadConfigs() []NodeConfig {
	if !c.HasReadReplicas() {
		return nil
	}
	out := make([]NodeConfig, 0, len(c.Replicas.Read))
	for _, r := range c.Replicas.Read {
		out = append(out, c.node(r))
	}
	return out
}

func (c ConnectionConfig) node(slot ReplicaConfig) NodeConfig {
	n := NodeConfig{
		Client:     c.Client,
		Connection: c.Connection.Merge(slot.Connection),
		Pool:       c.Pool,
		Debug:      c.Debug,
	}
	if slot.Pool != nil {
		n.Pool = *slot.Pool
	}
	if slot.Debug != nil {
		n.Debug = *slot.Debug
	}
	return n
}

// ExpandCompoundURL splits a "writer;reader;reader" url into the primary
// connection and read replicas.
func (c ConnectionConfig) ExpandCompoundURL() ConnectionConfig {
	if !strings.Contains(c.Connection.URL, ";") {
		return c
	}

	var dsns []string
	for _, dsn := range strings.Split(c.Connection.URL, ";") {
		if dsn = strings.TrimSpace(dsn); dsn != "" {
			dsns = append(dsns, dsn)
		}
	}
	if len(dsns) == 0 {
		return c
	}

	c.Connection.URL = dsns[0]
	if len(dsns) > 1 {
		replicas := &ReplicasConfig{}
		if c.Replicas != nil {
			replicas.Write = c.Replicas.Write
			replicas.Read = append(replicas.Read, c.Replicas.Read...)
		}
		for _, dsn := range dsns[1:] {
			replicas.Read = append(replicas.Read, ReplicaConfig{Connection: ConnParams{URL: dsn}})
		}
		c.Replicas = replicas
	}
	return c
}

// Validate checks the merged write parameters, so replicas.write may carry
// what the top-level connection leaves out.
func (c ConnectionConfig) Validate() error {
	if c.Client == "" {
		return fmt.Errorf("connection client is required")
	}
	if c.WriteConfig().Connection.IsZero() {
		return fmt.Errorf("connection parameters are required")
	}
	if c.Replicas != nil {
		for i, r := range c.Replicas.Read {
			if r.Connection.IsZero() {
				return fmt.Errorf("read replica %d has no connection parameters", i)
			}
		}
	}
	return nil
}
