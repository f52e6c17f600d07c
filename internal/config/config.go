// Package config loads the broker's configuration from a YAML file with
// HERMES_BROKER_-prefixed environment variable overrides, following the
// controller and server packages' own config.Load shape.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level broker configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Admin    AdminConfig    `yaml:"admin"`
	Etcd     EtcdConfig     `yaml:"etcd"`
	Cluster  ClusterConfig  `yaml:"cluster"`
	EventBus EventBusConfig `yaml:"event_bus"`
}

// AdminConfig carries the HMAC access/secret key pair the admin HTTP
// surface (internal/adminapi) verifies incoming requests against. An empty
// AccessKey disables signature verification — bootstrap mode for local
// development, mirroring the teacher's own HMAC-credential bootstrap path.
type AdminConfig struct {
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// ServerConfig holds the admin HTTP surface's listen address and the
// setup-accept timeout bounding step-2's auth call (spec.md §5).
type ServerConfig struct {
	AdminAddr     string `yaml:"admin_addr"`
	AcceptTimeout int    `yaml:"accept_timeout_seconds"`
}

// AuthConfig selects the AuthenticationService implementation. Mode
// "disabled" uses the fixed mock principal; mode "jwt" verifies bearer
// tokens with Secret/Issuer.
type AuthConfig struct {
	Mode   string `yaml:"mode"`
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// EtcdConfig configures the etcd-backed broker membership watch.
type EtcdConfig struct {
	Endpoints    []string `yaml:"endpoints"`
	BrokerPrefix string   `yaml:"broker_prefix"`
	Username     string   `yaml:"username"`
	Password     string   `yaml:"password"`
}

// ClusterConfig toggles standalone mode and overrides the role-staggered
// announce delays (spec.md §4.5), mainly for test tuning.
type ClusterConfig struct {
	Standalone            bool `yaml:"standalone"`
	Group                 string `yaml:"group"`
	InterfaceName         string `yaml:"interface_name"`
	Version               string `yaml:"version"`
	PublishOnlyDelayMS    int  `yaml:"publish_only_delay_ms"`
	PublishConsumeDelayMS int  `yaml:"publish_consume_delay_ms"`
	OtherDelayMS          int  `yaml:"other_delay_ms"`
}

// EventBusConfig bounds the per-subscriber buffer depth (spec.md §4.4).
type EventBusConfig struct {
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

// AcceptTimeoutDuration converts Server.AcceptTimeout (seconds) to a
// time.Duration, defaulting to 10s when unset.
func (c *ServerConfig) AcceptTimeoutDuration() time.Duration {
	if c.AcceptTimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.AcceptTimeout) * time.Second
}

// Load reads configuration from a YAML file (if it exists) and applies
// environment variable overrides. A missing file is not an error — the
// service starts with built-in defaults for zero-config local development,
// matching the controller and server packages' own Load.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			AdminAddr:     "127.0.0.1:9090",
			AcceptTimeout: 10,
		},
		Auth: AuthConfig{
			Mode: "disabled",
		},
		Etcd: EtcdConfig{
			Endpoints:    []string{"http://127.0.0.1:2379"},
			BrokerPrefix: "/hermes/brokers",
		},
		Cluster: ClusterConfig{
			Standalone:            true,
			Group:                 "default",
			InterfaceName:         "hermes-broker",
			Version:               "1.0.0",
			PublishOnlyDelayMS:    0,
			PublishConsumeDelayMS: 15000,
			OtherDelayMS:          30000,
		},
		EventBus: EventBusConfig{
			SubscriberBuffer: 64,
		},
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Server.AcceptTimeout <= 0 {
		cfg.Server.AcceptTimeout = 10
	}
	if cfg.EventBus.SubscriberBuffer <= 0 {
		cfg.EventBus.SubscriberBuffer = 64
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HERMES_BROKER_ADMIN_ADDR"); v != "" {
		cfg.Server.AdminAddr = v
	}
	if v := os.Getenv("HERMES_BROKER_ACCEPT_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.AcceptTimeout = n
		}
	}
	if v := os.Getenv("HERMES_BROKER_AUTH_MODE"); v != "" {
		cfg.Auth.Mode = v
	}
	if v := os.Getenv("HERMES_BROKER_AUTH_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
	if v := os.Getenv("HERMES_BROKER_AUTH_ISSUER"); v != "" {
		cfg.Auth.Issuer = v
	}
	if v := os.Getenv("HERMES_BROKER_ADMIN_ACCESS_KEY"); v != "" {
		cfg.Admin.AccessKey = v
	}
	if v := os.Getenv("HERMES_BROKER_ADMIN_SECRET_KEY"); v != "" {
		cfg.Admin.SecretKey = v
	}
	if v := os.Getenv("HERMES_BROKER_ETCD_ENDPOINTS"); v != "" {
		cfg.Etcd.Endpoints = strings.Split(v, ",")
	}
	if v := os.Getenv("HERMES_BROKER_ETCD_PREFIX"); v != "" {
		cfg.Etcd.BrokerPrefix = v
	}
	if v := os.Getenv("HERMES_BROKER_ETCD_USERNAME"); v != "" {
		cfg.Etcd.Username = v
	}
	if v := os.Getenv("HERMES_BROKER_ETCD_PASSWORD"); v != "" {
		cfg.Etcd.Password = v
	}
	if v := os.Getenv("HERMES_BROKER_CLUSTER_STANDALONE"); v != "" {
		cfg.Cluster.Standalone = v == "true" || v == "1"
	}
	if v := os.Getenv("HERMES_BROKER_CLUSTER_GROUP"); v != "" {
		cfg.Cluster.Group = v
	}
	if v := os.Getenv("HERMES_BROKER_EVENTBUS_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EventBus.SubscriberBuffer = n
		}
	}
}
