package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("/tmp/hermes_broker_nonexistent_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.AdminAddr)
	assert.Equal(t, 10, cfg.Server.AcceptTimeout)
	assert.Equal(t, "disabled", cfg.Auth.Mode)
	assert.Equal(t, []string{"http://127.0.0.1:2379"}, cfg.Etcd.Endpoints)
	assert.Equal(t, "/hermes/brokers", cfg.Etcd.BrokerPrefix)
	assert.True(t, cfg.Cluster.Standalone)
	assert.Equal(t, 0, cfg.Cluster.PublishOnlyDelayMS)
	assert.Equal(t, 15000, cfg.Cluster.PublishConsumeDelayMS)
	assert.Equal(t, 30000, cfg.Cluster.OtherDelayMS)
	assert.Equal(t, 64, cfg.EventBus.SubscriberBuffer)
}

func TestLoad_YAMLFile(t *testing.T) {
	yaml := `
server:
  admin_addr: "0.0.0.0:8080"
  accept_timeout_seconds: 5
auth:
  mode: "jwt"
  secret: "a-secret-at-least-32-characters-long"
  issuer: "hermes"
etcd:
  endpoints:
    - "http://etcd1:2379"
    - "http://etcd2:2379"
  broker_prefix: "/custom/brokers"
cluster:
  standalone: false
  group: "prod"
event_bus:
  subscriber_buffer: 128
`
	tmp := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmp, []byte(yaml), 0644))

	cfg, err := Load(tmp)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.AdminAddr)
	assert.Equal(t, 5, cfg.Server.AcceptTimeout)
	assert.Equal(t, "jwt", cfg.Auth.Mode)
	assert.Equal(t, "hermes", cfg.Auth.Issuer)
	assert.Equal(t, []string{"http://etcd1:2379", "http://etcd2:2379"}, cfg.Etcd.Endpoints)
	assert.Equal(t, "/custom/brokers", cfg.Etcd.BrokerPrefix)
	assert.False(t, cfg.Cluster.Standalone)
	assert.Equal(t, "prod", cfg.Cluster.Group)
	assert.Equal(t, 128, cfg.EventBus.SubscriberBuffer)
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(tmp, []byte(":::not yaml"), 0644))

	_, err := Load(tmp)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	envVars := map[string]string{
		"HERMES_BROKER_ADMIN_ADDR":        "127.0.0.1:7070",
		"HERMES_BROKER_ACCEPT_TIMEOUT":    "20",
		"HERMES_BROKER_AUTH_MODE":         "jwt",
		"HERMES_BROKER_AUTH_SECRET":       "env-secret-at-least-32-characters",
		"HERMES_BROKER_ETCD_ENDPOINTS":    "http://e1:2379,http://e2:2379",
		"HERMES_BROKER_ETCD_PREFIX":       "/env/brokers",
		"HERMES_BROKER_CLUSTER_STANDALONE": "false",
		"HERMES_BROKER_EVENTBUS_BUFFER":   "256",
	}
	for k, v := range envVars {
		t.Setenv(k, v)
	}

	cfg, err := Load("/tmp/hermes_broker_nonexistent_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7070", cfg.Server.AdminAddr)
	assert.Equal(t, 20, cfg.Server.AcceptTimeout)
	assert.Equal(t, "jwt", cfg.Auth.Mode)
	assert.Equal(t, []string{"http://e1:2379", "http://e2:2379"}, cfg.Etcd.Endpoints)
	assert.Equal(t, "/env/brokers", cfg.Etcd.BrokerPrefix)
	assert.False(t, cfg.Cluster.Standalone)
	assert.Equal(t, 256, cfg.EventBus.SubscriberBuffer)
}

func TestLoad_EnvOverrideInvalidAcceptTimeout(t *testing.T) {
	t.Setenv("HERMES_BROKER_ACCEPT_TIMEOUT", "not_a_number")
	cfg, err := Load("/tmp/hermes_broker_nonexistent_config.yaml")
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Server.AcceptTimeout)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	yaml := `
server:
  admin_addr: "from-yaml:9090"
`
	tmp := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmp, []byte(yaml), 0644))

	t.Setenv("HERMES_BROKER_ADMIN_ADDR", "from-env:9090")

	cfg, err := Load(tmp)
	require.NoError(t, err)
	assert.Equal(t, "from-env:9090", cfg.Server.AdminAddr)
}

func TestAcceptTimeoutDuration_DefaultsWhenUnset(t *testing.T) {
	sc := ServerConfig{}
	assert.Equal(t, 10*time.Second, sc.AcceptTimeoutDuration())
}
