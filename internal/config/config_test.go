package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "MONGO_URI", "MONGO_DB", "MQTT_BROKER", "LOG_LEVEL", "ALERT_SCAN_SECONDS"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "recon", cfg.MongoDB)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTTBroker)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 300, cfg.AlertScanSeconds)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MONGO_DB", "recon_test")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ALERT_SCAN_SECONDS", "60")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "recon_test", cfg.MongoDB)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 60, cfg.AlertScanSeconds)
}

func TestLoadRejectsBadScanInterval(t *testing.T) {
	t.Setenv("ALERT_SCAN_SECONDS", "not-a-number")
	assert.Equal(t, 300, Load().AlertScanSeconds)

	t.Setenv("ALERT_SCAN_SECONDS", "-5")
	assert.Equal(t, 300, Load().AlertScanSeconds)
}
