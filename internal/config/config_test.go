package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := GetDefaultConfig()
	cfg.Email = "user@example.com"
	cfg.Password = "hunter2"
	cfg.DeviceID = "emporia_vue"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid defaults", mutate: func(c *Config) {}, wantErr: false},
		{name: "missing email", mutate: func(c *Config) { c.Email = "" }, wantErr: true},
		{name: "missing password", mutate: func(c *Config) { c.Password = "" }, wantErr: true},
		{name: "missing device id", mutate: func(c *Config) { c.DeviceID = "" }, wantErr: true},
		{name: "mqtt url ok", mutate: func(c *Config) { c.MQTTUrl = "mqtt://broker:1883" }, wantErr: false},
		{name: "mqtt websocket ok", mutate: func(c *Config) { c.MQTTUrl = "wss://broker/mqtt" }, wantErr: false},
		{name: "mqtt bad scheme", mutate: func(c *Config) { c.MQTTUrl = "http://broker" }, wantErr: true},
		{name: "bad power source", mutate: func(c *Config) { c.PowerSource = "guess" }, wantErr: true},
		{name: "amps power source ok", mutate: func(c *Config) { c.PowerSource = PowerSourceAmps }, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateRepairsInvalidValues(t *testing.T) {
	cfg := validConfig()
	cfg.APITimeout = -1
	cfg.PollInterval = 0
	cfg.AssumedVoltage = 0

	require.NoError(t, cfg.Validate())
	assert.Equal(t, int(EmporiaTimeout/time.Second), cfg.APITimeout)
	assert.Equal(t, UpdateInterval, cfg.PollInterval)
	assert.Equal(t, AssumedVoltage, cfg.AssumedVoltage)
}

func TestGetAPITimeout(t *testing.T) {
	cfg := validConfig()
	cfg.APITimeout = 7
	assert.Equal(t, 7*time.Second, cfg.GetAPITimeout())
}

func TestDefaultAPITimeoutMatchesConstant(t *testing.T) {
	assert.Equal(t, EmporiaTimeout, GetDefaultConfig().GetAPITimeout())
}

func TestHasMQTT(t *testing.T) {
	cfg := validConfig()
	assert.False(t, cfg.HasMQTT())
	cfg.MQTTUrl = "mqtt://broker:1883"
	assert.True(t, cfg.HasMQTT())
}
