package config

import (
	"fmt"
	"strings"
	"time"
)

// Power source preference for the charger power sensor.
const (
	// PowerSourceMeasurement prefers the 1-second usage measurement and
	// falls back to the amps-derived estimate when the measurement is
	// unavailable.
	PowerSourceMeasurement = "measurement"
	// PowerSourceAmps always derives power from the reported charging
	// rate and the assumed voltage.
	PowerSourceAmps = "amps"
)

// Config holds all configuration options for the emhacs daemon
type Config struct {
	// Emporia Configuration
	Email    string `json:"email"`    // Emporia account email
	Password string `json:"password"` // Emporia account password

	// MQTT Configuration
	MQTTUrl         string `json:"mqtt_url"`         // MQTT URL (supports both WebSocket and standard MQTT)
	DiscoveryPrefix string `json:"discovery_prefix"` // Home Assistant discovery prefix

	// Device Configuration
	DeviceID string `json:"device_id"` // Unique device identifier

	// Application Configuration
	Verbose bool `json:"verbose"` // Enable verbose logging

	// Polling Configuration
	PollInterval        time.Duration `json:"poll_interval"`         // Emporia poll cycle interval
	MQTTInterval        time.Duration `json:"mqtt_interval"`         // Minimum interval between MQTT state publishes
	ForceUpdateInterval time.Duration `json:"force_update_interval"` // Re-publish unchanged state at this interval (0 = disabled)
	APITimeout          int           `json:"api_timeout"`           // Emporia API request timeout in seconds (default: 10)

	// Power estimation
	AssumedVoltage float64 `json:"assumed_voltage"` // Voltage used to convert charger amps to kW
	PowerSource    string  `json:"power_source"`    // "measurement" or "amps"
}

// GetDefaultConfig returns a configuration with sensible defaults
func GetDefaultConfig() *Config {
	return &Config{
		DiscoveryPrefix: "homeassistant",
		DeviceID:        "", // Will be auto-generated
		Verbose:         false,

		PollInterval:        UpdateInterval,
		MQTTInterval:        MQTTTransmitInterval,
		ForceUpdateInterval: 0,
		APITimeout:          int(EmporiaTimeout / time.Second),

		AssumedVoltage: AssumedVoltage,
		PowerSource:    PowerSourceMeasurement,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Email == "" || c.Password == "" {
		return fmt.Errorf("emporia email and password are required")
	}

	if c.DeviceID == "" {
		return fmt.Errorf("device ID is required")
	}

	// MQTT validation - support both WebSocket and standard MQTT protocols
	if c.MQTTUrl != "" {
		if !strings.HasPrefix(c.MQTTUrl, "ws://") &&
			!strings.HasPrefix(c.MQTTUrl, "wss://") &&
			!strings.HasPrefix(c.MQTTUrl, "mqtt://") &&
			!strings.HasPrefix(c.MQTTUrl, "mqtts://") {
			return fmt.Errorf("MQTT URL must use supported protocol (ws://, wss://, mqtt://, or mqtts://)")
		}
	}

	if c.PowerSource != PowerSourceMeasurement && c.PowerSource != PowerSourceAmps {
		return fmt.Errorf("power source must be %q or %q", PowerSourceMeasurement, PowerSourceAmps)
	}

	// Set defaults for invalid values
	if c.APITimeout <= 0 {
		c.APITimeout = int(EmporiaTimeout / time.Second)
	}
	if c.PollInterval <= 0 {
		c.PollInterval = UpdateInterval
	}
	if c.AssumedVoltage <= 0 {
		c.AssumedVoltage = AssumedVoltage
	}

	return nil
}

// HasMQTT returns true if MQTT is configured
func (c *Config) HasMQTT() bool {
	return c.MQTTUrl != ""
}

// GetAPITimeout returns the API timeout as a duration
func (c *Config) GetAPITimeout() time.Duration {
	return time.Duration(c.APITimeout) * time.Second
}
