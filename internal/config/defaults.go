package config

import "time"

// Central place for all application-wide timing constants and other defaults.
// Changing a value here immediately affects all components that import
// github.com/rtivolle/emhacs/internal/config.

const (
	// Polling / transmission intervals
	UpdateInterval       = 60 * time.Second // Poll the Emporia cloud API; too frequent hits Emporia rate limits
	MQTTTransmitInterval = 60 * time.Second // Publish data to MQTT

	// Operation time-outs (to avoid blocking goroutines)
	EmporiaTimeout   = 10 * time.Second // Emporia API call
	LivePowerTimeout = 8 * time.Second  // Per-charger 1-second usage call
	MQTTTimeout      = 5 * time.Second  // MQTT publish

	// StatusCacheTTL coalesces near-simultaneous charger batch-status
	// fetches within one poll cycle. It must stay well below
	// UpdateInterval so it never masks genuinely new data across ticks.
	StatusCacheTTL = 2 * time.Second

	// AssumedVoltage converts a charger's reported amps to kW when no
	// direct power measurement is available (split-phase ~240V).
	AssumedVoltage = 240.0

	// LivePowerScaleSeconds is the usage-endpoint interval: Emporia
	// reports kWh consumed over the last second.
	LivePowerScaleSeconds = 1.0
)
