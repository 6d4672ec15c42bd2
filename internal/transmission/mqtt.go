package transmission

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/rtivolle/emhacs/internal/mqtt"
	"github.com/rtivolle/emhacs/internal/telemetry"
)

// MQTTTransmitter projects snapshots into Home Assistant MQTT discovery
// sensors: per-entity discovery configs, a shared state topic, and an
// availability topic the scheduler flips when poll cycles start failing.
type MQTTTransmitter struct {
	client           *mqtt.Client
	deviceID         string
	discoveryPrefix  string
	views            []EntityView
	assumedVoltage   float64
	logger           *logrus.Logger
	publishedSensors map[string]bool // Tracks published discovery configs
}

// HADiscoveryConfig represents Home Assistant MQTT discovery configuration
type HADiscoveryConfig struct {
	Name                   string   `json:"name"`
	UniqueID               string   `json:"unique_id"`
	StateTopic             string   `json:"state_topic"`
	ValueTemplate          string   `json:"value_template,omitempty"`
	DeviceClass            string   `json:"device_class,omitempty"`
	UnitOfMeasurement      string   `json:"unit_of_measurement,omitempty"`
	StateClass             string   `json:"state_class,omitempty"`
	Icon                   string   `json:"icon,omitempty"`
	Device                 HADevice `json:"device"`
	AvailabilityTopic      string   `json:"availability_topic"`
	JSONAttributesTopic    string   `json:"json_attributes_topic,omitempty"`
	JSONAttributesTemplate string   `json:"json_attributes_template,omitempty"`
}

// HADevice represents the device information for Home Assistant
type HADevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
}

// NewMQTTTransmitter creates a new MQTT transmitter for the given views
func NewMQTTTransmitter(client *mqtt.Client, deviceID, discoveryPrefix string, views []EntityView, assumedVoltage float64, logger *logrus.Logger) *MQTTTransmitter {
	return &MQTTTransmitter{
		client:           client,
		deviceID:         deviceID,
		discoveryPrefix:  discoveryPrefix,
		views:            views,
		assumedVoltage:   assumedVoltage,
		logger:           logger,
		publishedSensors: make(map[string]bool),
	}
}

// Transmit publishes discovery configs (once per view), the state payload
// for the snapshot, and marks the bridge available.
func (t *MQTTTransmitter) Transmit(snap *telemetry.Snapshot) error {
	if snap == nil {
		return nil
	}

	if err := t.publishDiscoveryConfigs(); err != nil {
		return err
	}

	payload, err := t.buildStatePayload(snap)
	if err != nil {
		return fmt.Errorf("failed to build state payload: %w", err)
	}

	if err := t.client.Publish(t.client.GetStateTopic(), payload, false); err != nil {
		return fmt.Errorf("failed to publish state: %w", err)
	}

	return t.client.PublishAvailability(true)
}

// SetAvailability publishes the bridge availability flag. The scheduler
// calls this with false after a cycle-fatal refresh failure so Home
// Assistant marks the sensors unavailable, and with true on recovery.
func (t *MQTTTransmitter) SetAvailability(online bool) error {
	return t.client.PublishAvailability(online)
}

// IsConnected reports whether the underlying MQTT connection is up
func (t *MQTTTransmitter) IsConnected() bool {
	return t.client.IsConnected()
}

// discoveryConfig builds the HA discovery config for one view.
func (t *MQTTTransmitter) discoveryConfig(view EntityView) HADiscoveryConfig {
	stateTopic := t.client.GetStateTopic()
	config := HADiscoveryConfig{
		Name:                   view.Name,
		UniqueID:               fmt.Sprintf("%s_%s", t.deviceID, view.EntityID),
		StateTopic:             stateTopic,
		ValueTemplate:          fmt.Sprintf("{{ value_json.%s }}", view.EntityID),
		AvailabilityTopic:      t.client.GetAvailabilityTopic(),
		Device:                 t.deviceFor(view),
		JSONAttributesTopic:    stateTopic,
		JSONAttributesTemplate: fmt.Sprintf("{{ value_json.%s_attributes | default({}) | tojson }}", view.EntityID),
	}

	switch view.Kind {
	case ViewBattery:
		config.DeviceClass = "battery"
		config.StateClass = "measurement"
		config.UnitOfMeasurement = "%"
	case ViewChargerStatus:
		config.Icon = "mdi:ev-station"
	case ViewChargerPower:
		config.DeviceClass = "power"
		config.StateClass = "measurement"
		config.UnitOfMeasurement = "kW"
		config.Icon = "mdi:flash"
	}

	return config
}

// deviceFor groups a view under its vehicle or charger HA device.
func (t *MQTTTransmitter) deviceFor(view EntityView) HADevice {
	if view.Kind == ViewBattery {
		return HADevice{
			Identifiers:  []string{fmt.Sprintf("emporia_vue_%s_vehicle_%d", t.deviceID, view.GID)},
			Name:         view.Name,
			Model:        "Vehicle",
			Manufacturer: "Emporia",
		}
	}
	return HADevice{
		Identifiers:  []string{fmt.Sprintf("emporia_vue_%s_charger_%d", t.deviceID, view.GID)},
		Name:         fmt.Sprintf("Charger %d", view.GID),
		Model:        "EV Charger",
		Manufacturer: "Emporia",
	}
}

// publishDiscoveryConfigs ensures every view has its discovery config
// published. Configs are retained and only sent once per process.
func (t *MQTTTransmitter) publishDiscoveryConfigs() error {
	for _, view := range t.views {
		uniqueID := fmt.Sprintf("%s_%s", t.deviceID, view.EntityID)
		if t.publishedSensors[uniqueID] {
			continue
		}

		config := t.discoveryConfig(view)
		topic := fmt.Sprintf("%s/sensor/emporia_vue_%s/%s/config",
			t.discoveryPrefix, t.deviceID, view.EntityID)

		payload, err := json.Marshal(config)
		if err != nil {
			return fmt.Errorf("failed to marshal discovery config for %s: %w", view.Name, err)
		}
		if err := t.client.Publish(topic, payload, true); err != nil {
			t.logger.WithError(err).WithField("sensor", view.Name).Error("Failed to publish discovery config")
			continue // retry on the next transmit
		}

		t.logger.WithFields(logrus.Fields{
			"sensor_name": view.Name,
			"entity_id":   view.EntityID,
			"topic":       topic,
		}).Info("Published sensor discovery config")

		t.publishedSensors[uniqueID] = true
	}
	return nil
}

// buildStatePayload renders every view's value and attributes into the
// shared state JSON. Absent values are omitted rather than zeroed.
func (t *MQTTTransmitter) buildStatePayload(snap *telemetry.Snapshot) ([]byte, error) {
	state := make(map[string]interface{}, 2*len(t.views))
	for _, view := range t.views {
		if value := view.Value(snap); value != nil {
			state[view.EntityID] = value
		}
		if attrs := view.Attributes(snap, t.assumedVoltage); len(attrs) > 0 {
			state[view.EntityID+"_attributes"] = attrs
		}
	}
	return json.Marshal(state)
}
