package telemetry

import "fmt"

// ChargerName resolves a charger's display name from its device-listing
// entry: display name, then device name, then manufacturer id, then a
// generic fallback. Chargers' human-readable names live on the device
// listing, not on the status payload, so every view shares this one
// lookup.
func ChargerName(device *Device, chargerGID int) string {
	if device != nil {
		if device.DisplayName != "" {
			return device.DisplayName
		}
		if device.DeviceName != "" {
			return device.DeviceName
		}
		if device.ManufacturerID != "" {
			return device.ManufacturerID
		}
	}
	return fmt.Sprintf("Charger %d", chargerGID)
}
