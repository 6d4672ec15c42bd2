package telemetry

import "time"

// EntityKind tags a tracked entity as a vehicle or an EV charger.
type EntityKind string

const (
	KindVehicle EntityKind = "vehicle"
	KindCharger EntityKind = "charger"
)

// TrackedEntity identifies one vehicle or charger monitored for the
// lifetime of a session. Built once from the account's device listing and
// immutable afterwards.
type TrackedEntity struct {
	GID  int        `json:"gid"`
	Kind EntityKind `json:"kind"`
	Name string     `json:"name"`
}

// Vehicle is a vehicle reference from the Emporia device listing.
type Vehicle struct {
	VehicleGID  int    `json:"vehicleGid"`
	Vin         string `json:"vin"`
	DisplayName string `json:"displayName"`
	Model       string `json:"model"`
	Year        string `json:"year"`
}

// Device is an entry from the Emporia device listing. Chargers are
// devices with the EVCharger flag set; their human-readable names live
// here rather than on the charger status payload.
type Device struct {
	DeviceGID      int    `json:"deviceGid"`
	DisplayName    string `json:"displayName"`
	DeviceName     string `json:"deviceName"`
	ManufacturerID string `json:"manufacturerDeviceId"`
	Model          string `json:"model"`
	Firmware       string `json:"firmware"`
	EVCharger      bool   `json:"evCharger"`
}

// VehicleStatus is the per-vehicle state reported by Emporia. Numeric
// values are pointers so a missing reading (nil) is distinguishable from
// zero. Replaced wholesale on each successful fetch; the previous value
// is retained when a fetch fails.
type VehicleStatus struct {
	VehicleGID    int      `json:"vehicleGid"`
	BatteryLevel  *float64 `json:"batteryLevel"`  // 0-100, nil if the vehicle did not report
	VehicleState  string   `json:"vehicleState"`  // e.g. "PARKED"
	ChargingState string   `json:"chargingState"` // e.g. "CHARGING"

	// Additional reported attributes, passed through for display.
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// ChargerStatus is the per-charger state from the batch device-status
// endpoint.
type ChargerStatus struct {
	DeviceGID       int      `json:"deviceGid"`
	ChargerOn       bool     `json:"chargerOn"`
	Status          string   `json:"status"`
	Message         string   `json:"message"`
	IconLabel       string   `json:"iconLabel"`
	IconDetailText  string   `json:"iconDetailText"`
	FaultText       string   `json:"faultText"`
	ChargingRate    *float64 `json:"chargingRate"` // amps, nil if not reported
	MaxChargingRate float64  `json:"maxChargingRate"`
	LoadGID         int      `json:"loadGid"`
	ProControlCode  string   `json:"proControlCode"`
	DebugCode       string   `json:"debugCode"`
}

// ChannelUsage is one channel's consumption over the usage interval.
type ChannelUsage struct {
	Name  string   `json:"name"`
	Usage *float64 `json:"usage"` // kWh over the interval, nil when the channel reported nothing
}

// DeviceUsage is the usage-endpoint result for a single device.
type DeviceUsage struct {
	DeviceGID int            `json:"deviceGid"`
	Channels  []ChannelUsage `json:"channelUsages"`
}

// ChannelReadings extracts the raw per-channel kWh values.
func (u *DeviceUsage) ChannelReadings() []*float64 {
	if u == nil {
		return nil
	}
	readings := make([]*float64, 0, len(u.Channels))
	for _, ch := range u.Channels {
		readings = append(readings, ch.Usage)
	}
	return readings
}

// Snapshot is the immutable aggregate produced by one successful poll
// cycle. It is published atomically: readers either see the previous
// snapshot or this one in full, never a mix. Maps are never mutated after
// publication.
type Snapshot struct {
	Vehicles       map[int]*VehicleStatus `json:"vehicles"`
	Chargers       map[int]*ChargerStatus `json:"chargers"`
	ChargerPowerKW map[int]*float64       `json:"charger_power_kw"`
	FetchedAt      time.Time              `json:"fetched_at"`
}
