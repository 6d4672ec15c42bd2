package transmission

import (
	"fmt"

	"github.com/rtivolle/emhacs/internal/telemetry"
)

// ViewKind tags the sensor projection an EntityView renders.
type ViewKind string

const (
	ViewBattery       ViewKind = "battery"
	ViewChargerStatus ViewKind = "charger_status"
	ViewChargerPower  ViewKind = "charger_power"
)

// EntityView is a read-only projection of one sensor over the
// coordinator's current snapshot. Views hold only identity; all state is
// read from the snapshot passed in at render time.
type EntityView struct {
	Kind     ViewKind
	GID      int
	Name     string // sensor display name
	EntityID string // stable slug used in topics and payload keys
}

// BuildViews derives the sensor views for the tracked entities: one
// battery sensor per vehicle, a status and a power sensor per charger.
func BuildViews(vehicles, chargers []telemetry.TrackedEntity) []EntityView {
	views := make([]EntityView, 0, len(vehicles)+2*len(chargers))
	for _, vehicle := range vehicles {
		views = append(views, EntityView{
			Kind:     ViewBattery,
			GID:      vehicle.GID,
			Name:     vehicle.Name,
			EntityID: fmt.Sprintf("vehicle_%d_battery", vehicle.GID),
		})
	}
	for _, charger := range chargers {
		views = append(views,
			EntityView{
				Kind:     ViewChargerStatus,
				GID:      charger.GID,
				Name:     fmt.Sprintf("%s Charger Status", charger.Name),
				EntityID: fmt.Sprintf("charger_%d_status", charger.GID),
			},
			EntityView{
				Kind:     ViewChargerPower,
				GID:      charger.GID,
				Name:     fmt.Sprintf("%s Charging Power", charger.Name),
				EntityID: fmt.Sprintf("charger_%d_power", charger.GID),
			},
		)
	}
	return views
}

// Value renders the view's state from a snapshot. Missing data renders as
// nil, never as zero.
func (v EntityView) Value(snap *telemetry.Snapshot) interface{} {
	if snap == nil {
		return nil
	}
	switch v.Kind {
	case ViewBattery:
		status := snap.Vehicles[v.GID]
		if status == nil || status.BatteryLevel == nil {
			return nil
		}
		return *status.BatteryLevel
	case ViewChargerStatus:
		status := snap.Chargers[v.GID]
		if status == nil {
			return nil
		}
		return telemetry.ChargerState(status)
	case ViewChargerPower:
		kw := snap.ChargerPowerKW[v.GID]
		if kw == nil {
			return nil
		}
		return *kw
	}
	return nil
}

// Attributes renders the view's extra state attributes from a snapshot.
func (v EntityView) Attributes(snap *telemetry.Snapshot, assumedVoltage float64) map[string]interface{} {
	if snap == nil {
		return nil
	}
	switch v.Kind {
	case ViewBattery:
		status := snap.Vehicles[v.GID]
		if status == nil {
			return nil
		}
		return status.Attributes
	case ViewChargerStatus:
		status := snap.Chargers[v.GID]
		if status == nil {
			return nil
		}
		return map[string]interface{}{
			"charger_on":        status.ChargerOn,
			"message":           status.Message,
			"icon_label":        status.IconLabel,
			"icon_detail_text":  status.IconDetailText,
			"fault_text":        status.FaultText,
			"charging_rate":     status.ChargingRate,
			"max_charging_rate": status.MaxChargingRate,
			"load_gid":          status.LoadGID,
			"pro_control_code":  status.ProControlCode,
			"debug_code":        status.DebugCode,
			"live_power_kw":     snap.ChargerPowerKW[v.GID],
		}
	case ViewChargerPower:
		status := snap.Chargers[v.GID]
		if status == nil {
			return nil
		}
		return map[string]interface{}{
			"charger_on":             status.ChargerOn,
			"status":                 status.Status,
			"raw_charging_rate_amps": status.ChargingRate,
			"max_charging_rate":      status.MaxChargingRate,
			"assumed_voltage":        assumedVoltage,
			"live_power_kw":          snap.ChargerPowerKW[v.GID],
		}
	}
	return nil
}
