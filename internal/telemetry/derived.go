package telemetry

import "math"

// EstimatePowerFromAmps converts a charger's reported charging rate to an
// estimated power draw in kW using a fixed assumed voltage. A nil reading
// propagates as nil rather than being coerced to zero.
func EstimatePowerFromAmps(amps *float64, assumedVoltage float64) *float64 {
	if amps == nil {
		return nil
	}
	kw := round3(*amps * assumedVoltage / 1000)
	return &kw
}

// EstimatePowerFromEnergyDelta converts per-channel energy consumption
// (kWh over intervalSeconds) into an instantaneous power estimate in kW.
// Channels that reported nothing are skipped; if no channel reported at
// all the result is nil. The estimate assumes consumption was flat across
// the interval - real charger power can fluctuate within it.
func EstimatePowerFromEnergyDelta(kwhPerChannel []*float64, intervalSeconds float64) *float64 {
	if intervalSeconds <= 0 {
		return nil
	}
	totalKWh := 0.0
	hasData := false
	for _, usage := range kwhPerChannel {
		if usage == nil {
			continue
		}
		totalKWh += *usage
		hasData = true
	}
	if !hasData {
		return nil
	}
	kw := round3(totalKWh * 3600 / intervalSeconds)
	return &kw
}

// ChargerState returns the display state for a charger: the reported
// status text, falling back to on/off from the charger flag.
func ChargerState(status *ChargerStatus) string {
	if status == nil {
		return ""
	}
	if status.Status != "" {
		return status.Status
	}
	if status.ChargerOn {
		return "on"
	}
	return "off"
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
