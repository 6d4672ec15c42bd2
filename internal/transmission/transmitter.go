package transmission

import "github.com/rtivolle/emhacs/internal/telemetry"

// Transmitter defines the interface for publishing snapshots and the
// bridge availability flag
type Transmitter interface {
	Transmit(snap *telemetry.Snapshot) error
	SetAvailability(online bool) error
	IsConnected() bool
}
