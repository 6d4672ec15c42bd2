package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtivolle/emhacs/internal/config"
	"github.com/rtivolle/emhacs/internal/poller"
	"github.com/rtivolle/emhacs/internal/telemetry"
)

func fp(v float64) *float64 { return &v }

// flakyAPI fails the first N vehicle-status fetches and succeeds after.
type flakyAPI struct {
	mu       sync.Mutex
	failures int
}

func (f *flakyAPI) GetVehicleStatus(_ context.Context, gid int) (*telemetry.VehicleStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return nil, fmt.Errorf("remote call failed")
	}
	return &telemetry.VehicleStatus{VehicleGID: gid, BatteryLevel: fp(50)}, nil
}

func (f *flakyAPI) GetChargersStatus(_ context.Context) ([]*telemetry.ChargerStatus, error) {
	return nil, nil
}

func (f *flakyAPI) GetDeviceListUsage(_ context.Context, _ []int) (map[int]*telemetry.DeviceUsage, error) {
	return map[int]*telemetry.DeviceUsage{}, nil
}

// recordingTransmitter records availability flips and transmits.
type recordingTransmitter struct {
	mu           sync.Mutex
	availability []bool
	transmits    int
}

func (r *recordingTransmitter) Transmit(*telemetry.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transmits++
	return nil
}

func (r *recordingTransmitter) SetAvailability(online bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.availability = append(r.availability, online)
	return nil
}

func (r *recordingTransmitter) IsConnected() bool { return true }

func (r *recordingTransmitter) availabilitySeen() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.availability...)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestRunMarksBridgeOnlineAfterRecovery(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.MQTTInterval = time.Hour // keep the scheduler quiet; only the collector flips availability
	cfg.AssumedVoltage = 240

	api := &flakyAPI{failures: 1}
	coordinator := poller.New(api,
		[]telemetry.TrackedEntity{{GID: 1, Kind: telemetry.KindVehicle, Name: "Vehicle 1"}},
		nil, cfg, testLogger())
	tx := &recordingTransmitter{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Run(ctx, cfg, coordinator, tx, testLogger())
		close(done)
	}()

	// The first cycle fails (offline); the second succeeds and must flip
	// the bridge back online even though nothing gets transmitted.
	deadline := time.Now().Add(2 * time.Second)
	for {
		seen := tx.availabilitySeen()
		if len(seen) >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for availability transitions, saw %v", seen)
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancellation")
	}

	seen := tx.availabilitySeen()
	require.GreaterOrEqual(t, len(seen), 2)
	assert.False(t, seen[0], "cycle-fatal failure marks the bridge offline")
	assert.True(t, seen[1], "recovery marks the bridge online again")
}

func TestRunRepeatedFailuresPublishOfflineOnce(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.MQTTInterval = time.Hour
	cfg.AssumedVoltage = 240

	api := &flakyAPI{failures: 1 << 30} // never recovers
	coordinator := poller.New(api,
		[]telemetry.TrackedEntity{{GID: 1, Kind: telemetry.KindVehicle, Name: "Vehicle 1"}},
		nil, cfg, testLogger())
	tx := &recordingTransmitter{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Run(ctx, cfg, coordinator, tx, testLogger())
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(tx.availabilitySeen()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the offline publication")
		}
		time.Sleep(5 * time.Millisecond)
	}
	// Let a few more failing cycles run.
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancellation")
	}

	assert.Equal(t, []bool{false}, tx.availabilitySeen(), "offline is published once per outage, not per failed cycle")
}
