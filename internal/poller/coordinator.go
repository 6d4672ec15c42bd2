package poller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rtivolle/emhacs/internal/bus"
	"github.com/rtivolle/emhacs/internal/cache"
	"github.com/rtivolle/emhacs/internal/config"
	"github.com/rtivolle/emhacs/internal/telemetry"
)

// EmporiaAPI is the slice of the Emporia client the coordinator consumes.
// Every call may fail with an opaque remote error; the coordinator never
// interprets the cause, it retries on the next cycle.
type EmporiaAPI interface {
	GetVehicleStatus(ctx context.Context, vehicleGID int) (*telemetry.VehicleStatus, error)
	GetChargersStatus(ctx context.Context) ([]*telemetry.ChargerStatus, error)
	GetDeviceListUsage(ctx context.Context, deviceGIDs []int) (map[int]*telemetry.DeviceUsage, error)
}

// Coordinator polls vehicle and charger state on demand and publishes the
// result as one immutable snapshot. Cycles never overlap: a Refresh call
// while another cycle is running is skipped. A failed cycle leaves the
// previous snapshot in place.
type Coordinator struct {
	api      EmporiaAPI
	vehicles []telemetry.TrackedEntity
	chargers []telemetry.TrackedEntity

	statusCache    *cache.StatusCache
	statusCacheTTL time.Duration
	liveTimeout    time.Duration
	assumedVoltage float64
	powerSource    string

	snapshot atomic.Pointer[telemetry.Snapshot]
	bus      *bus.Bus
	cycleMu  sync.Mutex

	logger *logrus.Logger
}

// New creates a coordinator for the given tracked entities. The entity
// lists are fixed for the coordinator's lifetime.
func New(api EmporiaAPI, vehicles, chargers []telemetry.TrackedEntity, cfg *config.Config, logger *logrus.Logger) *Coordinator {
	return &Coordinator{
		api:            api,
		vehicles:       vehicles,
		chargers:       chargers,
		statusCache:    cache.New(),
		statusCacheTTL: config.StatusCacheTTL,
		liveTimeout:    config.LivePowerTimeout,
		assumedVoltage: cfg.AssumedVoltage,
		powerSource:    cfg.PowerSource,
		bus:            bus.New(),
		logger:         logger,
	}
}

// Snapshot returns the current snapshot, or nil if no cycle has succeeded
// yet. The returned value is immutable.
func (c *Coordinator) Snapshot() *telemetry.Snapshot {
	return c.snapshot.Load()
}

// Subscribe returns a channel receiving every snapshot published after
// this call.
func (c *Coordinator) Subscribe() <-chan *telemetry.Snapshot {
	return c.bus.Subscribe()
}

// Vehicles returns the tracked vehicles.
func (c *Coordinator) Vehicles() []telemetry.TrackedEntity { return c.vehicles }

// Chargers returns the tracked chargers.
func (c *Coordinator) Chargers() []telemetry.TrackedEntity { return c.chargers }

// AssumedVoltage exposes the voltage constant used for the amps-to-kW
// fallback, for display on the power sensor.
func (c *Coordinator) AssumedVoltage() float64 { return c.assumedVoltage }

// Refresh runs one poll cycle: vehicle statuses, charger batch status,
// per-charger live power, then an atomic snapshot publish. A vehicle or
// charger batch failure aborts the cycle and is returned to the caller;
// a live-power failure only leaves that one charger's estimate absent.
func (c *Coordinator) Refresh(ctx context.Context) error {
	if !c.cycleMu.TryLock() {
		c.logger.Debug("Refresh skipped, previous cycle still running")
		return nil
	}
	defer c.cycleMu.Unlock()

	vehicles, err := c.fetchVehicleStatuses(ctx)
	if err != nil {
		return fmt.Errorf("vehicle status refresh failed: %w", err)
	}

	chargerList, err := c.statusCache.GetOrFetch(time.Now(), c.statusCacheTTL, func() ([]*telemetry.ChargerStatus, error) {
		return c.api.GetChargersStatus(ctx)
	})
	if err != nil {
		return fmt.Errorf("charger status refresh failed: %w", err)
	}

	chargers := make(map[int]*telemetry.ChargerStatus, len(chargerList))
	for _, charger := range chargerList {
		chargers[charger.DeviceGID] = charger
	}

	powerKW := c.fetchChargerPower(ctx, chargers)

	// A teardown mid-cycle must not publish partial state.
	if ctx.Err() != nil {
		return ctx.Err()
	}

	snap := &telemetry.Snapshot{
		Vehicles:       vehicles,
		Chargers:       chargers,
		ChargerPowerKW: powerKW,
		FetchedAt:      time.Now(),
	}
	c.snapshot.Store(snap)
	c.bus.Publish(snap)

	c.logger.WithFields(logrus.Fields{
		"vehicles": len(vehicles),
		"chargers": len(chargers),
	}).Debug("Published snapshot")

	return nil
}

// fetchVehicleStatuses fetches every tracked vehicle's status. Any
// failure here means the data source itself is unhealthy and fails the
// whole cycle.
func (c *Coordinator) fetchVehicleStatuses(ctx context.Context) (map[int]*telemetry.VehicleStatus, error) {
	statuses := make(map[int]*telemetry.VehicleStatus, len(c.vehicles))
	for _, vehicle := range c.vehicles {
		status, err := c.api.GetVehicleStatus(ctx, vehicle.GID)
		if err != nil {
			return nil, err
		}
		statuses[vehicle.GID] = status
	}
	return statuses, nil
}

// fetchChargerPower fetches each charger's live-power measurement
// concurrently and derives the published power estimate. Per-charger
// failures are isolated: the entry stays absent and the cycle continues.
func (c *Coordinator) fetchChargerPower(ctx context.Context, chargers map[int]*telemetry.ChargerStatus) map[int]*float64 {
	powerKW := make(map[int]*float64, len(chargers))

	var mu sync.Mutex
	grp := &errgroup.Group{}
	for gid, status := range chargers {
		gid, status := gid, status
		grp.Go(func() error {
			measured := c.fetchLivePowerKW(ctx, gid)
			ampsEstimate := telemetry.EstimatePowerFromAmps(status.ChargingRate, c.assumedVoltage)

			mu.Lock()
			powerKW[gid] = c.pickPower(measured, ampsEstimate)
			mu.Unlock()
			return nil
		})
	}
	grp.Wait() // goroutines never return errors; failures are recorded as absent

	return powerKW
}

// fetchLivePowerKW returns the charger's measured power from the
// 1-second usage endpoint, or nil when the call fails or no channel
// reported data.
func (c *Coordinator) fetchLivePowerKW(ctx context.Context, chargerGID int) *float64 {
	callCtx, cancel := context.WithTimeout(ctx, c.liveTimeout)
	defer cancel()

	usages, err := c.api.GetDeviceListUsage(callCtx, []int{chargerGID})
	if err != nil {
		c.logger.WithError(err).WithField("charger_gid", chargerGID).Debug("Unable to fetch live power")
		return nil
	}
	usage, ok := usages[chargerGID]
	if !ok {
		return nil
	}
	return telemetry.EstimatePowerFromEnergyDelta(usage.ChannelReadings(), config.LivePowerScaleSeconds)
}

// pickPower applies the configured power-source preference. With the
// default measurement policy the 1-second usage value wins and the
// amps-derived estimate is the fallback; the amps policy inverts that.
func (c *Coordinator) pickPower(measured, ampsEstimate *float64) *float64 {
	if c.powerSource == config.PowerSourceAmps {
		if ampsEstimate != nil {
			return ampsEstimate
		}
		return measured
	}
	if measured != nil {
		return measured
	}
	return ampsEstimate
}
