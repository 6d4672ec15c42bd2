package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rtivolle/emhacs/internal/config"
	"github.com/rtivolle/emhacs/internal/poller"
	"github.com/rtivolle/emhacs/internal/telemetry"
	"github.com/rtivolle/emhacs/internal/transmission"
)

// Run drives the poll/transmit loops and blocks until ctx is cancelled.
// The collector goroutine runs one refresh cycle per tick; the scheduler
// goroutine forwards published snapshots to MQTT on its own cadence.
func Run(
	parentCtx context.Context,
	cfg *config.Config,
	coordinator *poller.Coordinator,
	mqttTx transmission.Transmitter,
	logger *logrus.Logger,
) {
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	grp, ctx := errgroup.WithContext(ctx)

	// Collector -----------------------------------------------------------
	grp.Go(func() error {
		ticker := time.NewTicker(cfg.PollInterval)
		defer ticker.Stop()

		failing := false
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := coordinator.Refresh(ctx); err != nil {
					logger.WithError(err).Warn("collector: poll cycle failed")
					// The previous snapshot stays published; flag the
					// bridge unavailable until a cycle succeeds again.
					if mqttTx != nil && !failing {
						if availErr := mqttTx.SetAvailability(false); availErr != nil {
							logger.WithError(availErr).Debug("collector: unable to mark bridge offline")
						}
					}
					failing = true
					continue
				}
				// Recovered: flip the bridge back online immediately.
				// The scheduler may skip the next transmit when the
				// snapshot is unchanged, so it cannot be relied on to
				// do this.
				if mqttTx != nil && failing {
					if availErr := mqttTx.SetAvailability(true); availErr != nil {
						logger.WithError(availErr).Debug("collector: unable to mark bridge online")
					}
				}
				failing = false
			}
		}
	})

	// Scheduler ------------------------------------------------------------
	if mqttTx != nil {
		sub := coordinator.Subscribe()

		grp.Go(func() error {
			var latest *telemetry.Snapshot
			var lastSent *telemetry.Snapshot
			lastSentAt := time.Now().Add(-cfg.MQTTInterval)

			ticker := time.NewTicker(1 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case snap, ok := <-sub:
					if !ok {
						return nil
					}
					latest = snap
				case <-ticker.C:
					if latest == nil {
						continue
					}
					now := time.Now()
					if now.Sub(lastSentAt) < cfg.MQTTInterval {
						continue
					}

					forced := cfg.ForceUpdateInterval > 0 && now.Sub(lastSentAt) >= cfg.ForceUpdateInterval
					if !forced && !telemetry.SnapshotChanged(lastSent, latest) {
						continue
					}

					if err := transmitToMQTT(mqttTx, latest); err != nil {
						logger.WithError(err).Warn("MQTT transmit failed")
						// Reset lastSent so the changed-check passes on
						// the next tick and we retry after the interval.
						lastSent = nil
						lastSentAt = now
					} else {
						lastSent = latest
						lastSentAt = now
					}
				}
			}
		})
	}

	if err := grp.Wait(); err != nil && err != context.Canceled {
		logger.WithError(err).Warn("app: background group exited")
	}
}

func transmitToMQTT(tx transmission.Transmitter, snap *telemetry.Snapshot) error {
	if tx == nil || snap == nil {
		return nil
	}
	if err := tx.Transmit(snap); err != nil {
		return fmt.Errorf("MQTT transmit failed: %w", err)
	}
	return nil
}
