package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rtivolle/emhacs/internal/app"
	"github.com/rtivolle/emhacs/internal/config"
	"github.com/rtivolle/emhacs/internal/emporia"
	"github.com/rtivolle/emhacs/internal/poller"
	"github.com/rtivolle/emhacs/internal/telemetry"
	"github.com/rtivolle/emhacs/internal/transmission"

	mqttclient "github.com/rtivolle/emhacs/internal/mqtt"
)

// version is injected at build time via ldflags
var version = "dev"

func main() {
	cfg, verifyMode := parseFlags()

	// Verify path -----------------------------------------------------------------
	if verifyMode {
		runVerifyMode(cfg)
		return
	}

	logger := setupLogger(cfg.Verbose)

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	logFields := logrus.Fields{
		"version":   version,
		"device_id": cfg.DeviceID,
		"poll":      cfg.PollInterval,
		"mqtt_int":  cfg.MQTTInterval,
		"voltage":   cfg.AssumedVoltage,
		"power_src": cfg.PowerSource,
	}
	if cfg.ForceUpdateInterval > 0 {
		logFields["force_update_int"] = cfg.ForceUpdateInterval
	}
	logger.WithFields(logFields).Info("Starting emhacs")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("Shutdown signal received")
		cancel()
	}()

	// Emporia client & discovery --------------------------------------------------
	client := emporia.NewClient(emporia.DefaultBaseURL, cfg.GetAPITimeout(), logger)
	if err := client.Login(ctx, cfg.Email, cfg.Password); err != nil {
		logger.WithError(err).Fatal("Emporia login failed")
	}

	vehicles, chargers, err := discoverEntities(ctx, client)
	if err != nil {
		logger.WithError(err).Fatal("Failed to discover Emporia devices")
	}
	logger.WithFields(logrus.Fields{
		"vehicles": len(vehicles),
		"chargers": len(chargers),
	}).Info("Monitoring Emporia entities")
	if len(chargers) == 0 {
		logger.Info("No chargers found for this account")
	}

	coordinator := poller.New(client, vehicles, chargers, cfg, logger)

	// First refresh so views have data before anything is announced.
	if err := coordinator.Refresh(ctx); err != nil {
		logger.WithError(err).Warn("Initial refresh failed; will retry on schedule")
	}

	// Transmitter -----------------------------------------------------------------
	var mqttTx transmission.Transmitter
	if cfg.HasMQTT() {
		mqttClient, err := mqttclient.NewClient(cfg.MQTTUrl, cfg.DeviceID, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create MQTT client")
		}
		defer mqttClient.Disconnect(250)

		views := transmission.BuildViews(vehicles, chargers)
		mqttTx = transmission.NewMQTTTransmitter(mqttClient, cfg.DeviceID, cfg.DiscoveryPrefix, views, cfg.AssumedVoltage, logger)
		logger.Info("MQTT transmitter ready")
	} else {
		logger.Warn("No MQTT URL configured; data will only be logged")
	}

	// Run application -------------------------------------------------------------
	app.Run(ctx, cfg, coordinator, mqttTx, logger)

	logger.Info("emhacs stopped")
}

// discoverEntities lists the account's vehicles and EV chargers and turns
// them into tracked entities with resolved display names.
func discoverEntities(ctx context.Context, client *emporia.Client) (vehicles, chargers []telemetry.TrackedEntity, err error) {
	vehicleRefs, err := client.GetVehicles(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("vehicle discovery failed: %w", err)
	}
	for _, vehicle := range vehicleRefs {
		name := vehicle.DisplayName
		if name == "" {
			name = fmt.Sprintf("Vehicle %d", vehicle.VehicleGID)
		}
		vehicles = append(vehicles, telemetry.TrackedEntity{
			GID:  vehicle.VehicleGID,
			Kind: telemetry.KindVehicle,
			Name: name,
		})
	}

	devices, err := client.GetDevices(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("device discovery failed: %w", err)
	}
	for i := range devices {
		device := devices[i]
		if !device.EVCharger {
			continue
		}
		chargers = append(chargers, telemetry.TrackedEntity{
			GID:  device.DeviceGID,
			Kind: telemetry.KindCharger,
			Name: telemetry.ChargerName(&device, device.DeviceGID),
		})
	}

	return vehicles, chargers, nil
}

// -----------------------------------------------------------------------------
// Helpers & Flags
// -----------------------------------------------------------------------------

func parseFlags() (*config.Config, bool) {
	cfg := config.GetDefaultConfig()

	showVersion := flag.Bool("version", false, "Show version and exit")
	verify := flag.Bool("verify", false, "Log in, run one fetch cycle, print results and exit")

	flag.StringVar(&cfg.Email, "email", getEnv("EMHACS_EMAIL", cfg.Email), "Emporia account email")
	flag.StringVar(&cfg.Password, "password", getEnv("EMHACS_PASSWORD", cfg.Password), "Emporia account password")
	flag.StringVar(&cfg.MQTTUrl, "mqtt-url", getEnv("EMHACS_MQTT_URL", cfg.MQTTUrl), "MQTT URL")
	flag.StringVar(&cfg.DiscoveryPrefix, "discovery-prefix", getEnv("EMHACS_DISCOVERY_PREFIX", cfg.DiscoveryPrefix), "HA discovery prefix")
	flag.StringVar(&cfg.DeviceID, "device-id", getEnv("EMHACS_DEVICE_ID", "emporia_vue"), "Device identifier")
	flag.StringVar(&cfg.PowerSource, "power-source", getEnv("EMHACS_POWER_SOURCE", cfg.PowerSource), "Charger power preference: measurement or amps")
	flag.BoolVar(&cfg.Verbose, "verbose", getEnv("EMHACS_VERBOSE", "false") == "true", "Verbose logging")

	pollIntervalStr := flag.String("poll-interval", getEnv("EMHACS_POLL_INTERVAL", ""), "Emporia poll interval (e.g. 60s)")
	mqttIntervalStr := flag.String("mqtt-interval", getEnv("EMHACS_MQTT_INTERVAL", ""), "MQTT interval (e.g. 60s)")
	forceUpdateIntervalStr := flag.String("force-update-interval", getEnv("EMHACS_FORCE_UPDATE_INTERVAL", ""), "Re-publish all sensors at this interval even if unchanged (e.g. 10m, 0 = disabled)")
	voltageStr := flag.String("assumed-voltage", getEnv("EMHACS_ASSUMED_VOLTAGE", ""), "Voltage for amps-to-kW estimation (default 240)")

	flag.Parse()

	if *showVersion {
		fmt.Printf("emhacs %s\n", version)
		os.Exit(0)
	}

	// Duration overrides
	if d, ok := parseInterval(*pollIntervalStr); ok && d > 0 {
		cfg.PollInterval = d
	}
	if d, ok := parseInterval(*mqttIntervalStr); ok && d > 0 {
		cfg.MQTTInterval = d
	}
	if d, ok := parseInterval(*forceUpdateIntervalStr); ok && d >= 0 {
		cfg.ForceUpdateInterval = d
	}
	if *voltageStr != "" {
		if v, err := strconv.ParseFloat(*voltageStr, 64); err == nil && v > 0 {
			cfg.AssumedVoltage = v
		}
	}

	return cfg, *verify
}

// parseInterval accepts either a duration string ("90s") or a bare number
// of seconds ("90").
func parseInterval(s string) (time.Duration, bool) {
	if s == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, true
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return time.Duration(v) * time.Second, true
	}
	return 0, false
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func setupLogger(verbose bool) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}

// runVerifyMode logs in, performs one fetch cycle's worth of calls and
// prints the results.
func runVerifyMode(cfg *config.Config) {
	logger := setupLogger(true)
	ctx := context.Background()

	if cfg.Email == "" || cfg.Password == "" {
		logger.Fatal("Set EMHACS_EMAIL and EMHACS_PASSWORD (or -email/-password) before running -verify")
	}

	client := emporia.NewClient(emporia.DefaultBaseURL, cfg.GetAPITimeout(), logger)
	if err := client.Login(ctx, cfg.Email, cfg.Password); err != nil {
		logger.WithError(err).Fatal("Login failed, check credentials")
	}
	fmt.Println("Connected to Emporia.")

	vehicles, _, err := discoverEntities(ctx, client)
	if err != nil {
		logger.WithError(err).Fatal("Discovery failed")
	}

	fmt.Printf("Found %d vehicle(s).\n", len(vehicles))
	for _, vehicle := range vehicles {
		status, err := client.GetVehicleStatus(ctx, vehicle.GID)
		if err != nil {
			fmt.Printf("- %s: unable to fetch status (%v)\n", vehicle.Name, err)
			continue
		}
		battery := "n/a"
		if status.BatteryLevel != nil {
			battery = fmt.Sprintf("%.0f%%", *status.BatteryLevel)
		}
		fmt.Printf("- %s: battery=%s state=%s charging=%s\n",
			vehicle.Name, battery, status.VehicleState, status.ChargingState)
	}

	statuses, err := client.GetChargersStatus(ctx)
	if err != nil {
		logger.WithError(err).Fatal("Charger status fetch failed")
	}
	fmt.Printf("Found %d charger(s).\n", len(statuses))
	for _, status := range statuses {
		estKW := telemetry.EstimatePowerFromAmps(status.ChargingRate, cfg.AssumedVoltage)
		var liveKW *float64
		if usages, err := client.GetDeviceListUsage(ctx, []int{status.DeviceGID}); err != nil {
			fmt.Printf("  unable to fetch live power for charger %d: %v\n", status.DeviceGID, err)
		} else if usage := usages[status.DeviceGID]; usage != nil {
			liveKW = telemetry.EstimatePowerFromEnergyDelta(usage.ChannelReadings(), config.LivePowerScaleSeconds)
		}

		fmt.Printf("- Charger %d: status=%s on=%t rate=%sA est_power=%s kW live_power=%s kW max_rate=%.0fA\n",
			status.DeviceGID,
			telemetry.ChargerState(status),
			status.ChargerOn,
			fmtFloat(status.ChargingRate),
			fmtFloat(estKW),
			fmtFloat(liveKW),
			status.MaxChargingRate,
		)
	}

	fmt.Println("Check complete.")
}

func fmtFloat(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
