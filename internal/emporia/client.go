package emporia

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rtivolle/emhacs/internal/netutil"
	"github.com/rtivolle/emhacs/internal/telemetry"
)

// DefaultBaseURL is the Emporia cloud API endpoint.
const DefaultBaseURL = "https://api.emporiaenergy.com"

// Client handles communication with the Emporia cloud API. All calls may
// fail with an opaque remote error (network, auth, rate limit); callers
// retry at the next poll cycle rather than interpret the failure.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger

	mu        sync.RWMutex
	authToken string
}

// NewClient creates a new Emporia API client
func NewClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: netutil.NewAPIClient(timeout, logger),
		logger:     logger,
	}
}

// Login authenticates against the Emporia API and stores the session
// token used by subsequent calls.
func (c *Client) Login(ctx context.Context, email, password string) error {
	payload, err := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return fmt.Errorf("failed to encode login payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/customers/login", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login returned status %d: %s", resp.StatusCode, resp.Status)
	}

	var loginResp struct {
		AuthToken string `json:"authToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return fmt.Errorf("failed to decode login response: %w", err)
	}
	if loginResp.AuthToken == "" {
		return fmt.Errorf("login succeeded but no auth token was returned")
	}

	c.mu.Lock()
	c.authToken = loginResp.AuthToken
	c.mu.Unlock()

	c.logger.Debug("Emporia login successful")
	return nil
}

// GetVehicles lists the vehicles on the account.
func (c *Client) GetVehicles(ctx context.Context) ([]telemetry.Vehicle, error) {
	body, err := c.get(ctx, "/customers/vehicles", nil)
	if err != nil {
		return nil, fmt.Errorf("vehicle listing failed: %w", err)
	}

	var vehicles []telemetry.Vehicle
	if err := json.Unmarshal(body, &vehicles); err != nil {
		return nil, fmt.Errorf("failed to parse vehicle listing: %w", err)
	}
	return vehicles, nil
}

// GetDevices lists all devices on the account, chargers included.
func (c *Client) GetDevices(ctx context.Context) ([]telemetry.Device, error) {
	body, err := c.get(ctx, "/customers/devices", nil)
	if err != nil {
		return nil, fmt.Errorf("device listing failed: %w", err)
	}

	var listing struct {
		Devices []telemetry.Device `json:"devices"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("failed to parse device listing: %w", err)
	}
	return listing.Devices, nil
}

// GetVehicleStatus fetches the current status of one vehicle. The full
// reported payload is retained in Attributes so views can expose fields
// this client has no typed knowledge of.
func (c *Client) GetVehicleStatus(ctx context.Context, vehicleGID int) (*telemetry.VehicleStatus, error) {
	body, err := c.get(ctx, "/vehicles/v2/settings", url.Values{
		"vehicleGid": []string{strconv.Itoa(vehicleGID)},
	})
	if err != nil {
		return nil, fmt.Errorf("vehicle %d status fetch failed: %w", vehicleGID, err)
	}

	status := &telemetry.VehicleStatus{VehicleGID: vehicleGID}
	if err := json.Unmarshal(body, status); err != nil {
		return nil, fmt.Errorf("failed to parse vehicle %d status: %w", vehicleGID, err)
	}

	var attrs map[string]interface{}
	if err := json.Unmarshal(body, &attrs); err == nil {
		status.Attributes = attrs
	}

	c.logger.WithFields(logrus.Fields{
		"vehicle_gid":   vehicleGID,
		"battery_level": fmtLevel(status.BatteryLevel),
	}).Debug("Fetched vehicle status")

	return status, nil
}

// GetChargersStatus fetches the status of every EV charger on the account
// as one batch call.
func (c *Client) GetChargersStatus(ctx context.Context) ([]*telemetry.ChargerStatus, error) {
	body, err := c.get(ctx, "/customers/devices/status", nil)
	if err != nil {
		return nil, fmt.Errorf("charger batch status fetch failed: %w", err)
	}

	var statusResp struct {
		EVChargers []*telemetry.ChargerStatus `json:"evChargers"`
	}
	if err := json.Unmarshal(body, &statusResp); err != nil {
		return nil, fmt.Errorf("failed to parse charger batch status: %w", err)
	}

	c.logger.WithField("chargers", len(statusResp.EVChargers)).Debug("Fetched charger batch status")
	return statusResp.EVChargers, nil
}

// GetDeviceListUsage fetches per-channel energy consumption for the given
// devices at 1-second scale (kWh consumed over the last second).
func (c *Client) GetDeviceListUsage(ctx context.Context, deviceGIDs []int) (map[int]*telemetry.DeviceUsage, error) {
	gids := make([]string, 0, len(deviceGIDs))
	for _, gid := range deviceGIDs {
		gids = append(gids, strconv.Itoa(gid))
	}

	body, err := c.get(ctx, "/AppAPI", url.Values{
		"apiMethod":  []string{"getDeviceListUsages"},
		"deviceGids": []string{strings.Join(gids, "+")},
		"scale":      []string{"1S"},
		"energyUnit": []string{"KilowattHours"},
	})
	if err != nil {
		return nil, fmt.Errorf("usage fetch failed: %w", err)
	}

	var usageResp struct {
		DeviceListUsages struct {
			Devices []*telemetry.DeviceUsage `json:"devices"`
		} `json:"deviceListUsages"`
	}
	if err := json.Unmarshal(body, &usageResp); err != nil {
		return nil, fmt.Errorf("failed to parse usage response: %w", err)
	}

	usages := make(map[int]*telemetry.DeviceUsage, len(usageResp.DeviceListUsages.Devices))
	for _, usage := range usageResp.DeviceListUsages.Devices {
		usages[usage.DeviceGID] = usage
	}
	return usages, nil
}

// get performs an authenticated GET against the API.
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	c.mu.RLock()
	token := c.authToken
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("authtoken", token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"path":          path,
		"status_code":   resp.StatusCode,
		"response_size": len(body),
	}).Debug("Received API response")

	return body, nil
}

func fmtLevel(level *float64) interface{} {
	if level == nil {
		return "n/a"
	}
	return *level
}
