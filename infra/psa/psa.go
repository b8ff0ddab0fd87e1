// Package psa talks to a psa-car-controller instance over its HTTP API. It
// provides both the vehicle telemetry and the delayed charge command.
package psa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/kilianp07/smartcharge/core/clock"
	"github.com/kilianp07/smartcharge/core/logger"
	"github.com/kilianp07/smartcharge/core/retry"
	"github.com/kilianp07/smartcharge/infra/httpclient"
)

// Config locates the controller and the car.
type Config struct {
	BaseURL string        `json:"base_url"`
	VIN     string        `json:"vin"`
	Timeout time.Duration `json:"timeout"`
}

// SetDefaults points at a controller on localhost.
func (c *Config) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:5000"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.VIN == "" {
		return errors.New("vin is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url %q: %w", c.BaseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url %q must be absolute", c.BaseURL)
	}
	return nil
}

// Client implements vehicle.Telemetry and vehicle.CommandSink.
type Client struct {
	base *url.URL
	vin  string
	http *http.Client
	log  logger.Logger
}

// New builds a Client. A nil log disables logging.
func New(cfg Config, log logger.Logger) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	u, _ := url.Parse(cfg.BaseURL)
	return &Client{base: u, vin: cfg.VIN, http: httpclient.New(cfg.Timeout), log: logger.OrNop(log)}, nil
}

// WithHTTPClient swaps the transport, mostly for tests.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// VehicleInfo is the part of get_vehicleinfo the scheduler reads.
type VehicleInfo struct {
	Energy energyList `json:"energy"`
}

// Energy is one energy source of the car, the battery being the first.
type Energy struct {
	Level    flexInt  `json:"level"`
	Type     string   `json:"type"`
	Charging Charging `json:"charging"`
}

// Charging describes the charge programming.
type Charging struct {
	Status          string `json:"status"`
	ChargingMode    string `json:"charging_mode"`
	NextDelayedTime string `json:"next_delayed_time"`
}

// Battery returns the first energy entry.
func (v VehicleInfo) Battery() (Energy, error) {
	if len(v.Energy) == 0 {
		return Energy{}, errors.New("vehicle info has no energy entry")
	}
	return v.Energy[0], nil
}

// energyList accepts both a JSON array and an object keyed by index.
type energyList []Energy

func (l *energyList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var arr []Energy
		if err := json.Unmarshal(b, &arr); err != nil {
			return err
		}
		*l = arr
		return nil
	}
	var byKey map[string]Energy
	if err := json.Unmarshal(b, &byKey); err != nil {
		return fmt.Errorf("energy: %w", err)
	}
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		x, errX := strconv.Atoi(keys[i])
		y, errY := strconv.Atoi(keys[j])
		if errX != nil || errY != nil {
			return keys[i] < keys[j]
		}
		return x < y
	})
	out := make([]Energy, 0, len(keys))
	for _, k := range keys {
		out = append(out, byKey[k])
	}
	*l = out
	return nil
}

// flexInt accepts numbers and numeric strings.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		var s string
		if err2 := json.Unmarshal(b, &s); err2 != nil {
			return fmt.Errorf("level: %w", err)
		}
		n = json.Number(s)
	}
	v, err := n.Float64()
	if err != nil {
		return fmt.Errorf("level %q: %w", n, err)
	}
	*f = flexInt(v)
	return nil
}

// VehicleInfo fetches the current state of the configured car.
func (c *Client) VehicleInfo(ctx context.Context) (VehicleInfo, error) {
	u := c.base.JoinPath("get_vehicleinfo", c.vin)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return VehicleInfo{}, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return VehicleInfo{}, err
	}
	defer resp.Body.Close()
	if err := httpclient.CheckStatus(resp); err != nil {
		return VehicleInfo{}, err
	}
	var info VehicleInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return VehicleInfo{}, retry.Permanent(fmt.Errorf("failed to decode vehicle info: %w", err))
	}
	return info, nil
}

// BatteryLevel implements vehicle.Telemetry.
func (c *Client) BatteryLevel(ctx context.Context) (int, error) {
	info, err := c.VehicleInfo(ctx)
	if err != nil {
		return 0, err
	}
	e, err := info.Battery()
	if err != nil {
		return 0, err
	}
	c.log.Debugf("battery level %d%%", int(e.Level))
	return int(e.Level), nil
}

// ScheduledStart implements vehicle.Telemetry.
func (c *Client) ScheduledStart(ctx context.Context) (string, error) {
	info, err := c.VehicleInfo(ctx)
	if err != nil {
		return "", err
	}
	e, err := info.Battery()
	if err != nil {
		return "", err
	}
	if e.Charging.NextDelayedTime == "" {
		return "", errors.New("vehicle reports no delayed charge time")
	}
	return e.Charging.NextDelayedTime, nil
}

// SetChargeStart implements vehicle.CommandSink. An empty vin targets the
// configured car.
func (c *Client) SetChargeStart(ctx context.Context, vin string, start clock.Time) error {
	if vin == "" {
		vin = c.vin
	}
	u := c.base.JoinPath("charge_hour")
	q := url.Values{}
	q.Set("vin", vin)
	q.Set("hour", strconv.Itoa(start.Hour))
	q.Set("minute", strconv.Itoa(start.Minute))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := httpclient.CheckStatus(resp); err != nil {
		return err
	}
	c.log.Infof("charge start %s sent to %s", start, vin)
	return nil
}
