// Copyright (C) sensorstore contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package wunderground periodically polls a Weather Underground personal
// weather station's "current observation" endpoint and writes each
// field as its own sensor.
package wunderground

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/nhr-fau/sensorstore/internal/store"
	slog "github.com/nhr-fau/sensorstore/pkg/log"
)

// observationsURL is the Weather Underground PWS "current observation"
// endpoint, matching the URL template used by
// original_source's import_wunderground.py, with units switched to
// imperial (spec.md's committed four sensors are Fahrenheit/inHg/mph).
const observationsURL = "https://api.weather.com/v2/pws/observations/current"

// Config configures a Poller.
type Config struct {
	StationID string
	APIKey    string
	Interval  time.Duration
	// BaseURL overrides observationsURL; used by tests.
	BaseURL string
}

// imperial holds the subset of Weather Underground's "imperial" unit
// block this poller consumes.
type imperial struct {
	TempAvg      float64 `json:"tempAvg"`
	PressureAvg  float64 `json:"pressureAvg"`
	WindspeedAvg float64 `json:"windspeedAvg"`
}

type observation struct {
	Epoch       int64    `json:"epoch"`
	StationID   string   `json:"stationID"`
	HumidityAvg float64  `json:"humidityAvg"`
	Imperial    imperial `json:"imperial"`
}

type observationsResponse struct {
	Observations []observation `json:"observations"`
}

// Poller polls Config.StationID on Config.Interval and writes
// temp_f/relative_humidity/pressure_in/wind_speed_mph sensors named
// "<station>_<field>" through Catalog.
type Poller struct {
	cfg     Config
	catalog *store.SensorCatalog
	client  *http.Client
}

// NewPoller builds a Poller that writes observations through catalog.
func NewPoller(cfg Config, catalog *store.SensorCatalog) *Poller {
	if cfg.BaseURL == "" {
		cfg.BaseURL = observationsURL
	}
	return &Poller{cfg: cfg, catalog: catalog, client: &http.Client{Timeout: 30 * time.Second}}
}

// Run polls on Config.Interval until ctx is cancelled. It polls once
// immediately before waiting out the first interval.
func (p *Poller) Run(ctx context.Context) error {
	if p.cfg.Interval <= 0 {
		return fmt.Errorf("%w: wunderground poll interval must be positive, got %s", store.ErrInvalidArgument, p.cfg.Interval)
	}

	for {
		if err := p.pollOnce(ctx); err != nil {
			slog.Errorf("[WUNDERGROUND]> poll failed: %s", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(p.cfg.Interval):
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) error {
	resp, err := p.fetch(ctx)
	if err != nil {
		return err
	}
	return p.writeObservations(resp.Observations)
}

func (p *Poller) fetch(ctx context.Context) (observationsResponse, error) {
	u, err := url.Parse(p.cfg.BaseURL)
	if err != nil {
		return observationsResponse{}, fmt.Errorf("%w: parsing wunderground base url: %v", store.ErrInvalidArgument, err)
	}
	q := u.Query()
	q.Set("stationId", p.cfg.StationID)
	q.Set("format", "json")
	q.Set("units", "e")
	q.Set("numericPrecision", "decimal")
	q.Set("apiKey", p.cfg.APIKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return observationsResponse{}, fmt.Errorf("%w: building wunderground request: %v", store.ErrIO, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return observationsResponse{}, fmt.Errorf("%w: requesting wunderground observations: %v", store.ErrIO, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return observationsResponse{}, fmt.Errorf("%w: wunderground request failed with status %d", store.ErrIO, resp.StatusCode)
	}

	var out observationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return observationsResponse{}, fmt.Errorf("%w: decoding wunderground response: %v", store.ErrDecode, err)
	}
	return out, nil
}

func (p *Poller) writeObservations(obs []observation) error {
	if len(obs) == 0 {
		return fmt.Errorf("%w: wunderground response contains no observations", store.ErrDecode)
	}

	for _, o := range obs {
		station := o.StationID
		if station == "" {
			station = p.cfg.StationID
		}
		ts := time.Unix(o.Epoch, 0).UTC()

		fields := map[string]float64{
			"temp_f":            o.Imperial.TempAvg,
			"relative_humidity": o.HumidityAvg,
			"pressure_in":       o.Imperial.PressureAvg,
			"wind_speed_mph":    o.Imperial.WindspeedAvg,
		}
		for field, value := range fields {
			name := fmt.Sprintf("%s_%s", station, field)
			sensor, err := p.catalog.Get(name)
			if err != nil {
				return fmt.Errorf("resolving sensor %q: %w", name, err)
			}
			if _, err := sensor.Write(ts, value, true, 0); err != nil {
				return fmt.Errorf("writing sensor %q: %w", name, err)
			}
		}
	}
	slog.Infof("[WUNDERGROUND]> wrote %d observations for station %s", len(obs), p.cfg.StationID)
	return nil
}
