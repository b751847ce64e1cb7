// Copyright (C) sensorstore contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package httpapi exposes the sensorstore programmatic surface
// (catalog statistics, range/decimated-range/point queries, aligned
// CSV/JSON export) over a small gorilla/mux HTTP surface.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/nhr-fau/sensorstore/internal/store"
	slog "github.com/nhr-fau/sensorstore/pkg/log"
)

// Server wires a SensorCatalog and its ExportEngine to HTTP routes.
type Server struct {
	Catalog *store.SensorCatalog
	Export  *store.ExportEngine
}

// NewServer builds a Server over an already-opened catalog.
func NewServer(catalog *store.SensorCatalog) *Server {
	return &Server{Catalog: catalog, Export: store.NewExportEngine(catalog)}
}

// MountRoutes registers the API's routes onto r.
func (s *Server) MountRoutes(r *mux.Router) {
	r = r.PathPrefix("/api").Subrouter()
	r.StrictSlash(true)

	r.HandleFunc("/sensors", s.getSensors).Methods(http.MethodGet)
	r.HandleFunc("/sensors/{name}/range", s.getRange).Methods(http.MethodGet)
	r.HandleFunc("/sensors/{name}/at", s.getAt).Methods(http.MethodGet)
	r.HandleFunc("/export.csv", s.getExportCSV).Methods(http.MethodGet)
	r.HandleFunc("/export.json", s.getExportJSON).Methods(http.MethodGet)
}

// ErrorResponse is the JSON body returned for any failed request.
type ErrorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func handleError(rw http.ResponseWriter, err error) {
	code := statusFor(err)
	slog.Warnf("[HTTPAPI]> %d: %s", code, err.Error())
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	json.NewEncoder(rw).Encode(ErrorResponse{Status: http.StatusText(code), Error: err.Error()})
}

// statusFor maps a store sentinel error to an HTTP status code, per the
// "User-visible failure behavior" contract: NotFound/InvalidArgument are
// client errors, Decode/IO/Concurrency are server errors.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, store.ErrDecode), errors.Is(err, store.ErrIO), errors.Is(err, store.ErrConcurrency):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) getSensors(rw http.ResponseWriter, r *http.Request) {
	stats, err := s.Catalog.Statistics()
	if err != nil {
		handleError(rw, err)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(stats)
}

type rangePoint struct {
	T time.Time `json:"t"`
	V any       `json:"v"`
}

func (s *Server) getRange(rw http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	known, err := s.Catalog.Names()
	if err != nil {
		handleError(rw, err)
		return
	}
	if !slices.Contains(known, name) {
		handleError(rw, fmt.Errorf("%w: sensor %q", store.ErrNotFound, name))
		return
	}
	sensor, err := s.Catalog.Get(name)
	if err != nil {
		handleError(rw, err)
		return
	}

	since, until, endpoint, err := parseWindow(r)
	if err != nil {
		handleError(rw, err)
		return
	}
	limit, err := parseIntParam(r, "limit", 0)
	if err != nil {
		handleError(rw, err)
		return
	}

	if bucketParam := r.URL.Query().Get("bucket"); bucketParam != "" {
		bucket, err := parseDurationParam(bucketParam)
		if err != nil {
			handleError(rw, err)
			return
		}
		times, values, err := sensor.RangeDecimated(bucket, since, until, limit, store.ChunkTimeCenter, store.ChunkValueMean)
		if err != nil {
			handleError(rw, err)
			return
		}
		writeRangePoints(rw, times, values)
		return
	}

	times, values, err := sensor.Range(since, until, endpoint, limit, store.Items)
	if err != nil {
		handleError(rw, err)
		return
	}
	writeRangePoints(rw, times, values)
}

func writeRangePoints(rw http.ResponseWriter, times []time.Time, values []any) {
	points := make([]rangePoint, len(times))
	for i := range times {
		points[i] = rangePoint{T: times[i], V: values[i]}
	}
	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(points)
}

func (s *Server) getAt(rw http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	sensor, err := s.Catalog.Get(name)
	if err != nil {
		handleError(rw, err)
		return
	}

	tParam := r.URL.Query().Get("t")
	if tParam == "" {
		handleError(rw, fmt.Errorf("%w: query parameter 't' is required", store.ErrInvalidArgument))
		return
	}
	t, err := time.Parse(time.RFC3339, tParam)
	if err != nil {
		handleError(rw, fmt.Errorf("%w: parsing 't': %v", store.ErrInvalidArgument, err))
		return
	}

	since, until, endpoint, err := parseWindow(r)
	if err != nil {
		handleError(rw, err)
		return
	}

	out, err := sensor.At([]time.Time{t}, since, until, endpoint, false)
	if err != nil {
		handleError(rw, err)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(rangePoint{T: t, V: out[0]})
}

func (s *Server) getExportCSV(rw http.ResponseWriter, r *http.Request) {
	names, since, until, endpoint, err := parseExportParams(r)
	if err != nil {
		handleError(rw, err)
		return
	}
	rw.Header().Set("Content-Type", "text/csv; charset=utf-8")
	if err := s.Export.ExportCSV(rw, names, since, until, endpoint, true); err != nil {
		handleError(rw, err)
		return
	}
}

func (s *Server) getExportJSON(rw http.ResponseWriter, r *http.Request) {
	names, since, until, endpoint, err := parseExportParams(r)
	if err != nil {
		handleError(rw, err)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	if err := s.Export.ExportJSON(rw, names, since, until, endpoint); err != nil {
		handleError(rw, err)
		return
	}
}

func parseExportParams(r *http.Request) (names []string, since, until time.Time, endpoint store.Endpoint, err error) {
	sensors := r.URL.Query().Get("sensors")
	if sensors == "" {
		return nil, time.Time{}, time.Time{}, 0, fmt.Errorf("%w: query parameter 'sensors' is required", store.ErrInvalidArgument)
	}
	since, until, endpoint, err = parseWindow(r)
	if err != nil {
		return nil, time.Time{}, time.Time{}, 0, err
	}
	return strings.Split(sensors, ","), since, until, endpoint, nil
}

// parseWindow parses since/until/endpoint query parameters, defaulting
// to the open interval (the Unix epoch, the earliest representable
// timestamp, through the far future) with both endpoints included,
// matching a bare Range() call over "everything".
func parseWindow(r *http.Request) (since, until time.Time, endpoint store.Endpoint, err error) {
	q := r.URL.Query()

	since = time.Unix(0, 0).UTC()
	if s := q.Get("since"); s != "" {
		since, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, time.Time{}, 0, fmt.Errorf("%w: parsing 'since': %v", store.ErrInvalidArgument, err)
		}
	}

	until = time.Now().AddDate(100, 0, 0)
	if u := q.Get("until"); u != "" {
		until, err = time.Parse(time.RFC3339, u)
		if err != nil {
			return time.Time{}, time.Time{}, 0, fmt.Errorf("%w: parsing 'until': %v", store.ErrInvalidArgument, err)
		}
	}

	endpoint = store.EndpointBoth
	if e := q.Get("endpoint"); e != "" {
		endpoint, err = parseEndpoint(e)
		if err != nil {
			return time.Time{}, time.Time{}, 0, err
		}
	}
	return since, until, endpoint, nil
}

func parseEndpoint(s string) (store.Endpoint, error) {
	switch s {
	case "both":
		return store.EndpointBoth, nil
	case "left":
		return store.EndpointLeft, nil
	case "right":
		return store.EndpointRight, nil
	case "none":
		return store.EndpointNone, nil
	default:
		return 0, fmt.Errorf("%w: unknown endpoint %q, want one of both/left/right/none", store.ErrInvalidArgument, s)
	}
}

func parseIntParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: parsing %q: %v", store.ErrInvalidArgument, name, err)
	}
	return n, nil
}

func parseDurationParam(v string) (time.Duration, error) {
	if v == "auto" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: parsing 'bucket': %v", store.ErrInvalidArgument, err)
	}
	return d, nil
}
