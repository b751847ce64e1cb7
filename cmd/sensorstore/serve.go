// Copyright (C) sensorstore contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/spf13/pflag"

	"github.com/nhr-fau/sensorstore/internal/config"
	"github.com/nhr-fau/sensorstore/internal/httpapi"
	"github.com/nhr-fau/sensorstore/internal/mqttingest"
	"github.com/nhr-fau/sensorstore/internal/store"
	"github.com/nhr-fau/sensorstore/internal/wunderground"
	slog "github.com/nhr-fau/sensorstore/pkg/log"
)

func runServe(args []string) error {
	flags := pflag.NewFlagSet("serve", pflag.ExitOnError)
	flags.String("config", "./config.json", "path to the configuration file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	keys, err := loadConfig(flags)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	catalog, err := store.NewSensorCatalog(store.DefaultManager(), keys.DBPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", keys.DBPath, err)
	}
	defer func() {
		if err := store.DefaultManager().Close(keys.DBPath); err != nil {
			slog.Warnf("[MAIN]> closing %s: %s", keys.DBPath, err)
		}
	}()

	ctx, cancel := signalContext()
	defer cancel()

	var wg sync.WaitGroup

	if keys.MQTT != nil && keys.MQTT.Broker != "" {
		maxAge, err := config.ParseDuration(keys.MQTT.MaxAge)
		if err != nil {
			return fmt.Errorf("parsing mqtt.max-age: %w", err)
		}
		ingestor := mqttingest.NewIngestor(mqttingest.Config{
			Broker:        keys.MQTT.Broker,
			ClientID:      keys.MQTT.ClientID,
			Username:      keys.MQTT.Username,
			Password:      keys.MQTT.Password,
			TopicFilter:   keys.MQTT.TopicFilter,
			OnlyIfChanged: keys.MQTT.OnlyIfChanged,
			MaxAge:        maxAge,
		}, catalog)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ingestor.Run(ctx); err != nil {
				slog.Errorf("[MAIN]> mqtt ingestor stopped: %s", err)
			}
		}()
	}

	if keys.Wunderground != nil && keys.Wunderground.StationID != "" {
		interval, err := config.ParseDuration(keys.Wunderground.Interval)
		if err != nil {
			return fmt.Errorf("parsing wunderground.interval: %w", err)
		}
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		poller := wunderground.NewPoller(wunderground.Config{
			StationID: keys.Wunderground.StationID,
			APIKey:    keys.Wunderground.APIKey,
			Interval:  interval,
		}, catalog)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := poller.Run(ctx); err != nil {
				slog.Errorf("[MAIN]> wunderground poller stopped: %s", err)
			}
		}()
	}

	srv := httpapi.NewServer(catalog)
	router := mux.NewRouter()
	srv.MountRoutes(router)
	router.Use(handlers.CompressHandler)
	router.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))
	router.Use(handlers.CORS(
		handlers.AllowedHeaders([]string{"Content-Type"}),
		handlers.AllowedMethods([]string{"GET"}),
		handlers.AllowedOrigins([]string{"*"})))

	logged := handlers.CustomLoggingHandler(io.Discard, router, func(_ io.Writer, params handlers.LogFormatterParams) {
		slog.Debugf("%s %s (%d, %.02fkb, %dms)",
			params.Request.Method, params.URL.RequestURI(),
			params.StatusCode, float32(params.Size)/1024,
			time.Since(params.TimeStamp).Milliseconds())
	})

	httpServer := &http.Server{
		Addr:         keys.Addr,
		Handler:      logged,
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 20 * time.Second,
	}

	listener, err := net.Listen("tcp", keys.Addr)
	if err != nil {
		return fmt.Errorf("starting http listener: %w", err)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Infof("[MAIN]> HTTP server listening at %s", keys.Addr)
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Errorf("[MAIN]> http server failed: %s", err)
		}
	}()

	<-ctx.Done()
	slog.Infof("[MAIN]> shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warnf("[MAIN]> http server shutdown: %s", err)
	}
	wg.Wait()
	return nil
}
