// Copyright (C) sensorstore contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package mqttingest subscribes to an MQTT topic filter and writes each
// message through to a sensor, mapping topic -> sensor name and payload
// -> timestamped sample.
package mqttingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nhr-fau/sensorstore/internal/store"
	slog "github.com/nhr-fau/sensorstore/pkg/log"
)

// DefaultTopicFilter is subscribed to when Config.TopicFilter is empty.
const DefaultTopicFilter = "sensors/+/value"

// Config configures an Ingestor.
type Config struct {
	Broker        string
	ClientID      string
	Username      string
	Password      string
	TopicFilter   string
	OnlyIfChanged bool
	MaxAge        time.Duration
}

// Ingestor subscribes to Config.TopicFilter and writes every message it
// receives to the sensor named by the message's topic, via Catalog.
type Ingestor struct {
	cfg     Config
	catalog *store.SensorCatalog
	client  pahomqtt.Client
}

// NewIngestor builds an Ingestor that writes through catalog. It does not
// connect; call Run for that.
func NewIngestor(cfg Config, catalog *store.SensorCatalog) *Ingestor {
	if cfg.TopicFilter == "" {
		cfg.TopicFilter = DefaultTopicFilter
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("sensorstore-%d", time.Now().Unix()))
	}
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(pahomqtt.Client) {
		slog.Infof("[MQTTINGEST]> connected to %s", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ pahomqtt.Client, err error) {
		slog.Warnf("[MQTTINGEST]> connection lost: %s", err)
	}

	ing := &Ingestor{cfg: cfg, catalog: catalog}
	opts.SetDefaultPublishHandler(ing.onMessage)
	ing.client = pahomqtt.NewClient(opts)
	return ing
}

// Run connects to the broker and subscribes to the configured topic
// filter. It blocks until ctx is cancelled, then disconnects.
func (ing *Ingestor) Run(ctx context.Context) error {
	token := ing.client.Connect()
	select {
	case <-token.Done():
		if token.Error() != nil {
			return fmt.Errorf("%w: connecting to mqtt broker %s: %v", store.ErrIO, ing.cfg.Broker, token.Error())
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	subToken := ing.client.Subscribe(ing.cfg.TopicFilter, 1, ing.onMessage)
	subToken.Wait()
	if subToken.Error() != nil {
		return fmt.Errorf("%w: subscribing to %s: %v", store.ErrIO, ing.cfg.TopicFilter, subToken.Error())
	}
	slog.Infof("[MQTTINGEST]> subscribed to %s", ing.cfg.TopicFilter)

	<-ctx.Done()
	ing.client.Disconnect(250)
	return nil
}

// sensorName extracts the sensor name from a topic, per the
// "sensors/<name>/value" default filter's shape: the second-to-last
// segment. A topic with fewer than two segments is used verbatim.
func sensorName(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return topic
	}
	return parts[len(parts)-2]
}

type taggedPayload struct {
	T *time.Time `json:"t"`
	V any        `json:"v"`
}

// decodePayload parses an MQTT payload as either a bare number or a JSON
// object {"t":..., "v":...} carrying an explicit timestamp. A bare
// number is stamped with the current time.
func decodePayload(payload []byte) (time.Time, any, error) {
	text := strings.TrimSpace(string(payload))

	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return time.Now(), f, nil
	}

	var tagged taggedPayload
	if err := json.Unmarshal(payload, &tagged); err != nil {
		return time.Time{}, nil, fmt.Errorf("%w: mqtt payload %q is neither a number nor a {t,v} object: %v", store.ErrDecode, text, err)
	}
	if tagged.V == nil {
		return time.Time{}, nil, fmt.Errorf("%w: mqtt payload %q is missing field 'v'", store.ErrDecode, text)
	}
	ts := time.Now()
	if tagged.T != nil {
		ts = *tagged.T
	}
	return ts, tagged.V, nil
}

func (ing *Ingestor) onMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	name := sensorName(msg.Topic())
	ts, value, err := decodePayload(msg.Payload())
	if err != nil {
		slog.Errorf("[MQTTINGEST]> topic %s: %s", msg.Topic(), err)
		return
	}

	sensor, err := ing.catalog.Get(name)
	if err != nil {
		slog.Errorf("[MQTTINGEST]> topic %s: resolving sensor %q: %s", msg.Topic(), name, err)
		return
	}

	if _, err := sensor.Write(ts, value, ing.cfg.OnlyIfChanged, ing.cfg.MaxAge); err != nil {
		slog.Errorf("[MQTTINGEST]> topic %s: writing sensor %q: %s", msg.Topic(), name, err)
	}
}
