package server

import (
	"context"
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/firewatch/detection-server/internal/logger"
	"github.com/firewatch/detection-server/pkg/types"
)

// MQTTBridge is a second ingress: detectors that publish to an MQTT topic
// instead of POSTing enter the identical normalize/broadcast/gate/append
// path, so the gate and the retention cap see one unified stream.
type MQTTBridge struct {
	client mqtt.Client
	topic  string
}

// StartMQTTBridge connects to the broker and subscribes to the detection
// topic. Messages that are not valid JSON objects are logged and dropped;
// numeric sloppiness inside a valid object degrades per field like HTTP
// ingress.
func StartMQTTBridge(cfg Config, srv *Server) (*MQTTBridge, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClient).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		var payload types.DetectionPayload
		if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
			logger.Warn("MQTT", "Dropped malformed message on %s: %v", msg.Topic(), err)
			return
		}
		ev := srv.Ingest(context.Background(), payload)
		logger.Debug("MQTT", "Ingested %s from %s", ev.ClassName, ev.AIServerID)
	}

	if token := client.Subscribe(cfg.MQTTopic, 0, handler); token.Wait() && token.Error() != nil {
		client.Disconnect(250)
		return nil, fmt.Errorf("mqtt subscribe %s: %w", cfg.MQTTopic, token.Error())
	}

	logger.Info("MQTT", "Bridge listening on %s (broker %s)", cfg.MQTTopic, cfg.MQTTBroker)
	return &MQTTBridge{client: client, topic: cfg.MQTTopic}, nil
}

// Close unsubscribes and disconnects from the broker.
func (b *MQTTBridge) Close() {
	if token := b.client.Unsubscribe(b.topic); token.Wait() && token.Error() != nil {
		logger.Warn("MQTT", "Unsubscribe failed: %v", token.Error())
	}
	b.client.Disconnect(250)
}
