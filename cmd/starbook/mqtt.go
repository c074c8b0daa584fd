package main

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/w1xm/starbook_interface/internal/config"
	"github.com/w1xm/starbook_interface/starbook"
)

// mqttBridge publishes every status snapshot (retained) and every edge
// event to the configured broker, for home-automation consumers.
type mqttBridge struct {
	client mqtt.Client
	topic  string
	qos    byte
}

func newMQTTBridge(cfg config.MQTT) (*mqttBridge, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("mqtt connection lost: %v", err)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect to %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.Broker, err)
	}
	log.Printf("mqtt connected to %s", cfg.Broker)
	return &mqttBridge{client: client, topic: cfg.Topic, qos: cfg.QoS}, nil
}

func (b *mqttBridge) publishStatus(msg StatusMessage) {
	if !b.client.IsConnected() {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("mqtt status marshal: %v", err)
		return
	}
	b.client.Publish(b.topic+"/status", b.qos, true, payload)
}

func (b *mqttBridge) publishEvent(e starbook.Event) {
	if !b.client.IsConnected() {
		return
	}
	b.client.Publish(b.topic+"/event", b.qos, false, []byte(e))
}

func (b *mqttBridge) close() {
	b.client.Disconnect(250)
}
