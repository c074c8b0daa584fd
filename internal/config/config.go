// Package config loads the controller's YAML configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Device struct {
	// Address is the controller's host[:port]. Empty means simulate.
	Address string `yaml:"address"`
	// Simulator runs the in-process simulated controller instead of
	// real hardware.
	Simulator bool `yaml:"simulator"`
}

type Site struct {
	// Latitude and Longitude are decimal degrees, north and east
	// positive. When both are zero the device's own place is used.
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	// Height is meters above sea level, for ephemerides.
	Height float64 `yaml:"height"`
	// MinAltitude refuses gotos below this altitude in degrees. Zero
	// disables the check.
	MinAltitude float64 `yaml:"min_altitude"`
}

type MQTT struct {
	// Broker is the connection URL, e.g. tcp://localhost:1883. Empty
	// disables the bridge.
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// Topic is the prefix; status and events publish beneath it.
	Topic string `yaml:"topic"`
	QoS   byte   `yaml:"qos"`
}

type Config struct {
	Device Device `yaml:"device"`
	Site   Site   `yaml:"site"`
	MQTT   MQTT   `yaml:"mqtt"`
	// AutoRevert lets the session perform meridian flips on its own
	// when the encoder check reports a hazard.
	AutoRevert bool `yaml:"auto_revert"`
	// PollSeconds overrides the status poll cadence; zero keeps the
	// default.
	PollSeconds int `yaml:"poll_seconds"`
	// ScreenSeconds overrides the framebuffer grab cadence; zero keeps
	// the default.
	ScreenSeconds int `yaml:"screen_seconds"`
}

func Default() Config {
	return Config{
		MQTT: MQTT{
			ClientID: "starbook",
			Topic:    "starbook",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.MQTT.QoS > 2 {
		return cfg, fmt.Errorf("config %s: mqtt qos %d out of range 0..2", path, cfg.MQTT.QoS)
	}
	if cfg.PollSeconds < 0 || cfg.ScreenSeconds < 0 {
		return cfg, fmt.Errorf("config %s: poll intervals must not be negative", path)
	}
	return cfg, nil
}
