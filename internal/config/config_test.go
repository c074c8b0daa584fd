package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "starbook.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
device:
  address: 169.254.1.1
site:
  latitude: 42.36
  longitude: -71.09
  min_altitude: 10
mqtt:
  broker: tcp://localhost:1883
  qos: 1
auto_revert: true
poll_seconds: 2
`)
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned %v", err)
	}
	want := Default()
	want.Device.Address = "169.254.1.1"
	want.Site = Site{Latitude: 42.36, Longitude: -71.09, MinAltitude: 10}
	want.MQTT.Broker = "tcp://localhost:1883"
	want.MQTT.QoS = 1
	want.AutoRevert = true
	want.PollSeconds = 2
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("Load diff (got +want):\n%s", diff)
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "device:\n  simulator: true\n")
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned %v", err)
	}
	if got.MQTT.ClientID != "starbook" || got.MQTT.Topic != "starbook" {
		t.Errorf("defaults lost: %+v", got.MQTT)
	}
	if !got.Device.Simulator {
		t.Error("simulator flag not read")
	}
}

func TestLoadRejectsBadQoS(t *testing.T) {
	path := writeConfig(t, "mqtt:\n  qos: 3\n")
	if _, err := Load(path); err == nil {
		t.Error("Load accepted qos 3")
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := writeConfig(t, "{{{not yaml")
	if _, err := Load(path); err == nil {
		t.Error("Load accepted malformed YAML")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load accepted a missing file")
	}
}
