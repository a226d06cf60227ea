package main

import (
	"encoding/json"
	"testing"
	"time"

	"i4.energy/across/heracles/modem"
	"i4.energy/across/heracles/sensors"
	"periph.io/x/conn/v3/physic"
)

func TestBuildReport(t *testing.T) {
	broker := BrokerConfig{CompanyID: "acme", DeviceID: "dev42"}
	now := time.Date(2024, 3, 5, 8, 20, 30, 123e6, time.UTC)

	t.Run("Full snapshot", func(t *testing.T) {
		snap := sensors.Snapshot{
			Has: sensors.Temperature | sensors.Humidity | sensors.Pressure,
			Env: physic.Env{
				Temperature: physic.ZeroCelsius + 20*physic.Celsius,
				Humidity:    45 * physic.PercentRH,
				Pressure:    1000 * 100 * physic.Pascal,
			},
		}
		payload, err := buildReport(broker, snap, -73, now)
		if err != nil {
			t.Fatalf("unexpected error from buildReport(): %v", err)
		}

		var got map[string]any
		if err := json.Unmarshal(payload, &got); err != nil {
			t.Fatal(err)
		}
		if got["cpId"] != "acme" || got["t"] != "2024-03-05T08:20:30.123Z" || got["mt"] != float64(0) {
			t.Errorf("unexpected header: %s", payload)
		}
		d := got["d"].([]any)[0].(map[string]any)
		if d["id"] != "dev42" || d["dt"] != "2024-03-05T08:20:30.123Z" {
			t.Errorf("unexpected device entry: %v", d)
		}
		m := d["d"].([]any)[0].(map[string]any)
		if m["temp"] != float64(20) || m["hum"] != float64(45) || m["press"] != float64(1000) || m["rssi"] != float64(-73) {
			t.Errorf("unexpected measurement: %v", m)
		}
	})

	t.Run("Missing values are left out", func(t *testing.T) {
		payload, err := buildReport(broker, sensors.Snapshot{}, modem.UnknownRSSI, now)
		if err != nil {
			t.Fatalf("unexpected error from buildReport(): %v", err)
		}

		var r report
		if err := json.Unmarshal(payload, &r); err != nil {
			t.Fatal(err)
		}
		m := r.Devices[0].Data[0]
		if m.Temperature != nil || m.Humidity != nil || m.Pressure != nil || m.RSSI != nil {
			t.Errorf("expected empty measurement, got: %s", payload)
		}
	})
}

func TestTopics(t *testing.T) {
	if got := eventsTopic("acme-dev42"); got != "devices/acme-dev42/messages/events/" {
		t.Errorf("unexpected events topic: %q", got)
	}
	if got := commandTopic("acme-dev42"); got != "devices/acme-dev42/messages/devicebound/#" {
		t.Errorf("unexpected command topic: %q", got)
	}
}

func TestTwinPayload(t *testing.T) {
	payload, err := twinPayload("1951B08SIM7080")
	if err != nil {
		t.Fatal(err)
	}
	if string(payload) != `{"fw":"1951B08SIM7080"}` {
		t.Errorf("unexpected twin payload: %s", payload)
	}
}
