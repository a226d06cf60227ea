package main

import (
	"encoding/json"
	"time"

	"i4.energy/across/heracles/modem"
	"i4.energy/across/heracles/sensors"
)

const (
	twinTopic = "$iothub/twin/PATCH/properties/reported/?$rid=1"

	reportLanguage = "M_C"
	reportVersion  = "2.0"
	reportEnv      = "prod"
	reportTime     = "2006-01-02T15:04:05.000Z"
)

func eventsTopic(clientID string) string {
	return "devices/" + clientID + "/messages/events/"
}

func commandTopic(clientID string) string {
	return "devices/" + clientID + "/messages/devicebound/#"
}

type report struct {
	CompanyID   string         `json:"cpId"`
	Time        string         `json:"t"`
	MessageType int            `json:"mt"`
	SDK         reportSDK      `json:"sdk"`
	Devices     []deviceReport `json:"d"`
}

type reportSDK struct {
	Language    string `json:"l"`
	Version     string `json:"v"`
	Environment string `json:"e"`
}

type deviceReport struct {
	ID   string        `json:"id"`
	Tag  string        `json:"tg"`
	Time string        `json:"dt"`
	Data []measurement `json:"d"`
}

// measurement leaves out every quantity the sensor set could not read.
type measurement struct {
	Temperature *float64 `json:"temp,omitempty"`
	Humidity    *float64 `json:"hum,omitempty"`
	Pressure    *float64 `json:"press,omitempty"`
	RSSI        *int     `json:"rssi,omitempty"`
}

// buildReport renders one telemetry message. rssi is in dBm, or
// modem.UnknownRSSI when the modem could not tell.
func buildReport(b BrokerConfig, snap sensors.Snapshot, rssi int, now time.Time) ([]byte, error) {
	ts := now.UTC().Format(reportTime)

	var m measurement
	if v, ok := snap.Celsius(); ok {
		m.Temperature = &v
	}
	if v, ok := snap.RelativeHumidity(); ok {
		m.Humidity = &v
	}
	if v, ok := snap.Hectopascal(); ok {
		m.Pressure = &v
	}
	if rssi != modem.UnknownRSSI {
		m.RSSI = &rssi
	}

	return json.Marshal(report{
		CompanyID: b.CompanyID,
		Time:      ts,
		SDK: reportSDK{
			Language:    reportLanguage,
			Version:     reportVersion,
			Environment: reportEnv,
		},
		Devices: []deviceReport{{
			ID:   b.DeviceID,
			Time: ts,
			Data: []measurement{m},
		}},
	})
}

func twinPayload(firmware string) ([]byte, error) {
	return json.Marshal(struct {
		Firmware string `json:"fw"`
	}{firmware})
}
