package domain

import (
	"encoding/json"
	"strconv"
	"time"
)

const UnitCelsius = "C"

// Payload is the record published to every broker for one reading.
type Payload struct {
	Temperature float64   `json:"temperature"`
	Unit        string    `json:"unit"`
	Device      string    `json:"device"`
	Timestamp   Timestamp `json:"timestamp"`
}

// NewPayload builds the wire record for a reading taken at now.
func NewPayload(r Reading, now time.Time, device DeviceID) Payload {
	return Payload{
		Temperature: roundTo(r.Celsius(), 2),
		Unit:        UnitCelsius,
		Device:      device.String(),
		Timestamp:   NewTimestamp(now),
	}
}

func (p Payload) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// roundTo rounds the exact binary value half to even, so 1/16 °C ties
// such as 22.125 land on 22.12.
func roundTo(v float64, places int) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', places, 64), 64)
	if err != nil {
		return v
	}
	return r
}
