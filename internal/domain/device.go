package domain

import "errors"

// DeviceID identifies the publishing device inside every payload.
type DeviceID struct {
	id string
}

const MaxDeviceIDLen = 128

var (
	ErrDeviceIDTooLong = errors.New("device id too long")
	ErrDeviceIDEmpty   = errors.New("device id cannot be empty")
)

func NewDeviceID(id string) (DeviceID, error) {
	if len(id) == 0 {
		return DeviceID{}, ErrDeviceIDEmpty
	}
	if len(id) > MaxDeviceIDLen {
		return DeviceID{}, ErrDeviceIDTooLong
	}
	return DeviceID{id: id}, nil
}

func (d DeviceID) String() string {
	return d.id
}
