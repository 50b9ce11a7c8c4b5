package publisher

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected   = errors.New("broker not connected")
	ErrPublishTimeout = errors.New("publish timed out")
	ErrConnectTimeout = errors.New("connect timed out")
)

// SensorReadError reports that the sensor could not produce a value.
type SensorReadError struct {
	Sensor string
	Err    error
}

func (e *SensorReadError) Error() string {
	return fmt.Sprintf("read sensor %s: %v", e.Sensor, e.Err)
}

func (e *SensorReadError) Unwrap() error { return e.Err }

// ConnectError reports a failed initial session with a broker.
type ConnectError struct {
	Broker string
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Broker, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// PublishError reports a failed publish on one destination.
type PublishError struct {
	Broker string
	Topic  string
	Err    error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s on %q: %v", e.Broker, e.Topic, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
