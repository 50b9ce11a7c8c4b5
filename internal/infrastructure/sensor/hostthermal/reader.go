// Package hostthermal reads a temperature exposed by the host's thermal
// or hwmon subsystem. It stands in for the I2C sensor on boards that do not
// carry one.
package hostthermal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kvoloboi/pitemp/internal/application/publisher"
	"github.com/kvoloboi/pitemp/internal/domain"
	"github.com/shirou/gopsutil/v3/host"
)

const DefaultKey = "cpu_thermal"

var ErrSensorNotFound = errors.New("no matching host temperature sensor")

type listFunc func(ctx context.Context) ([]host.TemperatureStat, error)

// Reader picks the first host sensor whose key contains Key.
type Reader struct {
	key  string
	list listFunc
}

func New(key string) *Reader {
	if key == "" {
		key = DefaultKey
	}
	return &Reader{
		key:  key,
		list: host.SensorsTemperaturesWithContext,
	}
}

func (r *Reader) Read(ctx context.Context) (domain.Reading, error) {
	stats, err := r.list(ctx)
	// gopsutil returns partial results together with warnings.
	if err != nil && len(stats) == 0 {
		return domain.Reading{}, r.fail(fmt.Errorf("list sensors: %w", err))
	}

	for _, s := range stats {
		if !strings.Contains(s.SensorKey, r.key) {
			continue
		}
		reading, err := domain.NewReading(s.Temperature)
		if err != nil {
			return domain.Reading{}, r.fail(err)
		}
		return reading, nil
	}

	return domain.Reading{}, r.fail(ErrSensorNotFound)
}

func (r *Reader) fail(err error) error {
	return &publisher.SensorReadError{Sensor: "host:" + r.key, Err: err}
}
