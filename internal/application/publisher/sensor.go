package publisher

import (
	"context"

	"github.com/kvoloboi/pitemp/internal/domain"
)

// SensorReader returns one Celsius reading per call. Failures are
// reported as *SensorReadError.
type SensorReader interface {
	Read(ctx context.Context) (domain.Reading, error)
}
