package domain

import (
	"errors"
	"math"
)

var ErrNonFiniteReading = errors.New("reading is not a finite number")

// Reading is a single temperature sample in degrees Celsius.
type Reading struct {
	celsius float64
}

func NewReading(celsius float64) (Reading, error) {
	if math.IsNaN(celsius) || math.IsInf(celsius, 0) {
		return Reading{}, ErrNonFiniteReading
	}
	return Reading{celsius: celsius}, nil
}

func (r Reading) Celsius() float64 {
	return r.celsius
}
