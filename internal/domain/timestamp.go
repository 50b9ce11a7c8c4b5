package domain

import (
	"strconv"
	"strings"
	"time"
)

type Timestamp struct {
	time time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{time: t}
}

func (t Timestamp) Time() time.Time {
	return t.time
}

// EpochSeconds returns Unix time in seconds with sub-second precision.
func (t Timestamp) EpochSeconds() float64 {
	return float64(t.time.Unix()) + float64(t.time.Nanosecond())/float64(time.Second)
}

// MarshalJSON encodes the timestamp as epoch seconds. Whole seconds keep
// a ".0" suffix so consumers always see a fractional number.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	b := strconv.AppendFloat(nil, t.EpochSeconds(), 'f', -1, 64)
	if !strings.ContainsRune(string(b), '.') {
		b = append(b, '.', '0')
	}
	return b, nil
}
