package publisher

import (
	"context"
	"log/slog"
	"time"

	"github.com/kvoloboi/pitemp/internal/domain"
)

const DefaultInterval = 5 * time.Second

type LoopConfig struct {
	Topic    string
	Device   domain.DeviceID
	Interval time.Duration
}

// Delivery is the outcome of one publish on one destination.
type Delivery struct {
	Client string
	Err    error
}

// IterationResult describes a single read-build-publish pass.
type IterationResult struct {
	Reading    domain.Reading
	ReadErr    error
	EncodeErr  error
	Payload    []byte
	Deliveries []Delivery
}

// Delivered reports how many destinations accepted the payload.
func (r IterationResult) Delivered() int {
	n := 0
	for _, d := range r.Deliveries {
		if d.Err == nil {
			n++
		}
	}
	return n
}

// PublishLoop reads the sensor on a fixed period and fans the payload out
// to every configured broker. Failures are logged and never stop the loop.
type PublishLoop struct {
	sensor   SensorReader
	clients  []BrokerClient
	topic    string
	device   domain.DeviceID
	interval time.Duration
	now      func() time.Time
	encode   func(domain.Payload) ([]byte, error)
	logger   *slog.Logger
	counters *Counters
}

func NewPublishLoop(
	sensor SensorReader,
	clients []BrokerClient,
	cfg LoopConfig,
	logger *slog.Logger,
	counters *Counters,
) *PublishLoop {
	if logger == nil {
		logger = slog.Default()
	}
	if counters == nil {
		counters = NewCounters(nil)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	return &PublishLoop{
		sensor:   sensor,
		clients:  clients,
		topic:    cfg.Topic,
		device:   cfg.Device,
		interval: cfg.Interval,
		now:      time.Now,
		encode:   domain.Payload.Encode,
		logger:   logger,
		counters: counters,
	}
}

// WithClock replaces the wall clock used for payload timestamps.
func (l *PublishLoop) WithClock(now func() time.Time) *PublishLoop {
	l.now = now
	return l
}

// Run iterates until ctx is cancelled. The period is measured from the end
// of one iteration to the start of the next.
func (l *PublishLoop) Run(ctx context.Context) {
	l.logger.Info("publish loop started",
		"topic", l.topic,
		"device", l.device.String(),
		"destinations", len(l.clients),
		"interval", l.interval,
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("publish loop stopped")
			return
		case <-timer.C:
		}

		l.Iterate(ctx)
		timer.Reset(l.interval)
	}
}

// Iterate performs one pass: read, build, publish to every destination.
func (l *PublishLoop) Iterate(ctx context.Context) IterationResult {
	var res IterationResult

	reading, err := l.sensor.Read(ctx)
	if err != nil {
		l.counters.IncReadFailure()
		l.logger.Error("sensor read failed", "err", err)
		res.ReadErr = err
		return res
	}
	l.counters.IncRead()
	res.Reading = reading

	payload := domain.NewPayload(reading, l.now(), l.device)
	body, err := l.encode(payload)
	if err != nil {
		l.logger.Error("payload encoding failed", "err", err)
		res.EncodeErr = err
		return res
	}
	res.Payload = body

	res.Deliveries = make([]Delivery, 0, len(l.clients))
	for _, c := range l.clients {
		res.Deliveries = append(res.Deliveries, l.publish(ctx, c, body))
	}

	return res
}

func (l *PublishLoop) publish(ctx context.Context, c BrokerClient, body []byte) Delivery {
	name := c.Name()

	if err := c.Publish(ctx, l.topic, body); err != nil {
		l.counters.IncFailed(name)
		l.logger.Error("publish failed",
			"destination", name,
			"topic", l.topic,
			"err", err,
		)
		return Delivery{Client: name, Err: err}
	}

	l.counters.IncPublished(name)
	l.logger.Info("published",
		"destination", name,
		"topic", l.topic,
		"payload", string(body),
	)
	return Delivery{Client: name}
}
