package secure

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/kvoloboi/pitemp/internal/application/common"
	"github.com/kvoloboi/pitemp/internal/application/publisher"
)

// QoS is at-least-once: a publish completes when the broker sends PUBACK.
const QoS byte = 1

const (
	DefaultPort             = 8883
	DefaultKeepAlive        = 30 * time.Second
	DefaultConnectTimeout   = 10 * time.Second
	DefaultOperationTimeout = 5 * time.Second
	DefaultStableAfter      = 20 * time.Second
)

var errTokenTimeout = errors.New("token wait timed out")

// pahoClient is the subset of mqtt.Client the broker client drives.
type pahoClient interface {
	IsConnected() bool
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type Config struct {
	Name             string
	Endpoint         string
	Port             int
	ClientID         string
	TLS              *tls.Config
	KeepAlive        time.Duration
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
	Backoff          common.Backoff
	StableAfter      time.Duration
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "cloud"
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = DefaultKeepAlive
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = DefaultOperationTimeout
	}
	if c.Backoff.BaseDelay <= 0 || c.Backoff.MaxDelay <= 0 {
		c.Backoff = common.NewBackoff(time.Second, 32*time.Second)
	}
	if c.StableAfter <= 0 {
		c.StableAfter = DefaultStableAfter
	}
}

// BrokerURL is the paho server URI for the endpoint.
func (c Config) BrokerURL() string {
	return "tls://" + net.JoinHostPort(c.Endpoint, strconv.Itoa(c.Port))
}

// Client publishes over mutual TLS. paho's own auto-reconnect is off;
// a supervisor goroutine redials after connection loss using the reconnect
// policy so the delays stay bounded and observable.
type Client struct {
	cfg    Config
	client pahoClient
	policy *common.ReconnectPolicy
	logger *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error

	lost   chan error
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	start  sync.Once
	closed atomic.Bool
}

func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("secure broker: endpoint is required")
	}
	if cfg.TLS == nil {
		return nil, errors.New("secure broker: tls config is required")
	}
	cfg.applyDefaults()

	c := newClient(cfg, nil, logger)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL()).
		SetClientID(cfg.ClientID).
		SetTLSConfig(cfg.TLS).
		SetKeepAlive(cfg.KeepAlive).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetWriteTimeout(cfg.OperationTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			c.connectionLost(err)
		})

	c.client = mqtt.NewClient(opts)
	return c, nil
}

func newClient(cfg Config, client pahoClient, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		cfg:    cfg,
		client: client,
		policy: common.NewReconnectPolicy(cfg.Backoff, cfg.StableAfter),
		logger: logger.With("destination", cfg.Name),
		sleep:  sleepContext,
		lost:   make(chan error, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (c *Client) Name() string { return c.cfg.Name }

func (c *Client) IsConnected() bool { return c.client.IsConnected() }

// Connect opens the first session and starts the reconnect supervisor.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.dial(ctx); err != nil {
		return &publisher.ConnectError{Broker: c.cfg.BrokerURL(), Err: err}
	}

	c.logger.Info("connected to broker", "broker", c.cfg.BrokerURL(), "client_id", c.cfg.ClientID)
	c.start.Do(func() { go c.supervise() })
	return nil
}

func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	if !c.client.IsConnected() {
		return &publisher.PublishError{Broker: c.cfg.Name, Topic: topic, Err: publisher.ErrNotConnected}
	}

	token := c.client.Publish(topic, QoS, false, payload)
	if err := waitToken(ctx, token, c.cfg.OperationTimeout); err != nil {
		switch {
		case errors.Is(err, errTokenTimeout):
			err = publisher.ErrPublishTimeout
		case errors.Is(err, mqtt.ErrNotConnected):
			err = publisher.ErrNotConnected
		}
		return &publisher.PublishError{Broker: c.cfg.Name, Topic: topic, Err: err}
	}

	return nil
}

// Close stops the supervisor and disconnects, waiting at most the connect
// timeout for in-flight work to drain.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	c.cancel()
	c.start.Do(func() { close(c.done) })
	<-c.done

	if c.client.IsConnected() {
		c.client.Disconnect(uint(c.cfg.ConnectTimeout.Milliseconds()))
	}
	c.logger.Info("disconnected from broker")
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	token := c.client.Connect()
	if err := waitToken(ctx, token, c.cfg.ConnectTimeout); err != nil {
		if errors.Is(err, errTokenTimeout) {
			return publisher.ErrConnectTimeout
		}
		return err
	}

	c.policy.Connected()
	return nil
}

func (c *Client) connectionLost(err error) {
	select {
	case c.lost <- err:
	default:
	}
}

func (c *Client) supervise() {
	defer close(c.done)

	for {
		select {
		case <-c.ctx.Done():
			return
		case err := <-c.lost:
			c.logger.Warn("connection lost", "err", err)
			c.reconnect()
		}
	}
}

func (c *Client) reconnect() {
	for attempt := 1; ; attempt++ {
		delay := c.policy.Next()

		c.logger.Warn("reconnecting", "attempt", attempt, "delay", delay)

		if err := c.sleep(c.ctx, delay); err != nil {
			return
		}

		if err := c.dial(c.ctx); err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Warn("reconnect failed", "attempt", attempt, "err", err)
			continue
		}

		c.logger.Info("reconnected", "attempt", attempt)
		return
	}
}

// waitToken blocks until token completes, ctx ends or timeout elapses.
func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("%w after %s", errTokenTimeout, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RouteLibraryLogs forwards paho's internal error and warning output to logger.
func RouteLibraryLogs(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	mqtt.ERROR = slog.NewLogLogger(logger.Handler(), slog.LevelError)
	mqtt.CRITICAL = slog.NewLogLogger(logger.Handler(), slog.LevelError)
	mqtt.WARN = slog.NewLogLogger(logger.Handler(), slog.LevelWarn)
}
