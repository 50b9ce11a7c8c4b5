package plain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/kvoloboi/pitemp/internal/application/publisher"
)

// QoS is fire-and-forget; the mirror is best effort.
const QoS byte = 0

const (
	DefaultPort             = 1883
	DefaultKeepAlive        = 60 * time.Second
	DefaultConnectTimeout   = 10 * time.Second
	DefaultOperationTimeout = 5 * time.Second
)

type Config struct {
	Name             string
	Host             string
	Port             int
	ClientID         string
	KeepAlive        time.Duration
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "mirror"
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
}

func (c Config) BrokerURL() string {
	return "mqtt://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// connection is what the client needs from an autopaho connection manager.
type connection interface {
	AwaitConnection(ctx context.Context) error
	Publish(ctx context.Context, p *paho.Publish) error
	Disconnect(ctx context.Context) error
}

type dialFunc func(ctx context.Context, cfg autopaho.ClientConfig) (connection, error)

type managerConn struct {
	cm *autopaho.ConnectionManager
}

func (m managerConn) AwaitConnection(ctx context.Context) error { return m.cm.AwaitConnection(ctx) }
func (m managerConn) Disconnect(ctx context.Context) error      { return m.cm.Disconnect(ctx) }

func (m managerConn) Publish(ctx context.Context, p *paho.Publish) error {
	_, err := m.cm.Publish(ctx, p)
	return err
}

func dialManager(ctx context.Context, cfg autopaho.ClientConfig) (connection, error) {
	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return managerConn{cm: cm}, nil
}

// Client publishes to a plaintext broker. autopaho keeps the session alive
// and redials in the background; the client only tracks whether it is up.
type Client struct {
	cfg    Config
	url    *url.URL
	dial   dialFunc
	conn   connection
	logger *slog.Logger

	connected atomic.Bool
	closed    atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Host == "" {
		return nil, errors.New("plain broker: host is required")
	}
	cfg.applyDefaults()

	u, err := url.Parse(cfg.BrokerURL())
	if err != nil {
		return nil, fmt.Errorf("parse broker url: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		cfg:    cfg,
		url:    u,
		dial:   dialManager,
		logger: logger.With("destination", cfg.Name),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

func (c *Client) Name() string { return c.cfg.Name }

func (c *Client) IsConnected() bool { return c.connected.Load() }

func (c *Client) clientConfig() autopaho.ClientConfig {
	return autopaho.ClientConfig{
		ServerUrls: []*url.URL{c.url},
		KeepAlive:  uint16(c.cfg.KeepAlive / time.Second),
		OnConnectionUp: func(_ *autopaho.ConnectionManager, _ *paho.Connack) {
			c.connectionUp()
		},
		OnConnectError: func(err error) {
			c.connectionDown("connect failed", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: c.cfg.ClientID,
			OnClientError: func(err error) {
				c.connectionDown("client error", err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				c.connectionDown("server disconnect", fmt.Errorf("reason code %d", d.ReasonCode))
			},
		},
	}
}

func (c *Client) connectionUp() {
	if !c.connected.Swap(true) {
		c.logger.Info("connected to broker", "broker", c.url.String(), "client_id", c.cfg.ClientID)
	}
}

func (c *Client) connectionDown(reason string, err error) {
	wasUp := c.connected.Swap(false)
	if c.closed.Load() {
		return
	}
	if wasUp {
		c.logger.Warn("connection lost", "reason", reason, "err", err)
		return
	}
	c.logger.Debug("broker unavailable", "reason", reason, "err", err)
}

// Connect starts the connection manager and waits for the first CONNACK.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.dial(c.ctx, c.clientConfig())
	if err != nil {
		return &publisher.ConnectError{Broker: c.url.String(), Err: err}
	}
	c.conn = conn

	connCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	if err := conn.AwaitConnection(connCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = publisher.ErrConnectTimeout
		}
		return &publisher.ConnectError{Broker: c.url.String(), Err: err}
	}

	c.connectionUp()
	return nil
}

func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	if c.conn == nil || !c.connected.Load() {
		return &publisher.PublishError{Broker: c.cfg.Name, Topic: topic, Err: publisher.ErrNotConnected}
	}

	pubCtx, cancel := context.WithTimeout(ctx, c.cfg.OperationTimeout)
	defer cancel()

	err := c.conn.Publish(pubCtx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     QoS,
		Retain:  false,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = publisher.ErrPublishTimeout
		}
		return &publisher.PublishError{Broker: c.cfg.Name, Topic: topic, Err: err}
	}

	return nil
}

// Close sends DISCONNECT and stops the connection manager.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	defer c.cancel()

	if c.conn == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()

	err := c.conn.Disconnect(ctx)
	c.connected.Store(false)
	if err != nil {
		return fmt.Errorf("disconnect %s: %w", c.cfg.Name, err)
	}

	c.logger.Info("disconnected from broker")
	return nil
}
