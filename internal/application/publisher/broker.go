package publisher

import (
	"context"
	"io"
)

// BrokerClient is one publish destination. Implementations own their
// connection, including reconnects after the initial Connect.
type BrokerClient interface {
	Name() string
	Connect(ctx context.Context) error
	Publish(ctx context.Context, topic string, payload []byte) error
	IsConnected() bool
	io.Closer
}

// ConnectionStatus reports IsConnected for every client, keyed by name.
// The second result is true when all of them are connected.
func ConnectionStatus(clients []BrokerClient) (map[string]bool, bool) {
	status := make(map[string]bool, len(clients))
	healthy := true
	for _, c := range clients {
		up := c.IsConnected()
		status[c.Name()] = up
		healthy = healthy && up
	}
	return status, healthy
}
