package natsclient

import (
	"errors"
	"log/slog"
	"time"

	"github.com/prcore/prcore/metric"
)

// ClientOption configures a Client at construction.
type ClientOption func(*Client) error

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithReconnectWait sets the fixed delay between reconnect attempts.
func WithReconnectWait(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return errors.New("reconnect wait must be positive")
		}
		c.reconnectWait = d
		return nil
	}
}

// WithConnectTimeout sets the initial dial timeout.
func WithConnectTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return errors.New("connect timeout must be positive")
		}
		c.connectTimeout = d
		return nil
	}
}

// WithClientName names the connection for broker-side monitoring.
func WithClientName(name string) ClientOption {
	return func(c *Client) error {
		if name == "" {
			return errors.New("client name cannot be empty")
		}
		c.clientName = name
		return nil
	}
}

// WithMetrics wires connection gauges and reconnect counters.
func WithMetrics(m *metric.Metrics) ClientOption {
	return func(c *Client) error {
		c.metrics = m
		return nil
	}
}
