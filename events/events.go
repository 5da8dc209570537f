// Package events delivers bridge status events to subscribers outside the
// process.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aethercore-labs/aethercore/bridge"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubject is the NATS subject bridge status events are published on.
const DefaultSubject = "aethercore.bridge.status"

// Message is the wire form of a bridge.StatusEvent.
type Message struct {
	TransactionID string              `json:"transaction_id"`
	UserID        string              `json:"user_id"`
	Previous      bridge.Status       `json:"previous,omitempty"`
	Status        bridge.Status       `json:"status"`
	OccurredAt    time.Time           `json:"occurred_at"`
	Transaction   *bridge.Transaction `json:"transaction,omitempty"`
}

func NewMessage(ev bridge.StatusEvent) Message {
	return Message{
		TransactionID: ev.TransactionID,
		UserID:        ev.UserID,
		Previous:      ev.Previous,
		Status:        ev.Status,
		OccurredAt:    ev.OccurredAt,
		Transaction:   ev.Transaction,
	}
}

// NATSConfig mirrors the nats section of the configuration.
type NATSConfig struct {
	URL               string
	Subject           string
	ConnectTimeout    time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration
}

type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes status events as JSON on a core NATS subject.
type NATSPublisher struct {
	conn    conn
	subject string
	logger  *zap.Logger
}

func NewNATSPublisher(cfg NATSConfig, logger *zap.Logger) (*NATSPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url is required")
	}
	logger = logger.Named("nats-publisher")
	logger.Info("Connecting to NATS server", zap.String("url", cfg.URL))

	opts := []nats.Option{
		nats.Name("aethercore-bridge"),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}
	if cfg.ConnectTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnectTimeout))
	}
	if cfg.ReconnectDelay > 0 {
		opts = append(opts, nats.ReconnectWait(cfg.ReconnectDelay))
	}
	if cfg.ReconnectAttempts != 0 {
		opts = append(opts, nats.MaxReconnects(cfg.ReconnectAttempts))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return newNATSPublisher(nc, cfg.Subject, logger), nil
}

func newNATSPublisher(c conn, subject string, logger *zap.Logger) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{conn: c, subject: subject, logger: logger}
}

func (p *NATSPublisher) Publish(ctx context.Context, ev bridge.StatusEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(NewMessage(ev))
	if err != nil {
		return fmt.Errorf("encode status event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", p.subject, err)
	}
	p.logger.Debug("status event published",
		zap.String("subject", p.subject),
		zap.String("tx_id", ev.TransactionID),
		zap.String("status", string(ev.Status)))
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// Fanout publishes every event to all of its publishers. A failing
// publisher does not stop delivery to the others; their errors are joined.
type Fanout struct {
	publishers []bridge.Publisher
	logger     *zap.Logger
}

func NewFanout(logger *zap.Logger, publishers ...bridge.Publisher) *Fanout {
	f := &Fanout{logger: logger}
	for _, p := range publishers {
		if p != nil {
			f.publishers = append(f.publishers, p)
		}
	}
	return f
}

func (f *Fanout) Add(p bridge.Publisher) {
	f.publishers = append(f.publishers, p)
}

func (f *Fanout) Publish(ctx context.Context, ev bridge.StatusEvent) error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.Publish(ctx, ev); err != nil {
			f.logger.Warn("status event not delivered",
				zap.String("tx_id", ev.TransactionID),
				zap.String("publisher", fmt.Sprintf("%T", p)),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
