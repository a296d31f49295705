package progress

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/dukerupert/courier/internal/worker"
)

// NATSConfig holds NATS publisher configuration
type NATSConfig struct {
	URL           string
	SubjectPrefix string // events go to <prefix>.<runID>
	Name          string
}

// publisher is the subset of *nats.Conn the sink needs.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes progress events as JSON to NATS.
type NATSSink struct {
	conn   publisher
	nc     *nats.Conn
	prefix string
	logger *slog.Logger
}

// NewNATSSink connects to the configured server.
func NewNATSSink(cfg NATSConfig, logger *slog.Logger) (*NATSSink, error) {
	if cfg.Name == "" {
		cfg.Name = "courier"
	}
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	sink := newNATSSink(nc, cfg.SubjectPrefix, logger)
	sink.nc = nc
	return sink, nil
}

func newNATSSink(conn publisher, prefix string, logger *slog.Logger) *NATSSink {
	if prefix == "" {
		prefix = "courier.progress"
	}
	return &NATSSink{conn: conn, prefix: prefix, logger: logger}
}

// Subject returns the subject events of runID are published on.
func (s *NATSSink) Subject(runID string) string {
	return s.prefix + "." + runID
}

// Publish sends event to NATS. Failures are logged and otherwise ignored.
func (s *NATSSink) Publish(event worker.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("failed to encode progress event", "error", err)
		return
	}
	if err := s.conn.Publish(s.Subject(event.RunID), data); err != nil {
		s.logger.Warn("failed to publish progress event",
			"run_id", event.RunID,
			"error", err,
		)
	}
}

// Close drains pending messages and closes the connection.
func (s *NATSSink) Close() error {
	if s.nc == nil {
		return nil
	}
	return s.nc.Drain()
}
