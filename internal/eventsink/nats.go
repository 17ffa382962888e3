package eventsink

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/models"
)

const snapshotSubject = "tokens.snapshot"

// eventSubject routes events by kind, e.g. tokens.events.price_alert.
func eventSubject(kind models.EventKind) string {
	return "tokens.events." + string(kind)
}

// conn is the slice of *nats.Conn the sink relies on.
type conn interface {
	Publish(subject string, data []byte) error
	IsConnected() bool
	Drain() error
	Close()
}

// Config holds NATS connection settings.
type Config struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
}

func (c Config) normalized() Config {
	if c.Name == "" {
		c.Name = "meme-coin-aggregrator"
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = -1
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 2 * time.Second
	}
	return c
}

// NATSSink publishes events and snapshots to NATS subjects.
type NATSSink struct {
	conn   conn
	logger zerolog.Logger
}

var _ Sink = (*NATSSink)(nil)
var _ Sink = Noop{}

// DialNATS connects to the bus and returns a sink over the connection.
// Reconnects are handled by the client; publishes while disconnected are
// buffered or dropped by it, never surfaced to the tick.
func DialNATS(cfg Config, logger zerolog.Logger) (*NATSSink, error) {
	cfg = cfg.normalized()
	sinkLogger := logger.With().Str("component", "eventsink").Logger()

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			sinkLogger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			sinkLogger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			sinkLogger.Info().Msg("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", cfg.URL, err)
	}

	sinkLogger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS sink connected")
	return newNATSSink(nc, sinkLogger), nil
}

func newNATSSink(c conn, logger zerolog.Logger) *NATSSink {
	return &NATSSink{conn: c, logger: logger}
}

// PublishEvents mirrors a detector batch, one message per event, routed by
// kind. Failures are logged and swallowed.
func (s *NATSSink) PublishEvents(events []models.Event) {
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("Event marshal failed")
			continue
		}
		if err := s.conn.Publish(eventSubject(ev.Kind), data); err != nil {
			s.logger.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("Event publish failed")
		}
	}
}

// PublishSnapshot mirrors the full snapshot after each successful tick.
func (s *NATSSink) PublishSnapshot(snap *models.Snapshot) {
	if snap == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Snapshot marshal failed")
		return
	}
	if err := s.conn.Publish(snapshotSubject, data); err != nil {
		s.logger.Warn().Err(err).Int("tokens", snap.Len()).Msg("Snapshot publish failed")
	}
}

// Connected reports whether the underlying connection is up.
func (s *NATSSink) Connected() bool {
	return s.conn.IsConnected()
}

// Close drains in-flight messages and closes the connection.
func (s *NATSSink) Close() {
	if err := s.conn.Drain(); err != nil {
		s.logger.Warn().Err(err).Msg("NATS drain failed, closing hard")
		s.conn.Close()
	}
}
