// Package broadcast fans detector events out to connected subscribers.
package broadcast

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/models"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/telemetry"
)

// ErrClosed is returned when registering on a hub that has shut down.
var ErrClosed = errors.New("broadcast: hub closed")

// ErrUnknownConnection is returned for subscription changes on an id the hub
// is not tracking.
var ErrUnknownConnection = errors.New("broadcast: unknown connection")

// Config sizes the per-client send queues.
type Config struct {
	// SendBuffer is the per-client queue depth.
	SendBuffer int
	// MaxStrikes is how many consecutive full-queue sends a client
	// survives before it is dropped.
	MaxStrikes int
}

func (c Config) normalized() Config {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.MaxStrikes <= 0 {
		c.MaxStrikes = 3
	}
	return c
}

type subscriber struct {
	id      string
	send    chan []byte
	addrs   map[string]struct{}
	strikes int
}

// Hub tracks connections and their per-token subscription sets. Delivery is
// best-effort and never blocks: a full queue counts a strike against the
// client, and striking out disconnects it.
type Hub struct {
	cfg     Config
	metrics *telemetry.Metrics
	logger  zerolog.Logger

	mu     sync.Mutex
	subs   map[string]*subscriber
	closed bool
}

// New creates a hub. metrics may be nil.
func New(cfg Config, metrics *telemetry.Metrics, logger zerolog.Logger) *Hub {
	return &Hub{
		cfg:     cfg.normalized(),
		metrics: metrics,
		logger:  logger.With().Str("component", "broadcast").Logger(),
		subs:    make(map[string]*subscriber),
	}
}

// Register adds a connection and returns its receive queue. The caller owns
// the id; the queue is closed when the connection is dropped or the hub
// shuts down.
func (h *Hub) Register(id string) (<-chan []byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}
	if _, dup := h.subs[id]; dup {
		return nil, errors.New("broadcast: duplicate connection id")
	}

	sub := &subscriber{
		id:    id,
		send:  make(chan []byte, h.cfg.SendBuffer),
		addrs: make(map[string]struct{}),
	}
	h.subs[id] = sub

	if h.metrics != nil {
		h.metrics.WSClients.Inc()
	}
	h.logger.Debug().Str("conn", id).Int("clients", len(h.subs)).Msg("Client connected")
	return sub.send, nil
}

// Unregister removes a connection and closes its queue. Unknown ids are a
// no-op so the transport can call it unconditionally on teardown.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(id, "disconnect")
}

// Subscribe adds addresses to the connection's per-token set and returns the
// set's new size. Addresses are canonicalized before storage.
func (h *Hub) Subscribe(id string, addrs ...string) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subs[id]
	if !ok {
		return 0, ErrUnknownConnection
	}
	for _, addr := range addrs {
		if norm := models.NormalizeAddress(addr); norm != "" {
			sub.addrs[norm] = struct{}{}
		}
	}
	return len(sub.addrs), nil
}

// Unsubscribe removes addresses from the connection's set and returns the
// set's new size.
func (h *Hub) Unsubscribe(id string, addrs ...string) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subs[id]
	if !ok {
		return 0, ErrUnknownConnection
	}
	for _, addr := range addrs {
		delete(sub.addrs, models.NormalizeAddress(addr))
	}
	return len(sub.addrs), nil
}

// Broadcast delivers a detector batch: every event goes to every connection,
// and each alert additionally produces a subscribed_token_update for the
// connections watching that address. Each payload is serialized once.
func (h *Hub) Broadcast(events []models.Event) {
	if len(events) == 0 {
		return
	}

	tokens := tokenIndex(events)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || len(h.subs) == 0 {
		return
	}

	perToken := make(map[string][]byte)

	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			h.logger.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("Event marshal failed")
			continue
		}
		for _, sub := range h.subs {
			h.sendLocked(sub, payload)
		}

		addr := ev.TokenAddress()
		if addr == "" {
			continue
		}
		update, ok := perToken[addr]
		if !ok {
			tok, found := tokens[addr]
			if !found {
				continue
			}
			update, err = json.Marshal(models.NewEvent(models.EventSubscribedTokenUpdate, models.SubscribedTokenUpdate{
				Address: addr,
				Token:   tok,
			}))
			if err != nil {
				continue
			}
			perToken[addr] = update
		}
		for _, sub := range h.subs {
			if _, watching := sub.addrs[addr]; watching {
				h.sendLocked(sub, update)
			}
		}
	}

	if h.metrics != nil {
		kinds := make([]string, 0, len(events))
		for _, ev := range events {
			kinds = append(kinds, string(ev.Kind))
		}
		h.metrics.RecordEvents(kinds)
	}
}

// ClientCount returns the number of tracked connections.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// SubscriptionCount returns the total tracked (connection, address) pairs.
func (h *Hub) SubscriptionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := 0
	for _, sub := range h.subs {
		total += len(sub.addrs)
	}
	return total
}

// Close drops every connection and refuses new registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id := range h.subs {
		h.removeLocked(id, "shutdown")
	}
	h.logger.Info().Msg("Hub closed")
}

// sendLocked enqueues without blocking and handles strike bookkeeping.
// Callers hold h.mu.
func (h *Hub) sendLocked(sub *subscriber, payload []byte) {
	select {
	case sub.send <- payload:
		sub.strikes = 0
		if h.metrics != nil {
			h.metrics.WSDelivered.Inc()
		}
	default:
		sub.strikes++
		if h.metrics != nil {
			h.metrics.WSDropped.Inc()
		}
		if sub.strikes >= h.cfg.MaxStrikes {
			h.logger.Warn().Str("conn", sub.id).Int("strikes", sub.strikes).Msg("Dropping slow client")
			h.removeLocked(sub.id, "slow")
		}
	}
}

// removeLocked deletes a subscriber and closes its queue. Callers hold h.mu.
func (h *Hub) removeLocked(id, reason string) {
	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(sub.send)
	if h.metrics != nil {
		h.metrics.WSClients.Dec()
	}
	h.logger.Debug().Str("conn", id).Str("reason", reason).Int("clients", len(h.subs)).Msg("Client removed")
}

// tokenIndex pulls the per-address token view out of the batch_update that
// leads a detector batch.
func tokenIndex(events []models.Event) map[string]models.Token {
	for _, ev := range events {
		if batch, ok := ev.Payload.(models.BatchUpdate); ok {
			idx := make(map[string]models.Token, len(batch.Tokens))
			for i := range batch.Tokens {
				idx[batch.Tokens[i].Address] = batch.Tokens[i]
			}
			return idx
		}
	}
	return nil
}
