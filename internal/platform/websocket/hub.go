// Package websocket pushes domain events to connected app clients. Each
// connection is subscribed to the topics of the person or provider behind
// the authenticated account and receives the events that concern them.
package websocket

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/saude/saude/internal/platform/events"
)

// PersonTopic and ProviderTopic name the per-party channels.
func PersonTopic(id int64) string   { return "person:" + strconv.FormatInt(id, 10) }
func ProviderTopic(id int64) string { return "provider:" + strconv.FormatInt(id, 10) }

const sendBuffer = 256

// Client is one connection's subscription state. A client may only ever
// listen on the topics it was created with; it can drop and re-add them.
type Client struct {
	ID   string
	Send chan []byte

	allowed map[string]struct{}
	topics  map[string]struct{} // guarded by the hub lock
}

func NewClient(topics []string) *Client {
	return newClient(topics, sendBuffer)
}

func newClient(topics []string, buffer int) *Client {
	c := &Client{
		ID:      uuid.NewString(),
		Send:    make(chan []byte, buffer),
		allowed: make(map[string]struct{}, len(topics)),
		topics:  make(map[string]struct{}, len(topics)),
	}
	for _, t := range topics {
		c.allowed[t] = struct{}{}
		c.topics[t] = struct{}{}
	}
	return c
}

// Hub routes events to subscribed clients. It implements events.Publisher
// so it can sit in an events.Fanout next to a broker.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*Client]struct{}
	clients     map[*Client]struct{}
	logger      zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[string]map[*Client]struct{}),
		clients:     make(map[*Client]struct{}),
		logger:      logger.With().Str("component", "websocket").Logger(),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	for t := range c.topics {
		h.link(t, c)
	}
}

// Unregister drops the client and closes its Send channel. Calling it twice
// is harmless.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	for t := range c.topics {
		h.unlink(t, c)
	}
	delete(h.clients, c)
	close(c.Send)
}

func (h *Hub) link(topic string, c *Client) {
	set := h.subscribers[topic]
	if set == nil {
		set = make(map[*Client]struct{})
		h.subscribers[topic] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unlink(topic string, c *Client) {
	set := h.subscribers[topic]
	delete(set, c)
	if len(set) == 0 {
		delete(h.subscribers, topic)
	}
}

// Subscribe re-adds topics the client was created with. Foreign topics are
// ignored.
func (h *Hub) Subscribe(c *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range topics {
		if _, ok := c.allowed[t]; !ok {
			continue
		}
		c.topics[t] = struct{}{}
		h.link(t, c)
	}
}

func (h *Hub) Unsubscribe(c *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range topics {
		if _, ok := c.topics[t]; !ok {
			continue
		}
		delete(c.topics, t)
		h.unlink(t, c)
	}
}

// Topics returns the client's current subscriptions, sorted.
func (h *Hub) Topics(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(c.topics))
	for t := range c.topics {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Broadcast queues the encoded event for every subscriber of topic. A client
// with a full buffer misses the event.
func (h *Hub) Broadcast(topic string, event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("event_type", event.Type).Msg("encode event")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.subscribers[topic] {
		select {
		case c.Send <- data:
		default:
			h.logger.Warn().Str("client_id", c.ID).Str("event_type", event.Type).Msg("client too slow, event dropped")
		}
	}
}

// Publish delivers event to the person and the provider it concerns.
func (h *Hub) Publish(_ context.Context, event events.Event) error {
	if event.PersonID != 0 {
		h.Broadcast(PersonTopic(event.PersonID), event)
	}
	if event.ProviderID != 0 {
		h.Broadcast(ProviderTopic(event.ProviderID), event)
	}
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[topic])
}
