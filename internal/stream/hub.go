// Package stream pushes post activity to websocket subscribers. With Redis
// configured, events fan out through pub/sub so every instance sees them.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	EventLiked     = "like"
	EventUnliked   = "unlike"
	EventCommented = "comment"

	channelPrefix  = "post:"
	channelSuffix  = ":activity"
	channelPattern = channelPrefix + "*" + channelSuffix

	clientBuffer = 64
)

// Event is one piece of activity on a post.
type Event struct {
	Type      string    `json:"type"`
	PostID    string    `json:"postId"`
	UserID    string    `json:"userId"`
	CommentID string    `json:"commentId,omitempty"`
	Content   string    `json:"content,omitempty"`
	At        time.Time `json:"at"`
}

type Hub struct {
	redis   *redis.Client
	pubsub  *redis.PubSub
	log     logrus.FieldLogger
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	PostID string
	Send   chan []byte
}

// NewHub subscribes to post activity on redisClient before returning, so
// nothing published afterwards is missed. A nil client keeps delivery local.
func NewHub(ctx context.Context, redisClient *redis.Client, log logrus.FieldLogger) (*Hub, error) {
	h := &Hub{
		redis:   redisClient,
		log:     log,
		clients: map[string]map[*Client]struct{}{},
	}
	if redisClient == nil {
		return h, nil
	}

	h.pubsub = redisClient.PSubscribe(ctx, channelPattern)
	if _, err := h.pubsub.Receive(ctx); err != nil {
		_ = h.pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channelPattern, err)
	}
	go h.forward(h.pubsub.Channel())
	return h, nil
}

func (h *Hub) Register(postID string) *Client {
	client := &Client{
		PostID: postID,
		Send:   make(chan []byte, clientBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[postID] == nil {
		h.clients[postID] = map[*Client]struct{}{}
	}
	h.clients[postID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if postClients, ok := h.clients[client.PostID]; ok {
		if _, registered := postClients[client]; !registered {
			return
		}
		delete(postClients, client)
		if len(postClients) == 0 {
			delete(h.clients, client.PostID)
		}
		close(client.Send)
	}
}

// Publish encodes ev and broadcasts it to the post's subscribers.
func (h *Hub) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return h.Broadcast(ctx, ev.PostID, payload)
}

// Broadcast delivers payload to every subscriber of postID. When Redis is
// configured delivery happens on receipt of the published message, including
// for this instance.
func (h *Hub) Broadcast(ctx context.Context, postID string, payload []byte) error {
	if h.redis == nil {
		h.deliver(postID, payload)
		return nil
	}
	if err := h.redis.Publish(ctx, redisChannel(postID), payload).Err(); err != nil {
		h.log.WithError(err).WithField("post_id", postID).Warn("activity publish failed")
		return err
	}
	return nil
}

// Subscribers reports how many local clients follow postID.
func (h *Hub) Subscribers(postID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[postID])
}

func (h *Hub) Close() error {
	if h.pubsub == nil {
		return nil
	}
	return h.pubsub.Close()
}

func (h *Hub) forward(ch <-chan *redis.Message) {
	for msg := range ch {
		postID := postIDFromChannel(msg.Channel)
		if postID == "" {
			continue
		}
		h.deliver(postID, []byte(msg.Payload))
	}
}

// deliver drops the message for clients whose buffer is full.
func (h *Hub) deliver(postID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[postID] {
		select {
		case client.Send <- payload:
		default:
			h.log.WithField("post_id", postID).Debug("slow subscriber, activity dropped")
		}
	}
}

func redisChannel(postID string) string {
	return channelPrefix + postID + channelSuffix
}

func postIDFromChannel(ch string) string {
	if len(ch) <= len(channelPrefix)+len(channelSuffix) ||
		!strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}
