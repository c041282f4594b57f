// ABOUTME: In-process topic broker that admitted requests are handed to
// ABOUTME: Publish fans out to topic subscribers; subscribe streams messages as SSE

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/noty-gateway/internal/auth"
	"github.com/2389/noty-gateway/internal/dedupe"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64

	// maxPayloadBytes bounds a published message body.
	maxPayloadBytes = 1 << 20

	// MessageIDHeader lets publishers supply an id for duplicate suppression.
	MessageIDHeader = "Message-Id"
)

// Message is one published payload as delivered to subscribers.
type Message struct {
	ID          string    `json:"id"`
	Topic       string    `json:"topic"`
	Payload     string    `json:"payload"`
	Role        auth.Role `json:"role"`
	From        string    `json:"from,omitempty"` // session user; empty for publishers
	PublishedAt time.Time `json:"published_at"`
}

// Broker is the default pipeline: an in-memory pub/sub keyed by topic.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *Message // topic -> subID -> ch
	closed      bool

	seen   *dedupe.Window // optional
	logger *slog.Logger
	mux    *http.ServeMux
	now    func() time.Time
}

// NewBroker creates a broker. seen may be nil to disable duplicate
// suppression; pass nil logger for default.
func NewBroker(seen *dedupe.Window, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broker{
		subscribers: make(map[string]map[string]chan *Message),
		seen:        seen,
		logger:      logger.With("component", "broker"),
		now:         time.Now,
	}

	b.mux = http.NewServeMux()
	b.mux.HandleFunc("POST "+auth.LoginPath, b.handleLogin)
	b.mux.HandleFunc("POST /publish/{topic}", b.handlePublish)
	b.mux.HandleFunc("POST /subscribe/{topic}", b.handleSubscribe)
	return b
}

// Admit serves an admitted request. The gate guarantees an Identity in the
// request context.
func (b *Broker) Admit(w http.ResponseWriter, r *http.Request) {
	b.mux.ServeHTTP(w, r)
}

// Subscribe registers for messages on topic. The subscription ends, and the
// channel closes, when ctx is cancelled or the broker is closed.
func (b *Broker) Subscribe(ctx context.Context, topic string) (<-chan *Message, string) {
	subID := uuid.New().String()
	ch := make(chan *Message, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := b.subscribers[topic]; !ok {
		b.subscribers[topic] = make(map[string]chan *Message)
	}
	b.subscribers[topic][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "topic", topic, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(topic, subID)
	}()

	return ch, subID
}

// Publish delivers msg to every current subscriber of its topic and returns
// how many received it. Slow subscribers whose buffers are full miss it.
func (b *Broker) Publish(msg *Message) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for subID, ch := range b.subscribers[msg.Topic] {
		select {
		case ch <- msg:
			delivered++
		default:
			b.logger.Debug("dropped message for slow subscriber",
				"topic", msg.Topic, "sub_id", subID, "message_id", msg.ID)
		}
	}
	return delivered
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broker) Unsubscribe(topic, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[topic]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, topic)
	}

	b.logger.Debug("subscriber removed", "topic", topic, "sub_id", subID)
}

// Subscribers returns the number of live subscriptions on topic.
func (b *Broker) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[topic])
}

// Close ends every subscription. Open subscribe streams return, which lets
// server shutdown finish.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for topic, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, topic)
	}

	b.logger.Debug("broker closed")
}

func (b *Broker) handleLogin(w http.ResponseWriter, r *http.Request) {
	id := identityOf(r)
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"userId": id.UserID,
		"role":   string(id.Role),
	})
}

func (b *Broker) handlePublish(w http.ResponseWriter, r *http.Request) {
	topic := r.PathValue("topic")
	id := identityOf(r)

	msgID := r.Header.Get(MessageIDHeader)
	if msgID != "" && b.seen != nil && b.seen.Seen(topic, msgID) {
		b.logger.Info("duplicate publish suppressed", "topic", topic, "message_id", msgID, "conn_id", id.ConnID)
		writeJSON(w, http.StatusConflict, map[string]string{"error": "duplicate message", "id": msgID})
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		if msgID != "" && b.seen != nil {
			b.seen.Forget(topic, msgID)
		}
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, map[string]string{"error": fmt.Sprintf("reading payload: %v", err)})
		return
	}

	if msgID == "" {
		msgID = uuid.New().String()
	}
	msg := &Message{
		ID:          msgID,
		Topic:       topic,
		Payload:     string(payload),
		Role:        id.Role,
		From:        id.UserID,
		PublishedAt: b.now().UTC(),
	}
	delivered := b.Publish(msg)

	b.logger.Debug("published", "topic", topic, "message_id", msgID, "delivered", delivered)
	writeJSON(w, http.StatusOK, map[string]any{"id": msgID, "delivered": delivered})
}

func (b *Broker) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	topic := r.PathValue("topic")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
		return
	}

	ch, subID := b.Subscribe(r.Context(), topic)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	writeSSEEvent(w, "subscribed", map[string]string{"topic": topic, "sub_id": subID})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			writeSSEEvent(w, "message", msg)
			flusher.Flush()
		}
	}
}

// identityOf never returns nil so handlers stay usable outside the gate.
func identityOf(r *http.Request) *auth.Identity {
	if id := auth.IdentityFromContext(r.Context()); id != nil {
		return id
	}
	return &auth.Identity{}
}

func writeSSEEvent(w io.Writer, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		dataJSON = []byte(`{}`)
	}
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
