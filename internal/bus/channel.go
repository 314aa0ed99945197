package bus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/opensource-finance/fraudgen/internal/domain"
)

// ChannelBus implements EventBus with Go channels for in-process consumers.
// Publish blocks while a subscriber's buffer is full, so a slow consumer
// applies backpressure instead of losing records.
type ChannelBus struct {
	mu            sync.RWMutex
	bufferSize    int
	subscriptions map[string][]*channelSubscription
	closed        bool
}

type channelSubscription struct {
	id      string
	key     string
	topic   string
	handler domain.MessageHandler
	msgCh   chan *domain.Message
	ctx     context.Context
	cancel  context.CancelFunc
	bus     *ChannelBus
	done    chan struct{}
}

// NewChannelBus creates a channel bus with per-subscriber buffers of
// bufferSize messages.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelBus{
		bufferSize:    bufferSize,
		subscriptions: make(map[string][]*channelSubscription),
	}
}

// Publish delivers a message to every subscriber of topic within runID.
func (b *ChannelBus) Publish(ctx context.Context, runID string, topic string, payload []byte) error {
	if runID == "" {
		return ErrRunIDRequired
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	subs := append([]*channelSubscription(nil), b.subscriptions[runID+":"+topic]...)
	b.mu.RUnlock()

	msg := newMessage(runID, topic, payload)
	for _, sub := range subs {
		select {
		case sub.msgCh <- msg:
		case <-sub.ctx.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe registers handler for topic within runID. Messages are handled
// one at a time in publish order.
func (b *ChannelBus) Subscribe(ctx context.Context, runID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if runID == "" {
		return nil, ErrRunIDRequired
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &channelSubscription{
		id:      uuid.New().String(),
		key:     runID + ":" + topic,
		topic:   topic,
		handler: handler,
		msgCh:   make(chan *domain.Message, b.bufferSize),
		ctx:     subCtx,
		cancel:  cancel,
		bus:     b,
		done:    make(chan struct{}),
	}
	b.subscriptions[sub.key] = append(b.subscriptions[sub.key], sub)

	go sub.run()

	return sub, nil
}

func (s *channelSubscription) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.msgCh:
			if err := s.handler(s.ctx, msg); err != nil {
				slog.Error("handler error",
					"topic", s.topic,
					"message_id", msg.ID,
					"error", err,
				)
			}
		}
	}
}

// Ping fails once the bus is closed.
func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Close cancels every subscription.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subscriptions
	b.subscriptions = make(map[string][]*channelSubscription)
	b.mu.Unlock()

	for _, list := range subs {
		for _, sub := range list {
			sub.cancel()
			<-sub.done
		}
	}
	return nil
}

// Pending returns the number of buffered, unhandled messages for topic.
func (b *ChannelBus) Pending(runID, topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, sub := range b.subscriptions[runID+":"+topic] {
		n += len(sub.msgCh)
	}
	return n
}

// Unsubscribe stops the handler and detaches the subscription.
func (s *channelSubscription) Unsubscribe() error {
	s.cancel()

	b := s.bus
	b.mu.Lock()
	list := b.subscriptions[s.key]
	for i, other := range list {
		if other.id == s.id {
			b.subscriptions[s.key] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(b.subscriptions[s.key]) == 0 {
		delete(b.subscriptions, s.key)
	}
	b.mu.Unlock()

	<-s.done
	return nil
}

// Topic returns the subscribed topic.
func (s *channelSubscription) Topic() string {
	return s.topic
}
