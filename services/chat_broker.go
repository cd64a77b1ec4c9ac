package services

import (
	"sync"
)

// ChatEvent is the payload fanned out to live viewers of a thread. Frames
// are tagged by Type: "ready" on stream open, "message" for new messages.
type ChatEvent struct {
	Type    string      `json:"type"`
	Message interface{} `json:"message,omitempty"`
}

type chatSubscriber struct {
	callback func(event ChatEvent)
}

// ChatBroker is an in-process publish/subscribe registry keyed by chat
// thread id. Delivery is best-effort and at-most-once: events go only to
// subscribers connected at publish time, nothing is buffered or persisted.
// The durable message log is the source of truth; the broker only
// accelerates delivery to open chat views.
type ChatBroker struct {
	mu          sync.Mutex
	subscribers map[string][]*chatSubscriber
}

// NewChatBroker creates an empty broker
func NewChatBroker() *ChatBroker {
	return &ChatBroker{
		subscribers: make(map[string][]*chatSubscriber),
	}
}

// Subscribe registers a callback for events on the given thread and
// returns an unsubscribe function that removes exactly that callback.
// Calling unsubscribe more than once is a no-op.
func (b *ChatBroker) Subscribe(threadID string, callback func(event ChatEvent)) func() {
	sub := &chatSubscriber{callback: callback}

	b.mu.Lock()
	b.subscribers[threadID] = append(b.subscribers[threadID], sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.remove(threadID, sub)
		})
	}
}

// Publish delivers an event to every currently-registered subscriber of
// the thread, in registration order. Events for threads with no
// subscribers are dropped.
func (b *ChatBroker) Publish(threadID string, event ChatEvent) {
	b.mu.Lock()
	subs := make([]*chatSubscriber, len(b.subscribers[threadID]))
	copy(subs, b.subscribers[threadID])
	b.mu.Unlock()

	// Invoke outside the lock so a callback may subscribe/unsubscribe
	for _, sub := range subs {
		sub.callback(event)
	}
}

// SubscriberCount returns the number of live subscribers for a thread
func (b *ChatBroker) SubscriberCount(threadID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[threadID])
}

// ThreadCount returns the number of threads with at least one subscriber
func (b *ChatBroker) ThreadCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

func (b *ChatBroker) remove(threadID string, sub *chatSubscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[threadID]
	for i, s := range subs {
		if s == sub {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}

	// Never leak empty entries: the registry's footprint stays bounded
	// by the number of currently-open chat views
	if len(subs) == 0 {
		delete(b.subscribers, threadID)
	} else {
		b.subscribers[threadID] = subs
	}
}

var chatBrokerInstance *ChatBroker

// InitChatBroker creates the process-wide broker instance
func InitChatBroker() *ChatBroker {
	chatBrokerInstance = NewChatBroker()
	return chatBrokerInstance
}

// GetChatBroker returns the initialized broker instance
func GetChatBroker() *ChatBroker {
	return chatBrokerInstance
}

// SetChatBroker sets the broker instance (primarily for testing)
func SetChatBroker(b *ChatBroker) {
	chatBrokerInstance = b
}
