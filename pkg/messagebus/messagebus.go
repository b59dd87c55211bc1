// Package messagebus implements addressed and broadcast message delivery
// between named agents: per-recipient inboxes, channel filters, and
// synchronous subscriber notification.
package messagebus

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Broadcast is the reserved recipient name meaning "every registered agent
// except the sender".
const Broadcast = "broadcast"

// MessageType classifies a SwarmMessage.
type MessageType string

const (
	TypeRequest      MessageType = "request"
	TypeResponse     MessageType = "response"
	TypeNotification MessageType = "notification"
)

// Message is a single addressed or broadcast message on the bus.
type Message struct {
	ID        string
	From      string
	To        string
	Type      MessageType
	Content   string
	Channel   string
	Timestamp time.Time
	Metadata  map[string]interface{}
}

// Filter narrows GetMessages results; a zero-value field is not applied.
type Filter struct {
	Channel string
	Type    MessageType
	From    string
}

func (f Filter) matches(m Message) bool {
	if f.Channel != "" && m.Channel != f.Channel {
		return false
	}
	if f.Type != "" && m.Type != f.Type {
		return false
	}
	if f.From != "" && m.From != f.From {
		return false
	}
	return true
}

// Handler receives a message delivered to its inbox.
type Handler func(Message)

// Bus is a concurrency-safe in-process mailbox system. Delivery is
// at-least-once within the process and FIFO per (sender, recipient) pair.
type Bus struct {
	mu          sync.Mutex
	agents      map[string]bool
	inboxes     map[string][]Message
	subscribers map[string][]Handler
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{
		agents:      make(map[string]bool),
		inboxes:     make(map[string][]Message),
		subscribers: make(map[string][]Handler),
	}
}

// RegisterAgent adds name to the set of known recipients, used to resolve
// broadcast fan-out. The coordinator calls this once per agent at
// construction time.
func (b *Bus) RegisterAgent(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.agents[name] = true
}

// Send assigns an id and timestamp to msg, enqueues it in the recipient
// inbox(es), and fires matching subscriber handlers synchronously. A
// message addressed to Broadcast is delivered to every registered agent
// except msg.From.
func (b *Bus) Send(msg Message) Message {
	b.mu.Lock()
	msg.ID = uuid.NewString()
	msg.Timestamp = time.Now()

	var recipients []string
	if msg.To == Broadcast {
		for name := range b.agents {
			if name != msg.From {
				recipients = append(recipients, name)
			}
		}
		sort.Strings(recipients)
	} else {
		recipients = []string{msg.To}
	}

	for _, r := range recipients {
		b.inboxes[r] = append(b.inboxes[r], msg)
	}

	var handlers []Handler
	for _, r := range recipients {
		handlers = append(handlers, b.subscribers[r]...)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}

	return msg
}

// Broadcast is a convenience wrapper for Send with To=Broadcast.
func (b *Bus) Broadcast(from, content, channel string) Message {
	return b.Send(Message{
		From:    from,
		To:      Broadcast,
		Type:    TypeNotification,
		Content: content,
		Channel: channel,
	})
}

// GetMessages returns recipient's inbox, newest first, optionally filtered.
func (b *Bus) GetMessages(recipient string, filter *Filter) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	inbox := b.inboxes[recipient]
	out := make([]Message, 0, len(inbox))
	for i := len(inbox) - 1; i >= 0; i-- {
		m := inbox[i]
		if filter == nil || filter.matches(m) {
			out = append(out, m)
		}
	}
	return out
}

// Subscribe registers handler to be invoked whenever a message is
// delivered to recipient's inbox (directly or via broadcast).
func (b *Bus) Subscribe(recipient string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[recipient] = append(b.subscribers[recipient], handler)
}

// Clear empties every inbox and subscriber registration.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inboxes = make(map[string][]Message)
	b.subscribers = make(map[string][]Handler)
}
