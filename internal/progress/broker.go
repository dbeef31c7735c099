package progress

import (
	"sync"
)

const subscriberBufSize = 256

// Event is one encoded Message ready for delivery.
type Event struct {
	Type    Type
	Payload []byte
}

// Broker fans progress events out to every open UI. It remembers the last
// event so a UI opened mid-run starts from the current percentage, and one
// opened after a run sees how it ended.
type Broker struct {
	mu          sync.Mutex
	subscribers map[int64]chan Event
	nextID      int64
	last        *Event
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[int64]chan Event),
	}
}

// Subscribe registers a client and queues the last event, if any, on its
// channel. Slow consumers have events dropped.
func (b *Broker) Subscribe() (int64, <-chan Event) {
	ch := make(chan Event, subscriberBufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	if b.last != nil {
		ch <- *b.last
	}
	b.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
}

// Publish never blocks the run.
func (b *Broker) Publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = &evt
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Last returns the most recent event.
func (b *Broker) Last() (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last == nil {
		return Event{}, false
	}
	return *b.last, true
}

func (b *Broker) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
