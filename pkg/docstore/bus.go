package docstore

import "sync"

// EventType enumerates change feed event kinds.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
	// EventAll subscribes to every event type on a table.
	EventAll EventType = "*"
)

// Event is delivered to subscribers after each successful mutation. Old
// duplicates New in this emulation: the store does not snapshot prior row
// state, and no current consumer depends on it. Do not build logic on Old.
type Event struct {
	Type  EventType
	Table string
	New   Document
	Old   Document
}

// Handler consumes change events.
type Handler func(Event)

type subscriber struct {
	id      int
	table   string
	eventTy EventType
	filter  string
	handler Handler
}

// Bus fans mutation events out to per-table subscriber lists. Delivery is
// synchronous, in subscription order, after the store's lock is released.
// The event-type and filter arguments given at subscription are advisory
// metadata (they mirror what a hosted backend would apply server-side);
// delivery here is unfiltered and subscribers filter for relevance.
type Bus struct {
	store *Store

	mu     sync.Mutex
	nextID int
	tables map[string][]subscriber
}

func newBus(store *Store) *Bus {
	return &Bus{
		store:  store,
		tables: make(map[string][]subscriber),
	}
}

// Channel starts building a subscription. The name is observability metadata
// only.
func (b *Bus) Channel(name string) *Channel {
	return &Channel{bus: b, name: name}
}

func (b *Bus) publish(event Event) {
	b.mu.Lock()
	subs := make([]subscriber, len(b.tables[event.Table]))
	copy(subs, b.tables[event.Table])
	b.mu.Unlock()

	for _, sub := range subs {
		sub.handler(event)
		b.store.rec.EventDelivered(event.Table)
	}
}

func (b *Bus) subscribe(pending []subscriber) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	handle := &Subscription{bus: b}
	for _, sub := range pending {
		b.nextID++
		sub.id = b.nextID
		b.tables[sub.table] = append(b.tables[sub.table], sub)
		handle.entries = append(handle.entries, entryRef{table: sub.table, id: sub.id})
	}
	return handle
}

// Channel accumulates table listeners before activation.
type Channel struct {
	bus     *Bus
	name    string
	pending []subscriber
}

// On registers a handler for mutations on the table. eventType and filter
// are recorded but not enforced; see Bus.
func (c *Channel) On(eventType EventType, table, filter string, handler Handler) *Channel {
	if table == "" || handler == nil {
		return c
	}
	c.pending = append(c.pending, subscriber{
		table:   table,
		eventTy: eventType,
		filter:  filter,
		handler: handler,
	})
	return c
}

// Subscribe activates every listener registered on the channel and returns
// the handle used to tear them down.
func (c *Channel) Subscribe() *Subscription {
	return c.bus.subscribe(c.pending)
}

type entryRef struct {
	table string
	id    int
}

// Subscription identifies a set of live listeners. Unsubscribe is idempotent
// and removes exactly the listeners this handle created.
type Subscription struct {
	bus     *Bus
	entries []entryRef

	once sync.Once
}

// Unsubscribe detaches this subscription's listeners, leaving all others
// intact. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		for _, ref := range s.entries {
			subs := s.bus.tables[ref.table]
			kept := subs[:0]
			for _, sub := range subs {
				if sub.id != ref.id {
					kept = append(kept, sub)
				}
			}
			s.bus.tables[ref.table] = kept
		}
		s.entries = nil
	})
}
