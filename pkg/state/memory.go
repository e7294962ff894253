package state

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store implementation with the same semantics
// as the Redis store. Tests drive worker behavior through Ack and
// ControlMessages; development runs can use it as a single-node backend.
type MemoryStore struct {
	mu         sync.Mutex
	states     map[string]map[string]string
	shared     map[string][]byte
	queues     map[string]map[string][]QueueEntry
	refs       map[string][]string
	control    map[string][]ControlMessage
	ackWaiters map[string][]chan ControlMessage
	streams    []*memoryEventStream
}

// NewMemoryStore creates an empty in-memory state store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states:     make(map[string]map[string]string),
		shared:     make(map[string][]byte),
		queues:     make(map[string]map[string][]QueueEntry),
		refs:       make(map[string][]string),
		control:    make(map[string][]ControlMessage),
		ackWaiters: make(map[string][]chan ControlMessage),
	}
}

func (m *MemoryStore) State(_ context.Context, tenantID string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make(map[string]string, len(m.states[tenantID]))
	for k, v := range m.states[tenantID] {
		result[k] = v
	}
	return result, nil
}

func (m *MemoryStore) SetStateFields(_ context.Context, tenantID string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.states[tenantID] == nil {
		m.states[tenantID] = make(map[string]string)
	}
	for k, v := range fields {
		m.states[tenantID][k] = v
	}
	return nil
}

func (m *MemoryStore) ReplaceState(_ context.Context, tenantID string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	replacement := make(map[string]string, len(fields))
	for k, v := range fields {
		replacement[k] = v
	}
	m.states[tenantID] = replacement
	return nil
}

func (m *MemoryStore) StateField(_ context.Context, tenantID, field string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	val, ok := m.states[tenantID][field]
	return val, ok, nil
}

func (m *MemoryStore) SharedBlob(_ context.Context, tenantID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	blob, ok := m.shared[tenantID]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), blob...), nil
}

func (m *MemoryStore) SetSharedBlob(_ context.Context, tenantID string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.shared[tenantID] = append([]byte(nil), blob...)
	return nil
}

func (m *MemoryStore) QueueEntries(_ context.Context, tenantID, queue string) ([]QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]QueueEntry(nil), m.queues[tenantID][queue]...), nil
}

func (m *MemoryStore) ReplaceQueue(_ context.Context, tenantID, queue string, entries []QueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.queues[tenantID] == nil {
		m.queues[tenantID] = make(map[string][]QueueEntry)
	}
	replacement := append([]QueueEntry(nil), entries...)
	sortQueue(replacement)
	m.queues[tenantID][queue] = replacement
	return nil
}

func (m *MemoryStore) PushQueue(_ context.Context, tenantID, queue string, entry QueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.queues[tenantID] == nil {
		m.queues[tenantID] = make(map[string][]QueueEntry)
	}
	q := append(m.queues[tenantID][queue], entry)
	sortQueue(q)
	m.queues[tenantID][queue] = q
	return nil
}

func (m *MemoryStore) QueueLen(_ context.Context, tenantID, queue string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return int64(len(m.queues[tenantID][queue])), nil
}

func (m *MemoryStore) SendControl(_ context.Context, tenantID string, msg ControlMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.control[tenantID] = append(m.control[tenantID], msg)
	return nil
}

func (m *MemoryStore) SendControlAwaitAck(ctx context.Context, tenantID string, msg ControlMessage, ackType string, timeout time.Duration) error {
	waiter := make(chan ControlMessage, 8)

	m.mu.Lock()
	m.ackWaiters[tenantID] = append(m.ackWaiters[tenantID], waiter)
	m.control[tenantID] = append(m.control[tenantID], msg)
	m.mu.Unlock()

	defer m.removeWaiter(tenantID, waiter)

	deadline := time.After(timeout)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return ErrAckTimeout
		case ack := <-waiter:
			if ack.Type == ackType {
				return nil
			}
		}
	}
}

func (m *MemoryStore) removeWaiter(tenantID string, waiter chan ControlMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	waiters := m.ackWaiters[tenantID]
	for i, w := range waiters {
		if w == waiter {
			m.ackWaiters[tenantID] = append(waiters[:i], waiters[i+1:]...)
			return
		}
	}
}

// Ack simulates a worker acknowledging on the tenant's ack channel.
func (m *MemoryStore) Ack(tenantID string, msg ControlMessage) {
	m.mu.Lock()
	waiters := append([]chan ControlMessage(nil), m.ackWaiters[tenantID]...)
	m.mu.Unlock()

	for _, w := range waiters {
		select {
		case w <- msg:
		default:
		}
	}
}

// ControlMessages returns every control message sent to the tenant, in order.
func (m *MemoryStore) ControlMessages(tenantID string) []ControlMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]ControlMessage(nil), m.control[tenantID]...)
}

func (m *MemoryStore) PushCheckpointRef(_ context.Context, tenantID, location string, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	refs := append([]string{location}, m.refs[tenantID]...)
	if keep > 0 && len(refs) > keep {
		refs = refs[:keep]
	}
	m.refs[tenantID] = refs
	return nil
}

func (m *MemoryStore) CheckpointRefs(_ context.Context, tenantID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.refs[tenantID]...), nil
}

func (m *MemoryStore) PublishEvent(_ context.Context, event string, payload map[string]any) error {
	m.mu.Lock()
	streams := append([]*memoryEventStream(nil), m.streams...)
	m.mu.Unlock()

	e := Event{Name: event, Payload: payload, ReceivedAt: time.Now()}
	for _, stream := range streams {
		stream.deliver(e)
	}
	return nil
}

func (m *MemoryStore) SubscribeEvents(ctx context.Context) (EventStream, error) {
	stream := &memoryEventStream{
		store:  m,
		events: make(chan Event, 64),
	}

	m.mu.Lock()
	m.streams = append(m.streams, stream)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		stream.Close()
	}()

	return stream, nil
}

type memoryEventStream struct {
	store  *MemoryStore
	mu     sync.Mutex
	closed bool
	events chan Event
}

func (s *memoryEventStream) deliver(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	select {
	case s.events <- e:
	default: // drop when the consumer is not keeping up
	}
}

func (s *memoryEventStream) Events() <-chan Event {
	return s.events
}

func (s *memoryEventStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.events)
	s.mu.Unlock()

	s.store.mu.Lock()
	for i, stream := range s.store.streams {
		if stream == s {
			s.store.streams = append(s.store.streams[:i], s.store.streams[i+1:]...)
			break
		}
	}
	s.store.mu.Unlock()
	return nil
}

func (m *MemoryStore) DeleteTenant(_ context.Context, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.states, tenantID)
	delete(m.shared, tenantID)
	delete(m.queues, tenantID)
	delete(m.refs, tenantID)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// sortQueue orders entries by priority, lowest score first, stably so equal
// priorities keep insertion order like a Redis ZSET keeps lexicographic
// member order.
func sortQueue(entries []QueueEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Priority < entries[j].Priority
	})
}
