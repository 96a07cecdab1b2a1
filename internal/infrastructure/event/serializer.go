package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/erp/custody/internal/domain/shared"
)

// ErrUnregisteredEvent is returned for event types the serializer was never told about.
// Custody events must be registered before they can enter the outbox.
var ErrUnregisteredEvent = errors.New("event type is not registered")

// EventSerializer maps outbox event type names to the concrete Go types that
// carry them, so payloads written by the ledger can be decoded back by name.
type EventSerializer struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// NewEventSerializer creates an empty serializer. Use NewCustodySerializer for
// one preloaded with the custody events.
func NewEventSerializer() *EventSerializer {
	return &EventSerializer{
		types: make(map[string]reflect.Type),
	}
}

// Register binds eventType to the struct behind prototype. Several type names may
// share one struct (approval and rejection both use AdvanceDecidedEvent).
func (s *EventSerializer) Register(eventType string, prototype shared.DomainEvent) {
	t := reflect.TypeOf(prototype)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	s.mu.Lock()
	s.types[eventType] = t
	s.mu.Unlock()
}

// Serialize encodes a registered event as its outbox payload.
func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	if !s.IsRegistered(event.EventType()) {
		return nil, fmt.Errorf("%w: %s", ErrUnregisteredEvent, event.EventType())
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", event.EventType(), err)
	}
	return payload, nil
}

// Deserialize decodes an outbox payload stored under eventType. The payload's own
// type tag must agree with eventType, otherwise the row is treated as corrupt.
func (s *EventSerializer) Deserialize(eventType string, payload []byte) (shared.DomainEvent, error) {
	s.mu.RLock()
	t, ok := s.types[eventType]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnregisteredEvent, eventType)
	}

	target := reflect.New(t).Interface()
	if err := json.Unmarshal(payload, target); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", eventType, err)
	}

	event, ok := target.(shared.DomainEvent)
	if !ok {
		return nil, fmt.Errorf("%s is registered to %s, which is not a domain event", eventType, t)
	}
	if event.EventType() != eventType {
		return nil, fmt.Errorf("payload carries type %q but was stored as %q", event.EventType(), eventType)
	}
	return event, nil
}

// IsRegistered reports whether eventType can be serialized.
func (s *EventSerializer) IsRegistered(eventType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.types[eventType]
	return ok
}

// RegisteredTypes returns the registered type names in sorted order.
func (s *EventSerializer) RegisteredTypes() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.types))
	for name := range s.types {
		names = append(names, name)
	}
	s.mu.RUnlock()

	sort.Strings(names)
	return names
}
