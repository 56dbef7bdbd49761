package event

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/labelops/backend/internal/domain/ledger"
	"github.com/labelops/backend/internal/domain/shared"
)

// Serializer encodes domain events as JSON and decodes them back by event type
type Serializer struct {
	mu       sync.RWMutex
	registry map[string]reflect.Type
}

// NewSerializer creates a serializer with no registered types
func NewSerializer() *Serializer {
	return &Serializer{registry: make(map[string]reflect.Type)}
}

// NewLedgerSerializer creates a serializer that knows every ledger event
func NewLedgerSerializer() *Serializer {
	s := NewSerializer()
	s.Register(ledger.EventTypeProductionRunRegistered, &ledger.ProductionRunRegisteredEvent{})
	s.Register(ledger.EventTypeInventoryAllocated, &ledger.InventoryAllocatedEvent{})
	s.Register(ledger.EventTypeSaleRecorded, &ledger.SaleRecordedEvent{})
	s.Register(ledger.EventTypeReturnRecorded, &ledger.ReturnRecordedEvent{})
	s.Register(ledger.EventTypeProductionRunAdjusted, &ledger.ProductionRunAdjustedEvent{})
	return s
}

// Register maps eventType to the concrete type of instance
func (s *Serializer) Register(eventType string, instance shared.DomainEvent) {
	t := reflect.TypeOf(instance)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	s.mu.Lock()
	s.registry[eventType] = t
	s.mu.Unlock()
}

// Serialize encodes ev as JSON
func (s *Serializer) Serialize(ev shared.DomainEvent) ([]byte, error) {
	return json.Marshal(ev)
}

// Deserialize decodes data into a new instance of the type registered for eventType
func (s *Serializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	s.mu.RLock()
	t, ok := s.registry[eventType]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	ptr := reflect.New(t).Interface()
	if err := json.Unmarshal(data, ptr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", eventType, err)
	}
	ev, ok := ptr.(shared.DomainEvent)
	if !ok {
		return nil, fmt.Errorf("%s does not implement DomainEvent", t)
	}
	return ev, nil
}

// RegisteredTypes lists the known event types in sorted order
func (s *Serializer) RegisteredTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	types := make([]string, 0, len(s.registry))
	for t := range s.registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
