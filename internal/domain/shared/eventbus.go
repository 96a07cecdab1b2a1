package shared

import "context"

// EventPublisher publishes domain events
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventCollector is implemented by aggregates that buffer events until commit
type EventCollector interface {
	GetDomainEvents() []DomainEvent
	ClearDomainEvents()
}

// DrainEvents returns the buffered events of every collector and clears them
func DrainEvents(collectors ...EventCollector) []DomainEvent {
	var events []DomainEvent
	for _, c := range collectors {
		if c == nil {
			continue
		}
		events = append(events, c.GetDomainEvents()...)
		c.ClearDomainEvents()
	}
	return events
}
