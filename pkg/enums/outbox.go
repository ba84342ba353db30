package enums

// EventType names a domain event written to the transactional outbox.
type EventType string

const (
	EventOrderPlaced        EventType = "order.placed"
	EventOrderStatusChanged EventType = "order.status_changed"
	EventOrderCancelled     EventType = "order.cancelled"
	EventOrderExpired       EventType = "order.expired"
	EventDeliveryAssigned   EventType = "delivery.assigned"
	EventDeliveryReleased   EventType = "delivery.released"
	EventHandoffVerified    EventType = "handoff.verified"
)

// AggregateType names the aggregate an outbox event belongs to.
type AggregateType string

const (
	AggregateOrder      AggregateType = "order"
	AggregateAssignment AggregateType = "delivery_assignment"
)
