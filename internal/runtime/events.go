package runtime

import "github.com/aretw0/fable/pkg/domain"

// record appends a flow event, dropping the oldest once the ring is full.
func (e *Engine) record(t domain.EventType, nodeID string, detail map[string]any) {
	if e.eventLimit == 0 {
		return
	}
	e.events = append(e.events, domain.FlowEvent{
		Type:      t,
		NodeID:    nodeID,
		Detail:    detail,
		Timestamp: e.clock(),
	})
	if over := len(e.events) - e.eventLimit; over > 0 {
		e.events = append(e.events[:0:0], e.events[over:]...)
	}
}

// Events returns the recent flow events, oldest first.
func (e *Engine) Events() []domain.FlowEvent {
	out := make([]domain.FlowEvent, len(e.events))
	copy(out, e.events)
	return out
}

// SetEvents replaces the flow event log, keeping only the newest entries
// that fit the ring.
func (e *Engine) SetEvents(events []domain.FlowEvent) {
	if over := len(events) - e.eventLimit; over > 0 {
		events = events[over:]
	}
	e.events = append([]domain.FlowEvent(nil), events...)
}
