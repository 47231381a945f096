// Package queue carries domain events over RabbitMQ.  Events go to a topic
// exchange with the event type as routing key; the audit consumer binds a
// durable queue to every key and appends each event to the audit log.
package queue

import (
	"encoding/json"
	"fmt"

	"github.com/iliyamo/contacts-manager/internal/service"
)

// AuditQueue is the durable queue the audit consumer reads from.
const AuditQueue = "contacts.audit"

func encodeEvent(ev service.Event) ([]byte, error) {
	return json.Marshal(ev)
}

func decodeEvent(body []byte) (service.Event, error) {
	var ev service.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return service.Event{}, fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" || ev.SubjectID == "" {
		return service.Event{}, fmt.Errorf("event without type or subject")
	}
	return ev, nil
}
