package federation

import (
	"log"
	"time"

	"github.com/arenh/gomphos/db"
	"github.com/arenh/gomphos/domain"
	"github.com/google/uuid"
)

// Outbox persists locally-originated activities and hands them to the
// dispatcher. Delivery failures are swallowed here; the activity just
// keeps is_delivered=false, observable but never blocking.
type Outbox struct {
	db         *db.DB
	dispatcher *Dispatcher
}

func NewOutbox(database *db.DB, dispatcher *Dispatcher) *Outbox {
	return &Outbox{db: database, dispatcher: dispatcher}
}

// Publish persists the activity as a local audit record and attempts
// one best-effort delivery to the configured peers.
func (o *Outbox) Publish(activity Activity) (*domain.Activity, error) {
	record, err := o.Store(activity)
	if err != nil {
		return nil, err
	}

	result := o.dispatcher.Deliver(activity)
	switch result {
	case Delivered:
		if err := o.db.MarkActivityDelivered(record.Id); err != nil {
			log.Printf("Outbox: Failed to mark activity %s delivered: %v", record.Id, err)
		} else {
			record.IsDelivered = true
		}
	case Disabled:
		// Cross-instance delivery is off, nothing to report
	default:
		log.Printf("Outbox: %s activity %s not delivered: %s", record.Type, record.Id, result)
	}

	return record, nil
}

// Store persists the activity without attempting delivery. Used by the
// actor outbox endpoint, where the caller only asks us to record.
func (o *Outbox) Store(activity Activity) (*domain.Activity, error) {
	record := &domain.Activity{
		Id:          uuid.New(),
		Type:        activity.Type,
		Actor:       activity.Actor,
		RawObject:   string(activity.Object),
		IsLocal:     true,
		IsDelivered: false,
		CreatedAt:   time.Now(),
	}
	if err := o.db.CreateActivity(record); err != nil {
		return nil, err
	}
	return record, nil
}
