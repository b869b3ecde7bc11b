package domain

import (
	"github.com/google/uuid"
	"time"
)

// Activity is an append-only audit record of a federation-visible
// action. Only the IsDelivered flag is ever mutated after insert.
type Activity struct {
	Id          uuid.UUID
	Type        string // Create, Delete, Follow, Accept; open set in storage
	Actor       string
	RawObject   string // JSON of the activity's object payload
	IsLocal     bool   // true if this node authored the activity
	IsDelivered bool   // inbound receipt counts as delivered
	CreatedAt   time.Time
}
