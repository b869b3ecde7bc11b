package domain

import (
	"github.com/google/uuid"
	"time"
)

const (
	ConnectionPending  = "pending"
	ConnectionAccepted = "accepted"
)

// RemoteRequester is the sentinel requester id used when a connection
// was initiated by an off-node actor whose local id is unknown.
const RemoteRequester = "REMOTE"

// Connection is a directed follow edge. A fully accepted relationship
// between two users is two rows, one per direction; symmetry is
// emergent, there is no single friendship entity.
type Connection struct {
	Id          uuid.UUID
	RequesterId string // local user id, or RemoteRequester
	TargetActor string
	Status      string
	CreatedAt   time.Time
}

func (conn *Connection) IsRemoteRequest() bool {
	return conn.RequesterId == RemoteRequester
}
