package db

import (
	"database/sql"

	"github.com/arenh/gomphos/domain"
	"github.com/google/uuid"
)

// Activity queries
const (
	sqlCreateActivitiesTable = `CREATE TABLE IF NOT EXISTS activities(
                        id uuid NOT NULL PRIMARY KEY,
                        activity_type varchar(50) NOT NULL,
                        actor_uri text NOT NULL,
                        object_json text NOT NULL,
                        is_local int default 0,
                        is_delivered int default 0,
                        created_at timestamp default current_timestamp
                        )`
	sqlCreateActivitiesIndices = `
		CREATE INDEX IF NOT EXISTS idx_activities_type ON activities(activity_type);
		CREATE INDEX IF NOT EXISTS idx_activities_created_at ON activities(created_at DESC);
	`
	sqlInsertActivity            = `INSERT INTO activities(id, activity_type, actor_uri, object_json, is_local, is_delivered, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlSelectActivityById        = `SELECT id, activity_type, actor_uri, object_json, is_local, is_delivered, created_at FROM activities WHERE id = ?`
	sqlMarkActivityDelivered     = `UPDATE activities SET is_delivered = 1 WHERE id = ?`
	sqlSelectLocalUndelivered    = `SELECT id, activity_type, actor_uri, object_json, is_local, is_delivered, created_at FROM activities WHERE is_local = 1 AND is_delivered = 0 ORDER BY created_at ASC`
	sqlSelectFollowActorByObject = `SELECT actor_uri FROM activities WHERE activity_type = 'Follow' AND is_local = 0 AND object_json = ? ORDER BY created_at DESC LIMIT 1`
)

func (db *DB) CreateActivity(activity *domain.Activity) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		return CreateActivityTx(tx, activity)
	})
}

// CreateActivityTx inserts an activity audit row within an ongoing
// transaction.
func CreateActivityTx(tx *sql.Tx, activity *domain.Activity) error {
	_, err := tx.Exec(sqlInsertActivity,
		activity.Id.String(),
		activity.Type,
		activity.Actor,
		activity.RawObject,
		boolToInt(activity.IsLocal),
		boolToInt(activity.IsDelivered),
		activity.CreatedAt,
	)
	return err
}

func (db *DB) ReadActivityById(id uuid.UUID) (error, *domain.Activity) {
	row := db.db.QueryRow(sqlSelectActivityById, id.String())
	var activity domain.Activity
	var idStr string
	var isLocal, isDelivered int
	err := row.Scan(&idStr, &activity.Type, &activity.Actor, &activity.RawObject, &isLocal, &isDelivered, &activity.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.ErrNotFound, nil
	}
	if err != nil {
		return err, nil
	}
	activity.Id, _ = uuid.Parse(idStr)
	activity.IsLocal = isLocal != 0
	activity.IsDelivered = isDelivered != 0
	return nil, &activity
}

func (db *DB) MarkActivityDelivered(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlMarkActivityDelivered, id.String())
		return err
	})
}

// ReadFollowActorByObject returns the actor of the most recent inbound
// Follow whose recorded object matches rawObject exactly as stored,
// quoting included.
func (db *DB) ReadFollowActorByObject(rawObject string) (error, string) {
	var actor string
	err := db.db.QueryRow(sqlSelectFollowActorByObject, rawObject).Scan(&actor)
	if err == sql.ErrNoRows {
		return domain.ErrNotFound, ""
	}
	if err != nil {
		return err, ""
	}
	return nil, actor
}

// ReadUndeliveredLocalActivities returns local activities whose single
// delivery attempt did not reach a peer, oldest first. Observability
// only, there is no retry mechanism.
func (db *DB) ReadUndeliveredLocalActivities() (error, *[]domain.Activity) {
	rows, err := db.db.Query(sqlSelectLocalUndelivered)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var activities []domain.Activity
	for rows.Next() {
		var activity domain.Activity
		var idStr string
		var isLocal, isDelivered int
		if err := rows.Scan(&idStr, &activity.Type, &activity.Actor, &activity.RawObject, &isLocal, &isDelivered, &activity.CreatedAt); err != nil {
			return err, &activities
		}
		activity.Id, _ = uuid.Parse(idStr)
		activity.IsLocal = isLocal != 0
		activity.IsDelivered = isDelivered != 0
		activities = append(activities, activity)
	}
	if err = rows.Err(); err != nil {
		return err, &activities
	}
	return nil, &activities
}

// Connection queries
const (
	sqlCreateConnectionsTable = `CREATE TABLE IF NOT EXISTS connections(
                        id uuid NOT NULL PRIMARY KEY,
                        requester_id varchar(100) NOT NULL,
                        target_actor text NOT NULL,
                        status varchar(20) NOT NULL,
                        created_at timestamp default current_timestamp,
                        UNIQUE(requester_id, target_actor)
                        )`
	sqlCreateConnectionsIndices = `
		CREATE INDEX IF NOT EXISTS idx_connections_requester ON connections(requester_id);
		CREATE INDEX IF NOT EXISTS idx_connections_target ON connections(target_actor);
	`
	sqlInsertConnection                = `INSERT INTO connections(id, requester_id, target_actor, status, created_at) VALUES (?, ?, ?, ?, ?)`
	sqlSelectConnectionById            = `SELECT id, requester_id, target_actor, status, created_at FROM connections WHERE id = ?`
	sqlSelectConnectionsByRequester    = `SELECT id, requester_id, target_actor, status, created_at FROM connections WHERE requester_id = ?`
	sqlSelectConnectionsByTargetStatus = `SELECT id, requester_id, target_actor, status, created_at FROM connections WHERE target_actor = ? AND status = ?`
	sqlSelectPendingConnectionByTarget = `SELECT id, requester_id, target_actor, status, created_at FROM connections WHERE target_actor = ? AND status = 'pending' ORDER BY created_at ASC LIMIT 1`
	sqlCountConnectionsByTargetStatus  = `SELECT COUNT(*) FROM connections WHERE target_actor = ? AND status = ?`
	sqlSelectAcceptedByRequester       = `SELECT id, requester_id, target_actor, status, created_at FROM connections WHERE requester_id = ? AND status = 'accepted'`
	sqlAcceptConnection                = `UPDATE connections SET status = 'accepted' WHERE id = ? AND status = 'pending'`
	sqlDeleteConnectionByReqAndTarget  = `DELETE FROM connections WHERE requester_id = ? AND target_actor = ? AND status = 'accepted'`
)

func (db *DB) CreateConnection(conn *domain.Connection) error {
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		return CreateConnectionTx(tx, conn)
	})
	return err
}

// CreateConnectionTx inserts a connection edge within an ongoing
// transaction. A duplicate (requester, target) pair maps to
// ErrAlreadyRequested via the table's uniqueness constraint.
func CreateConnectionTx(tx *sql.Tx, conn *domain.Connection) error {
	_, err := tx.Exec(sqlInsertConnection,
		conn.Id.String(),
		conn.RequesterId,
		conn.TargetActor,
		conn.Status,
		conn.CreatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyRequested
	}
	return err
}

func (db *DB) ReadConnectionById(id uuid.UUID) (error, *domain.Connection) {
	return scanConnection(db.db.QueryRow(sqlSelectConnectionById, id.String()))
}

// ReadPendingConnectionByTargetTx finds the oldest pending edge whose
// target matches the given actor, within an ongoing transaction. Used
// by the inbox when applying an inbound Accept.
func ReadPendingConnectionByTargetTx(tx *sql.Tx, targetActor string) (error, *domain.Connection) {
	return scanConnection(tx.QueryRow(sqlSelectPendingConnectionByTarget, targetActor))
}

func scanConnection(row *sql.Row) (error, *domain.Connection) {
	var conn domain.Connection
	var idStr string
	err := row.Scan(&idStr, &conn.RequesterId, &conn.TargetActor, &conn.Status, &conn.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.ErrNotFound, nil
	}
	if err != nil {
		return err, nil
	}
	conn.Id, _ = uuid.Parse(idStr)
	return nil, &conn
}

func (db *DB) ReadConnectionsByRequester(requesterId string) (error, *[]domain.Connection) {
	return db.queryConnections(sqlSelectConnectionsByRequester, requesterId)
}

func (db *DB) ReadAcceptedConnectionsByRequester(requesterId string) (error, *[]domain.Connection) {
	return db.queryConnections(sqlSelectAcceptedByRequester, requesterId)
}

func (db *DB) ReadConnectionsByTarget(targetActor string, status string) (error, *[]domain.Connection) {
	return db.queryConnections(sqlSelectConnectionsByTargetStatus, targetActor, status)
}

func (db *DB) CountConnectionsByTarget(targetActor string, status string) (error, int) {
	var count int
	err := db.db.QueryRow(sqlCountConnectionsByTargetStatus, targetActor, status).Scan(&count)
	return err, count
}

func (db *DB) queryConnections(query string, args ...interface{}) (error, *[]domain.Connection) {
	rows, err := db.db.Query(query, args...)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var connections []domain.Connection
	for rows.Next() {
		var conn domain.Connection
		var idStr string
		if err := rows.Scan(&idStr, &conn.RequesterId, &conn.TargetActor, &conn.Status, &conn.CreatedAt); err != nil {
			return err, &connections
		}
		conn.Id, _ = uuid.Parse(idStr)
		connections = append(connections, conn)
	}
	if err = rows.Err(); err != nil {
		return err, &connections
	}
	return nil, &connections
}

// AcceptConnectionTx flips a pending edge to accepted within an
// ongoing transaction. Returns the number of rows changed; zero means
// the edge was missing or not pending.
func AcceptConnectionTx(tx *sql.Tx, id uuid.UUID) (int64, error) {
	res, err := tx.Exec(sqlAcceptConnection, id.String())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// AcceptConnectionWithMirror flips the pending edge to accepted and
// inserts the mirror edge in the same transaction, so an accepted
// relationship is always queryable from both directions. Returns zero
// affected rows when the edge was missing or not pending; the mirror
// is only written when the flip took effect.
func (db *DB) AcceptConnectionWithMirror(id uuid.UUID, mirror *domain.Connection) (int64, error) {
	var affected int64
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		var err error
		affected, err = AcceptConnectionTx(tx, id)
		if err != nil || affected == 0 {
			return err
		}
		err = CreateConnectionTx(tx, mirror)
		if err == domain.ErrAlreadyRequested {
			// Mirror edge already present, e.g. both sides requested
			// each other before either accepted
			return nil
		}
		return err
	})
	return affected, err
}

func (db *DB) AcceptConnection(id uuid.UUID) (int64, error) {
	var affected int64
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		var err error
		affected, err = AcceptConnectionTx(tx, id)
		return err
	})
	return affected, err
}

// DeleteConnection removes an accepted directed edge. Pending requests
// are left alone, and removing an edge that does not exist is a no-op,
// not an error.
func (db *DB) DeleteConnection(requesterId string, targetActor string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteConnectionByReqAndTarget, requesterId, targetActor)
		return err
	})
}
