package federation

import (
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/arenh/gomphos/db"
	"github.com/arenh/gomphos/domain"
	"github.com/arenh/gomphos/util"
	"github.com/google/uuid"
)

// Inbox applies activities received from peers. Each received activity
// is recorded and applied within a single transaction, so a duplicate
// or partially-invalid delivery never leaves half its side effects
// behind.
type Inbox struct {
	db   *db.DB
	conf *util.AppConfig
}

func NewInbox(database *db.DB, conf *util.AppConfig) *Inbox {
	return &Inbox{db: database, conf: conf}
}

// Receive parses, records and applies one inbound activity. Only a
// malformed envelope is an error to the caller; duplicates and unknown
// types are absorbed after being recorded.
func (in *Inbox) Receive(raw []byte) error {
	activity, err := ParseActivity(raw)
	if err != nil {
		return err
	}

	record := &domain.Activity{
		Id:        uuid.New(),
		Type:      activity.Type,
		Actor:     activity.Actor,
		RawObject: string(activity.Object),
		IsLocal:   false,
		// Receipt itself counts as delivered for remote-origin records
		IsDelivered: true,
		CreatedAt:   time.Now(),
	}

	return in.db.Transact(func(tx *sql.Tx) error {
		if err := db.CreateActivityTx(tx, record); err != nil {
			return err
		}

		switch obj := activity.DecodeObject().(type) {
		case CreateObject:
			return in.applyCreate(tx, activity, obj)
		case DeleteObject:
			return in.applyDelete(tx, obj)
		case FollowObject:
			return in.applyFollow(tx, obj)
		case AcceptObject:
			return in.applyAccept(tx, obj)
		default:
			log.Printf("Inbox: Ignoring %s activity from %s", activity.Type, activity.Actor)
			return nil
		}
	})
}

// applyCreate stores the remote post under the note's own id, so a
// second delivery of the same Create finds the row already present.
// The existence check is an optimization; the unique constraint on the
// post id is the actual duplicate guard.
func (in *Inbox) applyCreate(tx *sql.Tx, activity *Activity, obj CreateObject) error {
	note := obj.Note
	if note.Type != "Note" || note.Id == "" {
		log.Printf("Inbox: Create from %s carries no usable note, recording only", activity.Actor)
		return nil
	}

	err, _ := db.ReadPostByIdTx(tx, note.Id)
	if err == nil {
		log.Printf("Inbox: Post %s already known, skipping", note.Id)
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	post := &domain.Post{
		Id:             note.Id,
		Content:        note.Content,
		Author:         activity.Actor,
		UserId:         nil,
		OriginInstance: util.OriginInstance(activity.Actor),
		IsRemote:       true,
		CreatedAt:      note.PublishedAt(),
	}
	if err := db.CreatePostTx(tx, post); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil
		}
		return err
	}
	log.Printf("Inbox: Stored remote post %s by %s", post.Id, post.Author)
	return nil
}

// applyDelete removes the referenced remote post. Unknown ids and
// local posts are left alone without complaint.
func (in *Inbox) applyDelete(tx *sql.Tx, obj DeleteObject) error {
	affected, err := db.DeleteRemotePostTx(tx, obj.Id)
	if err != nil {
		return err
	}
	if affected > 0 {
		log.Printf("Inbox: Deleted remote post %s", obj.Id)
	}
	return nil
}

// applyFollow records a pending connection from an off-node requester.
// The requester has no local user row, so the sentinel id stands in.
func (in *Inbox) applyFollow(tx *sql.Tx, obj FollowObject) error {
	conn := &domain.Connection{
		Id:          uuid.New(),
		RequesterId: domain.RemoteRequester,
		TargetActor: obj.TargetActor,
		Status:      domain.ConnectionPending,
		CreatedAt:   time.Now(),
	}
	err := db.CreateConnectionTx(tx, conn)
	if errors.Is(err, domain.ErrAlreadyRequested) {
		return nil
	}
	return err
}

// applyAccept flips the pending connection addressed to the embedded
// follow's object, the actor whose acceptance is being relayed, then
// mirrors it so the relationship is queryable from both directions,
// matching what a local accept does. The mirror is skipped when the
// original requester was itself remote, since no local actor URL can
// be derived for it.
func (in *Inbox) applyAccept(tx *sql.Tx, obj AcceptObject) error {
	err, conn := db.ReadPendingConnectionByTargetTx(tx, obj.TargetActor)
	if errors.Is(err, domain.ErrNotFound) {
		log.Printf("Inbox: Accept for %s matches no pending connection, recording only", obj.TargetActor)
		return nil
	}
	if err != nil {
		return err
	}

	affected, err := db.AcceptConnectionTx(tx, conn.Id)
	if err != nil {
		return err
	}
	if affected == 0 || conn.IsRemoteRequest() {
		return nil
	}

	err, requester := db.ReadAccByIdTx(tx, conn.RequesterId)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	mirror := &domain.Connection{
		Id:          uuid.New(),
		RequesterId: domain.RemoteRequester,
		TargetActor: util.ActorURI(in.conf.Conf.BaseUrl, requester.Username),
		Status:      domain.ConnectionAccepted,
		CreatedAt:   time.Now(),
	}
	if err := db.CreateConnectionTx(tx, mirror); err != nil && !errors.Is(err, domain.ErrAlreadyRequested) {
		return err
	}
	return nil
}

// RemoveRemotePost deletes a remote post by its exact object id,
// reporting whether anything was removed.
func (in *Inbox) RemoveRemotePost(id string) (bool, error) {
	affected, err := in.db.DeleteRemotePostById(id)
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
