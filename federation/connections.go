package federation

import (
	"errors"
	"log"
	"time"

	"github.com/arenh/gomphos/db"
	"github.com/arenh/gomphos/domain"
	"github.com/arenh/gomphos/util"
	"github.com/google/uuid"
)

// Connections drives the follow state machine for local users: request,
// accept, remove, and the derived relationship queries. Outgoing Follow
// and Accept activities go through the outbox.
type Connections struct {
	db     *db.DB
	outbox *Outbox
	conf   *util.AppConfig
}

func NewConnections(database *db.DB, outbox *Outbox, conf *util.AppConfig) *Connections {
	return &Connections{db: database, outbox: outbox, conf: conf}
}

// PendingRequest is one incoming follow request awaiting acceptance.
type PendingRequest struct {
	ConnectionId string `json:"connection_id"`
	FromUserId   string `json:"from_user_id"`
	FromUsername string `json:"from_username"`
}

// ConnectedUser is one accepted incoming connection.
type ConnectedUser struct {
	UserId   string `json:"user_id"`
	Username string `json:"username"`
}

// UserResult tags a user with the caller's outgoing relationship to
// them: self, connected, pending or none.
type UserResult struct {
	UserId   string `json:"user_id"`
	Username string `json:"username"`
	Status   string `json:"status"`
}

func (c *Connections) actorFor(username string) string {
	return util.ActorURI(c.conf.Conf.BaseUrl, username)
}

// Request records a pending connection from the acting user to the
// named user and pushes a Follow activity to the peers.
func (c *Connections) Request(acc *domain.Account, targetUsername string) (*domain.Connection, error) {
	if err, _ := c.db.ReadAccByUsername(targetUsername); err != nil {
		return nil, err
	}

	targetActor := c.actorFor(targetUsername)
	conn := &domain.Connection{
		Id:          uuid.New(),
		RequesterId: acc.Id.String(),
		TargetActor: targetActor,
		Status:      domain.ConnectionPending,
		CreatedAt:   time.Now(),
	}
	if err := c.db.CreateConnection(conn); err != nil {
		return nil, err
	}

	follow := BuildFollow(c.actorFor(acc.Username), targetActor)
	if _, err := c.outbox.Publish(follow); err != nil {
		log.Printf("Connections: Failed to record follow activity: %v", err)
	}
	return conn, nil
}

// Accept flips a pending connection addressed to the acting user and
// inserts the mirror row, making the relationship queryable from both
// sides. A request that originated off-node gets an Accept activity
// pushed back to the peers instead of a mirror, since the remote
// requester has no local actor URL.
func (c *Connections) Accept(acc *domain.Account, connectionId uuid.UUID) error {
	err, conn := c.db.ReadConnectionById(connectionId)
	if err != nil {
		return err
	}
	if conn.Status != domain.ConnectionPending {
		return domain.ErrNotFound
	}

	myActor := c.actorFor(acc.Username)
	if conn.TargetActor != myActor {
		return domain.ErrForbidden
	}

	if conn.IsRemoteRequest() {
		affected, err := c.db.AcceptConnection(conn.Id)
		if err != nil {
			return err
		}
		if affected == 0 {
			return domain.ErrNotFound
		}
		// The pending row only carries the sentinel requester id, so
		// the follow's actor comes from the recorded inbound Follow.
		followActor := myActor
		if err, actor := c.db.ReadFollowActorByObject(string(mustMarshal(conn.TargetActor))); err == nil {
			followActor = actor
		}
		accept := BuildAccept(myActor, followActor, conn.TargetActor)
		if _, err := c.outbox.Publish(accept); err != nil {
			log.Printf("Connections: Failed to record accept activity: %v", err)
		}
		return nil
	}

	err, requester := c.requesterAccount(conn.RequesterId)
	if err != nil {
		return err
	}
	mirror := &domain.Connection{
		Id:          uuid.New(),
		RequesterId: acc.Id.String(),
		TargetActor: c.actorFor(requester.Username),
		Status:      domain.ConnectionAccepted,
		CreatedAt:   time.Now(),
	}
	affected, err := c.db.AcceptConnectionWithMirror(conn.Id, mirror)
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Remove drops the accepted connection between the acting user and the
// named user in both directions. Pending requests stay put, and
// removing a non-existent connection is a no-op.
func (c *Connections) Remove(acc *domain.Account, targetUsername string) error {
	targetActor := c.actorFor(targetUsername)
	if err := c.db.DeleteConnection(acc.Id.String(), targetActor); err != nil {
		return err
	}

	err, target := c.db.ReadAccByUsername(targetUsername)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	return c.db.DeleteConnection(target.Id.String(), c.actorFor(acc.Username))
}

// Pending lists incoming follow requests awaiting the acting user's
// acceptance. Requests whose requester cannot be resolved to a local
// account are skipped.
func (c *Connections) Pending(acc *domain.Account) ([]PendingRequest, error) {
	err, conns := c.db.ReadConnectionsByTarget(c.actorFor(acc.Username), domain.ConnectionPending)
	if err != nil {
		return nil, err
	}

	results := make([]PendingRequest, 0, len(*conns))
	for _, conn := range *conns {
		err, requester := c.requesterAccount(conn.RequesterId)
		if err != nil {
			continue
		}
		results = append(results, PendingRequest{
			ConnectionId: conn.Id.String(),
			FromUserId:   requester.Id.String(),
			FromUsername: requester.Username,
		})
	}
	return results, nil
}

// Count returns the number of accepted incoming connections.
func (c *Connections) Count(acc *domain.Account) (int, error) {
	err, count := c.db.CountConnectionsByTarget(c.actorFor(acc.Username), domain.ConnectionAccepted)
	return count, err
}

// List returns the accepted incoming connections with their local
// requester accounts resolved.
func (c *Connections) List(acc *domain.Account) ([]ConnectedUser, error) {
	err, conns := c.db.ReadConnectionsByTarget(c.actorFor(acc.Username), domain.ConnectionAccepted)
	if err != nil {
		return nil, err
	}

	results := make([]ConnectedUser, 0, len(*conns))
	for _, conn := range *conns {
		err, requester := c.requesterAccount(conn.RequesterId)
		if err != nil {
			continue
		}
		results = append(results, ConnectedUser{
			UserId:   requester.Id.String(),
			Username: requester.Username,
		})
	}
	return results, nil
}

// ConnectedUsernames returns the usernames the acting user follows
// with accepted status, derived from the requester-side rows.
func (c *Connections) ConnectedUsernames(acc *domain.Account) ([]string, error) {
	err, conns := c.db.ReadAcceptedConnectionsByRequester(acc.Id.String())
	if err != nil {
		return nil, err
	}

	usernames := make([]string, 0, len(*conns))
	for _, conn := range *conns {
		if username := util.UsernameFromActor(conn.TargetActor); username != "" {
			usernames = append(usernames, username)
		}
	}
	return usernames, nil
}

// RandomUsers suggests up to limit users the acting user has no
// relationship with in either direction.
func (c *Connections) RandomUsers(acc *domain.Account, limit int) ([]UserResult, error) {
	excluded, err := c.relatedActors(acc)
	if err != nil {
		return nil, err
	}

	err, candidates := c.db.ReadRandomAccounts(acc.Id, limit*4)
	if err != nil {
		return nil, err
	}

	results := make([]UserResult, 0, limit)
	for _, candidate := range *candidates {
		if excluded[c.actorFor(candidate.Username)] {
			continue
		}
		results = append(results, UserResult{
			UserId:   candidate.Id.String(),
			Username: candidate.Username,
			Status:   "none",
		})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// Search finds users by username fragment and tags each hit with the
// caller's outgoing relationship status. Only the outgoing direction
// is reflected; an incoming pending request still shows as none.
func (c *Connections) Search(acc *domain.Account, query string, limit int) ([]UserResult, error) {
	err, outgoing := c.db.ReadConnectionsByRequester(acc.Id.String())
	if err != nil {
		return nil, err
	}
	statusByActor := make(map[string]string, len(*outgoing))
	for _, conn := range *outgoing {
		if conn.Status == domain.ConnectionAccepted {
			statusByActor[conn.TargetActor] = "connected"
		} else if statusByActor[conn.TargetActor] == "" {
			statusByActor[conn.TargetActor] = "pending"
		}
	}

	err, matches := c.db.SearchAccounts(query, limit)
	if err != nil {
		return nil, err
	}

	results := make([]UserResult, 0, len(*matches))
	for _, match := range *matches {
		status := "none"
		if match.Id == acc.Id {
			status = "self"
		} else if s := statusByActor[c.actorFor(match.Username)]; s != "" {
			status = s
		}
		results = append(results, UserResult{
			UserId:   match.Id.String(),
			Username: match.Username,
			Status:   status,
		})
	}
	return results, nil
}

// relatedActors collects every actor the user has any connection with,
// in either direction and any status.
func (c *Connections) relatedActors(acc *domain.Account) (map[string]bool, error) {
	actors := make(map[string]bool)

	err, outgoing := c.db.ReadConnectionsByRequester(acc.Id.String())
	if err != nil {
		return nil, err
	}
	for _, conn := range *outgoing {
		actors[conn.TargetActor] = true
	}

	myActor := c.actorFor(acc.Username)
	for _, status := range []string{domain.ConnectionPending, domain.ConnectionAccepted} {
		err, incoming := c.db.ReadConnectionsByTarget(myActor, status)
		if err != nil {
			return nil, err
		}
		for _, conn := range *incoming {
			err, requester := c.requesterAccount(conn.RequesterId)
			if err != nil {
				continue
			}
			actors[c.actorFor(requester.Username)] = true
		}
	}
	return actors, nil
}

func (c *Connections) requesterAccount(requesterId string) (error, *domain.Account) {
	id, err := uuid.Parse(requesterId)
	if err != nil {
		return domain.ErrNotFound, nil
	}
	return c.db.ReadAccById(id)
}
