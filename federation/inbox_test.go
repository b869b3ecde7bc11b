package federation

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/arenh/gomphos/db"
	"github.com/arenh/gomphos/domain"
	"github.com/arenh/gomphos/util"
	"github.com/google/uuid"
)

func setupInbox(t *testing.T) (*Inbox, *db.DB) {
	t.Helper()
	database := setupTestDB(t)
	conf := &util.AppConfig{}
	conf.Conf.BaseUrl = "http://localhost:8080"
	return NewInbox(database, conf), database
}

func newLocalAccount(t *testing.T, database *db.DB, username string) *domain.Account {
	t.Helper()
	acc := &domain.Account{
		Id:           uuid.New(),
		Username:     username,
		PasswordHash: "$2a$10$fakefakefakefakefakefake",
		Email:        username + "@example.com",
		CreatedAt:    time.Now(),
	}
	if err := database.CreateAccount(acc); err != nil {
		t.Fatalf("Failed to create account %s: %v", username, err)
	}
	return acc
}

func activityJSON(activity Activity) ([]byte, error) {
	return json.Marshal(activity)
}

func createActivityJSON(noteId string) []byte {
	return []byte(fmt.Sprintf(`{
		"type": "Create",
		"actor": "http://peer/users/carol",
		"object": {
			"type": "Note",
			"id": "%s",
			"content": "hello from peer",
			"attributedTo": "http://peer/users/carol",
			"published": "2024-05-01T10:00:00Z"
		}
	}`, noteId))
}

func TestReceiveMalformed(t *testing.T) {
	inbox, database := setupInbox(t)

	err := inbox.Receive([]byte(`{"actor":"http://peer/users/carol"}`))
	if !errors.Is(err, domain.ErrMalformedActivity) {
		t.Fatalf("expected ErrMalformedActivity, got %v", err)
	}

	err, posts := database.ReadAllPosts()
	if err != nil {
		t.Fatalf("ReadAllPosts failed: %v", err)
	}
	if len(*posts) != 0 {
		t.Errorf("malformed activity must not create posts, got %d", len(*posts))
	}
}

func TestReceiveCreateStoresRemotePost(t *testing.T) {
	inbox, database := setupInbox(t)

	if err := inbox.Receive(createActivityJSON("http://peer/posts/1")); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}

	err, post := database.ReadPostById("http://peer/posts/1")
	if err != nil {
		t.Fatalf("ReadPostById failed: %v", err)
	}
	if !post.IsRemote {
		t.Error("expected post marked remote")
	}
	if post.UserId != nil {
		t.Error("remote post must not reference a local user")
	}
	if post.Author != "http://peer/users/carol" {
		t.Errorf("unexpected author %s", post.Author)
	}
	if post.OriginInstance != "http://peer" {
		t.Errorf("unexpected origin %s", post.OriginInstance)
	}
}

func TestReceiveCreateAuthorIsActor(t *testing.T) {
	inbox, database := setupInbox(t)

	raw := []byte(`{
		"type": "Create",
		"actor": "http://peer/users/carol",
		"object": {
			"type": "Note",
			"id": "http://peer/posts/1",
			"content": "hello from peer",
			"attributedTo": "http://other/users/mallory",
			"published": "2024-05-01T10:00:00Z"
		}
	}`)
	if err := inbox.Receive(raw); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}

	err, post := database.ReadPostById("http://peer/posts/1")
	if err != nil {
		t.Fatalf("ReadPostById failed: %v", err)
	}
	if post.Author != "http://peer/users/carol" {
		t.Errorf("author must be the delivering actor, got %s", post.Author)
	}
}

func TestReceiveCreateIdempotent(t *testing.T) {
	inbox, database := setupInbox(t)

	raw := createActivityJSON("http://peer/posts/1")
	if err := inbox.Receive(raw); err != nil {
		t.Fatalf("first Receive failed: %v", err)
	}
	if err := inbox.Receive(raw); err != nil {
		t.Fatalf("duplicate Receive failed: %v", err)
	}

	err, posts := database.ReadAllPosts()
	if err != nil {
		t.Fatalf("ReadAllPosts failed: %v", err)
	}
	if len(*posts) != 1 {
		t.Errorf("expected exactly 1 post after duplicate delivery, got %d", len(*posts))
	}
}

func TestReceiveCreateNonNoteRecordedOnly(t *testing.T) {
	inbox, database := setupInbox(t)

	raw := []byte(`{"type":"Create","actor":"http://peer/users/carol","object":{"type":"Question","id":"http://peer/q/1"}}`)
	if err := inbox.Receive(raw); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}

	err, posts := database.ReadAllPosts()
	if err != nil {
		t.Fatalf("ReadAllPosts failed: %v", err)
	}
	if len(*posts) != 0 {
		t.Errorf("non-note create must not produce posts, got %d", len(*posts))
	}
}

func TestReceiveDeleteExactMatch(t *testing.T) {
	inbox, database := setupInbox(t)

	if err := inbox.Receive(createActivityJSON("http://peer/posts/1")); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if err := inbox.Receive(createActivityJSON("http://peer/posts/11")); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}

	raw := []byte(`{"type":"Delete","actor":"http://peer/users/carol","object":{"id":"http://peer/posts/1"}}`)
	if err := inbox.Receive(raw); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}

	err, _ := database.ReadPostById("http://peer/posts/1")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected post 1 deleted, got %v", err)
	}
	err, _ = database.ReadPostById("http://peer/posts/11")
	if err != nil {
		t.Errorf("post 11 must survive delete of post 1: %v", err)
	}
}

func TestReceiveDeleteUnknownIdIgnored(t *testing.T) {
	inbox, _ := setupInbox(t)

	raw := []byte(`{"type":"Delete","actor":"http://peer/users/carol","object":{"id":"http://peer/posts/404"}}`)
	if err := inbox.Receive(raw); err != nil {
		t.Fatalf("delete of unknown id must be silent: %v", err)
	}
}

func TestReceiveDeleteIgnoresLocalPosts(t *testing.T) {
	inbox, database := setupInbox(t)

	alice := newLocalAccount(t, database, "alice")
	post := &domain.Post{
		Id:             "local-1",
		Content:        "mine",
		Author:         "alice",
		UserId:         &alice.Id,
		OriginInstance: "gomphos",
		IsRemote:       false,
		CreatedAt:      time.Now(),
	}
	if err := database.CreatePost(post); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	raw := []byte(`{"type":"Delete","actor":"http://peer/users/carol","object":{"id":"local-1"}}`)
	if err := inbox.Receive(raw); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}

	err, _ := database.ReadPostById("local-1")
	if err != nil {
		t.Errorf("inbound delete must not touch local posts: %v", err)
	}
}

func TestReceiveFollowCreatesPendingConnection(t *testing.T) {
	inbox, database := setupInbox(t)

	raw := []byte(`{"type":"Follow","actor":"http://peer/users/carol","object":"http://localhost:8080/users/alice"}`)
	if err := inbox.Receive(raw); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}

	err, pending := database.ReadConnectionsByTarget("http://localhost:8080/users/alice", domain.ConnectionPending)
	if err != nil {
		t.Fatalf("ReadConnectionsByTarget failed: %v", err)
	}
	if len(*pending) != 1 {
		t.Fatalf("expected 1 pending connection, got %d", len(*pending))
	}
	if (*pending)[0].RequesterId != domain.RemoteRequester {
		t.Errorf("expected remote sentinel requester, got %s", (*pending)[0].RequesterId)
	}
}

func TestReceiveFollowDuplicateAbsorbed(t *testing.T) {
	inbox, database := setupInbox(t)

	raw := []byte(`{"type":"Follow","actor":"http://peer/users/carol","object":"http://localhost:8080/users/alice"}`)
	if err := inbox.Receive(raw); err != nil {
		t.Fatalf("first Receive failed: %v", err)
	}
	if err := inbox.Receive(raw); err != nil {
		t.Fatalf("duplicate follow must be absorbed: %v", err)
	}

	err, pending := database.ReadConnectionsByTarget("http://localhost:8080/users/alice", domain.ConnectionPending)
	if err != nil {
		t.Fatalf("ReadConnectionsByTarget failed: %v", err)
	}
	if len(*pending) != 1 {
		t.Errorf("expected 1 pending connection after duplicate, got %d", len(*pending))
	}
}

func TestReceiveAcceptFlipsAndMirrors(t *testing.T) {
	inbox, database := setupInbox(t)

	// alice requested to follow carol on the peer node
	alice := newLocalAccount(t, database, "alice")
	conn := &domain.Connection{
		Id:          uuid.New(),
		RequesterId: alice.Id.String(),
		TargetActor: "http://peer/users/carol",
		Status:      domain.ConnectionPending,
		CreatedAt:   time.Now(),
	}
	if err := database.CreateConnection(conn); err != nil {
		t.Fatalf("CreateConnection failed: %v", err)
	}

	accept := BuildAccept("http://peer/users/carol", "http://localhost:8080/users/alice", "http://peer/users/carol")
	raw, err := activityJSON(accept)
	if err != nil {
		t.Fatalf("failed to encode accept: %v", err)
	}
	if err := inbox.Receive(raw); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}

	err, got := database.ReadConnectionById(conn.Id)
	if err != nil {
		t.Fatalf("ReadConnectionById failed: %v", err)
	}
	if got.Status != domain.ConnectionAccepted {
		t.Errorf("expected connection accepted, got %s", got.Status)
	}

	// Mirror row: remote side now follows alice back
	err, mirrors := database.ReadConnectionsByTarget("http://localhost:8080/users/alice", domain.ConnectionAccepted)
	if err != nil {
		t.Fatalf("ReadConnectionsByTarget failed: %v", err)
	}
	if len(*mirrors) != 1 {
		t.Fatalf("expected 1 mirror row, got %d", len(*mirrors))
	}
	if (*mirrors)[0].RequesterId != domain.RemoteRequester {
		t.Errorf("expected remote sentinel on mirror, got %s", (*mirrors)[0].RequesterId)
	}
}

func TestReceiveAcceptNoPendingRecordedOnly(t *testing.T) {
	inbox, _ := setupInbox(t)

	accept := BuildAccept("http://peer/users/carol", "http://localhost:8080/users/alice", "http://peer/users/carol")
	raw, err := activityJSON(accept)
	if err != nil {
		t.Fatalf("failed to encode accept: %v", err)
	}
	if err := inbox.Receive(raw); err != nil {
		t.Fatalf("accept without pending connection must be absorbed: %v", err)
	}
}

func TestReceiveAcceptRemoteRequesterNoMirror(t *testing.T) {
	inbox, database := setupInbox(t)

	conn := &domain.Connection{
		Id:          uuid.New(),
		RequesterId: domain.RemoteRequester,
		TargetActor: "http://peer/users/carol",
		Status:      domain.ConnectionPending,
		CreatedAt:   time.Now(),
	}
	if err := database.CreateConnection(conn); err != nil {
		t.Fatalf("CreateConnection failed: %v", err)
	}

	accept := BuildAccept("http://peer/users/carol", "http://localhost:8080/users/alice", "http://peer/users/carol")
	raw, err := activityJSON(accept)
	if err != nil {
		t.Fatalf("failed to encode accept: %v", err)
	}
	if err := inbox.Receive(raw); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}

	err, got := database.ReadConnectionById(conn.Id)
	if err != nil {
		t.Fatalf("ReadConnectionById failed: %v", err)
	}
	if got.Status != domain.ConnectionAccepted {
		t.Errorf("expected connection accepted, got %s", got.Status)
	}

	err, mirrors := database.ReadConnectionsByTarget("http://localhost:8080/users/alice", domain.ConnectionAccepted)
	if err != nil {
		t.Fatalf("ReadConnectionsByTarget failed: %v", err)
	}
	if len(*mirrors) != 0 {
		t.Errorf("no mirror expected for a remote requester, got %d", len(*mirrors))
	}
}

func TestReceiveUnknownTypeRecorded(t *testing.T) {
	inbox, database := setupInbox(t)

	raw := []byte(`{"type":"Like","actor":"http://peer/users/carol","object":{"id":"http://peer/posts/1"}}`)
	if err := inbox.Receive(raw); err != nil {
		t.Fatalf("unknown activity type must be absorbed: %v", err)
	}

	err, posts := database.ReadAllPosts()
	if err != nil {
		t.Fatalf("ReadAllPosts failed: %v", err)
	}
	if len(*posts) != 0 {
		t.Errorf("unknown activity must have no side effects, got %d posts", len(*posts))
	}
}

func TestRemoveRemotePost(t *testing.T) {
	inbox, _ := setupInbox(t)

	if err := inbox.Receive(createActivityJSON("http://peer/posts/1")); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}

	deleted, err := inbox.RemoveRemotePost("http://peer/posts/1")
	if err != nil {
		t.Fatalf("RemoveRemotePost failed: %v", err)
	}
	if !deleted {
		t.Error("expected post deleted")
	}

	deleted, err = inbox.RemoveRemotePost("http://peer/posts/1")
	if err != nil {
		t.Fatalf("RemoveRemotePost failed: %v", err)
	}
	if deleted {
		t.Error("second delete must report nothing removed")
	}
}
