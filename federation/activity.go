package federation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/arenh/gomphos/domain"
	"github.com/arenh/gomphos/util"
)

const (
	TypeCreate = "Create"
	TypeDelete = "Delete"
	TypeFollow = "Follow"
	TypeAccept = "Accept"
)

// Activity is the wire form exchanged between nodes. Object stays raw
// until DecodeObject resolves it into one of the typed variants below.
type Activity struct {
	Type   string          `json:"type"`
	Actor  string          `json:"actor"`
	Object json.RawMessage `json:"object"`
}

// Note is the object payload of a Create activity.
type Note struct {
	Type         string `json:"type"`
	Id           string `json:"id"`
	Content      string `json:"content"`
	AttributedTo string `json:"attributedTo"`
	Published    string `json:"published"`
}

// PublishedAt returns the note's published timestamp, falling back to
// the current time when the field is absent or unparseable.
func (n *Note) PublishedAt() time.Time {
	if t, err := time.Parse(time.RFC3339, n.Published); err == nil {
		return t
	}
	return time.Now()
}

// CreateObject is a decoded Create payload. The embedded note may have
// a non-Note type; the inbox records it but creates no post.
type CreateObject struct {
	Note Note
}

// DeleteObject references the deleted post by its full object id.
type DeleteObject struct {
	Id string `json:"id"`
}

// FollowObject carries the target actor URI. On the wire this is a
// bare string, not a nested object, unlike the other three variants.
type FollowObject struct {
	TargetActor string
}

// AcceptObject embeds the original Follow activity, so Actor and
// TargetActor recover the follow's participants.
type AcceptObject struct {
	Actor       string
	TargetActor string
}

// UnknownObject carries the raw payload of an unrecognized or
// undecodable object. Unknown activities are accepted and ignored,
// never rejected.
type UnknownObject struct {
	Raw json.RawMessage
}

// ParseActivity unmarshals and validates an inbound activity. Missing
// or empty type, actor or object fails with ErrMalformedActivity; the
// per-type object shape is not validated here.
func ParseActivity(raw []byte) (*Activity, error) {
	var activity Activity
	if err := json.Unmarshal(raw, &activity); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedActivity, err)
	}
	if err := activity.Validate(); err != nil {
		return nil, err
	}
	return &activity, nil
}

// Validate checks the common shape shared by all activity types.
func (a *Activity) Validate() error {
	if a.Type == "" {
		return fmt.Errorf("%w: missing type", domain.ErrMalformedActivity)
	}
	if a.Actor == "" {
		return fmt.Errorf("%w: missing actor", domain.ErrMalformedActivity)
	}
	if emptyObject(a.Object) {
		return fmt.Errorf("%w: missing object", domain.ErrMalformedActivity)
	}
	return nil
}

func emptyObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 ||
		bytes.Equal(trimmed, []byte("null")) ||
		bytes.Equal(trimmed, []byte(`""`))
}

// DecodeObject resolves the raw object into the typed variant for the
// activity's type. Payloads that do not decode into the expected shape
// come back as UnknownObject so the caller records them without
// further effect.
func (a *Activity) DecodeObject() interface{} {
	switch a.Type {
	case TypeCreate:
		var note Note
		if err := json.Unmarshal(a.Object, &note); err != nil {
			return UnknownObject{Raw: a.Object}
		}
		return CreateObject{Note: note}
	case TypeDelete:
		var del DeleteObject
		if err := json.Unmarshal(a.Object, &del); err != nil || del.Id == "" {
			return UnknownObject{Raw: a.Object}
		}
		return del
	case TypeFollow:
		var target string
		if err := json.Unmarshal(a.Object, &target); err != nil || target == "" {
			return UnknownObject{Raw: a.Object}
		}
		return FollowObject{TargetActor: target}
	case TypeAccept:
		var follow struct {
			Type   string `json:"type"`
			Actor  string `json:"actor"`
			Object string `json:"object"`
		}
		if err := json.Unmarshal(a.Object, &follow); err != nil || follow.Actor == "" || follow.Object == "" {
			return UnknownObject{Raw: a.Object}
		}
		return AcceptObject{Actor: follow.Actor, TargetActor: follow.Object}
	default:
		return UnknownObject{Raw: a.Object}
	}
}

// BuildCreate builds a Create activity from a local post.
func BuildCreate(post *domain.Post, baseUrl string) Activity {
	actor := util.ActorURI(baseUrl, post.Author)
	note := Note{
		Type:         "Note",
		Id:           fmt.Sprintf("%s/posts/%s", baseUrl, post.Id),
		Content:      post.Content,
		AttributedTo: actor,
		Published:    post.CreatedAt.Format(time.RFC3339),
	}
	return Activity{
		Type:   TypeCreate,
		Actor:  actor,
		Object: mustMarshal(note),
	}
}

// BuildDelete builds a Delete activity referencing a local post.
func BuildDelete(post *domain.Post, baseUrl string) Activity {
	return Activity{
		Type:   TypeDelete,
		Actor:  util.ActorURI(baseUrl, post.Author),
		Object: mustMarshal(DeleteObject{Id: fmt.Sprintf("%s/posts/%s", baseUrl, post.Id)}),
	}
}

// BuildFollow builds a Follow activity; the object is the bare target
// actor URI.
func BuildFollow(actor string, targetActor string) Activity {
	return Activity{
		Type:   TypeFollow,
		Actor:  actor,
		Object: mustMarshal(targetActor),
	}
}

// BuildAccept builds an Accept activity embedding the follow being
// accepted.
func BuildAccept(actor string, followActor string, followTarget string) Activity {
	follow := struct {
		Type   string `json:"type"`
		Actor  string `json:"actor"`
		Object string `json:"object"`
	}{
		Type:   TypeFollow,
		Actor:  followActor,
		Object: followTarget,
	}
	return Activity{
		Type:   TypeAccept,
		Actor:  actor,
		Object: mustMarshal(follow),
	}
}

// mustMarshal marshals v to JSON, panicking on error
func mustMarshal(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal: %v", err))
	}
	return b
}
