package domain

import (
	"fmt"
	"github.com/google/uuid"
	"time"
)

// Post is a published note, local or federated. For local posts the id
// is node-assigned and UserId references the author; posts ingested
// from a peer keep the peer's object id verbatim (which is what makes
// duplicate delivery detectable) and carry no user reference.
type Post struct {
	Id             string
	Content        string
	Author         string // local username, or actor URI for remote posts
	UserId         *uuid.UUID
	OriginInstance string
	IsRemote       bool
	CreatedAt      time.Time
}

func (post *Post) ToString() string {
	return fmt.Sprintf("\n\tId: %s \n\tAuthor: %s \n\tContent: %s \n\tCreatedAt: %s)", post.Id, post.Author, post.Content, post.CreatedAt)
}
