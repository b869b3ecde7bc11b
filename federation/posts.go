package federation

import (
	"fmt"
	"strings"
	"time"

	"github.com/arenh/gomphos/db"
	"github.com/arenh/gomphos/domain"
	"github.com/arenh/gomphos/util"
	"github.com/google/uuid"
)

// Posts handles locally authored posts and their federation side
// effects. Reads go straight to the store; this type only exists for
// the mutations that must also feed the outbox.
type Posts struct {
	db     *db.DB
	outbox *Outbox
	conf   *util.AppConfig
}

func NewPosts(database *db.DB, outbox *Outbox, conf *util.AppConfig) *Posts {
	return &Posts{db: database, outbox: outbox, conf: conf}
}

// Create stores a local post and pushes a Create activity to the
// peers. The post is visible locally even when delivery fails.
func (p *Posts) Create(acc *domain.Account, content string) (*domain.Post, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content required", domain.ErrInvalidInput)
	}

	post := &domain.Post{
		Id:             uuid.NewString(),
		Content:        content,
		Author:         acc.Username,
		UserId:         &acc.Id,
		OriginInstance: p.conf.Conf.InstanceName,
		IsRemote:       false,
		CreatedAt:      time.Now(),
	}
	if err := p.db.CreatePost(post); err != nil {
		return nil, err
	}

	if _, err := p.outbox.Publish(BuildCreate(post, p.conf.Conf.BaseUrl)); err != nil {
		return nil, err
	}
	return post, nil
}

// Delete removes a local post owned by the acting user and pushes a
// Delete activity. Remote posts and other users' posts are off limits.
func (p *Posts) Delete(acc *domain.Account, postId string) error {
	err, post := p.db.ReadPostById(postId)
	if err != nil {
		return err
	}
	if post.IsRemote {
		return fmt.Errorf("%w: cannot delete a remote post", domain.ErrForbidden)
	}
	if post.UserId == nil || *post.UserId != acc.Id {
		return domain.ErrForbidden
	}

	if err := p.db.DeletePostById(postId); err != nil {
		return err
	}

	if _, err := p.outbox.Publish(BuildDelete(post, p.conf.Conf.BaseUrl)); err != nil {
		return err
	}
	return nil
}

// ConnectedTimeline returns the posts authored by the users the acting
// user has an accepted outgoing connection with, newest first.
func (p *Posts) ConnectedTimeline(acc *domain.Account, connections *Connections) ([]domain.Post, error) {
	usernames, err := connections.ConnectedUsernames(acc)
	if err != nil {
		return nil, err
	}
	if len(usernames) == 0 {
		return []domain.Post{}, nil
	}
	err, posts := p.db.ReadPostsByAuthors(usernames)
	if err != nil {
		return nil, err
	}
	return *posts, nil
}
