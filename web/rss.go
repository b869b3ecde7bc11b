package web

import (
	"errors"
	"fmt"
	"time"

	"github.com/arenh/gomphos/db"
	"github.com/arenh/gomphos/domain"
	"github.com/arenh/gomphos/util"
	"github.com/gorilla/feeds"
)

// GetRSS renders the public timeline (or a single author's posts) as
// an RSS feed.
func GetRSS(database *db.DB, conf *util.AppConfig, username string) (string, error) {
	var err error
	var posts *[]domain.Post
	var title string
	var author string

	link := fmt.Sprintf("%s/feed", conf.Conf.BaseUrl)

	if username != "" {
		err, posts = database.ReadPostsByAuthors([]string{username})
		if err != nil || len(*posts) == 0 {
			return "", errors.New("no posts for username")
		}
		title = fmt.Sprintf("%s Posts - %s", conf.Conf.InstanceName, username)
		author = username
		link = fmt.Sprintf("%s?username=%s", link, username)
	} else {
		err, posts = database.ReadAllPosts()
		if err != nil {
			return "", errors.New("error retrieving posts")
		}
		title = fmt.Sprintf("All %s Posts", conf.Conf.InstanceName)
		author = "everyone"
	}

	feed := &feeds.Feed{
		Title:       title,
		Link:        &feeds.Link{Href: link},
		Description: fmt.Sprintf("posts published on %s", conf.Conf.InstanceName),
		Author:      &feeds.Author{Name: author, Email: fmt.Sprintf("%s@%s", author, conf.Conf.InstanceName)},
		Created:     time.Now(),
	}

	var feedItems []*feeds.Item
	for _, post := range *posts {
		feedItems = append(feedItems,
			&feeds.Item{
				Id:      post.Id,
				Title:   post.CreatedAt.Format(time.RFC1123),
				Link:    &feeds.Link{Href: fmt.Sprintf("%s/posts/%s", conf.Conf.BaseUrl, post.Id)},
				Content: post.Content,
				Author:  &feeds.Author{Name: post.Author, Email: fmt.Sprintf("%s@%s", post.Author, post.OriginInstance)},
				Created: post.CreatedAt,
			})
	}

	feed.Items = feedItems
	return feed.ToRss()
}
