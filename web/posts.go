package web

import (
	"net/http"

	"github.com/arenh/gomphos/domain"
	"github.com/gin-gonic/gin"
)

type createPostRequest struct {
	Content string `json:"content"`
}

func postJSON(post *domain.Post) gin.H {
	out := gin.H{
		"id":              post.Id,
		"content":         post.Content,
		"author":          post.Author,
		"origin_instance": post.OriginInstance,
		"is_remote":       post.IsRemote,
		"created_at":      post.CreatedAt,
	}
	if post.UserId != nil {
		out["user_id"] = post.UserId.String()
	}
	return out
}

func postListJSON(posts *[]domain.Post) []gin.H {
	rendered := make([]gin.H, 0, len(*posts))
	for i := range *posts {
		rendered = append(rendered, postJSON(&(*posts)[i]))
	}
	return rendered
}

func (s *Server) handleCreatePost(c *gin.Context) {
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	post, err := s.posts.Create(currentAccount(c), req.Content)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, postJSON(post))
}

func (s *Server) handleDeletePost(c *gin.Context) {
	if err := s.posts.Delete(currentAccount(c), c.Param("post_id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// handleGetPosts lists every post ordered by id, newest assigned first.
func (s *Server) handleGetPosts(c *gin.Context) {
	err, posts := s.db.ReadAllPostsById()
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, postListJSON(posts))
}

// handleTimeline lists every post ordered by creation time.
func (s *Server) handleTimeline(c *gin.Context) {
	err, posts := s.db.ReadAllPosts()
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, postListJSON(posts))
}

func (s *Server) handleConnectedTimeline(c *gin.Context) {
	timeline, err := s.posts.ConnectedTimeline(currentAccount(c), s.conns)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, postListJSON(&timeline))
}
