package web

import (
	"log"
	"net/http"

	"github.com/arenh/gomphos/federation"
	"github.com/arenh/gomphos/util"
	"github.com/gin-gonic/gin"
)

type inboxDeleteRequest struct {
	Id string `json:"id"`
}

func (s *Server) handleInbox(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		log.Printf("Inbox: Failed to read body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if err := s.inbox.Receive(body); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

func (s *Server) handleInboxDelete(c *gin.Context) {
	var req inboxDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id required"})
		return
	}

	deleted, err := s.inbox.RemoveRemotePost(req.Id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if deleted {
		c.JSON(http.StatusOK, gin.H{"status": "deleted"})
	} else {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	}
}

// handleActorOutbox stores an activity on behalf of a local actor
// without attempting delivery. The caller must be the actor, and the
// activity's actor field must match the actor's own URI.
func (s *Server) handleActorOutbox(c *gin.Context) {
	username := c.Param("username")
	acc := currentAccount(c)
	if acc.Username != username {
		c.JSON(http.StatusForbidden, gin.H{"error": "cannot write to another actor's outbox"})
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	activity, err := federation.ParseActivity(body)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if owner, ok := util.LocalUsername(activity.Actor, s.conf.Conf.BaseUrl); !ok || owner != username {
		c.JSON(http.StatusBadRequest, gin.H{"error": "actor mismatch"})
		return
	}

	record, err := s.outbox.Store(*activity)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stored", "activity_id": record.Id.String()})
}
