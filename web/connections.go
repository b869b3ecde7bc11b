package web

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// handleConnect dispatches POST /connect/{username} and
// POST /connect/accept/{connection_id} from one wildcard route, since
// the router cannot hold a static and a parameter segment side by
// side under /connect/.
func (s *Server) handleConnect(c *gin.Context) {
	action := strings.Trim(c.Param("action"), "/")

	if id, ok := strings.CutPrefix(action, "accept/"); ok {
		s.acceptConnection(c, id)
		return
	}
	if action == "" || strings.Contains(action, "/") {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	s.requestConnection(c, action)
}

func (s *Server) requestConnection(c *gin.Context, username string) {
	conn, err := s.conns.Request(currentAccount(c), username)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "request_sent", "connection_id": conn.Id.String()})
}

func (s *Server) acceptConnection(c *gin.Context, id string) {
	connectionId, err := uuid.Parse(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	if err := s.conns.Accept(currentAccount(c), connectionId); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "connected"})
}

func (s *Server) handleRemoveConnection(c *gin.Context) {
	if err := s.conns.Remove(currentAccount(c), c.Param("username")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

func (s *Server) handlePendingConnections(c *gin.Context) {
	pending, err := s.conns.Pending(currentAccount(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, pending)
}

func (s *Server) handleCountConnections(c *gin.Context) {
	count, err := s.conns.Count(currentAccount(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connection_count": count})
}

func (s *Server) handleListConnections(c *gin.Context) {
	list, err := s.conns.List(currentAccount(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleRandomUsers(c *gin.Context) {
	users, err := s.conns.RandomUsers(currentAccount(c), 5)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (s *Server) handleSearchUsers(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter q required"})
		return
	}

	results, err := s.conns.Search(currentAccount(c), query, 20)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}
