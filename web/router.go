package web

import (
	"fmt"
	"log"

	"github.com/arenh/gomphos/account"
	"github.com/arenh/gomphos/db"
	"github.com/arenh/gomphos/federation"
	"github.com/arenh/gomphos/util"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"golang.org/x/time/rate"
)

// Server wires the HTTP surface to the store and the federation core.
type Server struct {
	conf     *util.AppConfig
	db       *db.DB
	accounts *account.Service
	posts    *federation.Posts
	conns    *federation.Connections
	inbox    *federation.Inbox
	outbox   *federation.Outbox
}

func NewServer(
	conf *util.AppConfig,
	database *db.DB,
	accounts *account.Service,
	posts *federation.Posts,
	conns *federation.Connections,
	inbox *federation.Inbox,
	outbox *federation.Outbox,
) *Server {
	return &Server{
		conf:     conf,
		db:       database,
		accounts: accounts,
		posts:    posts,
		conns:    conns,
		inbox:    inbox,
		outbox:   outbox,
	}
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	g := gin.Default()
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global rate limiter: 10 requests per second per IP, burst of 20
	globalLimiter := NewRateLimiter(rate.Limit(10), 20)
	g.Use(RateLimitMiddleware(globalLimiter))

	auth := RequireAuth(s.accounts)

	// Account endpoints
	g.POST("/auth/register", s.handleRegister)
	g.POST("/auth/login", s.handleLogin)
	g.POST("/auth/forgot-password", s.handleForgotPassword)
	g.POST("/auth/verify-otp", s.handleVerifyOtp)
	g.POST("/auth/reset-password", s.handleResetPassword)
	g.GET("/get_current_user", auth, s.handleGetCurrentUser)
	g.GET("/get_user/:username", auth, s.handleGetUser)

	// Post endpoints
	g.POST("/posts", auth, s.handleCreatePost)
	g.DELETE("/delete/:post_id", auth, s.handleDeletePost)
	g.GET("/get_posts", s.handleGetPosts)
	g.GET("/timeline", s.handleTimeline)
	g.GET("/timeline_connected_users", auth, s.handleConnectedTimeline)

	// Connection graph
	g.POST("/connect/*action", auth, s.handleConnect)
	g.POST("/remove_connection/:username", auth, s.handleRemoveConnection)
	g.GET("/connections/pending", auth, s.handlePendingConnections)
	g.GET("/count_connections", auth, s.handleCountConnections)
	g.GET("/list_connections", auth, s.handleListConnections)
	g.GET("/random_users", auth, s.handleRandomUsers)
	g.GET("/search_users", auth, s.handleSearchUsers)

	// Peer-facing federation endpoints: no auth, stricter rate limit
	// and a bounded body size
	peerLimiter := NewRateLimiter(rate.Limit(5), 10)
	maxBodySize := MaxBytesMiddleware(1 * 1024 * 1024) // 1MB

	g.POST("/inbox", RateLimitMiddleware(peerLimiter), maxBodySize, s.handleInbox)
	g.POST("/inbox/delete", RateLimitMiddleware(peerLimiter), maxBodySize, s.handleInboxDelete)
	g.POST("/users/:username/outbox", auth, maxBodySize, s.handleActorOutbox)

	// RSS Feed
	g.GET("/feed", func(c *gin.Context) {
		c.Header("Content-Type", "application/xml; charset=utf-8")

		username := c.Query("username")
		rss, err := GetRSS(s.db, s.conf, username)
		if err != nil {
			c.Render(404, render.String{Format: ""})
		} else {
			c.Render(200, render.String{Format: rss})
		}
	})

	return g
}

// Run starts the HTTP server and blocks.
func (s *Server) Run() error {
	log.Printf("Starting %s server on %s:%d", util.Name, s.conf.Conf.Host, s.conf.Conf.HttpPort)
	return s.Router().Run(fmt.Sprintf(":%d", s.conf.Conf.HttpPort))
}
