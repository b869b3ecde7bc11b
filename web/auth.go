package web

import (
	"errors"
	"net/http"

	"github.com/arenh/gomphos/domain"
	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type verifyOtpRequest struct {
	Email string `json:"email"`
	Otp   string `json:"otp"`
}

type resetPasswordRequest struct {
	ResetToken  string `json:"reset_token"`
	NewPassword string `json:"new_password"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if _, err := s.accounts.Register(req.Username, req.Email, req.Password); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "user created"})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	acc, err := s.accounts.Authenticate(req.Username, req.Password)
	if err != nil {
		abortWithError(c, err)
		return
	}
	token, err := s.accounts.IssueToken(acc)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "bearer"})
}

func (s *Server) handleForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email required"})
		return
	}

	if err := s.accounts.InitiateReset(req.Email); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "reset code sent if the email is registered"})
}

func (s *Server) handleVerifyOtp(c *gin.Context) {
	var req verifyOtpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	token, err := s.accounts.VerifyOtp(req.Email, req.Otp)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "code verified", "reset_token": token})
}

func (s *Server) handleResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := s.accounts.ResetPassword(req.ResetToken, req.NewPassword); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password updated"})
}

func (s *Server) handleGetCurrentUser(c *gin.Context) {
	acc := currentAccount(c)
	c.JSON(http.StatusOK, gin.H{
		"id":       acc.Id.String(),
		"username": acc.Username,
		"email":    acc.Email,
	})
}

func (s *Server) handleGetUser(c *gin.Context) {
	err, acc := s.db.ReadAccByUsername(c.Param("username"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			abortWithError(c, domain.ErrNotFound)
			return
		}
		abortWithError(c, err)
		return
	}

	err, posts := s.db.ReadPostsByUserId(acc.Id)
	if err != nil {
		abortWithError(c, err)
		return
	}

	rendered := make([]gin.H, 0, len(*posts))
	for _, post := range *posts {
		rendered = append(rendered, gin.H{
			"id":         post.Id,
			"content":    post.Content,
			"created_at": post.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         acc.Id.String(),
		"username":   acc.Username,
		"email":      acc.Email,
		"post_count": len(rendered),
		"posts":      rendered,
	})
}
