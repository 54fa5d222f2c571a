package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"krishismart/pkg/advisor"
	"krishismart/pkg/photo"
	"krishismart/pkg/queries"
	"krishismart/pkg/remote"
	"krishismart/pkg/session"
)

const (
	msgFillAllFields     = "Please fill in all fields"
	msgInvalidEmail      = "Please enter a valid email address"
	msgShortPassword     = "Password must be at least 6 characters"
	msgNameRequired      = "Name is required"
	msgAlreadyRegistered = "This email is already registered. Please sign in."
	msgInvalidQuantity   = "Please enter a valid quantity"
	msgOperationFailed   = "operation failed, try again"
)

// respondError maps service errors onto HTTP responses. Anything unexpected
// is logged and reported as a generic failure.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, queries.ErrNotAuthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
	case errors.Is(err, remote.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, remote.ErrEmptyPatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
	case errors.Is(err, remote.ErrObjectExists):
		c.JSON(http.StatusConflict, gin.H{"error": "file already uploaded, try again"})
	case errors.Is(err, queries.ErrInvalidInput), errors.Is(err, advisor.ErrMissingField):
		c.JSON(http.StatusBadRequest, gin.H{"error": msgFillAllFields})
	case errors.Is(err, advisor.ErrInvalidQuantity):
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidQuantity})
	case errors.Is(err, photo.ErrNotImage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please select an image file"})
	case errors.Is(err, photo.ErrTooLarge):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Image size should be less than 10MB"})
	case errors.Is(err, photo.ErrDecode):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Image could not be read"})
	case errors.Is(err, context.Canceled):
		c.Status(499)
	default:
		log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgOperationFailed})
	}
}

// authError maps session errors; ok is false for errors it does not know.
func authError(err error) (status int, msg string, ok bool) {
	switch {
	case errors.Is(err, session.ErrInvalidEmail):
		return http.StatusBadRequest, msgInvalidEmail, true
	case errors.Is(err, session.ErrShortPassword):
		return http.StatusBadRequest, msgShortPassword, true
	case errors.Is(err, session.ErrMissingName):
		return http.StatusBadRequest, msgNameRequired, true
	case errors.Is(err, session.ErrAlreadyRegistered):
		return http.StatusConflict, msgAlreadyRegistered, true
	case errors.Is(err, session.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid email or password", true
	case errors.Is(err, session.ErrInvalidToken):
		return http.StatusUnauthorized, "invalid or expired refresh token", true
	}
	return 0, "", false
}

func respondAuthError(c *gin.Context, err error) {
	if status, msg, ok := authError(err); ok {
		c.JSON(status, gin.H{"error": msg})
		return
	}
	respondError(c, err)
}

// respondResult writes a read result; a suppressed read (no user) is a 401.
func respondResult[T any](c *gin.Context, r queries.Result[T]) bool {
	switch r.State {
	case queries.StateNotReady:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated", "state": r.State})
		return false
	case queries.StateError:
		respondError(c, r.Err)
		return false
	}
	return true
}

func (s *server) healthHandler(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		log.WithError(err).Warn("health check: database unreachable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "uptime_seconds": int64(time.Since(s.started).Seconds())})
}

func catalogHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"crop_types":    advisor.CropTypes,
		"residue_types": advisor.ResidueTypes,
		"reuse_methods": advisor.ReuseMethods,
	})
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (s *server) signUpHandler(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess := session.FromContext(c)
	if err := sess.SignUp(c.Request.Context(), req.Email, req.Password, req.Name); err != nil {
		respondAuthError(c, err)
		return
	}
	tok := sess.Tokens()
	c.JSON(http.StatusCreated, gin.H{
		"message":       "account created",
		"user":          sess.CurrentUser(),
		"token":         tok.AccessToken,
		"refresh_token": tok.RefreshToken,
		"expires_at":    tok.ExpiresAt,
	})
}

func (s *server) signInHandler(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess := session.FromContext(c)
	if err := sess.SignIn(c.Request.Context(), req.Email, req.Password); err != nil {
		respondAuthError(c, err)
		return
	}
	tok := sess.Tokens()
	c.JSON(http.StatusOK, gin.H{
		"message":       "login successful",
		"user":          sess.CurrentUser(),
		"token":         tok.AccessToken,
		"refresh_token": tok.RefreshToken,
		"expires_at":    tok.ExpiresAt,
	})
}

// refreshHandler exchanges a refresh token for a new access token and rotates the refresh token
func (s *server) refreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tok, user, err := s.sessions.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":          user,
		"token":         tok.AccessToken,
		"refresh_token": tok.RefreshToken,
		"expires_at":    tok.ExpiresAt,
	})
}

func (s *server) signOutHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	// the body is optional
	_ = c.ShouldBindJSON(&req)
	if err := session.FromContext(c).SignOut(c.Request.Context(), req.RefreshToken); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "signed out"})
}

func (s *server) meHandler(c *gin.Context) {
	sess := session.FromContext(c)
	prof := s.store.Profile(c.Request.Context(), sess)
	if !respondResult(c, prof) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": sess.CurrentUser(), "profile": prof.Data})
}

func (s *server) getProfileHandler(c *gin.Context) {
	r := s.store.Profile(c.Request.Context(), session.FromContext(c))
	if !respondResult(c, r) {
		return
	}
	c.JSON(http.StatusOK, r.Data)
}

func (s *server) updateProfileHandler(c *gin.Context) {
	var patch queries.ProfilePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if patch.PrimaryCrops != nil {
		crops := cleanList(*patch.PrimaryCrops)
		patch.PrimaryCrops = &crops
	}
	p, err := s.store.UpdateProfile(c.Request.Context(), session.FromContext(c), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
