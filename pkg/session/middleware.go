package session

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const contextKey = "session"

// Middleware attaches a Session to every request. A valid Bearer token signs
// the session in; a request without one gets an empty session, and a request
// with a bad one is rejected.
func Middleware(p *Provider, inv Invalidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := New(p, inv)
		if h := c.GetHeader("Authorization"); h != "" {
			if len(h) < 8 || !strings.EqualFold(h[:7], "Bearer ") {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
				return
			}
			if err := s.Authenticate(h[7:]); err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
		}
		c.Set(contextKey, s)
		c.Next()
	}
}

// FromContext returns the request's Session. Without Middleware it returns an
// empty session that can never sign in.
func FromContext(c *gin.Context) *Session {
	if v, ok := c.Get(contextKey); ok {
		if s, ok := v.(*Session); ok {
			return s
		}
	}
	return &Session{}
}

// RequireUser rejects requests whose session has no user.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if FromContext(c).CurrentUser() == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects requests from users without the admin flag.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		u := FromContext(c).CurrentUser()
		if u == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			return
		}
		if !u.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}
