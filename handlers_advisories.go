package main

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"krishismart/pkg/queries"
	"krishismart/pkg/session"
)

func (s *server) listAdvisoriesHandler(c *gin.Context) {
	r := s.store.Advisories(c.Request.Context())
	if !respondResult(c, r) {
		return
	}
	c.JSON(http.StatusOK, r.Data)
}

// streamAdvisoriesHandler sends the active advisories as server-sent events,
// once when the stream opens and again after every change.
func (s *server) streamAdvisoriesHandler(c *gin.Context) {
	w := s.store.WatchAdvisories()
	defer w.Close()
	ctx := c.Request.Context()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(io.Writer) bool {
		r, ok := w.Next(ctx)
		if !ok {
			return false
		}
		switch r.State {
		case queries.StateReady:
			c.SSEvent("advisories", r.Data)
		case queries.StateError:
			c.SSEvent("error", gin.H{"error": msgOperationFailed})
		}
		return true
	})
}

func (s *server) createAdvisoryHandler(c *gin.Context) {
	var in queries.AdvisoryInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgFillAllFields})
		return
	}
	a, err := s.store.CreateAdvisory(c.Request.Context(), session.FromContext(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (s *server) updateAdvisoryHandler(c *gin.Context) {
	var patch queries.AdvisoryPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a, err := s.store.UpdateAdvisory(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *server) deleteAdvisoryHandler(c *gin.Context) {
	if err := s.store.DeleteAdvisory(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "advisory deleted"})
}
