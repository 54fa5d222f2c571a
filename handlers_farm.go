package main

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"krishismart/pkg/advisor"
	"krishismart/pkg/photo"
	"krishismart/pkg/session"
)

const recentLimit = 3

func (s *server) listAnalysesHandler(c *gin.Context) {
	r := s.store.CropAnalyses(c.Request.Context(), session.FromContext(c))
	if !respondResult(c, r) {
		return
	}
	c.JSON(http.StatusOK, r.Data)
}

// createAnalysisHandler takes a multipart "image", stores it and returns the diagnosis.
func (s *server) createAnalysisHandler(c *gin.Context) {
	fh, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}
	if err := photo.Validate(fh); err != nil {
		respondError(c, err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read image"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, photo.MaxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read image"})
		return
	}
	out, err := s.pipeline.Analyze(c.Request.Context(), session.FromContext(c), fh.Filename, data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (s *server) deleteAnalysisHandler(c *gin.Context) {
	if err := s.store.DeleteCropAnalysis(c.Request.Context(), session.FromContext(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "analysis deleted"})
}

func (s *server) listResidueHandler(c *gin.Context) {
	r := s.store.ResidueRecommendations(c.Request.Context(), session.FromContext(c))
	if !respondResult(c, r) {
		return
	}
	c.JSON(http.StatusOK, r.Data)
}

type residueRequest struct {
	CropType    string `json:"crop_type"`
	ResidueType string `json:"residue_type"`
	// Quantity may be sent as a JSON string or number.
	Quantity any `json:"quantity"`
}

// quantityText renders the raw quantity field for ParseQuantity.
func quantityText(v any) string {
	switch q := v.(type) {
	case string:
		return q
	case float64:
		return strconv.FormatFloat(q, 'f', -1, 64)
	}
	return ""
}

func (s *server) createResidueHandler(c *gin.Context) {
	var req residueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	crop, residue := strings.TrimSpace(req.CropType), strings.TrimSpace(req.ResidueType)
	qtext := strings.TrimSpace(quantityText(req.Quantity))
	if crop == "" || residue == "" || qtext == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgFillAllFields})
		return
	}
	qty, err := advisor.ParseQuantity(qtext)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidQuantity})
		return
	}
	ctx := c.Request.Context()
	rec, err := s.recommender.Recommend(ctx, crop, residue, qty)
	if err != nil {
		respondError(c, err)
		return
	}
	row, err := s.store.CreateResidueRecommendation(ctx, session.FromContext(c), rec.Record(crop, residue, qty))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, row)
}

func (s *server) deleteResidueHandler(c *gin.Context) {
	if err := s.store.DeleteResidueRecommendation(c.Request.Context(), session.FromContext(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "recommendation deleted"})
}

func (s *server) historyHandler(c *gin.Context) {
	ctx, sess := c.Request.Context(), session.FromContext(c)
	analyses := s.store.CropAnalyses(ctx, sess)
	if !respondResult(c, analyses) {
		return
	}
	recs := s.store.ResidueRecommendations(ctx, sess)
	if !respondResult(c, recs) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"analyses": analyses.Data, "recommendations": recs.Data})
}

// dashboardHandler summarises the user's activity alongside the latest advisories.
func (s *server) dashboardHandler(c *gin.Context) {
	ctx, sess := c.Request.Context(), session.FromContext(c)
	analyses := s.store.CropAnalyses(ctx, sess)
	if !respondResult(c, analyses) {
		return
	}
	recs := s.store.ResidueRecommendations(ctx, sess)
	if !respondResult(c, recs) {
		return
	}
	advisories := s.store.Advisories(ctx)
	if !respondResult(c, advisories) {
		return
	}
	diseased := 0
	for _, a := range analyses.Data {
		if !a.Healthy() {
			diseased++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"total_analyses":        len(analyses.Data),
		"total_recommendations": len(recs.Data),
		"diseases_detected":     diseased,
		"recent_analyses":       firstN(analyses.Data, recentLimit),
		"advisories":            firstN(advisories.Data, recentLimit),
	})
}

func firstN[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}

// cleanList trims entries and drops empty ones, keeping order.
func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

