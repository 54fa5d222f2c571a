package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"krishismart/models"
	"krishismart/pkg/advisor"
	"krishismart/pkg/analysis"
	"krishismart/pkg/inbox"
	"krishismart/pkg/querycache"
	"krishismart/pkg/queries"
	"krishismart/pkg/remote"
	"krishismart/pkg/session"
)

type server struct {
	cfg         Config
	db          *gorm.DB
	sessions    *session.Provider
	cache       *querycache.Cache
	store       *queries.Store
	blobs       *remote.LocalBlobStore
	pipeline    *analysis.Pipeline
	recommender advisor.Recommender
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	started     time.Time
}

func newServer(cfg Config, db *gorm.DB, opts ...session.Option) *server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	cache := querycache.New(
		querycache.WithMetrics(querycache.NewMetrics(reg)),
		querycache.WithStaleTime(cfg.QueryStaleTime),
		querycache.WithIdleTTL(cfg.QueryIdleTTL),
	)
	store := queries.NewStore(remote.NewGormClient(db), cache)
	blobs := remote.NewLocalBlobStore(db, cfg.UploadBase, cfg.PublicBaseURL)
	s := &server{
		cfg:         cfg,
		db:          db,
		sessions:    session.NewProvider(db, cfg.JWTSecret, opts...),
		cache:       cache,
		store:       store,
		blobs:       blobs,
		pipeline:    analysis.New(store, blobs, advisor.NewClassifier(cfg.Advisor), reg),
		recommender: advisor.NewRecommender(cfg.Advisor),
		registry:    reg,
		started:     time.Now(),
	}
	s.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "krishismart",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})
	s.latency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "krishismart",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
	reg.MustRegister(s.requests, s.latency)
	return s
}

// inboxWatcher returns a watcher that stores analyses for the account email
// through the server's own store, so API readers see them on their next read.
func (s *server) inboxWatcher(ctx context.Context, dir, email string, workers int) (*inbox.Watcher, error) {
	if strings.TrimSpace(email) == "" {
		return nil, errors.New("inbox account email is required")
	}
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", session.NormalizeEmail(email)).First(&user).Error; err != nil {
		return nil, fmt.Errorf("inbox account %q: %w", email, err)
	}
	return &inbox.Watcher{
		Dir:      dir,
		Workers:  workers,
		User:     queries.FixedUser(user.ID),
		Analyzer: s.pipeline,
	}, nil
}

// Close stops background cache refreshes.
func (s *server) Close() {
	s.cache.Close()
}

func (s *server) setupRoutes(r *gin.Engine) {
	r.Use(s.metricsMiddleware(), session.Middleware(s.sessions, s.cache))

	r.GET("/health", s.healthHandler)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	r.GET("/catalog", catalogHandler)
	r.Static("/public", s.cfg.UploadBase)

	r.POST("/auth/signup", s.signUpHandler)
	r.POST("/auth/signin", s.signInHandler)
	r.POST("/auth/refresh", s.refreshHandler)

	r.GET("/advisories", s.listAdvisoriesHandler)
	r.GET("/advisories/stream", s.streamAdvisoriesHandler)
	admin := r.Group("/advisories", session.RequireAdmin())
	admin.POST("", s.createAdvisoryHandler)
	admin.PATCH("/:id", s.updateAdvisoryHandler)
	admin.DELETE("/:id", s.deleteAdvisoryHandler)

	// readable without a user; they answer 401 with state not_ready
	r.GET("/analyses", s.listAnalysesHandler)
	r.GET("/residue", s.listResidueHandler)

	authGroup := r.Group("", session.RequireUser())
	authGroup.POST("/auth/signout", s.signOutHandler)
	authGroup.GET("/me", s.meHandler)
	authGroup.POST("/analyses", s.createAnalysisHandler)
	authGroup.DELETE("/analyses/:id", s.deleteAnalysisHandler)
	authGroup.POST("/residue", s.createResidueHandler)
	authGroup.DELETE("/residue/:id", s.deleteResidueHandler)
	authGroup.GET("/history", s.historyHandler)
	authGroup.GET("/dashboard", s.dashboardHandler)
	authGroup.GET("/profile", s.getProfileHandler)
	authGroup.PATCH("/profile", s.updateProfileHandler)
}

func (s *server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		s.latency.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
