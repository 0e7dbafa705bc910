package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"proxygen/internal/apperr"
	"proxygen/internal/engine"
	"proxygen/internal/logger"
	"proxygen/internal/metrics"
	"proxygen/internal/subinfo"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const requestIDHeader = "X-Request-ID"

// ProfileService is what the API needs from the profile service.
type ProfileService interface {
	Generate(ctx context.Context, names []string, override string) (*engine.Document, subinfo.Info, error)
	Update(ctx context.Context, name, url string) (int, error)
}

type Server struct {
	svc     ProfileService
	apiKey  string
	metrics *metrics.Collector
	router  *gin.Engine
}

// NewServer builds the router. m may be nil to disable /metrics.
func NewServer(svc ProfileService, apiKey string, m *metrics.Collector) *Server {
	s := &Server{svc: svc, apiKey: apiKey, metrics: m}

	r := gin.New()
	r.Use(requestID(), s.accessLog(), gin.Recovery())

	r.GET("/health", s.health)
	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	v2 := r.Group("/api/v2")
	{
		v2.GET("/profiles", s.authorize, s.getProfiles)
		v2.GET("/profiles/", s.authorize, s.getProfiles)
		v2.PUT("/profiles/:profile", s.authorize, s.updateProfile)
	}

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Infof("🌐 API listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Log.Info("🛑 Shutting down API server...")
		return srv.Shutdown(shutdownCtx)
	}
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		if s.metrics != nil {
			s.metrics.RecordRequest(c.Request.Method, c.FullPath(), status)
		}
		logger.Log.Debugf("[%s] %s %s -> %d (%v)",
			c.GetString("request_id"), c.Request.Method, c.Request.URL.Path, status, time.Since(start).Round(time.Millisecond))
	}
}

func (s *Server) authorize(c *gin.Context) {
	key := c.Query("api_key")
	if s.apiKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
		logger.Log.Warnf("Unauthorized access attempt from %s", c.ClientIP())
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Unauthorized access"})
		return
	}
	c.Next()
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getProfiles(c *gin.Context) {
	names := c.QueryArray("name")
	if len(names) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "query parameter 'name' is required"})
		return
	}

	doc, info, err := s.svc.Generate(c.Request.Context(), names, c.Query("override"))
	if err != nil {
		s.fail(c, err)
		return
	}

	body, err := yaml.Marshal(doc)
	if err != nil {
		s.fail(c, apperr.Wrap(err, apperr.KindIO, "failed to encode config"))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%s", names[0]))
	if info.Complete() {
		c.Header("subscription-userinfo", info.Header())
	}
	c.Data(http.StatusOK, "text/yaml; charset=utf-8", body)
}

func (s *Server) updateProfile(c *gin.Context) {
	name := c.Param("profile")
	url := c.Query("url")
	if url == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "query parameter 'url' is required"})
		return
	}

	count, err := s.svc.Update(c.Request.Context(), name, url)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": fmt.Sprintf("Profile '%s' updated with %d proxies.", name, count),
	})
}

func (s *Server) fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	detail := "internal error"
	var e *apperr.Error
	if errors.As(err, &e) {
		detail = e.Message
	}
	if status >= http.StatusInternalServerError {
		logger.Log.Errorf("[%s] %v", c.GetString("request_id"), err)
	}
	c.JSON(status, gin.H{"detail": detail})
}
