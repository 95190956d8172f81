package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"raicompanion/internal/analysis"
	"raicompanion/internal/content"
	"raicompanion/internal/domain"
	"raicompanion/internal/integrations/llm"
)

const statsWindow = 7 * 24 * time.Hour

type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (analysis.Result, error)
	Options() analysis.Options
	AvailableModels() []string
	Stats(window time.Duration) (domain.AnalysisStats, error)
	Library() *content.Library
}

type ClientStats interface {
	Stats() llm.Stats
}

type RouterConfig struct {
	Analyzer     Analyzer
	LLM          ClientStats
	Metrics      http.Handler
	AllowOrigins []string
	// MaxBodyBytes caps POST bodies; zero means unlimited.
	MaxBodyBytes int64
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLog())

	router.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.AllowOrigins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", "X-Requested-With"},
		ExposeHeaders: []string{"X-Request-Id"},
		MaxAge:        12 * time.Hour,
	}))

	h := &handlers{cfg: cfg}
	router.GET("/health", h.health)
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	api := router.Group("/api")
	{
		api.POST("/analyze", h.analyze)
		api.GET("/config", h.config)
		api.GET("/stats", h.stats)
		api.GET("/library", h.library)
		api.GET("/schema", h.schema)
	}
	return router
}

func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Printf("http request method=%s path=%s status=%d latency=%s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("http server listening addr=%s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		log.Printf("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
