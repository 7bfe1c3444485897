package server

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
)

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())
	r.Use(cors())

	r.POST("/run", s.handleRun)
	r.OPTIONS("/run", s.handleRunOptions)
	r.GET("/health", s.handleHealth)
	r.GET("/chains", s.handleChains)
	r.GET("/", s.handleIndex)

	if s.opts.StaticDir != "" {
		if info, err := os.Stat(s.opts.StaticDir); err == nil && info.IsDir() {
			r.Static("/static", s.opts.StaticDir)
		} else {
			s.logger.Warn("static directory not found", "dir", s.opts.StaticDir)
		}
	}

	return r
}

// cors allows every origin. Only real preflights are answered here; a bare
// OPTIONS request reaches its route.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			origin = "*"
		}
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Vary", "Origin")

		if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
			headers := c.GetHeader("Access-Control-Request-Headers")
			if headers == "" {
				headers = "*"
			}
			c.Writer.Header().Set("Access-Control-Allow-Headers", headers)
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start))
	}
}

func (s *Server) indexPath() string {
	return filepath.Join(s.opts.StaticDir, "index.html")
}
