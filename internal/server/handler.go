package server

import (
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/valpere/devgenie/internal/pipeline"
)

const missingKeyMessage = "Google AI Studio API key is required. Please provide it in the request body or set GOOGLE_API_KEY environment variable."

type runRequest struct {
	Task     string `json:"task" binding:"required"`
	Language string `json:"language"`
	Verbose  bool   `json:"verbose"`
	APIKey   string `json:"api_key"`
	Mode     string `json:"mode"`
	Scoring  *bool  `json:"scoring"`
}

// handleRun runs one chain. A missing or empty task is a 400, and so is a task
// made only of whitespace (pipeline.ErrEmptyTask); such tasks never reach a
// model. A request without api_key falls back to the configured key.
func (s *Server) handleRun(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	if req.Language == "" {
		req.Language = "python"
	}

	apiKey := req.APIKey
	if apiKey == "" {
		apiKey = s.opts.APIKey
		if apiKey != "" {
			s.logger.Debug("using API key from environment")
		}
	}
	if apiKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": missingKeyMessage})
		return
	}

	s.logger.Info("run requested",
		"task", preview(req.Task, 50),
		"mode", req.Mode,
		"language", req.Language,
		"request_key", req.APIKey != "")

	result, err := s.runner.Run(c.Request.Context(), pipeline.Request{
		Task:    req.Task,
		Mode:    req.Mode,
		APIKey:  apiKey,
		Verbose: req.Verbose,
		Scoring: req.Scoring,
	})
	if err != nil {
		if errors.Is(err, pipeline.ErrEmptyTask) {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		s.logger.Error("run failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Error: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, newRunResponse(result, s.opts.FinalOutputLimit, s.opts.StepOutputLimit))
}

func (s *Server) handleRunOptions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "message": "Backend is running"})
}

func (s *Server) handleChains(c *gin.Context) {
	reg := s.runner.Registry()
	if reg == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "no chains configured"})
		return
	}
	c.JSON(http.StatusOK, newChainsResponse(reg))
}

func (s *Server) handleIndex(c *gin.Context) {
	path := s.indexPath()
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "index.html not found"})
		return
	}
	c.File(path)
}

func preview(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
