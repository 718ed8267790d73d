package dashboard

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/council/internal/archive"
	"github.com/zulandar/council/internal/council"
	"go.uber.org/zap"
)

// registerRoutes sets up all API routes on the Gin router.
func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/healthz", s.handleHealth)

	api := router.Group("/api")
	api.POST("/sessions", s.handleCreate)
	api.GET("/sessions", s.handleList)

	sess := api.Group("/sessions/:id", s.loadSession)
	sess.GET("", s.handleGet)
	sess.DELETE("", s.handleDelete)
	sess.POST("/messages", s.handleMessage)
	sess.POST("/reset", s.handleReset)
	sess.PUT("/profile", s.handleProfile)
	sess.GET("/events", s.handleEvents)

	if s.archive != nil {
		api.GET("/archive", s.handleArchiveList)
		api.GET("/archive/:id", s.handleArchiveShow)
	}
}

type createRequest struct {
	Profile string `json:"profile"`
}

type createResponse struct {
	ID      string        `json:"id"`
	Stage   council.Stage `json:"stage"`
	Profile string        `json:"profile"`
}

type messageRequest struct {
	Text string `json:"text"`
}

type profileRequest struct {
	Profile string `json:"profile"`
}

// ctrlKey is the gin context key holding the loaded controller.
const ctrlKey = "council.controller"

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": s.registry.Len()})
}

func (s *Server) handleCreate(c *gin.Context) {
	var req createRequest
	// An empty body is allowed; the configured profile applies.
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortError(c, http.StatusBadRequest, err)
			return
		}
	}

	id := s.newID()
	ctrl, _, err := s.registry.GetOrCreate(id)
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	if req.Profile != "" {
		if err := ctrl.SetProfile(req.Profile); err != nil {
			s.registry.Remove(id)
			abortError(c, http.StatusBadRequest, err)
			return
		}
	}
	s.startRecording(id, ctrl)

	c.JSON(http.StatusCreated, createResponse{ID: id, Stage: ctrl.Stage(), Profile: ctrl.Profile()})
}

func (s *Server) handleList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.registry.List()})
}

// loadSession resolves :id to a controller, answering 404 when unknown.
func (s *Server) loadSession(c *gin.Context) {
	ctrl, ok := s.registry.Get(c.Param("id"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.Set(ctrlKey, ctrl)
	c.Next()
}

func controller(c *gin.Context) *council.Controller {
	return c.MustGet(ctrlKey).(*council.Controller)
}

func (s *Server) handleGet(c *gin.Context) {
	c.JSON(http.StatusOK, controller(c).Snapshot())
}

func (s *Server) handleDelete(c *gin.Context) {
	id := c.Param("id")
	s.registry.Remove(id)
	s.stopRecording(id)
	c.Status(http.StatusNoContent)
}

// handleMessage submits user text and runs the automatic stages until the
// session waits for input again. The drive outlives a client disconnect so
// a session is never left stranded mid-council.
func (s *Server) handleMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	ctrl := controller(c)
	ctx := context.WithoutCancel(c.Request.Context())

	if err := ctrl.Submit(ctx, req.Text); err != nil {
		switch {
		case errors.Is(err, council.ErrEmptyInput):
			abortError(c, http.StatusBadRequest, err)
		case errors.Is(err, council.ErrBusy):
			abortError(c, http.StatusConflict, err)
		default:
			abortError(c, http.StatusInternalServerError, err)
		}
		return
	}
	if err := ctrl.Drive(ctx); err != nil {
		s.logger.Error("drive failed", zap.String("session", c.Param("id")), zap.Error(err))
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, ctrl.Snapshot())
}

func (s *Server) handleReset(c *gin.Context) {
	ctrl := controller(c)
	ctrl.Reset()
	c.JSON(http.StatusOK, ctrl.Snapshot())
}

func (s *Server) handleProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	ctrl := controller(c)
	if err := ctrl.SetProfile(req.Profile); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": ctrl.Profile()})
}

func (s *Server) handleArchiveList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	rows, err := s.archive.List(c.Request.Context(), archive.ListOpts{
		Surface: c.Query("surface"),
		Limit:   limit,
	})
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": rows})
}

func (s *Server) handleArchiveShow(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid archive id"})
		return
	}
	sess, err := s.archive.Transcript(c.Request.Context(), uint(id))
	if errors.Is(err, archive.ErrNotFound) {
		abortError(c, http.StatusNotFound, err)
		return
	}
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func abortError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
