package feed

import (
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cloudx-io/gridmatch/marketapi"
)

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(s.requestLogger())
	router.Use(recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics))
	}

	api := router.Group("/api/v1")
	{
		api.GET("/nodes", s.listNodes)
		api.GET("/nodes/:id/status", s.nodeStatus)
		api.POST("/nodes/:id/measurement", s.postMeasurement)
		api.GET("/events", gin.WrapH(s.hub))
	}
	return router
}

func (s *Server) listNodes(c *gin.Context) {
	ids := make([]string, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	statuses := make([]marketapi.NodeStatus, 0, len(ids))
	for _, id := range ids {
		statuses = append(statuses, marketapi.NewNodeStatus(id, s.nodes[id]))
	}
	c.JSON(http.StatusOK, gin.H{"nodes": statuses})
}

func (s *Server) nodeStatus(c *gin.Context) {
	id := c.Param("id")
	node, ok := s.nodes[id]
	if !ok {
		respondError(c, http.StatusNotFound, "UNKNOWN_NODE", "no peak shaving node "+id)
		return
	}
	c.JSON(http.StatusOK, marketapi.NewNodeStatus(id, node))
}

func (s *Server) postMeasurement(c *gin.Context) {
	var req marketapi.MeasurementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	ack, err := s.ApplyMeasurement(marketapi.MeasurementMessage{
		NodeID:    c.Param("id"),
		Flow:      *req.Flow,
		Timestamp: time.Now().UnixMilli(),
	})
	switch {
	case errors.Is(err, ErrUnknownNode):
		respondError(c, http.StatusNotFound, "UNKNOWN_NODE", err.Error())
	case errors.Is(err, marketapi.ErrInvalidMeasurement):
		respondError(c, http.StatusBadRequest, "INVALID_MEASUREMENT", err.Error())
	case err != nil:
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	default:
		c.JSON(http.StatusOK, ack)
	}
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// recovery turns panics into a 500 response.
func recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
		c.Abort()
	})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("http request")
	}
}
