package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pmkv/internal/errs"
)

type PutRequest struct {
	Value *string `json:"value" binding:"required"`
}

type KVResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrBadArgument):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrCapacityExceeded):
		return http.StatusInsufficientStorage
	case errors.Is(err, errs.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealthCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func (s *Server) handleStats() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, s.store.Stats())
	}
}

func (s *Server) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")
		v, err := s.store.Get(key)
		if err != nil {
			c.JSON(statusOf(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, KVResponse{Key: key, Value: string(v)})
	}
}

func (s *Server) handlePut() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		key := c.Param("key")
		if err := s.store.Put(key, []byte(*req.Value)); err != nil {
			c.JSON(statusOf(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, KVResponse{Key: key, Value: *req.Value})
	}
}
