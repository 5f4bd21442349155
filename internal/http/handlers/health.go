package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	dbPing    func() error
	redisPing func() error
}

func NewHealthHandler(dbPing, redisPing func() error) *HealthHandler {
	return &HealthHandler{
		dbPing:    dbPing,
		redisPing: redisPing,
	}
}

func (h *HealthHandler) Healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HealthHandler) Readyz(ctx *gin.Context) {
	deps := gin.H{}
	ready := true

	if h.dbPing != nil {
		if err := h.dbPing(); err != nil {
			deps["db"] = "down"
			ready = false
		} else {
			deps["db"] = "up"
		}
	}

	if h.redisPing != nil {
		if err := h.redisPing(); err != nil {
			deps["redis"] = "down"
			ready = false
		} else {
			deps["redis"] = "up"
		}
	}

	if !ready {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "deps": deps})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "ready", "deps": deps})
}
