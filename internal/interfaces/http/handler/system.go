package handler

import (
	"net/http"
	"runtime"
	"time"

	"github.com/billflow/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// Version and BuildTime identify the running binary. Release builds
// override them with -ldflags "-X .../handler.Version=... ".
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// SystemHandler serves the unauthenticated service identity endpoints.
type SystemHandler struct {
	BaseHandler
	env       string
	startTime time.Time
}

// NewSystemHandler creates a SystemHandler reporting the given deploy
// environment.
func NewSystemHandler(env string) *SystemHandler {
	return &SystemHandler{
		env:       env,
		startTime: time.Now(),
	}
}

// SystemInfoResponse represents the system information response
// @name HandlerSystemInfoResponse
type SystemInfoResponse struct {
	Name        string `json:"name" example:"billflow-backend"`
	Version     string `json:"version" example:"1.4.0"`
	BuildTime   string `json:"build_time" example:"2026-08-12T09:41:00Z"`
	Environment string `json:"environment" example:"production"`
	GoVersion   string `json:"go_version" example:"go1.25.5"`
	Uptime      string `json:"uptime" example:"1h30m45s"`
}

// GetSystemInfo godoc
// @ID           getSystemSystemInfo
// @Summary      Get system information
// @Description  Returns service identity, build info and uptime
// @Tags         system
// @Produce      json
// @Success      200 {object} APIResponse[SystemInfoResponse]
// @Failure      500 {object} ErrorResponse
// @Router       /system/info [get]
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	h.Success(c, SystemInfoResponse{
		Name:        "billflow-backend",
		Version:     Version,
		BuildTime:   BuildTime,
		Environment: h.env,
		GoVersion:   runtime.Version(),
		Uptime:      time.Since(h.startTime).Round(time.Second).String(),
	})
}

// PingResponse represents the ping response
// @name HandlerPingResponse
type PingResponse struct {
	Message   string `json:"message" example:"pong"`
	Timestamp string `json:"timestamp" example:"2026-01-23T12:00:00Z"`
}

// Ping godoc
// @ID           pingSystem
// @Summary      Ping the API
// @Description  Liveness probe; answers without touching the database
// @Tags         system
// @Produce      json
// @Success      200 {object} APIResponse[PingResponse]
// @Router       /system/ping [get]
func (h *SystemHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(PingResponse{
		Message:   "pong",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}))
}
