package http

import (
	"net/http"

	"github.com/dkeye/Roulette/internal/app/orch"
	"github.com/dkeye/Roulette/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
)

type ICEResponse struct {
	ICEServers []webrtc.ICEServer `json:"iceServers"`
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func statsHandler(o *orch.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, o.Stats())
	}
}

func iceHandler(cfg *config.Config) gin.HandlerFunc {
	servers := cfg.WebRTCICEServers()
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, ICEResponse{ICEServers: servers})
	}
}
