package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docrag-platform/internal/ai"
	"docrag-platform/internal/telemetry"
	"docrag-platform/models"
	"docrag-platform/services"
	"docrag-platform/utils"
)

// SetupChatRoutes wires the chat surface: message send, session lifecycle,
// and the provider health probe.
func SetupChatRoutes(router *gin.Engine, pipeline *services.RAGPipeline, sessions services.SessionStore, orchestrator *ai.Orchestrator, metrics *telemetry.Metrics) {
	chat := router.Group("/chat")

	chat.POST("/send", func(c *gin.Context) {
		var req models.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		resp, err := pipeline.Chat(c.Request.Context(), req)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrEmptyMessage):
				utils.RespondWithBadRequest(c, "Message is empty", nil)
			case errors.Is(err, services.ErrMessageTooLong):
				utils.RespondWithBadRequest(c, "Message exceeds maximum length", nil)
			default:
				utils.RespondWithInternalError(c, "Failed to process message", nil)
			}
			if metrics != nil {
				metrics.RecordChatRequest("error", 0)
			}
			return
		}

		if metrics != nil {
			metrics.RecordChatRequest("ok", float64(resp.ProcessingTimeMs)/1000.0)
			metrics.RecordTokensUsed(int64(resp.TokensUsed), resp.Provider, resp.ModelUsed)
		}
		c.JSON(http.StatusOK, resp)
	})

	chat.POST("/sessions", func(c *gin.Context) {
		session, err := sessions.Create(c.Request.Context())
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to create session", nil)
			return
		}
		c.JSON(http.StatusCreated, session)
	})

	chat.GET("/sessions/:id", func(c *gin.Context) {
		session, err := sessions.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, services.ErrSessionNotFound) {
				utils.RespondWithNotFound(c, "Session not found or expired")
				return
			}
			utils.RespondWithInternalError(c, "Failed to load session", nil)
			return
		}
		c.JSON(http.StatusOK, session)
	})

	chat.DELETE("/sessions/:id", func(c *gin.Context) {
		if err := sessions.Delete(c.Request.Context(), c.Param("id")); err != nil {
			utils.RespondWithInternalError(c, "Failed to delete session", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	})

	// Liveness probes against each provider, kept off the chat path.
	router.GET("/health/providers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"available": orchestrator.Available(),
			"status":    orchestrator.HealthCheck(c.Request.Context()),
		})
	})
}
