package app

import (
	"ethics_gate_backend/internal/config"
	"ethics_gate_backend/internal/middleware"
	"ethics_gate_backend/internal/model"
	"ethics_gate_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	router.GET("/metrics", monitoring.PrometheusHandler())

	public := router.Group("/api")
	{
		public.GET("/health", c.health.Health)
		public.POST("/auth/register", c.auth.Register)
		public.POST("/auth/login", c.auth.Login)
	}

	authed := router.Group("/api")
	authed.Use(middleware.AuthMiddleware(cfg.JWT.Secret), middleware.ActivityMiddleware(repos.user))
	{
		authed.GET("/auth/profile", c.auth.Profile)

		gate := authed.Group("/gate")
		{
			gate.GET("/check", c.gate.Check)
			gate.GET("/status", c.gate.Status)
			gate.GET("/history", c.gate.History)
			gate.POST("/assessment/start", c.gate.StartAssessment)
			gate.GET("/assessment/:sessionId/question", c.gate.NextQuestion)
			gate.POST("/assessment/:sessionId/answer", c.gate.SubmitAnswer)
			gate.POST("/retry", c.gate.RequestRetry)
		}

		manager := authed.Group("")
		manager.Use(middleware.RoleMiddleware(model.Manager))
		{
			manager.POST("/gate/bypass", c.gate.RequestBypass)
			manager.GET("/audit", c.audit.Query)
			manager.GET("/audit/:userId/chain", c.audit.Chain)
			manager.GET("/audit/:userId/verify", c.audit.Verify)
		}

		admin := authed.Group("")
		admin.Use(middleware.RoleMiddleware(model.Admin))
		{
			admin.GET("/config", c.orgConfig.Get)
			admin.PUT("/config", c.orgConfig.Put)
		}
	}
}
