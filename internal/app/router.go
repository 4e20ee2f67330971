// internal/app/router.go
package app

import (
	"net/http"

	boostHandler "boost-service/internal/handlers/boost"
	promotionHandler "boost-service/internal/handlers/promotion"
	wsHandler "boost-service/internal/handlers/websocket"
	"boost-service/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	BoostHandler     *boostHandler.BoostHandler
	PromotionHandler *promotionHandler.PromotionHandler
	WSHandler        *wsHandler.WebSocketHandler
	AuthMiddleware   *middleware.AuthMiddleware
	PriceLimiter     *middleware.RateLimiter
	MetricsHandler   http.Handler
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== Metrics ====================
	r.GET("/metrics", gin.WrapH(h.MetricsHandler))

	// ==================== WebSocket ====================
	r.GET("/ws", h.WSHandler.HandleConnection)

	// ==================== Boosts ====================
	boosts := api.Group("/boosts")
	boosts.Use(h.AuthMiddleware.Auth())
	{
		boosts.GET("/pricing", h.BoostHandler.ListPricing)
		boosts.GET("/pricing/calculate", h.PriceLimiter.Middleware(), h.BoostHandler.CalculatePrice)
		boosts.GET("/credits", h.BoostHandler.GetCredits)
		boosts.GET("/wallet", h.BoostHandler.GetWallet)
		boosts.GET("/providers", h.BoostHandler.ListProviders)
		boosts.GET("/mine", h.BoostHandler.ListMine)
		boosts.POST("/:id/reboost", h.PromotionHandler.Reboost)
	}

	// ==================== Promotions ====================
	promotions := api.Group("/promotions")
	promotions.Use(h.AuthMiddleware.Auth())
	{
		promotions.POST("", h.PromotionHandler.StartPromotion)
		promotions.GET("", h.PromotionHandler.ListPromotions)
		promotions.GET("/attempts", h.PromotionHandler.ListAttempts)

		promotions.GET("/:id", h.PromotionHandler.GetPromotion)
		promotions.PUT("/:id/configure", h.PromotionHandler.Configure)
		promotions.POST("/:id/price", h.PriceLimiter.Middleware(), h.PromotionHandler.CalculatePrice)
		promotions.GET("/:id/channels", h.PromotionHandler.ListChannels)
		promotions.PUT("/:id/channel", h.PromotionHandler.SelectChannel)
		promotions.POST("/:id/submit", h.PromotionHandler.Submit)
		promotions.POST("/:id/cancel", h.PromotionHandler.Cancel)
		promotions.GET("/:id/return", h.PromotionHandler.HandleReturn)
	}

	// ==================== Admin ====================
	admin := api.Group("/admin")
	admin.Use(h.AuthMiddleware.AdminOnly()...)
	{
		admin.GET("/ws/stats", h.WSHandler.GetStats)
	}

	logger.Info("routes registered", zap.Int("count", len(r.Routes())))
}
