package handler

import (
	"log/slog"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/rl1809/apartment-hub/internal/auth"
)

// NewRouter registers HTTP routes and returns the engine with middleware.
func NewRouter(h *HTTPHandler, tokens *auth.Tokens, log *slog.Logger, allowOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), withRequestID(), withLogging(log))
	r.Use(cors.New(corsConfig(allowOrigins)))

	r.GET("/health", h.HealthCheck)

	api := r.Group("/api", requireResident(tokens))
	{
		api.GET("/products", h.ListProducts)
		api.GET("/products/:id", h.GetProduct)
		api.POST("/products", h.CreateProduct)
		api.PATCH("/products/:id", h.UpdateProduct)

		api.GET("/cart", h.GetCart)
		api.POST("/cart/lines", h.AddCartLine)
		api.PATCH("/cart/lines", h.SetCartLineQuantity)
		api.DELETE("/cart/lines/:lineID", h.RemoveCartLine)

		api.POST("/orders", h.CreateOrder)
		api.GET("/orders", h.ListOrders)
		api.GET("/orders/:id", h.GetOrder)
		api.POST("/orders/:id/confirm", h.ConfirmOrder)
		api.POST("/orders/:id/advance", h.AdvanceOrder)

		api.GET("/bills", h.ListBills)
		api.POST("/bills", h.IssueBill)
		api.GET("/bills/:id", h.GetBill)
		api.POST("/bills/:id/pay", h.PayBill)
	}
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", headerRequestID, headerPaymentSignature},
		ExposeHeaders: []string{headerRequestID},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
