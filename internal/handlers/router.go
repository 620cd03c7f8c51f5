package handlers

import "github.com/gin-gonic/gin"

type Set struct {
	Admin    *AdminHandler
	Customer *CustomerHandler
	Webhook  *WebhookHandler
}

// Register mounts every route. adminAuth guards the /admin group.
func (s Set) Register(router *gin.Engine, adminAuth gin.HandlerFunc) {
	router.GET("/health", HealthHandler)

	api := router.Group("/api/v1")

	// Webhook (no JWT, shared token)
	api.POST("/webhooks/payments", s.Webhook.HandlePayment)

	customer := api.Group("/orders/:token")
	customer.GET("", s.Customer.GetOrder)
	customer.GET("/images/:image_id/asset", s.Customer.GetAsset)
	customer.POST("/confirm", s.Customer.ConfirmSelection)
	customer.POST("/revision", s.Customer.RequestRevision)
	customer.POST("/consent", s.Customer.CaptureConsent)

	admin := api.Group("/admin/orders/:order_id", adminAuth)
	admin.GET("", s.Admin.GetOrder)
	admin.GET("/images", s.Admin.ListImages)
	admin.GET("/review", s.Admin.ListForReview)
	admin.POST("/images/:image_id/approve", s.Admin.ApproveImage)
	admin.POST("/images/:image_id/reject", s.Admin.RejectImage)
	admin.POST("/generate", s.Admin.Generate)
	admin.POST("/ready", s.Admin.MarkReady)
}
