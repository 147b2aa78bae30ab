package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/beereshbc/influencaa-backend/internal/config"
	"github.com/beereshbc/influencaa-backend/internal/http/handlers"
	"github.com/beereshbc/influencaa-backend/internal/http/middleware"
	"github.com/beereshbc/influencaa-backend/internal/models"
)

// authRateLimit ограничивает попытки входа и регистрации с одного IP.
const authRateLimit = 5

// Handlers собирает HTTP хэндлеры приложения. Seed подключается только вне production.
type Handlers struct {
	Auth          *handlers.AuthHandler
	Orders        *handlers.OrderHandler
	Payments      *handlers.PaymentHandler
	Webhooks      *handlers.WebhookHandler
	Catalog       *handlers.CatalogHandler
	Notifications *handlers.NotificationHandler
	Health        *handlers.HealthHandler
	WS            *handlers.WSHandler
	Seed          *handlers.SeedHandler
}

func SetupRouter(
	cfg *config.Config,
	h Handlers,
	auth middleware.Authenticator,
	gatherer prometheus.Gatherer,
) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", h.Health.Health)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")

	if h.Seed != nil && !cfg.IsProduction() {
		api.POST("/seed", h.Seed.Seed)
	}

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware(authRateLimit, cfg.RateLimitPeriod))
	{
		authGroup.POST("/register", h.Auth.Register)
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/refresh", h.Auth.Refresh)
		authGroup.POST("/logout", h.Auth.Logout)
	}

	// провайдер подписывает тело, bearer токена нет
	api.POST("/webhooks/razorpay", h.Webhooks.Razorpay)
	api.GET("/sellers/:id/packages", middleware.UUIDValidator("id"), h.Catalog.ListSellerPackages)
	api.GET("/ws", h.WS.Handle)

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(auth))

	client := protected.Group("/")
	client.Use(middleware.RequireRole(models.RoleClient))
	{
		client.POST("/orders", h.Orders.CreateOrder)
		client.GET("/orders", h.Orders.ListClientOrders)
		client.PUT("/orders/:id/complete", middleware.UUIDValidator("id"), h.Orders.CompleteOrder)
		client.PUT("/orders/:id/cancel", middleware.UUIDValidator("id"), h.Orders.CancelOrder)
		client.GET("/orders/:id/payment-details", middleware.UUIDValidator("id"), h.Orders.GetPaymentDetails)
		client.PUT("/orders/:id/milestones", middleware.UUIDValidator("id"), h.Orders.SetMilestones)

		payments := client.Group("/")
		payments.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))
		payments.POST("/payment-sessions", h.Payments.InitiatePayment)
		payments.POST("/payment-verify", h.Payments.VerifyPayment)
	}

	seller := protected.Group("/")
	seller.Use(middleware.RequireRole(models.RoleSeller))
	{
		seller.GET("/seller/orders", h.Orders.ListSellerOrders)
		seller.PUT("/orders/:id/accept", middleware.UUIDValidator("id"), h.Orders.AcceptOrder)
		seller.PUT("/orders/:id/reject", middleware.UUIDValidator("id"), h.Orders.RejectOrder)
		seller.PUT("/orders/:id/deliver", middleware.UUIDValidator("id"), h.Orders.DeliverOrder)
		seller.PUT("/packages", h.Catalog.UpsertPackage)
	}

	protected.GET("/notifications", h.Notifications.List)
	protected.PUT("/notifications/:id/read", middleware.UUIDValidator("id"), h.Notifications.MarkAsRead)

	return r
}
