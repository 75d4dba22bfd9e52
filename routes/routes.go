package routes

import (
	"log/slog"

	"vibe-drinks/controllers"
	"vibe-drinks/middlewares"
	"vibe-drinks/models"
	"vibe-drinks/realtime"
	"vibe-drinks/services"
	"vibe-drinks/store"

	"github.com/gin-gonic/gin"
)

// Deps is everything the HTTP surface is built from.
type Deps struct {
	Store        store.Store
	Orders       *services.OrderService
	Delivery     *services.DeliveryService
	Auth         *services.AuthService
	Geocoder     services.Geocoder
	Broadcaster  *realtime.Broadcaster
	JWTSecret    string
	AllowOrigins []string
	Log          *slog.Logger
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.Use(middlewares.CORSMiddleware(d.AllowOrigins))
	r.GET("/health", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	// Controllers
	authCtrl := controllers.NewAuthController(d.Auth)
	orderCtrl := controllers.NewOrderController(d.Orders, d.Delivery, d.Store)
	deliveryCtrl := controllers.NewDeliveryController(d.Delivery)
	addrCtrl := controllers.NewAddressController(d.Store, d.Geocoder, d.Log)

	staff := middlewares.AuthMiddleware(d.JWTSecret, models.StaffRoles...)
	admin := middlewares.AuthMiddleware(d.JWTSecret, models.RoleAdmin)

	// Auth (public)
	r.POST("/auth/login", authCtrl.Login)

	// Realtime
	r.GET("/events", gin.WrapF(d.Broadcaster.ServeSSE))
	r.GET("/ws", gin.WrapF(d.Broadcaster.ServeWS))

	// Delivery quote (public, used by checkout)
	r.POST("/delivery/calculate", deliveryCtrl.Calculate)

	// Orders
	o := r.Group("/orders")
	{
		o.POST("", middlewares.OptionalAuth(d.JWTSecret), orderCtrl.Create)
		o.GET("", staff, orderCtrl.List) // ?status=a,b&userId=&motoboyId=&limit=
		o.GET("/:id", orderCtrl.Detail)
		o.PATCH("/:id/status", staff, orderCtrl.UpdateStatus)
		o.PATCH("/:id/assign", staff, orderCtrl.Assign)
		o.PATCH("/:id/delivery-fee", admin, orderCtrl.AdjustDeliveryFee)
	}

	// Address book (customer)
	addr := r.Group("/addresses", middlewares.AuthMiddleware(d.JWTSecret))
	{
		addr.POST("", addrCtrl.Create)
		addr.GET("", addrCtrl.List)
	}
}
