package httpserver

import (
	"github.com/labstack/echo/v4"

	"github.com/avolkov/marketplace/internal/handlers"
	"github.com/avolkov/marketplace/internal/models"
	"github.com/avolkov/marketplace/internal/service/token"
)

type Deps struct {
	AuthHandler    *handlers.AuthHandler
	ProductHandler *handlers.ProductHandler
	CartHandler    *handlers.CartHandler
	OrderHandler   *handlers.OrderHandler
	ChatHandler    *handlers.ChatHandler
	SearchHandler  *handlers.SearchHandler
	TokenService   *token.TokenService
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	v1 := e.Group("/api/v1")

	v1.POST("/register", d.AuthHandler.Register)
	v1.POST("/login", d.AuthHandler.Login)
	v1.POST("/logout", d.AuthHandler.LogOut)
	v1.GET("/search", d.SearchHandler.Search)

	products := v1.Group("/products")
	products.GET("", d.ProductHandler.GetProducts)
	products.GET("/:id", d.ProductHandler.GetProduct)

	seller := v1.Group("/seller", d.TokenService.AutoRefreshMiddleware, d.TokenService.RequireRole(models.RoleSeller))
	seller.GET("/products", d.ProductHandler.ListMine)
	seller.POST("/products", d.ProductHandler.CreateProduct)
	seller.PATCH("/products/:id", d.ProductHandler.PatchProduct)
	seller.DELETE("/products/:id", d.ProductHandler.DeleteProduct)
	seller.GET("/orders", d.OrderHandler.ListSellerOrders)
	seller.PATCH("/orders/:id/status", d.OrderHandler.UpdateStatus)

	buyer := v1.Group("", d.TokenService.AutoRefreshMiddleware, d.TokenService.RequireRole(models.RoleBuyer))
	buyer.GET("/cart", d.CartHandler.GetCart)
	buyer.POST("/cart", d.CartHandler.AddToCart)
	buyer.PATCH("/cart/:id", d.CartHandler.UpdateItem)
	buyer.DELETE("/cart/:id", d.CartHandler.DeleteItem)
	buyer.DELETE("/cart", d.CartHandler.ClearCart)
	buyer.POST("/checkout", d.OrderHandler.Checkout)
	buyer.GET("/orders", d.OrderHandler.ListBuyerOrders)
	buyer.POST("/chat/threads", d.ChatHandler.OpenThread)

	chat := v1.Group("/chat", d.TokenService.AutoRefreshMiddleware)
	chat.GET("/threads", d.ChatHandler.ListThreads)
	chat.GET("/threads/:id/messages", d.ChatHandler.ListMessages)
	chat.POST("/threads/:id/messages", d.ChatHandler.PostMessage)
	chat.GET("/threads/:id/stream", d.ChatHandler.StreamThread)
}
