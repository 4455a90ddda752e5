package routes

import (
	"storefront-service/controllers"

	"github.com/gin-gonic/gin"
)

// Handlers groups the controllers mounted under /api.
type Handlers struct {
	Products *controllers.ProductController
	Restock  *controllers.RestockController
	Auth     *controllers.AuthController
	Uploads  *controllers.UploadController
}

// RegisterRoutes mounts the public and admin API. requireAdmin guards every
// catalogue mutation; loginLimiter throttles credential guessing.
func RegisterRoutes(r *gin.Engine, h Handlers, requireAdmin, loginLimiter gin.HandlerFunc) {
	api := r.Group("/api")

	products := api.Group("/products")
	products.GET("", h.Products.ListProducts)
	products.GET("/:id", h.Products.GetProduct)
	products.POST("/:id/buy", h.Products.BuyProduct)

	adminProducts := products.Group("", requireAdmin)
	adminProducts.POST("", h.Products.CreateProduct)
	adminProducts.PUT("/:id", h.Products.UpdateProduct)
	adminProducts.DELETE("/:id", h.Products.DeleteProduct)

	restock := api.Group("/restock", requireAdmin)
	restock.GET("/list", h.Restock.ListRestock)
	restock.PUT("/update/:id", h.Restock.UpdateRestock)

	api.POST("/auth/login", loginLimiter, h.Auth.Login)

	api.POST("/uploads/presign", requireAdmin, h.Uploads.PresignImage)
}
