package controllers

import (
	"net/http"
	"strconv"

	"storefront-service/apperrors"
	"storefront-service/models"
	"storefront-service/services"

	"github.com/gin-gonic/gin"
)

// ProductController handles HTTP requests for products.
type ProductController struct {
	inventory services.InventoryService
}

// NewProductController creates a new ProductController.
func NewProductController(inventory services.InventoryService) *ProductController {
	return &ProductController{inventory: inventory}
}

// parseID reads the :id path parameter as a positive integer.
func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product id"})
		return 0, false
	}
	return uint(id), true
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
}

// ListProducts handles GET /api/products.
func (pc *ProductController) ListProducts(c *gin.Context) {
	products, err := pc.inventory.ListProducts(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	if products == nil {
		products = []models.Product{}
	}
	c.JSON(http.StatusOK, products)
}

// GetProduct handles GET /api/products/:id.
func (pc *ProductController) GetProduct(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	product, err := pc.inventory.GetProduct(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// CreateProduct handles POST /api/products (admin only).
func (pc *ProductController) CreateProduct(c *gin.Context) {
	var in models.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}

	product, err := pc.inventory.CreateProduct(c.Request.Context(), in)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

// UpdateProduct handles PUT /api/products/:id (admin only). Omitted fields
// keep their current value.
func (pc *ProductController) UpdateProduct(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var patch models.ProductPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}

	product, err := pc.inventory.UpdateProduct(c.Request.Context(), id, patch)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// DeleteProduct handles DELETE /api/products/:id (admin only).
func (pc *ProductController) DeleteProduct(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := pc.inventory.DeleteProduct(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// BuyProduct handles POST /api/products/:id/buy.
func (pc *ProductController) BuyProduct(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	product, err := pc.inventory.PurchaseProduct(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// RestockController handles the admin restock view.
type RestockController struct {
	inventory services.InventoryService
}

func NewRestockController(inventory services.InventoryService) *RestockController {
	return &RestockController{inventory: inventory}
}

// ListRestock handles GET /api/restock/list. With ?detailed=true each entry
// also carries its priority and stock percentage.
func (rc *RestockController) ListRestock(c *gin.Context) {
	if detailed, _ := strconv.ParseBool(c.Query("detailed")); detailed {
		candidates, err := rc.inventory.ListRestockCandidatesDetailed(c.Request.Context())
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, candidates)
		return
	}

	products, err := rc.inventory.ListRestockCandidates(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	if products == nil {
		products = []models.Product{}
	}
	c.JSON(http.StatusOK, products)
}

// UpdateRestock handles PUT /api/restock/update/:id.
func (rc *RestockController) UpdateRestock(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req models.RestockUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.NeedRestock == nil {
		_ = c.Error(apperrors.Wrap(apperrors.ErrValidation, "need_restock is required"))
		return
	}

	product, err := rc.inventory.ResolveRestock(c.Request.Context(), id, *req.NeedRestock)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, product)
}
