package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// MaxPrice is the first value that does not fit NUMERIC(10,2).
var MaxPrice = decimal.New(1, 8)

// Product is a sellable item and its stock levels.
type Product struct {
	ID                uint            `json:"id" gorm:"primaryKey"`
	Name              string          `json:"name" gorm:"type:varchar(255);uniqueIndex;not null" validate:"required,max=255"`
	Description       string          `json:"description" gorm:"type:text"`
	Price             decimal.Decimal `json:"price" gorm:"type:decimal(10,2);not null" validate:"gte=0"`
	TotalQuantity     int             `json:"total_quantity" gorm:"not null" validate:"gte=0"`
	AvailableQuantity int             `json:"available_quantity" gorm:"not null" validate:"gte=0,ltefield=TotalQuantity"`
	NeedRestock       bool            `json:"need_restock" gorm:"not null;default:false;index"`
	ImageURL          *string         `json:"image_url,omitempty" gorm:"type:varchar(500)" validate:"omitempty,max=500"`
	Version           int64           `json:"-" gorm:"not null;default:1"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// MarshalJSON renders price with exactly two fractional digits, the way a
// NUMERIC(10,2) column reads back.
func (p Product) MarshalJSON() ([]byte, error) {
	type alias Product
	return json.Marshal(struct {
		alias
		Price string `json:"price"`
	}{
		alias: alias(p),
		Price: p.Price.StringFixed(2),
	})
}

// ProductInput is the body of POST /api/products.
type ProductInput struct {
	Name              string           `json:"name" binding:"required"`
	Description       string           `json:"description"`
	Price             *decimal.Decimal `json:"price" binding:"required"`
	TotalQuantity     *int             `json:"total_quantity" binding:"required"`
	AvailableQuantity *int             `json:"available_quantity" binding:"required"`
	ImageURL          *string          `json:"image_url"`
}

// ProductPatch is the body of PUT /api/products/:id. Nil fields are left untouched.
type ProductPatch struct {
	Name              *string          `json:"name"`
	Description       *string          `json:"description"`
	Price             *decimal.Decimal `json:"price"`
	TotalQuantity     *int             `json:"total_quantity"`
	AvailableQuantity *int             `json:"available_quantity"`
	ImageURL          *string          `json:"image_url"`
}

// IsEmpty reports whether the patch sets no fields.
func (p *ProductPatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Price == nil &&
		p.TotalQuantity == nil && p.AvailableQuantity == nil && p.ImageURL == nil
}

// TouchesQuantity reports whether the patch sets either stock field.
func (p *ProductPatch) TouchesQuantity() bool {
	return p.TotalQuantity != nil || p.AvailableQuantity != nil
}

// Apply merges the patch into product.
func (p *ProductPatch) Apply(product *Product) {
	if p.Name != nil {
		product.Name = *p.Name
	}
	if p.Description != nil {
		product.Description = *p.Description
	}
	if p.Price != nil {
		product.Price = *p.Price
	}
	if p.TotalQuantity != nil {
		product.TotalQuantity = *p.TotalQuantity
	}
	if p.AvailableQuantity != nil {
		product.AvailableQuantity = *p.AvailableQuantity
	}
	if p.ImageURL != nil {
		if *p.ImageURL == "" {
			product.ImageURL = nil
		} else {
			url := *p.ImageURL
			product.ImageURL = &url
		}
	}
}

// RestockUpdateRequest is the body of PUT /api/restock/update/:id.
type RestockUpdateRequest struct {
	NeedRestock *bool `json:"need_restock" binding:"required"`
}

// Restock priorities, lowest stock first.
const (
	PriorityCritical = "critical"
	PriorityLow      = "low"
	PriorityNormal   = "normal"
)

// RestockCandidate pairs a flagged product with its computed severity.
type RestockCandidate struct {
	Product      Product `json:"product"`
	Priority     string  `json:"priority"`
	StockPercent float64 `json:"stock_percent"`
}
