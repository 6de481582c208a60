package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Category struct {
	BaseModel
	Name         string    `gorm:"uniqueIndex" json:"name"`
	Description  string    `json:"description"`
	DisplayOrder int       `json:"display_order"`
	IsActive     bool      `json:"is_active"`
	Products     []Product `json:"products,omitempty"`
}

type Product struct {
	BaseModel
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Price       decimal.Decimal  `gorm:"type:decimal(10,2)" json:"price"`
	IsAvailable bool             `json:"is_available"`
	PrepMinutes int              `json:"prep_minutes"`
	ImageURL    string           `json:"image_url"`
	CategoryID  *uuid.UUID       `gorm:"type:uuid" json:"category_id"`
	Category    *Category        `json:"category,omitempty"`
	Variants    []ProductVariant `json:"variants,omitempty"`
	Ingredients []Ingredient     `gorm:"many2many:product_ingredients;" json:"ingredients,omitempty"`
}

type ProductVariant struct {
	BaseModel
	ProductID     uuid.UUID       `gorm:"type:uuid;index" json:"product_id"`
	Label         string          `json:"label"`
	PriceModifier decimal.Decimal `gorm:"type:decimal(10,2)" json:"price_modifier"`
	IsAvailable   bool            `json:"is_available"`
}

type Ingredient struct {
	BaseModel
	Name          string `gorm:"uniqueIndex" json:"name"`
	Unit          string `json:"unit"`
	StockQuantity int    `json:"stock_quantity"`
	IsAllergen    bool   `json:"is_allergen"`
}
