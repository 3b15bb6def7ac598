package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxFeatures and MaxImages bound the feature and gallery lists stored per product.
const (
	MaxFeatures = 8
	MaxImages   = 4
)

func init() {
	// The storefront reads prices as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Product represents a product in the catalog.
// The json tags correspond to the fields expected by the storefront.
type Product struct {
	ID             int64               `json:"id"`
	SKU            string              `json:"sku"`
	ParentCategory string              `json:"parent_category"`
	ChildCategory  string              `json:"child_category"`
	Title          string              `json:"title"`
	Brand          string              `json:"brand"`
	Tags           string              `json:"tags"`
	ListPrice      decimal.NullDecimal `json:"list_price"`
	Discount       decimal.NullDecimal `json:"discount"` // percent, stored as given
	StarRating     *float64            `json:"star_rating"`
	Description    *string             `json:"product_description"`
	Features       []string            `json:"features"`
	MainImage      *string             `json:"main_img"`
	Images         []string            `json:"images"`
	// SEO metadata
	MetaTitle         *string   `json:"meta_title"`
	MetaDescription   *string   `json:"meta_description"`
	SchemaDescription *string   `json:"schema_description"`
	CreatedAt         time.Time `json:"created_at"`
}

// ProductInput is the admin payload for an upsert by SKU. Nil fields are left
// untouched on update; Features and Images replace the whole list when non-nil.
type ProductInput struct {
	SKU               string           `json:"sku" validate:"required,sku"`
	ParentCategory    *string          `json:"parent_category" validate:"omitempty,max=255"`
	ChildCategory     *string          `json:"child_category" validate:"omitempty,max=255"`
	Title             *string          `json:"title" validate:"omitempty,max=500"`
	Brand             *string          `json:"brand" validate:"omitempty,max=255"`
	Tags              *string          `json:"tags" validate:"omitempty,max=1000"`
	ListPrice         *decimal.Decimal `json:"list_price"`
	Discount          *decimal.Decimal `json:"discount"`
	StarRating        *float64         `json:"star_rating" validate:"omitempty,gte=0,lte=5"`
	Description       *string          `json:"product_description"`
	Features          []string         `json:"features" validate:"omitempty,max=8"`
	MainImage         *string          `json:"main_img" validate:"omitempty,max=1000"`
	Images            []string         `json:"images" validate:"omitempty,max=4"`
	MetaTitle         *string          `json:"meta_title" validate:"omitempty,max=255"`
	MetaDescription   *string          `json:"meta_description"`
	SchemaDescription *string          `json:"schema_description"`
}

// ProductPage is one page of a filtered product listing.
type ProductPage struct {
	Total   int       `json:"total"`
	Page    int       `json:"page"`
	PerPage int       `json:"per_page"`
	Items   []Product `json:"items"`
}

// CategoryPair is a distinct (parent, child) category path with its product count.
type CategoryPair struct {
	ParentCategory string `json:"parent_category"`
	ChildCategory  string `json:"child_category"`
	Count          int    `json:"count"`
}

// Tag is a distinct tag token with its display label.
type Tag struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// HomeBundle holds the two curated lists shown on the storefront landing page.
type HomeBundle struct {
	Popular       []Product `json:"popular"`
	SpecialPrices []Product `json:"specialPrices"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// Upsert actions reported back to the admin panel.
const (
	ActionInserted = "inserted"
	ActionUpdated  = "updated"
)

// UpsertResult reports what an upsert by SKU did.
type UpsertResult struct {
	SKU    string `json:"sku"`
	Action string `json:"action"`
}

// ImportRowError describes a bulk-import row that could not be applied.
type ImportRowError struct {
	Index int    `json:"index"`
	SKU   string `json:"sku,omitempty"`
	Error string `json:"error"`
}

// ImportResult summarizes a bulk import.
type ImportResult struct {
	Inserted int              `json:"inserted"`
	Updated  int              `json:"updated"`
	Errors   []ImportRowError `json:"errors"`
}
