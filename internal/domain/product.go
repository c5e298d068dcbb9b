package domain

import "github.com/shopspring/decimal"

// Prices are written as JSON numbers, the form the catalog API and the
// stored cart use.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// Category is a product grouping exposed by the catalog API.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Product is a catalog item as returned by the catalog API.
type Product struct {
	ID          int             `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Img         string          `json:"img"`
	CategoryID  int             `json:"category_id"`
	Description string          `json:"description,omitempty"`
}

// ProductPage is one page of a product listing.
type ProductPage struct {
	Products    []Product `json:"products"`
	TotalPages  int       `json:"total_pages"`
	CurrentPage int       `json:"current_page"`
}

// EmptyProductPage is the listing shown when the catalog response could not
// be used.
func EmptyProductPage(page int) ProductPage {
	return ProductPage{
		Products:    []Product{},
		TotalPages:  0,
		CurrentPage: page,
	}
}
