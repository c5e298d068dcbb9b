package domain

import "github.com/shopspring/decimal"

// CartLineItem is one product in the cart. Name, Price and Image are a
// snapshot taken when the product was first added.
type CartLineItem struct {
	ID       int             `json:"id" validate:"required"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Image    string          `json:"image"`
	Quantity int             `json:"quantity" validate:"gte=1"`
}

// Subtotal returns Price × Quantity.
func (i CartLineItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// NewLineItem snapshots p into a line item with quantity 1.
func NewLineItem(p Product) CartLineItem {
	return CartLineItem{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.Price,
		Image:    p.Img,
		Quantity: 1,
	}
}

// Cart is an ordered list of line items with at most one entry per product.
type Cart struct {
	Items []CartLineItem `json:"items"`
}

// TotalPrice sums Price × Quantity over all items.
func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// ItemCount sums quantities over all items.
func (c *Cart) ItemCount() int {
	var count int
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// IsEmpty reports whether the cart has no line items.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// FindItemIndex returns the index of the line item for productID, or -1.
func (c *Cart) FindItemIndex(productID int) int {
	for i := range c.Items {
		if c.Items[i].ID == productID {
			return i
		}
	}
	return -1
}

// QuantityOf returns the quantity held for productID, or 0.
func (c *Cart) QuantityOf(productID int) int {
	if i := c.FindItemIndex(productID); i >= 0 {
		return c.Items[i].Quantity
	}
	return 0
}
