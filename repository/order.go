package repository

import (
	"fmt"
	"time"

	"github.com/goliatone/go-record-services/store"
	"github.com/shopspring/decimal"
)

// Default order collection.
const (
	OrderIndex      = "orders"
	OrderRecordType = "order"
)

// Order is a purchase owned by a user of the user service. UserID is not
// constrained locally; it is validated against the user service on write.
type Order struct {
	ID              string          `json:"id"`
	UserID          int64           `json:"user_id"`
	ItemDescription string          `json:"item_description"`
	ItemQuantity    int             `json:"item_quantity"`
	ItemPrice       decimal.Decimal `json:"item_price"`
	TotalValue      decimal.Decimal `json:"total_value"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       *time.Time      `json:"updated_at"`
	Version         int64           `json:"-"`
}

// Subtotal is the item price times the quantity.
func (o Order) Subtotal() decimal.Decimal {
	return o.ItemPrice.Mul(decimal.NewFromInt(int64(o.ItemQuantity)))
}

// OrderPatch updates the non nil fields of an order.
type OrderPatch struct {
	UserID          *int64           `json:"user_id,omitempty"`
	ItemDescription *string          `json:"item_description,omitempty"`
	ItemQuantity    *int             `json:"item_quantity,omitempty"`
	ItemPrice       *decimal.Decimal `json:"item_price,omitempty"`
	TotalValue      *decimal.Decimal `json:"total_value,omitempty"`
}

// Fields returns the set fields, money rendered as JSON numbers.
func (p OrderPatch) Fields() store.Fields {
	f := store.Fields{}
	if p.UserID != nil {
		f["user_id"] = *p.UserID
	}
	if p.ItemDescription != nil {
		f["item_description"] = *p.ItemDescription
	}
	if p.ItemQuantity != nil {
		f["item_quantity"] = *p.ItemQuantity
	}
	if p.ItemPrice != nil {
		f["item_price"] = money(*p.ItemPrice)
	}
	if p.TotalValue != nil {
		f["total_value"] = money(*p.TotalValue)
	}
	return f
}

// OrderSchema is the document mapping of the order record type.
var OrderSchema = store.Schema{
	Name: OrderRecordType,
	Fields: map[string]string{
		"user_id":          "long",
		"item_description": "text",
		"item_quantity":    "integer",
		"item_price":       "double",
		"total_value":      "double",
		CreatedAtField:     "date",
		UpdatedAtField:     "date",
	},
}

// OrderCollection returns the default order collection.
func OrderCollection() store.Collection {
	return store.Collection{Name: OrderIndex, RecordType: OrderRecordType}
}

// OrderCodec maps orders to documents.
type OrderCodec struct{}

var _ Codec[Order] = OrderCodec{}

// Encode stores the total as given; callers default it with Subtotal.
func (OrderCodec) Encode(o Order) store.Fields {
	return store.Fields{
		"user_id":          o.UserID,
		"item_description": o.ItemDescription,
		"item_quantity":    o.ItemQuantity,
		"item_price":       money(o.ItemPrice),
		"total_value":      money(o.TotalValue),
	}
}

// Decode reads an order from a stored document. Numeric fields may come
// back as json.Number, float64 or string.
func (OrderCodec) Decode(doc store.Document) (Order, error) {
	f := doc.Fields
	o := Order{ID: doc.ID, Version: doc.Version, ItemDescription: asString(f["item_description"])}

	var err error
	if o.UserID, err = asInt64(f["user_id"]); err != nil {
		return Order{}, fmt.Errorf("user_id: %w", err)
	}
	qty, err := asInt64(f["item_quantity"])
	if err != nil {
		return Order{}, fmt.Errorf("item_quantity: %w", err)
	}
	o.ItemQuantity = int(qty)
	if o.ItemPrice, err = asDecimal(f["item_price"]); err != nil {
		return Order{}, fmt.Errorf("item_price: %w", err)
	}
	if o.TotalValue, err = asDecimal(f["total_value"]); err != nil {
		return Order{}, fmt.Errorf("total_value: %w", err)
	}
	if v, ok := f[CreatedAtField]; ok && v != nil {
		if o.CreatedAt, err = asTime(v); err != nil {
			return Order{}, fmt.Errorf("created_at: %w", err)
		}
	}
	if o.UpdatedAt, err = asOptionalTime(f[UpdatedAtField]); err != nil {
		return Order{}, fmt.Errorf("updated_at: %w", err)
	}
	return o, nil
}

// Sanitize leaves order fields untouched.
func (OrderCodec) Sanitize(fields store.Fields) store.Fields { return fields }

// Timestamp renders RFC 3339 strings, which the date mapping accepts.
func (OrderCodec) Timestamp(t time.Time) any { return t.UTC().Format(time.RFC3339Nano) }

// Orders is the order repository.
type Orders = Repository[Order]

// NewOrders binds the order codec to adapter and the default collection.
func NewOrders(adapter store.Adapter) *Orders {
	return New[Order](adapter, OrderCodec{}, OrderCollection())
}
