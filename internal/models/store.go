package models

import "time"

// StoreProduct is a redeemable item priced in Atoms.
type StoreProduct struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Description   string    `db:"description" json:"description"`
	PriceAtoms    int64     `db:"price_atoms" json:"price_atoms"`
	StockQuantity int64     `db:"stock_quantity" json:"stock_quantity"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// MovementReference classifies what caused an inventory movement.
type MovementReference string

const (
	MovementStorePurchase MovementReference = "STORE_PURCHASE"
	MovementRestock       MovementReference = "RESTOCK"
	MovementAdjustment    MovementReference = "MANUAL_ADJUSTMENT"
)

// InventoryMovement is the stock counterpart of LedgerTransaction: an
// append-only signed-quantity entry against a product. Negative quantities
// are sales, positive ones restocks.
type InventoryMovement struct {
	ID            string            `db:"id" json:"id"`
	ProductID     string            `db:"product_id" json:"product_id"`
	Quantity      int64             `db:"quantity" json:"quantity"`
	ReferenceType MovementReference `db:"reference_type" json:"reference_type"`
	ReferenceID   string            `db:"reference_id" json:"reference_id"`
	CreatedBy     string            `db:"created_by" json:"created_by"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
}

// OrderStatus is the fulfilment state of a store order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// PaymentStatus is the payment state of a store order. Cancelling or
// refunding never silently reverses the ledger; that takes an explicit
// manual adjustment.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusPaid      PaymentStatus = "PAID"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// StoreOrder debits a student's Atoms and decrements stock as one logical
// operation.
type StoreOrder struct {
	ID            string        `db:"id" json:"id"`
	StudentID     string        `db:"student_id" json:"student_id"`
	TotalAtoms    int64         `db:"total_atoms" json:"total_atoms"`
	Status        OrderStatus   `db:"status" json:"status"`
	PaymentStatus PaymentStatus `db:"payment_status" json:"payment_status"`
	CreatedBy     string        `db:"created_by" json:"created_by"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`

	Items []StoreOrderItem `db:"-" json:"items,omitempty"`
}

// StoreOrderItem is one product line within an order. The unit price is a
// snapshot taken at purchase time.
type StoreOrderItem struct {
	ID             string    `db:"id" json:"id"`
	OrderID        string    `db:"order_id" json:"order_id"`
	ProductID      string    `db:"product_id" json:"product_id"`
	Quantity       int64     `db:"quantity" json:"quantity"`
	UnitPriceAtoms int64     `db:"unit_price_atoms" json:"unit_price_atoms"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	StudentID     string
	Status        *OrderStatus
	PaymentStatus *PaymentStatus
	Page          int
	PageSize      int
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	Active   *bool
	Search   string
	Page     int
	PageSize int
}
