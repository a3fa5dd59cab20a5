package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edupoint/rewards-api/internal/models"
)

// StoreRepository persists products, inventory movements and orders. Order
// creation spans stock and currency, so the mutating methods take a
// caller-owned transaction; the debit coordinator owns the atomic unit.
type StoreRepository struct {
	db *sqlx.DB
}

// NewStoreRepository constructs the repository.
func NewStoreRepository(db *sqlx.DB) *StoreRepository {
	return &StoreRepository{db: db}
}

// GetProduct fetches a product without locking.
func (r *StoreRepository) GetProduct(ctx context.Context, id string) (*models.StoreProduct, error) {
	const query = `SELECT id, name, description, price_atoms, stock_quantity, active, created_at, updated_at
	FROM store_products WHERE id = $1`
	var product models.StoreProduct
	if err := r.db.GetContext(ctx, &product, query, id); err != nil {
		return nil, err
	}
	return &product, nil
}

// LockProductTx selects a product FOR UPDATE inside the caller's transaction.
// Callers must lock products in a deterministic id order to avoid deadlocks.
func (r *StoreRepository) LockProductTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.StoreProduct, error) {
	const query = `SELECT id, name, description, price_atoms, stock_quantity, active, created_at, updated_at
	FROM store_products WHERE id = $1 FOR UPDATE`
	var product models.StoreProduct
	if err := tx.GetContext(ctx, &product, query, id); err != nil {
		return nil, err
	}
	return &product, nil
}

// AdjustStockTx applies a signed delta to a locked product's stock.
func (r *StoreRepository) AdjustStockTx(ctx context.Context, tx *sqlx.Tx, productID string, delta int64) error {
	const query = `UPDATE store_products SET stock_quantity = stock_quantity + $1, updated_at = $2 WHERE id = $3`
	if _, err := tx.ExecContext(ctx, query, delta, time.Now().UTC(), productID); err != nil {
		return fmt.Errorf("adjust stock: %w", err)
	}
	return nil
}

// InsertMovementTx appends one inventory movement row.
func (r *StoreRepository) InsertMovementTx(ctx context.Context, tx *sqlx.Tx, movement *models.InventoryMovement) error {
	if movement.ID == "" {
		movement.ID = uuid.NewString()
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO inventory_movements (id, product_id, quantity, reference_type, reference_id, created_by, created_at)
	VALUES (:id, :product_id, :quantity, :reference_type, :reference_id, :created_by, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, movement); err != nil {
		return fmt.Errorf("insert inventory movement: %w", err)
	}
	return nil
}

// InsertOrderTx writes the order header.
func (r *StoreRepository) InsertOrderTx(ctx context.Context, tx *sqlx.Tx, order *models.StoreOrder) error {
	const query = `INSERT INTO store_orders (id, student_id, total_atoms, status, payment_status, created_by, created_at, updated_at)
	VALUES (:id, :student_id, :total_atoms, :status, :payment_status, :created_by, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, order); err != nil {
		return fmt.Errorf("insert store order: %w", err)
	}
	return nil
}

// InsertOrderItemsTx writes the order lines.
func (r *StoreRepository) InsertOrderItemsTx(ctx context.Context, tx *sqlx.Tx, items []models.StoreOrderItem) error {
	const query = `INSERT INTO store_order_items (id, order_id, product_id, quantity, unit_price_atoms, created_at)
	VALUES (:id, :order_id, :product_id, :quantity, :unit_price_atoms, :created_at)`
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		if items[i].CreatedAt.IsZero() {
			items[i].CreatedAt = time.Now().UTC()
		}
		if _, err := tx.NamedExecContext(ctx, query, items[i]); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

// GetOrder fetches an order with its items.
func (r *StoreRepository) GetOrder(ctx context.Context, id string) (*models.StoreOrder, error) {
	const query = `SELECT id, student_id, total_atoms, status, payment_status, created_by, created_at, updated_at
	FROM store_orders WHERE id = $1`
	var order models.StoreOrder
	if err := r.db.GetContext(ctx, &order, query, id); err != nil {
		return nil, err
	}
	const itemsQuery = `SELECT id, order_id, product_id, quantity, unit_price_atoms, created_at
	FROM store_order_items WHERE order_id = $1 ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &order.Items, itemsQuery, id); err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	return &order, nil
}

// ListOrders returns orders matching the filter, newest first.
func (r *StoreRepository) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.StoreOrder, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		where = append(where, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.PaymentStatus != nil {
		args = append(args, *filter.PaymentStatus)
		where = append(where, fmt.Sprintf("payment_status = $%d", len(args)))
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, student_id, total_atoms, status, payment_status, created_by, created_at, updated_at
	FROM store_orders WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`, whereClause, size, offset)
	var orders []models.StoreOrder
	if err := r.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list store orders: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM store_orders WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count store orders: %w", err)
	}
	return orders, total, nil
}

// UpdateOrderStatus persists a fulfilment transition, conditional on the
// status the caller validated against. Returns false when no row matched,
// meaning a concurrent transition moved the order first.
func (r *StoreRepository) UpdateOrderStatus(ctx context.Context, id string, from, to models.OrderStatus) (bool, error) {
	const query = `UPDATE store_orders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, to, time.Now().UTC(), id, from)
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	return affected > 0, nil
}

// UpdatePaymentStatus persists a payment transition under the same
// conditional guard as UpdateOrderStatus.
func (r *StoreRepository) UpdatePaymentStatus(ctx context.Context, id string, from, to models.PaymentStatus) (bool, error) {
	const query = `UPDATE store_orders SET payment_status = $1, updated_at = $2 WHERE id = $3 AND payment_status = $4`
	res, err := r.db.ExecContext(ctx, query, to, time.Now().UTC(), id, from)
	if err != nil {
		return false, fmt.Errorf("update payment status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update payment status: %w", err)
	}
	return affected > 0, nil
}

// ListProducts returns catalog products matching the filter.
func (r *StoreRepository) ListProducts(ctx context.Context, filter models.ProductFilter) ([]models.StoreProduct, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		where = append(where, fmt.Sprintf("active = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, name, description, price_atoms, stock_quantity, active, created_at, updated_at
	FROM store_products WHERE %s ORDER BY name ASC LIMIT %d OFFSET %d`, whereClause, size, offset)
	var products []models.StoreProduct
	if err := r.db.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM store_products WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}
	return products, total, nil
}

// CreateProduct inserts a catalog product.
func (r *StoreRepository) CreateProduct(ctx context.Context, product *models.StoreProduct) error {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	const query = `INSERT INTO store_products (id, name, description, price_atoms, stock_quantity, active, created_at, updated_at)
	VALUES (:id, :name, :description, :price_atoms, :stock_quantity, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, product); err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

// UpdateProduct modifies catalog fields. Stock changes go through movements,
// never through this method.
func (r *StoreRepository) UpdateProduct(ctx context.Context, product *models.StoreProduct) error {
	product.UpdatedAt = time.Now().UTC()
	const query = `UPDATE store_products SET name = :name, description = :description, price_atoms = :price_atoms,
	active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, product); err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

// Restock adds stock and records the movement as one transaction.
func (r *StoreRepository) Restock(ctx context.Context, productID string, quantity int64, actorID string) (movement *models.InventoryMovement, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin restock: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = r.LockProductTx(ctx, tx, productID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock product: %w", err)
	}
	if err = r.AdjustStockTx(ctx, tx, productID, quantity); err != nil {
		return nil, err
	}
	movement = &models.InventoryMovement{
		ID:            uuid.NewString(),
		ProductID:     productID,
		Quantity:      quantity,
		ReferenceType: models.MovementRestock,
		ReferenceID:   productID,
		CreatedBy:     actorID,
		CreatedAt:     time.Now().UTC(),
	}
	if err = r.InsertMovementTx(ctx, tx, movement); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit restock: %w", err)
	}
	return movement, nil
}

// ListMovements returns a product's movement history, newest first.
func (r *StoreRepository) ListMovements(ctx context.Context, productID string, limit int) ([]models.InventoryMovement, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const query = `SELECT id, product_id, quantity, reference_type, reference_id, created_by, created_at
	FROM inventory_movements WHERE product_id = $1 ORDER BY created_at DESC LIMIT $2`
	var movements []models.InventoryMovement
	if err := r.db.SelectContext(ctx, &movements, query, productID, limit); err != nil {
		return nil, fmt.Errorf("list inventory movements: %w", err)
	}
	return movements, nil
}
