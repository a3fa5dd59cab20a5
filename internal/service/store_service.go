package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/edupoint/rewards-api/internal/models"
	"github.com/edupoint/rewards-api/internal/repository"
	appErrors "github.com/edupoint/rewards-api/pkg/errors"
)

type storeTxProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type storeRepository interface {
	GetProduct(ctx context.Context, id string) (*models.StoreProduct, error)
	LockProductTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.StoreProduct, error)
	AdjustStockTx(ctx context.Context, tx *sqlx.Tx, productID string, delta int64) error
	InsertMovementTx(ctx context.Context, tx *sqlx.Tx, movement *models.InventoryMovement) error
	InsertOrderTx(ctx context.Context, tx *sqlx.Tx, order *models.StoreOrder) error
	InsertOrderItemsTx(ctx context.Context, tx *sqlx.Tx, items []models.StoreOrderItem) error
	GetOrder(ctx context.Context, id string) (*models.StoreOrder, error)
	ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.StoreOrder, int, error)
	UpdateOrderStatus(ctx context.Context, id string, from, to models.OrderStatus) (bool, error)
	UpdatePaymentStatus(ctx context.Context, id string, from, to models.PaymentStatus) (bool, error)
	ListProducts(ctx context.Context, filter models.ProductFilter) ([]models.StoreProduct, int, error)
	CreateProduct(ctx context.Context, product *models.StoreProduct) error
	UpdateProduct(ctx context.Context, product *models.StoreProduct) error
	Restock(ctx context.Context, productID string, quantity int64, actorID string) (*models.InventoryMovement, error)
	ListMovements(ctx context.Context, productID string, limit int) ([]models.InventoryMovement, error)
}

type orderLedger interface {
	AppendInTx(ctx context.Context, tx *sqlx.Tx, params repository.AppendTransactionParams) (*models.LedgerTransaction, error)
}

// StoreConfig bounds accepted order shapes.
type StoreConfig struct {
	MaxItemsPerOrder   int
	MaxQuantityPerItem int
}

// StoreService coordinates store purchases: it owns the atomic unit that
// locks stock, debits the student's Atoms and writes the order, so an order
// either fully commits or leaves no rows at all.
type StoreService struct {
	tx        storeTxProvider
	store     storeRepository
	ledger    orderLedger
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    StoreConfig
}

// NewStoreService constructs the service.
func NewStoreService(tx storeTxProvider, store storeRepository, ledger orderLedger, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, config StoreConfig) *StoreService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxItemsPerOrder <= 0 {
		config.MaxItemsPerOrder = 20
	}
	if config.MaxQuantityPerItem <= 0 {
		config.MaxQuantityPerItem = 50
	}
	return &StoreService{tx: tx, store: store, ledger: ledger, metrics: metrics, validator: validate, logger: logger, config: config}
}

// OrderItemRequest is one requested product line.
type OrderItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
}

// CreateOrderRequest purchases items against a student's Atom balance.
type CreateOrderRequest struct {
	StudentID string             `json:"student_id" validate:"required"`
	Items     []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

// CreateOrder validates stock and balance and performs the debit, all inside
// one database transaction. Oversell is impossible: the stock check and the
// decrement happen under the same product row locks.
func (s *StoreService) CreateOrder(ctx context.Context, req CreateOrderRequest, actorID string) (order *models.StoreOrder, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid order payload")
	}
	items, err := s.normalizeItems(req.Items)
	if err != nil {
		return nil, err
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open order transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	order = &models.StoreOrder{
		ID:            uuid.NewString(),
		StudentID:     req.StudentID,
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPaid,
		CreatedBy:     actorID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var total int64
	orderItems := make([]models.StoreOrderItem, 0, len(items))
	for _, item := range items {
		product, lockErr := s.store.LockProductTx(ctx, tx, item.ProductID)
		if lockErr != nil {
			if errors.Is(lockErr, sql.ErrNoRows) {
				err = appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("product %s not found", item.ProductID))
				return nil, err
			}
			err = appErrors.Wrap(lockErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock product")
			return nil, err
		}
		if !product.Active {
			err = appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("product %s is not for sale", product.ID))
			return nil, err
		}
		if product.StockQuantity < item.Quantity {
			s.metrics.CountOversellRejection()
			err = appErrors.Clone(appErrors.ErrInsufficientStock,
				fmt.Sprintf("product %s has %d in stock, %d requested", product.ID, product.StockQuantity, item.Quantity))
			return nil, err
		}
		total += product.PriceAtoms * item.Quantity
		orderItems = append(orderItems, models.StoreOrderItem{
			OrderID:        order.ID,
			ProductID:      product.ID,
			Quantity:       item.Quantity,
			UnitPriceAtoms: product.PriceAtoms,
			CreatedAt:      now,
		})
	}
	order.TotalAtoms = total

	if total > 0 {
		if _, err = s.ledger.AppendInTx(ctx, tx, repository.AppendTransactionParams{
			StudentID:     req.StudentID,
			Currency:      models.CurrencyAtoms,
			Amount:        -total,
			ReferenceType: models.ReferenceStorePurchase,
			ReferenceID:   order.ID,
			CreatedBy:     actorID,
			Description:   fmt.Sprintf("store order %s", order.ID),
		}); err != nil {
			if appErrors.Is(err, appErrors.ErrInsufficientBalance) {
				s.metrics.CountLedgerRejection(models.CurrencyAtoms)
			}
			return nil, err
		}
	}

	for i := range orderItems {
		item := orderItems[i]
		if err = s.store.AdjustStockTx(ctx, tx, item.ProductID, -item.Quantity); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decrement stock")
			return nil, err
		}
		if err = s.store.InsertMovementTx(ctx, tx, &models.InventoryMovement{
			ProductID:     item.ProductID,
			Quantity:      -item.Quantity,
			ReferenceType: models.MovementStorePurchase,
			ReferenceID:   order.ID,
			CreatedBy:     actorID,
			CreatedAt:     now,
		}); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record inventory movement")
			return nil, err
		}
	}

	if err = s.store.InsertOrderTx(ctx, tx, order); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create order")
		return nil, err
	}
	if err = s.store.InsertOrderItemsTx(ctx, tx, orderItems); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create order items")
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrConcurrencyConflict.Code, appErrors.ErrConcurrencyConflict.Status, "order transaction failed to commit")
		return nil, err
	}

	order.Items = orderItems
	s.metrics.CountLedgerTransaction(models.CurrencyAtoms, models.ReferenceStorePurchase)
	s.logger.Info("store order created",
		zap.String("order_id", order.ID),
		zap.String("student_id", req.StudentID),
		zap.Int64("total_atoms", total),
		zap.Int("items", len(orderItems)))
	return order, nil
}

// normalizeItems merges duplicate product lines and sorts by product id so
// concurrent orders always lock products in the same order.
func (s *StoreService) normalizeItems(items []OrderItemRequest) ([]OrderItemRequest, error) {
	if len(items) > s.config.MaxItemsPerOrder {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("order exceeds %d distinct items", s.config.MaxItemsPerOrder))
	}
	merged := make(map[string]int64, len(items))
	for _, item := range items {
		merged[item.ProductID] += item.Quantity
	}
	out := make([]OrderItemRequest, 0, len(merged))
	for productID, quantity := range merged {
		if quantity > int64(s.config.MaxQuantityPerItem) {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("product %s exceeds %d units per order", productID, s.config.MaxQuantityPerItem))
		}
		out = append(out, OrderItemRequest{ProductID: productID, Quantity: quantity})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

var orderTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:    {models.OrderStatusProcessing, models.OrderStatusCancelled},
	models.OrderStatusProcessing: {models.OrderStatusCompleted, models.OrderStatusDelivered, models.OrderStatusCancelled},
	models.OrderStatusCompleted:  {models.OrderStatusDelivered},
}

var paymentTransitions = map[models.PaymentStatus][]models.PaymentStatus{
	models.PaymentStatusPending: {models.PaymentStatusPaid, models.PaymentStatusCancelled},
	models.PaymentStatusPaid:    {models.PaymentStatusRefunded},
}

func transitionAllowed[T comparable](table map[T][]T, from, to T) bool {
	for _, next := range table[from] {
		if next == to {
			return true
		}
	}
	return false
}

// UpdateOrderStatus applies a fulfilment transition. Cancelling never
// reverses the ledger; refunds are explicit manual adjustments.
func (s *StoreService) UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) (*models.StoreOrder, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !transitionAllowed(orderTransitions, order.Status, status) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("order cannot move from %s to %s", order.Status, status))
	}
	moved, err := s.store.UpdateOrderStatus(ctx, orderID, order.Status, status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update order status")
	}
	if !moved {
		// a concurrent transition changed the order between read and write
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("order %s is no longer %s", orderID, order.Status))
	}
	order.Status = status
	return order, nil
}

// UpdatePaymentStatus applies a payment transition. Marking an order
// REFUNDED records intent only; the Atoms come back via a manual adjustment.
func (s *StoreService) UpdatePaymentStatus(ctx context.Context, orderID string, status models.PaymentStatus) (*models.StoreOrder, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !transitionAllowed(paymentTransitions, order.PaymentStatus, status) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("payment cannot move from %s to %s", order.PaymentStatus, status))
	}
	moved, err := s.store.UpdatePaymentStatus(ctx, orderID, order.PaymentStatus, status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update payment status")
	}
	if !moved {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("payment for order %s is no longer %s", orderID, order.PaymentStatus))
	}
	order.PaymentStatus = status
	return order, nil
}

// GetOrder fetches an order with items.
func (s *StoreService) GetOrder(ctx context.Context, id string) (*models.StoreOrder, error) {
	order, err := s.store.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("order %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load order")
	}
	return order, nil
}

// ListOrders returns orders with pagination.
func (s *StoreService) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.StoreOrder, *models.Pagination, error) {
	orders, total, err := s.store.ListOrders(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list orders")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return orders, models.NewPagination(page, size, total), nil
}

// UpsertProductRequest is the product create/update payload.
type UpsertProductRequest struct {
	Name          string `json:"name" validate:"required"`
	Description   string `json:"description"`
	PriceAtoms    int64  `json:"price_atoms" validate:"gte=0"`
	StockQuantity int64  `json:"stock_quantity" validate:"gte=0"`
	Active        *bool  `json:"active"`
}

// CreateProduct adds a catalog product.
func (s *StoreService) CreateProduct(ctx context.Context, req UpsertProductRequest) (*models.StoreProduct, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid product payload")
	}
	product := &models.StoreProduct{
		Name:          req.Name,
		Description:   req.Description,
		PriceAtoms:    req.PriceAtoms,
		StockQuantity: req.StockQuantity,
		Active:        true,
	}
	if req.Active != nil {
		product.Active = *req.Active
	}
	if err := s.store.CreateProduct(ctx, product); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create product")
	}
	return product, nil
}

// UpdateProduct edits catalog fields. Stock is adjusted through Restock and
// orders, never edited directly.
func (s *StoreService) UpdateProduct(ctx context.Context, id string, req UpsertProductRequest) (*models.StoreProduct, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid product payload")
	}
	product, err := s.store.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("product %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load product")
	}
	product.Name = req.Name
	product.Description = req.Description
	product.PriceAtoms = req.PriceAtoms
	if req.Active != nil {
		product.Active = *req.Active
	}
	if err := s.store.UpdateProduct(ctx, product); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update product")
	}
	return product, nil
}

// ListProducts returns the catalog with pagination.
func (s *StoreService) ListProducts(ctx context.Context, filter models.ProductFilter) ([]models.StoreProduct, *models.Pagination, error) {
	products, total, err := s.store.ListProducts(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list products")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return products, models.NewPagination(page, size, total), nil
}

// Restock adds stock with an audit movement.
func (s *StoreService) Restock(ctx context.Context, productID string, quantity int64, actorID string) (*models.InventoryMovement, error) {
	if quantity <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "restock quantity must be positive")
	}
	movement, err := s.store.Restock(ctx, productID, quantity, actorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("product %s not found", productID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to restock product")
	}
	return movement, nil
}

// ListMovements returns a product's stock history.
func (s *StoreService) ListMovements(ctx context.Context, productID string, limit int) ([]models.InventoryMovement, error) {
	movements, err := s.store.ListMovements(ctx, productID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list movements")
	}
	return movements, nil
}
