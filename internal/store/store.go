package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ErrNotFound is returned when a looked-up row does not exist
var ErrNotFound = errors.New("not found")

// Repository is the set of queries available to the workflows, either
// inside a unit of work or against the plain connection pool.
type Repository interface {
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetProducts(ctx context.Context) ([]models.Product, error)
	TryDecrementStock(ctx context.Context, productID int64, quantity int) (bool, error)
	IncrementStock(ctx context.Context, productID int64, quantity int) error

	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error)
	ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error
	CreateOrderItem(ctx context.Context, item *models.OrderItem) error
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)

	AppendStatusHistory(ctx context.Context, entry *models.OrderStatusHistory) error
	GetStatusHistory(ctx context.Context, orderID int64) ([]models.OrderStatusHistory, error)

	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error)
	GetPaymentForUpdate(ctx context.Context, id int64) (*models.Payment, error)
	GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error)
	ListPayments(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, error)
	UpdatePayment(ctx context.Context, payment *models.Payment) error
	SavePaymentProof(ctx context.Context, proof *models.PaymentProof) error
	GetPaymentProof(ctx context.Context, paymentID int64) (*models.PaymentProof, error)

	InsertOutbox(ctx context.Context, record *models.OutboxRecord) error
	FetchPendingOutbox(ctx context.Context, limit int) ([]models.OutboxRecord, error)
	MarkOutboxSent(ctx context.Context, id int64) error
}

// UnitOfWork runs workflows against a Repository. WithTx commits only when fn
// returns nil; View is for reads that need no atomicity.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(repo Repository) error) error
	View(ctx context.Context, fn func(repo Repository) error) error
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx
type queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

type Store struct {
	db *sqlx.DB
	q  queryer
}

var (
	_ Repository = (*Store)(nil)
	_ UnitOfWork = (*Store)(nil)
)

// PoolConfig sizes the connection pool
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewStore creates a new database store
func NewStore(databaseURL string, pool PoolConfig) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return New(db), nil
}

// New wraps an existing connection pool
func New(db *sqlx.DB) *Store {
	return &Store{db: db, q: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx runs fn inside a database transaction. Any error returned by fn,
// domain or infrastructure, rolls the whole transaction back.
func (s *Store) WithTx(ctx context.Context, fn func(repo Repository) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Store{db: s.db, q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// View runs fn against the connection pool
func (s *Store) View(ctx context.Context, fn func(repo Repository) error) error {
	return fn(s)
}

func notFound(err error, what string, id interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %v: %w", what, id, ErrNotFound)
	}
	return err
}
