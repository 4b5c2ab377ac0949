// Package memstore is an in-process store.Repository. Transactions are
// serialised and run against a copy of the data that replaces the live
// state only when the transaction function succeeds.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"
)

type data struct {
	seq       int64
	products  map[int64]models.Product
	orders    map[int64]models.Order
	items     map[int64][]models.OrderItem
	payments  map[int64]models.Payment
	proofs    map[int64]models.PaymentProof
	histories map[int64][]models.OrderStatusHistory
	outbox    []models.OutboxRecord
}

func newData() *data {
	return &data{
		products:  map[int64]models.Product{},
		orders:    map[int64]models.Order{},
		items:     map[int64][]models.OrderItem{},
		payments:  map[int64]models.Payment{},
		proofs:    map[int64]models.PaymentProof{},
		histories: map[int64][]models.OrderStatusHistory{},
	}
}

func (d *data) clone() *data {
	c := newData()
	c.seq = d.seq
	for k, v := range d.products {
		c.products[k] = v
	}
	for k, v := range d.orders {
		c.orders[k] = v
	}
	for k, v := range d.items {
		c.items[k] = append([]models.OrderItem(nil), v...)
	}
	for k, v := range d.payments {
		c.payments[k] = v
	}
	for k, v := range d.proofs {
		c.proofs[k] = v
	}
	for k, v := range d.histories {
		c.histories[k] = append([]models.OrderStatusHistory(nil), v...)
	}
	c.outbox = append([]models.OutboxRecord(nil), d.outbox...)
	return c
}

func (d *data) nextID() int64 {
	d.seq++
	return d.seq
}

// Store is an in-memory store.UnitOfWork
type Store struct {
	mu   sync.RWMutex
	data *data
}

var _ store.UnitOfWork = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{data: newData()}
}

// WithTx runs fn against a private copy of the data and publishes the copy
// only if fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(repo store.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(&view{d: work}); err != nil {
		return err
	}
	s.data = work
	return nil
}

// View runs fn against the live data; fn must not write.
func (s *Store) View(ctx context.Context, fn func(repo store.Repository) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&view{d: s.data, readOnly: true})
}

// AddProduct seeds a catalog product and returns its id
func (s *Store) AddProduct(p models.Product) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.data.nextID()
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.data.products[p.ID] = p
	return p.ID
}

// Stock returns the current stock of a product
func (s *Store) Stock(productID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.products[productID].Stock
}

// Outbox returns every recorded outbox entry
func (s *Store) Outbox() []models.OutboxRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.OutboxRecord(nil), s.data.outbox...)
}

type view struct {
	d        *data
	readOnly bool
}

var _ store.Repository = (*view)(nil)

func (v *view) write() error {
	if v.readOnly {
		return fmt.Errorf("memstore: write in read-only view")
	}
	return nil
}

func notFound(what string, id int64) error {
	return fmt.Errorf("%s %d: %w", what, id, store.ErrNotFound)
}

func (v *view) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	out := []models.Product{}
	seen := map[int64]bool{}
	for _, id := range ids {
		if p, ok := v.d.products[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, p)
		}
	}
	return out, nil
}

func (v *view) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	p, ok := v.d.products[id]
	if !ok {
		return nil, notFound("product", id)
	}
	return &p, nil
}

func (v *view) GetProducts(ctx context.Context) ([]models.Product, error) {
	out := make([]models.Product, 0, len(v.d.products))
	for _, p := range v.d.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *view) TryDecrementStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	if err := v.write(); err != nil {
		return false, err
	}
	p, ok := v.d.products[productID]
	if !ok || p.Stock < quantity {
		return false, nil
	}
	p.Stock -= quantity
	p.UpdatedAt = time.Now()
	v.d.products[productID] = p
	return true, nil
}

func (v *view) IncrementStock(ctx context.Context, productID int64, quantity int) error {
	if err := v.write(); err != nil {
		return err
	}
	p, ok := v.d.products[productID]
	if !ok {
		return nil
	}
	p.Stock += quantity
	p.UpdatedAt = time.Now()
	v.d.products[productID] = p
	return nil
}

func (v *view) CreateOrder(ctx context.Context, order *models.Order) error {
	if err := v.write(); err != nil {
		return err
	}
	if order.IdempotencyKey != nil {
		for _, o := range v.d.orders {
			if o.UserID == order.UserID && o.IdempotencyKey != nil && *o.IdempotencyKey == *order.IdempotencyKey {
				return fmt.Errorf("memstore: duplicate idempotency key %q", *order.IdempotencyKey)
			}
		}
	}
	now := time.Now()
	order.ID = v.d.nextID()
	order.CreatedAt, order.UpdatedAt = now, now

	row := *order
	row.Items, row.Payment = nil, nil
	v.d.orders[order.ID] = row
	return nil
}

func (v *view) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	o, ok := v.d.orders[id]
	if !ok {
		return nil, notFound("order", id)
	}
	return &o, nil
}

func (v *view) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	return v.GetOrderByID(ctx, id)
}

func (v *view) GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error) {
	for _, o := range v.d.orders {
		if o.UserID == userID && o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			o := o
			return &o, nil
		}
	}
	return nil, nil
}

func (v *view) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	out := []models.Order{}
	for _, o := range v.d.orders {
		if filter.UserID != nil && o.UserID != *filter.UserID {
			continue
		}
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (v *view) UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error {
	if err := v.write(); err != nil {
		return err
	}
	o, ok := v.d.orders[orderID]
	if !ok {
		return notFound("order", orderID)
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	v.d.orders[orderID] = o
	return nil
}

func (v *view) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	if err := v.write(); err != nil {
		return err
	}
	if _, ok := v.d.orders[item.OrderID]; !ok {
		return notFound("order", item.OrderID)
	}
	if _, ok := v.d.products[item.ProductID]; !ok {
		return notFound("product", item.ProductID)
	}
	item.ID = v.d.nextID()
	v.d.items[item.OrderID] = append(v.d.items[item.OrderID], *item)
	return nil
}

func (v *view) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	return append([]models.OrderItem{}, v.d.items[orderID]...), nil
}

func (v *view) AppendStatusHistory(ctx context.Context, entry *models.OrderStatusHistory) error {
	if err := v.write(); err != nil {
		return err
	}
	if _, ok := v.d.orders[entry.OrderID]; !ok {
		return notFound("order", entry.OrderID)
	}
	entry.ID = v.d.nextID()
	entry.CreatedAt = time.Now()
	v.d.histories[entry.OrderID] = append(v.d.histories[entry.OrderID], *entry)
	return nil
}

func (v *view) GetStatusHistory(ctx context.Context, orderID int64) ([]models.OrderStatusHistory, error) {
	return append([]models.OrderStatusHistory{}, v.d.histories[orderID]...), nil
}

func (v *view) CreatePayment(ctx context.Context, payment *models.Payment) error {
	if err := v.write(); err != nil {
		return err
	}
	if _, ok := v.d.orders[payment.OrderID]; !ok {
		return notFound("order", payment.OrderID)
	}
	for _, p := range v.d.payments {
		if p.OrderID == payment.OrderID {
			return fmt.Errorf("memstore: payment for order %d already exists", payment.OrderID)
		}
	}
	now := time.Now()
	payment.ID = v.d.nextID()
	payment.CreatedAt, payment.UpdatedAt = now, now
	v.d.payments[payment.ID] = *payment
	return nil
}

func (v *view) GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error) {
	p, ok := v.d.payments[id]
	if !ok {
		return nil, notFound("payment", id)
	}
	return &p, nil
}

func (v *view) GetPaymentForUpdate(ctx context.Context, id int64) (*models.Payment, error) {
	return v.GetPaymentByID(ctx, id)
}

func (v *view) GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error) {
	for _, p := range v.d.payments {
		if p.OrderID == orderID {
			p := p
			return &p, nil
		}
	}
	return nil, notFound("payment for order", orderID)
}

func (v *view) ListPayments(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, error) {
	out := []models.Payment{}
	for _, p := range v.d.payments {
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (v *view) UpdatePayment(ctx context.Context, payment *models.Payment) error {
	if err := v.write(); err != nil {
		return err
	}
	if _, ok := v.d.payments[payment.ID]; !ok {
		return notFound("payment", payment.ID)
	}
	payment.UpdatedAt = time.Now()
	v.d.payments[payment.ID] = *payment
	return nil
}

func (v *view) SavePaymentProof(ctx context.Context, proof *models.PaymentProof) error {
	if err := v.write(); err != nil {
		return err
	}
	proof.CreatedAt = time.Now()
	stored := *proof
	stored.Data = append([]byte(nil), proof.Data...)
	v.d.proofs[proof.PaymentID] = stored
	return nil
}

func (v *view) GetPaymentProof(ctx context.Context, paymentID int64) (*models.PaymentProof, error) {
	p, ok := v.d.proofs[paymentID]
	if !ok {
		return nil, notFound("proof for payment", paymentID)
	}
	return &p, nil
}

func (v *view) InsertOutbox(ctx context.Context, record *models.OutboxRecord) error {
	if err := v.write(); err != nil {
		return err
	}
	record.ID = v.d.nextID()
	record.CreatedAt = time.Now()
	v.d.outbox = append(v.d.outbox, *record)
	return nil
}

func (v *view) FetchPendingOutbox(ctx context.Context, limit int) ([]models.OutboxRecord, error) {
	out := []models.OutboxRecord{}
	for _, r := range v.d.outbox {
		if r.SentAt == nil {
			out = append(out, r)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (v *view) MarkOutboxSent(ctx context.Context, id int64) error {
	if err := v.write(); err != nil {
		return err
	}
	for i := range v.d.outbox {
		if v.d.outbox[i].ID == id {
			now := time.Now()
			v.d.outbox[i].SentAt = &now
			return nil
		}
	}
	return nil
}
