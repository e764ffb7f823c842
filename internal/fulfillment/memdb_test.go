package fulfillment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	kafkago "github.com/segmentio/kafka-go"
)

var errNoSQL = errors.New("memdb: raw SQL not supported")

type memState struct {
	products    map[int64]orders.Product
	orders      map[int64]orders.Order
	lines       map[int64][]orders.OrderLine
	payments    map[int64]orders.Payment
	nextOrderID int64
}

func newMemState() *memState {
	return &memState{
		products: map[int64]orders.Product{},
		orders:   map[int64]orders.Order{},
		lines:    map[int64][]orders.OrderLine{},
		payments: map[int64]orders.Payment{},
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.lines {
		c.lines[k] = append([]orders.OrderLine(nil), v...)
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	c.nextOrderID = s.nextOrderID
	return c
}

// memDB serializes transactions behind one mutex and applies a transaction's
// working copy only on commit. It implements DB, Ledger and Repository.
type memDB struct {
	mu        sync.Mutex
	state     *memState
	txCount   int
	commits   int
	rollbacks int
	lockLog   [][]int64 // LockAndPrice order per transaction

	fail      map[string]error                    // op name -> injected error
	afterLock func(st *memState, productID int64) // runs inside the tx after each lock
}

type memTx struct {
	st    *memState
	locks []int64
}

func (*memTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errNoSQL
}
func (*memTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, errNoSQL }
func (*memTx) QueryRow(context.Context, string, ...any) pgx.Row      { return nil }

func newMemDB() *memDB {
	return &memDB{state: newMemState(), fail: map[string]error{}}
}

func (m *memDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errNoSQL
}
func (m *memDB) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, errNoSQL }
func (m *memDB) QueryRow(context.Context, string, ...any) pgx.Row      { return nil }

func (m *memDB) InTx(ctx context.Context, fn func(q orders.Querier) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCount++
	tx := &memTx{st: m.state.clone()}
	err := fn(tx)
	if len(tx.locks) > 0 {
		m.lockLog = append(m.lockLog, tx.locks)
	}
	if err != nil {
		m.rollbacks++
		return err
	}
	m.state = tx.st
	m.commits++
	return nil
}

// read runs f against the state visible to q. Pool-level reads take the lock.
func (m *memDB) read(q orders.Querier, f func(st *memState)) {
	if tx, ok := q.(*memTx); ok {
		f(tx.st)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f(m.state)
}

func (m *memDB) injected(op string) error { return m.fail[op] }

// ---- Ledger ----

func (m *memDB) LockAndPrice(_ context.Context, q orders.Querier, productID int64, qty int) (decimal.Decimal, error) {
	tx := q.(*memTx)
	tx.locks = append(tx.locks, productID)
	if err := m.injected("lock"); err != nil {
		return decimal.Zero, err
	}
	p, ok := tx.st.products[productID]
	if !ok {
		return decimal.Zero, orders.ProductNotFound(productID)
	}
	if p.Stock < qty {
		return decimal.Zero, orders.InsufficientStock(productID)
	}
	if m.afterLock != nil {
		m.afterLock(tx.st, productID)
	}
	return p.Price, nil
}

func (m *memDB) Decrement(_ context.Context, q orders.Querier, productID int64, qty int) error {
	tx := q.(*memTx)
	if err := m.injected("decrement"); err != nil {
		return err
	}
	p, ok := tx.st.products[productID]
	if !ok || p.Stock < qty {
		return orders.InsufficientStock(productID)
	}
	p.Stock -= qty
	tx.st.products[productID] = p
	return nil
}

func (m *memDB) Restore(_ context.Context, q orders.Querier, productID int64, qty int) error {
	tx := q.(*memTx)
	if err := m.injected("restore"); err != nil {
		return err
	}
	p, ok := tx.st.products[productID]
	if !ok {
		return orders.ProductNotFound(productID)
	}
	p.Stock += qty
	tx.st.products[productID] = p
	return nil
}

// ---- Repository ----

func (m *memDB) InsertOrder(_ context.Context, q orders.Querier, userID int64, status orders.Status, total decimal.Decimal) (orders.Order, error) {
	tx := q.(*memTx)
	if err := m.injected("insert_order"); err != nil {
		return orders.Order{}, err
	}
	tx.st.nextOrderID++
	o := orders.Order{ID: tx.st.nextOrderID, UserID: userID, Status: status, TotalAmount: total, CreatedAt: time.Now().UTC()}
	tx.st.orders[o.ID] = o
	return o, nil
}

func (m *memDB) GetOrder(_ context.Context, q orders.Querier, orderID int64) (orders.Order, error) {
	var (
		o  orders.Order
		ok bool
	)
	m.read(q, func(st *memState) { o, ok = st.orders[orderID] })
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return o, nil
}

func (m *memDB) LockOrder(ctx context.Context, q orders.Querier, orderID int64) (orders.Order, error) {
	return m.GetOrder(ctx, q, orderID)
}

func (m *memDB) UpdateStatus(_ context.Context, q orders.Querier, orderID int64, status orders.Status) error {
	tx := q.(*memTx)
	if err := m.injected("update_status"); err != nil {
		return err
	}
	o, ok := tx.st.orders[orderID]
	if !ok {
		return orders.ErrOrderNotFound
	}
	o.Status = status
	tx.st.orders[orderID] = o
	return nil
}

func (m *memDB) InsertLine(_ context.Context, q orders.Querier, l orders.OrderLine) error {
	tx := q.(*memTx)
	if err := m.injected("insert_line"); err != nil {
		return err
	}
	for _, existing := range tx.st.lines[l.OrderID] {
		if existing.ProductID == l.ProductID {
			return orders.Infra("insert order item", errors.New("duplicate key"))
		}
	}
	tx.st.lines[l.OrderID] = append(tx.st.lines[l.OrderID], l)
	return nil
}

func (m *memDB) ListLines(_ context.Context, q orders.Querier, orderID int64) ([]orders.OrderLine, error) {
	var out []orders.OrderLine
	m.read(q, func(st *memState) { out = append([]orders.OrderLine{}, st.lines[orderID]...) })
	return out, nil
}

func (m *memDB) InsertPayment(_ context.Context, q orders.Querier, p orders.Payment) error {
	tx := q.(*memTx)
	if err := m.injected("insert_payment"); err != nil {
		return err
	}
	tx.st.payments[p.OrderID] = p
	return nil
}

// ---- test helpers ----

func (m *memDB) seedProduct(id int64, name, price string, stock int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.products[id] = orders.Product{ID: id, Name: name, Price: decimal.RequireFromString(price), Stock: stock}
}

// seedCreatedOrder stores a CREATED order whose stock is already reserved.
func (m *memDB) seedCreatedOrder(userID int64, lines ...orders.OrderLine) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.nextOrderID++
	id := m.state.nextOrderID
	total := decimal.Zero
	for i := range lines {
		lines[i].OrderID = id
		total = total.Add(lines[i].Subtotal())
		p := m.state.products[lines[i].ProductID]
		p.Stock -= lines[i].Quantity
		m.state.products[lines[i].ProductID] = p
	}
	m.state.orders[id] = orders.Order{ID: id, UserID: userID, Status: orders.StatusCreated, TotalAmount: total, CreatedAt: time.Now().UTC()}
	m.state.lines[id] = lines
	return id
}

func (m *memDB) snapshot() *memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

func (m *memDB) stock(productID int64) int {
	return m.snapshot().products[productID].Stock
}

// ---- collaborators ----

type fakeCatalog struct {
	mu          sync.Mutex
	db          *memDB
	invalidated int
}

func (c *fakeCatalog) ListProducts(context.Context) ([]orders.Product, error) {
	st := c.db.snapshot()
	out := make([]orders.Product, 0, len(st.products))
	for _, p := range st.products {
		out = append(out, p)
	}
	return out, nil
}

func (c *fakeCatalog) Invalidate(context.Context) {
	c.mu.Lock()
	c.invalidated++
	c.mu.Unlock()
}

type published struct {
	key     string
	value   []byte
	headers []kafkago.Header
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *fakePublisher) Publish(key, value []byte, headers ...kafkago.Header) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{key: string(key), value: value, headers: headers})
}

func (p *fakePublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.msgs...)
}

type fakeViews struct {
	mu      sync.Mutex
	views   map[int64]OrderView
	hits    int
	dropped []int64
}

func newFakeViews() *fakeViews { return &fakeViews{views: map[int64]OrderView{}} }

func (f *fakeViews) Get(_ context.Context, id int64) (OrderView, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.views[id]
	if ok {
		f.hits++
	}
	return v, ok
}

func (f *fakeViews) Set(_ context.Context, v OrderView) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.views[v.Order.ID] = v
}

func (f *fakeViews) Drop(_ context.Context, id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.views, id)
	f.dropped = append(f.dropped, id)
}

type chargerFunc func(ctx context.Context, orderID int64, amount decimal.Decimal) (orders.Payment, error)

func (f chargerFunc) Charge(ctx context.Context, orderID int64, amount decimal.Decimal) (orders.Payment, error) {
	return f(ctx, orderID, amount)
}
