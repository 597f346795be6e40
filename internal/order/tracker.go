// Package order реализует трекер заказов: нормализованное представление заказов
// пользователя и смену их статусов.
package order

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-client/internal/apperr"
	"github.com/mmeshcher/storefront-client/internal/model"
)

// StatusAll обозначает отсутствие фильтра по статусу.
const StatusAll = "all"

// Remote описывает шлюз удалённого хранилища.
type Remote interface {
	Request(ctx context.Context, method, path string, body, out any) error
}

// Session описывает поставщика сессии.
type Session interface {
	HasCredential() bool
}

// Scope задаёт, чьи заказы запрашиваются.
type Scope int

const (
	// ScopeUser запрашивает заказы текущего пользователя.
	ScopeUser Scope = iota
	// ScopeAdmin запрашивает заказы всех пользователей.
	ScopeAdmin
)

// Query описывает параметры FetchAll.
type Query struct {
	Scope  Scope
	Status string
}

type statusRequest struct {
	Status string `json:"status"`
}

// Tracker владеет коллекцией заказов в памяти.
type Tracker struct {
	remote  Remote
	session Session
	logger  *zap.Logger
	now     func() time.Time

	inflight atomic.Int32

	mu      sync.RWMutex
	orders  []model.Order
	lastErr error
	// generation растёт при каждом Reset; ответы запросов, начатых до сброса,
	// не применяются.
	generation uint64
}

// NewTracker создаёт трекер заказов.
func NewTracker(remote Remote, session Session, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		remote:  remote,
		session: session,
		logger:  logger,
		now:     time.Now,
	}
}

// FetchAll загружает список заказов и целиком заменяет коллекцию.
// При ошибке прежняя коллекция сохраняется.
func (t *Tracker) FetchAll(ctx context.Context, q Query) ([]model.Order, error) {
	t.inflight.Add(1)
	defer t.inflight.Add(-1)

	status, err := parseFilter(q.Status)
	if err != nil {
		return nil, err
	}
	if err := t.requireCredential(); err != nil {
		return nil, err
	}

	path := "/orders"
	if q.Scope == ScopeAdmin {
		path = "/orders/all?status=" + url.QueryEscape(status)
	}

	gen := t.currentGeneration()
	var raw json.RawMessage
	if err := t.remote.Request(ctx, http.MethodGet, path, nil, &raw); err != nil {
		t.logger.Warn("failed to fetch orders", zap.String("path", path), zap.Error(err))
		t.setError(gen, err)
		return nil, err
	}

	records, err := decodeList(raw)
	if err != nil {
		err = fmt.Errorf("%w: %v", apperr.ErrRemoteUnavailable, err)
		t.setError(gen, err)
		return nil, err
	}

	now := t.now()
	orders := make([]model.Order, 0, len(records))
	for _, r := range records {
		orders = append(orders, Normalize(r, now))
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.generation != gen {
		return nil, t.superseded("orders")
	}
	t.orders = orders
	t.lastErr = nil

	return cloneOrders(orders), nil
}

// FetchOne загружает один заказ и обновляет его в коллекции.
func (t *Tracker) FetchOne(ctx context.Context, id int64) (model.Order, error) {
	t.inflight.Add(1)
	defer t.inflight.Add(-1)

	if err := t.requireCredential(); err != nil {
		return model.Order{}, err
	}

	gen := t.currentGeneration()
	var raw json.RawMessage
	if err := t.remote.Request(ctx, http.MethodGet, orderPath(id), nil, &raw); err != nil {
		t.logger.Warn("failed to fetch order", zap.Int64("orderID", id), zap.Error(err))
		t.setError(gen, err)
		return model.Order{}, err
	}

	record, err := decodeRecord(raw, "order")
	if err != nil || record == nil {
		err = fmt.Errorf("%w: order %d: unexpected response", apperr.ErrRemoteUnavailable, id)
		t.setError(gen, err)
		return model.Order{}, err
	}

	o := Normalize(record, t.now())
	if o.ID == 0 {
		o.ID = id
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.generation != gen {
		return model.Order{}, t.superseded("order")
	}
	t.upsertLocked(o)
	t.lastErr = nil

	return o.Clone(), nil
}

// UpdateStatus меняет статус заказа. Статус проверяется до любого ввода-вывода.
// Если ответ содержит статус, побеждает значение сервера, иначе применяется
// запрошенное. Нечитаемое тело успешного ответа означает, что статус не
// возвращён. В памяти меняется только статус.
func (t *Tracker) UpdateStatus(ctx context.Context, id int64, status string) (model.Order, error) {
	t.inflight.Add(1)
	defer t.inflight.Add(-1)

	requested, ok := model.ParseOrderStatus(status)
	if !ok {
		return model.Order{}, fmt.Errorf("%w: %q", apperr.ErrInvalidStatus, status)
	}
	if err := t.requireCredential(); err != nil {
		return model.Order{}, err
	}

	gen := t.currentGeneration()
	var raw []byte
	body := statusRequest{Status: requested.DisplayName()}
	if err := t.remote.Request(ctx, http.MethodPut, orderPath(id)+"/status", body, &raw); err != nil {
		t.logger.Warn("failed to update order status",
			zap.Int64("orderID", id), zap.String("status", string(requested)), zap.Error(err))
		t.setError(gen, err)
		return model.Order{}, err
	}

	applied := requested
	record, err := decodeRecord(raw, "order")
	if err != nil {
		t.logger.Warn("ignoring unreadable status update response", zap.Int64("orderID", id), zap.Error(err))
		record = nil
	}
	if st, ok := model.ParseOrderStatus(stringOf(record, "status")); ok {
		applied = st
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.generation != gen {
		return model.Order{ID: id, Status: applied}, nil
	}
	t.lastErr = nil

	for i := range t.orders {
		if t.orders[i].ID == id {
			t.orders[i].Status = applied
			return t.orders[i].Clone(), nil
		}
	}

	if record != nil && intOf(record, idKeys...) == id {
		o := Normalize(record, t.now())
		o.Status = applied
		t.orders = append(t.orders, o)
		return o.Clone(), nil
	}
	return model.Order{ID: id, Status: applied}, nil
}

// Invoice загружает счёт по заказу.
func (t *Tracker) Invoice(ctx context.Context, id int64) (model.Invoice, error) {
	t.inflight.Add(1)
	defer t.inflight.Add(-1)

	if err := t.requireCredential(); err != nil {
		return model.Invoice{}, err
	}

	var raw json.RawMessage
	if err := t.remote.Request(ctx, http.MethodGet, orderPath(id)+"/invoice", nil, &raw); err != nil {
		t.logger.Warn("failed to fetch invoice", zap.Int64("orderID", id), zap.Error(err))
		return model.Invoice{}, err
	}

	record, err := decodeRecord(raw, "invoice")
	if err != nil || record == nil {
		return model.Invoice{}, fmt.Errorf("%w: invoice for order %d: unexpected response", apperr.ErrRemoteUnavailable, id)
	}
	return NormalizeInvoice(record, id), nil
}

// CountByStatus считает заказы по статусам за один проход по коллекции.
func (t *Tracker) CountByStatus() model.StatusCounts {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var c model.StatusCounts
	for _, o := range t.orders {
		c.Total++
		switch o.Status {
		case model.OrderStatusPending:
			c.Pending++
		case model.OrderStatusProcessing:
			c.Processing++
		case model.OrderStatusShipped:
			c.Shipped++
		case model.OrderStatusDelivered:
			c.Delivered++
		}
	}
	return c
}

// FilterByStatus возвращает заказы с указанным статусом; "all" возвращает все.
func (t *Tracker) FilterByStatus(status string) ([]model.Order, error) {
	filter, err := parseFilter(status)
	if err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]model.Order, 0, len(t.orders))
	for _, o := range t.orders {
		if filter == StatusAll || string(o.Status) == filter {
			out = append(out, o.Clone())
		}
	}
	return out, nil
}

// Orders возвращает копию коллекции.
func (t *Tracker) Orders() []model.Order {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return cloneOrders(t.orders)
}

// Order возвращает заказ из коллекции.
func (t *Tracker) Order(id int64) (model.Order, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, o := range t.orders {
		if o.ID == id {
			return o.Clone(), true
		}
	}
	return model.Order{}, false
}

// LastError возвращает ошибку последней операции или nil.
func (t *Tracker) LastError() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastErr
}

// Loading сообщает, выполняется ли сейчас запрос.
func (t *Tracker) Loading() bool {
	return t.inflight.Load() > 0
}

// Reset очищает коллекцию, например после смены пользователя. Запросы,
// начатые до сброса, коллекцию уже не изменят.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.orders = nil
	t.lastErr = nil
	t.generation++
	t.mu.Unlock()
}

func (t *Tracker) requireCredential() error {
	if t.session.HasCredential() {
		return nil
	}
	err := fmt.Errorf("%w: orders need a signed-in user", apperr.ErrAuthRequired)
	t.setError(t.currentGeneration(), err)
	return err
}

func (t *Tracker) currentGeneration() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.generation
}

// setError запоминает ошибку, если коллекция не сбрасывалась с начала запроса.
func (t *Tracker) setError(gen uint64, err error) {
	t.mu.Lock()
	if t.generation == gen {
		t.lastErr = err
	}
	t.mu.Unlock()
}

// superseded вызывается под блокировкой для ответа, пришедшего после Reset.
func (t *Tracker) superseded(what string) error {
	t.logger.Debug("discarding response started before reset", zap.String("what", what))
	return fmt.Errorf("%w: session changed while loading %s", apperr.ErrAuthRequired, what)
}

func (t *Tracker) upsertLocked(o model.Order) {
	for i := range t.orders {
		if t.orders[i].ID == o.ID {
			t.orders[i] = o
			return
		}
	}
	t.orders = append(t.orders, o)
}

func parseFilter(status string) (string, error) {
	if status == "" || status == StatusAll {
		return StatusAll, nil
	}
	st, ok := model.ParseOrderStatus(status)
	if !ok {
		return "", fmt.Errorf("%w: %q", apperr.ErrInvalidStatus, status)
	}
	return string(st), nil
}

func orderPath(id int64) string {
	return "/orders/" + strconv.FormatInt(id, 10)
}

func cloneOrders(orders []model.Order) []model.Order {
	out := make([]model.Order, len(orders))
	for i, o := range orders {
		out[i] = o.Clone()
	}
	return out
}

func decodeJSON(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

// decodeList принимает голый список или обёртку {"orders": [...]}.
func decodeList(raw json.RawMessage) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var list []map[string]any
		if err := decodeJSON(trimmed, &list); err != nil {
			return nil, fmt.Errorf("decode orders: %w", err)
		}
		return list, nil
	}

	var wrapper struct {
		Orders []map[string]any `json:"orders"`
	}
	if err := decodeJSON(trimmed, &wrapper); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	if wrapper.Orders == nil {
		return nil, fmt.Errorf("decode orders: unexpected response shape")
	}
	return wrapper.Orders, nil
}

// decodeRecord разбирает одиночную запись, возможно обёрнутую в {wrapper: {...}}.
// Пустой ответ даёт nil без ошибки.
func decodeRecord(raw json.RawMessage, wrapper string) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var record map[string]any
	if err := decodeJSON(trimmed, &record); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if inner, ok := record[wrapper].(map[string]any); ok {
		return inner, nil
	}
	return record, nil
}
