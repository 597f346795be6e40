package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-client/internal/apperr"
	"github.com/mmeshcher/storefront-client/internal/model"
	"github.com/mmeshcher/storefront-client/internal/order"
	"github.com/mmeshcher/storefront-client/internal/service"
)

type stubService struct {
	sessionInfo service.SessionInfo
	loginToken  string
	loginErr    error

	cartState service.CartState
	cartErr   error

	addedProduct  model.Product
	addedQuantity int
	setProductID  int64
	setQuantity   int
	removedID     int64
	cartCalls     int

	ordersResp  []model.Order
	ordersErr   error
	ordersScope order.Scope
	ordersQuery string

	orderResp model.Order
	orderErr  error

	updatedStatus string
	updateCalls   int

	countsResp model.StatusCounts

	invoiceResp model.Invoice
	invoiceErr  error
}

func (s *stubService) Session() service.SessionInfo {
	return s.sessionInfo
}

func (s *stubService) Login(ctx context.Context, token string, userID int64) (service.SessionInfo, error) {
	s.loginToken = token
	if s.loginErr != nil {
		return service.SessionInfo{}, s.loginErr
	}
	return service.SessionInfo{Authenticated: true, UserID: userID, Mode: model.CartModeAuthenticated}, nil
}

func (s *stubService) Logout(ctx context.Context) (service.SessionInfo, error) {
	return service.SessionInfo{Mode: model.CartModeGuest}, nil
}

func (s *stubService) CartState() service.CartState {
	return s.cartState
}

func (s *stubService) ReloadCart(ctx context.Context) (service.CartState, error) {
	s.cartCalls++
	return s.cartState, s.cartErr
}

func (s *stubService) AddToCart(ctx context.Context, product model.Product, quantity int) (service.CartState, error) {
	s.cartCalls++
	s.addedProduct = product
	s.addedQuantity = quantity
	return s.cartState, s.cartErr
}

func (s *stubService) SetCartQuantity(ctx context.Context, productID int64, quantity int) (service.CartState, error) {
	s.cartCalls++
	s.setProductID = productID
	s.setQuantity = quantity
	return s.cartState, s.cartErr
}

func (s *stubService) RemoveFromCart(ctx context.Context, productID int64) (service.CartState, error) {
	s.cartCalls++
	s.removedID = productID
	return s.cartState, s.cartErr
}

func (s *stubService) ClearCart(ctx context.Context) (service.CartState, error) {
	s.cartCalls++
	return s.cartState, s.cartErr
}

func (s *stubService) Orders(ctx context.Context, scope order.Scope, status string) ([]model.Order, error) {
	s.ordersScope = scope
	s.ordersQuery = status
	return s.ordersResp, s.ordersErr
}

func (s *stubService) Order(ctx context.Context, id int64) (model.Order, error) {
	return s.orderResp, s.orderErr
}

func (s *stubService) UpdateOrderStatus(ctx context.Context, id int64, status string) (model.Order, error) {
	s.updateCalls++
	s.updatedStatus = status
	st, _ := model.ParseOrderStatus(status)
	return model.Order{ID: id, Status: st}, nil
}

func (s *stubService) OrderCounts() model.StatusCounts {
	return s.countsResp
}

func (s *stubService) Invoice(ctx context.Context, id int64) (model.Invoice, error) {
	return s.invoiceResp, s.invoiceErr
}

func newTestRouter(t *testing.T, svc Service) http.Handler {
	t.Helper()
	return NewHandler(svc, zap.NewNop()).SetupRouter()
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
}

func guestCart() service.CartState {
	return service.CartState{Cart: model.Cart{
		Mode: model.CartModeGuest,
		Lines: []model.CartLine{
			{ProductID: 1, Name: "Phone", UnitPrice: decimal.NewFromInt(600), Quantity: 2},
		},
	}}
}

func TestGetCart(t *testing.T) {
	svc := &stubService{cartState: guestCart()}
	rr := doRequest(t, newTestRouter(t, svc), http.MethodGet, "/api/cart", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp struct {
		Mode      string `json:"mode"`
		Subtotal  string `json:"subtotal"`
		ItemCount int    `json:"itemCount"`
		Lines     []struct {
			ProductID int64 `json:"productId"`
			Quantity  int   `json:"quantity"`
		} `json:"lines"`
		Error string `json:"error"`
	}
	decodeBody(t, rr, &resp)

	if resp.Mode != "guest" {
		t.Fatalf("expected guest mode, got %q", resp.Mode)
	}
	if resp.Subtotal != "1200" {
		t.Fatalf("expected subtotal 1200, got %q", resp.Subtotal)
	}
	if resp.ItemCount != 2 || len(resp.Lines) != 1 || resp.Lines[0].Quantity != 2 {
		t.Fatalf("unexpected cart body: %s", rr.Body.String())
	}
	if svc.cartCalls != 0 {
		t.Fatalf("GET must not reload the cart, got %d calls", svc.cartCalls)
	}
}

func TestGetCart_EmptyLinesAndError(t *testing.T) {
	svc := &stubService{cartState: service.CartState{
		Cart: model.Cart{Mode: model.CartModeGuest},
		Err:  apperr.ErrCorruptLocalState,
	}}
	rr := doRequest(t, newTestRouter(t, svc), http.MethodGet, "/api/cart", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `"lines":[]`) {
		t.Fatalf("expected empty lines array, got %s", body)
	}
	if !strings.Contains(body, apperr.ErrCorruptLocalState.Error()) {
		t.Fatalf("expected error in body, got %s", body)
	}
}

func TestAddItem(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		cartErr      error
		wantStatus   int
		wantQuantity int
		wantCalls    int
	}{
		{
			name:         "default quantity",
			body:         `{"productId": 1, "name": "Phone", "price": "600"}`,
			wantStatus:   http.StatusOK,
			wantQuantity: 1,
			wantCalls:    1,
		},
		{
			name:         "explicit quantity",
			body:         `{"productId": 1, "name": "Phone", "price": 600, "quantity": 3}`,
			wantStatus:   http.StatusOK,
			wantQuantity: 3,
			wantCalls:    1,
		},
		{
			name:       "zero quantity rejected",
			body:       `{"productId": 1, "name": "Phone", "price": 600, "quantity": 0}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing name",
			body:       `{"productId": 1, "price": 600}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "negative price",
			body:       `{"productId": 1, "name": "Phone", "price": -1}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown field",
			body:       `{"productId": 1, "name": "Phone", "price": 1, "colour": "red"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid json",
			body:       `{"productId":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "session expired",
			body:       `{"productId": 1, "name": "Phone", "price": 600}`,
			cartErr:    apperr.ErrAuthRequired,
			wantStatus: http.StatusUnauthorized,
			wantCalls:  1,
		},
		{
			name:       "remote down",
			body:       `{"productId": 1, "name": "Phone", "price": 600}`,
			cartErr:    apperr.Unavailable(fmt.Errorf("dial tcp: connection refused")),
			wantStatus: http.StatusServiceUnavailable,
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{cartState: guestCart(), cartErr: tt.cartErr}
			rr := doRequest(t, newTestRouter(t, svc), http.MethodPost, "/api/cart/items", tt.body)

			if rr.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d (%s)", tt.wantStatus, rr.Code, rr.Body.String())
			}
			if svc.cartCalls != tt.wantCalls {
				t.Fatalf("expected %d service calls, got %d", tt.wantCalls, svc.cartCalls)
			}
			if tt.wantQuantity != 0 && svc.addedQuantity != tt.wantQuantity {
				t.Fatalf("expected quantity %d, got %d", tt.wantQuantity, svc.addedQuantity)
			}
		})
	}
}

func TestAddItem_ProductSnapshot(t *testing.T) {
	svc := &stubService{cartState: guestCart()}
	body := `{"productId": 7, "name": "Lipstick", "price": "19.99", "image": "l.png", "category": "Makeup", "inStock": false}`
	rr := doRequest(t, newTestRouter(t, svc), http.MethodPost, "/api/cart/items", body)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	p := svc.addedProduct
	if p.ID != 7 || p.Name != "Lipstick" || p.Image != "l.png" || p.Category != "Makeup" || p.InStock {
		t.Fatalf("unexpected product: %+v", p)
	}
	if !p.Price.Equal(decimal.RequireFromString("19.99")) {
		t.Fatalf("expected price 19.99, got %s", p.Price)
	}
}

func TestSetQuantity(t *testing.T) {
	svc := &stubService{cartState: guestCart()}
	h := newTestRouter(t, svc)

	rr := doRequest(t, h, http.MethodPut, "/api/cart/items/1", `{"quantity": 5}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if svc.setProductID != 1 || svc.setQuantity != 5 {
		t.Fatalf("unexpected call: product %d quantity %d", svc.setProductID, svc.setQuantity)
	}

	rr = doRequest(t, h, http.MethodPut, "/api/cart/items/abc", `{"quantity": 5}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d for bad id, got %d", http.StatusBadRequest, rr.Code)
	}

	svc.cartErr = fmt.Errorf("%w: product 9 is not in the cart", apperr.ErrNotFound)
	rr = doRequest(t, h, http.MethodPut, "/api/cart/items/9", `{"quantity": 1}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rr.Code)
	}

	var resp errorResponse
	decodeBody(t, rr, &resp)
	if !strings.Contains(resp.Error, "not in the cart") {
		t.Fatalf("unexpected error message %q", resp.Error)
	}
}

func TestRemoveAndClear(t *testing.T) {
	svc := &stubService{cartState: service.CartState{Cart: model.Cart{Mode: model.CartModeAuthenticated}}}
	h := newTestRouter(t, svc)

	rr := doRequest(t, h, http.MethodDelete, "/api/cart/items/4", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if svc.removedID != 4 {
		t.Fatalf("expected product 4 removed, got %d", svc.removedID)
	}

	rr = doRequest(t, h, http.MethodDelete, "/api/cart", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	rr = doRequest(t, h, http.MethodPost, "/api/cart/reload", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if svc.cartCalls != 3 {
		t.Fatalf("expected 3 cart calls, got %d", svc.cartCalls)
	}
}

func TestLogin(t *testing.T) {
	svc := &stubService{}
	h := newTestRouter(t, svc)

	rr := doRequest(t, h, http.MethodPost, "/api/session", `{"token": "t-1", "userId": 5}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var info service.SessionInfo
	decodeBody(t, rr, &info)
	if !info.Authenticated || info.UserID != 5 || svc.loginToken != "t-1" {
		t.Fatalf("unexpected session %+v, token %q", info, svc.loginToken)
	}

	rr = doRequest(t, h, http.MethodPost, "/api/session", `{"userId": 5}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d for missing token, got %d", http.StatusBadRequest, rr.Code)
	}

	rr = doRequest(t, h, http.MethodDelete, "/api/session", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	decodeBody(t, rr, &info)
	if info.Authenticated || info.Mode != model.CartModeGuest {
		t.Fatalf("expected guest session after logout, got %+v", info)
	}
}

func TestGetOrders(t *testing.T) {
	svc := &stubService{}
	h := newTestRouter(t, svc)

	rr := doRequest(t, h, http.MethodGet, "/api/orders", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rr.Code)
	}

	svc.ordersResp = []model.Order{
		{ID: 1, Status: model.OrderStatusShipped, TotalPrice: decimal.NewFromInt(450)},
	}
	rr = doRequest(t, h, http.MethodGet, "/api/orders?status=shipped", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if svc.ordersScope != order.ScopeUser || svc.ordersQuery != "shipped" {
		t.Fatalf("unexpected query: scope %d status %q", svc.ordersScope, svc.ordersQuery)
	}

	var orders []model.Order
	decodeBody(t, rr, &orders)
	if len(orders) != 1 || orders[0].Status != model.OrderStatusShipped {
		t.Fatalf("unexpected orders: %+v", orders)
	}

	rr = doRequest(t, h, http.MethodGet, "/api/admin/orders?status=all", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if svc.ordersScope != order.ScopeAdmin {
		t.Fatalf("expected admin scope, got %d", svc.ordersScope)
	}
}

func TestGetOrders_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid filter", fmt.Errorf("%w: %q", apperr.ErrInvalidStatus, "lost"), http.StatusBadRequest},
		{"signed out", apperr.ErrAuthRequired, http.StatusUnauthorized},
		{"forbidden", apperr.FromStatus(http.StatusForbidden, "admins only"), http.StatusForbidden},
		{"remote down", apperr.FromStatus(http.StatusBadGateway, ""), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{ordersErr: tt.err}
			rr := doRequest(t, newTestRouter(t, svc), http.MethodGet, "/api/orders", "")
			if rr.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}
		})
	}
}

func TestGetOrder(t *testing.T) {
	svc := &stubService{orderResp: model.Order{ID: 3, Status: model.OrderStatusPending}}
	h := newTestRouter(t, svc)

	rr := doRequest(t, h, http.MethodGet, "/api/orders/3", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	rr = doRequest(t, h, http.MethodGet, "/api/orders/0", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rr.Code)
	}

	svc.orderErr = apperr.FromStatus(http.StatusNotFound, "order not found")
	rr = doRequest(t, h, http.MethodGet, "/api/orders/3", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rr.Code)
	}
}

func TestGetOrderCounts(t *testing.T) {
	svc := &stubService{countsResp: model.StatusCounts{Total: 3, Pending: 1, Delivered: 2}}
	rr := doRequest(t, newTestRouter(t, svc), http.MethodGet, "/api/orders/counts", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var counts model.StatusCounts
	decodeBody(t, rr, &counts)
	if counts != svc.countsResp {
		t.Fatalf("expected %+v, got %+v", svc.countsResp, counts)
	}
}

func TestUpdateOrderStatus(t *testing.T) {
	svc := &stubService{}
	h := newTestRouter(t, svc)

	rr := doRequest(t, h, http.MethodPut, "/api/orders/5/status", `{"status": "Shipped"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d (%s)", http.StatusOK, rr.Code, rr.Body.String())
	}
	var o model.Order
	decodeBody(t, rr, &o)
	if o.ID != 5 || o.Status != model.OrderStatusShipped {
		t.Fatalf("unexpected order %+v", o)
	}

	for _, status := range []string{`""`, `"cancelled"`, `"all"`} {
		rr = doRequest(t, h, http.MethodPut, "/api/orders/5/status", `{"status": `+status+`}`)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("status %s: expected %d, got %d", status, http.StatusBadRequest, rr.Code)
		}
	}
	if svc.updateCalls != 1 {
		t.Fatalf("invalid statuses must not reach the service, got %d calls", svc.updateCalls)
	}
}

func TestGetInvoice(t *testing.T) {
	svc := &stubService{invoiceResp: model.Invoice{ID: 4, Number: "INV-0004", OrderID: 7}}
	h := newTestRouter(t, svc)

	rr := doRequest(t, h, http.MethodGet, "/api/orders/7/invoice", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var inv model.Invoice
	decodeBody(t, rr, &inv)
	if inv.Number != "INV-0004" {
		t.Fatalf("unexpected invoice %+v", inv)
	}

	svc.invoiceErr = apperr.FromStatus(http.StatusNotFound, "")
	rr = doRequest(t, h, http.MethodGet, "/api/orders/7/invoice", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rr.Code)
	}
}

func TestRouter_NotFoundAndMethodNotAllowed(t *testing.T) {
	h := newTestRouter(t, &stubService{})

	rr := doRequest(t, h, http.MethodGet, "/api/unknown", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rr.Code)
	}

	rr = doRequest(t, h, http.MethodPatch, "/api/cart", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rr.Code)
	}
}

func TestRouter_Metrics(t *testing.T) {
	h := newTestRouter(t, &stubService{})
	doRequest(t, h, http.MethodGet, "/api/orders/counts", "")

	rr := doRequest(t, h, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "storefront_console_requests_total") {
		t.Fatalf("expected console metrics in exposition")
	}
}
