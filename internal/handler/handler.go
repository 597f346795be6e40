// Package handler содержит HTTP-обработчики консоли клиента витрины.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-client/internal/apperr"
	"github.com/mmeshcher/storefront-client/internal/model"
	"github.com/mmeshcher/storefront-client/internal/order"
	"github.com/mmeshcher/storefront-client/internal/service"
	"github.com/mmeshcher/storefront-client/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Session() service.SessionInfo
	Login(ctx context.Context, token string, userID int64) (service.SessionInfo, error)
	Logout(ctx context.Context) (service.SessionInfo, error)

	CartState() service.CartState
	ReloadCart(ctx context.Context) (service.CartState, error)
	AddToCart(ctx context.Context, product model.Product, quantity int) (service.CartState, error)
	SetCartQuantity(ctx context.Context, productID int64, quantity int) (service.CartState, error)
	RemoveFromCart(ctx context.Context, productID int64) (service.CartState, error)
	ClearCart(ctx context.Context) (service.CartState, error)

	Orders(ctx context.Context, scope order.Scope, status string) ([]model.Order, error)
	Order(ctx context.Context, id int64) (model.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status string) (model.Order, error)
	OrderCounts() model.StatusCounts
	Invoice(ctx context.Context, id int64) (model.Invoice, error)
}

// Handler реализует HTTP-обработчики консоли.
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type cartResponse struct {
	Mode      model.CartMode   `json:"mode"`
	Lines     []model.CartLine `json:"lines"`
	Subtotal  decimal.Decimal  `json:"subtotal"`
	ItemCount int              `json:"itemCount"`
	Loading   bool             `json:"loading"`
	Error     string           `json:"error,omitempty"`
}

func newCartResponse(state service.CartState) cartResponse {
	lines := state.Cart.Lines
	if lines == nil {
		lines = []model.CartLine{}
	}
	resp := cartResponse{
		Mode:      state.Cart.Mode,
		Lines:     lines,
		Subtotal:  state.Cart.Subtotal(),
		ItemCount: state.Cart.ItemCount(),
		Loading:   state.Loading,
	}
	if state.Err != nil {
		resp.Error = state.Err.Error()
	}
	return resp
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		h.logger.Debug("request rejected", zap.String("path", r.URL.Path), zap.Error(err))
	}
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (h *Handler) writeCart(w http.ResponseWriter, r *http.Request, state service.CartState, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newCartResponse(state))
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", apperr.ErrInvalidArgument, name, chi.URLParam(r, name))
	}
	return id, nil
}

// GetSession возвращает состояние сессии.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.Session())
}

type loginRequest struct {
	Token  string `json:"token" validate:"required"`
	UserID int64  `json:"userId" validate:"gte=0"`
}

// Login принимает выданный извне токен доступа.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := validation.DecodeAndValidate(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	info, err := h.service.Login(r.Context(), req.Token, req.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

// Logout удаляет учётные данные сессии.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.Logout(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

// GetCart возвращает текущий снимок корзины без обращения к хранилищу.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, newCartResponse(h.service.CartState()))
}

// ReloadCart перечитывает корзину из хранилища текущего режима.
func (h *Handler) ReloadCart(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.ReloadCart(r.Context())
	h.writeCart(w, r, state, err)
}

type addItemRequest struct {
	ProductID int64           `json:"productId" validate:"gt=0"`
	Name      string          `json:"name" validate:"required"`
	Price     decimal.Decimal `json:"price" validate:"money"`
	Image     string          `json:"image"`
	Category  string          `json:"category"`
	InStock   *bool           `json:"inStock"`
	Quantity  *int            `json:"quantity" validate:"omitempty,gte=1"`
}

// AddItem добавляет товар в корзину. По умолчанию количество равно единице.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := validation.DecodeAndValidate(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	product := model.Product{
		ID:       req.ProductID,
		Name:     req.Name,
		Price:    req.Price,
		Image:    req.Image,
		Category: req.Category,
		InStock:  req.InStock == nil || *req.InStock,
	}

	state, err := h.service.AddToCart(r.Context(), product, quantity)
	h.writeCart(w, r, state, err)
}

type setQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// SetQuantity задаёт количество товара в корзине.
func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req setQuantityRequest
	if err := validation.DecodeAndValidate(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	state, err := h.service.SetCartQuantity(r.Context(), productID, req.Quantity)
	h.writeCart(w, r, state, err)
}

// RemoveItem удаляет товар из корзины.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	state, err := h.service.RemoveFromCart(r.Context(), productID)
	h.writeCart(w, r, state, err)
}

// ClearCart очищает корзину.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.ClearCart(r.Context())
	h.writeCart(w, r, state, err)
}

// GetOrders возвращает заказы текущего пользователя.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	h.listOrders(w, r, order.ScopeUser)
}

// GetAdminOrders возвращает заказы всех пользователей.
func (h *Handler) GetAdminOrders(w http.ResponseWriter, r *http.Request) {
	h.listOrders(w, r, order.ScopeAdmin)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request, scope order.Scope) {
	orders, err := h.service.Orders(r.Context(), scope, r.URL.Query().Get("status"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, http.StatusOK, orders)
}

// GetOrderCounts возвращает количество загруженных заказов по статусам.
func (h *Handler) GetOrderCounts(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.OrderCounts())
}

// GetOrder возвращает один заказ.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	o, err := h.service.Order(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, o)
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,orderstatus"`
}

// UpdateOrderStatus меняет статус заказа.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req updateStatusRequest
	if err := validation.DecodeAndValidate(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	o, err := h.service.UpdateOrderStatus(r.Context(), id, req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, o)
}

// GetInvoice возвращает счёт по заказу.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	inv, err := h.service.Invoice(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, inv)
}
