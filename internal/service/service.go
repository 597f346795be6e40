// Package service связывает сессию, корзину и заказы в единый фасад для консоли.
package service

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-client/internal/apperr"
	"github.com/mmeshcher/storefront-client/internal/cart"
	"github.com/mmeshcher/storefront-client/internal/model"
	"github.com/mmeshcher/storefront-client/internal/order"
	"github.com/mmeshcher/storefront-client/internal/session"
)

// Session описывает поставщика сессии, используемого сервисом.
type Session interface {
	Login(ctx context.Context, token string, userID int64) error
	Logout(ctx context.Context) error
	HasCredential() bool
	CurrentUserID() (int64, bool)
	Subscribe(l session.Listener)
}

// SessionInfo описывает состояние сессии для отображения.
type SessionInfo struct {
	Authenticated bool           `json:"authenticated"`
	UserID        int64          `json:"userId,omitempty"`
	Mode          model.CartMode `json:"mode"`
}

// CartState содержит снимок корзины и признаки загрузки и ошибки.
type CartState struct {
	Cart    model.Cart
	Loading bool
	Err     error
}

// Service содержит операции клиента витрины, доступные консоли.
type Service struct {
	session Session
	cart    *cart.Synchronizer
	orders  *order.Tracker
	store   io.Closer
	logger  *zap.Logger
}

// NewService создаёт сервис и подписывает корзину и заказы на изменения сессии.
func NewService(sess Session, carts *cart.Synchronizer, orders *order.Tracker, store io.Closer, logger *zap.Logger) *Service {
	s := &Service{
		session: sess,
		cart:    carts,
		orders:  orders,
		store:   store,
		logger:  logger,
	}
	sess.Subscribe(s.onSessionChange)
	return s
}

// onSessionChange вызывается после каждого входа и выхода. Заказы прежней
// сессии сбрасываются всегда, даже если вошёл другой пользователь без выхода.
func (s *Service) onSessionChange(ctx context.Context) {
	s.orders.Reset()
	if err := s.cart.HandleSessionChange(ctx); err != nil {
		s.logger.Warn("cart reload after session change failed", zap.Error(err))
	}
}

// Start выполняет начальную загрузку корзины. Ошибка загрузки не мешает запуску.
func (s *Service) Start(ctx context.Context) {
	if err := s.cart.Start(ctx); err != nil {
		s.logger.Warn("initial cart load failed", zap.Error(err))
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// Session возвращает состояние сессии.
func (s *Service) Session() SessionInfo {
	info := SessionInfo{
		Authenticated: s.session.HasCredential(),
		Mode:          s.cart.Mode(),
	}
	if id, ok := s.session.CurrentUserID(); ok {
		info.UserID = id
	}
	return info
}

// Login принимает выданный извне токен и переключает корзину на сервер.
func (s *Service) Login(ctx context.Context, token string, userID int64) (SessionInfo, error) {
	if err := s.session.Login(ctx, token, userID); err != nil {
		return SessionInfo{}, err
	}
	return s.Session(), nil
}

// Logout удаляет учётные данные и возвращает корзину в гостевой режим.
func (s *Service) Logout(ctx context.Context) (SessionInfo, error) {
	if err := s.session.Logout(ctx); err != nil {
		return SessionInfo{}, err
	}
	return s.Session(), nil
}

// CartState возвращает текущий снимок корзины.
func (s *Service) CartState() CartState {
	return CartState{
		Cart:    s.cart.Cart(),
		Loading: s.cart.Loading(),
		Err:     s.cart.LastError(),
	}
}

// ReloadCart перечитывает корзину.
func (s *Service) ReloadCart(ctx context.Context) (CartState, error) {
	return s.settle(s.cart.Reload(ctx))
}

// AddToCart добавляет товар в корзину.
func (s *Service) AddToCart(ctx context.Context, product model.Product, quantity int) (CartState, error) {
	return s.settle(s.cart.AddItem(ctx, product, quantity))
}

// SetCartQuantity задаёт количество товара.
func (s *Service) SetCartQuantity(ctx context.Context, productID int64, quantity int) (CartState, error) {
	return s.settle(s.cart.SetQuantity(ctx, productID, quantity))
}

// RemoveFromCart удаляет товар из корзины.
func (s *Service) RemoveFromCart(ctx context.Context, productID int64) (CartState, error) {
	return s.settle(s.cart.RemoveItem(ctx, productID))
}

// ClearCart очищает корзину.
func (s *Service) ClearCart(ctx context.Context) (CartState, error) {
	return s.settle(s.cart.Clear(ctx))
}

// settle превращает сброс испорченной гостевой корзины в обычный снимок с флагом ошибки.
func (s *Service) settle(err error) (CartState, error) {
	state := s.CartState()
	if err != nil && !errors.Is(err, apperr.ErrCorruptLocalState) {
		return state, err
	}
	return state, nil
}

// Orders загружает заказы. Для пользователя фильтр по статусу применяется
// локально, для администратора передаётся удалённому хранилищу.
func (s *Service) Orders(ctx context.Context, scope order.Scope, status string) ([]model.Order, error) {
	orders, err := s.orders.FetchAll(ctx, order.Query{Scope: scope, Status: status})
	if err != nil {
		return nil, err
	}
	if scope == order.ScopeUser && status != "" && status != order.StatusAll {
		return s.orders.FilterByStatus(status)
	}
	return orders, nil
}

// Order загружает один заказ.
func (s *Service) Order(ctx context.Context, id int64) (model.Order, error) {
	return s.orders.FetchOne(ctx, id)
}

// UpdateOrderStatus меняет статус заказа.
func (s *Service) UpdateOrderStatus(ctx context.Context, id int64, status string) (model.Order, error) {
	return s.orders.UpdateStatus(ctx, id, status)
}

// OrderCounts возвращает количество загруженных заказов по статусам.
func (s *Service) OrderCounts() model.StatusCounts {
	return s.orders.CountByStatus()
}

// Invoice загружает счёт по заказу.
func (s *Service) Invoice(ctx context.Context, id int64) (model.Invoice, error) {
	return s.orders.Invoice(ctx, id)
}
