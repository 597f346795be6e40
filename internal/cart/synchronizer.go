// Package cart реализует синхронизатор корзины: единый источник текущей корзины
// для гостевого и авторизованного режимов.
package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-client/internal/apperr"
	"github.com/mmeshcher/storefront-client/internal/model"
)

// Store описывает локальное хранилище устройства, в котором живёт гостевая корзина.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Remote описывает шлюз удалённого хранилища.
type Remote interface {
	Request(ctx context.Context, method, path string, body, out any) error
}

// Session описывает поставщика сессии.
type Session interface {
	Credential() (string, bool)
	GuestMarker() string
}

// Synchronizer владеет корзиной в памяти. Каждая мутация заканчивается полной
// перезагрузкой снимка из хранилища текущего режима.
//
// Синхронизатор помнит режим и учётные данные, с которыми загружен снимок.
// Смена любого из них сбрасывает корзину и вызывает перезагрузку.
//
// Мутации между собой не сериализуются. Результат перезагрузки применяется,
// только если позже начатая перезагрузка ещё не была применена; смена режима
// отменяет все начатые до неё перезагрузки.
type Synchronizer struct {
	store   Store
	remote  Remote
	session Session
	logger  *zap.Logger
	now     func() time.Time

	inflight atomic.Int32

	mu          sync.Mutex
	cart        model.Cart
	lastErr     error
	observed    model.CartMode
	credential  string
	seq         uint64
	applied     uint64
	invalidated uint64
}

// NewSynchronizer создаёт синхронизатор корзины. Режим определяется по наличию учётных данных.
func NewSynchronizer(store Store, remote Remote, session Session, logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	mode, credential := stateOf(session)
	return &Synchronizer{
		store:      store,
		remote:     remote,
		session:    session,
		logger:     logger,
		now:        time.Now,
		cart:       model.Cart{Mode: mode},
		observed:   mode,
		credential: credential,
	}
}

// stateOf возвращает режим и учётные данные, которым принадлежит корзина.
// У гостя учётных данных нет.
func stateOf(session Session) (model.CartMode, string) {
	if token, ok := session.Credential(); ok {
		return model.CartModeAuthenticated, token
	}
	return model.CartModeGuest, ""
}

// Start выполняет начальную загрузку корзины в текущем режиме.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.logger.Info("cart synchronizer started", zap.String("mode", string(s.Mode())))
	return s.Reload(ctx)
}

// Cart возвращает копию текущего снимка корзины.
func (s *Synchronizer) Cart() model.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Clone()
}

// LastError возвращает ошибку последней операции или nil.
func (s *Synchronizer) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Loading сообщает, выполняется ли сейчас хотя бы одна операция.
func (s *Synchronizer) Loading() bool {
	return s.inflight.Load() > 0
}

// Mode возвращает последний наблюдавшийся режим.
func (s *Synchronizer) Mode() model.CartMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observed
}

// AddItem добавляет товар или увеличивает количество существующей строки.
func (s *Synchronizer) AddItem(ctx context.Context, product model.Product, quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1, got %d", apperr.ErrInvalidArgument, quantity)
	}
	if product.ID <= 0 {
		return fmt.Errorf("%w: product id must be positive", apperr.ErrInvalidArgument)
	}

	return s.mutate(ctx, "add item", func(mode model.CartMode) error {
		if mode == model.CartModeGuest {
			return s.addGuest(ctx, product, quantity)
		}
		return s.remote.Request(ctx, http.MethodPost, "/cart", addRequest{
			ProductID: product.ID,
			Quantity:  quantity,
		}, nil)
	})
}

// SetQuantity задаёт количество существующей строки. Количество меньше единицы
// отклоняется до любого ввода-вывода; удаление идёт через RemoveItem.
func (s *Synchronizer) SetQuantity(ctx context.Context, productID int64, quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1, got %d", apperr.ErrInvalidArgument, quantity)
	}

	return s.mutate(ctx, "set quantity", func(mode model.CartMode) error {
		if mode == model.CartModeGuest {
			return s.setGuestQuantity(ctx, productID, quantity)
		}
		lineID, err := s.serverLineID(productID)
		if err != nil {
			return err
		}
		return s.remote.Request(ctx, http.MethodPut, "/cart/"+lineID, quantityRequest{Quantity: quantity}, nil)
	})
}

// RemoveItem удаляет строку товара. Удаление отсутствующей строки ничего не меняет.
func (s *Synchronizer) RemoveItem(ctx context.Context, productID int64) error {
	return s.mutate(ctx, "remove item", func(mode model.CartMode) error {
		if mode == model.CartModeGuest {
			return s.removeGuest(ctx, productID)
		}
		lineID, err := s.serverLineID(productID)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return s.remote.Request(ctx, http.MethodDelete, "/cart/"+lineID, nil, nil)
	})
}

// Clear очищает корзину.
func (s *Synchronizer) Clear(ctx context.Context) error {
	return s.mutate(ctx, "clear", func(mode model.CartMode) error {
		if mode == model.CartModeGuest {
			return s.clearGuest(ctx)
		}
		return s.remote.Request(ctx, http.MethodDelete, "/cart/clear", nil, nil)
	})
}

// Reload перечитывает корзину из хранилища текущего режима. При ошибке сети
// прежний снимок сохраняется и выставляется флаг ошибки.
func (s *Synchronizer) Reload(ctx context.Context) error {
	s.inflight.Add(1)
	defer s.inflight.Add(-1)

	mode, err := s.resolveMode()
	if err != nil {
		s.setError(err)
		return err
	}
	return s.reload(ctx, mode)
}

// HandleSessionChange переводит корзину в режим, соответствующий сессии, и
// перезагружает её. Вход под другими учётными данными без выхода тоже
// считается сменой сессии. Гостевая корзина при входе не переносится на сервер.
func (s *Synchronizer) HandleSessionChange(ctx context.Context) error {
	current, credential := stateOf(s.session)

	s.mu.Lock()
	prev := s.observed
	if prev == current && s.credential == credential {
		s.mu.Unlock()
		return nil
	}
	s.switchLocked(current, credential)
	s.mu.Unlock()

	s.logger.Info("cart session changed",
		zap.String("from", string(prev)), zap.String("to", string(current)))

	if current == model.CartModeGuest && prev != model.CartModeGuest {
		if err := s.clearGuest(ctx); err != nil {
			s.logger.Warn("failed to drop guest cart on logout", zap.Error(err))
		}
	}

	s.inflight.Add(1)
	defer s.inflight.Add(-1)
	return s.reload(ctx, current)
}

func (s *Synchronizer) mutate(ctx context.Context, op string, apply func(mode model.CartMode) error) error {
	s.inflight.Add(1)
	defer s.inflight.Add(-1)

	mode, err := s.resolveMode()
	if err != nil {
		s.setError(err)
		return err
	}

	if err := apply(mode); err != nil {
		s.logger.Warn("cart mutation failed",
			zap.String("op", op), zap.String("mode", string(mode)), zap.Error(err))
		s.setError(err)
		return err
	}

	return s.reload(ctx, mode)
}

// resolveMode сверяет последний наблюдавшийся режим с сессией. Пропажа учётных
// данных без уведомления означает истёкшую сессию. Новые учётные данные
// сбрасывают снимок, чтобы не адресовать строки чужой корзины.
func (s *Synchronizer) resolveMode() (model.CartMode, error) {
	current, credential := stateOf(s.session)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.observed == model.CartModeAuthenticated && current == model.CartModeGuest {
		return "", fmt.Errorf("%w: session expired", apperr.ErrAuthRequired)
	}
	if s.observed != current || s.credential != credential {
		s.switchLocked(current, credential)
	}
	return current, nil
}

func (s *Synchronizer) switchLocked(mode model.CartMode, credential string) {
	s.observed = mode
	s.credential = credential
	s.invalidated = s.seq
	s.cart = model.Cart{Mode: mode}
	s.lastErr = nil
}

func (s *Synchronizer) reload(ctx context.Context, mode model.CartMode) error {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	var (
		lines []model.CartLine
		err   error
	)
	if mode == model.CartModeGuest {
		lines, err = s.loadGuestForReload(ctx)
	} else {
		lines, err = s.fetchServerLines(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if seq <= s.applied || seq <= s.invalidated || mode != s.observed {
		s.logger.Debug("discarding superseded cart reload", zap.Uint64("seq", seq))
		return err
	}
	s.applied = seq
	s.lastErr = err
	if lines != nil {
		s.cart = model.Cart{Mode: mode, Lines: lines}
	}
	return err
}

func (s *Synchronizer) setError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

func (s *Synchronizer) serverLineID(productID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, ok := s.cart.Line(productID)
	if !ok || line.ServerLineID == "" {
		return "", fmt.Errorf("%w: product %d is not in the cart", apperr.ErrNotFound, productID)
	}
	return line.ServerLineID, nil
}

// dedupe оставляет первую строку каждого товара и отбрасывает строки без количества.
func (s *Synchronizer) dedupe(lines []model.CartLine) []model.CartLine {
	out := make([]model.CartLine, 0, len(lines))
	seen := make(map[int64]struct{}, len(lines))
	for _, l := range lines {
		if l.Quantity < 1 {
			s.logger.Warn("dropping cart line with non-positive quantity",
				zap.Int64("productID", l.ProductID), zap.Int("quantity", l.Quantity))
			continue
		}
		if _, ok := seen[l.ProductID]; ok {
			s.logger.Warn("dropping duplicate cart line", zap.Int64("productID", l.ProductID))
			continue
		}
		seen[l.ProductID] = struct{}{}
		out = append(out, l)
	}
	return out
}
