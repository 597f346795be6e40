package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-client/internal/apperr"
	"github.com/mmeshcher/storefront-client/internal/model"
	"github.com/mmeshcher/storefront-client/internal/repository"
)

const guestKeyPrefix = "cart:guest:"

func (s *Synchronizer) guestKey() string {
	return guestKeyPrefix + s.session.GuestMarker()
}

// loadGuest читает гостевую корзину. Нечитаемые данные дают ErrCorruptLocalState.
func (s *Synchronizer) loadGuest(ctx context.Context) ([]model.CartLine, error) {
	data, err := s.store.Get(ctx, s.guestKey())
	if errors.Is(err, repository.ErrNotFound) {
		return []model.CartLine{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load guest cart: %v", apperr.ErrStorageUnavailable, err)
	}

	var lines []model.CartLine
	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, fmt.Errorf("%w: guest cart: %v", apperr.ErrCorruptLocalState, err)
	}
	return s.dedupe(lines), nil
}

// loadGuestForReload сбрасывает испорченную гостевую корзину в пустую.
func (s *Synchronizer) loadGuestForReload(ctx context.Context) ([]model.CartLine, error) {
	lines, err := s.loadGuest(ctx)
	if !errors.Is(err, apperr.ErrCorruptLocalState) {
		return lines, err
	}

	s.logger.Warn("resetting corrupt guest cart", zap.Error(err))
	if delErr := s.store.Delete(ctx, s.guestKey()); delErr != nil {
		s.logger.Warn("failed to reset guest cart", zap.Error(delErr))
	}
	return []model.CartLine{}, err
}

// loadGuestForWrite читает гостевую корзину перед изменением; испорченные данные
// считаются пустой корзиной и будут перезаписаны.
func (s *Synchronizer) loadGuestForWrite(ctx context.Context) ([]model.CartLine, error) {
	lines, err := s.loadGuest(ctx)
	if errors.Is(err, apperr.ErrCorruptLocalState) {
		s.logger.Warn("overwriting corrupt guest cart", zap.Error(err))
		return []model.CartLine{}, nil
	}
	return lines, err
}

func (s *Synchronizer) saveGuest(ctx context.Context, lines []model.CartLine) error {
	if len(lines) == 0 {
		return s.clearGuest(ctx)
	}

	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("marshal guest cart: %w", err)
	}
	if err := s.store.Put(ctx, s.guestKey(), data); err != nil {
		return fmt.Errorf("%w: save guest cart: %v", apperr.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *Synchronizer) clearGuest(ctx context.Context) error {
	if err := s.store.Delete(ctx, s.guestKey()); err != nil {
		return fmt.Errorf("%w: clear guest cart: %v", apperr.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *Synchronizer) addGuest(ctx context.Context, product model.Product, quantity int) error {
	lines, err := s.loadGuestForWrite(ctx)
	if err != nil {
		return err
	}

	for i := range lines {
		if lines[i].ProductID == product.ID {
			lines[i].Quantity += quantity
			return s.saveGuest(ctx, lines)
		}
	}

	lines = append(lines, model.CartLine{
		ProductID:    product.ID,
		Name:         product.Name,
		UnitPrice:    product.Price,
		Image:        product.Image,
		Category:     product.Category,
		Quantity:     quantity,
		ServerLineID: "local-" + strconv.FormatInt(s.now().UnixNano(), 10),
	})
	return s.saveGuest(ctx, lines)
}

func (s *Synchronizer) setGuestQuantity(ctx context.Context, productID int64, quantity int) error {
	lines, err := s.loadGuestForWrite(ctx)
	if err != nil {
		return err
	}

	for i := range lines {
		if lines[i].ProductID == productID {
			lines[i].Quantity = quantity
			return s.saveGuest(ctx, lines)
		}
	}
	return fmt.Errorf("%w: product %d is not in the cart", apperr.ErrNotFound, productID)
}

func (s *Synchronizer) removeGuest(ctx context.Context, productID int64) error {
	lines, err := s.loadGuestForWrite(ctx)
	if err != nil {
		return err
	}

	kept := lines[:0]
	for _, l := range lines {
		if l.ProductID != productID {
			kept = append(kept, l)
		}
	}
	if len(kept) == len(lines) {
		return nil
	}
	return s.saveGuest(ctx, kept)
}
