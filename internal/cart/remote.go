package cart

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront-client/internal/apperr"
	"github.com/mmeshcher/storefront-client/internal/model"
)

const (
	unknownProduct  = "Unknown Product"
	unknownCategory = "Unknown"
)

type addRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

// Идентификаторы и количество читаются как сырые значения, чтобы одна
// нечитаемая строка не ломала разбор всей корзины.
type serverProduct struct {
	ID           json.RawMessage `json:"id"`
	Name         string          `json:"name"`
	Price        json.RawMessage `json:"price"`
	Image        string          `json:"image"`
	ImageURL     string          `json:"image_url"`
	Category     string          `json:"category"`
	CategoryName string          `json:"category_name"`
}

type serverLine struct {
	ID        json.RawMessage `json:"id"`
	Quantity  json.RawMessage `json:"quantity"`
	ProductID json.RawMessage `json:"product_id"`
	Product   *serverProduct  `json:"product"`
}

func (s *Synchronizer) fetchServerLines(ctx context.Context) ([]model.CartLine, error) {
	var raw json.RawMessage
	if err := s.remote.Request(ctx, http.MethodGet, "/cart", nil, &raw); err != nil {
		s.logger.Warn("failed to load cart", zap.Error(err))
		return nil, err
	}

	items, err := decodeServerLines(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrRemoteUnavailable, err)
	}
	return s.linesFrom(items), nil
}

// linesFrom разбирает строки по одной. Нечитаемая строка отбрасывается с
// предупреждением, остальные сохраняются.
func (s *Synchronizer) linesFrom(items []json.RawMessage) []model.CartLine {
	lines := make([]model.CartLine, 0, len(items))
	for _, raw := range items {
		var item serverLine
		if err := json.Unmarshal(raw, &item); err != nil {
			s.logger.Warn("dropping malformed cart line", zap.ByteString("line", raw), zap.Error(err))
			continue
		}
		line, ok := item.toCartLine()
		if !ok {
			s.logger.Warn("dropping unreadable cart line", zap.ByteString("line", raw))
			continue
		}
		lines = append(lines, line)
	}
	return s.dedupe(lines)
}

// decodeServerLines принимает как голый список, так и обёртку {"items": [...]}.
func decodeServerLines(raw json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var items []json.RawMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode cart: %w", err)
		}
		return items, nil
	}

	var wrapper struct {
		Items     []json.RawMessage `json:"items"`
		CartItems []json.RawMessage `json:"cart_items"`
	}
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	if wrapper.Items != nil {
		return wrapper.Items, nil
	}
	if wrapper.CartItems != nil {
		return wrapper.CartItems, nil
	}
	return nil, fmt.Errorf("decode cart: unexpected response shape")
}

func (l serverLine) toCartLine() (model.CartLine, bool) {
	var p serverProduct
	if l.Product != nil {
		p = *l.Product
	}

	id := parseID(p.ID)
	if id == 0 {
		id = parseID(l.ProductID)
	}
	if id == 0 {
		return model.CartLine{}, false
	}

	price := decimal.Zero
	if text := rawText(p.Price); text != "" {
		d, err := decimal.NewFromString(text)
		if err != nil {
			return model.CartLine{}, false
		}
		price = d
	}

	quantity := 1
	if text := rawText(l.Quantity); text != "" {
		n, err := strconv.Atoi(text)
		if err != nil {
			return model.CartLine{}, false
		}
		quantity = n
	}

	return model.CartLine{
		ProductID:    id,
		Name:         firstNonEmpty(p.Name, unknownProduct),
		UnitPrice:    price,
		Image:        firstNonEmpty(p.Image, p.ImageURL),
		Category:     firstNonEmpty(p.Category, p.CategoryName, unknownCategory),
		Quantity:     quantity,
		ServerLineID: rawText(l.ID),
	}, true
}

// parseID возвращает положительный целый идентификатор или ноль.
func parseID(raw json.RawMessage) int64 {
	id, err := strconv.ParseInt(rawText(raw), 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

// rawText возвращает скалярное JSON-значение как текст: число как есть,
// строку без кавычек. null и составные значения дают пустую строку.
func rawText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return ""
	}
	return string(trimmed)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
