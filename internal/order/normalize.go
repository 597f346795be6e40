package order

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/storefront-client/internal/model"
)

// Ключи сырых записей в порядке предпочтения. Бэкенд исторически использует
// как camelCase, так и snake_case.
var (
	idKeys        = []string{"id"}
	userIDKeys    = []string{"userId", "user_id"}
	createdAtKeys = []string{"createdAt", "created_at"}
	totalKeys     = []string{"totalPrice", "total_price", "total"}
	lineListKeys  = []string{"lines", "order_items", "items"}
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Normalize приводит сырую запись заказа к канонической форме. Отсутствующий
// или неизвестный статус становится pending, отсутствующая дата создания
// заменяется на now, отсутствующая сумма считается нулевой.
// Нормализация идемпотентна: Normalize(ToRaw(Normalize(r))) совпадает с Normalize(r).
func Normalize(raw map[string]any, now time.Time) model.Order {
	o := model.Order{
		ID:         intOf(raw, idKeys...),
		UserID:     intOf(raw, userIDKeys...),
		Status:     model.OrderStatusPending,
		CreatedAt:  now.UTC(),
		TotalPrice: decimalOf(raw, totalKeys...),
		Shipping:   shippingOf(raw),
		Lines:      linesOf(raw),
	}

	if st, ok := model.ParseOrderStatus(stringOf(raw, "status")); ok {
		o.Status = st
	}
	if t, ok := timeOf(raw, createdAtKeys...); ok {
		o.CreatedAt = t
	}
	return o
}

// ToRaw возвращает запись заказа в канонических ключах.
func ToRaw(o model.Order) map[string]any {
	lines := make([]any, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, map[string]any{
			"productId": l.ProductID,
			"name":      l.Name,
			"quantity":  l.Quantity,
			"unitPrice": l.UnitPrice.String(),
		})
	}

	raw := map[string]any{
		"id":         o.ID,
		"status":     string(o.Status),
		"createdAt":  o.CreatedAt.UTC().Format(time.RFC3339Nano),
		"totalPrice": o.TotalPrice.String(),
		"lines":      lines,
		"shippingInfo": map[string]any{
			"fullName":   o.Shipping.FullName,
			"address":    o.Shipping.Address,
			"city":       o.Shipping.City,
			"postalCode": o.Shipping.PostalCode,
			"country":    o.Shipping.Country,
			"phone":      o.Shipping.Phone,
		},
	}
	if o.UserID != 0 {
		raw["userId"] = o.UserID
	}
	return raw
}

// NormalizeInvoice приводит сырую запись счёта к канонической форме.
func NormalizeInvoice(raw map[string]any, orderID int64) model.Invoice {
	inv := model.Invoice{
		ID:      intOf(raw, "id", "invoice_id"),
		Number:  stringOf(raw, "invoiceNumber", "invoice_number"),
		OrderID: intOf(raw, "orderId", "order_id"),
		PDFURL:  stringOf(raw, "pdfUrl", "pdf_url"),
		Amount:  decimalOf(raw, "amount", "total_amount", "total"),
	}
	if inv.OrderID == 0 {
		inv.OrderID = orderID
	}
	if t, ok := timeOf(raw, "issuedAt", "issued_at", "order_date"); ok {
		inv.IssuedAt = t
	}
	return inv
}

func shippingOf(raw map[string]any) model.ShippingInfo {
	camel, _ := raw["shippingInfo"].(map[string]any)
	snake, _ := raw["shipping_info"].(map[string]any)

	field := func(keys ...string) string {
		for _, m := range []map[string]any{camel, snake} {
			if v := stringOf(m, keys...); v != "" {
				return v
			}
		}
		return ""
	}

	s := model.ShippingInfo{
		FullName:   field("fullName", "full_name", "name"),
		Address:    field("address"),
		City:       field("city"),
		PostalCode: field("postalCode", "postal_code", "zip"),
		Country:    field("country"),
		Phone:      field("phone"),
	}
	if s.Address == "" {
		s.Address = stringOf(raw, "delivery_address", "deliveryAddress")
	}
	return s
}

func linesOf(raw map[string]any) []model.OrderLine {
	var items []any
	for _, key := range lineListKeys {
		if list, ok := raw[key].([]any); ok && len(list) > 0 {
			items = list
			break
		}
	}

	lines := make([]model.OrderLine, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		product, _ := m["product"].(map[string]any)

		line := model.OrderLine{
			ProductID: intOf(m, "productId", "product_id"),
			Name:      stringOf(m, "name", "product_name"),
			Quantity:  int(intOf(m, "quantity")),
			UnitPrice: decimalOf(m, "unitPrice", "unit_price", "price_at_order", "price"),
		}
		if line.ProductID == 0 {
			line.ProductID = intOf(product, "id")
		}
		if line.Name == "" {
			line.Name = stringOf(product, "name")
		}
		if line.UnitPrice.IsZero() {
			line.UnitPrice = decimalOf(product, "price")
		}
		lines = append(lines, line)
	}
	return lines
}

func stringOf(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// intOf возвращает первое ненулевое целое значение по ключам.
func intOf(m map[string]any, keys ...string) int64 {
	for _, k := range keys {
		var n int64
		switch v := m[k].(type) {
		case json.Number:
			n, _ = v.Int64()
		case float64:
			if v == math.Trunc(v) {
				n = int64(v)
			}
		case int:
			n = int64(v)
		case int64:
			n = v
		case string:
			n, _ = strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		}
		if n != 0 {
			return n
		}
	}
	return 0
}

// decimalOf возвращает первую ненулевую денежную сумму по ключам.
func decimalOf(m map[string]any, keys ...string) decimal.Decimal {
	for _, k := range keys {
		var (
			d   decimal.Decimal
			err error
		)
		switch v := m[k].(type) {
		case json.Number:
			d, err = decimal.NewFromString(v.String())
		case string:
			d, err = decimal.NewFromString(strings.TrimSpace(v))
		case float64:
			d = decimal.NewFromFloat(v)
		case int:
			d = decimal.NewFromInt(int64(v))
		case int64:
			d = decimal.NewFromInt(v)
		default:
			continue
		}
		if err == nil && !d.IsZero() {
			return d
		}
	}
	return decimal.Zero
}

func timeOf(m map[string]any, keys ...string) (time.Time, bool) {
	for _, k := range keys {
		s := stringOf(m, k)
		if s == "" {
			continue
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}
