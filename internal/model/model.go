// Package model содержит доменные сущности клиента витрины.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Product описывает товар каталога в момент добавления в корзину.
type Product struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Image    string          `json:"image,omitempty"`
	Category string          `json:"category,omitempty"`
	InStock  bool            `json:"inStock"`
}

// CartLine описывает присутствие одного товара в корзине.
type CartLine struct {
	ProductID    int64           `json:"productId"`
	Name         string          `json:"name"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	Image        string          `json:"image,omitempty"`
	Category     string          `json:"category,omitempty"`
	Quantity     int             `json:"quantity"`
	ServerLineID string          `json:"serverLineId,omitempty"`
}

// Total возвращает стоимость строки.
func (l CartLine) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CartMode описывает режим работы корзины.
type CartMode string

const (
	CartModeGuest         CartMode = "guest"
	CartModeAuthenticated CartMode = "authenticated"
)

// Cart представляет упорядоченный набор строк корзины, уникальных по товару.
type Cart struct {
	Mode  CartMode   `json:"mode"`
	Lines []CartLine `json:"lines"`
}

// Subtotal возвращает сумму по всем строкам. Не хранится, всегда вычисляется.
func (c Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.Total())
	}
	return total
}

// ItemCount возвращает общее количество единиц товара.
func (c Cart) ItemCount() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

// Line ищет строку корзины по идентификатору товара.
func (c Cart) Line(productID int64) (CartLine, bool) {
	for _, l := range c.Lines {
		if l.ProductID == productID {
			return l, true
		}
	}
	return CartLine{}, false
}

// Clone возвращает независимую копию корзины.
func (c Cart) Clone() Cart {
	lines := make([]CartLine, len(c.Lines))
	copy(lines, c.Lines)
	return Cart{Mode: c.Mode, Lines: lines}
}

// OrderStatus описывает статус заказа в канонической (строчной) форме.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
)

// OrderStatuses перечисляет все допустимые статусы в порядке жизненного цикла.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
}

// ParseOrderStatus разбирает статус без учёта регистра.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	candidate := OrderStatus(strings.ToLower(strings.TrimSpace(s)))
	for _, st := range OrderStatuses {
		if st == candidate {
			return st, true
		}
	}
	return "", false
}

// DisplayName возвращает форму статуса для записи в удалённое хранилище: "Shipped".
func (s OrderStatus) DisplayName() string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

// ShippingInfo содержит данные доставки в канонической форме.
type ShippingInfo struct {
	FullName   string `json:"fullName,omitempty"`
	Address    string `json:"address,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// IsZero сообщает, что данные доставки не заполнены.
func (s ShippingInfo) IsZero() bool {
	return s == ShippingInfo{}
}

// OrderLine является снимком купленного товара, независимым от текущего каталога.
type OrderLine struct {
	ProductID int64           `json:"productId"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Order описывает зафиксированную покупку. После создания меняется только Status.
type Order struct {
	ID         int64           `json:"id"`
	UserID     int64           `json:"userId,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	Status     OrderStatus     `json:"status"`
	Lines      []OrderLine     `json:"lines"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	Shipping   ShippingInfo    `json:"shippingInfo"`
}

// Clone возвращает независимую копию заказа.
func (o Order) Clone() Order {
	lines := make([]OrderLine, len(o.Lines))
	copy(lines, o.Lines)
	o.Lines = lines
	return o
}

// StatusCounts содержит количество заказов по каждому статусу и общее число.
type StatusCounts struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Shipped    int `json:"shipped"`
	Delivered  int `json:"delivered"`
	Total      int `json:"all"`
}

// Invoice описывает счёт, выставленный по заказу.
type Invoice struct {
	ID       int64           `json:"id"`
	Number   string          `json:"invoiceNumber"`
	OrderID  int64           `json:"orderId"`
	IssuedAt time.Time       `json:"issuedAt"`
	PDFURL   string          `json:"pdfUrl,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
}
