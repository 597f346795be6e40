package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/mmeshcher/storefront-client/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware консоли.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.Recovery(h.logger))
	r.Use(custommiddleware.Metrics)
	r.Use(custommiddleware.Logger(h.logger))

	// promhttp сам договаривается о сжатии
	r.Handle("/metrics", promhttp.Handler())

	r.With(custommiddleware.GzipMiddleware).Route("/api", func(r chi.Router) {
		r.Get("/session", h.GetSession)
		r.Post("/session", h.Login)
		r.Delete("/session", h.Logout)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Post("/reload", h.ReloadCart)
			r.Post("/items", h.AddItem)
			r.Put("/items/{productID}", h.SetQuantity)
			r.Delete("/items/{productID}", h.RemoveItem)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.GetOrders)
			r.Get("/counts", h.GetOrderCounts)
			r.Get("/{id}", h.GetOrder)
			r.Put("/{id}/status", h.UpdateOrderStatus)
			r.Get("/{id}/invoice", h.GetInvoice)
		})

		r.Get("/admin/orders", h.GetAdminOrders)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
