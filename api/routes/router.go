package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shoplight/shoplight-backend/api/controllers"
	webhookcontrollers "github.com/shoplight/shoplight-backend/api/controllers/webhooks"
	"github.com/shoplight/shoplight-backend/api/middleware"
	cartsvc "github.com/shoplight/shoplight-backend/internal/cart"
	checkoutsvc "github.com/shoplight/shoplight-backend/internal/checkout"
	inventorysvc "github.com/shoplight/shoplight-backend/internal/inventory"
	ordersvc "github.com/shoplight/shoplight-backend/internal/orders"
	stripewebhook "github.com/shoplight/shoplight-backend/internal/webhooks/stripe"
	"github.com/shoplight/shoplight-backend/pkg/config"
	"github.com/shoplight/shoplight-backend/pkg/db"
	"github.com/shoplight/shoplight-backend/pkg/logger"
	"github.com/shoplight/shoplight-backend/pkg/redis"
	"github.com/shoplight/shoplight-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	cartService cartsvc.Service,
	checkoutService checkoutsvc.Service,
	orderService ordersvc.Service,
	inventoryService inventorysvc.Service,
	stripeClient *stripe.Client,
	stripeWebhookService *stripewebhook.Service,
	stripeWebhookGuard *stripewebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	checkoutPolicy := middleware.NewRateLimitPolicy(
		"checkout",
		cfg.RateLimit.CheckoutWindow,
		cfg.RateLimit.CheckoutLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, dbP, redisClient, logg))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, stripeWebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ResolveOwner(logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(cartService, logg))
			r.Delete("/", controllers.CartClear(cartService, logg))
			r.Post("/lines", controllers.CartAddLine(cartService, logg))
			r.Patch("/lines/{lineId}", controllers.CartSetQuantity(cartService, logg))
			r.Delete("/lines/{lineId}", controllers.CartRemoveLine(cartService, logg))
			r.Post("/adopt", controllers.CartAdopt(cartService, logg))
		})

		r.Route("/checkout", func(r chi.Router) {
			r.With(middleware.OwnerRateLimit(checkoutPolicy, redisClient, logg)).
				Post("/", controllers.CheckoutCreate(checkoutService, logg))
			r.Get("/{sessionId}", controllers.CheckoutFetch(checkoutService, logg))
			r.Post("/{sessionId}/revalidate", controllers.CheckoutRevalidate(checkoutService, logg))
			r.Post("/{sessionId}/abandon", controllers.CheckoutAbandon(checkoutService, logg))
			r.Post("/{sessionId}/pay", controllers.CheckoutPay(orderService, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.OrderList(orderService, logg))
			r.Post("/confirm", controllers.OrderConfirm(orderService, logg))
			r.Get("/{orderId}", controllers.OrderDetail(orderService, logg))
		})
	})

	r.Route("/api/admin/v1/inventory", func(r chi.Router) {
		r.Get("/reconcile", controllers.InventoryReconcile(inventoryService, logg))
		r.Route("/{variantId}", func(r chi.Router) {
			r.Get("/", controllers.InventoryLevel(inventoryService, logg))
			r.Get("/movements", controllers.InventoryMovements(inventoryService, logg))
			r.Post("/restock", controllers.InventoryRestock(inventoryService, logg))
			r.Post("/adjust", controllers.InventoryAdjust(inventoryService, logg))
		})
	})

	return r
}
