// Package httpsvc: HTTP API сервиса поверх gin: витрина (каталог, оформление
// и чтение заказов) и административные маршруты.
package httpsvc

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bulk-oms/internal/domain"
	"github.com/vladislavdragonenkov/bulk-oms/internal/metrics"
	"github.com/vladislavdragonenkov/bulk-oms/internal/service/catalog"
	"github.com/vladislavdragonenkov/bulk-oms/internal/service/ordering"
)

const (
	bannerText            = "Bulk Vegetable/Fruit Ordering Platform API"
	defaultIdempotencyTTL = 24 * time.Hour
)

// Dependencies: всё, что нужно роутеру. Idempotency, LiveFeed и Metrics необязательны.
type Dependencies struct {
	Orders         *ordering.Service
	Catalog        *catalog.Service
	Idempotency    domain.IdempotencyRepository
	IdempotencyTTL time.Duration
	LiveFeed       http.Handler
	Metrics        *metrics.HTTPMetrics
	AllowedOrigins []string
	Logger         *log.Entry
}

// Handler держит зависимости обработчиков.
type Handler struct {
	orders  *ordering.Service
	catalog *catalog.Service
	idem    domain.IdempotencyRepository
	idemTTL time.Duration
	logger  *log.Entry
}

// NewRouter собирает gin.Engine со всеми маршрутами и middleware.
func NewRouter(deps Dependencies) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	ttl := deps.IdempotencyTTL
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}

	h := &Handler{
		orders:  deps.Orders,
		catalog: deps.Catalog,
		idem:    deps.Idempotency,
		idemTTL: ttl,
		logger:  logger,
	}

	router := gin.New()
	router.Use(
		gin.CustomRecovery(func(c *gin.Context, recovered any) {
			logger.WithField("panic", recovered).Error("http handler panicked")
			abortWithError(c, http.StatusInternalServerError, codeInternal, "internal server error")
		}),
		requestID(),
		requestLogger(logger),
		requestMetrics(deps.Metrics),
		cors.New(corsConfig(deps.AllowedOrigins)),
	)
	router.NoRoute(func(c *gin.Context) {
		abortWithError(c, http.StatusNotFound, codeNotFound, "route not found")
	})

	router.GET("/", h.banner)
	router.GET("/products", h.listProducts)
	router.GET("/products/:id", h.getProduct)

	orders := router.Group("/orders")
	orders.POST("", h.idempotent(), h.placeOrder)
	orders.GET("/:id", h.getOrder)
	orders.GET("/:id/status", h.getOrderStatus)

	admin := router.Group("/admin")
	admin.GET("/orders", h.listOrders)
	if deps.LiveFeed != nil {
		admin.GET("/orders/stream", gin.WrapH(deps.LiveFeed))
	}
	admin.PUT("/orders/:id", h.updateOrderStatus)
	admin.DELETE("/orders/:id", h.deleteOrder)
	admin.POST("/products", h.createProduct)
	admin.PUT("/products/:id", h.updateProduct)
	admin.DELETE("/products/:id", h.deleteProduct)

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	cfg.AllowHeaders = append(cfg.AllowHeaders, idempotencyKeyHeader, requestIDHeader)
	cfg.ExposeHeaders = []string{requestIDHeader, idempotencyReplayedHeader}
	return cfg
}

func (h *Handler) banner(c *gin.Context) {
	c.String(http.StatusOK, bannerText)
}

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := make([]productResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, toProduct(p))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	product, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProduct(product))
}

func (h *Handler) placeOrder(c *gin.Context) {
	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "missing or invalid order details")
		return
	}

	conf, err := h.orders.PlaceOrder(c.Request.Context(), req.toService())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toConfirmation(conf))
}

func (h *Handler) getOrder(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrder(order))
}

func (h *Handler) getOrderStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	status, err := h.orders.GetOrderStatus(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderStatusResponse{OrderID: id, Status: string(status)})
}

func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orders.ListOrders(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, toOrder(o))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, domain.ErrInvalidStatus.Error())
		return
	}

	header, err := h.orders.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderHeader(header))
}

func (h *Handler) deleteOrder(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.orders.DeleteOrder(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "Order deleted successfully"})
}

func (h *Handler) createProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid product data")
		return
	}

	product, err := h.catalog.CreateProduct(c.Request.Context(), domain.Product{Name: req.Name, UnitPrice: req.UnitPrice})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toProduct(product))
}

func (h *Handler) updateProduct(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid product data")
		return
	}

	product, err := h.catalog.UpdateProduct(c.Request.Context(), domain.Product{ID: id, Name: req.Name, UnitPrice: req.UnitPrice})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProduct(product))
}

func (h *Handler) deleteProduct(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.catalog.DeleteProduct(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "Product deleted successfully"})
}
