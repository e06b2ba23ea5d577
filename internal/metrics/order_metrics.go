package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics содержит метрики оформления заказов и изменения каталога.
// Методы безопасны для nil-получателя: сервисы работают и без метрик.
type OrderMetrics struct {
	// Счётчики оформления
	ordersPlaced   prometheus.Counter
	ordersRejected prometheus.Counter
	ordersFailed   prometheus.Counter

	// Размер заказа и время оформления
	itemsPerOrder prometheus.Histogram
	placeDuration prometheus.Histogram

	// Жизненный цикл
	statusUpdates *prometheus.CounterVec
	ordersDeleted prometheus.Counter

	catalogChanges *prometheus.CounterVec
}

// NewOrderMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWith(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWith регистрирует метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewOrderMetricsWith(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersPlaced: registerCounter(registerer, prometheus.CounterOpts{
			Name: "oms_orders_placed_total",
			Help: "Total number of orders persisted successfully",
		}),
		ordersRejected: registerCounter(registerer, prometheus.CounterOpts{
			Name: "oms_orders_rejected_total",
			Help: "Total number of order requests rejected by validation",
		}),
		ordersFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "oms_orders_failed_total",
			Help: "Total number of order requests failed on persistence",
		}),
		itemsPerOrder: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "oms_order_items",
			Help:    "Number of line items per placed order",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		}),
		placeDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "oms_order_place_duration_seconds",
			Help:    "Duration of the atomic order creation in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		statusUpdates: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "oms_order_status_updates_total",
			Help: "Total number of order status updates grouped by target status",
		}, []string{"status"}),
		ordersDeleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "oms_orders_deleted_total",
			Help: "Total number of orders deleted by administrators",
		}),
		catalogChanges: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "oms_catalog_changes_total",
			Help: "Total number of catalog changes grouped by operation",
		}, []string{"operation"}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderPlaced фиксирует успешно сохранённый заказ.
func (m *OrderMetrics) RecordOrderPlaced(items int, duration time.Duration) {
	if m == nil {
		return
	}
	m.ordersPlaced.Inc()
	m.itemsPerOrder.Observe(float64(items))
	m.placeDuration.Observe(duration.Seconds())
}

// RecordOrderRejected увеличивает счётчик отклонённых валидацией заказов.
func (m *OrderMetrics) RecordOrderRejected() {
	if m == nil {
		return
	}
	m.ordersRejected.Inc()
}

// RecordOrderFailed увеличивает счётчик заказов, не сохранённых из-за ошибки хранилища.
func (m *OrderMetrics) RecordOrderFailed() {
	if m == nil {
		return
	}
	m.ordersFailed.Inc()
}

// RecordStatusUpdate увеличивает счётчик смен статуса.
func (m *OrderMetrics) RecordStatusUpdate(status string) {
	if m == nil {
		return
	}
	m.statusUpdates.WithLabelValues(status).Inc()
}

// RecordOrderDeleted увеличивает счётчик удалённых заказов.
func (m *OrderMetrics) RecordOrderDeleted() {
	if m == nil {
		return
	}
	m.ordersDeleted.Inc()
}

// RecordCatalogChange увеличивает счётчик изменений каталога (create/update/delete).
func (m *OrderMetrics) RecordCatalogChange(operation string) {
	if m == nil {
		return
	}
	m.catalogChanges.WithLabelValues(operation).Inc()
}
