package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

var HistogramBuckets = []float64{
	// --- Fast responses (0 - 500ms) ---
	25, 50, 75, 100, 150, 200, 300, 400, 500,

	// --- Medium responses around 700ms (500ms - 2s) ---
	750, 1000, 1250, 1500, 1750, 2000,

	// --- Slow responses (2s - 15s) ---
	2500, 3000, 4000, 5000, 7500, 10000, 15000,

	// --- Extended range: covers 60000ms+ (15s - 75s) ---
	20000,  // 20s
	30000,  // 30s
	45000,  // 45s
	60000,  // 60s
	75000,  // 75s
	90000,  // 90s
	120000, // 120s
}

// Metric is a definition for the name, description, type, ID, and
// prometheus.Collector type (i.e. CounterVec, Summary, etc) of each metric
type Metric struct {
	MetricCollector prometheus.Collector
	ID              string
	Name            string
	Description     string
	Type            string
	Args            []string
}

// NewMetric associates prometheus.Collector based on Metric.Type
func NewMetric(m *Metric, subsystem string) prometheus.Collector {
	var metric prometheus.Collector
	switch m.Type {
	case "counter_vec":
		metric = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
			m.Args,
		)
	case "counter":
		metric = prometheus.NewCounter(
			prometheus.CounterOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
		)
	case "gauge_vec":
		metric = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
			m.Args,
		)
	case "gauge":
		metric = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
		)
	case "histogram_vec":
		metric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
			m.Args,
		)
	case "histogram":
		metric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
				Buckets:   HistogramBuckets,
			},
		)
	case "summary_vec":
		metric = prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
			m.Args,
		)
	case "summary":
		metric = prometheus.NewSummary(
			prometheus.SummaryOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
		)
	}
	return metric
}

var MetricsBusinessProcess = &Metric{
	ID:          "bpDur",
	Name:        "bp_dur",
	Description: "process latency in milliseconds",
	Type:        "histogram_vec",
	Args:        []string{"type", "subtype"},
}

var metricsCheckoutOutcome = &Metric{
	ID:          "checkoutOutcome",
	Name:        "checkout_outcome_total",
	Description: "Checkout attempts partitioned by payment method and classified outcome.",
	Type:        "counter_vec",
	Args:        []string{"method", "outcome"},
}

var metricsWebhookEvent = &Metric{
	ID:          "webhookEvent",
	Name:        "webhook_event_total",
	Description: "Webhook events partitioned by event type and acknowledgement.",
	Type:        "counter_vec",
	Args:        []string{"type", "ack"},
}

var metricsOrderFinalize = &Metric{
	ID:          "orderFinalize",
	Name:        "order_finalize_total",
	Description: "Order finalization results (created, upgraded, existing, failed).",
	Type:        "counter_vec",
	Args:        []string{"result"},
}

var metricsOrderPersistenceFailure = &Metric{
	ID:          "orderPersistenceFailure",
	Name:        "order_persistence_failures_total",
	Description: "Orders that could not be persisted after retries. Alert on any increase.",
	Type:        "counter",
}

const (
	RefererKey = "X-Referer"

	businessSubsystem = "cashier"
)

// Recorder records business metrics. A nil *Recorder is valid and records nothing.
type Recorder struct {
	processDur          *prometheus.HistogramVec
	checkoutOutcome     *prometheus.CounterVec
	webhookEvent        *prometheus.CounterVec
	orderFinalize       *prometheus.CounterVec
	persistenceFailures prometheus.Counter
}

// NewRecorder registers the business collectors on reg. Collectors that are
// already registered are reused.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	register := func(m *Metric) (prometheus.Collector, error) {
		c := NewMetric(m, businessSubsystem)
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				return are.ExistingCollector, nil
			}
			return nil, fmt.Errorf("register %s: %w", m.Name, err)
		}
		return c, nil
	}

	r := &Recorder{}
	c, err := register(MetricsBusinessProcess)
	if err != nil {
		return nil, err
	}
	r.processDur = c.(*prometheus.HistogramVec)
	if c, err = register(metricsCheckoutOutcome); err != nil {
		return nil, err
	}
	r.checkoutOutcome = c.(*prometheus.CounterVec)
	if c, err = register(metricsWebhookEvent); err != nil {
		return nil, err
	}
	r.webhookEvent = c.(*prometheus.CounterVec)
	if c, err = register(metricsOrderFinalize); err != nil {
		return nil, err
	}
	r.orderFinalize = c.(*prometheus.CounterVec)
	if c, err = register(metricsOrderPersistenceFailure); err != nil {
		return nil, err
	}
	r.persistenceFailures = c.(prometheus.Counter)
	return r, nil
}

// ObserveProcess records the latency of a business step since start.
func (r *Recorder) ObserveProcess(typ, subtype string, start time.Time) {
	if r == nil {
		return
	}
	r.processDur.WithLabelValues(typ, subtype).Observe(MillisecondsSince(start))
}

func (r *Recorder) CheckoutOutcome(method, outcome string) {
	if r == nil {
		return
	}
	r.checkoutOutcome.WithLabelValues(method, outcome).Inc()
}

func (r *Recorder) WebhookEvent(eventType, ack string) {
	if r == nil {
		return
	}
	r.webhookEvent.WithLabelValues(eventType, ack).Inc()
}

func (r *Recorder) OrderFinalized(result string) {
	if r == nil {
		return
	}
	r.orderFinalize.WithLabelValues(result).Inc()
}

func (r *Recorder) OrderPersistenceFailed() {
	if r == nil {
		return
	}
	r.persistenceFailures.Inc()
}

// MillisecondsSince returns the elapsed time since start in milliseconds.
func MillisecondsSince(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}

func newDefaultRegisterer() prometheus.Registerer { return prometheus.DefaultRegisterer }

var Module = fx.Options(
	fx.Provide(newDefaultRegisterer),
	fx.Provide(NewRecorder),
)
