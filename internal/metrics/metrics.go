package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters for booking and lifecycle transitions.
type SchedulingMetrics struct {
	bookings    *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Booking and reschedule attempts by outcome",
		}, []string{"operation", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "transitions_total",
			Help:      "Appointment status transitions applied",
		}, []string{"to"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookings, m.transitions)
	return m
}

// ObserveBooking records a book or reschedule outcome: ok, conflict,
// invalid or error.
func (m *SchedulingMetrics) ObserveBooking(operation, outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(operation, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveTransition(to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to).Inc()
}

// BillingMetrics exposes counters for bill calculation and settlement.
type BillingMetrics struct {
	bills       *prometheus.CounterVec
	settlements *prometheus.CounterVec
	coverage    prometheus.Histogram
}

func NewBillingMetrics(reg prometheus.Registerer) *BillingMetrics {
	m := &BillingMetrics{
		bills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "billing",
			Name:      "bills_calculated_total",
			Help:      "Bills calculated, split by whether insurance contributed",
		}, []string{"insured"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "billing",
			Name:      "settlements_total",
			Help:      "Payment settlement attempts by method and outcome",
		}, []string{"method", "outcome"}),
		coverage: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "billing",
			Name:      "insurance_coverage_ratio",
			Help:      "Share of a bill covered by insurance",
			Buckets:   []float64{0, 0.25, 0.5, 0.7, 0.8, 0.9, 1},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bills, m.settlements, m.coverage)
	return m
}

func (m *BillingMetrics) ObserveBill(amount, coverage int64) {
	if m == nil || amount <= 0 {
		return
	}
	insured := "false"
	if coverage > 0 {
		insured = "true"
	}
	m.bills.WithLabelValues(insured).Inc()
	m.coverage.Observe(float64(coverage) / float64(amount))
}

func (m *BillingMetrics) ObserveSettlement(method, outcome string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(method, outcome).Inc()
}
