// metrics.go — Prometheus-метрики прогона reconciliation.
//
//   - keycloak_setup_steps_total{mode,kind,outcome} — завершённые шаги
//   - keycloak_setup_run_duration_seconds{mode} — длительность прогона
package reconcile

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// outcomeFailed — значение метки outcome для шага, завершившегося ошибкой.
const outcomeFailed = "failed"

// Metrics — счётчики шагов и длительность прогона.
type Metrics struct {
	steps    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics регистрирует метрики в registerer.
// registerer == nil — метрики создаются, но не регистрируются.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		steps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "keycloak_setup_steps_total",
			Help: "Количество выполненных шагов reconciliation по режиму, виду ресурса и результату",
		}, []string{"mode", "kind", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "keycloak_setup_run_duration_seconds",
			Help:    "Длительность прогона reconciliation",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s … ~51s
		}, []string{"mode"}),
	}
}

func (m *Metrics) observeStep(mode Mode, kind, outcome string) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(string(mode), kind, outcome).Inc()
}

func (m *Metrics) observeRun(mode Mode, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(string(mode)).Observe(d.Seconds())
}
