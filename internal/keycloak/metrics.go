// metrics.go — HTTP-клиент к Keycloak с Prometheus-метриками.
// Регистрирует метрику keycloak_setup_admin_requests_total{method,code}.
package keycloak

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewHTTPClient создаёт HTTP-клиент, считающий запросы к Keycloak.
// registerer может быть nil — тогда метрики не регистрируются.
// transport == nil — http.DefaultTransport.
func NewHTTPClient(timeout time.Duration, transport http.RoundTripper, registerer prometheus.Registerer) *http.Client {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	requests := promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "keycloak_setup_admin_requests_total",
			Help: "Количество HTTP-запросов к Keycloak по методу и статусу ответа",
		},
		[]string{"method", "code"},
	)

	return &http.Client{
		Timeout:   timeout,
		Transport: promhttp.InstrumentRoundTripperCounter(requests, transport),
	}
}
