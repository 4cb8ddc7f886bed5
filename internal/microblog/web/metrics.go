package web

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sufield/upwire/uphttp"
)

var (
	// requestsTotal counts served requests by method and status.
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "microblog_http_requests_total",
		Help: "Total HTTP requests by method and status",
	}, []string{"method", "status"})

	// unpolyRequestsTotal counts the protocol-aware share of the traffic.
	unpolyRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "microblog_unpoly_requests_total",
		Help: "Requests issued by the Unpoly frontend",
	})
)

// metrics records request counters. It runs inside the upwire middleware
// so it can tell protocol-aware requests apart.
func (h *Handler) metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		requestsTotal.WithLabelValues(r.Method, strconv.Itoa(ww.Status())).Inc()
		if up, ok := uphttp.FromRequest(r); ok && up.Active() {
			unpolyRequestsTotal.Inc()
		}
	})
}
