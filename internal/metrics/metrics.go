package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	RequestsTotal  = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "leakctl_api_requests_total", Help: "API requests by endpoint and status"}, []string{"endpoint", "status"})
	CacheTotal     = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "leakctl_cache_total", Help: "response cache lookups"}, []string{"result"})
	RateLimitWaits = prometheus.NewCounter(prometheus.CounterOpts{Name: "leakctl_rate_limit_waits_total", Help: "429 waits honored"})
	RecordsTotal   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "leakctl_records_total", Help: "records by outcome"}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(RequestsTotal, CacheTotal, RateLimitWaits, RecordsTotal)
}

func Serve(addr string, log *zap.SugaredLogger) {
	http.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Warn("metrics server stopped", "err", err)
	}
}
