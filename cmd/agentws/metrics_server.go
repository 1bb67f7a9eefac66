package main

import (
	"net/http"

	"github.com/agentws/agentws/internal/metrics"
)

func newMetricsMux(m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	return mux
}

func listenAndServe(addr string, handler http.Handler) error {
	return http.ListenAndServe(addr, handler)
}
