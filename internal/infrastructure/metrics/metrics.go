package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "polyagent_ticks_total", Help: "Trading cycles completed"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "polyagent_signals_total", Help: "Signals by strategy and outcome status"},
		[]string{"strategy", "status"},
	)
	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "polyagent_trades_total", Help: "Executed trades by strategy and side"},
		[]string{"strategy", "side"},
	)
	RejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "polyagent_rejections_total", Help: "Risk gate rejections by reason"},
		[]string{"reason"},
	)
	PortfolioValue = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "polyagent_portfolio_value", Help: "Last snapshotted total portfolio value"},
	)
)

func init() {
	prometheus.MustRegister(TicksTotal, SignalsTotal, TradesTotal, RejectionsTotal, PortfolioValue)
}

// Serve exposes /metrics on addr. The returned server is already listening;
// the caller owns shutdown.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
