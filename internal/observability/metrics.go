package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TCPConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "avl_tcp_connections_total",
		Help: "Accepted terminal connections",
	})
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "avl_active_sessions",
		Help: "Sessions currently open",
	})
	HandshakeOK = promauto.NewCounter(prometheus.CounterOpts{
		Name: "avl_handshake_ok_total",
		Help: "IMEI handshakes accepted",
	})
	HandshakeRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "avl_handshake_rejected_total",
		Help: "IMEI handshakes rejected or unparseable",
	})
	PacketsRecv = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avl_packets_received_total",
		Help: "Verified AVL frames by codec",
	}, []string{"codec"})
	RecordsAck = promauto.NewCounter(prometheus.CounterOpts{
		Name: "avl_records_ack_total",
		Help: "AVL records acknowledged to terminals",
	})
	ParseErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avl_parse_errors_total",
		Help: "Malformed frames by reason",
	}, []string{"reason"})
	Retransmissions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "avl_retransmission_requests_total",
		Help: "Retransmission requests raised by session state machines",
	})
	ProtocolErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avl_protocol_errors_total",
		Help: "Sessions that entered the error state, by last state",
	}, []string{"from"})
	BatchesDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avl_batches_delivered_total",
		Help: "Batches delivered per sink",
	}, []string{"sink"})
	DeliveryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avl_delivery_errors_total",
		Help: "Failed deliveries per sink",
	}, []string{"sink"})
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "avl_dispatch_queue_depth",
		Help: "Items waiting in the dispatcher queue",
	})
	ParseLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "avl_parse_latency_seconds",
		Help:    "Frame extraction latency",
		Buckets: prometheus.DefBuckets,
	})
)

func ObserveParseLatency(start time.Time) {
	ParseLatency.Observe(time.Since(start).Seconds())
}

// NewHTTPServer serves /metrics and /healthz, plus any extra handlers keyed by path.
func NewHTTPServer(addr string, extra map[string]http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	for path, h := range extra {
		mux.Handle(path, h)
	}
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Serve runs srv until ctx is done, then shuts it down.
func Serve(ctx context.Context, srv *http.Server) error {
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
