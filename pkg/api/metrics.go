package api

import (
	"context"
	"errors"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fancl20/trustchain/pkg/authority"
)

// Metrics holds the RPC and validation metrics of one server.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	verdicts *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trustchain",
			Name:      "rpc_requests_total",
			Help:      "Number of handled RPCs by procedure and result code.",
		}, []string{"procedure", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "trustchain",
			Name:      "rpc_duration_seconds",
			Help:      "Latency of handled RPCs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"procedure"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trustchain",
			Name:      "message_verdicts_total",
			Help:      "Received messages by verdict and failing hop.",
		}, []string{"valid", "hop"}),
	}
	for _, c := range []prometheus.Collector{m.requests, m.duration, m.verdicts} {
		if err := register(reg, c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func register(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return nil
		}
		return err
	}
	return nil
}

// Interceptor records count and latency of every unary call.
func (m *Metrics) Interceptor() connect.Interceptor {
	return connect.UnaryInterceptorFunc(func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			res, err := next(ctx, req)
			procedure := req.Spec().Procedure
			code := "ok"
			if err != nil {
				code = connect.CodeOf(err).String()
			}
			m.requests.WithLabelValues(procedure, code).Inc()
			m.duration.WithLabelValues(procedure).Observe(time.Since(start).Seconds())
			return res, err
		}
	})
}

// ObserveVerdict counts a received message.
func (m *Metrics) ObserveVerdict(v authority.Verdict) {
	valid := "false"
	if v.Valid {
		valid = "true"
	}
	m.verdicts.WithLabelValues(valid, string(v.Hop)).Inc()
}
