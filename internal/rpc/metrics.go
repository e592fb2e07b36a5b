package rpc

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	rpcRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "predictd",
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "Total number of RPC calls",
		},
		[]string{"method", "code"},
	)

	rpcRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "predictd",
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "Duration of RPC calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "code"},
	)

	rpcInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "predictd",
			Subsystem: "rpc",
			Name:      "inflight_requests",
			Help:      "In-flight RPC calls",
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(rpcRequestsTotal, rpcRequestDuration, rpcInflight)
}

// MetricsInterceptor instruments unary calls for Prometheus.
func MetricsInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	rpcInflight.WithLabelValues(info.FullMethod).Inc()
	defer rpcInflight.WithLabelValues(info.FullMethod).Dec()

	start := time.Now()
	resp, err := handler(ctx, req)
	code := status.Code(err).String()
	rpcRequestsTotal.WithLabelValues(info.FullMethod, code).Inc()
	rpcRequestDuration.WithLabelValues(info.FullMethod, code).Observe(time.Since(start).Seconds())
	return resp, err
}
