package docstore

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pollen_docstore_operations_total",
		Help: "Document store operations by operation and result",
	}, []string{"operation", "result"})

	opDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pollen_docstore_operation_duration_seconds",
		Help:    "Document store operation latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	}, []string{"operation"})

	activeSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pollen_docstore_active_subscriptions",
		Help: "Open document subscriptions",
	})
)

// Instrumented records Prometheus metrics around another Store.
type Instrumented struct {
	next Store
}

func NewInstrumented(next Store) *Instrumented {
	return &Instrumented{next: next}
}

func observe(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	opsTotal.WithLabelValues(op, result).Inc()
	opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (s *Instrumented) Read(ctx context.Context, path string) (Snapshot, error) {
	start := time.Now()
	snap, err := s.next.Read(ctx, path)
	observe("read", start, err)
	return snap, err
}

func (s *Instrumented) Write(ctx context.Context, path string, doc Document, opts WriteOptions) error {
	start := time.Now()
	err := s.next.Write(ctx, path, doc, opts)
	observe("write", start, err)
	return err
}

func (s *Instrumented) Append(ctx context.Context, collection string, doc Document) (string, error) {
	start := time.Now()
	id, err := s.next.Append(ctx, collection, doc)
	observe("append", start, err)
	return id, err
}

func (s *Instrumented) List(ctx context.Context, collection string, q Query) ([]Snapshot, error) {
	start := time.Now()
	snaps, err := s.next.List(ctx, collection, q)
	observe("list", start, err)
	return snaps, err
}

func (s *Instrumented) Subscribe(ctx context.Context, path string) (<-chan Snapshot, func(), error) {
	start := time.Now()
	ch, cancel, err := s.next.Subscribe(ctx, path)
	observe("subscribe", start, err)
	if err != nil {
		return nil, nil, err
	}
	activeSubscriptions.Inc()
	var once sync.Once
	stop := func() {
		once.Do(func() {
			activeSubscriptions.Dec()
			cancel()
		})
	}
	return ch, stop, nil
}

func (s *Instrumented) Close() error { return s.next.Close() }
