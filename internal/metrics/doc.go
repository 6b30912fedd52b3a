// Package metrics provides job execution metrics for the worker pool.
//
// Metrics counts submitted, rejected, completed and panicked jobs plus queue
// growth events, and samples job run times for average and P99 figures. It
// is thread-safe; the pool records into it from every worker.
//
// # Basic Usage
//
//	m := metrics.New()
//	pool := worker.NewPool(worker.PoolConfig{Metrics: m})
//
//	// ... run jobs ...
//
//	snap := m.Snapshot()
//	fmt.Printf("Completed: %d, Throughput: %.2f/s, P99: %v\n",
//	    snap.Completed, snap.Throughput, snap.P99RunTime)
//
// # Configuration
//
// Use NewWithConfig for custom settings:
//
//	m := metrics.NewWithConfig(metrics.Config{
//	    MaxSamples: 5000, // More samples for P99 accuracy
//	})
//
// # Prometheus
//
// Collector exposes the counters together with live pool gauges:
//
//	reg := prometheus.NewRegistry()
//	reg.MustRegister(metrics.NewCollector("default", m, pool))
//
// # Thread Safety
//
// All operations use atomic counters and are safe for concurrent access.
package metrics
