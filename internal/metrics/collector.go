package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "thpool"

// GaugeSource はプールの現在値を提供する
type GaugeSource interface {
	Alive() int
	Executing() int
	QueueLen() int
	QueueCap() int
}

// Collector はMetricsとプールの状態をPrometheusへ公開する
type Collector struct {
	metrics *Metrics
	source  GaugeSource

	submitted *prometheus.Desc
	rejected  *prometheus.Desc
	completed *prometheus.Desc
	panicked  *prometheus.Desc
	grows     *prometheus.Desc
	avgRun    *prometheus.Desc
	p99Run    *prometheus.Desc
	alive     *prometheus.Desc
	executing *prometheus.Desc
	queueLen  *prometheus.Desc
	queueCap  *prometheus.Desc
}

// NewCollector は新しいCollectorを作成する
// source が nil の場合はゲージを出力しない
func NewCollector(pool string, m *Metrics, source GaugeSource) *Collector {
	labels := prometheus.Labels{"pool": pool}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, labels)
	}

	return &Collector{
		metrics:   m,
		source:    source,
		submitted: desc("jobs_submitted_total", "Total number of jobs accepted into the queue"),
		rejected:  desc("jobs_rejected_total", "Total number of jobs the pool refused"),
		completed: desc("jobs_completed_total", "Total number of jobs that returned normally"),
		panicked:  desc("jobs_panicked_total", "Total number of jobs that panicked"),
		grows:     desc("queue_grows_total", "Total number of queue capacity doublings"),
		avgRun:    desc("job_run_seconds_avg", "Average job execution time in seconds"),
		p99Run:    desc("job_run_seconds_p99", "Sampled 99th percentile job execution time in seconds"),
		alive:     desc("workers_alive", "Number of workers currently alive"),
		executing: desc("workers_executing", "Number of workers currently executing a job"),
		queueLen:  desc("queue_length", "Number of jobs waiting in the queue"),
		queueCap:  desc("queue_capacity", "Allocated queue slots"),
	}
}

// Describe は prometheus.Collector を実装する
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.submitted
	ch <- c.rejected
	ch <- c.completed
	ch <- c.panicked
	ch <- c.grows
	ch <- c.avgRun
	ch <- c.p99Run
	ch <- c.alive
	ch <- c.executing
	ch <- c.queueLen
	ch <- c.queueCap
}

// Collect は prometheus.Collector を実装する
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.metrics
	ch <- prometheus.MustNewConstMetric(c.submitted, prometheus.CounterValue, float64(m.Submitted()))
	ch <- prometheus.MustNewConstMetric(c.rejected, prometheus.CounterValue, float64(m.Rejected()))
	ch <- prometheus.MustNewConstMetric(c.completed, prometheus.CounterValue, float64(m.Completed()))
	ch <- prometheus.MustNewConstMetric(c.panicked, prometheus.CounterValue, float64(m.Panicked()))
	ch <- prometheus.MustNewConstMetric(c.grows, prometheus.CounterValue, float64(m.Grows()))
	ch <- prometheus.MustNewConstMetric(c.avgRun, prometheus.GaugeValue, m.AverageRunTime().Seconds())
	ch <- prometheus.MustNewConstMetric(c.p99Run, prometheus.GaugeValue, m.P99RunTime().Seconds())

	if c.source == nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.alive, prometheus.GaugeValue, float64(c.source.Alive()))
	ch <- prometheus.MustNewConstMetric(c.executing, prometheus.GaugeValue, float64(c.source.Executing()))
	ch <- prometheus.MustNewConstMetric(c.queueLen, prometheus.GaugeValue, float64(c.source.QueueLen()))
	ch <- prometheus.MustNewConstMetric(c.queueCap, prometheus.GaugeValue, float64(c.source.QueueCap()))
}
