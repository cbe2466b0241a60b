package database

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// QueryDuration observes every traced query by operation and outcome.
var QueryDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	},
	[]string{"operation", "outcome"},
)

type poolStat struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(*pgxpool.Stat) float64
}

// PoolStatsCollector exports pgxpool statistics.
type PoolStatsCollector struct {
	pool    *pgxpool.Pool
	service string
	stats   []poolStat
}

// NewPoolStatsCollector creates a collector for pool, labelled with service.
func NewPoolStatsCollector(pool *pgxpool.Pool, service string) *PoolStatsCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("db_pool_"+name, help, []string{"service"}, nil)
	}
	gauge, counter := prometheus.GaugeValue, prometheus.CounterValue

	return &PoolStatsCollector{
		pool:    pool,
		service: service,
		stats: []poolStat{
			{desc("acquired_connections", "Connections currently in use"), gauge,
				func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }},
			{desc("idle_connections", "Connections currently idle"), gauge,
				func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }},
			{desc("total_connections", "Connections open in the pool"), gauge,
				func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }},
			{desc("max_connections", "Pool size limit"), gauge,
				func(s *pgxpool.Stat) float64 { return float64(s.MaxConns()) }},
			{desc("acquire_count_total", "Connection acquires"), counter,
				func(s *pgxpool.Stat) float64 { return float64(s.AcquireCount()) }},
			{desc("acquire_duration_seconds_total", "Time spent waiting for connections"), counter,
				func(s *pgxpool.Stat) float64 { return s.AcquireDuration().Seconds() }},
			{desc("empty_acquire_count_total", "Acquires that had to wait for a free connection"), counter,
				func(s *pgxpool.Stat) float64 { return float64(s.EmptyAcquireCount()) }},
			{desc("canceled_acquire_count_total", "Acquires cancelled by their context"), counter,
				func(s *pgxpool.Stat) float64 { return float64(s.CanceledAcquireCount()) }},
		},
	}
}

// Describe implements prometheus.Collector.
func (c *PoolStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, s := range c.stats {
		ch <- s.desc
	}
}

// Collect implements prometheus.Collector.
func (c *PoolStatsCollector) Collect(ch chan<- prometheus.Metric) {
	stat := c.pool.Stat()
	for _, s := range c.stats {
		ch <- prometheus.MustNewConstMetric(s.desc, s.kind, s.value(stat), c.service)
	}
}

// RegisterPoolMetrics registers a collector for pool with reg.
func RegisterPoolMetrics(reg prometheus.Registerer, pool *pgxpool.Pool, service string) error {
	return reg.Register(NewPoolStatsCollector(pool, service))
}
