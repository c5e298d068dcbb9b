package database

import (
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// PoolStats is a backend-neutral snapshot of connection pool state.
type PoolStats struct {
	Acquired     int64
	Idle         int64
	Total        int64
	Max          int64
	WaitCount    int64
	WaitDuration time.Duration
}

// StatsFunc returns the current pool snapshot.
type StatsFunc func() PoolStats

// PgxPoolStats adapts a pgx pool.
func PgxPoolStats(pool *pgxpool.Pool) StatsFunc {
	return func() PoolStats {
		s := pool.Stat()
		return PoolStats{
			Acquired:     int64(s.AcquiredConns()),
			Idle:         int64(s.IdleConns()),
			Total:        int64(s.TotalConns()),
			Max:          int64(s.MaxConns()),
			WaitCount:    s.EmptyAcquireCount(),
			WaitDuration: s.AcquireDuration(),
		}
	}
}

// SQLDBStats adapts a database/sql handle.
func SQLDBStats(db *sql.DB) StatsFunc {
	return func() PoolStats {
		s := db.Stats()
		return PoolStats{
			Acquired:     int64(s.InUse),
			Idle:         int64(s.Idle),
			Total:        int64(s.OpenConnections),
			Max:          int64(s.MaxOpenConnections),
			WaitCount:    s.WaitCount,
			WaitDuration: s.WaitDuration,
		}
	}
}

// PoolStatsCollector implements prometheus.Collector over a StatsFunc.
type PoolStatsCollector struct {
	stats   StatsFunc
	backend string

	acquiredConns *prometheus.Desc
	idleConns     *prometheus.Desc
	totalConns    *prometheus.Desc
	maxConns      *prometheus.Desc
	waitCount     *prometheus.Desc
	waitDuration  *prometheus.Desc
}

// NewPoolStatsCollector exports pool statistics labelled with backend.
func NewPoolStatsCollector(backend string, stats StatsFunc) *PoolStatsCollector {
	labels := []string{"backend"}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("storefront_db_pool_"+name, help, labels, nil)
	}
	return &PoolStatsCollector{
		stats:         stats,
		backend:       backend,
		acquiredConns: desc("acquired_connections", "Number of currently acquired connections"),
		idleConns:     desc("idle_connections", "Number of currently idle connections"),
		totalConns:    desc("total_connections", "Total number of connections in the pool"),
		maxConns:      desc("max_connections", "Maximum number of connections allowed"),
		waitCount:     desc("wait_count_total", "Total number of acquires that had to wait for a connection"),
		waitDuration:  desc("wait_duration_seconds_total", "Total time spent waiting for connections in seconds"),
	}
}

// Describe implements prometheus.Collector.
func (c *PoolStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.acquiredConns
	ch <- c.idleConns
	ch <- c.totalConns
	ch <- c.maxConns
	ch <- c.waitCount
	ch <- c.waitDuration
}

// Collect implements prometheus.Collector.
func (c *PoolStatsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()

	ch <- prometheus.MustNewConstMetric(c.acquiredConns, prometheus.GaugeValue, float64(s.Acquired), c.backend)
	ch <- prometheus.MustNewConstMetric(c.idleConns, prometheus.GaugeValue, float64(s.Idle), c.backend)
	ch <- prometheus.MustNewConstMetric(c.totalConns, prometheus.GaugeValue, float64(s.Total), c.backend)
	ch <- prometheus.MustNewConstMetric(c.maxConns, prometheus.GaugeValue, float64(s.Max), c.backend)
	ch <- prometheus.MustNewConstMetric(c.waitCount, prometheus.CounterValue, float64(s.WaitCount), c.backend)
	ch <- prometheus.MustNewConstMetric(c.waitDuration, prometheus.CounterValue, s.WaitDuration.Seconds(), c.backend)
}

// RegisterPoolMetrics registers a collector with reg, tolerating a previous
// registration under the same backend label.
func RegisterPoolMetrics(reg prometheus.Registerer, backend string, stats StatsFunc) error {
	err := reg.Register(NewPoolStatsCollector(backend, stats))
	if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
		return nil
	}
	return err
}
