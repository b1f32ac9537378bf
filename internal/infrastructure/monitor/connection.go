package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fastygo/soup/internal/infrastructure/buffer"
	"github.com/fastygo/soup/internal/metrics"
)

const (
	depPostgres = "postgresql"
	depRedis    = "redis"
)

// dependency is one remote store the monitor pings.
type dependency struct {
	name    string
	timeout time.Duration
	ping    func(ctx context.Context) error
}

// Monitor keeps the last known state of the frecency store, the ranking
// cache and the offline tracking buffer.
type Monitor struct {
	deps       []dependency
	bufferSize func() (int, error)
	interval   time.Duration
	logger     *zap.Logger
	now        func() time.Time

	mu     sync.RWMutex
	status Status

	stopCh   chan struct{}
	stopOnce sync.Once
}

func New(pg *pgxpool.Pool, redis *redislib.Client, buf *buffer.Store, interval time.Duration, logger *zap.Logger) *Monitor {
	var deps []dependency
	if pg != nil {
		deps = append(deps, dependency{name: depPostgres, timeout: 3 * time.Second, ping: pg.Ping})
	}
	if redis != nil {
		deps = append(deps, dependency{name: depRedis, timeout: 2 * time.Second, ping: func(ctx context.Context) error {
			return redis.Ping(ctx).Err()
		}})
	}
	var size func() (int, error)
	if buf != nil {
		size = buf.Size
	}
	return newMonitor(deps, size, interval, logger)
}

func newMonitor(deps []dependency, bufferSize func() (int, error), interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		deps:       deps,
		bufferSize: bufferSize,
		interval:   interval,
		logger:     logger,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
}

// Start checks once synchronously, so the first health request after
// startup sees real state, then keeps checking every interval.
func (m *Monitor) Start() {
	m.refresh(context.Background())
	go m.loop()
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// IsOnline reports whether buffered events can be replayed.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Healthy()
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.refresh(context.Background())
		case <-m.stopCh:
			return
		}
	}
}

// refresh pings every dependency concurrently and publishes the result.
func (m *Monitor) refresh(ctx context.Context) {
	up := make([]bool, len(m.deps))
	took := make([]time.Duration, len(m.deps))

	var g errgroup.Group
	for i, dep := range m.deps {
		g.Go(func() error {
			pingCtx, cancel := context.WithTimeout(ctx, dep.timeout)
			defer cancel()
			start := time.Now()
			err := dep.ping(pingCtx)
			took[i] = time.Since(start)
			up[i] = err == nil
			if err != nil {
				m.logger.Debug("dependency ping failed", zap.String("dependency", dep.name), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	status := Status{LastCheck: m.now(), Latency: make(map[string]time.Duration, len(m.deps))}
	for i, dep := range m.deps {
		status.Latency[dep.name] = took[i]
		switch dep.name {
		case depPostgres:
			status.PostgreSQL = up[i]
		case depRedis:
			status.Redis = up[i]
		}
	}
	status.Buffer, status.BufferSize = m.checkBuffer()
	metrics.BufferedEvents.Set(float64(status.BufferSize))

	m.mu.Lock()
	prev := m.status
	m.status = status
	m.mu.Unlock()

	if prev.PostgreSQL != status.PostgreSQL || prev.Redis != status.Redis {
		m.logger.Info("dependency status changed",
			zap.Bool("postgresql", status.PostgreSQL),
			zap.Bool("redis", status.Redis),
			zap.Int("buffered_events", status.BufferSize))
	}
}

func (m *Monitor) checkBuffer() (bool, int) {
	if m.bufferSize == nil {
		return false, 0
	}
	size, err := m.bufferSize()
	if err != nil {
		m.logger.Warn("buffer size check failed", zap.Error(err))
		return false, size
	}
	return true, size
}
