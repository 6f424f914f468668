package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/rts-aggro/internal/logging"
	"github.com/annel0/rts-aggro/internal/world"
)

// Ticker то, что симуляция вызывает раз в тик
type Ticker interface {
	Tick(ctx context.Context) world.TickReport
}

// Stats статистика цикла симуляции
type Stats struct {
	Running      bool          `json:"running"`
	Ticks        uint64        `json:"ticks"`
	Overruns     uint64        `json:"overruns"` // Тики дольше интервала
	LastDuration time.Duration `json:"last_duration_ns"`
	AvgDuration  time.Duration `json:"avg_duration_ns"`
	Engaged      int           `json:"engaged"`
	Units        int           `json:"units"`
}

// Simulation гоняет тики мира с фиксированной частотой
type Simulation struct {
	world    Ticker
	interval time.Duration
	logger   *logging.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool

	ticks     atomic.Uint64
	overruns  atomic.Uint64
	totalNs   atomic.Int64
	lastNs    atomic.Int64
	lastState atomic.Value // world.TickReport без Changes
}

// NewSimulation создаёт цикл с интервалом interval
func NewSimulation(w Ticker, interval time.Duration, logger *logging.Logger) *Simulation {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &Simulation{world: w, interval: interval, logger: logger}
}

// Step выполняет один тик и обновляет статистику
func (s *Simulation) Step(ctx context.Context) world.TickReport {
	start := time.Now()
	report := s.world.Tick(ctx)
	elapsed := time.Since(start)

	s.ticks.Add(1)
	s.totalNs.Add(int64(elapsed))
	s.lastNs.Store(int64(elapsed))
	if elapsed > s.interval {
		s.overruns.Add(1)
		s.logger.Warn("⏱️ Тик %d занял %v (интервал %v)", report.Tick, elapsed, s.interval)
	}

	light := report
	light.Changes = nil
	s.lastState.Store(light)
	return report
}

// Run крутит цикл до отмены ctx или вызова Stop. Повторный запуск возвращает сразу.
func (s *Simulation) Run(ctx context.Context) {
	s.mu.Lock()
	if s.running.Load() {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.running.Store(true)
	s.mu.Unlock()

	defer func() {
		s.running.Store(false)
		cancel()
		close(done)
	}()

	s.logger.Info("▶️ Симуляция запущена (интервал %v)", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("⏹️ Симуляция остановлена после %d тиков", s.ticks.Load())
			return
		case <-ticker.C:
			s.Step(ctx)
		}
	}
}

// Stop останавливает цикл и ждёт завершения текущего тика
func (s *Simulation) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Stats возвращает снимок статистики
func (s *Simulation) Stats() Stats {
	stats := Stats{
		Running:      s.running.Load(),
		Ticks:        s.ticks.Load(),
		Overruns:     s.overruns.Load(),
		LastDuration: time.Duration(s.lastNs.Load()),
	}
	if stats.Ticks > 0 {
		stats.AvgDuration = time.Duration(s.totalNs.Load() / int64(stats.Ticks))
	}
	if last, ok := s.lastState.Load().(world.TickReport); ok {
		stats.Engaged = last.Engaged
		stats.Units = last.Units
	}
	return stats
}
