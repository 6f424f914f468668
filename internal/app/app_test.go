package app

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/annel0/rts-aggro/internal/config"
	"github.com/annel0/rts-aggro/internal/logging"
	"github.com/annel0/rts-aggro/internal/storage"
	"github.com/annel0/rts-aggro/internal/world"
	"github.com/annel0/rts-aggro/internal/world/entity"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quietLogger = logging.NewWriterLogger("app", io.Discard, logging.ERROR)

const catalogYAML = `
units:
  - name: tank
    max_hp: 100
    aggro_range: 10
    attacks_ground: true
  - name: tower
    max_hp: 300
    aggro_range: 12
    attacks_ground: true
    attacks_air: true
    building: true
`

const scenarioYAML = `
name: skirmish
obstacles:
  - position: {x: 0, y: 0, z: 20}
    radius: 2
units:
  - definition: tank
    owner: red
    position: {x: 0, y: 0, z: 0}
    count: 3
    spacing: 2
  - definition: tower
    owner: blue
    position: {x: 3, y: 0, z: 4}
    forward: {x: -1, y: 0, z: 0}
`

func newScenarioWorld(t *testing.T) *world.World {
	t.Helper()
	w, err := world.New(world.Config{CellSize: 8, Logger: quietLogger})
	require.NoError(t, err)
	t.Cleanup(w.Close)

	catalog, err := entity.ParseCatalog([]byte(catalogYAML))
	require.NoError(t, err)
	w.SetCatalog(catalog)
	return w
}

func TestScenario_Apply(t *testing.T) {
	w := newScenarioWorld(t)

	sc, err := ParseScenario([]byte(scenarioYAML))
	require.NoError(t, err)
	assert.Equal(t, "skirmish", sc.Name)

	spawned, err := sc.Apply(context.Background(), w)
	require.NoError(t, err)
	require.Len(t, spawned, 4)

	// Препятствие занимает ID 1
	assert.Equal(t, uint64(2), spawned[0].ID)
	assert.Equal(t, 4.0, spawned[2].Position.X)
	assert.True(t, spawned[3].Building)
	assert.Equal(t, -1.0, spawned[3].Forward.X)
	assert.Len(t, w.Units(), 4)
}

func TestScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no definition", "units:\n  - owner: red\n"},
		{"negative count", "units:\n  - definition: tank\n    count: -1\n"},
		{"zero radius obstacle", "obstacles:\n  - radius: 0\n"},
		{"bad owner", "units:\n  - definition: tank\n    owner: \"red team!\"\n"},
		{"broken yaml", "units: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestScenario_UnknownDefinition(t *testing.T) {
	w := newScenarioWorld(t)

	sc, err := ParseScenario([]byte("units:\n  - definition: tank\n  - definition: carrier\n"))
	require.NoError(t, err)

	spawned, err := sc.Apply(context.Background(), w)
	assert.ErrorIs(t, err, entity.ErrUnknownDefinition)
	assert.Len(t, spawned, 1)
}

// countingTicker считает вызовы Tick
type countingTicker struct {
	ticks atomic.Uint64
	delay time.Duration
}

func (c *countingTicker) Tick(context.Context) world.TickReport {
	time.Sleep(c.delay)
	n := c.ticks.Add(1)
	return world.TickReport{Tick: n, Units: 2, Engaged: 1, Changes: []world.TargetChange{{UnitID: 1, CurrentID: 2}}}
}

func TestSimulation_Step(t *testing.T) {
	ticker := &countingTicker{}
	sim := NewSimulation(ticker, time.Second, quietLogger)

	report := sim.Step(context.Background())
	assert.Equal(t, uint64(1), report.Tick)
	assert.Len(t, report.Changes, 1)

	stats := sim.Stats()
	assert.False(t, stats.Running)
	assert.Equal(t, uint64(1), stats.Ticks)
	assert.Equal(t, 2, stats.Units)
	assert.Equal(t, 1, stats.Engaged)
	assert.Zero(t, stats.Overruns)
}

func TestSimulation_CountsOverruns(t *testing.T) {
	ticker := &countingTicker{delay: 5 * time.Millisecond}
	sim := NewSimulation(ticker, time.Millisecond, quietLogger)

	sim.Step(context.Background())
	assert.Equal(t, uint64(1), sim.Stats().Overruns)
	assert.GreaterOrEqual(t, sim.Stats().LastDuration, 5*time.Millisecond)
}

func TestSimulation_RunAndStop(t *testing.T) {
	ticker := &countingTicker{}
	sim := NewSimulation(ticker, time.Millisecond, quietLogger)

	go sim.Run(context.Background())

	require.Eventually(t, func() bool {
		return ticker.ticks.Load() >= 3
	}, 2*time.Second, time.Millisecond)
	assert.True(t, sim.Stats().Running)

	sim.Stop()
	assert.False(t, sim.Stats().Running)

	stopped := ticker.ticks.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, stopped, ticker.ticks.Load())

	// Stop без запуска не блокирует
	NewSimulation(ticker, time.Millisecond, quietLogger).Stop()
}

func TestSimulation_RunStopsOnContext(t *testing.T) {
	sim := NewSimulation(&countingTicker{}, time.Millisecond, quietLogger)
	ctx, cancel := context.WithCancel(context.Background())

	finished := make(chan struct{})
	go func() {
		sim.Run(ctx)
		close(finished)
	}()

	cancel()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Run не завершился после отмены контекста")
	}
}

func TestMetricsObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetricsObserver(reg)
	require.NoError(t, err)

	m.TickCompleted(context.Background(), world.TickReport{
		Tick:        1,
		Duration:    time.Millisecond,
		Units:       5,
		Engaged:     2,
		Queries:     4,
		Candidates:  9,
		Invalidated: 1,
		Changes: []world.TargetChange{
			{UnitID: 1, CurrentID: 2},
			{UnitID: 3, PreviousID: 4, CurrentID: 5},
			{UnitID: 6, PreviousID: 7, Invalidated: true},
		},
	})
	m.UnitDied(context.Background(), world.UnitInfo{ID: 7})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.acquired))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.lost))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.invalidated))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.queries))
	assert.Equal(t, 9.0, testutil.ToFloat64(m.candidates))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.units))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.engaged))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deaths))

	// Повторная регистрация в том же реестре даёт ошибку
	_, err = NewMetricsObserver(reg)
	assert.Error(t, err)
}

func TestOpenTargetRepo(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		repo, err := OpenTargetRepo(ctx, config.Default())
		require.NoError(t, err)
		defer repo.Close()
		assert.IsType(t, &storage.MemoryTargetRepo{}, repo)
	})

	t.Run("badger", func(t *testing.T) {
		cfg := config.Default()
		cfg.Storage.Backend = config.BackendBadger
		cfg.Storage.BadgerPath = t.TempDir()

		repo, err := OpenTargetRepo(ctx, cfg)
		require.NoError(t, err)
		defer repo.Close()
		assert.IsType(t, &storage.BadgerTargetRepo{}, repo)
	})

	t.Run("redis", func(t *testing.T) {
		server := miniredis.RunT(t)
		cfg := config.Default()
		cfg.Storage.Backend = config.BackendRedis
		cfg.Redis.Addr = server.Addr()

		repo, err := OpenTargetRepo(ctx, cfg)
		require.NoError(t, err)
		defer repo.Close()
		assert.IsType(t, &storage.RedisTargetRepo{}, repo)
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := config.Default()
		cfg.Storage.Backend = "mongo"
		_, err := OpenTargetRepo(ctx, cfg)
		assert.Error(t, err)
	})
}
