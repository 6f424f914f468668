package world

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/annel0/rts-aggro/internal/aggro"
	"github.com/annel0/rts-aggro/internal/logging"
	"github.com/annel0/rts-aggro/internal/physics"
	"github.com/annel0/rts-aggro/internal/vec"
	"github.com/annel0/rts-aggro/internal/world/entity"
	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrEntityNotFound сущность с таким ID отсутствует в мире
	ErrEntityNotFound = errors.New("entity not found")
	// ErrInvalidDamage урон должен быть положительным числом
	ErrInvalidDamage = errors.New("damage must be positive")
)

// Config настройки мира
type Config struct {
	CellSize           float64         // Размер ячейки пространственного индекса
	DirectionThreshold float64         // Допуск прицеливания направленного оружия
	CapsuleHalfHeight  float64         // Полувысота капсулы поиска
	Workers            int             // При > 1 фаза агрессии выполняется пулом горутин
	Logger             *logging.Logger // По умолчанию глобальный логгер
}

// World хранит юнитов, их коллайдеры и контроллеры агрессии.
// Во время тика мир заблокирован на запись: здоровье и позиции не меняются,
// каждый контроллер пишет только свою цель.
type World struct {
	mu          sync.RWMutex
	cfg         Config
	index       *SpatialIndex
	entities    map[uint64]*entity.Entity
	controllers map[uint64]*aggro.Controller
	order       []uint64 // ID юнитов по возрастанию
	obstacles   map[physics.Handle]struct{}
	nextID      uint64
	currentTick uint64
	catalog     *entity.Catalog
	observers   []Observer
	pool        *ants.Pool
	tracer      trace.Tracer
	logger      *logging.Logger
}

// New создаёт новый мир
func New(cfg Config) (*World, error) {
	if cfg.Logger == nil {
		cfg.Logger = logging.DefaultLogger()
	}

	w := &World{
		cfg:         cfg,
		index:       NewSpatialIndex(cfg.CellSize),
		entities:    make(map[uint64]*entity.Entity),
		controllers: make(map[uint64]*aggro.Controller),
		obstacles:   make(map[physics.Handle]struct{}),
		nextID:      1,
		tracer:      otel.Tracer("github.com/annel0/rts-aggro/internal/world"),
		logger:      cfg.Logger,
	}

	if cfg.Workers > 1 {
		pool, err := ants.NewPool(cfg.Workers, ants.WithPreAlloc(true), ants.WithPanicHandler(func(p interface{}) {
			w.logger.Error("❌ Паника в обработчике агрессии: %v", p)
		}))
		if err != nil {
			return nil, fmt.Errorf("create aggro pool: %w", err)
		}
		w.pool = pool
	}

	return w, nil
}

// Close освобождает пул воркеров
func (w *World) Close() {
	if w.pool != nil {
		w.pool.Release()
	}
}

// SetCatalog задаёт каталог описаний юнитов
func (w *World) SetCatalog(c *entity.Catalog) {
	w.mu.Lock()
	w.catalog = c
	w.mu.Unlock()
}

// AddObserver подписывает наблюдателя на события мира
func (w *World) AddObserver(o Observer) {
	w.mu.Lock()
	w.observers = append(w.observers, o)
	w.mu.Unlock()
}

// space отдаёт контроллерам доступ к индексу без блокировки мира:
// контроллеры вызываются, когда блокировка уже взята.
type space struct {
	w *World
}

func (s space) OverlapCapsule(c physics.Capsule, mask physics.LayerMask) []physics.Handle {
	return s.w.index.OverlapCapsule(c, mask)
}

func (s space) Resolve(h physics.Handle) (*entity.Entity, bool) {
	e, ok := s.w.entities[uint64(h)]
	return e, ok
}

// Spawn создаёт юнита и поднимает его сигнал появления
func (w *World) Spawn(ctx context.Context, def *entity.Definition, owner entity.Faction, pos, forward vec.Vec3Float) (UnitInfo, error) {
	if def == nil {
		return UnitInfo{}, fmt.Errorf("%w: nil definition", entity.ErrInvalidDefinition)
	}
	if err := def.Validate(); err != nil {
		return UnitInfo{}, err
	}

	w.mu.Lock()
	id := w.nextID
	w.nextID++

	e := entity.NewEntity(id, def, owner, pos)
	if forward != (vec.Vec3Float{}) {
		e.Forward = forward
	}

	ctrl := aggro.New(e, space{w}, space{w}, aggro.Options{
		DirectionThreshold: w.cfg.DirectionThreshold,
		CapsuleHalfHeight:  w.cfg.CapsuleHalfHeight,
		Logger:             w.logger,
	})

	w.entities[id] = e
	w.controllers[id] = ctrl
	w.order = append(w.order, id)
	w.index.Insert(physics.Handle(id), e.Collider())

	e.Spawn()
	info := unitInfo(e, ctrl)
	observers := w.observers
	w.mu.Unlock()

	w.logger.Debug("юнит %d (%s) появился: владелец=%q", id, def.Name, owner)
	for _, o := range observers {
		o.UnitSpawned(ctx, info)
	}
	return info, nil
}

// SpawnByName создаёт юнита по имени описания из каталога
func (w *World) SpawnByName(ctx context.Context, name string, owner entity.Faction, pos, forward vec.Vec3Float) (UnitInfo, error) {
	w.mu.RLock()
	catalog := w.catalog
	w.mu.RUnlock()

	if catalog == nil {
		return UnitInfo{}, fmt.Errorf("%w: %s (catalog not loaded)", entity.ErrUnknownDefinition, name)
	}
	def, err := catalog.Get(name)
	if err != nil {
		return UnitInfo{}, err
	}
	return w.Spawn(ctx, def, owner, pos, forward)
}

// Despawn удаляет юнита из мира
func (w *World) Despawn(ctx context.Context, id uint64) error {
	w.mu.Lock()
	e, ok := w.entities[id]
	if !ok {
		w.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrEntityNotFound, id)
	}

	info := unitInfo(e, w.controllers[id])
	delete(w.entities, id)
	delete(w.controllers, id)
	w.index.Remove(physics.Handle(id))
	for i, oid := range w.order {
		if oid == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}

	// Юниты, атаковавшие удалённого, выберут новую цель в следующем тике
	forgotten := 0
	for _, ctrl := range w.controllers {
		if ctrl.Forget(e) {
			forgotten++
		}
	}
	observers := w.observers
	w.mu.Unlock()

	w.logger.Debug("юнит %d удалён, сброшено целей: %d", id, forgotten)
	for _, o := range observers {
		o.UnitRemoved(ctx, info)
	}
	return nil
}

// AddObstacle добавляет коллайдер без сущности (декорации, рельеф)
func (w *World) AddObstacle(pos vec.Vec3Float, radius float64) physics.Handle {
	w.mu.Lock()
	defer w.mu.Unlock()

	h := physics.Handle(w.nextID)
	w.nextID++
	w.obstacles[h] = struct{}{}
	w.index.Insert(h, physics.NewSphereCollider(pos, radius, physics.LayerTerrain))
	return h
}

// ApplyDamage наносит урон юниту. Смерть сообщается наблюдателям.
func (w *World) ApplyDamage(ctx context.Context, id uint64, amount float64) (UnitInfo, error) {
	if amount <= 0 || math.IsNaN(amount) {
		return UnitInfo{}, fmt.Errorf("%w: %v", ErrInvalidDamage, amount)
	}

	w.mu.Lock()
	e, ok := w.entities[id]
	if !ok {
		w.mu.Unlock()
		return UnitInfo{}, fmt.Errorf("%w: %d", ErrEntityNotFound, id)
	}

	wasAlive := e.IsAlive()
	e.HP -= amount
	died := wasAlive && !e.IsAlive()
	info := unitInfo(e, w.controllers[id])
	observers := w.observers
	w.mu.Unlock()

	if died {
		w.logger.Debug("юнит %d погиб", id)
		for _, o := range observers {
			o.UnitDied(ctx, info)
		}
	}
	return info, nil
}

// Move перемещает юнита и обновляет индекс
func (w *World) Move(id uint64, pos, forward vec.Vec3Float) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.entities[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrEntityNotFound, id)
	}

	e.Position = pos
	if forward != (vec.Vec3Float{}) {
		e.Forward = forward
	}
	w.index.Update(physics.Handle(id), e.Collider())
	return nil
}

// SetOwner меняет владельца юнита (захват, перебежчики)
func (w *World) SetOwner(id uint64, owner entity.Faction) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.entities[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrEntityNotFound, id)
	}
	e.Owner = owner
	return nil
}

// Unit возвращает снимок юнита
func (w *World) Unit(id uint64) (UnitInfo, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	e, ok := w.entities[id]
	if !ok {
		return UnitInfo{}, fmt.Errorf("%w: %d", ErrEntityNotFound, id)
	}
	return unitInfo(e, w.controllers[id]), nil
}

// Units возвращает снимки всех юнитов по возрастанию ID
func (w *World) Units() []UnitInfo {
	w.mu.RLock()
	defer w.mu.RUnlock()

	result := make([]UnitInfo, 0, len(w.order))
	for _, id := range w.order {
		result = append(result, unitInfo(w.entities[id], w.controllers[id]))
	}
	return result
}

// Target возвращает снимок текущей цели юнита. При false цели нет.
func (w *World) Target(id uint64) (UnitInfo, bool, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	ctrl, ok := w.controllers[id]
	if !ok {
		return UnitInfo{}, false, fmt.Errorf("%w: %d", ErrEntityNotFound, id)
	}
	target := ctrl.Target()
	if target == nil {
		return UnitInfo{}, false, nil
	}
	return unitInfo(target, w.controllers[target.ID]), true, nil
}

// EnemiesInRange выполняет площадной запрос от имени юнита
func (w *World) EnemiesInRange(id uint64, opponent entity.Faction, radius float64) ([]UnitInfo, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	ctrl, ok := w.controllers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrEntityNotFound, id)
	}

	enemies := ctrl.GetEnemiesInRange(opponent, radius)
	sort.Slice(enemies, func(i, j int) bool { return enemies[i].ID < enemies[j].ID })

	result := make([]UnitInfo, 0, len(enemies))
	for _, e := range enemies {
		result = append(result, unitInfo(e, w.controllers[e.ID]))
	}
	return result, nil
}

// InSights проверяет, находится ли targetID в прицеле юнита id.
// При directional == nil используется флаг из описания юнита.
func (w *World) InSights(id, targetID uint64, directional *bool) (bool, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	ctrl, ok := w.controllers[id]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrEntityNotFound, id)
	}

	aim := false
	if directional != nil {
		aim = *directional
	} else if def := ctrl.Owner().Definition; def != nil {
		aim = def.Directional
	}

	// Несуществующая цель это nil, а не ошибка
	return ctrl.IsInSights(w.entities[targetID], aim), nil
}

// TickCount возвращает номер последнего тика
func (w *World) TickCount() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.currentTick
}

// IndexStats возвращает статистику пространственного индекса
func (w *World) IndexStats() string {
	return w.index.GetStats()
}

// Tick выполняет фазу агрессии для всех юнитов
func (w *World) Tick(ctx context.Context) TickReport {
	ctx, span := w.tracer.Start(ctx, "world.Tick")
	defer span.End()

	start := time.Now()

	w.mu.Lock()
	w.currentTick++
	report := TickReport{Tick: w.currentTick, Units: len(w.order)}

	controllers := make([]*aggro.Controller, len(w.order))
	for i, id := range w.order {
		controllers[i] = w.controllers[id]
	}
	results := w.runAggroPhase(ctx, controllers)

	for i, res := range results {
		ctrl := controllers[i]
		if ctrl.Active() {
			report.Active++
		}
		if res.Current != nil {
			report.Engaged++
		}
		if res.Queried {
			report.Queries++
		}
		if res.Invalidated {
			report.Invalidated++
		}
		report.Candidates += res.Candidates

		if res.Changed() {
			report.Changes = append(report.Changes, TargetChange{
				UnitID:      ctrl.Owner().ID,
				Owner:       ctrl.Owner().Owner,
				PreviousID:  entityID(res.Previous),
				CurrentID:   entityID(res.Current),
				Invalidated: res.Invalidated,
			})
		}
	}
	observers := w.observers
	w.mu.Unlock()

	report.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int64("tick", int64(report.Tick)),
		attribute.Int("units", report.Units),
		attribute.Int("queries", report.Queries),
		attribute.Int("changes", len(report.Changes)),
	)

	for _, o := range observers {
		o.TickCompleted(ctx, report)
	}
	return report
}

// runAggroPhase обновляет контроллеры последовательно или через пул
func (w *World) runAggroPhase(ctx context.Context, controllers []*aggro.Controller) []aggro.TickResult {
	_, span := w.tracer.Start(ctx, "world.aggroPhase")
	defer span.End()

	results := make([]aggro.TickResult, len(controllers))
	if w.pool == nil || len(controllers) < 2 {
		for i, ctrl := range controllers {
			results[i] = ctrl.Update()
		}
		return results
	}

	var wg sync.WaitGroup
	for i, ctrl := range controllers {
		i, ctrl := i, ctrl
		wg.Add(1)
		err := w.pool.Submit(func() {
			defer wg.Done()
			results[i] = ctrl.Update()
		})
		if err != nil {
			// Пул закрыт или перегружен — обновляем в текущей горутине
			wg.Done()
			results[i] = ctrl.Update()
		}
	}
	wg.Wait()
	return results
}
