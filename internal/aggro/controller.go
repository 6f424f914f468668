// Package aggro решает, кого атакует юнит: поиск ближайшего врага,
// фильтрация по владельцу и типу юнита, проверка прицеливания.
package aggro

import (
	"math"

	"github.com/annel0/rts-aggro/internal/logging"
	"github.com/annel0/rts-aggro/internal/physics"
	"github.com/annel0/rts-aggro/internal/world/entity"
)

// DefaultDirectionThreshold допуск по косинусу для направленного оружия
const DefaultDirectionThreshold = 0.1

// SpatialIndex выполняет запросы перекрытия в физическом мире
type SpatialIndex interface {
	OverlapCapsule(c physics.Capsule, mask physics.LayerMask) []physics.Handle
}

// Resolver сопоставляет коллайдер сущности. Коллайдеры без сущности дают false.
type Resolver interface {
	Resolve(h physics.Handle) (*entity.Entity, bool)
}

// Options настройки контроллера
type Options struct {
	DirectionThreshold float64         // Допуск прицеливания (1 - cos угла)
	CapsuleHalfHeight  float64         // Полувысота капсулы поиска
	Logger             *logging.Logger // По умолчанию глобальный логгер
}

func (o Options) withDefaults() Options {
	if o.DirectionThreshold <= 0 {
		o.DirectionThreshold = DefaultDirectionThreshold
	}
	if o.CapsuleHalfHeight <= 0 {
		o.CapsuleHalfHeight = physics.DefaultCapsuleHalfHeight
	}
	if o.Logger == nil {
		o.Logger = logging.DefaultLogger()
	}
	return o
}

// TickResult описывает, что произошло за один вызов Update
type TickResult struct {
	Previous    *entity.Entity // Цель до обновления
	Current     *entity.Entity // Цель после обновления
	Invalidated bool           // Прежняя цель сброшена: погибла или удалена из мира
	Queried     bool           // Выполнялся поиск новой цели
	Candidates  int            // Сколько сущностей вернул поиск
}

// Changed сообщает, сменилась ли цель
func (r TickResult) Changed() bool {
	return r.Previous != r.Current
}

// Controller хранит текущую цель юнита и обновляет её каждый тик.
// target пишет только сам контроллер, остальные системы только читают.
type Controller struct {
	owner    *entity.Entity
	index    SpatialIndex
	resolver Resolver
	opts     Options

	target *entity.Entity
	lost   *entity.Entity // Цель, снятая Forget до ближайшего Update
	active bool
}

// New создаёт контроллер для юнита. Без владельца контроллер остаётся неактивным навсегда.
func New(owner *entity.Entity, index SpatialIndex, resolver Resolver, opts Options) *Controller {
	c := &Controller{
		owner:    owner,
		index:    index,
		resolver: resolver,
		opts:     opts.withDefaults(),
	}

	if owner == nil {
		c.opts.Logger.Warn("⚠️ Контроллер агрессии создан без сущности, остаётся неактивным")
		return c
	}

	owner.OnSpawned(c.OnSpawned)
	return c
}

// OnSpawned активирует контроллер. Активация необратима.
func (c *Controller) OnSpawned() {
	if c.owner == nil {
		return
	}
	c.active = true
}

// Owner возвращает юнита, для которого работает контроллер
func (c *Controller) Owner() *entity.Entity {
	return c.owner
}

// Active сообщает, появился ли юнит в мире
func (c *Controller) Active() bool {
	return c.active
}

// Target возвращает текущую цель (может быть nil)
func (c *Controller) Target() *entity.Entity {
	return c.target
}

// Forget сбрасывает цель, если это e. Вызывается, когда e удаляют из мира.
// Потеря цели попадёт в результат следующего Update.
func (c *Controller) Forget(e *entity.Entity) bool {
	if e == nil || c.target != e {
		return false
	}
	c.target = nil
	c.lost = e
	return true
}

// State возвращает состояние конечного автомата
func (c *Controller) State() State {
	switch {
	case !c.active:
		return StateInactive
	case c.target != nil:
		return StateEngaged
	default:
		return StateIdle
	}
}

// Update выполняет обновление цели за один тик
func (c *Controller) Update() TickResult {
	res := TickResult{Previous: c.target}
	if !c.active {
		res.Current = c.target
		return res
	}

	if c.lost != nil {
		res.Previous = c.lost
		res.Invalidated = true
		c.lost = nil
	}

	// Сбрасываем мёртвую цель
	if c.target != nil && c.target.HP <= 0 {
		c.target = nil
		res.Invalidated = true
	}

	if c.target == nil {
		res.Queried = true
		c.target, res.Candidates = c.acquire()
	}

	res.Current = c.target
	return res
}

// acquire ищет ближайшего подходящего врага в радиусе агрессии
func (c *Controller) acquire() (*entity.Entity, int) {
	def := c.owner.Definition
	if def == nil {
		return nil, 0
	}

	enemies := c.hostilesInRange(def.AggroRange)

	var closest *entity.Entity
	closestDistance := math.MaxFloat64
	for _, enemy := range enemies {
		if enemy.HP <= 0 || !c.CanAttack(enemy) {
			continue
		}

		distance := c.owner.Position.HorizontalDistanceTo(enemy.Position)
		if distance < closestDistance {
			closest = enemy
			closestDistance = distance
		}
	}

	if closest != nil {
		c.opts.Logger.Debug("юнит %d: цель %d захвачена (%.2f)", c.owner.ID, closest.ID, closestDistance)
	}
	return closest, len(enemies)
}

// CanAttack проверяет правило типов: наземные, воздушные, здания.
// Здания атакуются всегда, независимо от флагов.
func (c *Controller) CanAttack(candidate *entity.Entity) bool {
	if c.owner == nil || c.owner.Definition == nil || candidate == nil || candidate.Definition == nil {
		return false
	}

	own := c.owner.Definition
	other := candidate.Definition
	return (own.AttacksGroundUnits && !other.IsAirUnit) ||
		(own.AttacksAirUnits && other.IsAirUnit) ||
		other.IsBuilding
}

// hostilesInRange возвращает чужие сущности в вертикальной капсуле
func (c *Controller) hostilesInRange(radius float64) []*entity.Entity {
	var result []*entity.Entity
	c.overlap(radius, physics.LayerAll, func(e *entity.Entity) {
		if c.owner.IsHostileTo(e) {
			result = append(result, e)
		}
	})
	return result
}

func (c *Controller) overlap(radius float64, mask physics.LayerMask, visit func(*entity.Entity)) {
	if c.index == nil || c.resolver == nil {
		return
	}

	capsule := physics.VerticalCapsule(c.owner.Position, radius, c.opts.CapsuleHalfHeight)
	for _, h := range c.index.OverlapCapsule(capsule, mask) {
		e, ok := c.resolver.Resolve(h)
		if !ok || e == nil {
			continue
		}
		visit(e)
	}
}
