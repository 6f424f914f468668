package entity

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/annel0/rts-aggro/internal/physics"
	"github.com/annel0/rts-aggro/internal/vec"
)

// Faction идентификатор владельца (игрока/фракции).
// Сравнивается только на равенство.
type Faction string

// Neutral сущность без владельца
const Neutral Faction = ""

// MaxFactionLength максимальная длина имени владельца
const MaxFactionLength = 64

// ErrInvalidFaction имя владельца содержит недопустимые символы
var ErrInvalidFaction = errors.New("invalid faction")

// ParseFaction проверяет имя владельца из внешнего ввода.
// Пустая строка означает Neutral.
func ParseFaction(s string) (Faction, error) {
	s = strings.TrimSpace(s)
	if len(s) > MaxFactionLength {
		return Neutral, fmt.Errorf("%w: longer than %d", ErrInvalidFaction, MaxFactionLength)
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.' {
			continue
		}
		return Neutral, fmt.Errorf("%w: %q", ErrInvalidFaction, s)
	}
	return Faction(s), nil
}

// Entity представляет боевую единицу в мире
type Entity struct {
	ID         uint64        // Уникальный идентификатор сущности
	HP         float64       // Здоровье; <= 0 означает смерть
	Owner      Faction       // Владелец
	Definition *Definition   // Статические характеристики юнита
	Position   vec.Vec3Float // Позиция в мире (Y: высота)
	Forward    vec.Vec3Float // Направление взгляда

	spawnMu        sync.Mutex
	spawned        bool
	spawnListeners []func()
}

// NewEntity создаёт новую сущность с полным здоровьем
func NewEntity(id uint64, def *Definition, owner Faction, position vec.Vec3Float) *Entity {
	e := &Entity{
		ID:         id,
		Owner:      owner,
		Definition: def,
		Position:   position,
		Forward:    vec.Forward,
	}
	if def != nil {
		e.HP = def.MaxHP
	}
	return e
}

// IsAlive сообщает, жива ли сущность
func (e *Entity) IsAlive() bool {
	return e != nil && e.HP > 0
}

// IsHostileTo проверяет, принадлежит ли другая сущность другому владельцу
func (e *Entity) IsHostileTo(other *Entity) bool {
	return other != nil && e.Owner != other.Owner
}

// Collider возвращает коллайдер сущности в текущей позиции
func (e *Entity) Collider() physics.SphereCollider {
	radius := DefaultColliderRadius
	if e.Definition != nil && e.Definition.ColliderRadius > 0 {
		radius = e.Definition.ColliderRadius
	}
	return physics.NewSphereCollider(e.Position, radius, physics.LayerEntity)
}

// OnSpawned регистрирует обработчик сигнала появления.
// Если сущность уже появилась, обработчик вызывается сразу.
func (e *Entity) OnSpawned(listener func()) {
	if listener == nil {
		return
	}

	e.spawnMu.Lock()
	if e.spawned {
		e.spawnMu.Unlock()
		listener()
		return
	}
	e.spawnListeners = append(e.spawnListeners, listener)
	e.spawnMu.Unlock()
}

// Spawn поднимает сигнал появления. Срабатывает один раз, повторные вызовы игнорируются.
func (e *Entity) Spawn() {
	e.spawnMu.Lock()
	if e.spawned {
		e.spawnMu.Unlock()
		return
	}
	e.spawned = true
	listeners := e.spawnListeners
	e.spawnListeners = nil
	e.spawnMu.Unlock()

	for _, l := range listeners {
		l()
	}
}

// Spawned сообщает, был ли поднят сигнал появления
func (e *Entity) Spawned() bool {
	e.spawnMu.Lock()
	defer e.spawnMu.Unlock()
	return e.spawned
}
