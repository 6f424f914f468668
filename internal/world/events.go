package world

import (
	"context"
	"time"

	"github.com/annel0/rts-aggro/internal/aggro"
	"github.com/annel0/rts-aggro/internal/vec"
	"github.com/annel0/rts-aggro/internal/world/entity"
)

// UnitInfo снимок состояния юнита, безопасный для передачи за пределы блокировки мира
type UnitInfo struct {
	ID         uint64         `json:"id"`
	Definition string         `json:"definition"`
	Owner      entity.Faction `json:"owner"`
	HP         float64        `json:"hp"`
	Position   vec.Vec3Float  `json:"position"`
	Forward    vec.Vec3Float  `json:"forward"`
	AirUnit    bool           `json:"air_unit"`
	Building   bool           `json:"building"`
	State      string         `json:"state"`
	TargetID   uint64         `json:"target_id,omitempty"` // 0 — цели нет
}

// TargetChange описывает смену цели юнита за тик
type TargetChange struct {
	UnitID      uint64         `json:"unit_id"`
	Owner       entity.Faction `json:"owner"`
	PreviousID  uint64         `json:"previous_id,omitempty"` // 0 — цели не было
	CurrentID   uint64         `json:"current_id,omitempty"`  // 0 — цели нет
	Invalidated bool           `json:"invalidated"`           // Прежняя цель погибла или удалена
}

// Acquired сообщает, что юнит захватил новую цель
func (c TargetChange) Acquired() bool {
	return c.CurrentID != 0
}

// Lost сообщает, что юнит потерял прежнюю цель
func (c TargetChange) Lost() bool {
	return c.PreviousID != 0
}

// TickReport итог одного тика агрессии
type TickReport struct {
	Tick        uint64
	Duration    time.Duration
	Units       int // Всего контроллеров
	Active      int // Активных контроллеров
	Engaged     int // Контроллеров с целью после тика
	Queries     int // Сколько выполнено поисков
	Candidates  int // Сколько кандидатов вернули поиски
	Invalidated int // Сколько целей сброшено: погибшие и удалённые
	Changes     []TargetChange
}

// Observer получает уведомления мира. Вызывается вне блокировки мира.
type Observer interface {
	UnitSpawned(ctx context.Context, u UnitInfo)
	UnitDied(ctx context.Context, u UnitInfo)
	UnitRemoved(ctx context.Context, u UnitInfo)
	TickCompleted(ctx context.Context, r TickReport)
}

// NopObserver пустая реализация Observer для встраивания
type NopObserver struct{}

func (NopObserver) UnitSpawned(context.Context, UnitInfo) {}
func (NopObserver) UnitDied(context.Context, UnitInfo) {}
func (NopObserver) UnitRemoved(context.Context, UnitInfo) {}
func (NopObserver) TickCompleted(context.Context, TickReport) {}

func unitInfo(e *entity.Entity, c *aggro.Controller) UnitInfo {
	info := UnitInfo{
		ID:       e.ID,
		Owner:    e.Owner,
		HP:       e.HP,
		Position: e.Position,
		Forward:  e.Forward,
		State:    aggro.StateInactive.String(),
	}
	if e.Definition != nil {
		info.Definition = e.Definition.Name
		info.AirUnit = e.Definition.IsAirUnit
		info.Building = e.Definition.IsBuilding
	}
	if c != nil {
		info.State = c.State().String()
		if t := c.Target(); t != nil {
			info.TargetID = t.ID
		}
	}
	return info
}

func entityID(e *entity.Entity) uint64 {
	if e == nil {
		return 0
	}
	return e.ID
}
